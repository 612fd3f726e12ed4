package actorutil

import (
	"github.com/berfenger/enasolar2mqtt/internal/core/domain"

	"github.com/asynkron/protoactor-go/actor"
)

// ExtendedRequest answers a request to the reply-to actor carried by the
// message when there is one, to the envelope sender otherwise.
type ExtendedRequest struct {
	req domain.ActorRequest
}

func ForRequest(r domain.ActorRequest) ExtendedRequest {
	return ExtendedRequest{req: r}
}

func (r ExtendedRequest) ReplyTo(ctx actor.Context) *actor.PID {
	if ref := r.req.ReplyTo(); ref != nil {
		return (*actor.PID)(ref)
	}
	return ctx.Sender()
}

// Respond drops the response when nobody is waiting for it.
func (r ExtendedRequest) Respond(ctx actor.Context, resp domain.ActorResponse) {
	if pid := r.ReplyTo(ctx); pid != nil {
		ctx.Send(pid, resp)
	}
}
