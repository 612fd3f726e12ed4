package actor

import (
	"github.com/berfenger/enasolar2mqtt/internal/core/domain"
	"github.com/berfenger/enasolar2mqtt/internal/core/flow"

	"github.com/asynkron/protoactor-go/actor"
)

// EntryListener turns committed flow results into master requests.
type EntryListener struct {
	rootContext *actor.RootContext
	masterActor *actor.PID
}

func NewEntryListener(rootContext *actor.RootContext, masterActor *actor.PID) *EntryListener {
	return &EntryListener{
		rootContext: rootContext,
		masterActor: masterActor,
	}
}

func (l *EntryListener) EntryCreated(entry domain.ConfigEntry) {
	l.rootContext.Send(l.masterActor, domain.SetupEntryRequest{Entry: entry})
}

// OptionsUpdated reloads the entry so the new options take effect.
func (l *EntryListener) OptionsUpdated(entry domain.ConfigEntry) {
	l.rootContext.Send(l.masterActor, domain.ReloadEntryRequest{EntryId: entry.EntryId})
}

// ensure interface compliance
var _ flow.Listener = (*EntryListener)(nil)
