package actorutil

import (
	"context"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/primetalk/goio/io"
)

// SafeBackgroundTask runs a blocking call for an actor under an optional
// deadline, either inline with Run or detached with Start.
type SafeBackgroundTask[T any] struct {
	ctx     actor.Context
	fn      func(context.Context) (T, error)
	timeout time.Duration
	recover func(error) T
}

func NewBackgroundTask[T any](ctx actor.Context, fn func(context.Context) (T, error)) *SafeBackgroundTask[T] {
	return &SafeBackgroundTask[T]{
		ctx: ctx,
		fn:  fn,
	}
}

func (t *SafeBackgroundTask[T]) WithTimeout(timeout time.Duration) *SafeBackgroundTask[T] {
	t.timeout = timeout
	return t
}

// Recover turns an error into a value, PipeTo then delivers it like any
// other result.
func (t *SafeBackgroundTask[T]) Recover(fn func(error) T) *SafeBackgroundTask[T] {
	t.recover = fn
	return t
}

func (t *SafeBackgroundTask[T]) PipeTo(pid *actor.PID) {
	if value, err := t.Run(); err == nil {
		t.ctx.Send(pid, value)
	}
}

// Start runs the call on its own goroutine and sends the result to pid once
// it is done. Cancelling the returned function cancels the call context, a
// cancelled call delivers nothing unless a recover function is set.
func (t *SafeBackgroundTask[T]) Start(pid *actor.PID) context.CancelFunc {
	c, cancel := t.context()
	root := t.ctx.ActorSystem().Root
	go func() {
		defer cancel()
		if value, err := t.run(c); err == nil {
			root.Send(pid, value)
		}
	}()
	return cancel
}

// Run returns the result of the call, or the recovered value when the call
// failed and a recover function is set.
func (t *SafeBackgroundTask[T]) Run() (T, error) {
	c, cancel := t.context()
	defer cancel()
	return t.run(c)
}

func (t *SafeBackgroundTask[T]) context() (context.Context, context.CancelFunc) {
	if t.timeout > 0 {
		return context.WithTimeout(context.Background(), t.timeout)
	}
	return context.WithCancel(context.Background())
}

func (t *SafeBackgroundTask[T]) run(c context.Context) (T, error) {
	result := io.RunSync(io.Eval(func() (T, error) {
		return t.fn(c)
	}))
	if result.Error != nil && t.recover != nil {
		return t.recover(result.Error), nil
	}
	return result.Value, result.Error
}
