package actorutil

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackgroundTaskRun(t *testing.T) {

	require := require.New(t)

	value, err := NewBackgroundTask(nil, func(_ context.Context) (int, error) {
		return 42, nil
	}).Run()
	require.NoError(err)
	require.Equal(42, value)

	failure := errors.New("unreachable")
	_, err = NewBackgroundTask(nil, func(_ context.Context) (int, error) {
		return 0, failure
	}).Run()
	require.ErrorIs(err, failure)

	value, err = NewBackgroundTask(nil, func(_ context.Context) (int, error) {
		return 0, failure
	}).Recover(func(error) int { return -1 }).Run()
	require.NoError(err)
	require.Equal(-1, value)
}

func TestBackgroundTaskTimeout(t *testing.T) {

	_, err := NewBackgroundTask(nil, func(c context.Context) (struct{}, error) {
		_, ok := c.Deadline()
		assert.True(t, ok)
		<-c.Done()
		return struct{}{}, c.Err()
	}).WithTimeout(20 * time.Millisecond).Run()
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBackgroundTaskStart(t *testing.T) {

	require := require.New(t)

	as := actor.NewActorSystem()
	t.Cleanup(as.Shutdown)

	results := make(chan int, 2)
	cancels := make(chan context.CancelFunc, 1)
	props := actor.PropsFromFunc(func(ctx actor.Context) {
		switch msg := ctx.Message().(type) {
		case *actor.Started:
			NewBackgroundTask(ctx, func(_ context.Context) (int, error) {
				return 42, nil
			}).Start(ctx.Self())
			// delivers the recovered value once cancelled
			cancels <- NewBackgroundTask(ctx, func(c context.Context) (int, error) {
				<-c.Done()
				return 0, c.Err()
			}).Recover(func(error) int { return -1 }).Start(ctx.Self())
		case int:
			results <- msg
		}
	})
	as.Root.Spawn(props)

	require.Equal(42, <-results)
	(<-cancels)()
	select {
	case v := <-results:
		require.Equal(-1, v)
	case <-time.After(time.Second):
		t.Fatal("cancelled task delivered nothing")
	}
}
