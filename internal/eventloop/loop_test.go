package eventloop_test

import (
	"context"
	"testing"
	"time"

	"codeberg.org/mutker/thermoctl/internal/eventloop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	events []eventloop.Event
}

func (r *recorder) Dispatch(ev eventloop.Event) {
	r.events = append(r.events, ev)
}

func TestNewRejectsInvalidQueueSize(t *testing.T) {
	_, err := eventloop.New(0)
	require.ErrorIs(t, err, eventloop.ErrInvalidQueueSize)
}

func TestRunOnceDispatchesInArrivalOrder(t *testing.T) {
	loop, err := eventloop.New(8)
	require.NoError(t, err)
	defer loop.Close()

	ctx := context.Background()
	for _, ev := range []string{"tick", "button-a", "connected"} {
		require.NoError(t, loop.Post(ctx, ev))
	}
	assert.Equal(t, 3, loop.Pending())

	rec := &recorder{}
	for i := 0; i < 3; i++ {
		require.NoError(t, loop.RunOnce(rec))
	}

	assert.Equal(t, []eventloop.Event{"tick", "button-a", "connected"}, rec.events)
}

func TestInterruptWakesRunOnce(t *testing.T) {
	loop, err := eventloop.New(1)
	require.NoError(t, err)
	defer loop.Close()

	loop.Interrupt()
	loop.Interrupt()

	err = loop.RunOnce(&recorder{})
	assert.ErrorIs(t, err, eventloop.ErrInterrupted)
}

func TestClosedLoop(t *testing.T) {
	loop, err := eventloop.New(1)
	require.NoError(t, err)

	require.NoError(t, loop.Close())
	require.NoError(t, loop.Close())

	assert.ErrorIs(t, loop.Post(context.Background(), "late"), eventloop.ErrClosed)
	assert.ErrorIs(t, loop.RunOnce(&recorder{}), eventloop.ErrClosed)
}

func TestPostHonoursContextWhenFull(t *testing.T) {
	loop, err := eventloop.New(1)
	require.NoError(t, err)
	defer loop.Close()

	require.NoError(t, loop.Post(context.Background(), "first"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, loop.Post(ctx, "second"), context.DeadlineExceeded)
}

func TestHandlerPanicIsReported(t *testing.T) {
	loop, err := eventloop.New(1)
	require.NoError(t, err)
	defer loop.Close()

	require.NoError(t, loop.Post(context.Background(), "boom"))

	err = loop.RunOnce(eventloop.DispatcherFunc(func(eventloop.Event) {
		panic("handler bug")
	}))
	assert.ErrorIs(t, err, eventloop.ErrHandlerPanic)
}
