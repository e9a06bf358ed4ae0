package eventloop_test

import (
	"testing"
	"time"

	"codeberg.org/mutker/thermoctl/internal/eventloop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tick struct {
	timer *eventloop.Timer
}

func newTick(t *eventloop.Timer) eventloop.Event {
	return tick{timer: t}
}

func TestTimerRejectsInvalidPeriod(t *testing.T) {
	loop, err := eventloop.New(1)
	require.NoError(t, err)
	defer loop.Close()

	_, err = eventloop.NewPeriodicTimer(loop, 0, newTick)
	assert.ErrorIs(t, err, eventloop.ErrInvalidPeriod)
}

func TestTimerRejectsClosedLoop(t *testing.T) {
	loop, err := eventloop.New(1)
	require.NoError(t, err)
	require.NoError(t, loop.Close())

	_, err = eventloop.NewPeriodicTimer(loop, time.Millisecond, newTick)
	assert.ErrorIs(t, err, eventloop.ErrClosed)
}

func TestTimerTicksAreConsumedOnce(t *testing.T) {
	loop, err := eventloop.New(4)
	require.NoError(t, err)
	defer loop.Close()

	timer, err := eventloop.NewPeriodicTimer(loop, 5*time.Millisecond, newTick)
	require.NoError(t, err)
	defer timer.Dispose()

	var got []tick
	d := eventloop.DispatcherFunc(func(ev eventloop.Event) {
		tk, ok := ev.(tick)
		require.True(t, ok)
		require.NoError(t, tk.timer.Consume())
		got = append(got, tk)
	})

	for i := 0; i < 3; i++ {
		require.NoError(t, loop.RunOnce(d))
	}

	assert.Len(t, got, 3)
	assert.Same(t, timer, got[0].timer)
	assert.Equal(t, 5*time.Millisecond, timer.Period())
}

func TestTimerConsumeWithoutExpiration(t *testing.T) {
	loop, err := eventloop.New(1)
	require.NoError(t, err)
	defer loop.Close()

	timer, err := eventloop.NewPeriodicTimer(loop, time.Hour, newTick)
	require.NoError(t, err)
	defer timer.Dispose()

	assert.ErrorIs(t, timer.Consume(), eventloop.ErrNoExpiration)
}

func TestTimerConsumeAfterDispose(t *testing.T) {
	loop, err := eventloop.New(1)
	require.NoError(t, err)
	defer loop.Close()

	timer, err := eventloop.NewPeriodicTimer(loop, time.Hour, newTick)
	require.NoError(t, err)

	require.NoError(t, timer.Dispose())
	require.NoError(t, timer.Dispose())
	assert.ErrorIs(t, timer.Consume(), eventloop.ErrTimerDisposed)
}

func TestTimerDisposeWhileQueueFull(t *testing.T) {
	loop, err := eventloop.New(1)
	require.NoError(t, err)
	defer loop.Close()

	timer, err := eventloop.NewPeriodicTimer(loop, time.Millisecond, newTick)
	require.NoError(t, err)

	// Let the queue fill so the timer goroutine blocks in Post.
	require.Eventually(t, func() bool { return loop.Pending() == 1 }, time.Second, time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		_ = timer.Dispose()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Dispose blocked on a full queue")
	}
}
