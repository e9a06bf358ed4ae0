package eventloop

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrInvalidPeriod = errors.New("timer period must be positive")
	ErrTimerDisposed = errors.New("timer disposed")
	ErrNoExpiration  = errors.New("no pending timer expiration")
)

// Timer fires on a fixed period and posts one event per expiration. Each
// delivered event must be acknowledged with exactly one Consume call.
type Timer struct {
	period   time.Duration
	pending  atomic.Int64
	disposed atomic.Bool
	cancel   context.CancelFunc
	done     chan struct{}
	once     sync.Once
}

// NewPeriodicTimer arms a timer on loop. newEvent builds the event posted
// for every expiration.
func NewPeriodicTimer(loop *Loop, period time.Duration, newEvent func(*Timer) Event) (*Timer, error) {
	if period <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPeriod, period)
	}
	if loop == nil {
		return nil, ErrClosed
	}
	select {
	case <-loop.done:
		return nil, ErrClosed
	default:
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &Timer{
		period: period,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go t.run(ctx, loop, newEvent)

	return t, nil
}

func (t *Timer) run(ctx context.Context, loop *Loop, newEvent func(*Timer) Event) {
	defer close(t.done)

	ticker := time.NewTicker(t.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.pending.Add(1)
			if err := loop.Post(ctx, newEvent(t)); err != nil {
				t.pending.Add(-1)
				return
			}
		}
	}
}

// Consume acknowledges one delivered expiration.
func (t *Timer) Consume() error {
	if t.disposed.Load() {
		return ErrTimerDisposed
	}

	for {
		n := t.pending.Load()
		if n <= 0 {
			return ErrNoExpiration
		}
		if t.pending.CompareAndSwap(n, n-1) {
			return nil
		}
	}
}

// Period returns the configured period.
func (t *Timer) Period() time.Duration {
	return t.period
}

// Dispose stops the timer and waits for its goroutine to exit.
func (t *Timer) Dispose() error {
	t.once.Do(func() {
		t.disposed.Store(true)
		t.cancel()
		<-t.done
	})
	return nil
}
