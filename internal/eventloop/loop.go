package eventloop

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	ErrInvalidQueueSize = errors.New("event loop queue size must be positive")
	ErrClosed           = errors.New("event loop closed")
	ErrInterrupted      = errors.New("event loop wait interrupted")
	ErrHandlerPanic     = errors.New("event handler panicked")
)

// Event is any value posted to the loop. The dispatcher decides what it means.
type Event = any

// Dispatcher handles one event at a time.
type Dispatcher interface {
	Dispatch(ev Event)
}

// DispatcherFunc adapts a function to a Dispatcher.
type DispatcherFunc func(ev Event)

func (f DispatcherFunc) Dispatch(ev Event) {
	f(ev)
}

type Loop struct {
	events    chan Event
	interrupt chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func New(queueSize int) (*Loop, error) {
	if queueSize <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidQueueSize, queueSize)
	}

	return &Loop{
		events:    make(chan Event, queueSize),
		interrupt: make(chan struct{}, 1),
		done:      make(chan struct{}),
	}, nil
}

// Post queues ev behind every event already queued. It blocks while the
// queue is full, until ctx is done or the loop is closed.
func (l *Loop) Post(ctx context.Context, ev Event) error {
	select {
	case <-l.done:
		return ErrClosed
	default:
	}

	select {
	case l.events <- ev:
		return nil
	case <-l.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Interrupt wakes a pending RunOnce without an event. Interrupts coalesce.
func (l *Loop) Interrupt() {
	select {
	case l.interrupt <- struct{}{}:
	default:
	}
}

// RunOnce waits for the next event and dispatches it. It returns
// ErrInterrupted when woken by Interrupt, and ErrClosed once the loop has
// been closed.
func (l *Loop) RunOnce(d Dispatcher) (err error) {
	select {
	case <-l.done:
		return ErrClosed
	case <-l.interrupt:
		return ErrInterrupted
	case ev := <-l.events:
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%w: %T: %v", ErrHandlerPanic, ev, r)
			}
		}()
		d.Dispatch(ev)
		return nil
	}
}

// Pending returns the number of queued events.
func (l *Loop) Pending() int {
	return len(l.events)
}

// Close stops the loop. Queued events are dropped.
func (l *Loop) Close() error {
	l.closeOnce.Do(func() {
		close(l.done)
	})
	return nil
}
