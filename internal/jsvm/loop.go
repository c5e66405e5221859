package jsvm

import (
	"context"
	"sync"
)

// eventLoop is the host side of the guest's asynchrony. Host functions that
// return promises hand their settle callbacks to it; the loop runs them on the
// VM goroutine when a Future is awaited. It implements hostapi.Scheduler.
//
// queue and pending are only touched from the VM goroutine.
type eventLoop struct {
	queue   []func() error
	pending int

	results   chan func() error
	done      chan struct{}
	closeOnce sync.Once
}

func newEventLoop() *eventLoop {
	return &eventLoop{
		results: make(chan func() error, 16),
		done:    make(chan struct{}),
	}
}

// Go runs work on its own goroutine and queues settle for the VM goroutine.
func (l *eventLoop) Go(work func() (any, error), settle func(any, error) error) {
	l.pending++
	go func() {
		v, err := work()
		select {
		case l.results <- func() error { return settle(v, err) }:
		case <-l.done:
		}
	}()
}

// Defer queues settle for the next pump.
func (l *eventLoop) Defer(settle func() error) {
	l.queue = append(l.queue, settle)
}

// outstanding reports whether any callback could still arrive.
func (l *eventLoop) outstanding() bool {
	return len(l.queue) > 0 || l.pending > 0
}

// pump runs one round of callbacks. Locally queued callbacks run first; if
// there are none it blocks for one goroutine result. It returns false when
// nothing is outstanding. The first callback error is returned after the
// round completes.
func (l *eventLoop) pump(ctx context.Context) (bool, error) {
	if len(l.queue) > 0 {
		queued := l.queue
		l.queue = nil
		var first error
		for _, settle := range queued {
			if err := settle(); err != nil && first == nil {
				first = err
			}
		}
		return true, first
	}

	if l.pending == 0 {
		return false, nil
	}

	select {
	case settle := <-l.results:
		l.pending--
		return true, settle()
	case <-ctx.Done():
		return false, ctx.Err()
	case <-l.done:
		return false, ErrDisposed
	}
}

// close abandons outstanding work. Goroutines still running drop their result.
func (l *eventLoop) close() {
	l.closeOnce.Do(func() {
		close(l.done)
		l.queue = nil
		l.pending = 0
	})
}
