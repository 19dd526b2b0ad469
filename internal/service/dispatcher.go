package service

import (
	"context"
	"sync"
)

// Dispatcher runs posted closures one at a time on a single goroutine. It is the only place
// where presenter callbacks and attempt state transitions execute. Its mailbox is unbounded
// so pool workers never block when handing results back.
type Dispatcher struct {
	mu     sync.Mutex
	queue  []func()
	wake   chan struct{}
	closed bool
	done   chan struct{}
}

// NewDispatcher builds a dispatcher; call Run to start it.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{wake: make(chan struct{}, 1), done: make(chan struct{})}
}

// Post enqueues fn. It returns false once the dispatcher has stopped.
func (d *Dispatcher) Post(fn func()) bool {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return false
	}
	d.queue = append(d.queue, fn)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
	return true
}

// Done is closed after Run returns.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.done
}

// Run drains the mailbox until ctx is cancelled. Closures still queued at cancellation are
// discarded without running.
func (d *Dispatcher) Run(ctx context.Context) {
	defer close(d.done)
	defer d.stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.wake:
		}
		for {
			fn, ok := d.next()
			if !ok {
				break
			}
			if ctx.Err() != nil {
				return
			}
			fn()
		}
	}
}

func (d *Dispatcher) next() (func(), bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.queue) == 0 {
		return nil, false
	}
	fn := d.queue[0]
	d.queue[0] = nil
	d.queue = d.queue[1:]
	return fn, true
}

func (d *Dispatcher) stop() {
	d.mu.Lock()
	d.closed = true
	d.queue = nil
	d.mu.Unlock()
}
