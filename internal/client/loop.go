package client

import (
	"context"
	"errors"
	"sync"
)

// ErrLoopStopped is returned by Post once the loop has stopped.
var ErrLoopStopped = errors.New("client: render loop stopped")

// Loop runs posted functions one at a time on the goroutine that called
// Run. It is the only place a Reconciler is touched.
type Loop struct {
	work chan func()
	done chan struct{}
	once sync.Once
}

// NewLoop creates a Loop with room for buffer pending functions.
func NewLoop(buffer int) *Loop {
	if buffer < 0 {
		buffer = 0
	}
	return &Loop{
		work: make(chan func(), buffer),
		done: make(chan struct{}),
	}
}

// Post queues fn, blocking while the queue is full.
func (l *Loop) Post(ctx context.Context, fn func()) error {
	select {
	case <-l.done:
		return ErrLoopStopped
	default:
	}
	select {
	case l.work <- fn:
		return nil
	case <-l.done:
		return ErrLoopStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run executes posted functions until ctx is cancelled. Functions still
// queued when it stops are discarded.
func (l *Loop) Run(ctx context.Context) error {
	defer l.once.Do(func() { close(l.done) })
	for {
		select {
		case fn := <-l.work:
			fn()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
