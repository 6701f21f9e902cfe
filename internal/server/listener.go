package server

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/Tyrowin/collabocanvas/internal/log"
)

// Group runs managed goroutines that share a cancellable context.
type Group struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	errs    []error
	stopped bool
}

// NewGroup returns a Group whose context is derived from parent.
func NewGroup(parent context.Context) *Group {
	ctx, cancel := context.WithCancel(parent)
	return &Group{ctx: ctx, cancel: cancel}
}

// Context returns the group's context.
func (g *Group) Context() context.Context { return g.ctx }

// Go starts fn and reports whether it did. Once Shutdown has begun no new
// tasks are started. Errors other than cancellation are logged and kept
// for Err.
func (g *Group) Go(name string, fn func(ctx context.Context) error) bool {
	g.mu.Lock()
	if g.stopped {
		g.mu.Unlock()
		return false
	}
	g.wg.Add(1)
	g.mu.Unlock()

	go func() {
		defer g.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				log.Error("recovered from panic in task", "task", name, "panic", r)
			}
		}()
		if err := fn(g.ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Debug("task finished with error", "task", name, "err", err)
			g.mu.Lock()
			g.errs = append(g.errs, err)
			g.mu.Unlock()
		}
	}()
	return true
}

// Cancel signals every task to stop.
func (g *Group) Cancel() { g.cancel() }

// Err joins the errors tasks returned so far.
func (g *Group) Err() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return errors.Join(g.errs...)
}

// Wait blocks until every task returns or timeout elapses. A zero timeout
// waits indefinitely.
func (g *Group) Wait(timeout time.Duration) error {
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()

	if timeout <= 0 {
		<-done
		return nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-timer.C:
		return context.DeadlineExceeded
	}
}

// Shutdown cancels the group and waits for its tasks.
func (g *Group) Shutdown(timeout time.Duration) error {
	g.mu.Lock()
	g.stopped = true
	g.mu.Unlock()
	g.cancel()
	return g.Wait(timeout)
}

// ServeListener accepts stream connections on ln and runs each one through
// h in its own task until ctx is cancelled. The listener is closed on
// return; sessions still running are given timeout to finish.
func ServeListener(ctx context.Context, ln net.Listener, h *Handler, maxRecordSize int, timeout time.Duration) error {
	g := NewGroup(ctx)
	logger := log.With("channel", h.hub.channel, "addr", ln.Addr().String())

	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	logger.Info("listening")

	var acceptErr error
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				logger.Warn("accept timeout", "err", err)
				continue
			}
			acceptErr = err
			break
		}

		g.Go("session "+conn.RemoteAddr().String(), func(ctx context.Context) error {
			return h.Serve(ctx, NewLineConn(conn, maxRecordSize))
		})
	}

	_ = ln.Close()
	if err := g.Shutdown(timeout); err != nil {
		logger.Warn("sessions still running after shutdown timeout", "timeout", timeout)
	}
	logger.Info("listener stopped")
	return acceptErr
}
