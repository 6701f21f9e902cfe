package server

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/collabocanvas/internal/protocol"
)

// TestNotifierDeliversToHooks verifies that observers receive
// notifications and that the counters track every key.
func TestNotifierDeliversToHooks(t *testing.T) {
	n := NewNotifier(nil)
	t.Cleanup(func() { _ = n.Close() })

	var mu sync.Mutex
	var got []Notification
	_, err := n.Hook(EventSessionJoined, func(_ context.Context, note Notification) error {
		mu.Lock()
		got = append(got, note)
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)

	n.Notify(context.Background(), EventSessionJoined, Notification{Channel: ChannelDraw, Username: "ana"})
	n.Notify(context.Background(), EventSessionLeft, Notification{Channel: ChannelDraw})
	n.Notify(context.Background(), EventCanvasSaved, Notification{Detail: "a.json"})
	n.Notify(context.Background(), EventRecordRejected, Notification{Err: errors.New("bad")})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, waitFor, tick)

	mu.Lock()
	assert.Equal(t, "ana", got[0].Username)
	assert.False(t, got[0].At.IsZero(), "notify stamps the time")
	mu.Unlock()

	stats := n.Stats()
	assert.Equal(t, int64(1), stats.Joined)
	assert.Equal(t, int64(1), stats.Left)
	assert.Equal(t, int64(1), stats.Saved)
	assert.Equal(t, int64(1), stats.Rejected)
}

// TestNotifierCancelledContext verifies that observers still run when the
// emitting session's context is already gone.
func TestNotifierCancelledContext(t *testing.T) {
	n := NewNotifier(nil)
	t.Cleanup(func() { _ = n.Close() })

	delivered := make(chan struct{}, 1)
	_, err := n.Hook(EventSessionLeft, func(context.Context, Notification) error {
		delivered <- struct{}{}
		return nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n.Notify(ctx, EventSessionLeft, Notification{})

	select {
	case <-delivered:
	case <-time.After(waitFor):
		t.Fatal("notification was not delivered")
	}
}

// TestNilNotifier verifies that a nil notifier is inert.
func TestNilNotifier(t *testing.T) {
	var n *Notifier
	n.Notify(context.Background(), EventSessionJoined, Notification{})
	assert.Equal(t, NotifierStats{}, n.Stats())
	assert.NoError(t, n.Close())
	_, err := n.Hook(EventSessionJoined, func(context.Context, Notification) error { return nil })
	assert.Error(t, err)
}

// TestNotifierClosed verifies that Close is idempotent and later notifies
// are dropped quietly.
func TestNotifierClosed(t *testing.T) {
	n := NewNotifier(nil)
	require.NoError(t, LogNotifications(n))
	require.NoError(t, n.Close())
	require.NoError(t, n.Close())

	n.Notify(context.Background(), EventCanvasSaved, Notification{})
	assert.Equal(t, int64(1), n.Stats().Saved)
}

// TestHubNotifiesLifecycle verifies the hub reports joins, leaves and
// rejected records to its notifier.
func TestHubNotifiesLifecycle(t *testing.T) {
	n := NewNotifier(nil)
	t.Cleanup(func() { _ = n.Close() })

	h := newTestHandler(WithNotifier(n))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := connectPeer(t, ctx, h, "ana")
	p.sendRaw(`{"action":"nope"}`)
	require.Eventually(t, func() bool { return n.Stats().Rejected == 1 }, waitFor, tick)

	p.close()
	require.NoError(t, p.wait())

	stats := n.Stats()
	assert.Equal(t, int64(1), stats.Joined)
	assert.Equal(t, int64(1), stats.Left)
}

// TestGroupWait verifies error collection and the wait timeout.
func TestGroupWait(t *testing.T) {
	g := NewGroup(context.Background())
	boom := errors.New("boom")

	g.Go("fails", func(context.Context) error { return boom })
	g.Go("cancelled", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	g.Go("panics", func(context.Context) error { panic("oops") })

	assert.ErrorIs(t, g.Wait(20*time.Millisecond), context.DeadlineExceeded)
	require.NoError(t, g.Shutdown(waitFor))

	err := g.Err()
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, context.Canceled)

	ran := false
	assert.False(t, g.Go("late", func(context.Context) error { ran = true; return nil }))
	assert.False(t, ran)
}

// TestServeListener verifies that line-oriented TCP peers relay through
// the hub and that cancelling the context stops the accept loop.
func TestServeListener(t *testing.T) {
	h := newTestHandler()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- ServeListener(ctx, ln, h, 4096, time.Second) }()

	dial := func(name string) (net.Conn, *protocol.Reader) {
		conn, err := net.Dial("tcp", ln.Addr().String())
		require.NoError(t, err)
		t.Cleanup(func() { _ = conn.Close() })
		_, err = conn.Write([]byte(name + "\n"))
		require.NoError(t, err)
		return conn, protocol.NewReader(conn, 0)
	}

	a, _ := dial("ana")
	b, rb := dial("bo")
	require.Eventually(t, func() bool { return h.Hub().Len() == 2 }, waitFor, tick)

	_, err = a.Write(protocol.MustEncode(protocol.ClearCanvas{}))
	require.NoError(t, err)
	require.NoError(t, b.SetReadDeadline(time.Now().Add(waitFor)))
	ev, err := rb.Next()
	require.NoError(t, err)
	assert.Equal(t, protocol.ClearCanvas{}, ev)

	cancel()
	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("listener did not stop")
	}
	assert.Equal(t, 0, h.Hub().Len())
}
