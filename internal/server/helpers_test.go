package server

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/zoobzio/clockz"

	"github.com/Tyrowin/collabocanvas/internal/protocol"
)

const (
	testOriginURL = "http://localhost:8080"
	waitFor       = 2 * time.Second
	tick          = 5 * time.Millisecond
)

// manualClock is a real clock whose Now only moves when the test says so.
type manualClock struct {
	clockz.Clock
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock {
	// start ahead of real time so write deadlines derived from it stay in
	// the future while the test runs
	return &manualClock{Clock: clockz.RealClock, now: time.Now().Add(time.Hour)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testSessionConfig() SessionConfig {
	return SessionConfig{
		Handshake:     true,
		MaxRecordSize: 4096,
		RateLimit:     RateLimitConfig{Burst: 1000, RefillInterval: time.Second},
		WriteTimeout:  time.Second,
		SendQueueSize: 64,
	}
}

// nopConn is a transport that is never read from or written to; tests
// using it inspect the session queue directly.
type nopConn struct{ addr string }

func (c nopConn) ReadRecord() ([]byte, error)      { select {} }
func (c nopConn) WriteRecord([]byte) error         { return nil }
func (c nopConn) SetReadDeadline(time.Time) error  { return nil }
func (c nopConn) SetWriteDeadline(time.Time) error { return nil }
func (c nopConn) RemoteAddr() string               { return c.addr }
func (c nopConn) Close() error                     { return nil }

// queuedSession builds a session whose pump never runs.
func queuedSession(h *Handler, name string) *Session {
	s := h.NewSession(nopConn{addr: "test:" + name})
	s.setName(name)
	return s
}

// drain returns every record currently queued for s, decoded.
func drain(t *testing.T, s *Session) []protocol.Event {
	t.Helper()
	var events []protocol.Event
	for {
		select {
		case rec := <-s.send:
			ev, err := protocol.Decode(rec)
			require.NoError(t, err)
			events = append(events, ev)
		default:
			return events
		}
	}
}

// peer is the client end of a piped session.
type peer struct {
	t    *testing.T
	conn net.Conn
	r    *protocol.Reader
	w    *protocol.Writer
	done chan error
	sess *Session
}

// connectPeer starts h on one end of a pipe and performs the handshake
// from the other end.
func connectPeer(t *testing.T, ctx context.Context, h *Handler, name string) *peer {
	t.Helper()

	serverSide, clientSide := net.Pipe()
	p := &peer{
		t:    t,
		conn: clientSide,
		r:    protocol.NewReader(clientSide, 0),
		w:    protocol.NewWriter(clientSide),
		done: make(chan error, 1),
	}
	p.sess = h.NewSession(NewLineConn(serverSide, h.cfg.MaxRecordSize))

	before := h.hub.Len()
	go func() { p.done <- h.Run(ctx, p.sess) }()

	if h.cfg.Handshake {
		p.sendRaw(name)
	}
	require.Eventually(t, func() bool { return h.hub.Len() > before }, waitFor, tick)
	t.Cleanup(func() { _ = clientSide.Close() })
	return p
}

func (p *peer) send(ev protocol.Event) {
	p.t.Helper()
	require.NoError(p.t, p.conn.SetWriteDeadline(time.Now().Add(waitFor)))
	require.NoError(p.t, p.w.WriteEvent(ev))
}

func (p *peer) sendRaw(line string) {
	p.t.Helper()
	require.NoError(p.t, p.conn.SetWriteDeadline(time.Now().Add(waitFor)))
	require.NoError(p.t, p.w.WriteRecord([]byte(line)))
}

func (p *peer) next() protocol.Event {
	p.t.Helper()
	require.NoError(p.t, p.conn.SetReadDeadline(time.Now().Add(waitFor)))
	ev, err := p.r.Next()
	require.NoError(p.t, err)
	return ev
}

// expectSilence asserts that nothing arrives within d.
func (p *peer) expectSilence(d time.Duration) {
	p.t.Helper()
	require.NoError(p.t, p.conn.SetReadDeadline(time.Now().Add(d)))
	ev, err := p.r.Next()
	require.Error(p.t, err, "unexpected event %#v", ev)
	var ne net.Error
	require.ErrorAs(p.t, err, &ne)
	require.True(p.t, ne.Timeout())
}

func (p *peer) close() {
	_ = p.conn.Close()
}

func (p *peer) wait() error {
	p.t.Helper()
	select {
	case err := <-p.done:
		return err
	case <-time.After(waitFor):
		p.t.Fatal("session did not finish")
		return nil
	}
}
