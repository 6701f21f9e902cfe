package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/Tyrowin/collabocanvas/internal/log"
	"github.com/Tyrowin/collabocanvas/internal/protocol"
)

// ErrNoName is returned by Dial when the channel expects a handshake and
// no display name was given.
var ErrNoName = errors.New("client: display name required for handshake")

// ReconnectHook is called once when the inbound stream ends for a reason
// other than cancellation. err is io.EOF when the server hung up cleanly.
// Whether and when to redial is up to the caller.
type ReconnectHook func(err error)

// DialOption configures a Conn.
type DialOption func(*Conn)

// WithReconnectHook registers fn to run when the stream ends.
func WithReconnectHook(fn ReconnectHook) DialOption {
	return func(c *Conn) { c.onEnd = fn }
}

// WithoutHandshake skips the display name line, for channels whose server
// has the handshake turned off.
func WithoutHandshake() DialOption {
	return func(c *Conn) { c.handshake = false }
}

// WithMaxRecordSize caps inbound records.
func WithMaxRecordSize(n int) DialOption {
	return func(c *Conn) { c.maxRecord = n }
}

// Conn is a client connection to one canvas channel.
type Conn struct {
	conn      net.Conn
	r         *protocol.Reader
	w         *protocol.Writer
	name      string
	maxRecord int
	handshake bool
	onEnd     ReconnectHook
}

// Dial connects to addr and sends name as the handshake line. Without
// the handshake the server would take the first record as the name, so an
// empty name fails with ErrNoName unless WithoutHandshake is given.
func Dial(ctx context.Context, addr, name string, opts ...DialOption) (*Conn, error) {
	c := &Conn{name: strings.TrimSpace(name), maxRecord: protocol.DefaultMaxRecordSize, handshake: true}
	for _, opt := range opts {
		opt(c)
	}
	if c.handshake && c.name == "" {
		return nil, ErrNoName
	}
	if strings.ContainsAny(c.name, "\r\n") {
		return nil, fmt.Errorf("client: display name %q spans lines", c.name)
	}

	var d net.Dialer
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("client: dial %s: %w", addr, err)
	}
	c.conn = nc
	c.r = protocol.NewReader(nc, c.maxRecord)
	c.w = protocol.NewWriter(nc)

	if c.handshake {
		if err := c.w.WriteRecord([]byte(c.name)); err != nil {
			_ = nc.Close()
			return nil, fmt.Errorf("client: handshake: %w", err)
		}
	}
	return c, nil
}

// Name returns the display name sent in the handshake.
func (c *Conn) Name() string { return c.name }

// Send writes one event. It is safe to call from any goroutine.
func (c *Conn) Send(ev protocol.Event) error {
	return c.w.WriteEvent(ev)
}

// Listen calls fn for every inbound event until the stream ends or ctx is
// cancelled. Malformed and oversized records are logged and skipped.
func (c *Conn) Listen(ctx context.Context, fn func(protocol.Event)) error {
	stop := context.AfterFunc(ctx, func() { _ = c.conn.Close() })
	defer stop()

	for {
		ev, err := c.r.Next()
		if err == nil {
			fn(ev)
			continue
		}

		var decodeErr *protocol.DecodeError
		switch {
		case errors.As(err, &decodeErr):
			log.Warn("skipping malformed record", "err", err)
			continue
		case errors.Is(err, protocol.ErrRecordTooLong):
			log.Warn("skipping oversized record", "limit", c.maxRecord)
			continue
		}

		if ctx.Err() != nil {
			return nil
		}
		if c.onEnd != nil {
			c.onEnd(err)
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("client: receive: %w", err)
	}
}

// Close closes the connection.
func (c *Conn) Close() error {
	return c.conn.Close()
}

// Pump feeds inbound events from c into r on loop until the stream ends.
func Pump(ctx context.Context, c *Conn, loop *Loop, r *Reconciler) error {
	return c.Listen(ctx, func(ev protocol.Event) {
		if err := loop.Post(ctx, func() { r.Apply(ev) }); err != nil {
			log.Debug("dropping inbound event", "kind", ev.Kind(), "err", err)
		}
	})
}
