package auth

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/Tyrowin/collabocanvas/internal/log"
	"github.com/Tyrowin/collabocanvas/internal/protocol"
	"github.com/Tyrowin/collabocanvas/internal/server"
)

const (
	maxRequestSize = 4096
	requestTimeout = 10 * time.Second
)

// Serve answers one request per connection accepted on ln until ctx is
// cancelled. The listener is closed on return.
func (s *Service) Serve(ctx context.Context, ln net.Listener, shutdownTimeout time.Duration) error {
	g := server.NewGroup(ctx)
	logger := log.With("channel", "auth", "addr", ln.Addr().String())

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
			acceptErr = err
			break
		}
		g.Go("auth "+conn.RemoteAddr().String(), func(ctx context.Context) error {
			defer conn.Close()
			return s.ServeConn(ctx, conn)
		})
	}

	_ = ln.Close()
	if err := g.Shutdown(shutdownTimeout); err != nil {
		logger.Warn("auth requests still running after shutdown timeout", "timeout", shutdownTimeout)
	}
	return acceptErr
}

// ServeConn reads one request from conn and writes its status line.
func (s *Service) ServeConn(ctx context.Context, conn net.Conn) error {
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	_ = conn.SetDeadline(time.Now().Add(requestTimeout))

	r := protocol.NewReader(conn, maxRequestSize)
	record, err := r.ReadRecord()
	if err != nil {
		return fmt.Errorf("auth: read request: %w", err)
	}

	status := StatusBadUsername
	var req Request
	if err := json.Unmarshal(record, &req); err != nil {
		log.Debug("malformed auth request", "addr", conn.RemoteAddr().String(), "err", err)
	} else {
		status = s.Handle(ctx, req)
	}

	w := protocol.NewWriter(conn)
	if err := w.WriteRecord([]byte(strconv.Itoa(int(status)))); err != nil {
		return fmt.Errorf("auth: write reply: %w", err)
	}
	return nil
}

// Authenticate sends req to the auth channel at addr and returns the reply.
func Authenticate(ctx context.Context, addr string, req Request) (Status, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return 0, fmt.Errorf("auth: dial %s: %w", addr, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	_ = conn.SetDeadline(time.Now().Add(requestTimeout))

	data, err := json.Marshal(req)
	if err != nil {
		return 0, fmt.Errorf("auth: encode request: %w", err)
	}
	if err := protocol.NewWriter(conn).WriteRecord(data); err != nil {
		return 0, fmt.Errorf("auth: send request: %w", err)
	}

	line, err := protocol.NewReader(conn, maxRequestSize).ReadRecord()
	if err != nil {
		return 0, fmt.Errorf("auth: read reply: %w", err)
	}
	return ParseStatus(string(line))
}
