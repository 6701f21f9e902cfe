package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/zoobzio/clockz"

	"github.com/Tyrowin/collabocanvas/internal/log"
	"github.com/Tyrowin/collabocanvas/internal/protocol"
)

var (
	// ErrHandshake is returned when a peer disconnects or misbehaves
	// before sending its display name.
	ErrHandshake = errors.New("handshake failed")
	// ErrSessionClosed is returned when enqueueing to a finished session.
	ErrSessionClosed = errors.New("session closed")
	// ErrQueueTimeout is returned when a recipient's queue stayed full for
	// the whole write timeout.
	ErrQueueTimeout = errors.New("send queue full")
)

const (
	pingPeriod    = 54 * time.Second
	maxNameLength = 32
)

// State is a session lifecycle stage.
type State int32

// Session states, in order.
const (
	StateConnecting State = iota
	StateActive
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// SessionConfig holds the per-connection settings of one channel.
type SessionConfig struct {
	Handshake     bool
	MaxRecordSize int
	RateLimit     RateLimitConfig
	IdleTimeout   time.Duration
	WriteTimeout  time.Duration
	SendQueueSize int
}

// Session is one connected peer. Records bound for it go through a
// bounded queue drained by its write pump.
type Session struct {
	id      string
	conn    Conn
	addr    string
	cfg     SessionConfig
	clock   clockz.Clock
	log     *slog.Logger
	limiter *tokenBucket

	mu       sync.RWMutex
	name     string
	joinedAt time.Time

	state     atomic.Int32
	send      chan []byte
	done      chan struct{}
	doneOnce  sync.Once
	pumpDone  chan struct{}
	closeOnce sync.Once
}

// SessionInfo is a point-in-time view of a session.
type SessionInfo struct {
	ID       string    `json:"id"`
	Name     string    `json:"name,omitempty"`
	Addr     string    `json:"addr"`
	State    string    `json:"state"`
	JoinedAt time.Time `json:"joinedAt"`
}

func newSession(conn Conn, cfg SessionConfig, clock clockz.Clock, channel string) *Session {
	if cfg.SendQueueSize <= 0 {
		cfg.SendQueueSize = defaultSendQueueSize
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	id := uuid.NewString()
	addr := conn.RemoteAddr()
	s := &Session{
		id:       id,
		conn:     conn,
		addr:     addr,
		cfg:      cfg,
		clock:    clock,
		log:      log.With("channel", channel, "session", id, "addr", addr),
		limiter:  newTokenBucket(cfg.RateLimit, clock),
		send:     make(chan []byte, cfg.SendQueueSize),
		done:     make(chan struct{}),
		pumpDone: make(chan struct{}),
	}
	s.state.Store(int32(StateConnecting))
	return s
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// Addr returns the peer address.
func (s *Session) Addr() string { return s.addr }

// State returns the current lifecycle stage.
func (s *Session) State() State { return State(s.state.Load()) }

func (s *Session) setState(st State) { s.state.Store(int32(st)) }

// Name returns the display name, empty until the handshake completes.
func (s *Session) Name() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.name
}

func (s *Session) setName(name string) {
	s.mu.Lock()
	s.name = name
	s.mu.Unlock()
}

// Info returns a snapshot for reporting.
func (s *Session) Info() SessionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return SessionInfo{
		ID:       s.id,
		Name:     s.name,
		Addr:     s.addr,
		State:    s.State().String(),
		JoinedAt: s.joinedAt,
	}
}

// Enqueue queues record for delivery, waiting at most the write timeout
// for room in the queue.
func (s *Session) Enqueue(record []byte) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}

	select {
	case s.send <- record:
		return nil
	default:
	}

	select {
	case s.send <- record:
		return nil
	case <-s.done:
		return ErrSessionClosed
	case <-s.clock.After(s.cfg.WriteTimeout):
		return ErrQueueTimeout
	}
}

// Kick closes the transport, which ends the read loop.
func (s *Session) Kick() {
	s.closeConn()
}

func (s *Session) markDone() {
	s.doneOnce.Do(func() { close(s.done) })
}

func (s *Session) closeConn() {
	s.closeOnce.Do(func() {
		if err := s.conn.Close(); err != nil && !isExpectedCloseError(err) {
			s.log.Warn("error closing connection", "err", err)
		}
	})
}

// handshake reads the display name: either a bare line or a JSON object
// with a username field.
func (s *Session) handshake() (string, error) {
	rec, err := s.conn.ReadRecord()
	if err != nil {
		return "", err
	}
	rec = bytes.TrimSpace(rec)

	name := string(rec)
	if len(rec) > 0 && rec[0] == '{' {
		var hello struct {
			Username string `json:"username"`
		}
		if err := json.Unmarshal(rec, &hello); err != nil {
			return "", fmt.Errorf("bad handshake record: %w", err)
		}
		name = hello.Username
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("empty display name")
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		name = string([]rune(name)[:maxNameLength])
	}
	return name, nil
}

// checkRateLimit reports whether the next record may be processed.
func (s *Session) checkRateLimit() bool {
	if s.limiter == nil {
		return true
	}
	ok, wait := s.limiter.take()
	if !ok {
		s.log.Warn("rate limit exceeded; discarding record",
			"burst", s.cfg.RateLimit.Burst, "retryIn", wait)
	}
	return ok
}

func (s *Session) writePump() {
	defer close(s.pumpDone)

	var (
		ping <-chan time.Time
		p    pinger
	)
	if pc, ok := s.conn.(pinger); ok {
		ticker := s.clock.NewTicker(pingPeriod)
		defer ticker.Stop()
		ping = ticker.C()
		p = pc
	}

	for {
		select {
		case record := <-s.send:
			if !s.write(record) {
				s.markDone()
				s.closeConn()
				return
			}
		case <-ping:
			if err := p.Ping(); err != nil {
				s.log.Debug("ping failed", "err", err)
				s.markDone()
				s.closeConn()
				return
			}
		case <-s.done:
			s.drainQueue()
			return
		}
	}
}

// drainQueue flushes whatever is already queued.
func (s *Session) drainQueue() {
	for {
		select {
		case record := <-s.send:
			if !s.write(record) {
				return
			}
		default:
			return
		}
	}
}

func (s *Session) write(record []byte) bool {
	if err := s.conn.SetWriteDeadline(s.clock.Now().Add(s.cfg.WriteTimeout)); err != nil {
		s.log.Debug("error setting write deadline", "err", err)
	}
	if err := s.conn.WriteRecord(record); err != nil {
		if !isExpectedCloseError(err) {
			s.log.Warn("write failed", "err", err)
		}
		return false
	}
	return true
}

// finish stops the write pump after it flushes the queue, bounded by the
// write timeout, and closes the transport.
func (s *Session) finish() {
	s.markDone()
	select {
	case <-s.pumpDone:
	case <-s.clock.After(s.cfg.WriteTimeout):
		s.log.Warn("timed out flushing send queue")
	}
	s.closeConn()
}

// Handler runs the per-connection state machine for one hub.
type Handler struct {
	hub   *Hub
	cfg   SessionConfig
	clock clockz.Clock
}

// NewHandler returns a Handler feeding hub.
func NewHandler(hub *Hub, cfg SessionConfig) *Handler {
	return &Handler{hub: hub, cfg: cfg, clock: hub.clock}
}

// Hub returns the hub sessions are registered with.
func (h *Handler) Hub() *Hub { return h.hub }

// NewSession wraps conn in a session in the Connecting state.
func (h *Handler) NewSession(conn Conn) *Session {
	return newSession(conn, h.cfg, h.clock, h.hub.channel)
}

// Serve runs conn until the peer disconnects or ctx is cancelled.
func (h *Handler) Serve(ctx context.Context, conn Conn) error {
	return h.Run(ctx, h.NewSession(conn))
}

// Run drives s through Connecting, Active, Closing and Closed. A handshake
// failure goes straight to Closed without touching the hub. Sessions that
// already carry a name skip the handshake.
func (h *Handler) Run(ctx context.Context, s *Session) error {
	stop := context.AfterFunc(ctx, s.closeConn)
	defer stop()

	if h.cfg.Handshake && s.Name() == "" {
		name, err := s.handshake()
		if err != nil {
			s.closeConn()
			s.setState(StateClosed)
			if errors.Is(err, io.EOF) {
				s.log.Debug("peer left before handshake")
			} else {
				s.log.Warn("handshake failed", "err", err)
			}
			return fmt.Errorf("%w: %w", ErrHandshake, err)
		}
		s.setName(name)
	}

	s.mu.Lock()
	s.joinedAt = s.clock.Now()
	s.mu.Unlock()
	s.setState(StateActive)
	h.hub.Join(s)

	go s.writePump()

	err := h.readLoop(ctx, s)

	s.setState(StateClosing)
	h.hub.Leave(s)
	s.finish()
	s.setState(StateClosed)

	if ctx.Err() != nil || isExpectedCloseError(err) {
		return nil
	}
	return err
}

func (h *Handler) readLoop(ctx context.Context, s *Session) error {
	for {
		if h.cfg.IdleTimeout > 0 {
			if err := s.conn.SetReadDeadline(s.clock.Now().Add(h.cfg.IdleTimeout)); err != nil {
				s.log.Debug("error setting read deadline", "err", err)
			}
		}

		record, err := s.conn.ReadRecord()
		if errors.Is(err, protocol.ErrRecordTooLong) {
			s.log.Warn("record exceeded maximum size", "limit", h.cfg.MaxRecordSize)
			h.hub.reject(s, "record too long", err)
			continue
		}
		if err != nil {
			if !isExpectedCloseError(err) {
				s.log.Info("read error", "err", err)
			}
			return err
		}

		if !s.checkRateLimit() {
			h.hub.reject(s, "rate limited", nil)
			continue
		}

		ev, err := protocol.Decode(record)
		if err != nil {
			s.log.Warn("invalid record", "err", err)
			h.hub.reject(s, "decode error", err)
			continue
		}

		h.hub.Dispatch(ctx, s, record, ev)
	}
}
