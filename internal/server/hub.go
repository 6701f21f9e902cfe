package server

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zoobzio/clockz"

	"github.com/Tyrowin/collabocanvas/internal/log"
	"github.com/Tyrowin/collabocanvas/internal/protocol"
	"github.com/Tyrowin/collabocanvas/internal/storage"
)

const defaultSaveTimeout = 10 * time.Second

// Hub manages the sessions of one logical channel and relays records
// between them. A single mutex serializes joins, leaves and every
// broadcast iteration, so no broadcast sees a half-updated member set.
type Hub struct {
	channel  string
	mu       sync.Mutex
	sessions map[*Session]struct{}

	store         storage.Store
	notifier      *Notifier
	announceJoins bool
	saveTimeout   time.Duration
	clock         clockz.Clock
	log           *slog.Logger

	delivered atomic.Int64
	dropped   atomic.Int64
	rejected  atomic.Int64
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithStore enables the save path. Without a store every save is answered
// with an error status.
func WithStore(store storage.Store) HubOption {
	return func(h *Hub) { h.store = store }
}

// WithNotifier sends lifecycle notifications to n.
func WithNotifier(n *Notifier) HubOption {
	return func(h *Hub) { h.notifier = n }
}

// WithAnnounceJoins controls whether Join broadcasts a user_joined record.
func WithAnnounceJoins(announce bool) HubOption {
	return func(h *Hub) { h.announceJoins = announce }
}

// WithClock sets the time source for the hub and its sessions.
func WithClock(clock clockz.Clock) HubOption {
	return func(h *Hub) { h.clock = clock }
}

// WithSaveTimeout bounds a single store write.
func WithSaveTimeout(d time.Duration) HubOption {
	return func(h *Hub) {
		if d > 0 {
			h.saveTimeout = d
		}
	}
}

// NewHub creates a hub for channel.
func NewHub(channel string, opts ...HubOption) *Hub {
	h := &Hub{
		channel:       channel,
		sessions:      make(map[*Session]struct{}),
		announceJoins: true,
		saveTimeout:   defaultSaveTimeout,
		clock:         clockz.RealClock,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.clock == nil {
		h.clock = clockz.RealClock
	}
	h.log = log.With("channel", channel)
	return h
}

// Channel returns the hub's channel name.
func (h *Hub) Channel() string { return h.channel }

// Join adds s and, if enabled, announces it to everyone else.
func (h *Hub) Join(s *Session) {
	if s == nil {
		h.log.Warn("received nil session registration; skipping")
		return
	}

	name := s.Name()

	h.mu.Lock()
	h.sessions[s] = struct{}{}
	count := len(h.sessions)
	if h.announceJoins && name != "" {
		h.broadcastLocked(protocol.MustEncode(protocol.UserJoined{Username: name}), s)
	}
	h.mu.Unlock()

	h.log.Info("session joined", "session", s.ID(), "user", name, "addr", s.Addr(), "sessions", count)
	h.notifier.Notify(context.Background(), EventSessionJoined, Notification{
		Channel: h.channel, Session: s.ID(), Username: name, Addr: s.Addr(),
	})
}

// Leave removes s and announces its departure. It reports whether s was
// a member.
func (h *Hub) Leave(s *Session) bool {
	if s == nil {
		return false
	}

	name := s.Name()

	h.mu.Lock()
	if _, ok := h.sessions[s]; !ok {
		h.mu.Unlock()
		return false
	}
	delete(h.sessions, s)
	count := len(h.sessions)
	h.broadcastLocked(protocol.MustEncode(protocol.UserLeft{Username: name}), s)
	h.mu.Unlock()

	h.log.Info("session left", "session", s.ID(), "user", name, "sessions", count)
	h.notifier.Notify(context.Background(), EventSessionLeft, Notification{
		Channel: h.channel, Session: s.ID(), Username: name, Addr: s.Addr(),
	})
	return true
}

// Broadcast delivers record to every session except sender and returns
// the number of sessions it was queued for. A recipient whose queue stays
// full is skipped.
func (h *Hub) Broadcast(record []byte, sender *Session) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.broadcastLocked(record, sender)
}

func (h *Hub) broadcastLocked(record []byte, sender *Session) int {
	delivered := 0
	for s := range h.sessions {
		if s == sender {
			continue
		}
		if err := s.Enqueue(record); err != nil {
			h.dropped.Add(1)
			h.log.Warn("delivery failed", "session", s.ID(), "err", err)
			continue
		}
		delivered++
	}
	h.delivered.Add(int64(delivered))
	return delivered
}

// Dispatch routes one decoded record from sender. Saves go to the store
// with a status back to sender only. Presence and status records from
// peers are dropped since only the hub produces those. Everything else
// is relayed verbatim, except chat lines, which are stamped with the
// sender's display name when they carry none.
func (h *Hub) Dispatch(ctx context.Context, sender *Session, record []byte, ev protocol.Event) int {
	switch e := ev.(type) {
	case protocol.SaveRequest:
		h.save(ctx, sender, e)
		return 0
	case protocol.SaveStatus, protocol.UserJoined, protocol.UserLeft:
		h.log.Debug("dropping server-only record from peer", "kind", ev.Kind())
		return 0
	case protocol.ChatMessage:
		if e.Username == "" && sender != nil && sender.Name() != "" {
			e.Username = sender.Name()
			record = protocol.MustEncode(e)
		}
	}
	return h.Broadcast(record, sender)
}

func (h *Hub) save(ctx context.Context, sender *Session, req protocol.SaveRequest) {
	status := protocol.SaveStatus{
		Status:  protocol.StatusSuccess,
		Message: fmt.Sprintf("saved %d shapes to %s", len(req.Shapes), req.FileName),
	}

	var err error
	if h.store == nil {
		err = fmt.Errorf("saving is not enabled on channel %s", h.channel)
	} else {
		sctx, cancel := h.clock.WithTimeout(ctx, h.saveTimeout)
		err = h.store.Save(sctx, req.FileName, req.Shapes)
		cancel()
	}

	note := Notification{Channel: h.channel, Detail: req.FileName}
	if sender != nil {
		note.Session, note.Username, note.Addr = sender.ID(), sender.Name(), sender.Addr()
	}

	if err != nil {
		status = protocol.SaveStatus{Status: protocol.StatusError, Message: err.Error()}
		h.log.Warn("save failed", "file", req.FileName, "err", err)
		note.Err = err
	} else {
		h.log.Info("canvas saved", "file", req.FileName, "shapes", len(req.Shapes))
		h.notifier.Notify(ctx, EventCanvasSaved, note)
	}

	if sender == nil {
		return
	}
	if err := sender.Enqueue(protocol.MustEncode(status)); err != nil {
		h.log.Warn("could not deliver save status", "session", sender.ID(), "err", err)
	}
}

func (h *Hub) reject(s *Session, detail string, err error) {
	h.rejected.Add(1)
	h.notifier.Notify(context.Background(), EventRecordRejected, Notification{
		Channel: h.channel, Session: s.ID(), Username: s.Name(), Addr: s.Addr(),
		Detail: detail, Err: err,
	})
}

// Len returns the number of joined sessions.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Sessions returns a snapshot of the joined sessions ordered by join time.
func (h *Hub) Sessions() []SessionInfo {
	h.mu.Lock()
	infos := make([]SessionInfo, 0, len(h.sessions))
	for s := range h.sessions {
		infos = append(infos, s.Info())
	}
	h.mu.Unlock()

	sort.Slice(infos, func(i, j int) bool {
		if infos[i].JoinedAt.Equal(infos[j].JoinedAt) {
			return infos[i].ID < infos[j].ID
		}
		return infos[i].JoinedAt.Before(infos[j].JoinedAt)
	})
	return infos
}

// HubStats summarizes a hub for the stats endpoint.
type HubStats struct {
	Channel   string `json:"channel"`
	Sessions  int    `json:"sessions"`
	Delivered int64  `json:"delivered"`
	Dropped   int64  `json:"dropped"`
	Rejected  int64  `json:"rejected"`
}

// Stats returns the hub's counters.
func (h *Hub) Stats() HubStats {
	return HubStats{
		Channel:   h.channel,
		Sessions:  h.Len(),
		Delivered: h.delivered.Load(),
		Dropped:   h.dropped.Load(),
		Rejected:  h.rejected.Load(),
	}
}

// Shutdown closes every session's transport. Each session then leaves
// the hub through its own Closing path.
func (h *Hub) Shutdown() {
	h.log.Info("shutting down all sessions")

	h.mu.Lock()
	sessions := make([]*Session, 0, len(h.sessions))
	for s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.Unlock()

	for _, s := range sessions {
		s.Kick()
	}

	h.log.Info("closed session connections", "count", len(sessions))
}
