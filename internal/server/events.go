package server

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/zoobzio/clockz"
	"github.com/zoobzio/hookz"

	"github.com/Tyrowin/collabocanvas/internal/log"
)

// Lifecycle notification keys.
const (
	EventSessionJoined  hookz.Key = "session.joined"
	EventSessionLeft    hookz.Key = "session.left"
	EventCanvasSaved    hookz.Key = "canvas.saved"
	EventRecordRejected hookz.Key = "record.rejected"
)

// Notification describes one lifecycle event. Observers receive it on a
// hookz worker, never under a hub lock.
type Notification struct {
	Channel  string
	Session  string
	Username string
	Addr     string
	Detail   string
	Err      error
	At       time.Time
}

// NotifierStats counts notifications by key.
type NotifierStats struct {
	Joined   int64 `json:"joined"`
	Left     int64 `json:"left"`
	Saved    int64 `json:"saved"`
	Rejected int64 `json:"rejected"`

	QueueDepth     int64 `json:"queueDepth"`
	TasksProcessed int64 `json:"tasksProcessed"`
	TasksRejected  int64 `json:"tasksRejected"`
}

// Notifier fans lifecycle notifications out to registered observers.
// A nil *Notifier is valid and discards everything.
type Notifier struct {
	hooks *hookz.Hooks[Notification]
	clock clockz.Clock

	joined   atomic.Int64
	left     atomic.Int64
	saved    atomic.Int64
	rejected atomic.Int64
}

// NewNotifier creates a Notifier backed by a hookz service.
func NewNotifier(clock clockz.Clock, opts ...hookz.Option) *Notifier {
	if clock == nil {
		clock = clockz.RealClock
	}
	opts = append([]hookz.Option{
		hookz.WithWorkers(4),
		hookz.WithTimeout(5 * time.Second),
		hookz.WithClock(clock),
	}, opts...)
	return &Notifier{
		hooks: hookz.New[Notification](opts...),
		clock: clock,
	}
}

// Hook registers fn for key.
func (n *Notifier) Hook(key hookz.Key, fn func(context.Context, Notification) error) (hookz.Hook, error) {
	if n == nil {
		return hookz.Hook{}, hookz.ErrServiceClosed
	}
	return n.hooks.Hook(key, fn)
}

// Notify counts the notification and queues it for observers. Queue
// failures are logged, never returned.
func (n *Notifier) Notify(ctx context.Context, key hookz.Key, note Notification) {
	if n == nil {
		return
	}
	switch key {
	case EventSessionJoined:
		n.joined.Add(1)
	case EventSessionLeft:
		n.left.Add(1)
	case EventCanvasSaved:
		n.saved.Add(1)
	case EventRecordRejected:
		n.rejected.Add(1)
	}
	if note.At.IsZero() {
		note.At = n.clock.Now()
	}
	// observers outlive the emitting session
	if err := n.hooks.Emit(context.WithoutCancel(ctx), key, note); err != nil && !errors.Is(err, hookz.ErrServiceClosed) {
		log.Debug("notification dropped", "event", key, "err", err)
	}
}

// Stats returns the counters and the hookz queue metrics.
func (n *Notifier) Stats() NotifierStats {
	if n == nil {
		return NotifierStats{}
	}
	m := n.hooks.Metrics()
	return NotifierStats{
		Joined:         n.joined.Load(),
		Left:           n.left.Load(),
		Saved:          n.saved.Load(),
		Rejected:       n.rejected.Load(),
		QueueDepth:     m.QueueDepth,
		TasksProcessed: m.TasksProcessed,
		TasksRejected:  m.TasksRejected,
	}
}

// Close stops the hookz workers after queued notifications finish.
func (n *Notifier) Close() error {
	if n == nil {
		return nil
	}
	if err := n.hooks.Close(); err != nil && !errors.Is(err, hookz.ErrAlreadyClosed) {
		return err
	}
	return nil
}

// LogNotifications registers observers that log every lifecycle event.
func LogNotifications(n *Notifier) error {
	logged := map[hookz.Key]string{
		EventSessionJoined:  "session joined",
		EventSessionLeft:    "session left",
		EventCanvasSaved:    "canvas saved",
		EventRecordRejected: "record rejected",
	}
	for key, msg := range logged {
		msg := msg
		if _, err := n.Hook(key, func(_ context.Context, note Notification) error {
			args := []any{"channel", note.Channel, "session", note.Session}
			if note.Username != "" {
				args = append(args, "user", note.Username)
			}
			if note.Detail != "" {
				args = append(args, "detail", note.Detail)
			}
			if note.Err != nil {
				args = append(args, "err", note.Err)
			}
			log.Debug(msg, args...)
			return nil
		}); err != nil {
			return err
		}
	}
	return nil
}
