package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/Tyrowin/collabocanvas/internal/log"
	"github.com/Tyrowin/collabocanvas/internal/storage"
)

// Gateway serves the HTTP surface: health, WebSocket access to the hubs,
// stats and saved canvases.
type Gateway struct {
	sessions *Group
	draw     *Handler
	chat     *Handler
	store    storage.Store
	notifier *Notifier
	upgrader websocket.Upgrader

	maxRecordSize int
	writeTimeout  time.Duration
}

// NewGateway builds a Gateway. ctx bounds every WebSocket session it
// starts; store may be nil.
func NewGateway(ctx context.Context, cfg Config, draw, chat *Handler, store storage.Store, notifier *Notifier) *Gateway {
	policy := NewOriginPolicy(cfg.AllowedOrigins)
	return &Gateway{
		sessions: NewGroup(ctx),
		draw:     draw,
		chat:     chat,
		store:    store,
		notifier: notifier,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     policy.CheckOrigin,
		},
		maxRecordSize: cfg.MaxRecordSize,
		writeTimeout:  cfg.WriteTimeout,
	}
}

// Shutdown stops every WebSocket session and waits up to timeout for
// them to leave their hubs. Upgrades arriving afterwards are closed.
func (gw *Gateway) Shutdown(timeout time.Duration) error {
	return gw.sessions.Shutdown(timeout)
}

// HealthHandler provides a simple health check endpoint that returns server status.
func (gw *Gateway) HealthHandler(c *gin.Context) {
	c.String(http.StatusOK, "collabocanvas server is running")
}

// WebSocketHandler upgrades the request and runs the connection as a
// session of h's hub. A username query parameter stands in for the
// handshake line.
func (gw *Gateway) WebSocketHandler(h *Handler) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := gw.upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Warn("websocket upgrade failed", "addr", c.Request.RemoteAddr, "err", err)
			return
		}

		s := h.NewSession(NewWSConn(conn, c.Request.RemoteAddr, gw.maxRecordSize, gw.writeTimeout))
		if name := strings.TrimSpace(c.Query("username")); name != "" {
			s.setName(name)
		}

		started := gw.sessions.Go("websocket "+s.Addr(), func(ctx context.Context) error {
			err := h.Run(ctx, s)
			if err != nil && !errors.Is(err, ErrHandshake) {
				log.Debug("websocket session ended", "session", s.ID(), "err", err)
			}
			return err
		})
		if !started {
			log.Debug("refusing websocket session during shutdown", "addr", s.Addr())
			s.closeConn()
		}
	}
}

type statsResponse struct {
	Hubs          []HubStats    `json:"hubs"`
	Notifications NotifierStats `json:"notifications"`
}

// StatsHandler reports per-hub counters and notification metrics.
func (gw *Gateway) StatsHandler(c *gin.Context) {
	resp := statsResponse{Notifications: gw.notifier.Stats()}
	for _, h := range []*Handler{gw.draw, gw.chat} {
		if h != nil {
			resp.Hubs = append(resp.Hubs, h.hub.Stats())
		}
	}
	c.JSON(http.StatusOK, resp)
}

// SessionsHandler lists the sessions joined to the named channel.
func (gw *Gateway) SessionsHandler(c *gin.Context) {
	var h *Handler
	switch c.Param("channel") {
	case "draw":
		h = gw.draw
	case "chat":
		h = gw.chat
	}
	if h == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown channel"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"channel": h.hub.channel, "sessions": h.hub.Sessions()})
}

// ListCanvasesHandler lists saved canvases.
func (gw *Gateway) ListCanvasesHandler(c *gin.Context) {
	if gw.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage disabled"})
		return
	}
	names, err := gw.store.List(c.Request.Context())
	if err != nil {
		log.Warn("listing canvases failed", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"canvases": names})
}

// GetCanvasHandler returns one saved canvas.
func (gw *Gateway) GetCanvasHandler(c *gin.Context) {
	if gw.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage disabled"})
		return
	}
	name := c.Param("name")
	shapes, err := gw.store.Load(c.Request.Context(), name)
	switch {
	case errors.Is(err, storage.ErrInvalidName):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, storage.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case err != nil:
		log.Warn("loading canvas failed", "name", name, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, gin.H{"name": name, "shapes": shapes})
	}
}
