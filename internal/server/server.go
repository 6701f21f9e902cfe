package server

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"github.com/zoobzio/clockz"

	"github.com/Tyrowin/collabocanvas/internal/log"
	"github.com/Tyrowin/collabocanvas/internal/storage"
)

// Channel names.
const (
	ChannelDraw = "draw"
	ChannelChat = "chat"
)

// Server owns the draw and chat hubs and everything that feeds them.
type Server struct {
	cfg      Config
	draw     *Handler
	chat     *Handler
	store    storage.Store
	notifier *Notifier
	clock    clockz.Clock
}

// Option configures a Server.
type Option func(*Server)

// WithServerStore sets the store used for saves and the canvas routes.
func WithServerStore(store storage.Store) Option {
	return func(s *Server) { s.store = store }
}

// WithServerNotifier sets the lifecycle notifier shared by both hubs.
func WithServerNotifier(n *Notifier) Option {
	return func(s *Server) { s.notifier = n }
}

// WithServerClock sets the time source for hubs and sessions.
func WithServerClock(clock clockz.Clock) Option {
	return func(s *Server) { s.clock = clock }
}

// New builds a Server from cfg.
func New(cfg Config, opts ...Option) *Server {
	s := &Server{cfg: cfg.Normalize(), clock: clockz.RealClock}
	for _, opt := range opts {
		opt(s)
	}

	hubOpts := []HubOption{
		WithNotifier(s.notifier),
		WithAnnounceJoins(s.cfg.AnnounceJoins),
		WithClock(s.clock),
		WithSaveTimeout(s.cfg.WriteTimeout),
	}
	drawOpts := hubOpts
	if s.store != nil {
		drawOpts = append(append([]HubOption(nil), hubOpts...), WithStore(s.store))
	}

	s.draw = NewHandler(NewHub(ChannelDraw, drawOpts...), s.cfg.DrawSession())
	s.chat = NewHandler(NewHub(ChannelChat, hubOpts...), s.cfg.Session(s.cfg.ChatHandshake))
	return s
}

// Config returns the normalized configuration.
func (s *Server) Config() Config { return s.cfg }

// DrawHub returns the drawing hub.
func (s *Server) DrawHub() *Hub { return s.draw.hub }

// ChatHub returns the chat hub.
func (s *Server) ChatHub() *Hub { return s.chat.hub }

// Gateway returns an HTTP gateway whose WebSocket sessions are bound to ctx.
func (s *Server) Gateway(ctx context.Context) *Gateway {
	return NewGateway(ctx, s.cfg, s.draw, s.chat, s.store, s.notifier)
}

// Listeners are the bound sockets a Server runs on.
type Listeners struct {
	Draw net.Listener
	Chat net.Listener
	HTTP net.Listener
}

// Listen binds the configured addresses.
func (s *Server) Listen() (*Listeners, error) {
	ls := &Listeners{}
	var err error
	if ls.Draw, err = net.Listen("tcp", s.cfg.DrawAddr); err != nil {
		return nil, fmt.Errorf("listen draw %s: %w", s.cfg.DrawAddr, err)
	}
	if ls.Chat, err = net.Listen("tcp", s.cfg.ChatAddr); err != nil {
		ls.Close()
		return nil, fmt.Errorf("listen chat %s: %w", s.cfg.ChatAddr, err)
	}
	if ls.HTTP, err = net.Listen("tcp", s.cfg.HTTPAddr); err != nil {
		ls.Close()
		return nil, fmt.Errorf("listen http %s: %w", s.cfg.HTTPAddr, err)
	}
	return ls, nil
}

// Close closes every bound listener.
func (ls *Listeners) Close() {
	for _, ln := range []net.Listener{ls.Draw, ls.Chat, ls.HTTP} {
		if ln != nil {
			_ = ln.Close()
		}
	}
}

// Serve runs the TCP channels and the HTTP gateway on ls until ctx is
// cancelled, then shuts everything down within the shutdown timeout.
func (s *Server) Serve(ctx context.Context, ls *Listeners) error {
	g := NewGroup(ctx)
	timeout := s.cfg.ShutdownTimeout

	g.Go("draw listener", func(ctx context.Context) error {
		return ServeListener(ctx, ls.Draw, s.draw, s.cfg.MaxRecordSize, timeout)
	})
	g.Go("chat listener", func(ctx context.Context) error {
		return ServeListener(ctx, ls.Chat, s.chat, s.cfg.MaxRecordSize, timeout)
	})

	var (
		httpServer *http.Server
		gw         *Gateway
	)
	if ls.HTTP != nil {
		gw = s.Gateway(g.Context())
		httpServer = CreateServer(s.cfg.HTTPAddr, SetupRoutes(gw))
		g.Go("http server", func(context.Context) error {
			return StartServer(httpServer, ls.HTTP)
		})
	}

	<-g.Context().Done()
	log.Info("server shutting down")

	if httpServer != nil {
		_ = ShutdownServer(httpServer, timeout)
	}
	s.draw.hub.Shutdown()
	s.chat.hub.Shutdown()

	if gw != nil {
		if err := gw.Shutdown(timeout); err != nil {
			log.Warn("websocket sessions still running after shutdown timeout", "timeout", timeout)
		}
	}
	if err := g.Shutdown(timeout); err != nil {
		log.Warn("shutdown timeout reached, some goroutines may still be running")
		return err
	}
	return g.Err()
}
