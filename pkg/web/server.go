// Package web provides the client's status dashboard: session state, live
// connection statistics and pause/resume control.
package web

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-xrstream/pkg/hub"
	"github.com/teslashibe/go-xrstream/pkg/session"
	"github.com/teslashibe/go-xrstream/pkg/stats"
)

// Controller is the part of the session controller the dashboard drives.
type Controller interface {
	State() session.State
	Paused() bool
	SetPaused(paused bool)
}

// StatsReader yields the latest connection sample.
type StatsReader interface {
	Latest() (stats.Sample, bool)
}

// Status is the dashboard's view of the session.
type Status struct {
	State      session.State       `json:"state"`
	Reason     session.StateReason `json:"reason"`
	Since      time.Time           `json:"since"`
	Paused     bool                `json:"paused"`
	Server     string              `json:"server"`
	Dashboards int                 `json:"dashboards"`
}

// Server is the web dashboard server
type Server struct {
	app    *fiber.App
	port   string
	server string
	logger *slog.Logger

	ctl   Controller
	stats StatsReader

	// last transition seen by WatchSession
	mu     sync.RWMutex
	reason session.StateReason
	since  time.Time

	// Hubs for websocket broadcast
	statusHub *hub.Hub
	statsHub  *hub.Hub
}

// NewServer creates a dashboard for ctl on port. server is the configured
// render server, shown for reference.
func NewServer(port, server string, ctl Controller, sr StatsReader, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "web")

	s := &Server{
		port:      port,
		server:    server,
		logger:    logger,
		ctl:       ctl,
		stats:     sr,
		since:     time.Now(),
		statusHub: hub.New("status", logger),
		statsHub:  hub.New("stats", logger),
	}

	app := fiber.New(fiber.Config{
		AppName:               "xrstream dashboard",
		DisableStartupMessage: true,
	})

	// CORS for local development
	app.Use(cors.New())

	// API routes
	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/stats", s.handleStats)
	api.Post("/pause", s.handlePause)
	api.Post("/resume", s.handleResume)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	// WebSocket routes
	app.Get("/ws/stats", websocket.New(s.handleStatsWS))
	app.Get("/ws/status", websocket.New(s.handleStatusWS))

	s.app = app
	return s
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start runs the hubs and serves until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("web dashboard listening", "url", "http://localhost:"+s.port)

	go s.statusHub.Run(ctx)
	go s.statsHub.Run(ctx)
	s.publishStatus()

	errCh := make(chan error, 1)
	go func() { errCh <- s.app.Listen(":" + s.port) }()

	select {
	case <-ctx.Done():
		return s.app.Shutdown()
	case err := <-errCh:
		return err
	}
}

// PublishStats broadcasts a sample to stats subscribers.
func (s *Server) PublishStats(sample stats.Sample) {
	if err := s.statsHub.PublishJSON(sample); err != nil {
		s.logger.Warn("encode stats failed", "error", err)
	}
}

// WatchSession records and broadcasts session transitions until events is
// closed or ctx is done.
func (s *Server) WatchSession(ctx context.Context, events <-chan session.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.mu.Lock()
			s.reason = ev.Reason
			s.since = ev.At
			s.mu.Unlock()
			s.publishStatus()
		}
	}
}

func (s *Server) publishStatus() {
	if err := s.statusHub.PublishJSON(s.status()); err != nil {
		s.logger.Warn("encode status failed", "error", err)
	}
}

func (s *Server) status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Status{
		State:      s.ctl.State(),
		Reason:     s.reason,
		Since:      s.since,
		Paused:     s.ctl.Paused(),
		Server:     s.server,
		Dashboards: s.statsHub.Subscribers() + s.statusHub.Subscribers(),
	}
}
