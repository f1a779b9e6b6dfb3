// Package web serves the Meri dashboard: session control, tool triggers,
// metrics and a live status websocket.
package web

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-meri/pkg/hub"
	"github.com/teslashibe/go-meri/pkg/session"
	"github.com/teslashibe/go-meri/pkg/shell"
)

const shutdownTimeout = 5 * time.Second

// Desktop is the shell state the dashboard shows.
type Desktop interface {
	State() shell.State
	OnChange(fn func(shell.State))
}

// Options configures a Server.
type Options struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string

	Manager *session.Manager
	Tools   session.ToolDispatcher

	// Desktop is optional; without it /api/desktop returns 404.
	Desktop Desktop

	// StaticDir, if set, is served at /.
	StaticDir string

	// AccessLog enables per-request logging.
	AccessLog bool

	Logger *slog.Logger
}

// Server is the dashboard HTTP server.
type Server struct {
	app     *fiber.App
	addr    string
	manager *session.Manager
	tools   session.ToolDispatcher
	desktop Desktop
	status  *hub.Hub
	logger  *slog.Logger
}

// NewServer builds the routes. Call Run to serve.
func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	s := &Server{
		addr:    opts.Addr,
		manager: opts.Manager,
		tools:   opts.Tools,
		desktop: opts.Desktop,
		status:  hub.New("status", opts.Logger),
		logger:  opts.Logger.With("component", "web"),
	}

	app := fiber.New(fiber.Config{
		AppName:               "Meri Dashboard",
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})

	app.Use(recover.New())
	app.Use(cors.New())
	if opts.AccessLog {
		app.Use(logger.New(logger.Config{
			Format: "${time} ${status} ${method} ${path} ${latency}\n",
		}))
	}
	if opts.StaticDir != "" {
		app.Static("/", opts.StaticDir)
	}

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Post("/session", s.handleOpenSession)
	api.Delete("/session", s.handleCloseSession)
	api.Get("/tools", s.handleListTools)
	api.Post("/tools/:name", s.handleTriggerTool)
	api.Get("/metrics", s.handleMetrics)
	api.Get("/desktop", s.handleDesktop)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/status", websocket.New(s.handleStatusWS))

	if s.desktop != nil {
		s.desktop.OnChange(func(st shell.State) {
			if err := s.status.Publish(hub.TopicDesktop, st); err != nil && !errors.Is(err, hub.ErrNotRunning) {
				s.logger.Warn("publish desktop state", "error", err)
			}
		})
	}

	s.app = app
	return s
}

// App exposes the fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Hub returns the status hub.
func (s *Server) Hub() *hub.Hub {
	return s.status
}

// Run starts the status hub and serves until ctx is done or the listener
// fails.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go s.status.Run(ctx)

	snaps, unsubscribe := s.manager.Subscribe(32)
	defer unsubscribe()
	go s.forward(snaps)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.app.Listen(s.addr)
	}()
	s.logger.Info("dashboard listening", "addr", s.addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info("dashboard shutting down")
		return s.app.ShutdownWithTimeout(shutdownTimeout)
	}
}

// forward publishes manager snapshots until the subscription closes.
func (s *Server) forward(snaps <-chan session.Snapshot) {
	for snap := range snaps {
		if err := s.status.Publish(hub.TopicSnapshot, snap); err != nil && !errors.Is(err, hub.ErrNotRunning) {
			s.logger.Warn("publish snapshot", "error", err)
		}
	}
}

// Shutdown stops the server immediately.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
