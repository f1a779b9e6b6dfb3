package meri

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/teslashibe/go-meri/internal/config"
	"github.com/teslashibe/go-meri/pkg/audioio"
	"github.com/teslashibe/go-meri/pkg/session"
	"github.com/teslashibe/go-meri/pkg/shell"
	"github.com/teslashibe/go-meri/pkg/tools"
	"github.com/teslashibe/go-meri/pkg/transport/gemini"
	"github.com/teslashibe/go-meri/pkg/transport/genailive"
	"github.com/teslashibe/go-meri/pkg/web"
)

// App is the Meri assistant process.
type App struct {
	config Config
	logger *slog.Logger

	desktop *shell.Desktop
	tools   *tools.Dispatcher
	devices session.Devices
	dialer  session.Dialer
	manager *session.Manager
	web     *web.Server
}

// Option customises an App.
type Option func(*App)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.logger = l }
}

// WithDialer replaces the transport chosen by Config.Transport.
func WithDialer(d session.Dialer) Option {
	return func(a *App) { a.dialer = d }
}

// WithDevices replaces the audio devices chosen by Config.Audio.
func WithDevices(d session.Devices) Option {
	return func(a *App) { a.devices = d }
}

// New creates an application with the given configuration.
func New(cfg Config, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &App{config: cfg, logger: slog.Default()}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Init builds every component. Call this after New and before Run.
func (a *App) Init(ctx context.Context) error {
	a.desktop = shell.NewDesktop(a.logger)
	a.tools = tools.NewDispatcher(a.logger, tools.Builtins(a.desktop, a.desktop.AppNames())...)

	if a.devices == nil {
		a.devices = a.newDevices()
	}
	if a.dialer == nil {
		d, err := a.newDialer(ctx)
		if err != nil {
			return fmt.Errorf("transport init: %w", err)
		}
		a.dialer = d
	}

	a.manager = session.NewManager(a.config.Session(), session.Deps{
		Dialer:     a.dialer,
		Devices:    a.devices,
		Tools:      a.tools,
		Logger:     a.logger,
		OnSnapshot: a.logStatus,
	})

	a.web = web.NewServer(web.Options{
		Addr:      a.config.Addr,
		Manager:   a.manager,
		Tools:     a.tools,
		Desktop:   a.desktop,
		StaticDir: a.config.StaticDir,
		AccessLog: a.config.AccessLog,
		Logger:    a.logger,
	})

	a.logger.Info("meri initialized",
		"transport", a.config.Transport,
		"audio", a.config.Audio,
		"model", a.config.Model,
		"voice", a.config.Voice,
		"tools", len(a.tools.Names()),
		"apps", len(a.desktop.Apps()),
	)
	return nil
}

func (a *App) newDevices() *audioio.Factory {
	f := audioio.NewFactory(a.config.Audio, a.logger)
	if a.config.Audio == audioio.BackendRTP {
		f.Input.Device = a.config.RTPListen
		f.Output.Device = a.config.RTPDest
	}
	return f
}

func (a *App) newDialer(ctx context.Context) (session.Dialer, error) {
	switch a.config.Transport {
	case config.TransportGenAI:
		d, err := genailive.NewDialer(ctx, a.config.APIKey, a.logger)
		if err != nil {
			return nil, err
		}
		return d, nil
	default:
		return gemini.NewDialer(gemini.DefaultConfig(a.config.APIKey), a.logger), nil
	}
}

// logStatus logs status transitions. It runs on session goroutines and
// must stay cheap.
func (a *App) logStatus(s session.Snapshot) {
	switch s.Status {
	case session.StatusError:
		a.logger.Warn("session failed", "session_id", s.ID, "error", s.Error)
	case session.StatusConnecting, session.StatusClosed:
		a.logger.Debug("session status", "session_id", s.ID, "status", s.Status)
	}
}

// Run serves the dashboard and, with AutoStart, opens the first session.
// It blocks until ctx is cancelled or the dashboard fails.
func (a *App) Run(ctx context.Context) error {
	if a.manager == nil {
		return errors.New("meri: Run called before Init")
	}

	if a.config.AutoStart {
		if _, err := a.manager.Open(ctx); err != nil {
			// The dashboard can retry; the error snapshot is already published.
			a.logger.Warn("initial session failed", "error", err, "message", session.UserMessage(err))
		}
	}

	return a.web.Run(ctx)
}

// Manager returns the session manager.
func (a *App) Manager() *session.Manager {
	return a.manager
}

// Server returns the dashboard server.
func (a *App) Server() *web.Server {
	return a.web
}

// Shutdown closes the open session, if any.
func (a *App) Shutdown() {
	if a.manager == nil {
		return
	}
	if err := a.manager.Close(); err != nil && !errors.Is(err, session.ErrNoSession) {
		a.logger.Warn("session closed with errors", "error", err)
	}
	a.logger.Info("meri stopped")
}
