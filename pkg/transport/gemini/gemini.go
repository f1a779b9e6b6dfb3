// Package gemini connects sessions to the Gemini Live BidiGenerateContent
// endpoint over a raw websocket.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-meri/internal/httpc"
	"github.com/teslashibe/go-meri/pkg/protocol"
	"github.com/teslashibe/go-meri/pkg/session"
)

// DefaultURL is the Gemini Live websocket endpoint.
const DefaultURL = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

var (
	// ErrMissingAPIKey is returned when no API key is configured.
	ErrMissingAPIKey = errors.New("gemini: API key is required")

	// ErrMissingURL is returned when no endpoint is configured.
	ErrMissingURL = errors.New("gemini: URL is required")

	// ErrClosed is returned by Send after Close.
	ErrClosed = errors.New("gemini: connection closed")
)

// Config holds connection settings.
type Config struct {
	APIKey string

	// URL overrides the endpoint, mainly for tests.
	URL string

	HandshakeTimeout time.Duration

	// SetupTimeout bounds the wait for setupComplete.
	SetupTimeout time.Duration

	// WriteTimeout bounds a send whose context has no deadline.
	WriteTimeout time.Duration
}

// DefaultConfig returns a config for the public endpoint.
func DefaultConfig(apiKey string) Config {
	return Config{
		APIKey:           apiKey,
		URL:              DefaultURL,
		HandshakeTimeout: 10 * time.Second,
		SetupTimeout:     10 * time.Second,
		WriteTimeout:     5 * time.Second,
	}
}

// Validate checks that the configuration is valid.
func (c Config) Validate() error {
	if c.APIKey == "" {
		return ErrMissingAPIKey
	}
	if c.URL == "" {
		return ErrMissingURL
	}
	return nil
}

// Dialer opens Gemini Live connections for sessions.
type Dialer struct {
	cfg    Config
	logger *slog.Logger
}

// NewDialer creates a Dialer.
func NewDialer(cfg Config, logger *slog.Logger) *Dialer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dialer{cfg: cfg, logger: logger}
}

// Dial implements session.Dialer.
func (d *Dialer) Dial(ctx context.Context, opts protocol.SetupOptions) (session.Transport, error) {
	c, err := Dial(ctx, d.cfg, opts, d.logger)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Conn is an open Gemini Live session.
type Conn struct {
	ws     *websocket.Conn
	cfg    Config
	logger *slog.Logger

	wsMu sync.Mutex // serialises writes

	mu      sync.Mutex
	handler func(protocol.Inbound)
	closed  bool

	startOnce sync.Once
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// Dial connects, sends the setup message and waits for setupComplete.
func Dial(ctx context.Context, cfg Config, opts protocol.SetupOptions, logger *slog.Logger) (*Conn, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	u := cfg.URL + "?key=" + url.QueryEscape(cfg.APIKey)
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		NetDialContext:   httpc.Dialer().DialContext,
		HandshakeTimeout: cfg.HandshakeTimeout,
	}

	ws, resp, err := dialer.DialContext(ctx, u, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("gemini: connect: %w (HTTP %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("gemini: connect: %w", err)
	}

	c := &Conn{ws: ws, cfg: cfg, logger: logger}

	if err := c.writeJSON(ctx, protocol.NewSetup(opts)); err != nil {
		ws.Close()
		return nil, fmt.Errorf("gemini: send setup: %w", err)
	}
	if err := c.awaitSetup(ctx); err != nil {
		ws.Close()
		return nil, err
	}

	logger.Info("gemini live connected", "model", opts.Model, "voice", opts.Voice, "tools", len(opts.Functions))
	return c, nil
}

// awaitSetup reads until setupComplete. Anything else before it is ignored.
// SetupTimeout bounds the read; ctx closes the socket when done.
func (c *Conn) awaitSetup(ctx context.Context) error {
	if c.cfg.SetupTimeout > 0 {
		c.ws.SetReadDeadline(time.Now().Add(c.cfg.SetupTimeout))
		defer c.ws.SetReadDeadline(time.Time{})
	}

	stop := context.AfterFunc(ctx, func() { c.ws.Close() })
	defer stop()

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("gemini: await setup: %w", ctx.Err())
			}
			return fmt.Errorf("gemini: await setup: %w", err)
		}

		msg, err := protocol.ParseServerMessage(data)
		if err != nil {
			c.logger.Warn("gemini: ignoring unparseable message", "error", err)
			continue
		}
		if msg.SetupComplete != nil {
			return nil
		}
	}
}

// OnMessage registers the handler and starts reading.
func (c *Conn) OnMessage(fn func(protocol.Inbound)) {
	c.mu.Lock()
	c.handler = fn
	c.mu.Unlock()

	c.startOnce.Do(func() {
		c.wg.Add(1)
		go c.readLoop()
	})
}

func (c *Conn) readLoop() {
	defer c.wg.Done()

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if c.isClosed() {
				return
			}
			c.emit(protocol.NewErrorEvent(fmt.Errorf("gemini: read: %w", err)))
			return
		}

		msg, err := protocol.ParseServerMessage(data)
		if err != nil {
			c.logger.Warn("gemini: ignoring unparseable message", "error", err)
			continue
		}
		for _, ev := range msg.Events() {
			c.emit(ev)
		}
	}
}

func (c *Conn) emit(ev protocol.Inbound) {
	c.mu.Lock()
	fn := c.handler
	c.mu.Unlock()
	if fn != nil {
		fn(ev)
	}
}

// Send writes one outbound message.
func (c *Conn) Send(ctx context.Context, msg protocol.Outbound) error {
	if c.isClosed() {
		return ErrClosed
	}
	return c.writeJSON(ctx, msg)
}

func (c *Conn) writeJSON(ctx context.Context, v any) error {
	c.wsMu.Lock()
	defer c.wsMu.Unlock()

	deadline, ok := ctx.Deadline()
	if !ok && c.cfg.WriteTimeout > 0 {
		deadline = time.Now().Add(c.cfg.WriteTimeout)
	}
	c.ws.SetWriteDeadline(deadline)
	return c.ws.WriteJSON(v)
}

func (c *Conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close sends a close frame, closes the socket and waits for the reader.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()

		c.wsMu.Lock()
		c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.wsMu.Unlock()

		err = c.ws.Close()
		c.wg.Wait()
		c.logger.Debug("gemini live disconnected")
	})
	return err
}

var (
	_ session.Transport = (*Conn)(nil)
	_ session.Dialer    = (*Dialer)(nil)
)
