// Package meri wires the voice session, its devices and transport, the
// desktop tools and the dashboard into one application.
package meri

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/teslashibe/go-meri/internal/config"
	"github.com/teslashibe/go-meri/pkg/audioio"
	"github.com/teslashibe/go-meri/pkg/session"
)

// Config holds all configuration for the application.
// Flag parsing is done in cmd/meri/main.go; this struct is data only.
type Config struct {
	Debug bool

	APIKey    string
	Model     string
	Voice     string
	Transport string // config.TransportGemini or config.TransportGenAI

	Audio     audioio.Backend
	RTPListen string // microphone stream listen address
	RTPDest   string // speaker stream destination

	OpenTimeout time.Duration

	// Dashboard.
	Addr      string
	AccessLog bool
	StaticDir string

	// AutoStart opens a session as soon as the app runs.
	AutoStart bool
}

// DefaultConfig returns defaults for a local run on mock audio.
func DefaultConfig() Config {
	return Config{
		Model:       session.DefaultModel,
		Voice:       session.DefaultVoice,
		Transport:   config.TransportGemini,
		Audio:       audioio.BackendMock,
		RTPListen:   config.DefaultRTPListen,
		RTPDest:     config.DefaultRTPDest,
		OpenTimeout: 15 * time.Second,
		Addr:        ":" + config.DefaultPort,
		AutoStart:   true,
	}
}

// FromEnv overlays loaded environment settings on the defaults.
func FromEnv(env config.Meri) Config {
	c := DefaultConfig()
	c.APIKey = env.APIKey
	if env.Model != "" {
		c.Model = env.Model
	}
	if env.Voice != "" {
		c.Voice = env.Voice
	}
	if env.Transport != "" {
		c.Transport = env.Transport
	}
	if env.AudioBackend != "" {
		c.Audio = audioio.Backend(env.AudioBackend)
	}
	if env.RTPListen != "" {
		c.RTPListen = env.RTPListen
	}
	if env.RTPDest != "" {
		c.RTPDest = env.RTPDest
	}
	if env.OpenTimeout > 0 {
		c.OpenTimeout = env.OpenTimeout
	}
	if env.Port != "" {
		c.Addr = ":" + env.Port
	}
	c.AccessLog = env.AccessLog
	c.StaticDir = env.StaticDir
	return c
}

// Validate checks that the configuration is valid.
func (c Config) Validate() error {
	if c.APIKey == "" {
		return errors.New("meri: API key is required (set GEMINI_API_KEY)")
	}
	switch c.Transport {
	case config.TransportGemini, config.TransportGenAI:
	default:
		return fmt.Errorf("meri: unknown transport %q", c.Transport)
	}
	if !slices.Contains(audioio.AvailableBackends(), c.Audio) {
		return fmt.Errorf("meri: audio backend %q not available in this build (have %v)", c.Audio, audioio.AvailableBackends())
	}
	if c.Addr == "" {
		return errors.New("meri: dashboard address is required")
	}
	return c.Session().Validate()
}

// Session returns the per-session configuration.
func (c Config) Session() session.Config {
	s := session.DefaultConfig().WithModel(c.Model).WithVoice(c.Voice)
	if c.OpenTimeout > 0 {
		s.OpenTimeout = c.OpenTimeout
	}
	return s
}
