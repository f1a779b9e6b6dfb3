package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/teslashibe/go-meri/pkg/capture"
	"github.com/teslashibe/go-meri/pkg/protocol"
)

// Defaults for the Meri assistant.
const (
	DefaultModel             = "gemini-2.5-flash-native-audio-preview-09-2025"
	DefaultVoice             = "Kore"
	DefaultSystemInstruction = "You are Meri, a highly intelligent and helpful OS assistant. " +
		"You can control the system to open apps, change themes, and more. " +
		"When asked to do something, use your tools."
)

// Config holds per-session settings.
type Config struct {
	// Model is the remote agent model name.
	Model string

	// Voice is the prebuilt voice the agent speaks with.
	Voice string

	// SystemInstruction is sent once in the setup message.
	SystemInstruction string

	// OpenTimeout bounds device acquisition and transport dial.
	OpenTimeout time.Duration

	// Capture configures the microphone pipeline.
	Capture capture.Config
}

// DefaultConfig returns the Meri defaults.
func DefaultConfig() Config {
	return Config{
		Model:             DefaultModel,
		Voice:             DefaultVoice,
		SystemInstruction: DefaultSystemInstruction,
		OpenTimeout:       15 * time.Second,
		Capture:           capture.DefaultConfig(),
	}
}

// Validate checks that the configuration is valid.
func (c Config) Validate() error {
	if c.Model == "" {
		return errors.New("session: model is required")
	}
	if c.OpenTimeout <= 0 {
		return fmt.Errorf("session: open timeout must be positive, got %v", c.OpenTimeout)
	}
	return c.Capture.Validate()
}

// WithModel returns a copy of the config using model.
func (c Config) WithModel(model string) Config {
	c.Model = model
	return c
}

// WithVoice returns a copy of the config using voice.
func (c Config) WithVoice(voice string) Config {
	c.Voice = voice
	return c
}

// SetupOptions returns the transport setup for this config and the given
// tool declarations.
func (c Config) SetupOptions(functions []protocol.FunctionDeclaration) protocol.SetupOptions {
	return protocol.SetupOptions{
		Model:             c.Model,
		Voice:             c.Voice,
		SystemInstruction: c.SystemInstruction,
		Functions:         functions,
	}
}
