package capture

import (
	"fmt"
	"time"
)

// Config holds capture pipeline settings.
type Config struct {
	// QueueSize bounds the frames waiting for the send task. A full queue
	// drops new frames.
	QueueSize int

	// Gain scales RMS loudness into the [0,1] volume level.
	Gain float64

	// SendTimeout bounds a single send. Zero uses the source's frame period.
	SendTimeout time.Duration
}

// DefaultConfig returns the default capture configuration.
func DefaultConfig() Config {
	return Config{
		QueueSize: 2,
		Gain:      5,
	}
}

// Validate checks that the configuration is valid.
func (c Config) Validate() error {
	if c.QueueSize <= 0 {
		return fmt.Errorf("capture: queue size must be positive, got %d", c.QueueSize)
	}
	if c.Gain <= 0 {
		return fmt.Errorf("capture: gain must be positive, got %v", c.Gain)
	}
	if c.SendTimeout < 0 {
		return fmt.Errorf("capture: send timeout must not be negative")
	}
	return nil
}

// WithQueueSize returns a copy of the config with the given queue size.
func (c Config) WithQueueSize(n int) Config {
	c.QueueSize = n
	return c
}
