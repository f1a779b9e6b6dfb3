package audioio

import (
	"io"
	"time"
)

// Clock reports the current playback position of an output device.
type Clock interface {
	// Now returns the time elapsed on the device clock since it started.
	Now() time.Duration
}

// Handle controls one scheduled buffer.
type Handle interface {
	// Stop silences the buffer immediately. Safe to call more than once
	// and after the buffer has finished.
	Stop()

	// Done is closed when the buffer finished playing or was stopped.
	Done() <-chan struct{}
}

// Output plays buffers at precise positions on its own clock.
type Output interface {
	Clock

	// Schedule queues mono samples to start at the given clock position.
	// A position in the past starts the buffer immediately.
	Schedule(samples []float32, at time.Duration) (Handle, error)

	// Config returns the current audio configuration.
	Config() Config

	// Name returns the backend name.
	Name() string

	// Close stops all scheduled buffers and releases the device.
	io.Closer
}

// OutputStats contains statistics about an output device.
type OutputStats struct {
	// Scheduled is the total number of buffers scheduled.
	Scheduled int64 `json:"scheduled"`

	// Completed is the number of buffers that played to the end.
	Completed int64 `json:"completed"`

	// Stopped is the number of buffers cut short by Stop or Close.
	Stopped int64 `json:"stopped"`

	// Active is the number of buffers currently scheduled or playing.
	Active int `json:"active"`

	// Position is the current clock position.
	Position time.Duration `json:"position"`

	// Backend is the name of the audio backend.
	Backend string `json:"backend"`
}

// OutputWithStats extends Output with statistics.
type OutputWithStats interface {
	Output
	Stats() OutputStats
}
