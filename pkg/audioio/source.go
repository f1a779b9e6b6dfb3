package audioio

import (
	"context"
	"io"
	"time"
)

// Frame is one fixed-size block of mono microphone samples in [-1, 1].
type Frame struct {
	Samples    []float32
	SampleRate int
}

// Duration returns the duration of the frame.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(f.Samples)) * time.Second / time.Duration(f.SampleRate)
}

// Source captures audio from a microphone or other input device.
type Source interface {
	// Start begins audio capture.
	// After calling Start, frames are available via Read.
	Start(ctx context.Context) error

	// Stop halts audio capture.
	// It is safe to call Stop multiple times.
	Stop() error

	// Read returns the next frame, blocking for at most one device period
	// under normal operation. Returns io.EOF once the source is stopped.
	Read(ctx context.Context) (Frame, error)

	// Config returns the current audio configuration.
	Config() Config

	// Name returns the backend name (e.g., "portaudio", "rtp", "mock").
	Name() string

	// Close releases the device.
	// After Close, the source cannot be restarted.
	io.Closer
}

// SourceStats contains statistics about the audio source.
type SourceStats struct {
	// FramesRead is the total number of frames delivered.
	FramesRead int64 `json:"frames_read"`

	// SamplesRead is the total number of samples delivered.
	SamplesRead int64 `json:"samples_read"`

	// Overruns is the number of frames the device dropped because the
	// reader was too slow.
	Overruns int64 `json:"overruns"`

	// Running indicates if the source is currently capturing.
	Running bool `json:"running"`

	// Backend is the name of the audio backend.
	Backend string `json:"backend"`
}

// SourceWithStats extends Source with statistics.
type SourceWithStats interface {
	Source
	Stats() SourceStats
}
