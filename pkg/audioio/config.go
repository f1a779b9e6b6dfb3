// Package audioio provides the audio devices a voice session owns: a
// microphone Source and a scheduled Output with its own clock.
//
// Backends:
//   - Mock - CI/testing without hardware (silence, sine or scripted frames)
//   - PortAudio - local microphone and speaker (build tag "portaudio")
//   - RTP - Opus over RTP/UDP to a networked device (build tag "opus")
//
// Devices are explicit resources: a session acquires them on open through
// a Factory and releases them on every exit path.
package audioio

import (
	"fmt"
	"time"

	"github.com/teslashibe/go-meri/pkg/pcm"
)

// Backend represents the audio backend type.
type Backend string

const (
	// BackendMock uses a synthetic implementation for testing.
	BackendMock Backend = "mock"
	// BackendPortAudio uses the default PortAudio input/output devices.
	BackendPortAudio Backend = "portaudio"
	// BackendRTP streams Opus over RTP to and from a network device.
	BackendRTP Backend = "rtp"
)

// Config holds audio configuration for one direction.
type Config struct {
	// Backend specifies which audio backend to use.
	Backend Backend `yaml:"backend" json:"backend"`

	// SampleRate is the audio sample rate in Hz.
	SampleRate int `yaml:"sample_rate" json:"sample_rate"`

	// Channels is the number of audio channels.
	Channels int `yaml:"channels" json:"channels"`

	// FrameSize is the number of samples per channel in one frame.
	// Zero derives it from BufferDuration.
	FrameSize int `yaml:"frame_size" json:"frame_size"`

	// BufferDuration is the device period used when FrameSize is zero.
	BufferDuration time.Duration `yaml:"buffer_duration" json:"buffer_duration"`

	// Device is the backend-specific device identifier.
	// Examples:
	//   - PortAudio: ignored (system default device)
	//   - RTP source: listen address, e.g. ":5004"
	//   - RTP output: destination address, e.g. "127.0.0.1:5000"
	//   - Mock: ignored
	Device string `yaml:"device" json:"device"`
}

// DefaultInputConfig returns the microphone configuration: 16kHz mono,
// 4096-sample frames.
func DefaultInputConfig() Config {
	return Config{
		Backend:    BackendMock,
		SampleRate: pcm.InputSampleRate,
		Channels:   1,
		FrameSize:  4096,
	}
}

// DefaultOutputConfig returns the speaker configuration: 24kHz mono,
// rendered in 20ms periods.
func DefaultOutputConfig() Config {
	return Config{
		Backend:        BackendMock,
		SampleRate:     pcm.OutputSampleRate,
		Channels:       1,
		BufferDuration: 20 * time.Millisecond,
	}
}

// Validate checks that the configuration is valid.
func (c Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", c.SampleRate)
	}
	if c.Channels <= 0 {
		return fmt.Errorf("channels must be positive, got %d", c.Channels)
	}
	if c.FrameSize < 0 {
		return fmt.Errorf("frame_size must not be negative, got %d", c.FrameSize)
	}
	if c.FrameSize == 0 && c.BufferDuration <= 0 {
		return fmt.Errorf("either frame_size or buffer_duration must be positive")
	}
	if c.Backend == BackendRTP && c.Device == "" {
		return fmt.Errorf("rtp backend requires a device address")
	}
	return nil
}

// BufferSize returns the number of samples per channel in one frame.
func (c Config) BufferSize() int {
	if c.FrameSize > 0 {
		return c.FrameSize
	}
	return int(float64(c.SampleRate) * c.BufferDuration.Seconds())
}

// Period returns the wall-clock duration of one frame.
func (c Config) Period() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(c.BufferSize()) * time.Second / time.Duration(c.SampleRate)
}

// Frames converts a clock position to a frame index, rounding to the
// nearest frame. Frames(FrameTime(n)) == n for every n >= 0.
func (c Config) Frames(d time.Duration) int64 {
	if d <= 0 || c.SampleRate <= 0 {
		return 0
	}
	return (int64(d)*int64(c.SampleRate) + int64(time.Second)/2) / int64(time.Second)
}

// FrameTime converts a frame index to a clock position.
func (c Config) FrameTime(n int64) time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(c.SampleRate)
}
