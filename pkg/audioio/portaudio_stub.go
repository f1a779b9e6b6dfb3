//go:build !portaudio

package audioio

import (
	"fmt"
	"log/slog"
)

const portAudioAvailable = false

// newPortAudioSource returns an error when built without the portaudio tag.
func newPortAudioSource(cfg Config, logger *slog.Logger) (Source, error) {
	return nil, fmt.Errorf("%w: rebuild with -tags portaudio", ErrBackendUnsupported)
}

// newPortAudioWriter returns an error when built without the portaudio tag.
func newPortAudioWriter(cfg Config, logger *slog.Logger) (FrameWriter, error) {
	return nil, fmt.Errorf("%w: rebuild with -tags portaudio", ErrBackendUnsupported)
}
