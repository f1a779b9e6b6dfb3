//go:build !opus

package audioio

import (
	"fmt"
	"log/slog"
)

const rtpAvailable = false

// newRTPSource returns an error when built without the opus tag.
func newRTPSource(cfg Config, logger *slog.Logger) (Source, error) {
	return nil, fmt.Errorf("%w: rebuild with -tags opus", ErrBackendUnsupported)
}

// newRTPWriter returns an error when built without the opus tag.
func newRTPWriter(cfg Config, logger *slog.Logger) (FrameWriter, error) {
	return nil, fmt.Errorf("%w: rebuild with -tags opus", ErrBackendUnsupported)
}
