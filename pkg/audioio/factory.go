package audioio

import (
	"context"
	"fmt"
	"log/slog"
)

// NewSource opens a microphone with the given configuration. Failures to
// open the device are reported as *DeviceAcquisitionError.
func NewSource(cfg Config, logger *slog.Logger) (Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("creating audio source",
		"backend", cfg.Backend,
		"sample_rate", cfg.SampleRate,
		"channels", cfg.Channels,
		"frame_size", cfg.BufferSize(),
	)

	var (
		src Source
		err error
	)
	switch cfg.Backend {
	case BackendMock, "":
		src = NewMockSource(cfg, logger)
	case BackendPortAudio:
		src, err = newPortAudioSource(cfg, logger)
	case BackendRTP:
		src, err = newRTPSource(cfg, logger)
	default:
		err = fmt.Errorf("unsupported backend: %s", cfg.Backend)
	}
	if err != nil {
		return nil, &DeviceAcquisitionError{Role: RoleMicrophone, Backend: cfg.Backend, Err: err}
	}
	return src, nil
}

// NewOutput opens a speaker with the given configuration and starts its
// render loop. Failures are reported as *DeviceAcquisitionError.
func NewOutput(ctx context.Context, cfg Config, logger *slog.Logger) (Output, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("creating audio output",
		"backend", cfg.Backend,
		"sample_rate", cfg.SampleRate,
		"channels", cfg.Channels,
		"period_ms", cfg.Period().Milliseconds(),
	)

	var (
		w   FrameWriter
		err error
	)
	switch cfg.Backend {
	case BackendMock, "":
		w = discardWriter{}
	case BackendPortAudio:
		w, err = newPortAudioWriter(cfg, logger)
	case BackendRTP:
		w, err = newRTPWriter(cfg, logger)
	default:
		err = fmt.Errorf("unsupported backend: %s", cfg.Backend)
	}
	if err != nil {
		return nil, &DeviceAcquisitionError{Role: RoleSpeaker, Backend: cfg.Backend, Err: err}
	}

	name := string(cfg.Backend)
	if name == "" {
		name = string(BackendMock)
	}
	m := NewMixer(cfg, name, w, logger)
	// The render loop lives until Close, not until ctx ends.
	if err := m.Start(context.WithoutCancel(ctx)); err != nil {
		w.Close()
		return nil, &DeviceAcquisitionError{Role: RoleSpeaker, Backend: cfg.Backend, Err: err}
	}
	return m, nil
}

// Factory acquires the microphone and speaker for one session.
type Factory struct {
	Input  Config
	Output Config
	Logger *slog.Logger
}

// NewFactory returns a Factory using the default 16kHz/24kHz configs on
// the given backend.
func NewFactory(backend Backend, logger *slog.Logger) *Factory {
	in, out := DefaultInputConfig(), DefaultOutputConfig()
	in.Backend, out.Backend = backend, backend
	return &Factory{Input: in, Output: out, Logger: logger}
}

// OpenSource opens the microphone. PortAudio may block here while the OS
// asks the user for permission; ctx bounds the wait.
func (f *Factory) OpenSource(ctx context.Context) (Source, error) {
	type result struct {
		src Source
		err error
	}
	ch := make(chan result, 1)
	go func() {
		src, err := NewSource(f.Input, f.Logger)
		ch <- result{src, err}
	}()

	select {
	case r := <-ch:
		return r.src, r.err
	case <-ctx.Done():
		// Release the device if it shows up after we stopped waiting.
		go func() {
			if r := <-ch; r.src != nil {
				r.src.Close()
			}
		}()
		return nil, &DeviceAcquisitionError{Role: RoleMicrophone, Backend: f.Input.Backend, Err: ctx.Err()}
	}
}

// OpenOutput opens the speaker.
func (f *Factory) OpenOutput(ctx context.Context) (Output, error) {
	return NewOutput(ctx, f.Output, f.Logger)
}

// AvailableBackends returns the backends compiled into this build.
func AvailableBackends() []Backend {
	backends := []Backend{BackendMock}
	if portAudioAvailable {
		backends = append(backends, BackendPortAudio)
	}
	if rtpAvailable {
		backends = append(backends, BackendRTP)
	}
	return backends
}
