//go:build portaudio

package audioio

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"
)

const portAudioAvailable = true

// PortAudioSource captures from the default input device.
type PortAudioSource struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	stream  *portaudio.Stream
	buffer  []float32
	running bool
	closed  bool

	framesRead  atomic.Int64
	samplesRead atomic.Int64
	overruns    atomic.Int64
}

// newPortAudioSource opens the default input stream. Opening may block
// while the OS prompts for microphone permission.
func newPortAudioSource(cfg Config, logger *slog.Logger) (Source, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize portaudio: %w", err)
	}

	buffer := make([]float32, cfg.BufferSize()*cfg.Channels)
	stream, err := portaudio.OpenDefaultStream(cfg.Channels, 0, float64(cfg.SampleRate), cfg.BufferSize(), buffer)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("open input stream: %w", err)
	}

	logger.Info("portaudio source opened", "sample_rate", cfg.SampleRate, "frame_size", cfg.BufferSize())

	return &PortAudioSource{
		cfg:    cfg,
		logger: logger,
		stream: stream,
		buffer: buffer,
	}, nil
}

// Start begins capture.
func (s *PortAudioSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return io.ErrClosedPipe
	}
	if s.running {
		return nil
	}
	if err := s.stream.Start(); err != nil {
		return fmt.Errorf("start input stream: %w", err)
	}
	s.running = true
	return nil
}

// Stop halts capture.
func (s *PortAudioSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false
	return s.stream.Stop()
}

// Read blocks for one device period and returns the captured frame.
func (s *PortAudioSource) Read(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return Frame{}, io.EOF
	}

	if err := s.stream.Read(); err != nil {
		if err == portaudio.InputOverflowed {
			s.overruns.Add(1)
		} else {
			return Frame{}, fmt.Errorf("read input stream: %w", err)
		}
	}

	samples := make([]float32, s.cfg.BufferSize())
	if s.cfg.Channels == 1 {
		copy(samples, s.buffer)
	} else {
		for i := range samples {
			samples[i] = s.buffer[i*s.cfg.Channels]
		}
	}

	s.framesRead.Add(1)
	s.samplesRead.Add(int64(len(samples)))
	return Frame{Samples: samples, SampleRate: s.cfg.SampleRate}, nil
}

// Config returns the audio configuration.
func (s *PortAudioSource) Config() Config {
	return s.cfg
}

// Name returns "portaudio".
func (s *PortAudioSource) Name() string {
	return string(BackendPortAudio)
}

// Close stops and closes the stream and terminates PortAudio.
func (s *PortAudioSource) Close() error {
	stopErr := s.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	err := s.stream.Close()
	if termErr := portaudio.Terminate(); err == nil {
		err = termErr
	}
	if err == nil {
		err = stopErr
	}
	return err
}

// Stats returns source statistics.
func (s *PortAudioSource) Stats() SourceStats {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()

	return SourceStats{
		FramesRead:  s.framesRead.Load(),
		SamplesRead: s.samplesRead.Load(),
		Overruns:    s.overruns.Load(),
		Running:     running,
		Backend:     string(BackendPortAudio),
	}
}

var _ SourceWithStats = (*PortAudioSource)(nil)

// portAudioWriter writes mixer periods to the default output device.
type portAudioWriter struct {
	stream *portaudio.Stream
	buffer []int16
}

func newPortAudioWriter(cfg Config, logger *slog.Logger) (FrameWriter, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize portaudio: %w", err)
	}

	buffer := make([]int16, cfg.BufferSize())
	stream, err := portaudio.OpenDefaultStream(0, 1, float64(cfg.SampleRate), len(buffer), buffer)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("open output stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("start output stream: %w", err)
	}

	logger.Info("portaudio output opened", "sample_rate", cfg.SampleRate, "frame_size", len(buffer))
	return &portAudioWriter{stream: stream, buffer: buffer}, nil
}

func (w *portAudioWriter) WriteFrame(ctx context.Context, samples []int16) error {
	copy(w.buffer, samples)
	if err := w.stream.Write(); err != nil && err != portaudio.OutputUnderflowed {
		return fmt.Errorf("write output stream: %w", err)
	}
	return nil
}

func (w *portAudioWriter) Close() error {
	err := w.stream.Stop()
	if closeErr := w.stream.Close(); err == nil {
		err = closeErr
	}
	if termErr := portaudio.Terminate(); err == nil {
		err = termErr
	}
	return err
}
