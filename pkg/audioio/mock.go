package audioio

import (
	"context"
	"io"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// MockSource is a mock microphone for testing.
// It generates synthetic audio (silence, sine wave or scripted frames).
type MockSource struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	running  bool
	closed   bool
	streamCh chan Frame
	stopCh   chan struct{}

	// Stats
	framesRead  atomic.Int64
	samplesRead atomic.Int64
	overruns    atomic.Int64

	// Synthetic audio generation
	phase     float64
	frequency float64 // Hz, 0 = silence
	amplitude float64 // 0.0 to 1.0
	script    [][]float32
	interval  time.Duration
	closeErr  error
}

// MockSourceOption configures a MockSource.
type MockSourceOption func(*MockSource)

// WithSineWave configures the mock to generate a sine wave.
func WithSineWave(frequency, amplitude float64) MockSourceOption {
	return func(m *MockSource) {
		m.frequency = frequency
		m.amplitude = amplitude
	}
}

// WithScript makes the mock emit the given frames in order, then silence.
func WithScript(frames ...[]float32) MockSourceOption {
	return func(m *MockSource) {
		m.script = append(m.script, frames...)
	}
}

// WithInterval overrides the frame period (default: the config period).
// Tests use a short interval to avoid waiting 256ms per frame.
func WithInterval(d time.Duration) MockSourceOption {
	return func(m *MockSource) {
		m.interval = d
	}
}

// WithCloseError makes Close release the source and then return err.
func WithCloseError(err error) MockSourceOption {
	return func(m *MockSource) {
		m.closeErr = err
	}
}

// NewMockSource creates a new mock audio source.
func NewMockSource(cfg Config, logger *slog.Logger, opts ...MockSourceOption) *MockSource {
	if logger == nil {
		logger = slog.Default()
	}

	m := &MockSource{
		cfg:       cfg,
		logger:    logger,
		streamCh:  make(chan Frame, 10),
		stopCh:    make(chan struct{}),
		amplitude: 0.5,
		interval:  cfg.Period(),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Start begins generating audio.
func (m *MockSource) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return io.ErrClosedPipe
	}
	if m.running {
		return nil
	}

	m.running = true
	m.stopCh = make(chan struct{})
	m.streamCh = make(chan Frame, 10)

	go m.generateLoop(ctx, m.stopCh, m.streamCh)

	m.logger.Info("mock audio source started",
		"sample_rate", m.cfg.SampleRate,
		"frame_size", m.cfg.BufferSize(),
		"frequency", m.frequency,
	)

	return nil
}

func (m *MockSource) generateLoop(ctx context.Context, stopCh chan struct{}, streamCh chan Frame) {
	defer close(streamCh)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.Stop()
			return
		case <-stopCh:
			return
		case <-ticker.C:
			frame := m.generateFrame()
			select {
			case streamCh <- frame:
				m.framesRead.Add(1)
				m.samplesRead.Add(int64(len(frame.Samples)))
			default:
				// Reader too slow, drop frame (overrun)
				m.overruns.Add(1)
				m.logger.Debug("mock source: buffer full, dropping frame")
			}
		}
	}
}

func (m *MockSource) generateFrame() Frame {
	size := m.cfg.BufferSize()

	if len(m.script) > 0 {
		next := m.script[0]
		m.script = m.script[1:]
		samples := make([]float32, size)
		copy(samples, next)
		return Frame{Samples: samples, SampleRate: m.cfg.SampleRate}
	}

	samples := make([]float32, size)
	if m.frequency > 0 {
		for i := range samples {
			samples[i] = float32(m.amplitude * math.Sin(2*math.Pi*m.frequency*m.phase/float64(m.cfg.SampleRate)))
			m.phase++
			if m.phase >= float64(m.cfg.SampleRate) {
				m.phase = 0
			}
		}
	}
	// else: samples are already zero (silence)

	return Frame{Samples: samples, SampleRate: m.cfg.SampleRate}
}

// Stop halts audio generation.
func (m *MockSource) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return nil
	}

	m.running = false
	close(m.stopCh)

	m.logger.Info("mock audio source stopped")

	return nil
}

// Read reads the next audio frame.
func (m *MockSource) Read(ctx context.Context) (Frame, error) {
	m.mu.Lock()
	streamCh := m.streamCh
	m.mu.Unlock()

	select {
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	case frame, ok := <-streamCh:
		if !ok {
			return Frame{}, io.EOF
		}
		return frame, nil
	}
}

// Config returns the audio configuration.
func (m *MockSource) Config() Config {
	return m.cfg
}

// Name returns "mock".
func (m *MockSource) Name() string {
	return "mock"
}

// Close releases resources.
func (m *MockSource) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	if err := m.Stop(); err != nil {
		return err
	}
	return m.closeErr
}

// Closed reports whether Close has been called.
func (m *MockSource) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Stats returns source statistics.
func (m *MockSource) Stats() SourceStats {
	m.mu.Lock()
	running := m.running
	m.mu.Unlock()

	return SourceStats{
		FramesRead:  m.framesRead.Load(),
		SamplesRead: m.samplesRead.Load(),
		Overruns:    m.overruns.Load(),
		Running:     running,
		Backend:     "mock",
	}
}

// Ensure MockSource implements SourceWithStats.
var _ SourceWithStats = (*MockSource)(nil)

// NewMockOutput returns a real-time Mixer that discards what it renders.
func NewMockOutput(cfg Config, logger *slog.Logger) *Mixer {
	return NewMixer(cfg, "mock", discardWriter{}, logger)
}

// ManualOutput is an Output driven by a virtual clock. Nothing plays until
// Advance moves the clock; buffers whose end is reached complete.
type ManualOutput struct {
	cfg Config

	mu       sync.Mutex
	now      time.Duration
	entries  []*ManualEntry
	closed   bool
	closeErr error
}

// ManualEntry records one buffer scheduled on a ManualOutput.
type ManualEntry struct {
	Start    time.Duration
	Duration time.Duration
	Samples  int

	out     *ManualOutput
	once    sync.Once
	done    chan struct{}
	stopped bool
}

// NewManualOutput creates a ManualOutput at clock position zero.
func NewManualOutput(cfg Config) *ManualOutput {
	return &ManualOutput{cfg: cfg}
}

// Now returns the virtual clock position.
func (o *ManualOutput) Now() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.now
}

// Advance moves the clock forward and completes finished buffers.
func (o *ManualOutput) Advance(d time.Duration) {
	o.mu.Lock()
	o.now += d
	now := o.now
	entries := append([]*ManualEntry(nil), o.entries...)
	o.mu.Unlock()

	for _, e := range entries {
		if e.Start+e.Duration <= now {
			e.finish()
		}
	}
}

// Schedule records samples at the given position.
func (o *ManualOutput) Schedule(samples []float32, at time.Duration) (Handle, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return nil, ErrClosed
	}

	e := &ManualEntry{
		Start:    max(at, o.now),
		Duration: time.Duration(len(samples)) * time.Second / time.Duration(o.cfg.SampleRate),
		Samples:  len(samples),
		out:      o,
		done:     make(chan struct{}),
	}
	o.entries = append(o.entries, e)
	return e, nil
}

// Entries returns every buffer scheduled so far, in scheduling order.
func (o *ManualOutput) Entries() []*ManualEntry {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*ManualEntry(nil), o.entries...)
}

// Config returns the audio configuration.
func (o *ManualOutput) Config() Config {
	return o.cfg
}

// Name returns "manual".
func (o *ManualOutput) Name() string {
	return "manual"
}

// Closed reports whether Close has been called.
func (o *ManualOutput) Closed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

// FailClose makes Close stop every entry and then return err.
func (o *ManualOutput) FailClose(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closeErr = err
}

// Close stops every entry.
func (o *ManualOutput) Close() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	entries := append([]*ManualEntry(nil), o.entries...)
	err := o.closeErr
	o.mu.Unlock()

	for _, e := range entries {
		e.Stop()
	}
	return err
}

// Stop marks the entry stopped.
func (e *ManualEntry) Stop() {
	e.out.mu.Lock()
	select {
	case <-e.done:
	default:
		e.stopped = true
	}
	e.out.mu.Unlock()
	e.finish()
}

// Stopped reports whether the entry was stopped before completing.
func (e *ManualEntry) Stopped() bool {
	e.out.mu.Lock()
	defer e.out.mu.Unlock()
	return e.stopped
}

// Done is closed once the entry completes or is stopped.
func (e *ManualEntry) Done() <-chan struct{} {
	return e.done
}

func (e *ManualEntry) finish() {
	e.once.Do(func() { close(e.done) })
}

var (
	_ Output = (*ManualOutput)(nil)
	_ Handle = (*ManualEntry)(nil)
)
