package audioio

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-meri/pkg/pcm"
)

// FrameWriter receives rendered output periods from a Mixer.
type FrameWriter interface {
	// WriteFrame delivers one period of mono PCM samples.
	WriteFrame(ctx context.Context, samples []int16) error

	// Close releases the underlying device.
	Close() error
}

// discardWriter drops rendered audio.
type discardWriter struct{}

func (discardWriter) WriteFrame(context.Context, []int16) error { return nil }
func (discardWriter) Close() error                              { return nil }

// Mixer is an Output that sums scheduled buffers into fixed periods and
// hands them to a FrameWriter. Its clock is the number of samples rendered,
// so scheduled positions are sample-accurate regardless of wall-clock jitter.
type Mixer struct {
	cfg    Config
	name   string
	writer FrameWriter
	logger *slog.Logger

	mu       sync.Mutex
	rendered int64 // samples rendered so far
	voices   map[*voice]struct{}
	closed   bool

	cancel context.CancelFunc
	done   chan struct{}

	scheduled atomic.Int64
	completed atomic.Int64
	stopped   atomic.Int64
}

// NewMixer creates a mixer that renders into w. Call Start to run the
// render loop.
func NewMixer(cfg Config, name string, w FrameWriter, logger *slog.Logger) *Mixer {
	if logger == nil {
		logger = slog.Default()
	}
	if w == nil {
		w = discardWriter{}
	}
	return &Mixer{
		cfg:    cfg,
		name:   name,
		writer: w,
		logger: logger,
		voices: make(map[*voice]struct{}),
	}
}

// Start launches the render loop, paced at one period per BufferDuration.
func (m *Mixer) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if m.done != nil {
		return nil
	}

	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	go m.renderLoop(ctx)

	m.logger.Info("audio output started",
		"backend", m.name,
		"sample_rate", m.cfg.SampleRate,
		"period_ms", m.cfg.Period().Milliseconds(),
	)
	return nil
}

func (m *Mixer) renderLoop(ctx context.Context) {
	defer close(m.done)

	ticker := time.NewTicker(m.cfg.Period())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			frame := m.Render()
			if err := m.writer.WriteFrame(ctx, frame); err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				m.logger.Warn("audio output write failed", "backend", m.name, "error", err)
			}
		}
	}
}

// Render mixes the next period and advances the clock. It is exported so
// callers driving a device callback can pull periods directly.
func (m *Mixer) Render() []int16 {
	size := m.cfg.BufferSize()
	mix := make([]float32, size)

	m.mu.Lock()
	start := m.rendered
	end := start + int64(size)

	for v := range m.voices {
		vEnd := v.start + int64(len(v.samples))
		from := max(v.start, start)
		to := min(vEnd, end)
		for i := from; i < to; i++ {
			mix[i-start] += v.samples[i-v.start]
		}
		if vEnd <= end {
			delete(m.voices, v)
			v.finish()
			m.completed.Add(1)
		}
	}
	m.rendered = end
	m.mu.Unlock()

	return pcm.FloatToInt16(mix)
}

// Now returns the render position.
func (m *Mixer) Now() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.samplesToDuration(m.rendered)
}

// Schedule queues samples at the given clock position.
func (m *Mixer) Schedule(samples []float32, at time.Duration) (Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}

	start := max(m.durationToSamples(at), m.rendered)
	v := &voice{
		mixer:   m,
		start:   start,
		samples: samples,
		done:    make(chan struct{}),
	}
	m.scheduled.Add(1)
	if len(samples) == 0 {
		v.finish()
		m.completed.Add(1)
		return v, nil
	}
	m.voices[v] = struct{}{}
	return v, nil
}

func (m *Mixer) stopVoice(v *voice) {
	m.mu.Lock()
	_, active := m.voices[v]
	delete(m.voices, v)
	m.mu.Unlock()

	if active {
		m.stopped.Add(1)
	}
	v.finish()
}

// Config returns the audio configuration.
func (m *Mixer) Config() Config {
	return m.cfg
}

// Name returns the backend name.
func (m *Mixer) Name() string {
	return m.name
}

// Stats returns output statistics.
func (m *Mixer) Stats() OutputStats {
	m.mu.Lock()
	active := len(m.voices)
	pos := m.samplesToDuration(m.rendered)
	m.mu.Unlock()

	return OutputStats{
		Scheduled: m.scheduled.Load(),
		Completed: m.completed.Load(),
		Stopped:   m.stopped.Load(),
		Active:    active,
		Position:  pos,
		Backend:   m.name,
	}
}

// Close stops every voice, the render loop and the writer.
func (m *Mixer) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	voices := m.voices
	m.voices = make(map[*voice]struct{})
	cancel, done := m.cancel, m.done
	m.mu.Unlock()

	for v := range voices {
		m.stopped.Add(1)
		v.finish()
	}

	if cancel != nil {
		cancel()
		<-done
	}

	m.logger.Info("audio output closed", "backend", m.name)
	return m.writer.Close()
}

func (m *Mixer) samplesToDuration(n int64) time.Duration {
	return m.cfg.FrameTime(n)
}

// durationToSamples rounds to the nearest sample so that a position derived
// from a sample count maps back to that same sample.
func (m *Mixer) durationToSamples(d time.Duration) int64 {
	return m.cfg.Frames(d)
}

// voice is one scheduled buffer inside a Mixer.
type voice struct {
	mixer   *Mixer
	start   int64
	samples []float32

	once sync.Once
	done chan struct{}
}

func (v *voice) Stop() {
	v.mixer.stopVoice(v)
}

func (v *voice) Done() <-chan struct{} {
	return v.done
}

func (v *voice) finish() {
	v.once.Do(func() { close(v.done) })
}

var _ OutputWithStats = (*Mixer)(nil)
