// Package capture streams microphone frames to the remote agent.
//
// A capture task reads fixed-size frames from an audioio.Source, publishes a
// loudness level, encodes each frame and hands it to a bounded queue. A send
// task drains the queue into a Sender. When the queue is full or the Sender
// is not ready yet, frames are dropped: capture never waits on the network.
package capture

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-meri/pkg/audioio"
	"github.com/teslashibe/go-meri/pkg/pcm"
	"github.com/teslashibe/go-meri/pkg/protocol"
)

// ErrNotReady is returned by a Sender whose channel is not open yet.
// Frames rejected this way are dropped.
var ErrNotReady = errors.New("capture: sender not ready")

// ErrStopped is returned by Start after Stop.
var ErrStopped = errors.New("capture: pipeline stopped")

// Sender delivers outbound messages to the agent.
type Sender interface {
	Send(ctx context.Context, msg protocol.Outbound) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, msg protocol.Outbound) error

// Send calls f.
func (f SenderFunc) Send(ctx context.Context, msg protocol.Outbound) error {
	return f(ctx, msg)
}

// Frame is one encoded microphone read.
type Frame struct {
	Seq     uint64
	Samples []int16
	Data    string // transport text of Samples as PCM16
}

// Stats reports pipeline counters.
type Stats struct {
	Captured   int64   `json:"captured"`
	Sent       int64   `json:"sent"`
	Dropped    int64   `json:"dropped"`
	SendErrors int64   `json:"send_errors"`
	Volume     float64 `json:"volume"`
	Running    bool    `json:"running"`
}

// Pipeline is the capture → encode → send loop pair for one session.
type Pipeline struct {
	src    audioio.Source
	sender Sender
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	running  bool
	stopped  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
	stopErr  error

	onVolume func(float64)
	onError  func(error)

	volume     atomic.Uint64 // math.Float64bits
	seq        atomic.Uint64
	captured   atomic.Int64
	sent       atomic.Int64
	dropped    atomic.Int64
	sendErrors atomic.Int64
}

// New creates a pipeline reading from src and sending through sender.
func New(src audioio.Source, sender Sender, cfg Config, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		src:    src,
		sender: sender,
		cfg:    cfg,
		logger: logger,
	}
}

// OnVolume sets the callback invoked with each frame's volume level.
// Must be called before Start.
func (p *Pipeline) OnVolume(fn func(float64)) {
	p.onVolume = fn
}

// OnError sets the callback invoked when the source fails mid-capture.
// Must be called before Start.
func (p *Pipeline) OnError(fn func(error)) {
	p.onError = fn
}

// Start starts the source and both tasks.
func (p *Pipeline) Start(ctx context.Context) error {
	if err := p.cfg.Validate(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return ErrStopped
	}
	if p.running {
		return nil
	}
	if err := p.src.Start(ctx); err != nil {
		return err
	}

	ctx, p.cancel = context.WithCancel(ctx)
	queue := make(chan Frame, p.cfg.QueueSize)
	p.running = true

	p.wg.Add(2)
	go p.captureLoop(ctx, queue)
	go p.sendLoop(ctx, queue)

	p.logger.Debug("capture started",
		"source", p.src.Name(),
		"frame_size", p.src.Config().BufferSize(),
		"queue", p.cfg.QueueSize,
	)
	return nil
}

func (p *Pipeline) captureLoop(ctx context.Context, queue chan<- Frame) {
	defer p.wg.Done()

	for {
		f, err := p.src.Read(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return
			}
			p.logger.Warn("microphone read failed", "error", err)
			if p.onError != nil {
				p.onError(err)
			}
			return
		}

		frame := p.encode(f)
		p.captured.Add(1)

		select {
		case queue <- frame:
		default:
			p.dropped.Add(1)
			p.logger.Debug("capture queue full, dropping frame", "seq", frame.Seq)
		}
	}
}

// encode computes the volume level and the wire form of one read.
func (p *Pipeline) encode(f audioio.Frame) Frame {
	samples := f.Samples
	if f.SampleRate > 0 && f.SampleRate != pcm.InputSampleRate {
		samples = pcm.Resample(samples, f.SampleRate, pcm.InputSampleRate)
	}

	vol := pcm.Volume(pcm.RMS(samples), p.cfg.Gain)
	p.volume.Store(math.Float64bits(vol))
	if p.onVolume != nil {
		p.onVolume(vol)
	}

	return Frame{
		Seq:     p.seq.Add(1),
		Samples: pcm.FloatToInt16(samples),
		Data:    pcm.EncodeTransport(pcm.FloatToPCM16(samples)),
	}
}

func (p *Pipeline) sendLoop(ctx context.Context, queue <-chan Frame) {
	defer p.wg.Done()

	timeout := p.cfg.SendTimeout
	if timeout == 0 {
		cfg := p.src.Config()
		timeout = cfg.Period()
	}
	if timeout <= 0 {
		timeout = time.Second
	}

	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-queue:
			if ctx.Err() != nil {
				return
			}
			p.send(ctx, frame, timeout)
		}
	}
}

func (p *Pipeline) send(ctx context.Context, frame Frame, timeout time.Duration) {
	sendCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := p.sender.Send(sendCtx, protocol.NewAudioInput(frame.Data))
	switch {
	case err == nil:
		p.sent.Add(1)
	case errors.Is(err, ErrNotReady):
		p.dropped.Add(1)
	case ctx.Err() != nil:
		// Stopping; the frame is discarded.
		p.dropped.Add(1)
	default:
		p.dropped.Add(1)
		if p.sendErrors.Add(1) <= 5 {
			p.logger.Debug("audio send failed", "seq", frame.Seq, "error", err)
		}
	}
}

// Volume returns the most recent volume level in [0,1].
func (p *Pipeline) Volume() float64 {
	return math.Float64frombits(p.volume.Load())
}

// Stats returns pipeline counters.
func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	running := p.running
	p.mu.Unlock()

	return Stats{
		Captured:   p.captured.Load(),
		Sent:       p.sent.Load(),
		Dropped:    p.dropped.Load(),
		SendErrors: p.sendErrors.Load(),
		Volume:     p.Volume(),
		Running:    running,
	}
}

// Stop cancels both tasks, waits for them, discards queued frames and
// releases the source. No frame is sent after Stop returns. Safe to call
// more than once and before Start.
func (p *Pipeline) Stop() error {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		cancel := p.cancel
		p.running = false
		p.stopped = true
		p.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		p.wg.Wait()

		p.stopErr = errors.Join(p.src.Stop(), p.src.Close())
		p.volume.Store(0)
		p.logger.Debug("capture stopped",
			"captured", p.captured.Load(),
			"sent", p.sent.Load(),
			"dropped", p.dropped.Load(),
		)
	})
	return p.stopErr
}
