// Package playback schedules decoded speech chunks back-to-back on an
// audio output and cancels them on interruption.
package playback

import (
	"errors"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-meri/pkg/audioio"
	"github.com/teslashibe/go-meri/pkg/pcm"
)

// ErrClosed is returned by Enqueue after Close.
var ErrClosed = errors.New("playback: scheduler closed")

// Chunk is one unit of agent speech: PCM16 at the output rate, tagged with
// its arrival order.
type Chunk struct {
	Seq  uint64
	Data []byte
}

// Scheduled describes where a chunk was placed on the output clock.
// StartFrame and Frames are exact; Start and Duration are derived from them.
type Scheduled struct {
	Seq        uint64
	StartFrame int64
	Frames     int64
	Start      time.Duration
	Duration   time.Duration
}

// End returns the position just after the chunk.
func (s Scheduled) End() time.Duration {
	return s.Start + s.Duration
}

// Stats reports scheduler counters.
type Stats struct {
	Scheduled  int64         `json:"scheduled"`
	Played     int64         `json:"played"`
	Stopped    int64         `json:"stopped"`
	Malformed  int64         `json:"malformed"`
	Interrupts int64         `json:"interrupts"`
	Pending    int           `json:"pending"`
	NextStart  time.Duration `json:"next_start"`
}

type entry struct {
	seq     uint64
	handle  audioio.Handle
	stopped bool
}

// Scheduler owns the playback cursor and the pending set. Enqueue and
// Interrupt serialise on one lock, so a chunk is never placed using a cursor
// that an interrupt has already reset.
type Scheduler struct {
	out    audioio.Output
	logger *slog.Logger

	mu        sync.Mutex
	nextFrame int64 // cursor, in output frames
	pending   map[uint64]*entry
	closed    bool
	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error

	scheduled  atomic.Int64
	played     atomic.Int64
	stopped    atomic.Int64
	malformed  atomic.Int64
	interrupts atomic.Int64
}

// New creates a scheduler on out. The scheduler owns out and closes it.
func New(out audioio.Output, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		out:     out,
		logger:  logger,
		pending: make(map[uint64]*entry),
	}
}

// Enqueue decodes c and schedules it at max(now, cursor). A malformed chunk
// returns a *pcm.MalformedAudioError and leaves the scheduler untouched.
func (s *Scheduler) Enqueue(c Chunk) (Scheduled, error) {
	cfg := s.out.Config()
	buf, err := pcm.PCM16ToBuffer(c.Data, cfg.Channels, cfg.SampleRate)
	if err != nil {
		s.malformed.Add(1)
		return Scheduled{}, err
	}
	samples := buf.Mono()
	frames := int64(buf.Frames())

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Scheduled{}, ErrClosed
	}

	startFrame := max(cfg.Frames(s.out.Now()), s.nextFrame)
	start := cfg.FrameTime(startFrame)
	h, err := s.out.Schedule(samples, start)
	if err != nil {
		return Scheduled{}, err
	}

	e := &entry{seq: c.Seq, handle: h}
	s.pending[c.Seq] = e
	s.nextFrame = startFrame + frames
	s.scheduled.Add(1)

	s.wg.Add(1)
	go s.watch(e)

	return Scheduled{
		Seq:        c.Seq,
		StartFrame: startFrame,
		Frames:     frames,
		Start:      start,
		Duration:   cfg.FrameTime(s.nextFrame) - start,
	}, nil
}

// watch removes e from the pending set once its handle completes.
func (s *Scheduler) watch(e *entry) {
	defer s.wg.Done()
	<-e.handle.Done()

	s.mu.Lock()
	defer s.mu.Unlock()

	if e.stopped {
		return
	}
	if cur, ok := s.pending[e.seq]; ok && cur == e {
		delete(s.pending, e.seq)
	}
	s.played.Add(1)
}

// Interrupt stops every pending chunk, clears the set and resets the cursor
// to the output's current time. It returns the number of chunks stopped.
func (s *Scheduler) Interrupt() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interruptLocked()
}

func (s *Scheduler) interruptLocked() int {
	n := len(s.pending)
	for seq, e := range s.pending {
		e.stopped = true
		e.handle.Stop()
		delete(s.pending, seq)
	}
	s.nextFrame = s.out.Config().Frames(s.out.Now())
	s.interrupts.Add(1)
	s.stopped.Add(int64(n))

	if n > 0 {
		s.logger.Debug("playback interrupted", "stopped", n)
	}
	return n
}

// Pending returns the number of chunks scheduled but not finished.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// PendingSeqs returns the sequence numbers of pending chunks in order.
func (s *Scheduler) PendingSeqs() []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Sorted(maps.Keys(s.pending))
}

// NextStart returns the playback cursor.
func (s *Scheduler) NextStart() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.out.Config().FrameTime(s.nextFrame)
}

// Now returns the output clock.
func (s *Scheduler) Now() time.Duration {
	return s.out.Now()
}

// Stats returns scheduler counters.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	pending, next := len(s.pending), s.out.Config().FrameTime(s.nextFrame)
	s.mu.Unlock()

	return Stats{
		Scheduled:  s.scheduled.Load(),
		Played:     s.played.Load(),
		Stopped:    s.stopped.Load(),
		Malformed:  s.malformed.Load(),
		Interrupts: s.interrupts.Load(),
		Pending:    pending,
		NextStart:  next,
	}
}

// Close interrupts playback, waits for watchers and closes the output.
// Safe to call more than once.
func (s *Scheduler) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.interruptLocked()
		s.mu.Unlock()

		s.wg.Wait()
		s.closeErr = s.out.Close()
	})
	return s.closeErr
}
