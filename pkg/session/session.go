// Package session runs one voice conversation with the remote agent.
//
// A Session owns the microphone, the speaker and the transport for its
// lifetime. Capture streams frames out on its own goroutines; inbound
// events are handled one at a time, in arrival order, on the session's
// event loop, which is the only writer of status and transcript.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-meri/pkg/audioio"
	"github.com/teslashibe/go-meri/pkg/capture"
	"github.com/teslashibe/go-meri/pkg/pcm"
	"github.com/teslashibe/go-meri/pkg/playback"
	"github.com/teslashibe/go-meri/pkg/protocol"
	"github.com/teslashibe/go-meri/pkg/tools"
)

const inboxSize = 64

// Deps are the collaborators a session is built from.
type Deps struct {
	Dialer  Dialer
	Devices Devices
	Tools   ToolDispatcher
	Logger  *slog.Logger

	// OnSnapshot is called after every observable change, from whichever
	// session goroutine made it. It must not block or call Close.
	OnSnapshot func(Snapshot)
}

func (d Deps) validate() error {
	switch {
	case d.Dialer == nil:
		return errors.New("session: dialer is required")
	case d.Devices == nil:
		return errors.New("session: devices are required")
	case d.Tools == nil:
		return errors.New("session: tool dispatcher is required")
	}
	return nil
}

// envelope carries one inbound event, or a flush marker when ack is set.
type envelope struct {
	ev  protocol.Inbound
	ack chan struct{}
}

// Session is one open voice interaction.
type Session struct {
	id      string
	cfg     Config
	deps    Deps
	logger  *slog.Logger
	metrics *MetricsCollector

	ctx    context.Context
	cancel context.CancelFunc

	source    audioio.Source
	output    audioio.Output
	transport Transport
	capture   *capture.Pipeline
	scheduler *playback.Scheduler

	inbox chan envelope
	done  chan struct{} // closed when teardown starts
	ended chan struct{} // closed when teardown finished
	wg    sync.WaitGroup

	mu         sync.Mutex
	status     Status
	transcript Transcript
	err        error

	snapSeq uint64 // guarded by mu

	volume   atomic.Uint64 // math.Float64bits
	chunkSeq uint64        // event loop only

	teardownOnce sync.Once
	teardownErr  error
}

// Open acquires the devices and dials the transport concurrently, then
// starts capture and the event loop. On failure everything acquired is
// released, an error snapshot is published, and the device or transport
// error is returned.
//
// ctx bounds opening only; the session lives until Close or a fatal error.
func Open(ctx context.Context, cfg Config, deps Deps) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	id := uuid.NewString()
	s := &Session{
		id:      id,
		cfg:     cfg,
		deps:    deps,
		logger:  deps.Logger.With("session_id", id),
		metrics: NewMetricsCollector(),
		inbox:   make(chan envelope, inboxSize),
		done:    make(chan struct{}),
		ended:   make(chan struct{}),
		status:  StatusConnecting,
	}
	s.ctx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))
	s.publish()

	openCtx, cancel := context.WithTimeout(ctx, cfg.OpenTimeout)
	defer cancel()

	start := time.Now()
	if err := s.connect(openCtx); err != nil {
		s.fail(err)
		return nil, err
	}

	s.scheduler = playback.New(s.output, s.logger)
	s.capture = capture.New(s.source, capture.SenderFunc(s.sendAudio), cfg.Capture, s.logger)
	s.capture.OnVolume(s.setVolume)
	s.capture.OnError(func(err error) {
		s.deliver(protocol.NewErrorEvent(s.micError(err)))
	})

	s.setStatus(StatusListening)

	s.wg.Add(1)
	go s.loop()
	s.transport.OnMessage(s.deliver)

	if err := s.capture.Start(s.ctx); err != nil {
		err = s.micError(err)
		s.fail(err)
		s.wg.Wait()
		return nil, err
	}

	s.logger.Info("session open",
		"model", cfg.Model,
		"voice", cfg.Voice,
		"microphone", s.source.Name(),
		"speaker", s.output.Name(),
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return s, nil
}

// connect acquires the devices and the transport in parallel. Whatever was
// acquired is kept on s so teardown can release it.
func (s *Session) connect(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		failOnce sync.Once
		firstErr error
	)
	// The first failure cancels the other side and is the one reported.
	failWith := func(err error) {
		failOnce.Do(func() {
			firstErr = err
			cancel()
		})
	}

	wg.Add(2)
	go func() {
		defer wg.Done()
		src, err := s.deps.Devices.OpenSource(ctx)
		if err != nil {
			failWith(asDeviceError(err, audioio.RoleMicrophone))
			return
		}
		s.source = src

		out, err := s.deps.Devices.OpenOutput(ctx)
		if err != nil {
			failWith(asDeviceError(err, audioio.RoleSpeaker))
			return
		}
		s.output = out
	}()
	go func() {
		defer wg.Done()
		opts := s.cfg.SetupOptions(s.deps.Tools.Declarations())
		tr, err := s.deps.Dialer.Dial(ctx, opts)
		if err != nil {
			if !errors.Is(err, ErrTransport) {
				err = &TransportError{Op: OpDial, Err: err}
			}
			failWith(err)
			return
		}
		s.transport = tr
	}()
	wg.Wait()

	return firstErr
}

func asDeviceError(err error, role string) error {
	if errors.Is(err, audioio.ErrDeviceUnavailable) {
		return err
	}
	return &audioio.DeviceAcquisitionError{Role: role, Err: err}
}

func (s *Session) micError(err error) error {
	if errors.Is(err, audioio.ErrDeviceUnavailable) {
		return err
	}
	return &audioio.DeviceAcquisitionError{
		Role:    audioio.RoleMicrophone,
		Backend: s.source.Config().Backend,
		Err:     err,
	}
}

// sendAudio is the capture pipeline's sender. Frames are refused until the
// channel is open and after the session ended.
func (s *Session) sendAudio(ctx context.Context, msg protocol.Outbound) error {
	switch s.Status() {
	case StatusConnecting, StatusError, StatusClosed:
		return capture.ErrNotReady
	}

	if err := s.transport.Send(ctx, msg); err != nil {
		if ctx.Err() != nil {
			// Slow or stopping; the frame is dropped.
			return err
		}
		s.deliver(protocol.NewErrorEvent(&TransportError{Op: OpSend, Err: err}))
		return err
	}
	return nil
}

// deliver queues an inbound event for the event loop. It blocks while the
// queue is full and returns immediately once the session ended.
func (s *Session) deliver(ev protocol.Inbound) {
	select {
	case s.inbox <- envelope{ev: ev}:
	case <-s.done:
	}
}

// flush waits until every event delivered before the call was handled.
func (s *Session) flush() {
	ack := make(chan struct{})
	select {
	case s.inbox <- envelope{ack: ack}:
	case <-s.done:
		return
	}
	select {
	case <-ack:
	case <-s.done:
	}
}

func (s *Session) loop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case env := <-s.inbox:
			if env.ack != nil {
				close(env.ack)
				continue
			}
			s.handle(env.ev)
		}
	}
}

func (s *Session) handle(ev protocol.Inbound) {
	if s.Status().Final() {
		return
	}

	switch ev.Kind {
	case protocol.KindInputTranscription:
		s.metrics.MarkTurnStart()
		s.update(func() { s.transcript.User += ev.Text })

	case protocol.KindOutputTranscription:
		s.update(func() { s.transcript.Model += ev.Text })

	case protocol.KindAudio:
		s.handleAudio(ev)

	case protocol.KindToolCall:
		s.handleToolCalls(ev.Calls)

	case protocol.KindToolCancellation:
		s.logger.Info("tool calls cancelled", "ids", ev.IDs)

	case protocol.KindTurnComplete:
		s.metrics.MarkTurnDone(false)
		s.setStatus(StatusListening)

	case protocol.KindInterrupted:
		n := s.scheduler.Interrupt()
		s.metrics.MarkTurnDone(true)
		s.logger.Debug("agent interrupted", "stopped", n)
		s.setStatus(StatusListening)

	case protocol.KindGoAway:
		s.logger.Warn("server is closing the connection", "time_left", ev.Text)

	case protocol.KindSetupComplete:

	case protocol.KindError:
		s.fail(classify(ev.Err))

	default:
		s.logger.Debug("ignoring inbound event", "kind", ev.Kind)
	}
}

func (s *Session) handleAudio(ev protocol.Inbound) {
	if ev.Err != nil {
		s.metrics.MarkMalformed()
		s.logger.Warn("dropping malformed audio chunk", "error", ev.Err)
		return
	}

	s.chunkSeq++
	sch, err := s.scheduler.Enqueue(playback.Chunk{Seq: s.chunkSeq, Data: ev.Audio})
	switch {
	case err == nil:
	case errors.Is(err, pcm.ErrMalformedAudio):
		s.metrics.MarkMalformed()
		s.logger.Warn("dropping malformed audio chunk", "seq", s.chunkSeq, "error", err)
		return
	case errors.Is(err, playback.ErrClosed):
		return
	default:
		s.logger.Warn("audio chunk not scheduled", "seq", s.chunkSeq, "error", err)
		return
	}

	s.metrics.MarkChunk()
	s.logger.Debug("audio chunk scheduled", "seq", sch.Seq, "start", sch.Start, "duration", sch.Duration)
	s.setStatus(StatusSpeaking)
}

// handleToolCalls dispatches each call synchronously and answers it with
// its call ID before the next inbound event is handled.
func (s *Session) handleToolCalls(calls []protocol.FunctionCall) {
	for _, inv := range tools.InvocationsFrom(calls) {
		res := s.deps.Tools.Dispatch(s.ctx, inv)
		s.metrics.MarkToolCall(res.Err != nil)
		s.logger.Info("tool call",
			"tool", inv.Name,
			"call_id", inv.CallID,
			"result", res.Output,
			"duration", res.Duration,
		)

		if err := s.transport.Send(s.ctx, res.Message()); err != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.fail(&TransportError{Op: OpSend, Err: err})
			return
		}
	}
}

func (s *Session) setStatus(next Status) {
	s.mu.Lock()
	if s.status.Final() || s.status == next {
		s.mu.Unlock()
		return
	}
	prev := s.status
	s.status = next
	s.mu.Unlock()

	s.logger.Debug("status changed", "from", prev, "to", next)
	s.publish()
}

func (s *Session) update(fn func()) {
	s.mu.Lock()
	fn()
	s.mu.Unlock()
	s.publish()
}

func (s *Session) setVolume(v float64) {
	if s.Status().Final() {
		return
	}
	s.volume.Store(math.Float64bits(v))
	s.publish()
}

// publish stamps a new snapshot and hands it to OnSnapshot. Snapshots can
// reach OnSnapshot out of order; Seq tells the receiver which is newer.
func (s *Session) publish() {
	if s.deps.OnSnapshot == nil {
		return
	}
	s.mu.Lock()
	s.snapSeq++
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.deps.OnSnapshot(snap)
}

// fail ends the session with err. Safe from any session goroutine.
func (s *Session) fail(err error) {
	s.logger.Error("session failed", "error", err)
	s.teardown(StatusError, err)
}

// teardown stops capture, clears and closes playback, closes the transport
// and releases the devices. Every step runs even if an earlier one fails.
// It does not wait for the event loop, so the loop may call it.
func (s *Session) teardown(final Status, cause error) error {
	s.teardownOnce.Do(func() {
		s.mu.Lock()
		s.status = final
		s.err = cause
		if final == StatusClosed {
			s.transcript = Transcript{}
		}
		s.mu.Unlock()

		close(s.done)
		s.cancel()

		var errs []error
		switch {
		case s.capture != nil:
			errs = append(errs, s.capture.Stop())
		case s.source != nil:
			errs = append(errs, s.source.Close())
		}
		switch {
		case s.scheduler != nil:
			errs = append(errs, s.scheduler.Close())
		case s.output != nil:
			errs = append(errs, s.output.Close())
		}
		if s.transport != nil {
			errs = append(errs, s.transport.Close())
		}
		s.volume.Store(0)

		s.teardownErr = errors.Join(errs...)
		if s.teardownErr != nil {
			s.logger.Warn("teardown incomplete", "error", s.teardownErr)
		}
		s.publish()
		close(s.ended)
	})
	return s.teardownErr
}

// Close ends the session and waits for its goroutines. The first fatal
// error, if any, stays on Err. Safe to call more than once.
func (s *Session) Close() error {
	err := s.teardown(StatusClosed, nil)
	s.wg.Wait()
	if err != nil {
		return fmt.Errorf("session: close: %w", err)
	}
	s.logger.Info("session closed")
	return nil
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Status returns the current status.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Transcript returns the conversation so far.
func (s *Session) Transcript() Transcript {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcript
}

// Volume returns the latest microphone level in [0,1].
func (s *Session) Volume() float64 {
	return math.Float64frombits(s.volume.Load())
}

// Err returns the error that ended the session, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Done is closed once the session ended and released its resources.
func (s *Session) Done() <-chan struct{} {
	return s.ended
}

// Snapshot returns the observable state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		ID:         s.id,
		Seq:        s.snapSeq,
		Status:     s.status,
		Label:      s.status.Label(),
		Volume:     s.Volume(),
		Transcript: s.transcript,
		Error:      UserMessage(s.err),
		UpdatedAt:  time.Now(),
	}
	if s.scheduler != nil {
		snap.Pending = s.scheduler.Pending()
	}
	return snap
}

// Metrics returns the session counters.
func (s *Session) Metrics() Metrics {
	toolCalls, toolFailures, malformed := s.metrics.counters()
	m := Metrics{
		Turns:        s.metrics.Turns(),
		ToolCalls:    toolCalls,
		ToolFailures: toolFailures,
		Malformed:    malformed,
		Current:      s.metrics.Current(),
		Average:      s.metrics.Average(),
	}
	if s.capture != nil {
		m.Capture = s.capture.Stats()
	}
	if s.scheduler != nil {
		m.Playback = s.scheduler.Stats()
	}
	return m
}
