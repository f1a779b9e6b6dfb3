//go:build opus

package audioio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net"
	"sync"
	"sync/atomic"

	"github.com/pion/rtp"
	"gopkg.in/hraban/opus.v2"

	"github.com/teslashibe/go-meri/pkg/pcm"
)

const rtpAvailable = true

const (
	// rtpPayloadType is the dynamic payload type used for Opus.
	rtpPayloadType = 96
	// rtpClockRate is the Opus RTP clock rate regardless of sample rate.
	rtpClockRate = 48000
	// maxOpusFrame is 120ms at 48kHz, the largest Opus frame.
	maxOpusFrame = 5760
)

// RTPSource receives Opus over RTP/UDP and re-frames the decoded audio
// into FrameSize frames.
type RTPSource struct {
	cfg     Config
	logger  *slog.Logger
	conn    net.PacketConn
	decoder *opus.Decoder

	mu       sync.Mutex
	running  bool
	closed   bool
	streamCh chan Frame
	stopCh   chan struct{}

	framesRead   atomic.Int64
	samplesRead  atomic.Int64
	overruns     atomic.Int64
	decodeErrors atomic.Int64
}

func newRTPSource(cfg Config, logger *slog.Logger) (Source, error) {
	decoder, err := opus.NewDecoder(cfg.SampleRate, 1)
	if err != nil {
		return nil, fmt.Errorf("create opus decoder: %w", err)
	}

	conn, err := net.ListenPacket("udp", cfg.Device)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", cfg.Device, err)
	}

	logger.Info("rtp source listening", "addr", conn.LocalAddr().String(), "sample_rate", cfg.SampleRate)

	return &RTPSource{
		cfg:      cfg,
		logger:   logger,
		conn:     conn,
		decoder:  decoder,
		streamCh: make(chan Frame, 10),
		stopCh:   make(chan struct{}),
	}, nil
}

// Start begins receiving packets.
func (s *RTPSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return io.ErrClosedPipe
	}
	if s.running {
		return nil
	}

	s.running = true
	s.stopCh = make(chan struct{})
	s.streamCh = make(chan Frame, 10)
	go s.receiveLoop(s.stopCh, s.streamCh)
	return nil
}

func (s *RTPSource) receiveLoop(stopCh chan struct{}, streamCh chan Frame) {
	defer close(streamCh)

	buf := make([]byte, 1500)
	decoded := make([]int16, maxOpusFrame)
	pending := make([]float32, 0, s.cfg.BufferSize())

	for {
		n, _, err := s.conn.ReadFrom(buf)
		select {
		case <-stopCh:
			return
		default:
		}
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn("rtp source read failed", "error", err)
			continue
		}

		var pkt rtp.Packet
		if err := pkt.Unmarshal(buf[:n]); err != nil {
			s.decodeErrors.Add(1)
			continue
		}

		samples, err := s.decoder.Decode(pkt.Payload, decoded)
		if err != nil {
			if s.decodeErrors.Add(1) <= 5 {
				s.logger.Debug("opus decode failed", "seq", pkt.SequenceNumber, "error", err)
			}
			continue
		}

		pending = append(pending, pcm.Int16ToFloat(decoded[:samples])...)
		for len(pending) >= s.cfg.BufferSize() {
			frame := Frame{
				Samples:    append([]float32(nil), pending[:s.cfg.BufferSize()]...),
				SampleRate: s.cfg.SampleRate,
			}
			pending = pending[s.cfg.BufferSize():]

			select {
			case streamCh <- frame:
				s.framesRead.Add(1)
				s.samplesRead.Add(int64(len(frame.Samples)))
			default:
				s.overruns.Add(1)
			}
		}
	}
}

// Stop halts delivery. Packets arriving after Stop are discarded.
func (s *RTPSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false
	close(s.stopCh)
	return nil
}

// Read returns the next decoded frame.
func (s *RTPSource) Read(ctx context.Context) (Frame, error) {
	s.mu.Lock()
	streamCh := s.streamCh
	running := s.running
	s.mu.Unlock()

	if !running {
		return Frame{}, io.EOF
	}

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
func (s *RTPSource) Config() Config {
	return s.cfg
}

// Name returns "rtp".
func (s *RTPSource) Name() string {
	return string(BackendRTP)
}

// Close stops the source and closes the socket, which unblocks the
// receive loop.
func (s *RTPSource) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.Stop()
	return s.conn.Close()
}

// Stats returns source statistics.
func (s *RTPSource) Stats() SourceStats {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()

	return SourceStats{
		FramesRead:  s.framesRead.Load(),
		SamplesRead: s.samplesRead.Load(),
		Overruns:    s.overruns.Load(),
		Running:     running,
		Backend:     string(BackendRTP),
	}
}

var _ SourceWithStats = (*RTPSource)(nil)

// rtpWriter Opus-encodes mixer periods and sends them as RTP packets.
type rtpWriter struct {
	conn    net.Conn
	encoder *opus.Encoder
	logger  *slog.Logger

	header   rtp.Header
	tsStep   uint32
	outBuf   []byte
	failures int
}

func newRTPWriter(cfg Config, logger *slog.Logger) (FrameWriter, error) {
	encoder, err := opus.NewEncoder(cfg.SampleRate, 1, opus.AppVoIP)
	if err != nil {
		return nil, fmt.Errorf("create opus encoder: %w", err)
	}

	conn, err := net.Dial("udp", cfg.Device)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cfg.Device, err)
	}

	logger.Info("rtp output sending", "addr", cfg.Device, "sample_rate", cfg.SampleRate)

	return &rtpWriter{
		conn:    conn,
		encoder: encoder,
		logger:  logger,
		header: rtp.Header{
			Version:        2,
			PayloadType:    rtpPayloadType,
			SequenceNumber: uint16(rand.Uint32()),
			Timestamp:      rand.Uint32(),
			SSRC:           rand.Uint32(),
		},
		tsStep: uint32(cfg.BufferSize() * rtpClockRate / cfg.SampleRate),
		outBuf: make([]byte, 4000),
	}, nil
}

func (w *rtpWriter) WriteFrame(ctx context.Context, samples []int16) error {
	n, err := w.encoder.Encode(samples, w.outBuf)
	if err != nil {
		return fmt.Errorf("opus encode: %w", err)
	}

	pkt := rtp.Packet{Header: w.header, Payload: w.outBuf[:n]}
	data, err := pkt.Marshal()
	if err != nil {
		return fmt.Errorf("marshal rtp: %w", err)
	}

	w.header.SequenceNumber++
	w.header.Timestamp += w.tsStep

	if _, err := w.conn.Write(data); err != nil {
		w.failures++
		if w.failures <= 5 {
			w.logger.Debug("rtp send failed", "error", err)
		}
	}
	return nil
}

func (w *rtpWriter) Close() error {
	return w.conn.Close()
}
