package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/teslashibe/go-meri/pkg/audioio"
	"github.com/teslashibe/go-meri/pkg/protocol"
)

// ErrMockClosed is returned by MockTransport.Send after Close.
var ErrMockClosed = errors.New("session: mock transport closed")

// MockTransport is an in-memory Transport for testing. Inject plays the
// remote agent; Sent records what the session wrote.
type MockTransport struct {
	mu       sync.Mutex
	handler  func(protocol.Inbound)
	sent     []protocol.Outbound
	sendErr  error
	closeErr error
	closed   bool
	closes   int
}

// NewMockTransport creates an open MockTransport.
func NewMockTransport() *MockTransport {
	return &MockTransport{}
}

// Send records msg.
func (t *MockTransport) Send(ctx context.Context, msg protocol.Outbound) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrMockClosed
	}
	if t.sendErr != nil {
		return t.sendErr
	}
	t.sent = append(t.sent, msg)
	return nil
}

// OnMessage registers the inbound handler.
func (t *MockTransport) OnMessage(fn func(protocol.Inbound)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handler = fn
}

// Inject delivers events to the handler in order. It reports false if no
// handler is registered or the transport is closed.
func (t *MockTransport) Inject(events ...protocol.Inbound) bool {
	t.mu.Lock()
	fn, closed := t.handler, t.closed
	t.mu.Unlock()
	if fn == nil || closed {
		return false
	}
	for _, ev := range events {
		fn(ev)
	}
	return true
}

// FailSends makes every later Send return err.
func (t *MockTransport) FailSends(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sendErr = err
}

// FailClose makes Close mark the transport closed and then return err.
func (t *MockTransport) FailClose(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closeErr = err
}

// Sent returns a copy of every message sent.
func (t *MockTransport) Sent() []protocol.Outbound {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]protocol.Outbound(nil), t.sent...)
}

// AudioFrames returns the number of realtime audio messages sent.
func (t *MockTransport) AudioFrames() int {
	n := 0
	for _, msg := range t.Sent() {
		if msg.RealtimeInput != nil {
			n++
		}
	}
	return n
}

// ToolResponses returns every function response sent, in order.
func (t *MockTransport) ToolResponses() []protocol.FunctionResponse {
	var out []protocol.FunctionResponse
	for _, msg := range t.Sent() {
		if msg.ToolResponse != nil {
			out = append(out, msg.ToolResponse.FunctionResponses...)
		}
	}
	return out
}

// Close marks the transport closed.
func (t *MockTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.closes++
	return t.closeErr
}

// Closed reports whether Close was called.
func (t *MockTransport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// MockDialer hands out a new MockTransport per Dial.
type MockDialer struct {
	mu         sync.Mutex
	err        error
	delay      time.Duration
	transports []*MockTransport
	options    []protocol.SetupOptions
}

// NewMockDialer creates a dialer that succeeds immediately.
func NewMockDialer() *MockDialer {
	return &MockDialer{}
}

// Fail makes later dials return err.
func (d *MockDialer) Fail(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
}

// Delay makes later dials wait before answering.
func (d *MockDialer) Delay(delay time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.delay = delay
}

// Dial returns a fresh MockTransport.
func (d *MockDialer) Dial(ctx context.Context, opts protocol.SetupOptions) (Transport, error) {
	d.mu.Lock()
	err, delay := d.err, d.delay
	d.options = append(d.options, opts)
	d.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	t := NewMockTransport()
	d.mu.Lock()
	d.transports = append(d.transports, t)
	d.mu.Unlock()
	return t, nil
}

// Last returns the most recent transport, or nil.
func (d *MockDialer) Last() *MockTransport {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.transports) == 0 {
		return nil
	}
	return d.transports[len(d.transports)-1]
}

// Options returns the setup options of every dial.
func (d *MockDialer) Options() []protocol.SetupOptions {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]protocol.SetupOptions(nil), d.options...)
}

// MockDevices opens a MockSource and a ManualOutput per session.
type MockDevices struct {
	mu        sync.Mutex
	input     audioio.Config
	output    audioio.Config
	opts      []audioio.MockSourceOption
	sourceErr error
	outputErr error
	sources   []*audioio.MockSource
	outputs   []*audioio.ManualOutput
}

// NewMockDevices creates devices using the default 16kHz/24kHz configs.
func NewMockDevices(opts ...audioio.MockSourceOption) *MockDevices {
	return &MockDevices{
		input:  audioio.DefaultInputConfig(),
		output: audioio.DefaultOutputConfig(),
		opts:   opts,
	}
}

// FailSource makes later microphone acquisitions return err.
func (d *MockDevices) FailSource(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sourceErr = err
}

// FailOutput makes later speaker acquisitions return err.
func (d *MockDevices) FailOutput(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.outputErr = err
}

// OpenSource returns a new MockSource.
func (d *MockDevices) OpenSource(ctx context.Context) (audioio.Source, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sourceErr != nil {
		return nil, d.sourceErr
	}
	src := audioio.NewMockSource(d.input, nil, d.opts...)
	d.sources = append(d.sources, src)
	return src, nil
}

// OpenOutput returns a new ManualOutput.
func (d *MockDevices) OpenOutput(ctx context.Context) (audioio.Output, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.outputErr != nil {
		return nil, d.outputErr
	}
	out := audioio.NewManualOutput(d.output)
	d.outputs = append(d.outputs, out)
	return out, nil
}

// LastSource returns the most recent microphone, or nil.
func (d *MockDevices) LastSource() *audioio.MockSource {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.sources) == 0 {
		return nil
	}
	return d.sources[len(d.sources)-1]
}

// LastOutput returns the most recent speaker, or nil.
func (d *MockDevices) LastOutput() *audioio.ManualOutput {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.outputs) == 0 {
		return nil
	}
	return d.outputs[len(d.outputs)-1]
}

var (
	_ Transport = (*MockTransport)(nil)
	_ Dialer    = (*MockDialer)(nil)
	_ Devices   = (*MockDevices)(nil)
)
