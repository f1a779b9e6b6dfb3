// Package genailive connects sessions to Gemini Live through the
// google.golang.org/genai SDK.
package genailive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"google.golang.org/genai"

	"github.com/teslashibe/go-meri/internal/httpc"
	"github.com/teslashibe/go-meri/pkg/pcm"
	"github.com/teslashibe/go-meri/pkg/protocol"
	"github.com/teslashibe/go-meri/pkg/session"
)

var (
	// ErrMissingAPIKey is returned when no API key is configured.
	ErrMissingAPIKey = errors.New("genailive: API key is required")

	// ErrClosed is returned by Send after Close.
	ErrClosed = errors.New("genailive: session closed")

	// ErrEmptyMessage is returned by Send for a message with no payload.
	ErrEmptyMessage = errors.New("genailive: empty outbound message")
)

// Dialer opens Live sessions on one genai client.
type Dialer struct {
	client *genai.Client
	logger *slog.Logger
}

// NewDialer creates a genai client for the Gemini API backend.
func NewDialer(ctx context.Context, apiKey string, logger *slog.Logger) (*Dialer, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpc.NewClient(httpc.DefaultTimeout),
	})
	if err != nil {
		return nil, fmt.Errorf("genailive: create client: %w", err)
	}
	return &Dialer{client: client, logger: logger}, nil
}

// Dial implements session.Dialer. The SDK returns once the setup was sent;
// the first Receive yields setupComplete, which is passed through.
func (d *Dialer) Dial(ctx context.Context, opts protocol.SetupOptions) (session.Transport, error) {
	model := strings.TrimPrefix(opts.Model, "models/")
	live, err := d.client.Live.Connect(ctx, model, ConnectConfig(opts))
	if err != nil {
		return nil, fmt.Errorf("genailive: connect: %w", err)
	}

	d.logger.Info("genai live connected", "model", model, "voice", opts.Voice, "tools", len(opts.Functions))
	return &Conn{live: live, logger: d.logger}, nil
}

// Conn adapts a *genai.Session to session.Transport.
type Conn struct {
	live   *genai.Session
	logger *slog.Logger

	sendMu sync.Mutex

	mu      sync.Mutex
	handler func(protocol.Inbound)
	closed  bool

	startOnce sync.Once
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// Send converts msg to the SDK's realtime input or tool response.
func (c *Conn) Send(ctx context.Context, msg protocol.Outbound) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.isClosed() {
		return ErrClosed
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	switch {
	case msg.RealtimeInput != nil && msg.RealtimeInput.Audio != nil:
		input, err := RealtimeInput(msg.RealtimeInput)
		if err != nil {
			return err
		}
		return c.live.SendRealtimeInput(input)
	case msg.ToolResponse != nil:
		return c.live.SendToolResponse(ToolResponse(msg.ToolResponse))
	default:
		return ErrEmptyMessage
	}
}

// OnMessage registers the handler and starts receiving.
func (c *Conn) OnMessage(fn func(protocol.Inbound)) {
	c.mu.Lock()
	c.handler = fn
	c.mu.Unlock()

	c.startOnce.Do(func() {
		c.wg.Add(1)
		go c.receiveLoop()
	})
}

func (c *Conn) receiveLoop() {
	defer c.wg.Done()

	for {
		msg, err := c.live.Receive()
		if err != nil {
			if c.isClosed() {
				return
			}
			c.emit(protocol.NewErrorEvent(fmt.Errorf("genailive: receive: %w", err)))
			return
		}
		for _, ev := range Events(msg) {
			c.emit(ev)
		}
	}
}

func (c *Conn) emit(ev protocol.Inbound) {
	c.mu.Lock()
	fn := c.handler
	c.mu.Unlock()
	if fn != nil {
		fn(ev)
	}
}

func (c *Conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close closes the Live session and waits for the receiver.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()

		err = c.live.Close()
		c.wg.Wait()
	})
	return err
}

// ConnectConfig builds the Live config: audio responses in the given voice,
// the system instruction, tool declarations and both transcriptions.
func ConnectConfig(opts protocol.SetupOptions) *genai.LiveConnectConfig {
	cfg := &genai.LiveConnectConfig{
		ResponseModalities:       []genai.Modality{genai.ModalityAudio},
		InputAudioTranscription:  &genai.AudioTranscriptionConfig{},
		OutputAudioTranscription: &genai.AudioTranscriptionConfig{},
	}
	if opts.Voice != "" {
		cfg.SpeechConfig = &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: opts.Voice},
			},
		}
	}
	if opts.SystemInstruction != "" {
		cfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: opts.SystemInstruction}},
		}
	}
	if len(opts.Functions) > 0 {
		decls := make([]*genai.FunctionDeclaration, len(opts.Functions))
		for i, fn := range opts.Functions {
			decls[i] = &genai.FunctionDeclaration{
				Name:        fn.Name,
				Description: fn.Description,
				Parameters:  schema(fn.Parameters),
			}
		}
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}
	return cfg
}

func schema(s *protocol.Schema) *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{
		Type:        genai.Type(s.Type),
		Description: s.Description,
		Required:    s.Required,
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, prop := range s.Properties {
			out.Properties[name] = schema(prop)
		}
	}
	return out
}

// RealtimeInput decodes the transport text back to PCM for the SDK, which
// does its own encoding.
func RealtimeInput(in *protocol.RealtimeInput) (genai.LiveRealtimeInput, error) {
	data, err := pcm.DecodeTransport(in.Audio.Data)
	if err != nil {
		return genai.LiveRealtimeInput{}, err
	}
	return genai.LiveRealtimeInput{
		Audio: &genai.Blob{Data: data, MIMEType: in.Audio.MIMEType},
	}, nil
}

// ToolResponse converts function responses to the SDK form.
func ToolResponse(r *protocol.ToolResponse) genai.LiveToolResponseInput {
	out := genai.LiveToolResponseInput{
		FunctionResponses: make([]*genai.FunctionResponse, len(r.FunctionResponses)),
	}
	for i, fr := range r.FunctionResponses {
		out.FunctionResponses[i] = &genai.FunctionResponse{
			ID:       fr.ID,
			Name:     fr.Name,
			Response: map[string]any{"result": fr.Response.Result},
		}
	}
	return out
}

// Events flattens an SDK message into inbound events, in the same order as
// protocol.ServerMessage.Events.
func Events(m *genai.LiveServerMessage) []protocol.Inbound {
	var events []protocol.Inbound

	if m.SetupComplete != nil {
		events = append(events, protocol.Inbound{Kind: protocol.KindSetupComplete})
	}

	sc := m.ServerContent
	if sc != nil && sc.InputTranscription != nil && sc.InputTranscription.Text != "" {
		events = append(events, protocol.Inbound{Kind: protocol.KindInputTranscription, Text: sc.InputTranscription.Text})
	}

	if m.ToolCall != nil && len(m.ToolCall.FunctionCalls) > 0 {
		calls := make([]protocol.FunctionCall, 0, len(m.ToolCall.FunctionCalls))
		for _, fc := range m.ToolCall.FunctionCalls {
			if fc == nil {
				continue
			}
			calls = append(calls, protocol.FunctionCall{ID: fc.ID, Name: fc.Name, Args: fc.Args})
		}
		events = append(events, protocol.Inbound{Kind: protocol.KindToolCall, Calls: calls})
	}
	if m.ToolCallCancellation != nil {
		events = append(events, protocol.Inbound{Kind: protocol.KindToolCancellation, IDs: m.ToolCallCancellation.IDs})
	}

	if sc != nil {
		if sc.ModelTurn != nil {
			for _, part := range sc.ModelTurn.Parts {
				if part == nil || part.InlineData == nil || !strings.HasPrefix(part.InlineData.MIMEType, "audio/") {
					continue
				}
				events = append(events, protocol.Inbound{
					Kind:     protocol.KindAudio,
					MIMEType: part.InlineData.MIMEType,
					Audio:    part.InlineData.Data,
				})
			}
		}
		if sc.OutputTranscription != nil && sc.OutputTranscription.Text != "" {
			events = append(events, protocol.Inbound{Kind: protocol.KindOutputTranscription, Text: sc.OutputTranscription.Text})
		}
		if sc.TurnComplete {
			events = append(events, protocol.Inbound{Kind: protocol.KindTurnComplete})
		}
		if sc.Interrupted {
			events = append(events, protocol.Inbound{Kind: protocol.KindInterrupted})
		}
	}

	if m.GoAway != nil {
		events = append(events, protocol.Inbound{Kind: protocol.KindGoAway, Text: fmt.Sprint(m.GoAway.TimeLeft)})
	}

	return events
}

var (
	_ session.Transport = (*Conn)(nil)
	_ session.Dialer    = (*Dialer)(nil)
)
