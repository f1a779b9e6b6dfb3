package protocol

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/teslashibe/go-meri/pkg/pcm"
)

// =============================================================================
// Helper functions for creating messages
// =============================================================================

// NewAudioInput wraps transport-encoded 16kHz PCM as a realtime input.
func NewAudioInput(data string) Outbound {
	return Outbound{RealtimeInput: &RealtimeInput{
		Audio: &Blob{MIMEType: AudioInputMIME, Data: data},
	}}
}

// NewToolResponse answers the call identified by id.
func NewToolResponse(id, name, result string) Outbound {
	return Outbound{ToolResponse: &ToolResponse{
		FunctionResponses: []FunctionResponse{{
			ID:       id,
			Name:     name,
			Response: FunctionResult{Result: result},
		}},
	}}
}

// SetupOptions configures NewSetup.
type SetupOptions struct {
	Model             string
	Voice             string
	SystemInstruction string
	Functions         []FunctionDeclaration
}

// NewSetup builds an audio-only setup message with input and output
// transcription enabled.
func NewSetup(opts SetupOptions) SetupMessage {
	model := opts.Model
	if !strings.HasPrefix(model, "models/") {
		model = "models/" + model
	}

	s := &Setup{
		Model: model,
		GenerationConfig: &GenerationConfig{
			ResponseModalities: []string{"AUDIO"},
		},
		InputAudioTranscription:  &AudioTranscriptionConfig{},
		OutputAudioTranscription: &AudioTranscriptionConfig{},
	}
	if opts.Voice != "" {
		s.GenerationConfig.SpeechConfig = &SpeechConfig{
			VoiceConfig: VoiceConfig{PrebuiltVoiceConfig: PrebuiltVoiceConfig{VoiceName: opts.Voice}},
		}
	}
	if opts.SystemInstruction != "" {
		s.SystemInstruction = &Content{Parts: []Part{{Text: opts.SystemInstruction}}}
	}
	if len(opts.Functions) > 0 {
		s.Tools = []Tool{{FunctionDeclarations: opts.Functions}}
	}
	return SetupMessage{Setup: s}
}

// ParseServerMessage parses a JSON server message.
func ParseServerMessage(data []byte) (*ServerMessage, error) {
	var msg ServerMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse server message: %w", err)
	}
	return &msg, nil
}

// Events flattens a server message into inbound events in processing order:
// input transcription, tool calls, audio, output transcription, turn
// complete, interrupted.
func (m *ServerMessage) Events() []Inbound {
	var events []Inbound

	if m.SetupComplete != nil {
		events = append(events, Inbound{Kind: KindSetupComplete})
	}

	sc := m.ServerContent
	if sc != nil && sc.InputTranscription != nil && sc.InputTranscription.Text != "" {
		events = append(events, Inbound{Kind: KindInputTranscription, Text: sc.InputTranscription.Text})
	}

	if m.ToolCall != nil && len(m.ToolCall.FunctionCalls) > 0 {
		events = append(events, Inbound{Kind: KindToolCall, Calls: m.ToolCall.FunctionCalls})
	}
	if m.ToolCallCancellation != nil {
		events = append(events, Inbound{Kind: KindToolCancellation, IDs: m.ToolCallCancellation.IDs})
	}

	if sc != nil {
		if sc.ModelTurn != nil {
			for _, part := range sc.ModelTurn.Parts {
				if part.InlineData == nil || !strings.HasPrefix(part.InlineData.MIMEType, "audio/") {
					continue
				}
				events = append(events, audioEvent(part.InlineData))
			}
		}
		if sc.OutputTranscription != nil && sc.OutputTranscription.Text != "" {
			events = append(events, Inbound{Kind: KindOutputTranscription, Text: sc.OutputTranscription.Text})
		}
		if sc.TurnComplete {
			events = append(events, Inbound{Kind: KindTurnComplete})
		}
		if sc.Interrupted {
			events = append(events, Inbound{Kind: KindInterrupted})
		}
	}

	if m.GoAway != nil {
		events = append(events, Inbound{Kind: KindGoAway, Text: m.GoAway.TimeLeft})
	}

	return events
}

func audioEvent(b *Blob) Inbound {
	data, err := pcm.DecodeTransport(b.Data)
	if err != nil {
		return Inbound{Kind: KindAudio, MIMEType: b.MIMEType, Err: fmt.Errorf("%w: %w", pcm.ErrMalformedAudio, err)}
	}
	return Inbound{Kind: KindAudio, MIMEType: b.MIMEType, Audio: data}
}

// NewErrorEvent wraps a transport failure as an inbound event.
func NewErrorEvent(err error) Inbound {
	return Inbound{Kind: KindError, Err: err}
}
