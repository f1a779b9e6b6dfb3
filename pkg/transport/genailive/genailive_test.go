package genailive

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/genai"

	"github.com/teslashibe/go-meri/pkg/pcm"
	"github.com/teslashibe/go-meri/pkg/protocol"
)

func TestConnectConfig(t *testing.T) {
	cfg := ConnectConfig(protocol.SetupOptions{
		Model:             "models/gemini-test",
		Voice:             "Kore",
		SystemInstruction: "You are Meri.",
		Functions: []protocol.FunctionDeclaration{{
			Name:        "openApp",
			Description: "Open an application",
			Parameters: &protocol.Schema{
				Type:       protocol.TypeObject,
				Properties: map[string]*protocol.Schema{"appName": {Type: protocol.TypeString}},
				Required:   []string{"appName"},
			},
		}},
	})

	if len(cfg.ResponseModalities) != 1 || cfg.ResponseModalities[0] != genai.ModalityAudio {
		t.Errorf("ResponseModalities = %v", cfg.ResponseModalities)
	}
	if got := cfg.SpeechConfig.VoiceConfig.PrebuiltVoiceConfig.VoiceName; got != "Kore" {
		t.Errorf("voice = %q", got)
	}
	if got := cfg.SystemInstruction.Parts[0].Text; got != "You are Meri." {
		t.Errorf("system instruction = %q", got)
	}
	if cfg.InputAudioTranscription == nil || cfg.OutputAudioTranscription == nil {
		t.Error("transcription not enabled")
	}

	decl := cfg.Tools[0].FunctionDeclarations[0]
	if decl.Name != "openApp" || decl.Parameters.Type != genai.TypeObject {
		t.Errorf("declaration = %+v", decl)
	}
	if decl.Parameters.Properties["appName"].Type != genai.TypeString {
		t.Errorf("appName schema = %+v", decl.Parameters.Properties["appName"])
	}
}

func TestConnectConfig_Minimal(t *testing.T) {
	cfg := ConnectConfig(protocol.SetupOptions{Model: "m"})
	if cfg.SpeechConfig != nil || cfg.SystemInstruction != nil || cfg.Tools != nil {
		t.Errorf("unexpected optional fields: %+v", cfg)
	}
}

func TestRealtimeInput(t *testing.T) {
	raw := pcm.FloatToPCM16([]float32{0, 0.5, -0.5})
	msg := protocol.NewAudioInput(pcm.EncodeTransport(raw))

	in, err := RealtimeInput(msg.RealtimeInput)
	if err != nil {
		t.Fatalf("RealtimeInput() error = %v", err)
	}
	if string(in.Audio.Data) != string(raw) {
		t.Errorf("data = %v, want %v", in.Audio.Data, raw)
	}
	if in.Audio.MIMEType != protocol.AudioInputMIME {
		t.Errorf("MIMEType = %q", in.Audio.MIMEType)
	}

	_, err = RealtimeInput(&protocol.RealtimeInput{Audio: &protocol.Blob{Data: "!!"}})
	if err == nil {
		t.Error("RealtimeInput() accepted invalid transport text")
	}
}

func TestToolResponse(t *testing.T) {
	msg := protocol.NewToolResponse("c1", "toggleTheme", "Theme toggled")
	out := ToolResponse(msg.ToolResponse)

	if len(out.FunctionResponses) != 1 {
		t.Fatalf("got %d responses", len(out.FunctionResponses))
	}
	fr := out.FunctionResponses[0]
	if fr.ID != "c1" || fr.Name != "toggleTheme" || fr.Response["result"] != "Theme toggled" {
		t.Errorf("response = %+v", fr)
	}
}

func TestEvents(t *testing.T) {
	msg := &genai.LiveServerMessage{
		ServerContent: &genai.LiveServerContent{
			InputTranscription:  &genai.Transcription{Text: "hi"},
			OutputTranscription: &genai.Transcription{Text: "hello"},
			ModelTurn: &genai.Content{Parts: []*genai.Part{
				{Text: "ignored"},
				{InlineData: &genai.Blob{MIMEType: "audio/pcm;rate=24000", Data: []byte{0, 0, 1, 0}}},
			}},
			TurnComplete: true,
		},
		ToolCall: &genai.LiveServerToolCall{FunctionCalls: []*genai.FunctionCall{
			{ID: "c1", Name: "openApp", Args: map[string]any{"appName": "Notes"}},
		}},
	}

	events := Events(msg)
	want := []protocol.Kind{
		protocol.KindInputTranscription,
		protocol.KindToolCall,
		protocol.KindAudio,
		protocol.KindOutputTranscription,
		protocol.KindTurnComplete,
	}
	if len(events) != len(want) {
		t.Fatalf("got %d events, want %d: %v", len(events), len(want), events)
	}
	for i, k := range want {
		if events[i].Kind != k {
			t.Errorf("event %d = %s, want %s", i, events[i].Kind, k)
		}
	}
	if events[1].Calls[0].Args["appName"] != "Notes" {
		t.Errorf("call args = %v", events[1].Calls[0].Args)
	}
	if len(events[2].Audio) != 4 {
		t.Errorf("audio = %v", events[2].Audio)
	}
}

func TestEvents_Interrupted(t *testing.T) {
	events := Events(&genai.LiveServerMessage{
		ServerContent: &genai.LiveServerContent{Interrupted: true},
	})
	if len(events) != 1 || events[0].Kind != protocol.KindInterrupted {
		t.Errorf("events = %v", events)
	}

	events = Events(&genai.LiveServerMessage{SetupComplete: &genai.LiveServerSetupComplete{}})
	if len(events) != 1 || events[0].Kind != protocol.KindSetupComplete {
		t.Errorf("events = %v", events)
	}
}

func TestNewDialer_MissingKey(t *testing.T) {
	if _, err := NewDialer(context.Background(), "", nil); !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("NewDialer() error = %v, want ErrMissingAPIKey", err)
	}
}
