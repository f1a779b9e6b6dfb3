// Package protocol defines the Gemini Live message types exchanged between a
// voice session and the remote agent, plus the transport-neutral Inbound
// event a session consumes.
package protocol

import (
	"encoding/json"
	"fmt"
)

// AudioInputMIME is the media type of microphone audio sent to the agent.
const AudioInputMIME = "audio/pcm;rate=16000"

// Kind identifies an inbound event.
type Kind string

const (
	KindInputTranscription  Kind = "input_transcription"  // partial user transcript
	KindOutputTranscription Kind = "output_transcription" // partial model transcript
	KindAudio               Kind = "audio"                // model-turn speech
	KindToolCall            Kind = "tool_call"            // function calls to dispatch
	KindToolCancellation    Kind = "tool_cancellation"    // calls the agent no longer needs
	KindTurnComplete        Kind = "turn_complete"
	KindInterrupted         Kind = "interrupted"
	KindSetupComplete       Kind = "setup_complete"
	KindGoAway              Kind = "go_away"
	KindError               Kind = "error"
)

// Inbound is one event received from the agent. Which fields are set depends
// on Kind.
type Inbound struct {
	Kind Kind

	// Text is set for transcription events and GoAway (time left).
	Text string

	// Audio holds PCM16 at the output rate for KindAudio. If the payload
	// could not be decoded, Audio is nil and Err is set.
	Audio    []byte
	MIMEType string

	// Calls is set for KindToolCall.
	Calls []FunctionCall

	// IDs is set for KindToolCancellation.
	IDs []string

	// Err is set for KindError and undecodable KindAudio.
	Err error
}

func (in Inbound) String() string {
	switch in.Kind {
	case KindAudio:
		return fmt.Sprintf("audio(%d bytes)", len(in.Audio))
	case KindToolCall:
		return fmt.Sprintf("tool_call(%d)", len(in.Calls))
	case KindError:
		return fmt.Sprintf("error(%v)", in.Err)
	}
	return string(in.Kind)
}

// =============================================================================
// Client → Server
// =============================================================================

// Outbound is a client message. Exactly one field is set.
type Outbound struct {
	RealtimeInput *RealtimeInput `json:"realtimeInput,omitempty"`
	ToolResponse  *ToolResponse  `json:"toolResponse,omitempty"`
}

// Kind names the populated field, for logging.
func (o Outbound) Kind() string {
	switch {
	case o.RealtimeInput != nil:
		return "realtime_input"
	case o.ToolResponse != nil:
		return "tool_response"
	}
	return "empty"
}

// Bytes returns the JSON-encoded message.
func (o Outbound) Bytes() ([]byte, error) {
	return json.Marshal(o)
}

// RealtimeInput streams microphone audio.
type RealtimeInput struct {
	Audio *Blob `json:"audio,omitempty"`
}

// Blob is base64 media tagged with its MIME type.
type Blob struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

// ToolResponse returns function results to the agent.
type ToolResponse struct {
	FunctionResponses []FunctionResponse `json:"functionResponses"`
}

// FunctionResponse answers one FunctionCall, correlated by ID.
type FunctionResponse struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Response FunctionResult `json:"response"`
}

// FunctionResult is the payload of a FunctionResponse.
type FunctionResult struct {
	Result string `json:"result"`
}

// SetupMessage is the first message sent on a new connection.
type SetupMessage struct {
	Setup *Setup `json:"setup"`
}

// Setup configures the model, voice, tools and transcription.
type Setup struct {
	Model                    string                    `json:"model"`
	GenerationConfig         *GenerationConfig         `json:"generationConfig,omitempty"`
	SystemInstruction        *Content                  `json:"systemInstruction,omitempty"`
	Tools                    []Tool                    `json:"tools,omitempty"`
	InputAudioTranscription  *AudioTranscriptionConfig `json:"inputAudioTranscription,omitempty"`
	OutputAudioTranscription *AudioTranscriptionConfig `json:"outputAudioTranscription,omitempty"`
}

// GenerationConfig selects response modalities and the voice.
type GenerationConfig struct {
	ResponseModalities []string      `json:"responseModalities"`
	SpeechConfig       *SpeechConfig `json:"speechConfig,omitempty"`
}

type SpeechConfig struct {
	VoiceConfig VoiceConfig `json:"voiceConfig"`
}

type VoiceConfig struct {
	PrebuiltVoiceConfig PrebuiltVoiceConfig `json:"prebuiltVoiceConfig"`
}

type PrebuiltVoiceConfig struct {
	VoiceName string `json:"voiceName"`
}

// AudioTranscriptionConfig enables transcription; it has no options.
type AudioTranscriptionConfig struct{}

// Tool groups function declarations.
type Tool struct {
	FunctionDeclarations []FunctionDeclaration `json:"functionDeclarations"`
}

// FunctionDeclaration describes a callable tool.
type FunctionDeclaration struct {
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Parameters  *Schema `json:"parameters,omitempty"`
}

// Schema is the OpenAPI subset used for tool parameters. Type uses the
// upper-case names the API expects ("OBJECT", "STRING").
type Schema struct {
	Type        string             `json:"type"`
	Description string             `json:"description,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Required    []string           `json:"required,omitempty"`
}

// Schema types.
const (
	TypeObject  = "OBJECT"
	TypeString  = "STRING"
	TypeNumber  = "NUMBER"
	TypeBoolean = "BOOLEAN"
)

// =============================================================================
// Server → Client
// =============================================================================

// ServerMessage is one message received from the agent.
type ServerMessage struct {
	SetupComplete        *struct{}             `json:"setupComplete,omitempty"`
	ServerContent        *ServerContent        `json:"serverContent,omitempty"`
	ToolCall             *ToolCall             `json:"toolCall,omitempty"`
	ToolCallCancellation *ToolCallCancellation `json:"toolCallCancellation,omitempty"`
	GoAway               *GoAway               `json:"goAway,omitempty"`
}

// ServerContent carries model output and turn signals.
type ServerContent struct {
	ModelTurn           *Content       `json:"modelTurn,omitempty"`
	TurnComplete        bool           `json:"turnComplete,omitempty"`
	Interrupted         bool           `json:"interrupted,omitempty"`
	InputTranscription  *Transcription `json:"inputTranscription,omitempty"`
	OutputTranscription *Transcription `json:"outputTranscription,omitempty"`
}

// Content is a sequence of parts.
type Content struct {
	Parts []Part `json:"parts"`
}

// Part is text or inline media.
type Part struct {
	Text       string `json:"text,omitempty"`
	InlineData *Blob  `json:"inlineData,omitempty"`
}

type Transcription struct {
	Text string `json:"text"`
}

// ToolCall requests one or more function invocations.
type ToolCall struct {
	FunctionCalls []FunctionCall `json:"functionCalls"`
}

// FunctionCall is a single invocation request.
type FunctionCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

type ToolCallCancellation struct {
	IDs []string `json:"ids"`
}

// GoAway warns that the server will close the connection.
type GoAway struct {
	TimeLeft string `json:"timeLeft"`
}
