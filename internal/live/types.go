package live

import "encoding/json"

// Wire format for the bidirectional generate-content stream. Exactly one
// field is set per message in either direction.

// ClientMessage is a frame sent to the backend.
type ClientMessage struct {
	Setup         *Setup         `json:"setup,omitempty"`
	RealtimeInput *RealtimeInput `json:"realtimeInput,omitempty"`
	ToolResponse  *ToolResponse  `json:"toolResponse,omitempty"`
}

// ServerMessage is a frame received from the backend.
type ServerMessage struct {
	SetupComplete *SetupComplete `json:"setupComplete,omitempty"`
	ServerContent *ServerContent `json:"serverContent,omitempty"`
	ToolCall      *ToolCall      `json:"toolCall,omitempty"`
}

// Setup configures the session; it must be the first client frame.
type Setup struct {
	Model               string            `json:"model"`
	GenerationConfig    *GenerationConfig `json:"generationConfig,omitempty"`
	SystemInstruction   *Content          `json:"systemInstruction,omitempty"`
	Tools               []Tool            `json:"tools,omitempty"`
	InputTranscription  *struct{}         `json:"inputAudioTranscription,omitempty"`
	OutputTranscription *struct{}         `json:"outputAudioTranscription,omitempty"`
}

type SetupComplete struct{}

type GenerationConfig struct {
	ResponseModalities []string      `json:"responseModalities,omitempty"`
	SpeechConfig       *SpeechConfig `json:"speechConfig,omitempty"`
}

type SpeechConfig struct {
	VoiceConfig *VoiceConfig `json:"voiceConfig,omitempty"`
}

type VoiceConfig struct {
	PrebuiltVoiceConfig *PrebuiltVoiceConfig `json:"prebuiltVoiceConfig,omitempty"`
}

type PrebuiltVoiceConfig struct {
	VoiceName string `json:"voiceName"`
}

// Tool declares callable functions to the model.
type Tool struct {
	FunctionDeclarations []FunctionDeclaration `json:"functionDeclarations,omitempty"`
}

// FunctionDeclaration describes one callable function.
type FunctionDeclaration struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// RealtimeInput carries captured audio toward the model.
type RealtimeInput struct {
	MediaChunks []Blob `json:"mediaChunks"`
}

// Blob is base64-encoded media with its mime type, e.g.
// {"mimeType":"audio/pcm;rate=16000","data":"..."}.
type Blob struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

// Content is a sequence of parts attributed to a role.
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

// Part is either text or inline media.
type Part struct {
	Text       string `json:"text,omitempty"`
	InlineData *Blob  `json:"inlineData,omitempty"`
}

// ServerContent is incremental model output plus turn-level signals.
type ServerContent struct {
	ModelTurn           *Content       `json:"modelTurn,omitempty"`
	TurnComplete        bool           `json:"turnComplete,omitempty"`
	Interrupted         bool           `json:"interrupted,omitempty"`
	InputTranscription  *Transcription `json:"inputTranscription,omitempty"`
	OutputTranscription *Transcription `json:"outputTranscription,omitempty"`
}

// Transcription is a speech-to-text fragment. Finished marks the turn
// boundary; non-finished fragments are full restatements of the utterance
// so far.
type Transcription struct {
	Text     string `json:"text"`
	Finished bool   `json:"finished,omitempty"`
}

// ToolCall asks the client to run one or more declared functions.
type ToolCall struct {
	FunctionCalls []FunctionCall `json:"functionCalls"`
}

// FunctionCall is a single structured intent emitted by the model.
type FunctionCall struct {
	ID   string          `json:"id"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"args,omitempty"`
}

// ToolResponse acknowledges function calls back to the model.
type ToolResponse struct {
	FunctionResponses []FunctionResponse `json:"functionResponses"`
}

// FunctionResponse is one acknowledgment: {id, name, response:{result:"ok"}}.
type FunctionResponse struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

// OutputSampleRate is the sample rate of model audio parts.
const OutputSampleRate = 24000
