// Package live implements the realtime microphone-to-speaker consultation
// session: the vendor's bidirectional streaming frames, a websocket session
// exposing an ordered event stream, a gapless playback scheduler, and the
// session manager that ties capture, transport and playback together.
package live

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	// CaptureMIMEType tags outbound microphone frames.
	CaptureMIMEType = "audio/pcm;rate=16000"
	// PlaybackMIMEType is the vendor's inline audio output format.
	PlaybackMIMEType = "audio/pcm;rate=24000"
)

// Content mirrors the vendor's content object: an ordered list of parts.
type Content struct {
	Parts []Part `json:"parts,omitempty"`
	Role  string `json:"role,omitempty"`
}

// Part is one element of a content turn; exactly one field is set.
type Part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *InlineData `json:"inlineData,omitempty"`
}

// InlineData carries base64-encoded binary media on the JSON channel.
type InlineData struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

// SpeechConfig selects the synthesized voice for audio responses.
type SpeechConfig struct {
	VoiceConfig *VoiceConfig `json:"voiceConfig,omitempty"`
}

type VoiceConfig struct {
	PrebuiltVoiceConfig *PrebuiltVoiceConfig `json:"prebuiltVoiceConfig,omitempty"`
}

type PrebuiltVoiceConfig struct {
	VoiceName string `json:"voiceName,omitempty"`
}

// GenerationConfig is the subset of session-level generation settings used by
// the live channel.
type GenerationConfig struct {
	ResponseModalities []string      `json:"responseModalities,omitempty"`
	SpeechConfig       *SpeechConfig `json:"speechConfig,omitempty"`
}

// ClientSetup is the first frame on a new connection.
type ClientSetup struct {
	Model             string            `json:"model"`
	GenerationConfig  *GenerationConfig `json:"generationConfig,omitempty"`
	SystemInstruction *Content          `json:"systemInstruction,omitempty"`
}

// ClientSetupFrame wraps ClientSetup in its envelope.
type ClientSetupFrame struct {
	Setup ClientSetup `json:"setup"`
}

// RealtimeInput streams captured media to the vendor, fire-and-forget.
type RealtimeInput struct {
	MediaChunks []InlineData `json:"mediaChunks"`
}

// RealtimeInputFrame wraps RealtimeInput in its envelope.
type RealtimeInputFrame struct {
	RealtimeInput RealtimeInput `json:"realtimeInput"`
}

// ServerContent is a model turn delivered over the live channel.
type ServerContent struct {
	ModelTurn    *Content `json:"modelTurn,omitempty"`
	TurnComplete bool     `json:"turnComplete,omitempty"`
	Interrupted  bool     `json:"interrupted,omitempty"`
}

// GoAway warns that the server will close the connection shortly.
type GoAway struct {
	TimeLeft string `json:"timeLeft,omitempty"`
}

// ServerFrame is the union of frames the server can send. Exactly one of the
// pointer fields is populated per frame.
type ServerFrame struct {
	SetupComplete *struct{}      `json:"setupComplete,omitempty"`
	ServerContent *ServerContent `json:"serverContent,omitempty"`
	GoAway        *GoAway        `json:"goAway,omitempty"`
}

// DecodeServerFrame parses one frame received from the live channel.
func DecodeServerFrame(data []byte) (*ServerFrame, error) {
	var frame ServerFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, fmt.Errorf("decode server frame: %w", err)
	}
	return &frame, nil
}

// AudioChunks extracts the base64 inline audio payloads from a model turn,
// preserving part order. Non-audio parts are skipped.
func (c *ServerContent) AudioChunks() []string {
	if c == nil || c.ModelTurn == nil {
		return nil
	}
	var chunks []string
	for _, part := range c.ModelTurn.Parts {
		if part.InlineData == nil {
			continue
		}
		if !strings.HasPrefix(part.InlineData.MIMEType, "audio/pcm") {
			continue
		}
		chunks = append(chunks, part.InlineData.Data)
	}
	return chunks
}
