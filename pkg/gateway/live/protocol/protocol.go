// Package protocol defines the wire shapes exchanged with the browser over
// the consultation WebSocket.
//
// The client streams microphone audio as JSON envelopes:
//
//	{"realtimeInput":{"mediaChunks":[{"mimeType":"audio/pcm","data":"<base64>"}]}}
//
// The server pushes transcript text and structured field updates:
//
//	{"type":"content","text":"..."}
//	{"type":"update","field":"vitals.pulse","value":"88"}
package protocol

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	// DefaultAudioMIMEType is assumed when a chunk's PCM MIME type carries no
	// sample rate. The browser worklet captures 16 kHz mono PCM.
	DefaultAudioMIMEType = "audio/pcm;rate=16000"

	MessageTypeContent = "content"
	MessageTypeUpdate  = "update"

	// EligibilityField is the synthetic field name carrying scheme
	// eligibility reports in update messages.
	EligibilityField = "scheme_eligibility"
)

type DecodeError struct {
	Code    string
	Message string
	Param   string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Param) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Param)
}

func badRequest(message, param string) *DecodeError {
	return &DecodeError{Code: "bad_request", Message: message, Param: param}
}

// MediaChunk is one base64-encoded audio frame inside a client envelope.
type MediaChunk struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

type RealtimeInput struct {
	MediaChunks []MediaChunk `json:"mediaChunks"`
}

// ClientEnvelope is the only message shape the browser sends after connecting.
type ClientEnvelope struct {
	RealtimeInput *RealtimeInput `json:"realtimeInput"`
}

// AudioFrame is a decoded, forwardable audio chunk.
type AudioFrame struct {
	Data     []byte
	MIMEType string
}

// DecodeAudioFrames parses a client envelope and decodes every media chunk in
// arrival order. A missing realtimeInput, empty chunk list, undecodable
// base64, or oversized frame is a DecodeError; the caller logs it and keeps
// the session alive.
func DecodeAudioFrames(data []byte, maxFrameBytes int) ([]AudioFrame, error) {
	var env ClientEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, badRequest("invalid json envelope", "")
	}
	if env.RealtimeInput == nil {
		return nil, badRequest("missing realtimeInput", "realtimeInput")
	}
	if len(env.RealtimeInput.MediaChunks) == 0 {
		return nil, badRequest("missing media chunks", "realtimeInput.mediaChunks")
	}

	frames := make([]AudioFrame, 0, len(env.RealtimeInput.MediaChunks))
	for i, chunk := range env.RealtimeInput.MediaChunks {
		if strings.TrimSpace(chunk.Data) == "" {
			return nil, badRequest("media chunk data is required", fmt.Sprintf("realtimeInput.mediaChunks[%d].data", i))
		}
		raw, err := base64.StdEncoding.DecodeString(chunk.Data)
		if err != nil {
			return nil, badRequest("media chunk data must be base64", fmt.Sprintf("realtimeInput.mediaChunks[%d].data", i))
		}
		if maxFrameBytes > 0 && len(raw) > maxFrameBytes {
			return nil, badRequest("media chunk exceeds max frame size", fmt.Sprintf("realtimeInput.mediaChunks[%d].data", i))
		}
		frames = append(frames, AudioFrame{
			Data:     raw,
			MIMEType: NormalizeAudioMIMEType(chunk.MIMEType),
		})
	}
	return frames, nil
}

// NormalizeAudioMIMEType qualifies a PCM MIME type with the default sample
// rate when the client sent a bare "audio/pcm". Types that already carry a
// rate (or are not PCM at all) pass through unchanged.
func NormalizeAudioMIMEType(mime string) string {
	mime = strings.TrimSpace(mime)
	if mime == "" {
		return DefaultAudioMIMEType
	}
	if strings.EqualFold(mime, "audio/pcm") {
		return DefaultAudioMIMEType
	}
	return mime
}

// ServerContent carries transcript or speech text emitted by the extraction
// service, relayed unchanged.
type ServerContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ServerUpdate carries one field mutation (or an eligibility report under
// the scheme_eligibility field).
type ServerUpdate struct {
	Type  string `json:"type"`
	Field string `json:"field"`
	Value any    `json:"value"`
}

func NewContent(text string) ServerContent {
	return ServerContent{Type: MessageTypeContent, Text: text}
}

func NewUpdate(field string, value any) ServerUpdate {
	return ServerUpdate{Type: MessageTypeUpdate, Field: field, Value: value}
}
