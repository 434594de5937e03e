// Package extraction wraps the speech-to-structured-data inference service
// behind small interfaces so live sessions stay testable without a network.
package extraction

import "context"

// ToolCall is one structured function-invocation request emitted by the
// service instead of free text. Args arrive as decoded JSON values.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]any
}

// Event is one message received from the service: generated transcript or
// speech text, a tool-call batch, or both.
type Event struct {
	Text      string
	ToolCalls []ToolCall
}

// Stream is a live bidirectional connection to the extraction service. It is
// exclusively owned by one session orchestrator for its lifetime. Receive
// returns io.EOF when the service ends the stream; a new Connect is required
// afterwards.
type Stream interface {
	// SendAudio forwards one raw audio frame tagged with a sample-rate
	// qualified MIME type.
	SendAudio(data []byte, mimeType string) error

	// Receive blocks for the next service event.
	Receive() (Event, error)

	// SendToolResult acknowledges one dispatched tool call. The result is
	// delivered silently: it must not provoke any spoken or visible output.
	SendToolResult(callID, name string, result map[string]any) error

	Close() error
}

// Connector establishes extraction streams. The production implementation
// speaks the Gemini Live API; tests substitute fakes.
type Connector interface {
	Connect(ctx context.Context) (Stream, error)
}
