package extraction

import (
	"context"
	"fmt"
	"io"

	"google.golang.org/genai"
)

// GeminiConnector dials the Gemini Live API and adapts its sessions to the
// Stream interface.
type GeminiConnector struct {
	APIKey     string
	Model      string
	APIVersion string
}

// NewGeminiConnector validates the connection parameters.
func NewGeminiConnector(apiKey, model, apiVersion string) (*GeminiConnector, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("extraction: api key is required")
	}
	if model == "" {
		return nil, fmt.Errorf("extraction: model is required")
	}
	if apiVersion == "" {
		apiVersion = "v1beta"
	}
	return &GeminiConnector{APIKey: apiKey, Model: model, APIVersion: apiVersion}, nil
}

// Connect opens a live session configured for text responses, the scribe
// system instruction, and the update_patient_data tool.
func (c *GeminiConnector) Connect(ctx context.Context) (Stream, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      c.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{APIVersion: c.APIVersion},
	})
	if err != nil {
		return nil, fmt.Errorf("extraction: create client: %w", err)
	}

	session, err := client.Live.Connect(ctx, c.Model, &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{genai.ModalityText},
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: systemInstruction}},
		},
		Tools: []*genai.Tool{updateTool()},
	})
	if err != nil {
		return nil, fmt.Errorf("extraction: live connect: %w", err)
	}
	return &geminiStream{session: session}, nil
}

type geminiStream struct {
	session *genai.Session
}

func (s *geminiStream) SendAudio(data []byte, mimeType string) error {
	return s.session.SendRealtimeInput(genai.LiveRealtimeInput{
		Media: &genai.Blob{Data: data, MIMEType: mimeType},
	})
}

// Receive maps one live server message to an Event. Messages that carry
// neither text nor tool calls yield an empty Event; callers skip those.
func (s *geminiStream) Receive() (Event, error) {
	msg, err := s.session.Receive()
	if err != nil {
		if err == io.EOF {
			return Event{}, io.EOF
		}
		return Event{}, fmt.Errorf("extraction: receive: %w", err)
	}

	var ev Event
	if msg.ServerContent != nil && msg.ServerContent.ModelTurn != nil {
		for _, part := range msg.ServerContent.ModelTurn.Parts {
			if part != nil && part.Text != "" {
				ev.Text += part.Text
			}
		}
	}
	if msg.ToolCall != nil {
		for _, fc := range msg.ToolCall.FunctionCalls {
			if fc == nil {
				continue
			}
			ev.ToolCalls = append(ev.ToolCalls, ToolCall{
				ID:   fc.ID,
				Name: fc.Name,
				Args: fc.Args,
			})
		}
	}
	return ev, nil
}

// SendToolResult acknowledges a dispatched call with a silent ok response so
// the model never verbalizes tool outcomes.
func (s *geminiStream) SendToolResult(callID, name string, result map[string]any) error {
	if result == nil {
		result = map[string]any{"status": "ok"}
	}
	return s.session.SendToolResponse(genai.LiveToolResponseInput{
		FunctionResponses: []*genai.FunctionResponse{
			{
				ID:         callID,
				Name:       name,
				Response:   result,
				Scheduling: genai.FunctionResponseSchedulingSilent,
			},
		},
	})
}

func (s *geminiStream) Close() error {
	return s.session.Close()
}
