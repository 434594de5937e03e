package summary

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const promptTemplate = `You are an expert medical scribe.
Below is a transcript of a doctor-patient consultation.

Please generate a concise "Important Points" summary.
- Focus on clinical facts, key symptoms, diagnosis, and treatment plan.
- Format as a bulleted list (Markdown).
- Keep it brief but comprehensive enough to resume the session later.
- Ignore small talk.

TRANSCRIPT:
%s`

// GeminiGenerator summarizes transcripts with a plain generate-content call.
// Unlike the live model this uses the standard API version.
type GeminiGenerator struct {
	client *genai.Client
	model  string
}

func NewGeminiGenerator(ctx context.Context, apiKey, model string) (*GeminiGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("summary: api key is required")
	}
	if model == "" {
		return nil, fmt.Errorf("summary: model is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("summary: create client: %w", err)
	}
	return &GeminiGenerator{client: client, model: model}, nil
}

func (g *GeminiGenerator) Summarize(ctx context.Context, transcript []string) (string, error) {
	prompt := fmt.Sprintf(promptTemplate, strings.Join(transcript, "\n"))
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
	if err != nil {
		if isRateLimited(err) {
			return "", fmt.Errorf("%w: %v", ErrRateLimited, err)
		}
		return "", fmt.Errorf("summary: generate: %w", err)
	}
	return resp.Text(), nil
}

func isRateLimited(err error) bool {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == 429 || apiErr.Status == "RESOURCE_EXHAUSTED"
	}
	return false
}
