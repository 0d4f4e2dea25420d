package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiRephraser implements Rephraser using Google's Gemini models.
type GeminiRephraser struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGeminiRephraser initializes a new Gemini client.
func NewGeminiRephraser(ctx context.Context, apiKey string) (*GeminiRephraser, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	// Flash keeps latency inside the per-turn rephrase budget.
	model := client.GenerativeModel("gemini-2.0-flash")
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(systemPrompt)}}
	model.SetTemperature(0.3)
	model.SetMaxOutputTokens(400)

	return &GeminiRephraser{client: client, model: model}, nil
}

// Close cleans up the Gemini client resources.
func (p *GeminiRephraser) Close() {
	p.client.Close()
}

func (p *GeminiRephraser) Rephrase(ctx context.Context, req Request) (string, error) {
	resp, err := p.model.GenerateContent(ctx, genai.Text(buildPrompt(req)))
	if err != nil {
		return "", fmt.Errorf("gemini generation error: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", ErrEmptyReply
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			text.WriteString(string(txt))
		}
	}
	out := cleanReply(text.String())
	if out == "" {
		return "", ErrEmptyReply
	}
	return out, nil
}
