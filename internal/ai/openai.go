package ai

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIRephraser implements Rephraser with the chat completions API.
type OpenAIRephraser struct {
	client *openai.Client
	model  string
}

func NewOpenAIRephraser(apiKey, model string) *OpenAIRephraser {
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIRephraser{client: openai.NewClient(apiKey), model: model}
}

func (p *OpenAIRephraser) Rephrase(ctx context.Context, req Request) (string, error) {
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: buildPrompt(req)},
		},
		Temperature: 0.3,
		MaxTokens:   400,
	})
	if err != nil {
		return "", fmt.Errorf("openai completion error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyReply
	}
	out := cleanReply(resp.Choices[0].Message.Content)
	if out == "" {
		return "", ErrEmptyReply
	}
	return out, nil
}
