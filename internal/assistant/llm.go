package assistant

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// ChatCompleter is the narrow boundary to the large-language-model
// collaborator. Everything the core needs is "prompt in, text out";
// validation of that text stays on this side of the boundary.
type ChatCompleter interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// GroqClient talks to Groq's OpenAI-compatible chat-completions endpoint.
// Any OpenAI-compatible server works by overriding the base URL.
type GroqClient struct {
	client *openai.Client
	model  string
}

// NewGroqClient builds a client for the given endpoint and model.
func NewGroqClient(apiKey, baseURL, model string) *GroqClient {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &GroqClient{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

// Complete sends a single-message completion request.
func (g *GroqClient) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("assistant: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("assistant: empty completion response")
	}
	return resp.Choices[0].Message.Content, nil
}
