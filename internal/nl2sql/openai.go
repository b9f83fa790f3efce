package nl2sql

import (
	"context"
	"strings"

	"github.com/sashabaranov/go-openai"
)

type OpenAIConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

// OpenAICompleter talks to any OpenAI-compatible chat completion endpoint.
type OpenAICompleter struct {
	client *openai.Client
	apiKey string
	model  string
}

// NewOpenAICompleter never fails on a missing key; Complete reports it so the
// console can still start and serve schema commands.
func NewOpenAICompleter(cfg OpenAIConfig) *OpenAICompleter {
	apiKey := strings.TrimSpace(cfg.APIKey)
	clientConfig := openai.DefaultConfig(apiKey)
	if baseURL := strings.TrimSpace(cfg.BaseURL); baseURL != "" {
		clientConfig.BaseURL = strings.TrimRight(baseURL, "/")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAICompleter{
		client: openai.NewClientWithConfig(clientConfig),
		apiKey: apiKey,
		model:  model,
	}
}

func (c *OpenAICompleter) Name() string  { return "openai" }
func (c *OpenAICompleter) Model() string { return c.model }

func (c *OpenAICompleter) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	if c.apiKey == "" {
		return "", unavailable("api key is not configured (set ASKQL_AI_API_KEY or OPENAI_API_KEY)")
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, msg := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{Role: msg.Role, Content: msg.Content})
	}
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: float32(req.Temperature),
	})
	if err != nil {
		return "", unavailableErr("request chat completion", err)
	}
	if len(resp.Choices) == 0 {
		return "", unavailable("empty chat completion choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
