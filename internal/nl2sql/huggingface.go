package nl2sql

import (
	"context"
	"strings"

	"github.com/hupe1980/go-huggingface"
)

type HuggingFaceConfig struct {
	APIKey       string
	Model        string
	MaxNewTokens int
}

// HuggingFaceCompleter flattens chat messages into a single text-generation
// prompt for the Hugging Face inference API.
type HuggingFaceCompleter struct {
	client       *huggingface.InferenceClient
	apiKey       string
	model        string
	maxNewTokens int
}

func NewHuggingFaceCompleter(cfg HuggingFaceConfig) *HuggingFaceCompleter {
	apiKey := strings.TrimSpace(cfg.APIKey)
	maxNewTokens := cfg.MaxNewTokens
	if maxNewTokens <= 0 {
		maxNewTokens = 500
	}
	return &HuggingFaceCompleter{
		client:       huggingface.NewInferenceClient(apiKey),
		apiKey:       apiKey,
		model:        strings.TrimSpace(cfg.Model),
		maxNewTokens: maxNewTokens,
	}
}

func (c *HuggingFaceCompleter) Name() string  { return "huggingface" }
func (c *HuggingFaceCompleter) Model() string { return c.model }

func (c *HuggingFaceCompleter) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	if c.apiKey == "" {
		return "", unavailable("api key is not configured (set ASKQL_AI_API_KEY)")
	}

	params := huggingface.TextGenerationParameters{
		MaxNewTokens:   intPtr(c.maxNewTokens),
		ReturnFullText: boolPtr(false),
	}
	// The inference API rejects a zero temperature.
	if req.Temperature > 0 {
		params.Temperature = float64Ptr(req.Temperature)
	}

	res, err := c.client.TextGeneration(ctx, &huggingface.TextGenerationRequest{
		Inputs:     flattenMessages(req.Messages),
		Parameters: params,
		Model:      c.model,
	})
	if err != nil {
		return "", unavailableErr("text generation", err)
	}
	if len(res) == 0 {
		return "", unavailable("no text generated")
	}
	return strings.TrimSpace(res[0].GeneratedText), nil
}

func flattenMessages(messages []Message) string {
	parts := make([]string, 0, len(messages))
	for _, msg := range messages {
		parts = append(parts, strings.TrimSpace(msg.Content))
	}
	return strings.Join(parts, "\n\n") + "\n"
}

func intPtr(i int) *int             { return &i }
func float64Ptr(f float64) *float64 { return &f }
func boolPtr(b bool) *bool          { return &b }
