package nl2sql

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/askql/askql/internal/config"
)

// ErrGenerationUnavailable marks every failure to obtain text from the
// generation service: missing configuration, transport errors, timeouts and
// empty answers alike. Callers must not execute anything after seeing it.
var ErrGenerationUnavailable = errors.New("generation unavailable")

const (
	RoleSystem = "system"
	RoleUser   = "user"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type CompletionRequest struct {
	Messages    []Message
	Temperature float64
}

// Completer is a chat-completion style text generation backend.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
	Name() string
	Model() string
}

func unavailable(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrGenerationUnavailable, fmt.Sprintf(format, args...))
}

func unavailableErr(op string, err error) error {
	if errors.Is(err, ErrGenerationUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrGenerationUnavailable, op, err)
}

// NewCompleter builds the backend named by cfg.Provider.
func NewCompleter(cfg config.AIConfig) (Completer, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "openai":
		return NewOpenAICompleter(OpenAIConfig{BaseURL: cfg.BaseURL, APIKey: cfg.APIKey, Model: cfg.Model}), nil
	case "huggingface":
		return NewHuggingFaceCompleter(HuggingFaceConfig{APIKey: cfg.APIKey, Model: cfg.Model}), nil
	default:
		return nil, fmt.Errorf("unsupported ai provider %q", cfg.Provider)
	}
}
