package nl2sql

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/askql/askql/internal/config"
)

const explainSystemPrompt = "Explain query results briefly for a business user in one or two sentences."

type ExplainerConfig struct {
	Temperature float64
	Timeout     time.Duration
	PreviewRows int
}

// Explainer produces a short plain-language summary of a result preview.
// Callers treat any error as an empty explanation.
type Explainer struct {
	completer   Completer
	temperature float64
	timeout     time.Duration
	previewRows int
}

func NewExplainer(completer Completer, cfg ExplainerConfig) *Explainer {
	rows := cfg.PreviewRows
	if rows <= 0 || rows > config.MaxExplainRows {
		rows = config.MaxExplainRows
	}
	return &Explainer{
		completer:   completer,
		temperature: cfg.Temperature,
		timeout:     cfg.Timeout,
		previewRows: rows,
	}
}

func (e *Explainer) Explain(ctx context.Context, question, sql string, rows [][]any) (string, error) {
	if e == nil || e.completer == nil {
		return "", unavailable("no text generation backend configured")
	}
	if len(rows) > e.previewRows {
		rows = rows[:e.previewRows]
	}
	if rows == nil {
		rows = [][]any{}
	}
	preview, err := json.Marshal(rows)
	if err != nil {
		return "", fmt.Errorf("marshal preview rows: %w", err)
	}
	text, err := complete(ctx, e.completer, e.timeout, CompletionRequest{
		Temperature: e.temperature,
		Messages: []Message{
			{Role: RoleSystem, Content: explainSystemPrompt},
			{Role: RoleUser, Content: fmt.Sprintf("Question: %s\nSQL: %s\nPreview rows: %s", question, sql, preview)},
		},
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}
