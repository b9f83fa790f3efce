package nl2sql

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

const systemPromptTemplate = `You are a senior analytics engineer. Convert natural-language questions into a single, safe,
dialect-correct **%s** SELECT query using only the provided schema and (when given) the prior
Q&A history. Rules:
- Return **only** the SQL, no prose, no backticks.
- Use explicit table names and qualified columns when joins are involved.
- Prefer COUNT(*), SUM(), AVG(), ORDER BY … LIMIT …
- Do NOT invent tables/columns not in the schema.
- Absolutely NO data-modifying statements (INSERT/UPDATE/DELETE/ALTER/DROP/CREATE/ATTACH).
- One statement only.
- Follow-ups may refer to earlier answers; infer intent from the provided history.
`

var dialectLabels = map[string]string{
	"sqlite":   "SQLite",
	"postgres": "PostgreSQL",
	"duckdb":   "DuckDB",
	"mysql":    "MySQL",
}

func SystemPrompt(dialect string) string {
	label, ok := dialectLabels[strings.ToLower(strings.TrimSpace(dialect))]
	if !ok {
		label = "SQLite"
	}
	return fmt.Sprintf(systemPromptTemplate, label)
}

// BuildUserPrompt omits the history section entirely when historyText is empty.
func BuildUserPrompt(question, schemaText, historyText string) string {
	var b strings.Builder
	b.WriteString("Schema:\n")
	b.WriteString(schemaText)
	b.WriteString("\n\n")
	if historyText != "" {
		b.WriteString("History (use for context if relevant):\n")
		b.WriteString(historyText)
		b.WriteString("\n\n")
	}
	b.WriteString("Question: ")
	b.WriteString(question)
	b.WriteString("\nSQL:")
	return b.String()
}

var codeFence = regexp.MustCompile("^```(?i:sql)?\\s*|\\s*```$")

// StripCodeFences removes a leading ``` or ```sql marker and a trailing ```
// along with surrounding whitespace.
func StripCodeFences(raw string) string {
	return strings.TrimSpace(codeFence.ReplaceAllString(strings.TrimSpace(raw), ""))
}

type GeneratorConfig struct {
	Dialect     string
	Temperature float64
	Timeout     time.Duration
}

// Generator makes exactly one completion call per question.
type Generator struct {
	completer    Completer
	systemPrompt string
	temperature  float64
	timeout      time.Duration
}

func NewGenerator(completer Completer, cfg GeneratorConfig) *Generator {
	return &Generator{
		completer:    completer,
		systemPrompt: SystemPrompt(cfg.Dialect),
		temperature:  cfg.Temperature,
		timeout:      cfg.Timeout,
	}
}

// Generate returns the fence-stripped candidate SQL. It does not judge safety.
func (g *Generator) Generate(ctx context.Context, question, schemaText, historyText string) (string, error) {
	if g == nil || g.completer == nil {
		return "", unavailable("no text generation backend configured")
	}
	raw, err := complete(ctx, g.completer, g.timeout, CompletionRequest{
		Temperature: g.temperature,
		Messages: []Message{
			{Role: RoleSystem, Content: g.systemPrompt},
			{Role: RoleUser, Content: BuildUserPrompt(question, schemaText, historyText)},
		},
	})
	if err != nil {
		return "", err
	}
	sql := StripCodeFences(raw)
	if sql == "" {
		return "", unavailable("model returned empty SQL")
	}
	return sql, nil
}

func complete(ctx context.Context, completer Completer, timeout time.Duration, req CompletionRequest) (string, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	text, err := completer.Complete(ctx, req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", unavailableErr(fmt.Sprintf("%s timed out after %s", completer.Name(), timeout), err)
		}
		return "", unavailableErr(completer.Name(), err)
	}
	return text, nil
}
