package nl2sql

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type fakeCompleter struct {
	responses []string
	err       error
	delay     time.Duration
	requests  []CompletionRequest
}

func (f *fakeCompleter) Name() string  { return "fake" }
func (f *fakeCompleter) Model() string { return "fake-model" }

func (f *fakeCompleter) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	f.requests = append(f.requests, req)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.err != nil {
		return "", f.err
	}
	if len(f.responses) == 0 {
		return "", nil
	}
	out := f.responses[0]
	f.responses = f.responses[1:]
	return out, nil
}

func TestBuildUserPrompt(t *testing.T) {
	got := BuildUserPrompt("Top 5 countries by revenue", "- Invoice(BillingCountry NVARCHAR(40), Total NUMERIC(10,2))", "")
	want := "Schema:\n- Invoice(BillingCountry NVARCHAR(40), Total NUMERIC(10,2))\n\nQuestion: Top 5 countries by revenue\nSQL:"
	if got != want {
		t.Fatalf("BuildUserPrompt() = %q", got)
	}

	got = BuildUserPrompt("and in 2010?", "- Invoice(Total)", "Turn 1:\nQ: q\nSQL: SELECT 1\nPreviewRows: []\n")
	if !strings.Contains(got, "\n\nHistory (use for context if relevant):\nTurn 1:\n") {
		t.Fatalf("BuildUserPrompt() missing history: %q", got)
	}
	if !strings.HasSuffix(got, "Question: and in 2010?\nSQL:") {
		t.Fatalf("BuildUserPrompt() = %q", got)
	}
}

func TestSystemPromptNamesDialect(t *testing.T) {
	if !strings.Contains(SystemPrompt("postgres"), "**PostgreSQL** SELECT") {
		t.Fatal("postgres prompt should name PostgreSQL")
	}
	if !strings.Contains(SystemPrompt("unknown"), "**SQLite**") {
		t.Fatal("unknown dialect should fall back to SQLite")
	}
	if !strings.Contains(SystemPrompt("sqlite"), "One statement only.") {
		t.Fatal("prompt should require a single statement")
	}
}

func TestGenerateSendsOneRequestAndStripsFences(t *testing.T) {
	fake := &fakeCompleter{responses: []string{"```sql\nSELECT BillingCountry, SUM(Total) FROM Invoice GROUP BY BillingCountry ORDER BY 2 DESC LIMIT 5\n```"}}
	gen := NewGenerator(fake, GeneratorConfig{Dialect: "sqlite", Temperature: 0.1})

	sql, err := gen.Generate(context.Background(), "Top 5 countries by revenue", "- Invoice(BillingCountry, Total)", "")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if !strings.HasPrefix(sql, "SELECT BillingCountry") || strings.Contains(sql, "```") {
		t.Fatalf("Generate() = %q", sql)
	}
	if len(fake.requests) != 1 {
		t.Fatalf("requests = %d, want exactly one", len(fake.requests))
	}
	req := fake.requests[0]
	if req.Temperature != 0.1 {
		t.Fatalf("Temperature = %v", req.Temperature)
	}
	if len(req.Messages) != 2 || req.Messages[0].Role != RoleSystem || req.Messages[1].Role != RoleUser {
		t.Fatalf("Messages = %+v", req.Messages)
	}
	if !strings.Contains(req.Messages[1].Content, "Question: Top 5 countries by revenue") {
		t.Fatalf("user message = %q", req.Messages[1].Content)
	}
}

func TestGenerateDoesNotJudgeSafety(t *testing.T) {
	fake := &fakeCompleter{responses: []string{"DROP TABLE Track"}}
	sql, err := NewGenerator(fake, GeneratorConfig{}).Generate(context.Background(), "q", "s", "")
	if err != nil || sql != "DROP TABLE Track" {
		t.Fatalf("Generate() = %q, %v", sql, err)
	}
}

func TestGenerateFailuresAreUnavailable(t *testing.T) {
	cases := map[string]*fakeCompleter{
		"backend error": {err: errors.New("connection refused")},
		"empty answer":  {responses: []string{"```sql\n```"}},
	}
	for name, fake := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewGenerator(fake, GeneratorConfig{}).Generate(context.Background(), "q", "s", "")
			if !errors.Is(err, ErrGenerationUnavailable) {
				t.Fatalf("Generate() error = %v", err)
			}
		})
	}

	var nilGen *Generator
	if _, err := nilGen.Generate(context.Background(), "q", "s", ""); !errors.Is(err, ErrGenerationUnavailable) {
		t.Fatalf("nil Generate() error = %v", err)
	}
}

func TestGenerateTimeoutIsUnavailable(t *testing.T) {
	fake := &fakeCompleter{delay: time.Second, responses: []string{"SELECT 1"}}
	gen := NewGenerator(fake, GeneratorConfig{Timeout: 10 * time.Millisecond})
	_, err := gen.Generate(context.Background(), "q", "s", "")
	if !errors.Is(err, ErrGenerationUnavailable) || !strings.Contains(err.Error(), "timed out") {
		t.Fatalf("Generate() error = %v", err)
	}
}

func TestExplainSendsCappedPreview(t *testing.T) {
	fake := &fakeCompleter{responses: []string{"  The USA leads revenue.  "}}
	explainer := NewExplainer(fake, ExplainerConfig{Temperature: 0.2, PreviewRows: 2})
	rows := [][]any{{"USA", 523.06}, {"Canada", 303.96}, {"France", 195.1}}

	text, err := explainer.Explain(context.Background(), "Top countries", "SELECT 1", rows)
	if err != nil {
		t.Fatalf("Explain() error = %v", err)
	}
	if text != "The USA leads revenue." {
		t.Fatalf("Explain() = %q", text)
	}
	req := fake.requests[0]
	if req.Temperature != 0.2 || req.Messages[0].Content != explainSystemPrompt {
		t.Fatalf("request = %+v", req)
	}
	want := "Question: Top countries\nSQL: SELECT 1\nPreview rows: [[\"USA\",523.06],[\"Canada\",303.96]]"
	if req.Messages[1].Content != want {
		t.Fatalf("user message = %q", req.Messages[1].Content)
	}
}

func TestExplainClampsPreviewRows(t *testing.T) {
	fake := &fakeCompleter{responses: []string{"ok"}}
	rows := make([][]any, 40)
	for i := range rows {
		rows[i] = []any{i}
	}
	if _, err := NewExplainer(fake, ExplainerConfig{PreviewRows: 40}).Explain(context.Background(), "q", "SELECT 1", rows); err != nil {
		t.Fatalf("Explain() error = %v", err)
	}
	want := "Question: q\nSQL: SELECT 1\nPreview rows: [[0],[1],[2],[3],[4]]"
	if got := fake.requests[0].Messages[1].Content; got != want {
		t.Fatalf("user message = %q", got)
	}
}

func TestExplainFailure(t *testing.T) {
	fake := &fakeCompleter{err: errors.New("boom")}
	text, err := NewExplainer(fake, ExplainerConfig{}).Explain(context.Background(), "q", "SELECT 1", nil)
	if text != "" || !errors.Is(err, ErrGenerationUnavailable) {
		t.Fatalf("Explain() = %q, %v", text, err)
	}
}
