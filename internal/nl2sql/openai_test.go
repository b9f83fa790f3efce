package nl2sql

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/askql/askql/internal/config"
)

func TestStripCodeFences(t *testing.T) {
	cases := map[string]string{
		"```sql\nSELECT 1;\n```":       "SELECT 1;",
		"```\nSELECT 1\n```":           "SELECT 1",
		"```SQL SELECT 1```":           "SELECT 1",
		"  SELECT * FROM Track  \n":    "SELECT * FROM Track",
		"SELECT '```' AS fence":        "SELECT '```' AS fence",
		"```sql\nSELECT 1;":            "SELECT 1;",
		"\n\n```sql\nSELECT 2\n```\n ": "SELECT 2",
	}
	for in, want := range cases {
		if got := StripCodeFences(in); got != want {
			t.Fatalf("StripCodeFences(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestOpenAICompleterSendsChatCompletion(t *testing.T) {
	var captured struct {
		Model       string    `json:"model"`
		Temperature float64   `json:"temperature"`
		Messages    []Message `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization = %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"  SELECT 1  "}}]}`))
	}))
	defer srv.Close()

	completer := NewOpenAICompleter(OpenAIConfig{BaseURL: srv.URL + "/v1/", APIKey: "sk-test", Model: "gpt-4o-mini"})
	text, err := completer.Complete(context.Background(), CompletionRequest{
		Temperature: 0.1,
		Messages:    []Message{{Role: RoleSystem, Content: "sys"}, {Role: RoleUser, Content: "user"}},
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if text != "SELECT 1" {
		t.Fatalf("Complete() = %q", text)
	}
	if captured.Model != "gpt-4o-mini" || len(captured.Messages) != 2 || captured.Messages[0].Role != "system" {
		t.Fatalf("request = %+v", captured)
	}
	if captured.Temperature < 0.09 || captured.Temperature > 0.11 {
		t.Fatalf("temperature = %v", captured.Temperature)
	}
}

func TestOpenAICompleterFailuresAreUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Incorrect API key provided","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	completer := NewOpenAICompleter(OpenAIConfig{BaseURL: srv.URL + "/v1", APIKey: "sk-bad"})
	_, err := completer.Complete(context.Background(), CompletionRequest{Messages: []Message{{Role: RoleUser, Content: "q"}}})
	if !errors.Is(err, ErrGenerationUnavailable) {
		t.Fatalf("Complete() error = %v, want ErrGenerationUnavailable", err)
	}

	empty := NewOpenAICompleter(OpenAIConfig{})
	_, err = empty.Complete(context.Background(), CompletionRequest{})
	if !errors.Is(err, ErrGenerationUnavailable) || !strings.Contains(err.Error(), "api key") {
		t.Fatalf("Complete() without key error = %v", err)
	}
	if empty.Model() != "gpt-4o-mini" {
		t.Fatalf("Model() = %q", empty.Model())
	}
}

func TestHuggingFaceCompleterRequiresKey(t *testing.T) {
	completer := NewHuggingFaceCompleter(HuggingFaceConfig{Model: "defog/sqlcoder"})
	_, err := completer.Complete(context.Background(), CompletionRequest{})
	if !errors.Is(err, ErrGenerationUnavailable) {
		t.Fatalf("Complete() error = %v", err)
	}
	if completer.Name() != "huggingface" || completer.Model() != "defog/sqlcoder" {
		t.Fatalf("completer = %s/%s", completer.Name(), completer.Model())
	}
}

func TestFlattenMessages(t *testing.T) {
	got := flattenMessages([]Message{{Role: RoleSystem, Content: " rules \n"}, {Role: RoleUser, Content: "Question: q\nSQL:"}})
	if got != "rules\n\nQuestion: q\nSQL:\n" {
		t.Fatalf("flattenMessages() = %q", got)
	}
}

func TestNewCompleterSelectsProvider(t *testing.T) {
	c, err := NewCompleter(config.AIConfig{Provider: "openai", Model: "m"})
	if err != nil || c.Name() != "openai" {
		t.Fatalf("NewCompleter(openai) = %v, %v", c, err)
	}
	c, err = NewCompleter(config.AIConfig{Provider: "HuggingFace", Model: "m"})
	if err != nil || c.Name() != "huggingface" {
		t.Fatalf("NewCompleter(huggingface) = %v, %v", c, err)
	}
	if _, err := NewCompleter(config.AIConfig{Provider: "carrier-pigeon"}); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}
