package auth

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestStaticAPIKeyValidatorParsing(t *testing.T) {
	validator, err := NewStaticAPIKeyValidator("k1:dashboard, k2:notebook")
	if err != nil {
		t.Fatalf("NewStaticAPIKeyValidator() error = %v", err)
	}
	if validator.Len() != 2 {
		t.Fatalf("Len() = %d", validator.Len())
	}
	identity, ok := validator.Validate(context.Background(), "k2")
	if !ok {
		t.Fatal("expected key to be valid")
	}
	if identity.Client != "notebook" {
		t.Fatalf("Client = %q", identity.Client)
	}
	if _, ok := validator.Validate(context.Background(), "k3"); ok {
		t.Fatal("unknown key should be rejected")
	}
}

func TestStaticAPIKeyValidatorRejectsBadSpec(t *testing.T) {
	for _, spec := range []string{"invalid", "k1:", ":client", "k1:a,k1:b"} {
		if _, err := NewStaticAPIKeyValidator(spec); err == nil {
			t.Fatalf("NewStaticAPIKeyValidator(%q) expected error", spec)
		}
	}
}

func TestBadSpecErrorDoesNotLeakKey(t *testing.T) {
	_, err := NewStaticAPIKeyValidator("supersecretkey")
	if err == nil || strings.Contains(err.Error(), "supersecretkey") {
		t.Fatalf("error = %v", err)
	}
}

func TestMiddlewareRequiresKey(t *testing.T) {
	validator, err := NewStaticAPIKeyValidator("k1:dashboard")
	if err != nil {
		t.Fatalf("validator setup: %v", err)
	}

	mw := Middleware(slog.New(slog.NewJSONHandler(io.Discard, nil)), validator)
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	for name, header := range map[string][2]string{
		"missing": {"", ""},
		"wrong":   {"X-API-Key", "nope"},
		"basic":   {"Authorization", "Basic k1"},
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/history", nil)
			if header[0] != "" {
				req.Header.Set(header[0], header[1])
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			if rr.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want %d", rr.Code, http.StatusUnauthorized)
			}
			var body map[string]any
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body["error_code"] != "UNAUTHORIZED" {
				t.Fatalf("body = %v", body)
			}
		})
	}
}

func TestMiddlewareInjectsIdentity(t *testing.T) {
	validator, err := NewStaticAPIKeyValidator("k1:dashboard")
	if err != nil {
		t.Fatalf("validator setup: %v", err)
	}

	mw := Middleware(nil, validator)
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFromContext(r.Context())
		if !ok {
			t.Fatal("expected identity in context")
		}
		if identity.Client != "dashboard" {
			t.Fatalf("Client = %q", identity.Client)
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	for _, set := range []func(*http.Request){
		func(r *http.Request) { r.Header.Set("X-API-Key", "k1") },
		func(r *http.Request) { r.Header.Set("Authorization", "Bearer k1") },
	} {
		req := httptest.NewRequest(http.MethodGet, "/api/history", nil)
		set(req)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusNoContent {
			t.Fatalf("status = %d", rr.Code)
		}
	}
}

func TestMiddlewareLogsRejectionReason(t *testing.T) {
	validator, err := NewStaticAPIKeyValidator("k1:dashboard")
	if err != nil {
		t.Fatalf("validator setup: %v", err)
	}
	var buf strings.Builder
	handler := Middleware(slog.New(slog.NewJSONHandler(&buf, nil)), validator)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/history", nil))
	req := httptest.NewRequest(http.MethodGet, "/api/history", nil)
	req.Header.Set("X-API-Key", "nope")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	logs := buf.String()
	if !strings.Contains(logs, `"reason":"missing"`) || !strings.Contains(logs, `"reason":"invalid"`) {
		t.Fatalf("logs = %s", logs)
	}
	if strings.Contains(logs, "nope") {
		t.Fatalf("rejected key leaked into logs: %s", logs)
	}
	if got := rr.Header().Get("WWW-Authenticate"); got != `Bearer realm="askql"` {
		t.Fatalf("WWW-Authenticate = %q", got)
	}
}
