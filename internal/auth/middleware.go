package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/askql/askql/internal/observability"
)

type contextKey string

const identityKey contextKey = "auth_identity"

func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityKey).(Identity)
	return identity, ok
}

// Middleware accepts the key from X-API-Key or an Authorization bearer token.
func Middleware(logger *slog.Logger, validator APIKeyValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey := extractAPIKey(r)
			if apiKey == "" {
				reject(w, r, logger, observability.APIKeyMissing, "missing API key")
				return
			}

			identity, ok := validator.Validate(r.Context(), apiKey)
			if !ok {
				reject(w, r, logger, observability.APIKeyInvalid, "invalid API key")
				return
			}
			if logger != nil {
				logger.DebugContext(r.Context(), "api_client",
					slog.String("trace_id", observability.TraceIDFromContext(r.Context())),
					slog.String("client", identity.Client),
				)
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

func extractAPIKey(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get("X-API-Key")); key != "" {
		return key
	}
	scheme, token, ok := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func reject(w http.ResponseWriter, r *http.Request, logger *slog.Logger, reason, message string) {
	observability.RecordAPIKeyRejection(reason)
	if logger != nil {
		logger.WarnContext(r.Context(), "api_key_rejected",
			slog.String("trace_id", observability.TraceIDFromContext(r.Context())),
			slog.String("reason", reason),
			slog.String("path", r.URL.Path),
		)
	}
	writeUnauthorized(w, r, message)
}

func writeUnauthorized(w http.ResponseWriter, r *http.Request, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="askql"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error_code": "UNAUTHORIZED",
		"message":    message,
		"retryable":  false,
		"trace_id":   observability.TraceIDFromContext(r.Context()),
	})
}
