// Package web serves the single-page question form and a JSON API over the
// same per-browser conversations.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/askql/askql/internal/config"
	"github.com/askql/askql/internal/export"
	"github.com/askql/askql/internal/history"
	"github.com/askql/askql/internal/nl2sql"
	"github.com/askql/askql/internal/observability"
	"github.com/askql/askql/internal/query"
	"github.com/askql/askql/internal/safety"
	"github.com/askql/askql/internal/session"
)

type ReadinessCheck func(ctx context.Context) error

type Dependencies struct {
	Logger            *slog.Logger
	Sessions          *SessionStore
	Readiness         ReadinessCheck
	AuthMiddleware    func(http.Handler) http.Handler
	DependencyTimeout time.Duration
	Dialect           string
	// ExportAvailable controls whether the settings panel offers the export toggle.
	ExportAvailable bool
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	mux := http.NewServeMux()
	page := newPageRenderer(cfg, deps)

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": cfg.Service.Name})
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if deps.Readiness == nil {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
			return
		}
		timeout := deps.DependencyTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := deps.Readiness(ctx); err != nil {
			writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", observability.Mask(err.Error()), true, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	})
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /{$}", page.handleIndex)
	mux.HandleFunc("POST /ask", page.handleAsk)
	mux.HandleFunc("POST /settings", page.handleSettings)
	mux.HandleFunc("POST /clear", page.handleClear)

	api := http.NewServeMux()
	api.HandleFunc("POST /api/ask", func(w http.ResponseWriter, r *http.Request) {
		handleAPIAsk(deps, w, r)
	})
	api.HandleFunc("GET /api/history", func(w http.ResponseWriter, r *http.Request) {
		handleAPIHistory(deps, w, r)
	})
	api.HandleFunc("DELETE /api/history", func(w http.ResponseWriter, r *http.Request) {
		handleAPIClearHistory(deps, w, r)
	})
	api.HandleFunc("GET /api/settings", func(w http.ResponseWriter, r *http.Request) {
		handleAPIGetSettings(deps, w, r)
	})
	api.HandleFunc("PUT /api/settings", func(w http.ResponseWriter, r *http.Request) {
		handleAPIPutSettings(deps, w, r)
	})
	api.HandleFunc("GET /api/schema", func(w http.ResponseWriter, r *http.Request) {
		handleAPISchema(deps, w, r)
	})

	var apiHandler http.Handler = api
	if deps.AuthMiddleware != nil {
		apiHandler = deps.AuthMiddleware(apiHandler)
	}
	mux.Handle("/api/", apiHandler)

	middlewares := []func(http.Handler) http.Handler{
		observability.TraceMiddleware,
		observability.MetricsMiddleware,
	}
	if deps.Logger != nil {
		middlewares = append(middlewares, observability.LoggingMiddleware(deps.Logger))
	}
	if len(cfg.HTTP.CORSAllowedOrigins) > 0 {
		middlewares = append([]func(http.Handler) http.Handler{corsMiddleware(cfg.HTTP.CORSAllowedOrigins)}, middlewares...)
	}
	return chain(mux, middlewares...)
}

func corsMiddleware(origins []string) func(http.Handler) http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Authorization", "X-API-Key", observability.TraceHeader},
		ExposedHeaders:   []string{observability.TraceHeader},
		AllowCredentials: true,
	})
	return c.Handler
}

type askRequest struct {
	Question string `json:"question"`
}

type turnResponse struct {
	Turn        int             `json:"turn"`
	Question    string          `json:"question"`
	Status      session.Status  `json:"status"`
	SQL         string          `json:"sql,omitempty"`
	Decision    safety.Decision `json:"decision"`
	Message     string          `json:"message,omitempty"`
	Columns     []string        `json:"columns"`
	Rows        [][]any         `json:"rows"`
	RowCount    int             `json:"row_count"`
	DurationMs  int64           `json:"duration_ms"`
	Explanation string          `json:"explanation,omitempty"`
	Export      *export.Result  `json:"export,omitempty"`
	ExportError string          `json:"export_error,omitempty"`
	AskedAt     time.Time       `json:"asked_at"`
}

type historyResponse struct {
	Turns           []history.Turn `json:"turns"`
	MaxHistoryTurns int            `json:"max_history_turns"`
}

type settingsPayload struct {
	MaxHistoryTurns *int  `json:"max_history_turns"`
	ExportEnabled   *bool `json:"export_enabled"`
}

func handleAPIAsk(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	conversation, ok := resolve(deps, w, r)
	if !ok {
		return
	}

	var request askRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid ask request body", false, map[string]any{"details": err.Error()})
		return
	}

	result, err := conversation.Ask(r.Context(), request.Question)
	if err != nil {
		status, code, retryable, extra := classifyTurnError(result, err)
		writeError(r.Context(), w, status, code, turnErrorMessage(err), retryable, extra)
		return
	}
	writeJSON(w, http.StatusOK, toTurnResponse(result))
}

func handleAPIHistory(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	conversation, ok := resolve(deps, w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, historyResponse{
		Turns:           conversation.RecentTurns(),
		MaxHistoryTurns: conversation.Settings().MaxHistoryTurns,
	})
}

func handleAPIClearHistory(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	conversation, ok := resolve(deps, w, r)
	if !ok {
		return
	}
	conversation.ClearHistory()
	w.WriteHeader(http.StatusNoContent)
}

func handleAPIGetSettings(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	conversation, ok := resolve(deps, w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, settingsView(conversation.Settings()))
}

func handleAPIPutSettings(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	conversation, ok := resolve(deps, w, r)
	if !ok {
		return
	}
	var request settingsPayload
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid settings body", false, map[string]any{"details": err.Error()})
		return
	}
	if request.MaxHistoryTurns != nil {
		if *request.MaxHistoryTurns < 0 || *request.MaxHistoryTurns > config.MaxHistoryTurnsLimit {
			writeError(r.Context(), w, http.StatusBadRequest, "INVALID_HISTORY_DEPTH", "max_history_turns must be between 0 and 50", false, map[string]any{"max": config.MaxHistoryTurnsLimit})
			return
		}
		conversation.SetMaxHistoryTurns(*request.MaxHistoryTurns)
	}
	if request.ExportEnabled != nil {
		if *request.ExportEnabled && !deps.ExportAvailable {
			writeError(r.Context(), w, http.StatusConflict, "EXPORT_NOT_CONFIGURED", "export is not configured on this server", false, nil)
			return
		}
		conversation.SetExportEnabled(*request.ExportEnabled)
	}
	writeJSON(w, http.StatusOK, settingsView(conversation.Settings()))
}

func handleAPISchema(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	conversation, ok := resolve(deps, w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"dialect": deps.Dialect,
		"schema":  conversation.SchemaText,
	})
}

func resolve(deps Dependencies, w http.ResponseWriter, r *http.Request) (*session.Orchestrator, bool) {
	if deps.Sessions == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SESSIONS_NOT_CONFIGURED", "session store is not configured", false, nil)
		return nil, false
	}
	conversation, _ := deps.Sessions.Resolve(w, r)
	return conversation, true
}

func settingsView(settings session.Config) map[string]any {
	return map[string]any{
		"max_history_turns": settings.MaxHistoryTurns,
		"export_enabled":    settings.ExportEnabled,
		"explain_enabled":   settings.ExplainEnabled,
	}
}

func toTurnResponse(result session.TurnResult) turnResponse {
	columns := result.Columns
	if columns == nil {
		columns = []string{}
	}
	rows := result.Rows
	if rows == nil {
		rows = [][]any{}
	}
	return turnResponse{
		Turn:        result.Turn,
		Question:    result.Question,
		Status:      result.Status,
		SQL:         result.SQL,
		Decision:    result.Decision,
		Message:     result.Decision.Message(),
		Columns:     columns,
		Rows:        rows,
		RowCount:    len(result.Rows),
		DurationMs:  result.Duration.Milliseconds(),
		Explanation: result.Explanation,
		Export:      result.Export,
		ExportError: result.ExportError,
		AskedAt:     result.AskedAt,
	}
}

func classifyTurnError(result session.TurnResult, err error) (int, string, bool, map[string]any) {
	var execErr *query.ExecutionError
	switch {
	case errors.Is(err, session.ErrEmptyQuestion):
		return http.StatusBadRequest, "QUESTION_REQUIRED", false, nil
	case errors.Is(err, nl2sql.ErrGenerationUnavailable):
		return http.StatusServiceUnavailable, "GENERATION_UNAVAILABLE", true, nil
	case errors.As(err, &execErr):
		return http.StatusUnprocessableEntity, "QUERY_EXECUTION_FAILED", false, map[string]any{"sql": result.SQL}
	default:
		return http.StatusInternalServerError, "TURN_FAILED", false, nil
	}
}

func turnErrorMessage(err error) string {
	var execErr *query.ExecutionError
	if errors.As(err, &execErr) && execErr.Err != nil {
		return observability.Mask(execErr.Err.Error())
	}
	return observability.Mask(strings.TrimSpace(err.Error()))
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, retryable bool, extra map[string]any) {
	writeJSON(w, status, map[string]any{
		"error_code": code,
		"message":    message,
		"retryable":  retryable,
		"context":    extra,
		"trace_id":   observability.TraceIDFromContext(ctx),
	})
}
