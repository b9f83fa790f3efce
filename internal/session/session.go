// Package session drives one question/answer turn from generation through
// the safety gate to execution, and is shared by the console and web adapters.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/askql/askql/internal/config"
	"github.com/askql/askql/internal/export"
	"github.com/askql/askql/internal/history"
	"github.com/askql/askql/internal/observability"
	"github.com/askql/askql/internal/query"
	"github.com/askql/askql/internal/safety"
)

var ErrEmptyQuestion = errors.New("no question provided")

type Status string

const (
	StatusCompleted Status = "completed"
	StatusBlocked   Status = "blocked"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
)

type Generator interface {
	Generate(ctx context.Context, question, schemaText, historyText string) (string, error)
}

type Explainer interface {
	Explain(ctx context.Context, question, sql string, rows [][]any) (string, error)
}

type Exporter interface {
	Export(ctx context.Context, rec export.Record) (export.Result, error)
}

// Confirmer is consulted between a passing gate decision and execution.
type Confirmer interface {
	Confirm(ctx context.Context, sql string) (bool, error)
}

type ConfirmFunc func(ctx context.Context, sql string) (bool, error)

func (f ConfirmFunc) Confirm(ctx context.Context, sql string) (bool, error) {
	return f(ctx, sql)
}

// AutoApprove executes every statement that passes the gate.
var AutoApprove Confirmer = ConfirmFunc(func(context.Context, string) (bool, error) { return true, nil })

type Config struct {
	MaxHistoryTurns int
	ExplainEnabled  bool
	ExportEnabled   bool
}

func ConfigFrom(cfg config.Config) Config {
	return Config{
		MaxHistoryTurns: cfg.Session.MaxHistoryTurns,
		ExplainEnabled:  cfg.AI.ExplainEnabled,
		ExportEnabled:   cfg.Export.Enabled,
	}
}

type TurnResult struct {
	Turn        int
	Question    string
	SQL         string
	Status      Status
	Decision    safety.Decision
	Columns     []string
	Rows        [][]any
	Duration    time.Duration
	Explanation string
	Export      *export.Result
	ExportError string
	AskedAt     time.Time
}

// Orchestrator holds one conversation. Ask runs one turn at a time; settings
// may be changed between turns.
type Orchestrator struct {
	Generator  Generator
	Engine     query.Engine
	Explainer  Explainer
	Exporter   Exporter
	Confirmer  Confirmer
	History    *history.Buffer
	SchemaText string
	Config     Config
	Logger     *slog.Logger
	Clock      func() time.Time

	turnMu sync.Mutex
	mu     sync.Mutex
	turns  int
}

// Fork returns a new conversation sharing o's collaborators with an empty
// history and a copy of o's settings.
func (o *Orchestrator) Fork() *Orchestrator {
	return &Orchestrator{
		Generator:  o.Generator,
		Engine:     o.Engine,
		Explainer:  o.Explainer,
		Exporter:   o.Exporter,
		Confirmer:  o.Confirmer,
		History:    history.NewBuffer(),
		SchemaText: o.SchemaText,
		Config:     o.Settings(),
		Logger:     o.Logger,
		Clock:      o.Clock,
	}
}

func (o *Orchestrator) Settings() Config {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.Config
}

// SetMaxHistoryTurns clamps n to 0..config.MaxHistoryTurnsLimit.
func (o *Orchestrator) SetMaxHistoryTurns(n int) {
	if n < 0 {
		n = 0
	}
	if n > config.MaxHistoryTurnsLimit {
		n = config.MaxHistoryTurnsLimit
	}
	o.mu.Lock()
	o.Config.MaxHistoryTurns = n
	o.mu.Unlock()
}

func (o *Orchestrator) SetExportEnabled(enabled bool) {
	o.mu.Lock()
	o.Config.ExportEnabled = enabled
	o.mu.Unlock()
}

func (o *Orchestrator) ClearHistory() {
	o.ensureDefaults()
	o.History.Clear()
}

// RecentTurns returns the turns inside the configured history window, oldest first.
func (o *Orchestrator) RecentTurns() []history.Turn {
	o.ensureDefaults()
	return o.History.ContextView(o.Settings().MaxHistoryTurns)
}

// Ask runs one full turn. Blocked and cancelled turns are not errors. A
// generation or execution failure is returned alongside a StatusFailed
// result. History is appended only after a successful execution.
func (o *Orchestrator) Ask(ctx context.Context, question string) (TurnResult, error) {
	o.ensureDefaults()
	if o.Generator == nil || o.Engine == nil {
		return TurnResult{}, errors.New("session requires a generator and a query engine")
	}
	question = strings.TrimSpace(question)
	if question == "" {
		return TurnResult{}, ErrEmptyQuestion
	}

	o.turnMu.Lock()
	defer o.turnMu.Unlock()

	settings := o.Settings()
	o.mu.Lock()
	o.turns++
	turn := o.turns
	o.mu.Unlock()

	result := TurnResult{Turn: turn, Question: question, AskedAt: o.Clock().UTC()}
	logger := o.Logger.With(slog.Int("turn", turn))
	if traceID := observability.TraceIDFromContext(ctx); traceID != "" {
		logger = logger.With(slog.String("trace_id", traceID))
	}

	historyText := o.History.Render(settings.MaxHistoryTurns)
	started := time.Now()
	candidate, err := o.Generator.Generate(ctx, question, o.SchemaText, historyText)
	observability.ObserveGeneration(observability.GenerationKindSQL, time.Since(started))
	if err != nil {
		result.Status = StatusFailed
		observability.ObserveTurn(observability.OutcomeGenerationFailed)
		logger.WarnContext(ctx, "turn_failed",
			slog.String("stage", "generate"),
			slog.String("error", observability.Mask(err.Error())),
		)
		return result, fmt.Errorf("generate sql: %w", err)
	}
	result.SQL = candidate
	logger.InfoContext(ctx, "turn_generated",
		slog.Int("history_turns", len(o.History.ContextView(settings.MaxHistoryTurns))),
		slog.Duration("elapsed", time.Since(started)),
	)

	result.Decision = safety.Check(candidate)
	if !result.Decision.Safe {
		result.Status = StatusBlocked
		observability.ObserveGateRejection(result.Decision.Reason)
		observability.ObserveTurn(observability.OutcomeBlocked)
		logger.InfoContext(ctx, "turn_blocked",
			slog.String("reason", result.Decision.Reason),
			slog.String("keyword", result.Decision.Keyword),
		)
		return result, nil
	}

	approved, err := o.Confirmer.Confirm(ctx, candidate)
	if err != nil {
		result.Status = StatusCancelled
		observability.ObserveTurn(observability.OutcomeCancelled)
		return result, fmt.Errorf("confirm execution: %w", err)
	}
	if !approved {
		result.Status = StatusCancelled
		observability.ObserveTurn(observability.OutcomeCancelled)
		logger.InfoContext(ctx, "turn_cancelled")
		return result, nil
	}

	executed, err := o.Engine.Execute(ctx, query.Request{SQL: candidate})
	if err != nil {
		result.Status = StatusFailed
		observability.ObserveTurn(observability.OutcomeExecutionFailed)
		logger.WarnContext(ctx, "turn_failed",
			slog.String("stage", "execute"),
			slog.String("error", observability.Mask(err.Error())),
		)
		var execErr *query.ExecutionError
		if errors.As(err, &execErr) {
			return result, err
		}
		return result, &query.ExecutionError{SQL: candidate, Err: err}
	}
	observability.ObserveQuery(len(executed.Rows), executed.Duration)

	result.Status = StatusCompleted
	result.Columns = executed.Columns
	result.Rows = executed.Rows
	result.Duration = executed.Duration
	o.History.Append(history.Turn{
		Question: question,
		SQL:      candidate,
		Preview:  executed.Preview(history.PreviewRows),
		Columns:  executed.Columns,
		AskedAt:  result.AskedAt,
	})
	observability.ObserveTurn(observability.OutcomeCompleted)
	logger.InfoContext(ctx, "turn_executed",
		slog.Int("rows", len(executed.Rows)),
		slog.Duration("elapsed", executed.Duration),
	)

	if settings.ExplainEnabled && o.Explainer != nil {
		result.Explanation = o.explain(ctx, logger, question, candidate, executed.Rows)
	}

	if settings.ExportEnabled && o.Exporter != nil {
		exported, err := o.Exporter.Export(ctx, export.Record{
			Question:    question,
			SQL:         candidate,
			Columns:     executed.Columns,
			Rows:        executed.Rows,
			Explanation: result.Explanation,
			At:          result.AskedAt,
		})
		if err != nil {
			result.ExportError = err.Error()
			logger.WarnContext(ctx, "export_failed", slog.String("error", observability.Mask(err.Error())))
		} else {
			result.Export = &exported
		}
	}

	return result, nil
}

func (o *Orchestrator) explain(ctx context.Context, logger *slog.Logger, question, sql string, rows [][]any) string {
	started := time.Now()
	text, err := o.Explainer.Explain(ctx, question, sql, rows)
	observability.ObserveGeneration(observability.GenerationKindExplain, time.Since(started))
	if err != nil {
		logger.WarnContext(ctx, "explain_failed", slog.String("error", observability.Mask(err.Error())))
		return ""
	}
	return text
}

func (o *Orchestrator) ensureDefaults() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.History == nil {
		o.History = history.NewBuffer()
	}
	if o.Confirmer == nil {
		o.Confirmer = AutoApprove
	}
	if o.Logger == nil {
		o.Logger = observability.DiscardLogger()
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
}
