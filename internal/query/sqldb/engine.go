// Package sqldb executes approved statements through database/sql.
package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/marcboeker/go-duckdb/v2"

	"github.com/askql/askql/internal/query"
)

type Engine struct {
	DB *sql.DB
}

func NewEngine(db *sql.DB) *Engine {
	return &Engine{DB: db}
}

// Execute sends request.SQL to the database unchanged. Every database failure
// is returned as a *query.ExecutionError.
func (e *Engine) Execute(ctx context.Context, request query.Request) (query.Result, error) {
	if strings.TrimSpace(request.SQL) == "" {
		return query.Result{}, fmt.Errorf("sql is required")
	}
	if e.DB == nil {
		return query.Result{}, fmt.Errorf("database handle is required")
	}

	start := time.Now()
	rows, err := e.DB.QueryContext(ctx, request.SQL)
	if err != nil {
		return query.Result{}, &query.ExecutionError{SQL: request.SQL, Err: err}
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return query.Result{}, &query.ExecutionError{SQL: request.SQL, Err: fmt.Errorf("query columns: %w", err)}
	}

	resultRows := make([][]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return query.Result{}, &query.ExecutionError{SQL: request.SQL, Err: fmt.Errorf("scan row: %w", err)}
		}
		resultRows = append(resultRows, normalizeValues(values))
	}
	if err := rows.Err(); err != nil {
		return query.Result{}, &query.ExecutionError{SQL: request.SQL, Err: fmt.Errorf("iterate rows: %w", err)}
	}

	return query.Result{
		Columns:  columns,
		Rows:     resultRows,
		Duration: time.Since(start),
	}, nil
}

// normalizeValues turns driver-specific values into plain JSON-friendly ones.
func normalizeValues(values []any) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		switch typed := value.(type) {
		case []byte:
			normalized[i] = string(typed)
		case duckdb.Decimal:
			normalized[i] = typed.Float64()
		case *big.Int:
			if typed == nil {
				normalized[i] = nil
			} else {
				normalized[i] = typed.String()
			}
		default:
			normalized[i] = typed
		}
	}
	return normalized
}
