package query

import (
	"context"
	"fmt"
	"time"
)

type Request struct {
	SQL string
}

type Result struct {
	Columns  []string
	Rows     [][]any
	Duration time.Duration
}

// Preview returns at most n leading rows. The slice shares row storage with r.
func (r Result) Preview(n int) [][]any {
	if n <= 0 || len(r.Rows) == 0 {
		return [][]any{}
	}
	if len(r.Rows) < n {
		n = len(r.Rows)
	}
	return r.Rows[:n]
}

// Engine runs one approved statement exactly once.
type Engine interface {
	Execute(ctx context.Context, request Request) (Result, error)
}

// ExecutionError carries the database failure for an approved statement.
type ExecutionError struct {
	SQL string
	Err error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("query execution failed: %v", e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}
