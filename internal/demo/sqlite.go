package demo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"

	_ "modernc.org/sqlite"
)

var ErrExists = errors.New("demo database already exists")

// WriteSQLite creates path and loads ds into it in one transaction. An
// existing file is replaced only when overwrite is set.
func WriteSQLite(ctx context.Context, path string, ds Dataset, overwrite bool) (map[string]int, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("demo database path is required")
	}
	if _, err := os.Stat(path); err == nil {
		if !overwrite {
			return nil, fmt.Errorf("%w: %s", ErrExists, path)
		}
		if err := os.Remove(path); err != nil {
			return nil, fmt.Errorf("remove existing demo database: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open demo database: %w", err)
	}
	defer func() { _ = db.Close() }()

	counts, err := Load(ctx, db, ds)
	if err != nil {
		_ = db.Close()
		_ = os.Remove(path)
		return nil, err
	}
	return counts, nil
}

// Load creates every table in ds and inserts its rows.
func Load(ctx context.Context, db *sql.DB, ds Dataset) (map[string]int, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin demo load: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	counts := make(map[string]int, len(ds.Tables))
	for _, table := range ds.Tables {
		if _, err := tx.ExecContext(ctx, table.DDL); err != nil {
			return nil, fmt.Errorf("create %s: %w", table.Name, err)
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(table.Columns)), ", ")
		stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
			"INSERT INTO %s (%s) VALUES (%s)", table.Name, strings.Join(table.Columns, ", "), placeholders,
		))
		if err != nil {
			return nil, fmt.Errorf("prepare %s insert: %w", table.Name, err)
		}
		for _, row := range table.Rows {
			if _, err := stmt.ExecContext(ctx, row...); err != nil {
				_ = stmt.Close()
				return nil, fmt.Errorf("insert into %s: %w", table.Name, err)
			}
		}
		_ = stmt.Close()
		counts[table.Name] = len(table.Rows)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit demo load: %w", err)
	}
	return counts, nil
}
