// Package schema reads table and column metadata from the target database and
// renders it as compact prompt text.
package schema

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
)

var ErrSchemaUnavailable = errors.New("schema unavailable")

type Column struct {
	Name         string `json:"name"`
	DeclaredType string `json:"type"`
}

type Table struct {
	Name    string   `json:"name"`
	Columns []Column `json:"columns"`
}

// Description lists user tables ordered by name, each with its columns in
// ordinal order.
type Description struct {
	Dialect string  `json:"dialect"`
	Tables  []Table `json:"tables"`
}

// Render produces one line per table: `- name(col type, col type)`.
func (d Description) Render() string {
	lines := make([]string, 0, len(d.Tables))
	for _, table := range d.Tables {
		cols := make([]string, 0, len(table.Columns))
		for _, col := range table.Columns {
			cols = append(cols, strings.TrimSpace(col.Name+" "+col.DeclaredType))
		}
		lines = append(lines, fmt.Sprintf("- %s(%s)", table.Name, strings.Join(cols, ", ")))
	}
	return strings.Join(lines, "\n")
}

func (d Description) Table(name string) (Table, bool) {
	for _, table := range d.Tables {
		if strings.EqualFold(table.Name, name) {
			return table, true
		}
	}
	return Table{}, false
}

type Extractor interface {
	Extract(ctx context.Context, db *sql.DB) ([]Table, error)
}

var dialects = map[string]Extractor{
	"sqlite":   sqliteExtractor{},
	"postgres": infoSchemaExtractor{query: informationSchemaColumnsQuery},
	"duckdb":   infoSchemaExtractor{query: informationSchemaColumnsQuery},
	"mysql":    infoSchemaExtractor{query: mysqlColumnsQuery},
}

func RegisteredDialects() []string {
	keys := make([]string, 0, len(dialects))
	for k := range dialects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type Introspector struct {
	db        *sql.DB
	dialect   string
	extractor Extractor
}

// NewIntrospector expects a normalized dialect key such as "sqlite".
func NewIntrospector(db *sql.DB, dialect string) (*Introspector, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle is required")
	}
	key := strings.ToLower(strings.TrimSpace(dialect))
	extractor, ok := dialects[key]
	if !ok {
		return nil, fmt.Errorf("dialect not registered: %q (available: %v)", dialect, RegisteredDialects())
	}
	return &Introspector{db: db, dialect: key, extractor: extractor}, nil
}

// Describe reads the live catalog. Any failure wraps ErrSchemaUnavailable.
func (i *Introspector) Describe(ctx context.Context) (Description, error) {
	tables, err := i.extractor.Extract(ctx, i.db)
	if err != nil {
		return Description{}, fmt.Errorf("%w: %w", ErrSchemaUnavailable, err)
	}
	sort.SliceStable(tables, func(a, b int) bool { return tables[a].Name < tables[b].Name })
	if tables == nil {
		tables = []Table{}
	}
	return Description{Dialect: i.dialect, Tables: tables}, nil
}
