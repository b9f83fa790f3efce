package schema

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5"
)

type sqliteExtractor struct{}

func (sqliteExtractor) Extract(ctx context.Context, db *sql.DB) ([]Table, error) {
	rows, err := db.QueryContext(ctx, `SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query tables: %w", err)
	}
	var tables []Table
	for rows.Next() {
		var table Table
		if err := rows.Scan(&table.Name); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan table row: %w", err)
		}
		tables = append(tables, table)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("iterate tables: %w", err)
	}
	_ = rows.Close()

	for i := range tables {
		t := &tables[i]
		pr, err := db.QueryContext(ctx, "PRAGMA table_info("+pgx.Identifier{t.Name}.Sanitize()+")")
		if err != nil {
			return nil, fmt.Errorf("query columns for %s: %w", t.Name, err)
		}
		for pr.Next() {
			var (
				cid     int
				name    string
				ctype   sql.NullString
				notnull int
				dflt    sql.NullString
				pk      int
			)
			if err := pr.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
				_ = pr.Close()
				return nil, fmt.Errorf("scan column for %s: %w", t.Name, err)
			}
			t.Columns = append(t.Columns, Column{Name: name, DeclaredType: ctype.String})
		}
		err = pr.Err()
		_ = pr.Close()
		if err != nil {
			return nil, fmt.Errorf("iterate columns for %s: %w", t.Name, err)
		}
	}
	return tables, nil
}

const (
	informationSchemaColumnsQuery = `
SELECT c.table_name, c.column_name, c.data_type
FROM information_schema.columns c
JOIN information_schema.tables t ON t.table_schema = c.table_schema AND t.table_name = c.table_name
WHERE t.table_type = 'BASE TABLE' AND c.table_schema = current_schema()
ORDER BY c.table_name, c.ordinal_position`

	mysqlColumnsQuery = `
SELECT c.table_name, c.column_name, c.column_type
FROM information_schema.columns c
JOIN information_schema.tables t ON t.table_schema = c.table_schema AND t.table_name = c.table_name
WHERE t.table_type = 'BASE TABLE' AND c.table_schema = DATABASE()
ORDER BY c.table_name, c.ordinal_position`
)

// infoSchemaExtractor reads every column of the current schema in one query
// and groups consecutive rows by table.
type infoSchemaExtractor struct {
	query string
}

func (e infoSchemaExtractor) Extract(ctx context.Context, db *sql.DB) ([]Table, error) {
	rows, err := db.QueryContext(ctx, e.query)
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tables []Table
	for rows.Next() {
		var tableName, columnName, dataType string
		if err := rows.Scan(&tableName, &columnName, &dataType); err != nil {
			return nil, fmt.Errorf("scan column row: %w", err)
		}
		if len(tables) == 0 || tables[len(tables)-1].Name != tableName {
			tables = append(tables, Table{Name: tableName})
		}
		last := &tables[len(tables)-1]
		last.Columns = append(last.Columns, Column{Name: columnName, DeclaredType: dataType})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", err)
	}
	return tables, nil
}
