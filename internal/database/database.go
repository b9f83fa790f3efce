// Package database opens the target database a session asks questions about.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	_ "github.com/marcboeker/go-duckdb/v2"
	_ "modernc.org/sqlite"

	"github.com/askql/askql/internal/config"
)

const (
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"
	DialectDuckDB   = "duckdb"
	DialectMySQL    = "mysql"
)

// NormalizeDriver maps common aliases to a dialect key.
func NormalizeDriver(driver string) string {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "sqlite", "sqlite3":
		return DialectSQLite
	case "postgres", "postgresql", "pg", "pgx":
		return DialectPostgres
	case "duckdb":
		return DialectDuckDB
	case "mysql", "mariadb":
		return DialectMySQL
	default:
		return strings.ToLower(strings.TrimSpace(driver))
	}
}

func SupportedDialects() []string {
	return []string{DialectDuckDB, DialectMySQL, DialectPostgres, DialectSQLite}
}

// Open connects to the configured database and pings it. With ReadOnly set the
// connection is opened in the strictest read-only mode the driver offers.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("database dsn is required")
	}

	dialect := NormalizeDriver(cfg.Driver)
	var (
		db  *sql.DB
		err error
	)
	switch dialect {
	case DialectSQLite:
		dsn := cfg.DSN
		if cfg.ReadOnly {
			if dsn, err = readOnlySQLiteDSN(dsn); err != nil {
				return nil, err
			}
		}
		db, err = sql.Open("sqlite", dsn)
	case DialectDuckDB:
		dsn := cfg.DSN
		if cfg.ReadOnly {
			if dsn, err = readOnlyDuckDBDSN(dsn); err != nil {
				return nil, err
			}
		}
		db, err = sql.Open("duckdb", dsn)
	case DialectPostgres:
		db, err = openPostgres(cfg.DSN, cfg.ReadOnly)
	case DialectMySQL:
		db, err = openMySQL(cfg.DSN, cfg.ReadOnly)
	default:
		return nil, fmt.Errorf("unsupported database driver %q (available: %v)", cfg.Driver, SupportedDialects())
	}
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", dialect, err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s database: %w", dialect, err)
	}
	return db, nil
}

func openPostgres(dsn string, readOnly bool) (*sql.DB, error) {
	connConfig, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if readOnly {
		if connConfig.RuntimeParams == nil {
			connConfig.RuntimeParams = map[string]string{}
		}
		connConfig.RuntimeParams["default_transaction_read_only"] = "on"
	}
	return stdlib.OpenDB(*connConfig), nil
}

func openMySQL(dsn string, readOnly bool) (*sql.DB, error) {
	mysqlConfig, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse mysql dsn: %w", err)
	}
	if readOnly {
		if mysqlConfig.Params == nil {
			mysqlConfig.Params = map[string]string{}
		}
		mysqlConfig.Params["transaction_read_only"] = "1"
	}
	connector, err := mysql.NewConnector(mysqlConfig)
	if err != nil {
		return nil, fmt.Errorf("build mysql connector: %w", err)
	}
	return sql.OpenDB(connector), nil
}

// readOnlySQLiteDSN rewrites a path or file: URI so SQLite opens it with
// mode=ro. In-memory databases are left alone. A plain path containing ? or %
// cannot become a URI unambiguously and is rejected.
func readOnlySQLiteDSN(dsn string) (string, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == ":memory:" || strings.Contains(trimmed, "mode=memory") {
		return trimmed, nil
	}
	if !strings.HasPrefix(trimmed, "file:") {
		if strings.ContainsAny(trimmed, "?%") {
			return "", fmt.Errorf("sqlite path %q contains ? or %%; pass it as a file: URI", trimmed)
		}
		trimmed = "file:" + trimmed
	}
	return withQueryParam(trimmed, "mode", "ro")
}

func readOnlyDuckDBDSN(dsn string) (string, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" || strings.HasPrefix(trimmed, ":memory:") {
		return trimmed, nil
	}
	return withQueryParam(trimmed, "access_mode", "read_only")
}

func withQueryParam(dsn, key, value string) (string, error) {
	base, rawQuery, _ := strings.Cut(dsn, "?")
	query, err := url.ParseQuery(rawQuery)
	if err != nil {
		return "", fmt.Errorf("parse dsn query parameters: %w", err)
	}
	query.Set(key, value)
	return base + "?" + query.Encode(), nil
}
