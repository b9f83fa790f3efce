package cli

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/askql/askql/internal/config"
	"github.com/askql/askql/internal/database"
	"github.com/askql/askql/internal/export"
	"github.com/askql/askql/internal/nl2sql"
	"github.com/askql/askql/internal/observability"
	"github.com/askql/askql/internal/query/sqldb"
	"github.com/askql/askql/internal/schema"
	"github.com/askql/askql/internal/session"
	"github.com/askql/askql/internal/storage"
	s3store "github.com/askql/askql/internal/storage/s3"
)

// runtime holds what a command needs once configuration is resolved.
type runtime struct {
	cfg     config.Config
	logger  *slog.Logger
	db      *sql.DB
	dialect string
	schema  schema.Description

	base            *session.Orchestrator
	exportAvailable bool
}

func (r *runtime) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

// openDatabase connects and loads the schema. A schema that cannot be read is
// fatal for every command.
func openDatabase(ctx context.Context, cfg config.Config, logger *slog.Logger) (*runtime, error) {
	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	dialect := database.NormalizeDriver(cfg.Database.Driver)
	logger.Info("database_opened",
		slog.String("dialect", dialect),
		slog.String("dsn", observability.Mask(cfg.Database.DSN)),
		slog.Bool("read_only", cfg.Database.ReadOnly),
	)

	introspector, err := schema.NewIntrospector(db, dialect)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	desc, err := introspector.Describe(ctx)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("error loading schema: %w", err)
	}
	logger.Debug("schema_loaded", slog.Int("tables", len(desc.Tables)))

	return &runtime{cfg: cfg, logger: logger, db: db, dialect: dialect, schema: desc}, nil
}

// openRuntime adds the generation backends and the export sink on top of
// openDatabase.
func openRuntime(ctx context.Context, opts Options, cfg config.Config, logger *slog.Logger) (*runtime, error) {
	cfg.AI.APIKey = resolveAPIKey(opts, cfg.AI.APIKey, logger)

	rt, err := openDatabase(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	completer, err := opts.NewCompleter(cfg.AI)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	if cfg.AI.APIKey == "" {
		logger.Warn("ai_api_key_missing", slog.String("hint", "set ASKQL_AI_API_KEY or run 'askql key set'"))
	}

	base := &session.Orchestrator{
		Generator: nl2sql.NewGenerator(completer, nl2sql.GeneratorConfig{
			Dialect:     rt.dialect,
			Temperature: cfg.AI.SQLTemperature,
			Timeout:     cfg.AI.Timeout,
		}),
		Engine: sqldb.NewEngine(rt.db),
		Explainer: nl2sql.NewExplainer(completer, nl2sql.ExplainerConfig{
			Temperature: cfg.AI.ExplainTemperature,
			Timeout:     cfg.AI.Timeout,
			PreviewRows: cfg.Session.ExplainRows,
		}),
		SchemaText: rt.schema.Render(),
		Config:     session.ConfigFrom(cfg),
		Logger:     logger,
	}

	exporter, err := newExporter(ctx, cfg.Export, logger)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	if exporter != nil {
		base.Exporter = exporter
		rt.exportAvailable = true
	} else {
		base.Config.ExportEnabled = false
	}

	rt.cfg = cfg
	rt.base = base
	return rt, nil
}

// newExporter returns nil when there is nowhere to write artifacts.
func newExporter(ctx context.Context, cfg config.ExportConfig, logger *slog.Logger) (*export.Exporter, error) {
	var store storage.ObjectStore
	if cfg.ObjectStore.Configured() {
		s, err := s3store.New(ctx, cfg.ObjectStore)
		if err != nil {
			return nil, fmt.Errorf("initialize object store: %w", err)
		}
		store = s
		logger.Info("export_object_store_enabled",
			slog.String("endpoint", cfg.ObjectStore.Endpoint),
			slog.String("bucket", cfg.ObjectStore.Bucket),
		)
	}
	if store == nil && cfg.Dir == "" {
		return nil, nil
	}
	return export.New(cfg, store), nil
}

// resolveAPIKey falls back to the OS credential store. An unavailable store
// is not an error; generation will simply report itself unavailable.
func resolveAPIKey(opts Options, configured string, logger *slog.Logger) string {
	if configured != "" {
		return configured
	}
	store, err := opts.OpenSecrets()
	if err != nil {
		logger.Debug("credential_store_unavailable", slog.String("error", err.Error()))
		return ""
	}
	key, err := store.ResolveAPIKey("")
	if err != nil {
		logger.Warn("credential_store_read_failed", slog.String("error", observability.Mask(err.Error())))
		return ""
	}
	return key
}
