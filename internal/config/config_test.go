package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaultsForDevProfile(t *testing.T) {
	cfg, err := Load("askql", mapLookup(map[string]string{}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Profile != ProfileDev {
		t.Fatalf("Profile = %q, want %q", cfg.Profile, ProfileDev)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Fatalf("Database.Driver = %q", cfg.Database.Driver)
	}
	if !cfg.Database.ReadOnly {
		t.Fatal("Database.ReadOnly should default to true")
	}
	if cfg.AI.Model != "gpt-4o-mini" {
		t.Fatalf("AI.Model = %q", cfg.AI.Model)
	}
	if cfg.AI.SQLTemperature != 0.1 {
		t.Fatalf("AI.SQLTemperature = %v", cfg.AI.SQLTemperature)
	}
	if cfg.AI.ExplainTemperature != 0.2 {
		t.Fatalf("AI.ExplainTemperature = %v", cfg.AI.ExplainTemperature)
	}
	if cfg.Session.MaxHistoryTurns != 15 {
		t.Fatalf("Session.MaxHistoryTurns = %d", cfg.Session.MaxHistoryTurns)
	}
	if cfg.Session.ExplainRows != 5 {
		t.Fatalf("Session.ExplainRows = %d", cfg.Session.ExplainRows)
	}
	if !cfg.Session.ConfirmBeforeExecute {
		t.Fatal("Session.ConfirmBeforeExecute should default to true")
	}
	if cfg.Export.Enabled {
		t.Fatal("Export.Enabled should default to false")
	}
	if cfg.Export.SlugMaxLen != 40 {
		t.Fatalf("Export.SlugMaxLen = %d", cfg.Export.SlugMaxLen)
	}
	if cfg.Export.ObjectStore.Configured() {
		t.Fatal("object store should not be configured by default")
	}
	if cfg.Observability.LogLevel != slog.LevelDebug {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
}

func TestLoadProdProfileDefaults(t *testing.T) {
	cfg, err := Load("askql", mapLookup(map[string]string{"ASKQL_PROFILE": "prod"}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Observability.LogLevel != slog.LevelInfo {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if !cfg.Observability.LogJSON {
		t.Fatal("LogJSON should default to true in prod")
	}
	if !cfg.Export.ObjectStore.UseSSL {
		t.Fatal("ObjectStore.UseSSL should default to true in prod")
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	cfg, err := Load("askql", mapLookup(map[string]string{
		"ASKQL_PROFILE":                        "test",
		"ASKQL_DATABASE_DRIVER":                "postgres",
		"ASKQL_DATABASE_DSN":                   "postgres://u:p@localhost/db",
		"ASKQL_DATABASE_READ_ONLY":             "false",
		"ASKQL_DATABASE_CONNECT_TIMEOUT":       "3s",
		"ASKQL_AI_PROVIDER":                    "huggingface",
		"ASKQL_AI_API_KEY":                     "secret",
		"ASKQL_AI_MODEL":                       "gpt-x",
		"ASKQL_AI_SQL_TEMPERATURE":             "0",
		"ASKQL_AI_TIMEOUT":                     "12s",
		"ASKQL_AI_EXPLAIN_ENABLED":             "false",
		"ASKQL_SESSION_MAX_HISTORY_TURNS":      "7",
		"ASKQL_SESSION_CONFIRM_BEFORE_EXECUTE": "false",
		"ASKQL_EXPORT_ENABLED":                 "true",
		"ASKQL_EXPORT_DIR":                     "/tmp/out",
		"ASKQL_EXPORT_PARQUET":                 "true",
		"ASKQL_EXPORT_S3_ENDPOINT":             "localhost:9000",
		"ASKQL_EXPORT_S3_BUCKET":               "reports",
		"ASKQL_HTTP_ADDR":                      ":9999",
		"ASKQL_HTTP_CORS_ALLOWED_ORIGINS":      "http://a.example, http://b.example",
		"ASKQL_HTTP_API_KEYS":                  "k1:ops",
		"ASKQL_HTTP_SESSION_TTL":               "30m",
		"ASKQL_LOG_LEVEL":                      "error",
	}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.Driver != "postgres" || cfg.Database.DSN != "postgres://u:p@localhost/db" {
		t.Fatalf("Database = %+v", cfg.Database)
	}
	if cfg.Database.ReadOnly {
		t.Fatal("Database.ReadOnly = true, want false")
	}
	if cfg.Database.ConnectTimeout != 3*time.Second {
		t.Fatalf("Database.ConnectTimeout = %s", cfg.Database.ConnectTimeout)
	}
	if cfg.AI.Provider != "huggingface" || cfg.AI.APIKey != "secret" || cfg.AI.Model != "gpt-x" {
		t.Fatalf("AI = %+v", cfg.AI)
	}
	if cfg.AI.SQLTemperature != 0 {
		t.Fatalf("AI.SQLTemperature = %v", cfg.AI.SQLTemperature)
	}
	if cfg.AI.Timeout != 12*time.Second {
		t.Fatalf("AI.Timeout = %s", cfg.AI.Timeout)
	}
	if cfg.AI.ExplainEnabled {
		t.Fatal("AI.ExplainEnabled = true, want false")
	}
	if cfg.Session.MaxHistoryTurns != 7 {
		t.Fatalf("Session.MaxHistoryTurns = %d", cfg.Session.MaxHistoryTurns)
	}
	if cfg.Session.ConfirmBeforeExecute {
		t.Fatal("Session.ConfirmBeforeExecute = true, want false")
	}
	if !cfg.Export.Enabled || cfg.Export.Dir != "/tmp/out" || !cfg.Export.Parquet {
		t.Fatalf("Export = %+v", cfg.Export)
	}
	if !cfg.Export.ObjectStore.Configured() {
		t.Fatal("object store should be configured")
	}
	if cfg.HTTP.Address != ":9999" {
		t.Fatalf("HTTP.Address = %q", cfg.HTTP.Address)
	}
	if len(cfg.HTTP.CORSAllowedOrigins) != 2 || cfg.HTTP.CORSAllowedOrigins[1] != "http://b.example" {
		t.Fatalf("HTTP.CORSAllowedOrigins = %#v", cfg.HTTP.CORSAllowedOrigins)
	}
	if cfg.HTTP.APIKeys != "k1:ops" || cfg.HTTP.SessionTTL != 30*time.Minute {
		t.Fatalf("HTTP = %+v", cfg.HTTP)
	}
	if cfg.Observability.LogLevel != slog.LevelError {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
}

func TestLoadFallsBackToOpenAIEnvironment(t *testing.T) {
	cfg, err := Load("askql", mapLookup(map[string]string{
		"OPENAI_API_KEY": "sk-from-openai",
		"OPENAI_MODEL":   "gpt-4o",
	}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.AI.APIKey != "sk-from-openai" {
		t.Fatalf("AI.APIKey = %q", cfg.AI.APIKey)
	}
	if cfg.AI.Model != "gpt-4o" {
		t.Fatalf("AI.Model = %q", cfg.AI.Model)
	}

	cfg, err = Load("askql", mapLookup(map[string]string{
		"OPENAI_API_KEY":   "sk-from-openai",
		"ASKQL_AI_API_KEY": "sk-askql",
	}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.AI.APIKey != "sk-askql" {
		t.Fatalf("AI.APIKey = %q, want ASKQL_AI_API_KEY to win", cfg.AI.APIKey)
	}
}

func TestLoadReadsYAMLFileWithEnvPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "askql.yaml")
	doc := `
profile: test
database:
  driver: duckdb
  dsn: analytics.duckdb
session:
  max_history_turns: 4
export:
  enabled: true
  s3:
    endpoint: minio:9000
    bucket: askql
http:
  cors_allowed_origins:
    - http://one.example
    - http://two.example
log:
  level: info
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load("askql", mapLookup(map[string]string{
		"ASKQL_CONFIG_FILE":               path,
		"ASKQL_SESSION_MAX_HISTORY_TURNS": "9",
	}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Profile != ProfileTest {
		t.Fatalf("Profile = %q", cfg.Profile)
	}
	if cfg.Database.Driver != "duckdb" || cfg.Database.DSN != "analytics.duckdb" {
		t.Fatalf("Database = %+v", cfg.Database)
	}
	if cfg.Session.MaxHistoryTurns != 9 {
		t.Fatalf("Session.MaxHistoryTurns = %d, want env to win", cfg.Session.MaxHistoryTurns)
	}
	if !cfg.Export.Enabled || cfg.Export.ObjectStore.Bucket != "askql" {
		t.Fatalf("Export = %+v", cfg.Export)
	}
	if len(cfg.HTTP.CORSAllowedOrigins) != 2 {
		t.Fatalf("CORSAllowedOrigins = %#v", cfg.HTTP.CORSAllowedOrigins)
	}
	if cfg.Observability.LogLevel != slog.LevelInfo {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
}

func TestLoadMissingConfigFile(t *testing.T) {
	_, err := Load("askql", mapLookup(map[string]string{
		"ASKQL_CONFIG_FILE": filepath.Join(t.TempDir(), "missing.yaml"),
	}))
	if err == nil || !strings.Contains(err.Error(), "read config file") {
		t.Fatalf("Load() error = %v", err)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]map[string]string{
		"profile":      {"ASKQL_PROFILE": "staging"},
		"history":      {"ASKQL_SESSION_MAX_HISTORY_TURNS": "51"},
		"negative":     {"ASKQL_SESSION_MAX_HISTORY_TURNS": "-1"},
		"provider":     {"ASKQL_AI_PROVIDER": "carrier-pigeon"},
		"temperature":  {"ASKQL_AI_SQL_TEMPERATURE": "3"},
		"duration":     {"ASKQL_AI_TIMEOUT": "soon"},
		"bool":         {"ASKQL_EXPORT_ENABLED": "maybe"},
		"log level":    {"ASKQL_LOG_LEVEL": "loud"},
		"empty dsn":    {"ASKQL_DATABASE_DSN": ""},
		"slug max len": {"ASKQL_EXPORT_SLUG_MAX_LEN": "0"},
		"session ttl":  {"ASKQL_HTTP_SESSION_TTL": "0s"},
		"explain rows": {"ASKQL_SESSION_EXPLAIN_ROWS": "40"},
	}
	for name, values := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load("askql", mapLookup(values)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func mapLookup(values map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}
