package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type LookupFunc func(string) (string, bool)

type Profile string

const (
	ProfileDev  Profile = "dev"
	ProfileTest Profile = "test"
	ProfileProd Profile = "prod"
)

const (
	envPrefix = "ASKQL"

	// MaxHistoryTurnsLimit bounds the history depth a session may request.
	MaxHistoryTurnsLimit = 50
	// MaxExplainRows caps the preview rows sent to the explanation call.
	MaxExplainRows = 5
)

type Config struct {
	Profile       Profile
	Service       ServiceConfig
	Database      DatabaseConfig
	AI            AIConfig
	Session       SessionConfig
	Export        ExportConfig
	HTTP          HTTPConfig
	Observability ObservabilityConfig
}

type ServiceConfig struct {
	Name string
}

type DatabaseConfig struct {
	Driver         string
	DSN            string
	ReadOnly       bool
	ConnectTimeout time.Duration
	MaxOpenConns   int
}

type AIConfig struct {
	Provider           string
	BaseURL            string
	APIKey             string
	Model              string
	SQLTemperature     float64
	ExplainTemperature float64
	Timeout            time.Duration
	ExplainEnabled     bool
}

type SessionConfig struct {
	MaxHistoryTurns      int
	ExplainRows          int
	ConfirmBeforeExecute bool
}

type ExportConfig struct {
	Enabled     bool
	Dir         string
	SlugMaxLen  int
	Parquet     bool
	ObjectStore ObjectStoreConfig
}

type ObjectStoreConfig struct {
	Endpoint         string
	Region           string
	Bucket           string
	AccessKeyID      string
	SecretAccessKey  string
	UseSSL           bool
	Prefix           string
	AutoCreateBucket bool
}

// Configured reports whether exports should also be shipped to an object store.
func (c ObjectStoreConfig) Configured() bool {
	return strings.TrimSpace(c.Endpoint) != "" && strings.TrimSpace(c.Bucket) != ""
}

type HTTPConfig struct {
	Address            string
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	IdleTimeout        time.Duration
	CORSAllowedOrigins []string

	// APIKeys is "key:name,key:name". When set, /api routes require one of them.
	APIKeys    string
	SessionTTL time.Duration
}

type ObservabilityConfig struct {
	LogLevel slog.Level
	LogJSON  bool
}

func LoadFromEnv(serviceName string) (Config, error) {
	return Load(serviceName, os.LookupEnv)
}

// Load resolves configuration from profile defaults, an optional YAML file named by
// ASKQL_CONFIG_FILE and finally the lookup itself. Lookup values win over the file.
func Load(serviceName string, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	if path, ok := lookup(envPrefix + "_CONFIG_FILE"); ok && strings.TrimSpace(path) != "" {
		fromFile, err := fileLookup(strings.TrimSpace(path))
		if err != nil {
			return Config{}, err
		}
		lookup = chainLookup(lookup, fromFile)
	}

	profile := ProfileDev
	if raw, ok := lookup("ASKQL_PROFILE"); ok {
		profile = Profile(strings.ToLower(strings.TrimSpace(raw)))
	}
	if !isValidProfile(profile) {
		return Config{}, fmt.Errorf("invalid ASKQL_PROFILE: %q", profile)
	}

	cfg := defaultsForProfile(profile)
	if serviceName != "" {
		cfg.Service.Name = serviceName
	}

	appliers := []func() error{
		func() error { return applyString(lookup, "ASKQL_SERVICE_NAME", &cfg.Service.Name) },
		func() error { return applyString(lookup, "ASKQL_DATABASE_DRIVER", &cfg.Database.Driver) },
		func() error { return applyString(lookup, "ASKQL_DATABASE_DSN", &cfg.Database.DSN) },
		func() error { return applyBool(lookup, "ASKQL_DATABASE_READ_ONLY", &cfg.Database.ReadOnly) },
		func() error { return applyDuration(lookup, "ASKQL_DATABASE_CONNECT_TIMEOUT", &cfg.Database.ConnectTimeout) },
		func() error { return applyInt(lookup, "ASKQL_DATABASE_MAX_OPEN_CONNS", &cfg.Database.MaxOpenConns) },
		func() error { return applyString(lookup, "ASKQL_AI_PROVIDER", &cfg.AI.Provider) },
		func() error { return applyString(lookup, "ASKQL_AI_BASE_URL", &cfg.AI.BaseURL) },
		func() error { return applyString(lookup, "OPENAI_API_KEY", &cfg.AI.APIKey) },
		func() error { return applyString(lookup, "ASKQL_AI_API_KEY", &cfg.AI.APIKey) },
		func() error { return applyString(lookup, "OPENAI_MODEL", &cfg.AI.Model) },
		func() error { return applyString(lookup, "ASKQL_AI_MODEL", &cfg.AI.Model) },
		func() error { return applyFloat(lookup, "ASKQL_AI_SQL_TEMPERATURE", &cfg.AI.SQLTemperature) },
		func() error { return applyFloat(lookup, "ASKQL_AI_EXPLAIN_TEMPERATURE", &cfg.AI.ExplainTemperature) },
		func() error { return applyDuration(lookup, "ASKQL_AI_TIMEOUT", &cfg.AI.Timeout) },
		func() error { return applyBool(lookup, "ASKQL_AI_EXPLAIN_ENABLED", &cfg.AI.ExplainEnabled) },
		func() error { return applyInt(lookup, "ASKQL_SESSION_MAX_HISTORY_TURNS", &cfg.Session.MaxHistoryTurns) },
		func() error { return applyInt(lookup, "ASKQL_SESSION_EXPLAIN_ROWS", &cfg.Session.ExplainRows) },
		func() error {
			return applyBool(lookup, "ASKQL_SESSION_CONFIRM_BEFORE_EXECUTE", &cfg.Session.ConfirmBeforeExecute)
		},
		func() error { return applyBool(lookup, "ASKQL_EXPORT_ENABLED", &cfg.Export.Enabled) },
		func() error { return applyString(lookup, "ASKQL_EXPORT_DIR", &cfg.Export.Dir) },
		func() error { return applyInt(lookup, "ASKQL_EXPORT_SLUG_MAX_LEN", &cfg.Export.SlugMaxLen) },
		func() error { return applyBool(lookup, "ASKQL_EXPORT_PARQUET", &cfg.Export.Parquet) },
		func() error { return applyString(lookup, "ASKQL_EXPORT_S3_ENDPOINT", &cfg.Export.ObjectStore.Endpoint) },
		func() error { return applyString(lookup, "ASKQL_EXPORT_S3_REGION", &cfg.Export.ObjectStore.Region) },
		func() error { return applyString(lookup, "ASKQL_EXPORT_S3_BUCKET", &cfg.Export.ObjectStore.Bucket) },
		func() error {
			return applyString(lookup, "ASKQL_EXPORT_S3_ACCESS_KEY", &cfg.Export.ObjectStore.AccessKeyID)
		},
		func() error {
			return applyString(lookup, "ASKQL_EXPORT_S3_SECRET_KEY", &cfg.Export.ObjectStore.SecretAccessKey)
		},
		func() error { return applyBool(lookup, "ASKQL_EXPORT_S3_USE_SSL", &cfg.Export.ObjectStore.UseSSL) },
		func() error { return applyString(lookup, "ASKQL_EXPORT_S3_PREFIX", &cfg.Export.ObjectStore.Prefix) },
		func() error {
			return applyBool(lookup, "ASKQL_EXPORT_S3_AUTO_CREATE_BUCKET", &cfg.Export.ObjectStore.AutoCreateBucket)
		},
		func() error { return applyString(lookup, "ASKQL_HTTP_ADDR", &cfg.HTTP.Address) },
		func() error { return applyDuration(lookup, "ASKQL_HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout) },
		func() error { return applyDuration(lookup, "ASKQL_HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout) },
		func() error { return applyDuration(lookup, "ASKQL_HTTP_IDLE_TIMEOUT", &cfg.HTTP.IdleTimeout) },
		func() error { return applyList(lookup, "ASKQL_HTTP_CORS_ALLOWED_ORIGINS", &cfg.HTTP.CORSAllowedOrigins) },
		func() error { return applyString(lookup, "ASKQL_HTTP_API_KEYS", &cfg.HTTP.APIKeys) },
		func() error { return applyDuration(lookup, "ASKQL_HTTP_SESSION_TTL", &cfg.HTTP.SessionTTL) },
		func() error { return applyBool(lookup, "ASKQL_LOG_JSON", &cfg.Observability.LogJSON) },
		func() error { return applyLogLevel(lookup, "ASKQL_LOG_LEVEL", &cfg.Observability.LogLevel) },
	}
	for _, apply := range appliers {
		if err := apply(); err != nil {
			return Config{}, err
		}
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Service.Name == "" {
		return fmt.Errorf("service name is required")
	}
	if c.Database.Driver == "" {
		return fmt.Errorf("database driver is required")
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database dsn is required")
	}
	switch strings.ToLower(c.AI.Provider) {
	case "openai", "huggingface":
	default:
		return fmt.Errorf("invalid ASKQL_AI_PROVIDER: %q", c.AI.Provider)
	}
	if c.AI.SQLTemperature < 0 || c.AI.SQLTemperature > 2 {
		return fmt.Errorf("invalid ASKQL_AI_SQL_TEMPERATURE: %v", c.AI.SQLTemperature)
	}
	if c.AI.ExplainTemperature < 0 || c.AI.ExplainTemperature > 2 {
		return fmt.Errorf("invalid ASKQL_AI_EXPLAIN_TEMPERATURE: %v", c.AI.ExplainTemperature)
	}
	if c.Session.MaxHistoryTurns < 0 || c.Session.MaxHistoryTurns > MaxHistoryTurnsLimit {
		return fmt.Errorf("invalid ASKQL_SESSION_MAX_HISTORY_TURNS: %d (allowed 0..%d)", c.Session.MaxHistoryTurns, MaxHistoryTurnsLimit)
	}
	if c.Session.ExplainRows < 0 || c.Session.ExplainRows > MaxExplainRows {
		return fmt.Errorf("invalid ASKQL_SESSION_EXPLAIN_ROWS: %d (allowed 0..%d)", c.Session.ExplainRows, MaxExplainRows)
	}
	if c.Export.SlugMaxLen <= 0 {
		return fmt.Errorf("invalid ASKQL_EXPORT_SLUG_MAX_LEN: %d", c.Export.SlugMaxLen)
	}
	if c.HTTP.Address == "" {
		return fmt.Errorf("http address is required")
	}
	if c.HTTP.SessionTTL <= 0 {
		return fmt.Errorf("invalid ASKQL_HTTP_SESSION_TTL: %s", c.HTTP.SessionTTL)
	}
	return nil
}

func defaultsForProfile(profile Profile) Config {
	cfg := Config{
		Profile: profile,
		Service: ServiceConfig{Name: "askql"},
		Database: DatabaseConfig{
			Driver:         "sqlite",
			DSN:            "Chinook_Sqlite.sqlite",
			ReadOnly:       true,
			ConnectTimeout: 5 * time.Second,
			MaxOpenConns:   4,
		},
		AI: AIConfig{
			Provider:           "openai",
			Model:              "gpt-4o-mini",
			SQLTemperature:     0.1,
			ExplainTemperature: 0.2,
			Timeout:            30 * time.Second,
			ExplainEnabled:     true,
		},
		Session: SessionConfig{
			MaxHistoryTurns:      15,
			ExplainRows:          5,
			ConfirmBeforeExecute: true,
		},
		Export: ExportConfig{
			Enabled:    false,
			Dir:        "outputs",
			SlugMaxLen: 40,
			Parquet:    false,
			ObjectStore: ObjectStoreConfig{
				Region:           "us-east-1",
				AutoCreateBucket: true,
			},
		},
		HTTP: HTTPConfig{
			Address:      ":8080",
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 90 * time.Second,
			IdleTimeout:  60 * time.Second,
			SessionTTL:   12 * time.Hour,
		},
		Observability: ObservabilityConfig{
			LogLevel: slog.LevelDebug,
			LogJSON:  false,
		},
	}

	switch profile {
	case ProfileTest:
		cfg.HTTP.Address = ":18080"
		cfg.AI.Timeout = 5 * time.Second
		cfg.Observability.LogLevel = slog.LevelWarn
	case ProfileProd:
		cfg.Observability.LogLevel = slog.LevelInfo
		cfg.Observability.LogJSON = true
		cfg.Export.ObjectStore.UseSSL = true
		cfg.Export.ObjectStore.AutoCreateBucket = false
	}

	return cfg
}

func isValidProfile(profile Profile) bool {
	switch profile {
	case ProfileDev, ProfileTest, ProfileProd:
		return true
	default:
		return false
	}
}

func chainLookup(lookups ...LookupFunc) LookupFunc {
	return func(key string) (string, bool) {
		for _, lookup := range lookups {
			if value, ok := lookup(key); ok {
				return value, true
			}
		}
		return "", false
	}
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

func applyList(lookup LookupFunc, key string, dst *[]string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	values := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			values = append(values, part)
		}
	}
	*dst = values
	return nil
}

func applyDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyFloat(lookup LookupFunc, key string, dst *float64) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyLogLevel(lookup LookupFunc, key string, dst *slog.Level) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	level := strings.ToLower(strings.TrimSpace(raw))
	switch level {
	case "debug":
		*dst = slog.LevelDebug
	case "info":
		*dst = slog.LevelInfo
	case "warn", "warning":
		*dst = slog.LevelWarn
	case "error":
		*dst = slog.LevelError
	default:
		return fmt.Errorf("invalid %s: %q", key, raw)
	}
	return nil
}
