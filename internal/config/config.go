package config

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/seanankenbruck/analytics-sql-ai/internal/schema"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Schema catalog source
	Schema SchemaConfig

	// Analytics database the executor runs against
	Database DatabaseConfig

	// Query history store
	History HistoryConfig

	// Redis session store configuration
	Redis RedisConfig

	// Claude LLM configuration
	Claude ClaudeConfig

	// Pipeline behaviour
	Pipeline PipelineConfig

	// Log configuration
	Log LogConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port    string
	GinMode string

	// RateLimit is requests per minute per session or client IP; 0 disables it
	RateLimit int
}

// Schema sources
const (
	SchemaSourceFile     = "file"
	SchemaSourcePostgres = "postgres"
)

// SchemaConfig says where the catalog comes from
type SchemaConfig struct {
	Path   string
	Source string // "file" or "postgres"
	Watch  bool

	// DBName is the database schema introspected when Source is postgres
	DBName string

	// RefreshInterval reloads the catalog periodically; 0 disables it
	RefreshInterval time.Duration
	// ExcludeTables are regular expressions for introspected tables to leave out
	ExcludeTables   []string
}

// Executor drivers
const (
	DriverPostgres = "postgres"
	DriverPgx      = "pgx"
	DriverSQLite   = "sqlite"
)

// DatabaseConfig holds the analytics database connection
type DatabaseConfig struct {
	Driver       string
	DSN          string
	MaxRows      int
	QueryTimeout time.Duration
}

// HistoryConfig holds the query history store connection
type HistoryConfig struct {
	Enabled       bool
	DSN           string
	MinSimilarity float64
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

// ClaudeConfig holds Claude API configuration
type ClaudeConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// PipelineConfig holds the orchestrator settings
type PipelineConfig struct {
	StrictMode           bool
	DefaultLimit         int
	SessionTTL           time.Duration
	CarryContext         bool
	UseClarifier         bool
	AllowedFilterColumns []string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string
}

// Loader handles loading configuration from various sources
type Loader struct {
	provider SecretProvider
}

// NewLoader creates a new configuration loader with the given secret provider
func NewLoader(provider SecretProvider) *Loader {
	return &Loader{
		provider: provider,
	}
}

// NewDefaultLoader creates a loader with the default provider chain:
// 1. File-based secrets (if the directory is mounted)
// 2. Environment variables (fallback)
func NewDefaultLoader() *Loader {
	providers := []SecretProvider{
		NewFileProvider(DefaultSecretsPath),
		NewEnvProvider(),
	}

	return &Loader{
		provider: NewChainProvider(providers...),
	}
}

// Load loads the complete configuration
func (l *Loader) Load(ctx context.Context) (*Config, error) {
	cfg := &Config{}

	cfg.Server = ServerConfig{
		Port:      l.getString(ctx, "PORT", "8080"),
		GinMode:   l.getString(ctx, "GIN_MODE", "debug"),
		RateLimit: l.getInt(ctx, "RATE_LIMIT", 60),
	}

	cfg.Schema = SchemaConfig{
		Path:   l.getString(ctx, "SCHEMA_PATH", "schema.json"),
		Source: l.getString(ctx, "SCHEMA_SOURCE", SchemaSourceFile),
		Watch:  l.getBool(ctx, "SCHEMA_WATCH", false),
		DBName: l.getString(ctx, "SCHEMA_DB_NAME", "public"),

		RefreshInterval: l.getDuration(ctx, "SCHEMA_REFRESH_INTERVAL", 0),
		ExcludeTables:   l.getSlice(ctx, "SCHEMA_EXCLUDE_TABLES", []string{"^schema_migrations$", "^query_history$"}),
	}

	cfg.Database = DatabaseConfig{
		Driver:       l.getString(ctx, "DB_DRIVER", DriverPostgres),
		DSN:          l.getString(ctx, "DB_DSN", ""),
		MaxRows:      l.getInt(ctx, "DB_MAX_ROWS", 1000),
		QueryTimeout: l.getDuration(ctx, "DB_QUERY_TIMEOUT", 5*time.Second),
	}

	cfg.History = HistoryConfig{
		Enabled:       l.getBool(ctx, "HISTORY_ENABLED", false),
		DSN:           l.getString(ctx, "HISTORY_DSN", ""),
		MinSimilarity: l.getFloat(ctx, "HISTORY_MIN_SIMILARITY", 0.8),
	}

	cfg.Redis = RedisConfig{
		Enabled:  l.getBool(ctx, "REDIS_ENABLED", false),
		Addr:     l.getString(ctx, "REDIS_ADDR", "localhost:6379"),
		Password: l.getString(ctx, "REDIS_PASSWORD", ""),
		DB:       l.getInt(ctx, "REDIS_DB", 0),
	}

	cfg.Claude = ClaudeConfig{
		APIKey:  l.getString(ctx, "CLAUDE_API_KEY", ""),
		Model:   l.getString(ctx, "CLAUDE_MODEL", "claude-3-5-sonnet-20241022"),
		BaseURL: l.getString(ctx, "CLAUDE_BASE_URL", ""),
		Timeout: l.getDuration(ctx, "CLAUDE_TIMEOUT", 30*time.Second),
	}

	cfg.Pipeline = PipelineConfig{
		StrictMode:           l.getBool(ctx, "STRICT_MODE", true),
		DefaultLimit:         l.getInt(ctx, "DEFAULT_LIMIT", 100),
		SessionTTL:           l.getDuration(ctx, "SESSION_TTL", 24*time.Hour),
		CarryContext:         l.getBool(ctx, "CARRY_CONTEXT", false),
		UseClarifier:         l.getBool(ctx, "USE_CLARIFIER", true),
		AllowedFilterColumns: l.getSlice(ctx, "ALLOWED_FILTER_COLUMNS", []string{"order_date", "amount"}),
	}

	cfg.Log = LogConfig{
		Level: l.getString(ctx, "LOG_LEVEL", "info"),
	}

	return cfg, nil
}

// Dialect reports the SQL dialect of the configured driver
func (c *Config) Dialect() schema.Dialect {
	if c.Database.Driver == DriverSQLite {
		return schema.DialectSQLite
	}
	return schema.DialectPostgres
}

// Helper methods for retrieving and parsing configuration values

func (l *Loader) getString(ctx context.Context, key, defaultValue string) string {
	value, err := l.provider.GetSecret(ctx, key)
	if err != nil || value == "" {
		return defaultValue
	}
	return value
}

func (l *Loader) getBool(ctx context.Context, key string, defaultValue bool) bool {
	value, err := l.provider.GetSecret(ctx, key)
	if err != nil || value == "" {
		return defaultValue
	}

	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}

func (l *Loader) getInt(ctx context.Context, key string, defaultValue int) int {
	value, err := l.provider.GetSecret(ctx, key)
	if err != nil || value == "" {
		return defaultValue
	}

	i, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return i
}

func (l *Loader) getFloat(ctx context.Context, key string, defaultValue float64) float64 {
	value, err := l.provider.GetSecret(ctx, key)
	if err != nil || value == "" {
		return defaultValue
	}

	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return f
}

func (l *Loader) getDuration(ctx context.Context, key string, defaultValue time.Duration) time.Duration {
	value, err := l.provider.GetSecret(ctx, key)
	if err != nil || value == "" {
		return defaultValue
	}

	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}

func (l *Loader) getSlice(ctx context.Context, key string, defaultValue []string) []string {
	value, err := l.provider.GetSecret(ctx, key)
	if err != nil || value == "" {
		return defaultValue
	}

	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}

	if len(result) == 0 {
		return defaultValue
	}
	return result
}

// MustLoad loads configuration and panics on error
func (l *Loader) MustLoad(ctx context.Context) *Config {
	cfg, err := l.Load(ctx)
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}
