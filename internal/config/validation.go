package config

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation error(s):\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// HasErrors returns true if there are any validation errors
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Has reports whether field failed validation
func (e ValidationErrors) Has(field string) bool {
	for _, err := range e {
		if err.Field == field {
			return true
		}
	}
	return false
}

// maxQueryTimeout bounds DB_QUERY_TIMEOUT
const maxQueryTimeout = 5 * time.Minute

// Validate performs comprehensive validation on the configuration
func (c *Config) Validate() error {
	var errors ValidationErrors

	errors = append(errors, c.validateServer()...)
	errors = append(errors, c.validateSchema()...)
	errors = append(errors, c.validateDatabase()...)
	errors = append(errors, c.validateHistory()...)
	errors = append(errors, c.validateRedis()...)
	errors = append(errors, c.validateClaude()...)
	errors = append(errors, c.validatePipeline()...)
	errors = append(errors, c.validateLog()...)

	if errors.HasErrors() {
		return errors
	}

	return nil
}

func (c *Config) validateServer() []ValidationError {
	var errors []ValidationError

	if c.Server.Port == "" {
		errors = append(errors, ValidationError{
			Field:   "Server.Port",
			Message: "server port is required",
		})
	} else if port, err := strconv.Atoi(c.Server.Port); err != nil || port <= 0 || port > 65535 {
		errors = append(errors, ValidationError{
			Field:   "Server.Port",
			Message: fmt.Sprintf("invalid server port: %s", c.Server.Port),
		})
	}

	switch c.Server.GinMode {
	case "debug", "release", "test":
	default:
		errors = append(errors, ValidationError{
			Field:   "Server.GinMode",
			Message: fmt.Sprintf("invalid gin mode: %s (must be 'debug', 'release', or 'test')", c.Server.GinMode),
		})
	}

	if c.Server.RateLimit < 0 {
		errors = append(errors, ValidationError{
			Field:   "Server.RateLimit",
			Message: "rate limit must not be negative",
		})
	}

	return errors
}

func (c *Config) validateSchema() []ValidationError {
	var errors []ValidationError

	switch c.Schema.Source {
	case SchemaSourceFile:
		if c.Schema.Path == "" {
			errors = append(errors, ValidationError{
				Field:   "Schema.Path",
				Message: "schema path is required for the file source",
			})
		}
	case SchemaSourcePostgres:
		if c.Database.Driver == DriverSQLite {
			errors = append(errors, ValidationError{
				Field:   "Schema.Source",
				Message: "postgres schema source requires a postgres or pgx database driver",
			})
		}
		if c.Schema.Watch {
			errors = append(errors, ValidationError{
				Field:   "Schema.Watch",
				Message: "schema watching is only supported for the file source",
			})
		}
	default:
		errors = append(errors, ValidationError{
			Field:   "Schema.Source",
			Message: fmt.Sprintf("invalid schema source: %s (must be 'file' or 'postgres')", c.Schema.Source),
		})
	}

	if c.Schema.RefreshInterval < 0 {
		errors = append(errors, ValidationError{
			Field:   "Schema.RefreshInterval",
			Message: "schema refresh interval must not be negative",
		})
	}

	for _, pattern := range c.Schema.ExcludeTables {
		if _, err := regexp.Compile(pattern); err != nil {
			errors = append(errors, ValidationError{
				Field:   "Schema.ExcludeTables",
				Message: fmt.Sprintf("invalid table pattern %q: %v", pattern, err),
			})
		}
	}

	return errors
}

func (c *Config) validateDatabase() []ValidationError {
	var errors []ValidationError

	switch c.Database.Driver {
	case DriverPostgres, DriverPgx, DriverSQLite:
	default:
		errors = append(errors, ValidationError{
			Field:   "Database.Driver",
			Message: fmt.Sprintf("invalid database driver: %s (must be 'postgres', 'pgx', or 'sqlite')", c.Database.Driver),
		})
	}

	if c.Database.DSN == "" {
		errors = append(errors, ValidationError{
			Field:   "Database.DSN",
			Message: "database DSN is required",
		})
	}

	if c.Database.MaxRows <= 0 {
		errors = append(errors, ValidationError{
			Field:   "Database.MaxRows",
			Message: "max rows must be positive",
		})
	}

	if c.Database.QueryTimeout <= 0 || c.Database.QueryTimeout > maxQueryTimeout {
		errors = append(errors, ValidationError{
			Field:   "Database.QueryTimeout",
			Message: fmt.Sprintf("query timeout must be between 0 and %s", maxQueryTimeout),
		})
	}

	return errors
}

func (c *Config) validateHistory() []ValidationError {
	var errors []ValidationError

	if !c.History.Enabled {
		return errors
	}

	if c.History.DSN == "" {
		errors = append(errors, ValidationError{
			Field:   "History.DSN",
			Message: "history DSN is required when history is enabled",
		})
	}

	if c.History.MinSimilarity < 0 || c.History.MinSimilarity > 1 {
		errors = append(errors, ValidationError{
			Field:   "History.MinSimilarity",
			Message: "min similarity must be between 0 and 1",
		})
	}

	return errors
}

func (c *Config) validateRedis() []ValidationError {
	var errors []ValidationError

	if !c.Redis.Enabled {
		return errors
	}

	if c.Redis.Addr == "" {
		errors = append(errors, ValidationError{
			Field:   "Redis.Addr",
			Message: "redis address is required",
		})
	}

	if c.Redis.DB < 0 || c.Redis.DB > 15 {
		errors = append(errors, ValidationError{
			Field:   "Redis.DB",
			Message: "redis DB must be between 0 and 15",
		})
	}

	return errors
}

func (c *Config) validateClaude() []ValidationError {
	var errors []ValidationError

	if c.Claude.APIKey == "" {
		errors = append(errors, ValidationError{
			Field:   "Claude.APIKey",
			Message: "Claude API key is required",
		})
	}

	if c.Claude.Model == "" {
		errors = append(errors, ValidationError{
			Field:   "Claude.Model",
			Message: "Claude model is required",
		})
	}

	if c.Claude.Timeout <= 0 {
		errors = append(errors, ValidationError{
			Field:   "Claude.Timeout",
			Message: "Claude timeout must be positive",
		})
	}

	return errors
}

func (c *Config) validatePipeline() []ValidationError {
	var errors []ValidationError

	if c.Pipeline.DefaultLimit <= 0 {
		errors = append(errors, ValidationError{
			Field:   "Pipeline.DefaultLimit",
			Message: "default limit must be positive",
		})
	} else if c.Database.MaxRows > 0 && c.Pipeline.DefaultLimit > c.Database.MaxRows {
		errors = append(errors, ValidationError{
			Field:   "Pipeline.DefaultLimit",
			Message: fmt.Sprintf("default limit %d exceeds max rows %d", c.Pipeline.DefaultLimit, c.Database.MaxRows),
		})
	}

	if c.Pipeline.SessionTTL <= 0 {
		errors = append(errors, ValidationError{
			Field:   "Pipeline.SessionTTL",
			Message: "session TTL must be positive",
		})
	}

	return errors
}

func (c *Config) validateLog() []ValidationError {
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
		return nil
	}
	return []ValidationError{{
		Field:   "Log.Level",
		Message: fmt.Sprintf("invalid log level: %s (must be 'debug', 'info', 'warn', or 'error')", c.Log.Level),
	}}
}

// ValidateProduction performs additional validation for production environments
// It checks for insecure default values that should not be used in production
func (c *Config) ValidateProduction() error {
	var errors ValidationErrors

	if c.Redis.Enabled && (c.Redis.Password == "" || c.Redis.Password == "changeme") {
		errors = append(errors, ValidationError{
			Field:   "Redis.Password",
			Message: "production deployment must not use default or empty Redis password",
		})
	}

	if c.Claude.APIKey == "your-api-key-here" || c.Claude.APIKey == "" {
		errors = append(errors, ValidationError{
			Field:   "Claude.APIKey",
			Message: "production deployment requires a valid Claude API key",
		})
	}

	if c.Server.GinMode != "release" {
		errors = append(errors, ValidationError{
			Field:   "Server.GinMode",
			Message: "production deployment should use 'release' mode",
		})
	}

	// Without Redis, replicas do not share conversation state
	if !c.Redis.Enabled {
		errors = append(errors, ValidationError{
			Field:   "Redis.Enabled",
			Message: "production deployment should keep sessions in Redis",
		})
	}

	if !c.Pipeline.StrictMode {
		errors = append(errors, ValidationError{
			Field:   "Pipeline.StrictMode",
			Message: "production deployment should run in strict mode",
		})
	}

	if errors.HasErrors() {
		return errors
	}

	return nil
}

// IsProduction determines if the current environment is production
// based on the GinMode setting
func (c *Config) IsProduction() bool {
	return c.Server.GinMode == "release"
}

// ValidateWithContext validates configuration and runs production checks if appropriate
func (c *Config) ValidateWithContext() error {
	if err := c.Validate(); err != nil {
		return err
	}

	if c.IsProduction() {
		if err := c.ValidateProduction(); err != nil {
			return fmt.Errorf("production validation failed: %w", err)
		}
	}

	return nil
}
