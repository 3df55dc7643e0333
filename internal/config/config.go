// Package config provides centralized configuration management for the
// reconciliation job. It loads configuration from environment variables with
// sensible defaults and validates all settings on startup to fail fast on
// misconfiguration. Job parameters (the files a run reads and writes) come
// from command line flags or a YAML parameter file; see LoadParameters.
package config

import (
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"
)

// Database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Restart modes of the import step.
const (
	// RestartUpsert re-imports into the existing table; rows already present
	// are skipped.
	RestartUpsert = "upsert"
	// RestartTruncate clears stored transactions before every import.
	RestartTruncate = "truncate"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Database DatabaseConfig
	Batch    BatchConfig
	Server   ServerConfig
	Schedule ScheduleConfig
	Logging  LoggingConfig
}

// DatabaseConfig holds ledger store settings.
type DatabaseConfig struct {
	// Driver selects the store backend: sqlite or postgres (default: sqlite)
	Driver string `env:"DB_DRIVER" default:"sqlite"`

	// URL is the PostgreSQL connection string, required for the postgres driver.
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// SQLitePath is the database file of the sqlite driver (default: data/ledger.db)
	SQLitePath string `env:"DB_SQLITE_PATH" default:"data/ledger.db"`

	// MaxConns is the maximum number of connections in the pool (default: 4)
	MaxConns int `env:"DB_MAX_CONNS" default:"4"`

	// MinConns is the minimum number of connections to keep open (default: 1)
	MinConns int `env:"DB_MIN_CONNS" default:"1"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// BatchConfig holds job execution settings.
type BatchConfig struct {
	// ChunkSize is the number of items committed per chunk (default: 100)
	ChunkSize int `env:"BATCH_CHUNK_SIZE" default:"100"`

	// Delimiter separates fields in the input and output files (default: ,)
	Delimiter string `env:"BATCH_DELIMITER" default:","`

	// RestartMode controls how the import step treats rows of an earlier
	// run: upsert or truncate (default: upsert)
	RestartMode string `env:"BATCH_RESTART_MODE" default:"upsert"`

	// RequireFooter stops the import when the file has no count footer (default: true)
	RequireFooter bool `env:"BATCH_REQUIRE_FOOTER" default:"true"`

	// RepositoryPath is the bbolt file holding execution history (default: data/executions.db)
	RepositoryPath string `env:"BATCH_REPOSITORY_PATH" default:"data/executions.db"`

	// RepositoryTimeout is how long to wait for the repository file lock (default: 5s)
	RepositoryTimeout time.Duration `env:"BATCH_REPOSITORY_TIMEOUT" default:"5s"`

	// MaxConcurrentRuns is the maximum number of job runs at once (default: 1)
	MaxConcurrentRuns int `env:"BATCH_MAX_CONCURRENT_RUNS" default:"1"`

	// RunTimeout bounds a single job run, 0 for no limit (default: 0s)
	RunTimeout time.Duration `env:"BATCH_RUN_TIMEOUT" default:"0s"`
}

// ServerConfig holds HTTP operations server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 127.0.0.1)
	Host string `env:"SERVER_HOST" default:"127.0.0.1"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading a request (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing a response (default: 30s)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"30s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// APIKeys is a comma-separated list of keys accepted in the X-API-Key
	// header. Empty leaves the API open, which suits the loopback default.
	APIKeys string `env:"SERVER_API_KEYS"`
}

// ScheduleConfig holds periodic run settings of the serve command.
type ScheduleConfig struct {
	// Interval between scheduled runs, 0 disables the scheduler (default: 0s)
	Interval time.Duration `env:"SCHEDULE_INTERVAL" default:"0s"`

	// ParamsFile is the YAML parameter file used for scheduled runs
	ParamsFile string `env:"SCHEDULE_PARAMS_FILE"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// APIKeyList returns the configured API keys with blanks removed.
func (c *ServerConfig) APIKeyList() []string {
	var keys []string
	for _, k := range strings.Split(c.APIKeys, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

// DelimiterRune returns the configured delimiter. Validate guarantees it is
// a single rune.
func (c *BatchConfig) DelimiterRune() rune {
	r, _ := utf8.DecodeRuneInString(c.Delimiter)
	return r
}

// Truncate reports whether the import step clears stored transactions.
func (c *BatchConfig) Truncate() bool {
	return strings.EqualFold(c.RestartMode, RestartTruncate)
}

// Validate checks that the configuration is valid.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []string

	// Database validation
	switch strings.ToLower(c.Database.Driver) {
	case DriverPostgres:
		if c.Database.URL == "" {
			errs = append(errs, "DATABASE_URL is required when DB_DRIVER is postgres")
		}
		if c.Database.MaxConns < c.Database.MinConns {
			errs = append(errs, fmt.Sprintf("DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)",
				c.Database.MaxConns, c.Database.MinConns))
		}
		if c.Database.MaxConns <= 0 || c.Database.MaxConns > math.MaxInt32 {
			errs = append(errs, fmt.Sprintf("DB_MAX_CONNS must be between 1 and %d", math.MaxInt32))
		}
		if c.Database.MinConns < 0 || c.Database.MinConns > math.MaxInt32 {
			errs = append(errs, fmt.Sprintf("DB_MIN_CONNS must be between 0 and %d", math.MaxInt32))
		}
	case DriverSQLite:
		if c.Database.SQLitePath == "" {
			errs = append(errs, "DB_SQLITE_PATH is required when DB_DRIVER is sqlite")
		}
	default:
		errs = append(errs, fmt.Sprintf("DB_DRIVER (%q) must be one of: sqlite, postgres", c.Database.Driver))
	}

	// Batch validation
	if c.Batch.ChunkSize <= 0 {
		errs = append(errs, "BATCH_CHUNK_SIZE must be positive")
	}
	if utf8.RuneCountInString(c.Batch.Delimiter) != 1 {
		errs = append(errs, fmt.Sprintf("BATCH_DELIMITER (%q) must be a single character", c.Batch.Delimiter))
	} else if d := c.Batch.DelimiterRune(); d == '"' || d == '\r' || d == '\n' || d == utf8.RuneError {
		errs = append(errs, fmt.Sprintf("BATCH_DELIMITER (%q) cannot be a quote or line break", c.Batch.Delimiter))
	}
	switch strings.ToLower(c.Batch.RestartMode) {
	case RestartUpsert, RestartTruncate:
	default:
		errs = append(errs, fmt.Sprintf("BATCH_RESTART_MODE (%q) must be one of: upsert, truncate", c.Batch.RestartMode))
	}
	if c.Batch.RepositoryPath == "" {
		errs = append(errs, "BATCH_REPOSITORY_PATH is required")
	}
	if c.Batch.MaxConcurrentRuns <= 0 {
		errs = append(errs, "BATCH_MAX_CONCURRENT_RUNS must be positive")
	}
	if c.Batch.RunTimeout < 0 {
		errs = append(errs, "BATCH_RUN_TIMEOUT must be non-negative")
	}

	// Server validation
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT (%d) must be 1-65535", c.Server.Port))
	}
	if c.Server.ReadTimeout < 0 {
		errs = append(errs, "SERVER_READ_TIMEOUT must be non-negative")
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, "SERVER_SHUTDOWN_TIMEOUT must be positive")
	}

	// Schedule validation
	if c.Schedule.Interval < 0 {
		errs = append(errs, "SCHEDULE_INTERVAL must be non-negative")
	}
	if c.Schedule.Interval > 0 && c.Schedule.ParamsFile == "" {
		errs = append(errs, "SCHEDULE_PARAMS_FILE is required when SCHEDULE_INTERVAL is set")
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// String returns a safe string representation of the config for logging.
// Sensitive values like database URLs are masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	if c.Database.URL != "" {
		fmt.Fprintf(&b, "Database: {Driver: %q, URL: [MASKED], MaxConns: %d}, ", c.Database.Driver, c.Database.MaxConns)
	} else {
		fmt.Fprintf(&b, "Database: {Driver: %q, SQLitePath: %q}, ", c.Database.Driver, c.Database.SQLitePath)
	}
	fmt.Fprintf(&b, "Batch: {ChunkSize: %d, Delimiter: %q, RestartMode: %q, RequireFooter: %v}, ",
		c.Batch.ChunkSize, c.Batch.Delimiter, c.Batch.RestartMode, c.Batch.RequireFooter)
	fmt.Fprintf(&b, "Server: {Host: %q, Port: %d, APIKeys: %d}, ", c.Server.Host, c.Server.Port, len(c.Server.APIKeyList()))
	fmt.Fprintf(&b, "Logging: {Level: %q, Format: %q}", c.Logging.Level, c.Logging.Format)
	b.WriteString("}")
	return b.String()
}
