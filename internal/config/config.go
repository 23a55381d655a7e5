// Package config provides centralized configuration management for recon.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"time"

	"github.com/JonMunkholm/recon/internal/core"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Database DatabaseConfig
	Import   ImportConfig
	Logging  LoggingConfig
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string. Only commands that touch the
	// database need it. Supports both DATABASE_URL and DB_URL env vars.
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// MaxConns is the maximum number of connections in the pool (default: 4)
	MaxConns int `env:"DB_MAX_CONNS" default:"4"`

	// MinConns is the minimum number of connections to keep open (default: 1)
	MinConns int `env:"DB_MIN_CONNS" default:"1"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// ImportConfig holds reconciliation run settings.
type ImportConfig struct {
	// DataDir is the root holding <origin>/<directory>/ extracts (default: data)
	DataDir string `env:"RECON_DATA_DIR" default:"data"`

	// PrimaryOrigin wins customer conflicts and owns summed stock (default: servi)
	PrimaryOrigin string `env:"RECON_PRIMARY_ORIGIN" default:"servi"`

	// SecondaryOrigin is the other extract tree (default: imp)
	SecondaryOrigin string `env:"RECON_SECONDARY_ORIGIN" default:"imp"`

	// KeyScheme is "name" or "origin" (default: name)
	KeyScheme string `env:"RECON_KEY_SCHEME" default:"name"`

	// WalkInName overrides the walk-in customer placeholder name
	WalkInName string `env:"RECON_WALK_IN_NAME"`

	// Entities restricts a run to a comma-separated list of entity types
	Entities []string `env:"RECON_ENTITIES"`

	// MaxFileSize is the maximum size of one extract in bytes (default: 100MB)
	MaxFileSize int64 `env:"RECON_MAX_FILE_SIZE" default:"104857600"`

	// Timeout bounds a whole run (default: 30m)
	Timeout time.Duration `env:"RECON_TIMEOUT" default:"30m"`

	// DryRun rolls back every entity transaction (default: false)
	DryRun bool `env:"RECON_DRY_RUN" default:"false"`

	// Archive moves processed extracts into Uploaded/ (default: false)
	Archive bool `env:"RECON_ARCHIVE" default:"false"`

	// OutDir receives consolidated tables and failed-row reports (default: out)
	OutDir string `env:"RECON_OUT_DIR" default:"out"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Origins returns the configured origin pair.
func (c *ImportConfig) Origins() core.Origins {
	return core.Origins{Primary: c.PrimaryOrigin, Secondary: c.SecondaryOrigin}
}

// Options converts the settings into importer options.
func (c *ImportConfig) Options() (core.Options, error) {
	scheme, err := core.ParseKeyScheme(c.KeyScheme)
	if err != nil {
		return core.Options{}, err
	}
	return core.Options{
		Scheme:     scheme,
		Origins:    c.Origins(),
		WalkInName: c.WalkInName,
		DryRun:     c.DryRun,
		Archive:    c.Archive,
	}, nil
}
