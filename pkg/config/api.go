package config

import (
	"fmt"
	"time"
)

const (
	// DefaultListen is the default API listen address.
	DefaultListen = ":9090"

	// DefaultMaxResident bounds the number of report trees kept in memory.
	DefaultMaxResident = 16

	// DefaultIndexingInterval is the default period between index passes.
	DefaultIndexingInterval = "5m"

	// DefaultIndexingConcurrency bounds concurrent run indexing.
	DefaultIndexingConcurrency = 4
)

// APIConfig contains all API server configuration.
type APIConfig struct {
	Server   APIServerConfig    `yaml:"server" mapstructure:"server"`
	Cache    APICacheConfig     `yaml:"cache,omitempty" mapstructure:"cache"`
	Indexing *APIIndexingConfig `yaml:"indexing,omitempty" mapstructure:"indexing"`
}

// APIServerConfig contains HTTP server settings.
type APIServerConfig struct {
	Listen      string          `yaml:"listen" mapstructure:"listen"`
	CORSOrigins []string        `yaml:"cors_origins,omitempty" mapstructure:"cors_origins"`
	RateLimit   RateLimitConfig `yaml:"rate_limit,omitempty" mapstructure:"rate_limit"`
}

// RateLimitConfig configures per-IP rate limiting.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled" mapstructure:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
	// Burst defaults to RequestsPerMinute.
	Burst int `yaml:"burst,omitempty" mapstructure:"burst"`
}

// APICacheConfig bounds the in-memory report cache.
type APICacheConfig struct {
	MaxResident int `yaml:"max_resident" mapstructure:"max_resident"`
}

// APIIndexingConfig configures the background indexing service that
// scans stored runs and maintains a queryable summary index.
type APIIndexingConfig struct {
	Enabled     bool           `yaml:"enabled" mapstructure:"enabled"`
	Interval    string         `yaml:"interval,omitempty" mapstructure:"interval"`
	Concurrency int            `yaml:"concurrency,omitempty" mapstructure:"concurrency"`
	Database    DatabaseConfig `yaml:"database" mapstructure:"database"`
}

// IntervalDuration returns the parsed indexing interval.
func (c *APIIndexingConfig) IntervalDuration() time.Duration {
	d, err := time.ParseDuration(c.Interval)
	if err != nil || d <= 0 {
		d, _ = time.ParseDuration(DefaultIndexingInterval)
	}

	return d
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Driver   string               `yaml:"driver" mapstructure:"driver"`
	SQLite   SQLiteDatabaseConfig `yaml:"sqlite,omitempty" mapstructure:"sqlite"`
	Postgres PostgresConfig       `yaml:"postgres,omitempty" mapstructure:"postgres"`
}

// SQLiteDatabaseConfig contains SQLite-specific settings.
type SQLiteDatabaseConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// PostgresConfig contains PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
	Database string `yaml:"database" mapstructure:"database"`
	SSLMode  string `yaml:"ssl_mode,omitempty" mapstructure:"ssl_mode"`
}

// Validate checks the database settings.
func (c *DatabaseConfig) Validate() error {
	switch c.Driver {
	case "sqlite":
		if c.SQLite.Path == "" {
			return fmt.Errorf("sqlite.path is required")
		}
	case "postgres":
		if c.Postgres.Host == "" || c.Postgres.Database == "" {
			return fmt.Errorf("postgres.host and postgres.database are required")
		}
	default:
		return fmt.Errorf("unsupported database driver %q", c.Driver)
	}

	return nil
}

func (c *APIConfig) applyDefaults() {
	if c.Server.Listen == "" {
		c.Server.Listen = DefaultListen
	}

	if c.Cache.MaxResident == 0 {
		c.Cache.MaxResident = DefaultMaxResident
	}

	if c.Indexing != nil {
		if c.Indexing.Interval == "" {
			c.Indexing.Interval = DefaultIndexingInterval
		}

		if c.Indexing.Concurrency == 0 {
			c.Indexing.Concurrency = DefaultIndexingConcurrency
		}
	}
}

// Validate checks the API configuration for errors.
func (c *APIConfig) Validate() error {
	if c.Cache.MaxResident < 0 {
		return fmt.Errorf("api.cache.max_resident must not be negative")
	}

	if c.Server.RateLimit.Enabled && c.Server.RateLimit.RequestsPerMinute <= 0 {
		return fmt.Errorf("api.server.rate_limit.requests_per_minute must be positive")
	}

	if c.Server.RateLimit.Burst < 0 {
		return fmt.Errorf("api.server.rate_limit.burst must not be negative")
	}

	if c.Indexing != nil && c.Indexing.Enabled {
		if _, err := time.ParseDuration(c.Indexing.Interval); err != nil {
			return fmt.Errorf("api.indexing.interval: %w", err)
		}

		if err := c.Indexing.Database.Validate(); err != nil {
			return fmt.Errorf("api.indexing.database: %w", err)
		}
	}

	return nil
}
