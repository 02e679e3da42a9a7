// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	ServerHost string `env:"ANALYTICS_SERVER_HOST" envDefault:"localhost"`
	ServerPort int    `env:"ANALYTICS_SERVER_PORT" envDefault:"8080"`
	Env        string `env:"ANALYTICS_ENV" envDefault:"development"`
	LogLevel   string `env:"ANALYTICS_LOG_LEVEL" envDefault:"info"`

	// Event store
	DBDriver string `env:"ANALYTICS_DB_DRIVER" envDefault:"sqlite"`
	DBPath   string `env:"ANALYTICS_DB_PATH" envDefault:"./data/analytics.db"` // SQLite file
	DBURL    string `env:"ANALYTICS_DB_URL"`                                  // PostgreSQL DSN

	// Cache configuration
	RedisURL     string `env:"ANALYTICS_REDIS_URL"`                         // Optional Redis URL
	CachePrefix  string `env:"ANALYTICS_CACHE_PREFIX"`                      // Optional Redis namespace for shared servers
	CacheMaxSize int    `env:"ANALYTICS_CACHE_MAX_SIZE" envDefault:"10000"` // Max memory cache entries

	// Aggregation
	Timezone      string `env:"ANALYTICS_TIMEZONE" envDefault:"Local"`
	RetentionDays int    `env:"ANALYTICS_RETENTION_DAYS" envDefault:"365"`

	// Scheduler
	SchedulerEnabled   bool          `env:"ANALYTICS_SCHEDULER_ENABLED" envDefault:"true"`
	SessionIdleTimeout time.Duration `env:"ANALYTICS_SESSION_IDLE_TIMEOUT" envDefault:"30m"`
	JobTimeout         time.Duration `env:"ANALYTICS_JOB_TIMEOUT" envDefault:"10m"`

	// Ingestion
	GeoIPDBPath    string   `env:"ANALYTICS_GEOIP_DB_PATH"` // Path to GeoLite2-Country.mmdb file
	VisitorSalt    string   `env:"ANALYTICS_VISITOR_SALT"`  // Random per process when empty
	TrackRateLimit float64  `env:"ANALYTICS_TRACK_RATE_LIMIT" envDefault:"20"`
	TrackBurst     int      `env:"ANALYTICS_TRACK_BURST" envDefault:"40"`
	AllowedOrigins []string `env:"ANALYTICS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
}

// IsDevelopment returns true if the application is running in development mode.
func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

// ServerAddr returns the full server address in host:port format.
func (c Config) ServerAddr() string {
	return fmt.Sprintf("%s:%d", c.ServerHost, c.ServerPort)
}

// UseRedisCache returns true if Redis caching is configured.
func (c Config) UseRedisCache() bool {
	return c.RedisURL != ""
}

// GeoIPEnabled returns true if GeoIP database is configured.
func (c Config) GeoIPEnabled() bool {
	return c.GeoIPDBPath != ""
}

// Location resolves the configured timezone used for hour and day windows.
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

// Load parses environment variables and returns a Config struct.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.DBDriver {
	case DriverSQLite:
		if c.DBPath == "" {
			return errors.New("ANALYTICS_DB_PATH is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.DBURL == "" {
			return errors.New("ANALYTICS_DB_URL is required for the postgres driver")
		}
	default:
		return fmt.Errorf("ANALYTICS_DB_DRIVER must be %q or %q, got %q", DriverSQLite, DriverPostgres, c.DBDriver)
	}

	if _, err := c.Location(); err != nil {
		return fmt.Errorf("ANALYTICS_TIMEZONE: %w", err)
	}
	if c.RetentionDays < 0 {
		return fmt.Errorf("ANALYTICS_RETENTION_DAYS must not be negative, got %d", c.RetentionDays)
	}
	if c.SessionIdleTimeout <= 0 {
		return fmt.Errorf("ANALYTICS_SESSION_IDLE_TIMEOUT must be positive, got %s", c.SessionIdleTimeout)
	}
	if c.TrackRateLimit <= 0 || c.TrackBurst <= 0 {
		return errors.New("ANALYTICS_TRACK_RATE_LIMIT and ANALYTICS_TRACK_BURST must be positive")
	}
	return nil
}
