package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is read from the environment.
type Config struct {
	// Backend selects the event store: memory, sqlite, postgres or mysql.
	Backend string `env:"PUPKERNEL_BACKEND" envDefault:"memory"`

	// DSN is the database connection string for the SQL backends.
	DSN string `env:"PUPKERNEL_DSN"`

	// RedisAddr enables the Redis snapshot cache when set.
	RedisAddr string `env:"PUPKERNEL_REDIS_ADDR"`

	// SnapshotTTL is the expiry of cached snapshots.
	SnapshotTTL time.Duration `env:"PUPKERNEL_SNAPSHOT_TTL" envDefault:"24h"`

	// LogMode is "production" for JSON logs, anything else for console logs.
	LogMode string `env:"PUPKERNEL_LOG_MODE" envDefault:"development"`

	// Retries bounds the attempts of a command that hits a version conflict.
	Retries uint `env:"PUPKERNEL_RETRIES" envDefault:"5"`
}

// parseConfig loads configuration from environment variables.
func parseConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.Backend = strings.ToLower(strings.TrimSpace(cfg.Backend))

	switch cfg.Backend {
	case "memory":
	case "sqlite":
		if cfg.DSN == "" {
			cfg.DSN = ":memory:"
		}
	case "postgres", "mysql":
		if cfg.DSN == "" {
			return Config{}, fmt.Errorf("PUPKERNEL_DSN is required for backend %q", cfg.Backend)
		}
	default:
		return Config{}, fmt.Errorf("unknown backend %q (use memory, sqlite, postgres or mysql)", cfg.Backend)
	}
	if cfg.Retries == 0 {
		cfg.Retries = 1
	}
	return cfg, nil
}
