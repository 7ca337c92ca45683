// Copyright (c) 2026 Lumera. All rights reserved.
// Author: hello@lumera.id

/*
Package config handles application-wide settings and environment parsing.

It leverages 'caarlos0/env' to map OS environment variables into a strongly-typed
Go struct, providing early validation and default values.

Usage:

	cfg, err := config.Load()
	if err != nil {
	    log.Fatal(err)
	}

Architecture:

  - Immutability: Once loaded, configuration is read-only.
  - DI-Friendly: Passed to core components (DB, Redis) via constructors.
  - Zero Hidden State: No global variables are used to store config.

This ensures the application is Twelve-Factor compliant by storing config in the env.
*/
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Mail dispatch modes accepted by MAIL_DISPATCH.
const (
	// MailDispatchAsync sends magic-link mail on a background goroutine with
	// a bounded timeout; delivery failures are logged, never surfaced.
	MailDispatchAsync = "async"

	// MailDispatchEager sends inline and surfaces delivery failures to the
	// caller of the magic-link request.
	MailDispatchEager = "eager"
)

// # Configuration Schema

// Config holds all runtime configuration for the Lumera API server.
type Config struct {

	// Server settings
	ServerPort  string `env:"SERVER_PORT"  envDefault:"8080"`
	Environment string `env:"ENVIRONMENT"  envDefault:"development"`
	Debug       bool   `env:"DEBUG"        envDefault:"false"`

	// Relational Database (PostgreSQL)
	DatabaseURL string `env:"DATABASE_URL,required"`

	// MigrationPath is the filesystem path to the SQL migrations directory.
	MigrationPath string `env:"MIGRATION_PATH" envDefault:"./data/migrations"`

	// Key-Value store (Redis). Optional: when empty, the rate-limit hook
	// falls back to the in-memory token bucket.
	RedisURL string `env:"REDIS_URL"`

	// Session lifecycle
	SessionTTL     time.Duration `env:"SESSION_TTL"     envDefault:"720h"` // 30 days
	SessionSliding bool          `env:"SESSION_SLIDING" envDefault:"true"`

	// Magic-link lifecycle
	MagicLinkTTL     time.Duration `env:"MAGIC_LINK_TTL" envDefault:"15m"`
	MagicLinkBaseURL string        `env:"MAGIC_LINK_BASE_URL" envDefault:"http://localhost:8080/api/v1/auth/magic-link/verify"`

	// Email dispatch: "async" (fire-and-forget, bounded) or "eager" (inline).
	MailDispatch string        `env:"MAIL_DISPATCH" envDefault:"async"`
	MailTimeout  time.Duration `env:"MAIL_TIMEOUT"  envDefault:"5s"`

	// Password hashing work factor (argon2id)
	HashMemoryKiB   uint32 `env:"HASH_MEMORY_KIB"  envDefault:"65536"`
	HashIterations  uint32 `env:"HASH_ITERATIONS"  envDefault:"3"`
	HashParallelism uint8  `env:"HASH_PARALLELISM" envDefault:"2"`

	// Cross-Origin Resource Sharing: comma-separated origins allowed in
	// addition to the first-party domain (e.g. a staging frontend).
	ExtraOrigins string `env:"EXTRA_ORIGINS"`
}

// # Configuration Loading

// Load parses environment variables into a [Config] struct.
func Load() (*Config, error) {

	// Initialize an empty config struct
	cfg := &Config{}

	// Use the 'env' package to map environment variables to struct fields.
	// This will fail if any field marked with 'required' is missing.
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse environment variables: %w", err)
	}

	if cfg.MailDispatch != MailDispatchAsync && cfg.MailDispatch != MailDispatchEager {
		return nil, fmt.Errorf("config: MAIL_DISPATCH must be %q or %q, got %q",
			MailDispatchAsync, MailDispatchEager, cfg.MailDispatch)
	}

	return cfg, nil
}

// IsDevelopment reports whether the server is running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction reports whether the server is running in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// AllowedExtraOrigins returns the EXTRA_ORIGINS entries, trimmed, with empty
// segments dropped.
func (c *Config) AllowedExtraOrigins() []string {
	if c.ExtraOrigins == "" {
		return nil
	}

	parts := strings.Split(c.ExtraOrigins, ",")
	origins := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}
