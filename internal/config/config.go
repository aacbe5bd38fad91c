package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config holds all application configuration, loaded from environment variables.
type Config struct {
	// Environment selects production-vs-development posture. In production,
	// AdminKey must be at least 16 characters and NoAuth must be false.
	Environment string `env:"FLAPJACK_ENV" envDefault:"development"`

	// Server
	BindAddr string `env:"FLAPJACK_BIND_ADDR" envDefault:"0.0.0.0"`
	Port     int    `env:"FLAPJACK_PORT" envDefault:"7700"`

	// Storage
	DataDir string `env:"FLAPJACK_DATA_DIR" envDefault:"./data"`

	// Auth
	AdminKey string `env:"FLAPJACK_ADMIN_KEY"`
	NoAuth   bool   `env:"FLAPJACK_NO_AUTH" envDefault:"false"`

	// Write pipeline
	MaxBatchSize int `env:"FLAPJACK_MAX_BATCH_SIZE" envDefault:"10000"`
	MaxBodyMB    int `env:"FLAPJACK_MAX_BODY_MB" envDefault:"100"`

	// Snapshots
	SnapshotInterval string `env:"FLAPJACK_SNAPSHOT_INTERVAL" envDefault:"1h"`
	SnapshotRetention int   `env:"FLAPJACK_SNAPSHOT_RETENTION" envDefault:"24"`

	// Geo
	GeoIPDB string `env:"FLAPJACK_GEOIP_DB"`

	// Embedders
	FastEmbedCacheDir string `env:"FASTEMBED_CACHE_DIR" envDefault:"./.fastembed_cache"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Telemetry
	MetricsPath string `env:"METRICS_PATH" envDefault:"/metrics"`

	// CORS
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`

	// Rate limiting (per-IP query budget, backed by Redis)
	RedisURL string `env:"FLAPJACK_REDIS_URL" envDefault:"redis://localhost:6379/0"`

	// Replication
	ReplicationPeers      []string `env:"FLAPJACK_REPLICATION_PEERS" envSeparator:","`
	ReplicationGraceDelay string   `env:"FLAPJACK_REPLICATION_GRACE_DELAY" envDefault:"300ms"`
}

// Validate enforces the production-mode invariants: a production
// deployment requires a real admin key and forbids --no-auth.
func (c *Config) Validate() error {
	if c.Environment == "production" {
		if c.NoAuth {
			return fmt.Errorf("FLAPJACK_NO_AUTH is forbidden when FLAPJACK_ENV=production")
		}
		if len(c.AdminKey) < 16 {
			return fmt.Errorf("FLAPJACK_ADMIN_KEY must be at least 16 characters in production")
		}
	}
	return nil
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config from env: %w", err)
	}
	return cfg, nil
}

// ListenAddr returns the address the HTTP server should listen on.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.BindAddr, c.Port)
}
