package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds runtime configuration for the guardplane daemons.
type Config struct {
	NatsURL  string `env:"NATS_URL" envDefault:"nats://localhost:4222"`
	RedisURL string `env:"REDIS_URL" envDefault:"redis://localhost:6379"`

	GatewayAddr string `env:"GATEWAY_ADDR" envDefault:":8080"`
	MetricsAddr string `env:"METRICS_ADDR" envDefault:":9090"`

	// SyncQueueGroup is the NATS queue group shared by syncd replicas.
	SyncQueueGroup string `env:"SYNC_QUEUE_GROUP" envDefault:"guardplane-syncd"`
	// SyncBatchSize bounds cursor pages when enumerating projects under a namespace.
	SyncBatchSize int `env:"SYNC_BATCH_SIZE" envDefault:"100"`
	// ReconcileInterval is the period of the dirty-configuration sweep.
	ReconcileInterval time.Duration `env:"RECONCILE_INTERVAL" envDefault:"30s"`

	// FeatureFlags lists flags enabled for every actor, comma separated.
	FeatureFlags []string `env:"FEATURE_FLAGS" envSeparator:","`
	// LicensedFeatures lists licensed features available to the instance.
	LicensedFeatures []string `env:"LICENSED_FEATURES" envSeparator:","`
}

// Load parses configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if cfg.SyncBatchSize <= 0 {
		cfg.SyncBatchSize = 100
	}
	if cfg.ReconcileInterval <= 0 {
		cfg.ReconcileInterval = 30 * time.Second
	}
	return &cfg, nil
}
