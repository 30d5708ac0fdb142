package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.NatsURL != "nats://localhost:4222" {
		t.Fatalf("unexpected nats url: %s", cfg.NatsURL)
	}
	if cfg.RedisURL != "redis://localhost:6379" {
		t.Fatalf("unexpected redis url: %s", cfg.RedisURL)
	}
	if cfg.SyncBatchSize != 100 {
		t.Fatalf("unexpected batch size: %d", cfg.SyncBatchSize)
	}
	if cfg.ReconcileInterval != 30*time.Second {
		t.Fatalf("unexpected reconcile interval: %s", cfg.ReconcileInterval)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("NATS_URL", "nats://bus:4222")
	t.Setenv("SYNC_BATCH_SIZE", "25")
	t.Setenv("FEATURE_FLAGS", "security_policies_variables_precedence,scan_result_any_merge_request")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.NatsURL != "nats://bus:4222" {
		t.Fatalf("override not applied: %s", cfg.NatsURL)
	}
	if cfg.SyncBatchSize != 25 {
		t.Fatalf("override not applied: %d", cfg.SyncBatchSize)
	}
	if len(cfg.FeatureFlags) != 2 {
		t.Fatalf("unexpected flags: %v", cfg.FeatureFlags)
	}
}

func TestLoadRejectsGarbageDuration(t *testing.T) {
	t.Setenv("RECONCILE_INTERVAL", "soon")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for unparsable duration")
	}
}
