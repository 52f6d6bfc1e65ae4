package config

import (
	"testing"
	"time"
)

func TestApplyDefaults_EmptyConfig(t *testing.T) {
	var cfg Config
	ApplyDefaults(&cfg)

	if cfg.Logging.Level != "INFO" {
		t.Errorf("logging level = %q, want INFO", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("logging format = %q, want text", cfg.Logging.Format)
	}
	if cfg.Cache.VideoBudget != DefaultVideoBudget {
		t.Errorf("video budget = %d, want %d", cfg.Cache.VideoBudget, DefaultVideoBudget)
	}
	if cfg.Cache.ReclaimFraction != DefaultReclaimFraction {
		t.Errorf("reclaim fraction = %v, want %v", cfg.Cache.ReclaimFraction, DefaultReclaimFraction)
	}
	if cfg.Prefetch.WindowRadius != DefaultWindowRadius {
		t.Errorf("window radius = %d, want %d", cfg.Prefetch.WindowRadius, DefaultWindowRadius)
	}
	if cfg.Feed.BaseDelay != time.Second {
		t.Errorf("base delay = %v, want 1s", cfg.Feed.BaseDelay)
	}
	if cfg.Feed.LoadMoreThreshold != DefaultLoadMoreThreshold {
		t.Errorf("load more threshold = %d, want %d", cfg.Feed.LoadMoreThreshold, DefaultLoadMoreThreshold)
	}
	if cfg.Blob.BackoffMultiplier != DefaultBackoffMultiplier {
		t.Errorf("backoff multiplier = %v, want %v", cfg.Blob.BackoffMultiplier, DefaultBackoffMultiplier)
	}
	if cfg.Gateway.ListenAddr != DefaultListenAddr {
		t.Errorf("listen addr = %q, want %q", cfg.Gateway.ListenAddr, DefaultListenAddr)
	}
	if cfg.Cache.VideoDir == "" || cfg.Cache.ThumbnailDir == "" || cfg.Store.Dir == "" {
		t.Error("expected directory defaults to be populated")
	}
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := Config{}
	cfg.Logging.Level = "warn"
	cfg.Feed.BatchSize = 50
	cfg.Cache.ReclaimFraction = 0.9

	ApplyDefaults(&cfg)

	if cfg.Logging.Level != "WARN" {
		t.Errorf("level = %q, want WARN (normalized)", cfg.Logging.Level)
	}
	if cfg.Feed.BatchSize != 50 {
		t.Errorf("batch size = %d, want 50", cfg.Feed.BatchSize)
	}
	if cfg.Cache.ReclaimFraction != 0.9 {
		t.Errorf("reclaim fraction = %v, want 0.9", cfg.Cache.ReclaimFraction)
	}
}

func TestApplyDefaults_InMemoryStoreSkipsDir(t *testing.T) {
	cfg := Config{}
	cfg.Store.InMemory = true

	ApplyDefaults(&cfg)

	if cfg.Store.Dir != "" {
		t.Errorf("expected no dir default for in-memory store, got %q", cfg.Store.Dir)
	}
}

func TestGetDefaultConfig_Valid(t *testing.T) {
	if err := Validate(GetDefaultConfig()); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}
