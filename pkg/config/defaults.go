package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/reelfeed/reelfeed/internal/bytesize"
)

// Defaults applied by ApplyDefaults when the corresponding field is unset.
const (
	DefaultVideoBudget     = 500 * bytesize.MiB
	DefaultThumbnailBudget = 50 * bytesize.MiB
	DefaultReclaimFraction = 0.75

	DefaultWindowRadius   = 1
	DefaultPrepareTimeout = 10 * time.Second

	DefaultBatchSize         = 10
	DefaultMaxRetries        = 3
	DefaultBaseDelay         = time.Second
	DefaultLoadMoreThreshold = 3

	DefaultPresignTTL        = time.Hour
	DefaultBlobMaxRetries    = 3
	DefaultInitialBackoff    = 100 * time.Millisecond
	DefaultMaxBackoff        = 2 * time.Second
	DefaultBackoffMultiplier = 2.0

	DefaultListenAddr      = "127.0.0.1:8470"
	DefaultShutdownTimeout = 10 * time.Second
)

// GetDefaultConfig returns a fully defaulted configuration.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills in any unset fields with defaults. Explicitly set
// values are preserved; zero values are replaced.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyCacheDefaults(&cfg.Cache)
	applyPrefetchDefaults(&cfg.Prefetch)
	applyFeedDefaults(&cfg.Feed)
	applyBlobDefaults(&cfg.Blob)
	applyStoreDefaults(&cfg.Store)
	applyGatewayDefaults(&cfg.Gateway)
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stderr"
	}
}

func applyCacheDefaults(cfg *CacheConfig) {
	if cfg.VideoDir == "" {
		cfg.VideoDir = filepath.Join(dataDir(), "cache", "videos")
	}
	if cfg.ThumbnailDir == "" {
		cfg.ThumbnailDir = filepath.Join(dataDir(), "cache", "thumbnails")
	}
	if cfg.VideoBudget == 0 {
		cfg.VideoBudget = DefaultVideoBudget
	}
	if cfg.ThumbnailBudget == 0 {
		cfg.ThumbnailBudget = DefaultThumbnailBudget
	}
	if cfg.ReclaimFraction == 0 {
		cfg.ReclaimFraction = DefaultReclaimFraction
	}
}

func applyPrefetchDefaults(cfg *PrefetchConfig) {
	if cfg.WindowRadius == 0 {
		cfg.WindowRadius = DefaultWindowRadius
	}
	if cfg.PrepareTimeout == 0 {
		cfg.PrepareTimeout = DefaultPrepareTimeout
	}
}

func applyFeedDefaults(cfg *FeedConfig) {
	if cfg.BatchSize == 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.BaseDelay == 0 {
		cfg.BaseDelay = DefaultBaseDelay
	}
	if cfg.LoadMoreThreshold == 0 {
		cfg.LoadMoreThreshold = DefaultLoadMoreThreshold
	}
}

func applyBlobDefaults(cfg *BlobConfig) {
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.Bucket == "" {
		cfg.Bucket = "reelfeed-media"
	}
	if cfg.PresignTTL == 0 {
		cfg.PresignTTL = DefaultPresignTTL
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = DefaultBlobMaxRetries
	}
	if cfg.InitialBackoff == 0 {
		cfg.InitialBackoff = DefaultInitialBackoff
	}
	if cfg.MaxBackoff == 0 {
		cfg.MaxBackoff = DefaultMaxBackoff
	}
	if cfg.BackoffMultiplier == 0 {
		cfg.BackoffMultiplier = DefaultBackoffMultiplier
	}
}

func applyStoreDefaults(cfg *StoreConfig) {
	if cfg.Dir == "" && !cfg.InMemory {
		cfg.Dir = filepath.Join(dataDir(), "store")
	}
}

func applyGatewayDefaults(cfg *GatewayConfig) {
	// MetricsEnabled defaults to false (opt-in), zero value is fine
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = DefaultListenAddr
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
}

func dataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "reelfeed")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".local", "share", "reelfeed")
}
