// Package config loads and validates the reelfeed configuration.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (REELFEED_*)
//  2. Configuration file (YAML)
//  3. Default values
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/reelfeed/reelfeed/internal/bytesize"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the full reelfeed configuration.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Cache configures the disk cache regions
	Cache CacheConfig `mapstructure:"cache" yaml:"cache"`

	// Prefetch configures the in-memory prefetch window
	Prefetch PrefetchConfig `mapstructure:"prefetch" yaml:"prefetch"`

	// Feed configures batch fetching and retry behavior
	Feed FeedConfig `mapstructure:"feed" yaml:"feed"`

	// Blob configures the remote blob store (S3-compatible)
	Blob BlobConfig `mapstructure:"blob" yaml:"blob"`

	// Store configures the local document store
	Store StoreConfig `mapstructure:"store" yaml:"store"`

	// Gateway configures the HTTP gateway served by `reelfeed start`
	Gateway GatewayConfig `mapstructure:"gateway" yaml:"gateway"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level (DEBUG, INFO, WARN, ERROR)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format is the log output format (text or json)
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output is where logs are written: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// CacheConfig configures the two disk cache regions.
type CacheConfig struct {
	// VideoDir is the directory holding cached video blobs
	VideoDir string `mapstructure:"video_dir" validate:"required" yaml:"video_dir"`

	// ThumbnailDir is the directory holding cached thumbnails
	ThumbnailDir string `mapstructure:"thumbnail_dir" validate:"required" yaml:"thumbnail_dir"`

	// VideoBudget is the maximum total size of the video region.
	// Accepts human-readable sizes ("500Mi", "2G").
	VideoBudget bytesize.ByteSize `mapstructure:"video_budget" yaml:"video_budget"`

	// ThumbnailBudget is the maximum total size of the thumbnail region
	ThumbnailBudget bytesize.ByteSize `mapstructure:"thumbnail_budget" yaml:"thumbnail_budget"`

	// ReclaimFraction is the fraction of the budget a region is trimmed
	// down to once eviction triggers. Default: 0.75.
	ReclaimFraction float64 `mapstructure:"reclaim_fraction" validate:"omitempty,gt=0,lte=1" yaml:"reclaim_fraction"`
}

// PrefetchConfig configures the in-memory prefetch cache.
type PrefetchConfig struct {
	// WindowRadius is the number of items kept ready on each side of the
	// current item. Default: 1.
	WindowRadius int `mapstructure:"window_radius" validate:"omitempty,gte=0" yaml:"window_radius"`

	// PrepareTimeout bounds a single media readiness probe. Default: 10s.
	PrepareTimeout time.Duration `mapstructure:"prepare_timeout" yaml:"prepare_timeout"`
}

// FeedConfig configures batch fetching.
type FeedConfig struct {
	// BatchSize is the number of records requested per page. Default: 10.
	BatchSize int `mapstructure:"batch_size" validate:"omitempty,gt=0" yaml:"batch_size"`

	// MaxRetries is the number of retries after a transient fetch failure.
	// Default: 3.
	MaxRetries int `mapstructure:"max_retries" validate:"omitempty,gte=0" yaml:"max_retries"`

	// BaseDelay is the first retry delay; subsequent retries double it.
	// Default: 1s.
	BaseDelay time.Duration `mapstructure:"base_delay" yaml:"base_delay"`

	// LoadMoreThreshold triggers a background fetch when the current index
	// is within this many items of the end of the loaded list. Default: 3.
	LoadMoreThreshold int `mapstructure:"load_more_threshold" validate:"omitempty,gt=0" yaml:"load_more_threshold"`
}

// BlobConfig configures the S3-compatible blob store.
type BlobConfig struct {
	// Endpoint is the S3 endpoint URL (empty for AWS)
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// Region is the S3 region
	Region string `mapstructure:"region" yaml:"region"`

	// Bucket is the bucket holding video and thumbnail blobs
	Bucket string `mapstructure:"bucket" validate:"required" yaml:"bucket"`

	// KeyPrefix is an optional prefix for all object keys
	KeyPrefix string `mapstructure:"key_prefix" yaml:"key_prefix"`

	// AccessKeyID and SecretAccessKey are static credentials; when empty
	// the default AWS credential chain is used
	AccessKeyID     string `mapstructure:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key" yaml:"secret_access_key,omitempty"`

	// UsePathStyle forces path-style addressing (needed for MinIO et al.)
	UsePathStyle bool `mapstructure:"use_path_style" yaml:"use_path_style"`

	// PresignTTL is the validity window of resolved media URLs. Default: 1h.
	PresignTTL time.Duration `mapstructure:"presign_ttl" yaml:"presign_ttl"`

	// MaxRetries is the retry budget for transient S3 errors. Default: 3.
	MaxRetries int `mapstructure:"max_retries" validate:"omitempty,gte=0" yaml:"max_retries"`

	// InitialBackoff is the first retry delay. Default: 100ms.
	InitialBackoff time.Duration `mapstructure:"initial_backoff" yaml:"initial_backoff"`

	// MaxBackoff caps the retry delay. Default: 2s.
	MaxBackoff time.Duration `mapstructure:"max_backoff" yaml:"max_backoff"`

	// BackoffMultiplier grows the delay between attempts. Default: 2.0.
	BackoffMultiplier float64 `mapstructure:"backoff_multiplier" validate:"omitempty,gte=1" yaml:"backoff_multiplier"`
}

// StoreConfig configures the local badger document store.
type StoreConfig struct {
	// Dir is the badger database directory
	Dir string `mapstructure:"dir" validate:"required_without=InMemory" yaml:"dir"`

	// InMemory runs the store without persistence (tests only)
	InMemory bool `mapstructure:"in_memory" yaml:"in_memory"`
}

// GatewayConfig configures the HTTP gateway.
type GatewayConfig struct {
	// ListenAddr is the address the gateway binds to. Default: 127.0.0.1:8470.
	ListenAddr string `mapstructure:"listen_addr" validate:"required" yaml:"listen_addr"`

	// MetricsEnabled exposes Prometheus metrics on /metrics.
	// Default: false (opt-in).
	MetricsEnabled bool `mapstructure:"metrics_enabled" yaml:"metrics_enabled"`

	// ShutdownTimeout bounds graceful shutdown. Default: 10s.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"omitempty,gt=0" yaml:"shutdown_timeout"`
}

// Load loads configuration from file, environment, and defaults.
// An empty configPath uses the default location
// ($XDG_CONFIG_HOME/reelfeed/config.yaml).
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	found, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}
	if !found {
		return GetDefaultConfig(), nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(decodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration against the struct's validate tags.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return err
	}
	if cfg.Cache.VideoDir == cfg.Cache.ThumbnailDir {
		return fmt.Errorf("cache.video_dir and cache.thumbnail_dir must differ")
	}
	return nil
}

// Save writes the configuration to path in YAML form. Files are written
// 0600 because the blob credentials may be present.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Watch re-reads the config file on change and invokes onChange with the
// freshly loaded configuration. Invalid updates are reported and skipped.
func Watch(configPath string, onChange func(*Config), onError func(error)) {
	v := viper.New()
	setupViper(v, configPath)
	if _, err := readConfigFile(v); err != nil {
		onError(err)
		return
	}

	v.OnConfigChange(func(_ fsnotify.Event) {
		cfg, err := Load(configPath)
		if err != nil {
			onError(err)
			return
		}
		onChange(cfg)
	})
	v.WatchConfig()
}

// DefaultConfigPath returns the default config file location.
func DefaultConfigPath() string {
	return filepath.Join(configDir(), "config.yaml")
}

func configDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "reelfeed")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "reelfeed")
}

func setupViper(v *viper.Viper, configPath string) {
	// REELFEED_LOGGING_LEVEL=DEBUG overrides logging.level, and so on.
	v.SetEnvPrefix("REELFEED")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(configDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

// decodeHooks combines custom decoders for ByteSize and time.Duration.
func decodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		mapstructure.StringToTimeDurationHookFunc(),
	)
}

// byteSizeDecodeHook converts strings and integers to bytesize.ByteSize so
// config files can use "500Mi" style budgets.
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return bytesize.Parse(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}
