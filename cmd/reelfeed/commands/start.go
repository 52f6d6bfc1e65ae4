package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/reelfeed/reelfeed/internal/gateway"
	"github.com/reelfeed/reelfeed/internal/logger"
	"github.com/reelfeed/reelfeed/pkg/blob/s3"
	"github.com/reelfeed/reelfeed/pkg/config"
	"github.com/reelfeed/reelfeed/pkg/diskcache"
	badgerstore "github.com/reelfeed/reelfeed/pkg/docstore/badger"
	"github.com/reelfeed/reelfeed/pkg/feed"
	"github.com/reelfeed/reelfeed/pkg/metrics"
	"github.com/reelfeed/reelfeed/pkg/prefetch"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the reelfeed gateway",
	Long: `Start the feed gateway with the specified configuration.

The gateway opens the local document store and the remote blob store,
builds the disk cache and the feed session, and serves the HTTP API
until interrupted.

Examples:
  reelfeed start
  reelfeed start --config /etc/reelfeed/config.yaml
  REELFEED_LOGGING_LEVEL=DEBUG reelfeed start`,
	RunE: runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Info("starting reelfeed", "version", Version)

	// Pick up logging changes without a restart
	config.Watch(cfgFile, func(updated *config.Config) {
		logger.SetLevel(updated.Logging.Level)
		logger.SetFormat(updated.Logging.Format)
		logger.Info("configuration reloaded", "level", updated.Logging.Level)
	}, func(err error) {
		logger.Warn("config reload failed", logger.KeyError, err)
	})

	store, err := badgerstore.Open(badgerstore.Options{
		Dir:      cfg.Store.Dir,
		InMemory: cfg.Store.InMemory,
	})
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	client, err := s3.NewClient(ctx,
		cfg.Blob.Endpoint, cfg.Blob.Region,
		cfg.Blob.AccessKeyID, cfg.Blob.SecretAccessKey,
		cfg.Blob.UsePathStyle)
	if err != nil {
		return fmt.Errorf("failed to create blob store client: %w", err)
	}
	blobs, err := s3.New(s3.Config{
		Client:            client,
		Bucket:            cfg.Blob.Bucket,
		KeyPrefix:         cfg.Blob.KeyPrefix,
		PresignTTL:        cfg.Blob.PresignTTL,
		MaxRetries:        cfg.Blob.MaxRetries,
		InitialBackoff:    cfg.Blob.InitialBackoff,
		MaxBackoff:        cfg.Blob.MaxBackoff,
		BackoffMultiplier: cfg.Blob.BackoffMultiplier,
	})
	if err != nil {
		return fmt.Errorf("failed to create blob store: %w", err)
	}

	reg := metrics.NewRegistry()

	cache, err := diskcache.New(diskcache.Config{
		VideoDir:        cfg.Cache.VideoDir,
		ThumbnailDir:    cfg.Cache.ThumbnailDir,
		VideoBudget:     cfg.Cache.VideoBudget.Int64(),
		ThumbnailBudget: cfg.Cache.ThumbnailBudget.Int64(),
		ReclaimFraction: cfg.Cache.ReclaimFraction,
	}, blobs, reg.Cache)
	if err != nil {
		return fmt.Errorf("failed to create disk cache: %w", err)
	}
	defer cache.Close()

	preparer := prefetch.NewHTTPPreparer(http.DefaultClient)
	prefetcher := prefetch.New(prefetch.Config{
		WindowRadius:   cfg.Prefetch.WindowRadius,
		PrepareTimeout: cfg.Prefetch.PrepareTimeout,
	}, preparer, reg.Prefetch)

	fetcher := feed.NewFetcher(feed.FetcherConfig{
		BatchSize:  cfg.Feed.BatchSize,
		MaxRetries: cfg.Feed.MaxRetries,
		BaseDelay:  cfg.Feed.BaseDelay,
	}, store, blobs, reg.Fetcher)

	controller := feed.NewController(feed.ControllerConfig{
		LoadMoreThreshold: cfg.Feed.LoadMoreThreshold,
	}, fetcher, prefetcher, cache.Events())
	defer controller.Close()

	var metricsHandler http.Handler
	if cfg.Gateway.MetricsEnabled {
		metricsHandler = reg.Handler()
	}
	router := gateway.NewRouter(gateway.NewHandler(controller, cache), metricsHandler)
	server := gateway.NewServer(cfg.Gateway.ListenAddr, router)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received signal, shutting down", "signal", sig.String())
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("gateway failed: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Gateway.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	logger.Info("reelfeed stopped")
	return nil
}
