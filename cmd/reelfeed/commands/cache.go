package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/reelfeed/reelfeed/internal/bytesize"
	"github.com/reelfeed/reelfeed/internal/cli/output"
	"github.com/reelfeed/reelfeed/internal/cli/prompt"
	"github.com/reelfeed/reelfeed/pkg/config"
	"github.com/reelfeed/reelfeed/pkg/diskcache"
)

var cacheClearForce bool

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain the local media cache",
}

var cacheStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show region sizes and budgets",
	RunE:  runCacheStatus,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all cached videos and thumbnails",
	RunE:  runCacheClear,
}

func init() {
	cacheClearCmd.Flags().BoolVar(&cacheClearForce, "force", false, "skip the confirmation prompt")
	cacheCmd.AddCommand(cacheStatusCmd)
	cacheCmd.AddCommand(cacheClearCmd)
}

// openLocalCache builds a cache instance over the configured region
// directories. Maintenance commands never download, so no blob store is
// attached.
func openLocalCache() (*diskcache.Cache, *config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	cache, err := diskcache.New(diskcache.Config{
		VideoDir:        cfg.Cache.VideoDir,
		ThumbnailDir:    cfg.Cache.ThumbnailDir,
		VideoBudget:     cfg.Cache.VideoBudget.Int64(),
		ThumbnailBudget: cfg.Cache.ThumbnailBudget.Int64(),
		ReclaimFraction: cfg.Cache.ReclaimFraction,
	}, nil, nil)
	if err != nil {
		return nil, nil, err
	}
	return cache, cfg, nil
}

func runCacheStatus(cmd *cobra.Command, args []string) error {
	cache, cfg, err := openLocalCache()
	if err != nil {
		return err
	}
	defer cache.Close()

	ctx := context.Background()
	rows := make([][]string, 0, 2)
	for _, entry := range []struct {
		region diskcache.Region
		dir    string
	}{
		{diskcache.RegionVideo, cfg.Cache.VideoDir},
		{diskcache.RegionThumbnail, cfg.Cache.ThumbnailDir},
	} {
		size, err := cache.RegionSize(ctx, entry.region)
		if err != nil {
			return fmt.Errorf("failed to measure %s region: %w", entry.region, err)
		}
		budget := "unlimited"
		if b := cache.Budget(entry.region); b > 0 {
			budget = bytesize.ByteSize(b).String()
		}
		rows = append(rows, []string{
			string(entry.region),
			bytesize.ByteSize(size).String(),
			budget,
			entry.dir,
		})
	}

	output.PrintTable(os.Stdout, []string{"Region", "Size", "Budget", "Directory"}, rows)
	return nil
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	cache, _, err := openLocalCache()
	if err != nil {
		return err
	}
	defer cache.Close()

	confirmed, err := prompt.ConfirmWithForce("Delete all cached videos and thumbnails?", cacheClearForce)
	if err != nil {
		return err
	}
	if !confirmed {
		fmt.Println("Aborted.")
		return nil
	}

	ctx := context.Background()
	if err := cache.ClearVideos(ctx); err != nil {
		return fmt.Errorf("failed to clear video region: %w", err)
	}
	if err := cache.ClearThumbnails(ctx); err != nil {
		return fmt.Errorf("failed to clear thumbnail region: %w", err)
	}

	fmt.Println("Cache cleared.")
	return nil
}
