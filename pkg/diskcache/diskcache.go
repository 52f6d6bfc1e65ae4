// Package diskcache implements durable, size-bounded storage of downloaded
// video and thumbnail blobs.
//
// The cache manages two independent regions (video, thumbnail), each with
// its own directory, byte budget and reclaim target. All mutating
// operations on a region are serialized by the region's lock: correctness
// of the check-exists-then-write-or-evict sequence depends on no
// concurrent mutation of the same directory. Across regions no ordering
// is guaranteed or required.
//
// Writes may transiently exceed the budget; the overshoot triggers an
// oldest-first reclaim pass that trims the region back to
// budget × reclaim fraction. Last access is deliberately not tracked:
// the dominant cost of this cache is video file size, not access
// frequency, so creation-time eviction avoids the bookkeeping of LRU.
package diskcache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // thumbnail sources may arrive PNG-encoded
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/reelfeed/reelfeed/internal/logger"
	"github.com/reelfeed/reelfeed/pkg/blob"
)

// Region names one of the two cache regions.
type Region string

const (
	RegionVideo     Region = "video"
	RegionThumbnail Region = "thumbnail"
)

// SentinelName is the zero-byte marker kept in the thumbnail region to
// suppress media-gallery indexing of cached thumbnails. It survives
// clears and is never counted against the budget.
const SentinelName = ".nomedia"

// tmpPrefix marks in-progress downloads; such files are excluded from
// size accounting and eviction, and cleaned up on startup.
const tmpPrefix = "tmp-"

// Sentinel errors surfaced by explicit, caller-initiated operations.
var (
	ErrDownloadFailed = errors.New("video download failed")
	ErrWriteFailed    = errors.New("cache write failed")
	ErrEncodingFailed = errors.New("thumbnail encoding failed")
	ErrNotCached      = errors.New("not cached")
	ErrCacheClosed    = errors.New("cache is closed")
	ErrInvalidID      = errors.New("invalid cache id")
)

// Metrics receives cache observations. A nil Metrics is valid and incurs
// no overhead.
type Metrics interface {
	RecordHit(region string)
	RecordMiss(region string)
	RecordBytesWritten(region string, n int64)
	RecordEviction(region string, files int, bytes int64)
	RecordRegionSize(region string, bytes int64)
}

// Config configures the disk cache.
type Config struct {
	// VideoDir and ThumbnailDir are the region root directories. They
	// must differ and are created if missing.
	VideoDir     string
	ThumbnailDir string

	// VideoBudget and ThumbnailBudget are the per-region byte budgets.
	// Zero disables eviction for that region.
	VideoBudget     int64
	ThumbnailBudget int64

	// ReclaimFraction is the fraction of the budget a region is trimmed
	// to once the budget is exceeded. Default: 0.75.
	ReclaimFraction float64

	// JPEGQuality is the re-encoding quality for cached thumbnails.
	// Default: 85.
	JPEGQuality int
}

// region holds the mutable state of one cache region.
type region struct {
	name   Region
	dir    string
	budget int64
	mu     sync.Mutex
}

// Cache is a disk-backed, size-bounded blob cache with two regions.
//
// One Cache is constructed per application session and passed explicitly
// to its consumers; there is no process-wide shared instance.
type Cache struct {
	videos      region
	thumbnails  region
	reclaim     float64
	jpegQuality int

	blobs   blob.Store
	metrics Metrics
	events  *EventBus

	closeMu sync.RWMutex
	closed  bool
}

// New creates the cache, its region directories and the thumbnail
// sentinel, and removes any temp files left over from a previous run.
func New(cfg Config, blobs blob.Store, m Metrics) (*Cache, error) {
	if cfg.VideoDir == "" || cfg.ThumbnailDir == "" {
		return nil, fmt.Errorf("both region directories are required")
	}
	if cfg.VideoDir == cfg.ThumbnailDir {
		return nil, fmt.Errorf("region directories must differ")
	}
	if cfg.ReclaimFraction == 0 {
		cfg.ReclaimFraction = 0.75
	}
	if cfg.ReclaimFraction < 0 || cfg.ReclaimFraction > 1 {
		return nil, fmt.Errorf("reclaim fraction %v out of range (0,1]", cfg.ReclaimFraction)
	}
	if cfg.JPEGQuality == 0 {
		cfg.JPEGQuality = 85
	}

	for _, dir := range []string{cfg.VideoDir, cfg.ThumbnailDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create cache directory %s: %w", dir, err)
		}
		removeStaleTempFiles(dir)
	}

	sentinel := filepath.Join(cfg.ThumbnailDir, SentinelName)
	if _, err := os.Stat(sentinel); os.IsNotExist(err) {
		if err := os.WriteFile(sentinel, nil, 0644); err != nil {
			return nil, fmt.Errorf("failed to create sentinel file: %w", err)
		}
	}

	return &Cache{
		videos:      region{name: RegionVideo, dir: cfg.VideoDir, budget: cfg.VideoBudget},
		thumbnails:  region{name: RegionThumbnail, dir: cfg.ThumbnailDir, budget: cfg.ThumbnailBudget},
		reclaim:     cfg.ReclaimFraction,
		jpegQuality: cfg.JPEGQuality,
		blobs:       blobs,
		metrics:     m,
		events:      NewEventBus(),
	}, nil
}

// Events returns the cache's event bus. The bus is owned by this cache
// instance and torn down with it.
func (c *Cache) Events() *EventBus {
	return c.events
}

// regionFor maps a Region name to its state.
func (c *Cache) regionFor(r Region) *region {
	if r == RegionThumbnail {
		return &c.thumbnails
	}
	return &c.videos
}

// checkOpen returns ErrCacheClosed after Close.
func (c *Cache) checkOpen() error {
	c.closeMu.RLock()
	defer c.closeMu.RUnlock()
	if c.closed {
		return ErrCacheClosed
	}
	return nil
}

// validateID rejects identifiers that would escape the region directory.
func validateID(id string) error {
	if id == "" || id == SentinelName ||
		strings.ContainsAny(id, "/\\") || id == "." || id == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

// CacheVideo returns the local path of the video identified by id,
// downloading it from the blob store on first access.
//
// The check-download-rename-reclaim sequence runs under the video
// region's lock, so concurrent callers for the same id perform exactly
// one download. The downloaded data lands in a temp file first and is
// moved into place atomically, replacing any stale file at the
// destination.
func (c *Cache) CacheVideo(ctx context.Context, sourceRef, id string) (string, error) {
	if err := c.checkOpen(); err != nil {
		return "", err
	}
	if err := validateID(id); err != nil {
		return "", err
	}

	r := &c.videos
	r.mu.Lock()
	defer r.mu.Unlock()

	dst := filepath.Join(r.dir, id)
	if _, err := os.Stat(dst); err == nil {
		if c.metrics != nil {
			c.metrics.RecordHit(string(r.name))
		}
		logger.DebugCtx(ctx, "video cache hit", logger.KeyItemID, id)
		return dst, nil
	}
	if c.metrics != nil {
		c.metrics.RecordMiss(string(r.name))
	}

	tmp := filepath.Join(r.dir, tmpPrefix+uuid.New().String())
	if err := c.blobs.DownloadTo(ctx, sourceRef, tmp); err != nil {
		return "", fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}

	// Remove a stale file left at the destination before moving the
	// fresh download into place.
	_ = os.Remove(dst)
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}

	size := int64(0)
	if info, err := os.Stat(dst); err == nil {
		size = info.Size()
	}
	if c.metrics != nil {
		c.metrics.RecordBytesWritten(string(r.name), size)
	}
	logger.InfoCtx(ctx, "video cached",
		logger.KeyItemID, id, logger.KeyBytes, size, logger.KeyPath, dst)

	c.reclaimIfNeeded(r)
	return dst, nil
}

// CacheThumbnail writes the thumbnail for id, re-encoded as JPEG, and
// returns its local path. Thumbnails are immutable once written: if a
// file for id already exists it is returned untouched.
func (c *Cache) CacheThumbnail(ctx context.Context, imageData []byte, id string) (string, error) {
	if err := c.checkOpen(); err != nil {
		return "", err
	}
	if err := validateID(id); err != nil {
		return "", err
	}

	r := &c.thumbnails
	r.mu.Lock()
	defer r.mu.Unlock()

	dst := filepath.Join(r.dir, id)
	if _, err := os.Stat(dst); err == nil {
		if c.metrics != nil {
			c.metrics.RecordHit(string(r.name))
		}
		return dst, nil
	}
	if c.metrics != nil {
		c.metrics.RecordMiss(string(r.name))
	}

	img, _, err := image.Decode(bytes.NewReader(imageData))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncodingFailed, err)
	}
	var encoded bytes.Buffer
	if err := jpeg.Encode(&encoded, img, &jpeg.Options{Quality: c.jpegQuality}); err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncodingFailed, err)
	}

	if err := os.WriteFile(dst, encoded.Bytes(), 0644); err != nil {
		return "", fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	if c.metrics != nil {
		c.metrics.RecordBytesWritten(string(r.name), int64(encoded.Len()))
	}
	logger.DebugCtx(ctx, "thumbnail cached",
		logger.KeyItemID, id, logger.KeyBytes, encoded.Len())

	c.reclaimIfNeeded(r)
	return dst, nil
}

// CachedThumbnail returns the cached thumbnail bytes for id, or
// ErrNotCached if none exists. A file that fails to decode is treated as
// absent: the failure is logged, never surfaced.
func (c *Cache) CachedThumbnail(ctx context.Context, id string) ([]byte, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	if err := validateID(id); err != nil {
		return nil, err
	}

	r := &c.thumbnails
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := os.ReadFile(filepath.Join(r.dir, id))
	if err != nil {
		return nil, ErrNotCached
	}
	if _, _, err := image.Decode(bytes.NewReader(data)); err != nil {
		logger.WarnCtx(ctx, "cached thumbnail failed to decode, treating as absent",
			logger.KeyItemID, id, logger.KeyError, err)
		return nil, ErrNotCached
	}
	return data, nil
}

// RemoveVideo deletes the cached video for id. Absence is not an error.
func (c *Cache) RemoveVideo(ctx context.Context, id string) error {
	return c.removeEntry(ctx, &c.videos, id)
}

// RemoveThumbnail deletes the cached thumbnail for id. Absence is not an
// error.
func (c *Cache) RemoveThumbnail(ctx context.Context, id string) error {
	return c.removeEntry(ctx, &c.thumbnails, id)
}

func (c *Cache) removeEntry(ctx context.Context, r *region, id string) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	if err := validateID(id); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.Remove(filepath.Join(r.dir, id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	logger.DebugCtx(ctx, "cache entry removed",
		logger.KeyRegion, string(r.name), logger.KeyItemID, id)
	return nil
}

// ClearVideos deletes every file in the video region, then emits a
// cache-cleared event.
func (c *Cache) ClearVideos(ctx context.Context) error {
	return c.clearRegion(ctx, &c.videos)
}

// ClearThumbnails deletes every file in the thumbnail region except the
// sentinel, then emits a cache-cleared event.
func (c *Cache) ClearThumbnails(ctx context.Context) error {
	return c.clearRegion(ctx, &c.thumbnails)
}

func (c *Cache) clearRegion(ctx context.Context, r *region) error {
	if err := c.checkOpen(); err != nil {
		return err
	}

	r.mu.Lock()
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		r.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}

	removed := 0
	var firstErr error
	for _, entry := range entries {
		if entry.Name() == SentinelName {
			continue
		}
		if err := os.Remove(filepath.Join(r.dir, entry.Name())); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		removed++
	}
	r.mu.Unlock()

	if firstErr != nil {
		return fmt.Errorf("%w: %v", ErrWriteFailed, firstErr)
	}

	if c.metrics != nil {
		c.metrics.RecordRegionSize(string(r.name), 0)
	}
	logger.InfoCtx(ctx, "cache region cleared",
		logger.KeyRegion, string(r.name), logger.KeyCount, removed)

	// Emitted after completion so subscribers observe an empty region
	c.events.Publish(Event{Type: EventCacheCleared, Region: r.name})
	return nil
}

// RegionSize sums the file sizes of a region by directory listing. The
// result is advisory: it is serialized against writers but may be stale
// the moment it is returned.
func (c *Cache) RegionSize(ctx context.Context, reg Region) (int64, error) {
	if err := c.checkOpen(); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	r := c.regionFor(reg)
	r.mu.Lock()
	defer r.mu.Unlock()

	total, _, err := regionUsage(r.dir)
	if err != nil {
		return 0, err
	}
	if c.metrics != nil {
		c.metrics.RecordRegionSize(string(r.name), total)
	}
	return total, nil
}

// Budget returns the configured byte budget of a region.
func (c *Cache) Budget(reg Region) int64 {
	return c.regionFor(reg).budget
}

// Close marks the cache closed. Subsequent operations fail with
// ErrCacheClosed. Cached files stay on disk; the disk cache persists
// across process restarts.
func (c *Cache) Close() error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	c.closed = true
	return nil
}

// removeStaleTempFiles deletes leftover in-progress downloads.
func removeStaleTempFiles(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), tmpPrefix) {
			_ = os.Remove(filepath.Join(dir, entry.Name()))
		}
	}
}
