package feed

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/reelfeed/reelfeed/internal/logger"
	"github.com/reelfeed/reelfeed/pkg/blob"
	"github.com/reelfeed/reelfeed/pkg/docstore"
)

// FetcherMetrics receives fetch observations. Nil is valid.
type FetcherMetrics interface {
	RecordBatch(items int)
	RecordRetry()
	RecordFetchFailure()
}

// FetcherConfig configures the paginated fetcher.
type FetcherConfig struct {
	// BatchSize is the number of records requested per page. Default: 10.
	BatchSize int

	// MaxRetries is the number of additional attempts after a transient
	// failure. Default: 3.
	MaxRetries int

	// BaseDelay is the first retry delay; subsequent retries double it.
	// Default: 1s.
	BaseDelay time.Duration
}

func (cfg *FetcherConfig) applyDefaults() {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	} else if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
}

// Fetcher retrieves ordered batches of feed items from the document
// store, resolving each item's media references against the blob store.
//
// Pagination runs ascending over the store's ordering key; the cursor
// always holds the last ordering key the store returned. The batch
// handed to callers is re-sorted by descending creation time for
// presentation. The two orders are independent: the cursor must never
// be derived from the presentation order.
type Fetcher struct {
	store   docstore.Store
	blobs   blob.Store
	cfg     FetcherConfig
	metrics FetcherMetrics

	mu     sync.Mutex
	cursor docstore.Cursor
}

// NewFetcher creates a fetcher starting from the beginning of the feed.
func NewFetcher(cfg FetcherConfig, store docstore.Store, blobs blob.Store, m FetcherMetrics) *Fetcher {
	cfg.applyDefaults()
	return &Fetcher{
		store:   store,
		blobs:   blobs,
		cfg:     cfg,
		metrics: m,
	}
}

// Reset rewinds pagination to the beginning of the feed.
func (f *Fetcher) Reset() {
	f.mu.Lock()
	f.cursor = ""
	f.mu.Unlock()
}

// NextBatch fetches and resolves the next page. An empty result means
// the feed is exhausted. Transient failures are retried up to
// MaxRetries times with exponentially growing delay; permanent failures
// and exhausted retries propagate to the caller.
func (f *Fetcher) NextBatch(ctx context.Context) ([]Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var lastErr error
	for attempt := 0; attempt <= f.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := f.cfg.BaseDelay << (attempt - 1)
			logger.DebugCtx(ctx, "retrying batch fetch",
				logger.KeyAttempt, attempt, logger.KeyBackoff, delay)
			if f.metrics != nil {
				f.metrics.RecordRetry()
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		batch, err := f.fetchOnce(ctx)
		if err == nil {
			if f.metrics != nil {
				f.metrics.RecordBatch(len(batch))
			}
			return batch, nil
		}
		lastErr = err
		if !isRetryableError(err) {
			break
		}
		logger.WarnCtx(ctx, "batch fetch failed, will retry",
			logger.KeyAttempt, attempt, logger.KeyError, err)
	}

	if f.metrics != nil {
		f.metrics.RecordFetchFailure()
	}
	return nil, fmt.Errorf("failed to fetch feed batch: %w", lastErr)
}

// fetchOnce performs a single query-resolve pass and advances the
// cursor on success. The caller holds f.mu.
func (f *Fetcher) fetchOnce(ctx context.Context) ([]Item, error) {
	records, err := f.store.Query(ctx, docstore.Query{
		StartAfter: f.cursor,
		Limit:      f.cfg.BatchSize,
	})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		logger.DebugCtx(ctx, "feed exhausted", logger.KeyCursor, string(f.cursor))
		return nil, nil
	}

	items := make([]Item, 0, len(records))
	var lastKey string
	for _, rec := range records {
		item, err := resolveRecord(rec)
		if err != nil {
			return nil, err
		}
		lastKey = item.OrderKey

		// Soft-deleted records stay in the store but never reach the feed
		if item.Deleted {
			continue
		}

		item.VideoURL, err = f.blobs.ResolveURL(ctx, item.VideoRef)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve video for item %s: %w", item.ID, err)
		}

		if item.ThumbnailRef != "" {
			url, err := f.blobs.ResolveURL(ctx, item.ThumbnailRef)
			if err != nil {
				// Best-effort: the item ships without a thumbnail
				logger.DebugCtx(ctx, "thumbnail resolution failed",
					logger.KeyItemID, item.ID, logger.KeyError, err)
			} else {
				item.ThumbnailURL = url
			}
		}

		items = append(items, item)
	}

	// Cursor advances past every record seen, including skipped ones
	f.cursor = docstore.Cursor(lastKey)

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})

	logger.DebugCtx(ctx, "fetched feed batch",
		logger.KeyCount, len(items), logger.KeyCursor, lastKey)
	return items, nil
}
