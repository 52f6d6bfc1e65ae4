package feed

import (
	"context"
	"errors"
	"sync"

	"github.com/reelfeed/reelfeed/internal/logger"
	"github.com/reelfeed/reelfeed/pkg/diskcache"
	"github.com/reelfeed/reelfeed/pkg/prefetch"
)

// State is the feed session's lifecycle state.
type State string

const (
	// StateEmpty is the initial state, before the first load.
	StateEmpty State = "empty"

	// StateLoading covers an in-progress initial load or reload.
	StateLoading State = "loading"

	// StateReady means items are loaded and the index may move.
	StateReady State = "ready"

	// StateEmptyError is the terminal "no content" state: the backend
	// answered successfully with zero items. Distinct from StateError.
	StateEmptyError State = "empty_error"

	// StateError holds a classified fetch failure. Recoverable by an
	// explicit reload.
	StateError State = "error"
)

// Navigation and lifecycle errors.
var (
	ErrNotReady      = errors.New("feed is not ready")
	ErrAtFeedStart   = errors.New("already at the first item")
	ErrAtFeedEnd     = errors.New("already at the last item")
	ErrLoadInFlight  = errors.New("a load is already in progress")
	ErrSessionClosed = errors.New("feed session is closed")
)

// ControllerConfig configures the feed controller.
type ControllerConfig struct {
	// LoadMoreThreshold triggers a background fetch when the index moves
	// within this many items of the loaded end. Default: 3.
	LoadMoreThreshold int
}

// Controller owns one feed session: the ordered list of loaded items,
// the current position, and the coordination of fetcher and prefetch
// cache as the position moves.
//
// Index-changing calls are serialized by the controller's mutex, so
// concurrent callers are safe; they observe moves in some total order.
type Controller struct {
	fetcher    *Fetcher
	prefetcher *prefetch.Cache
	threshold  int

	mu          sync.Mutex
	state       State
	items       []Item
	index       int
	lastErr     error
	loadingMore bool
	exhausted   bool
	closed      bool
	initial     *Item

	wg sync.WaitGroup
}

// NewController creates a session in StateEmpty. When events is
// non-nil the controller subscribes to cache-cleared notifications and
// reacts by dropping every prefetched handle, since their backing
// files are gone.
func NewController(cfg ControllerConfig, fetcher *Fetcher, prefetcher *prefetch.Cache, events *diskcache.EventBus) *Controller {
	if cfg.LoadMoreThreshold <= 0 {
		cfg.LoadMoreThreshold = 3
	}
	c := &Controller{
		fetcher:    fetcher,
		prefetcher: prefetcher,
		threshold:  cfg.LoadMoreThreshold,
		state:      StateEmpty,
	}
	if events != nil {
		events.Subscribe(func(evt diskcache.Event) {
			if evt.Type == diskcache.EventCacheCleared {
				logger.Info("cache cleared, invalidating prefetched handles",
					logger.KeyRegion, string(evt.Region))
				c.prefetcher.Reset()
			}
		})
	}
	return c
}

// SetInitialItem requests that the session start at the given item. If
// the item appears in the first batch the index starts there; otherwise
// the item is inserted at index 0. Must be called before Load.
func (c *Controller) SetInitialItem(item Item) {
	c.mu.Lock()
	c.initial = &item
	c.mu.Unlock()
}

// Load performs the initial load, or a full reload from StateError or
// StateEmptyError. The fetch runs synchronously; a fetch failure moves
// the session to StateError and is returned.
func (c *Controller) Load(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrSessionClosed
	}
	if c.state == StateLoading {
		c.mu.Unlock()
		return ErrLoadInFlight
	}
	c.state = StateLoading
	c.items = nil
	c.index = 0
	c.lastErr = nil
	c.exhausted = false
	c.fetcher.Reset()
	c.prefetcher.Reset()
	c.mu.Unlock()

	batch, err := c.fetcher.NextBatch(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrSessionClosed
	}
	if err != nil {
		c.state = StateError
		c.lastErr = err
		logger.ErrorCtx(ctx, "feed load failed", logger.KeyError, err)
		return err
	}
	if len(batch) == 0 {
		c.state = StateEmptyError
		logger.InfoCtx(ctx, "feed is empty")
		return nil
	}

	c.items = batch
	c.index = 0
	if c.initial != nil {
		found := false
		for i, item := range batch {
			if item.ID == c.initial.ID {
				c.index = i
				found = true
				break
			}
		}
		if !found {
			c.items = append([]Item{*c.initial}, c.items...)
		}
	}
	c.state = StateReady
	logger.InfoCtx(ctx, "feed loaded",
		logger.KeyCount, len(c.items), logger.KeyIndex, c.index)

	c.prefetcher.Prefetch(ctx, prefetchItems(c.items), c.index)
	return nil
}

// MoveNext advances the index by one and returns the new current item.
func (c *Controller) MoveNext(ctx context.Context) (Item, error) {
	return c.move(ctx, +1)
}

// MovePrevious steps the index back by one and returns the new current
// item.
func (c *Controller) MovePrevious(ctx context.Context) (Item, error) {
	return c.move(ctx, -1)
}

func (c *Controller) move(ctx context.Context, delta int) (Item, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return Item{}, ErrSessionClosed
	}
	if c.state != StateReady {
		return Item{}, ErrNotReady
	}

	dest := c.index + delta
	if dest < 0 {
		return c.items[c.index], ErrAtFeedStart
	}
	if dest >= len(c.items) {
		return c.items[c.index], ErrAtFeedEnd
	}

	fromID := c.items[c.index].ID
	c.index = dest
	current := c.items[c.index]

	pItems := prefetchItems(c.items)
	c.prefetcher.UpdateDirection(fromID, current.ID, pItems)
	c.prefetcher.CleanupAround(ctx, pItems, c.index)

	c.maybeLoadMoreLocked(ctx)

	logger.DebugCtx(ctx, "moved feed position",
		logger.KeyIndex, c.index, logger.KeyItemID, current.ID)
	return current, nil
}

// maybeLoadMoreLocked starts one background batch fetch when the index
// sits within the threshold of the loaded end and no fetch is already
// in flight. It never blocks the move. The caller holds c.mu.
func (c *Controller) maybeLoadMoreLocked(ctx context.Context) {
	if c.loadingMore || c.exhausted {
		return
	}
	if len(c.items)-c.index > c.threshold {
		return
	}

	c.loadingMore = true
	c.wg.Add(1)
	// The fetch outlives the triggering move call
	go c.loadMore(context.WithoutCancel(ctx))
}

func (c *Controller) loadMore(ctx context.Context) {
	defer c.wg.Done()

	batch, err := c.fetcher.NextBatch(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.loadingMore = false
	if c.closed {
		return
	}
	if err != nil {
		// A background failure never disturbs the session state; the
		// next move near the end will simply try again
		logger.WarnCtx(ctx, "background feed fetch failed", logger.KeyError, err)
		return
	}
	if len(batch) == 0 {
		c.exhausted = true
		logger.DebugCtx(ctx, "feed fully loaded", logger.KeyCount, len(c.items))
		return
	}

	c.items = append(c.items, batch...)
	logger.InfoCtx(ctx, "appended feed batch",
		logger.KeyCount, len(batch), logger.KeyIndex, c.index)
}

// Current returns the item at the current index.
func (c *Controller) Current() (Item, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateReady {
		return Item{}, ErrNotReady
	}
	return c.items[c.index], nil
}

// State returns the session state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns the failure that moved the session to StateError, if any.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Len returns the number of loaded items.
func (c *Controller) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Index returns the current position.
func (c *Controller) Index() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.index
}

// Close tears the session down: waits for any background fetch, then
// releases all prefetched handles. The controller is unusable after.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.wg.Wait()
	c.prefetcher.Reset()
	return nil
}

// prefetchItems projects feed items into the prefetch cache's view.
func prefetchItems(items []Item) []prefetch.Item {
	out := make([]prefetch.Item, len(items))
	for i, item := range items {
		out[i] = prefetch.Item{ID: item.ID, URL: item.VideoURL}
	}
	return out
}
