// Package prefetch keeps a small, bounded set of ready-to-play media
// handles resident in memory so that moving to an adjacent feed item
// never blocks on network or disk I/O.
//
// The cache maintains a sliding window of radius r around the currently
// viewed item. Eviction is direction-aware: scrolling steadily in one
// direction evicts exactly one trailing entry per step instead of
// re-scanning the whole window. Under steady-state scrolling the
// resident set never exceeds 2r+1 entries; it may transiently exceed
// that by one between a completed preparation and the next cleanup,
// since eviction is reactive rather than preventive.
//
// Prefetching is strictly best-effort. A failed preparation is absorbed
// and logged at debug level; the affected item simply loads lazily.
package prefetch

import (
	"context"
	"sync"
	"time"

	"github.com/reelfeed/reelfeed/internal/logger"
)

// Direction is the observed scroll direction.
type Direction int

const (
	DirectionNone Direction = iota
	DirectionForward
	DirectionBackward
)

func (d Direction) String() string {
	switch d {
	case DirectionForward:
		return "forward"
	case DirectionBackward:
		return "backward"
	default:
		return "none"
	}
}

// Item is the minimal view of a feed item the cache needs.
type Item struct {
	// ID is the item's opaque identifier.
	ID string

	// URL is the playable media location.
	URL string
}

// Handle is a prepared, ready-to-play media resource.
type Handle interface {
	// URL returns the playable location the handle was prepared from.
	URL() string

	// Release frees the resources held by the handle.
	Release()
}

// Preparer constructs a ready media handle from a playable URL. Prepare
// must verify readiness before returning: a returned handle is
// immediately playable.
type Preparer interface {
	Prepare(ctx context.Context, url string) (Handle, error)
}

// Metrics receives prefetch observations. Nil is valid.
type Metrics interface {
	RecordPrepared()
	RecordPrepareFailed()
	RecordEvicted()
	RecordResident(n int)
}

// Cache is the in-memory prefetch window.
//
// It is safe for concurrent use, but it is designed to be driven from a
// single coordinating goroutine (the feed controller); preparation work
// runs on background goroutines it spawns itself.
type Cache struct {
	preparer Preparer
	radius   int
	timeout  time.Duration
	metrics  Metrics

	mu        sync.Mutex
	handles   map[string]Handle
	inflight  map[string]struct{}
	window    map[string]struct{}
	direction Direction

	wg sync.WaitGroup
}

// Config configures the prefetch cache.
type Config struct {
	// WindowRadius is the number of items kept prepared on each side of
	// the current item. Default: 1.
	WindowRadius int

	// PrepareTimeout bounds a single preparation attempt. Default: 10s.
	PrepareTimeout time.Duration
}

// New creates an empty prefetch cache.
func New(cfg Config, preparer Preparer, m Metrics) *Cache {
	if cfg.WindowRadius <= 0 {
		cfg.WindowRadius = 1
	}
	if cfg.PrepareTimeout <= 0 {
		cfg.PrepareTimeout = 10 * time.Second
	}
	return &Cache{
		preparer: preparer,
		radius:   cfg.WindowRadius,
		timeout:  cfg.PrepareTimeout,
		metrics:  m,
		handles:  make(map[string]Handle),
		inflight: make(map[string]struct{}),
		window:   make(map[string]struct{}),
	}
}

// windowIDs returns the ids within currentIndex ± radius, including the
// current id itself.
func (c *Cache) windowIDs(items []Item, currentIndex int) map[string]struct{} {
	ids := make(map[string]struct{}, 2*c.radius+1)
	for i := currentIndex - c.radius; i <= currentIndex+c.radius; i++ {
		if i >= 0 && i < len(items) {
			ids[items[i].ID] = struct{}{}
		}
	}
	return ids
}

// Prefetch begins asynchronous preparation for every item within
// currentIndex ± radius that is neither resident nor already being
// prepared. The current item itself is skipped: it is assumed loaded
// for playback already. Prefetch returns immediately.
func (c *Cache) Prefetch(ctx context.Context, items []Item, currentIndex int) {
	if currentIndex < 0 || currentIndex >= len(items) {
		return
	}
	currentID := items[currentIndex].ID

	c.mu.Lock()
	c.window = c.windowIDs(items, currentIndex)

	var candidates []Item
	for i := currentIndex - c.radius; i <= currentIndex+c.radius; i++ {
		if i < 0 || i >= len(items) || items[i].ID == currentID {
			continue
		}
		item := items[i]
		if _, ok := c.handles[item.ID]; ok {
			continue
		}
		if _, ok := c.inflight[item.ID]; ok {
			continue
		}
		c.inflight[item.ID] = struct{}{}
		candidates = append(candidates, item)
	}
	c.mu.Unlock()

	for _, item := range candidates {
		c.wg.Add(1)
		go c.prepare(item)
	}
}

// prepare runs one preparation attempt and inserts the handle if the id
// is still inside the window when it completes. Preparation outlives
// the call that triggered it, so it runs under its own deadline rather
// than the caller's context.
func (c *Cache) prepare(item Item) {
	defer c.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	handle, err := c.preparer.Prepare(ctx, item.URL)

	c.mu.Lock()
	delete(c.inflight, item.ID)
	if err != nil {
		c.mu.Unlock()
		if c.metrics != nil {
			c.metrics.RecordPrepareFailed()
		}
		logger.Debug("prefetch preparation failed",
			logger.KeyItemID, item.ID, logger.KeyError, err)
		return
	}

	// The window may have moved while preparing; a handle for an id
	// that left the window is discarded instead of inserted.
	if _, wanted := c.window[item.ID]; !wanted {
		c.mu.Unlock()
		handle.Release()
		logger.Debug("prefetched item left window, discarding",
			logger.KeyItemID, item.ID)
		return
	}
	if old, ok := c.handles[item.ID]; ok {
		old.Release()
	}
	c.handles[item.ID] = handle
	resident := len(c.handles)
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.RecordPrepared()
		c.metrics.RecordResident(resident)
	}
	logger.Debug("prefetched item ready", logger.KeyItemID, item.ID)
}

// UpdateDirection recomputes the scroll direction from the positions of
// the last two viewed items in the ordered list. Unknown ids leave the
// direction at None.
func (c *Cache) UpdateDirection(fromID, toID string, items []Item) {
	fromIdx, toIdx := -1, -1
	for i, item := range items {
		if item.ID == fromID {
			fromIdx = i
		}
		if item.ID == toID {
			toIdx = i
		}
	}

	direction := DirectionNone
	switch {
	case fromIdx < 0 || toIdx < 0 || fromIdx == toIdx:
	case toIdx > fromIdx:
		direction = DirectionForward
	default:
		direction = DirectionBackward
	}

	c.mu.Lock()
	c.direction = direction
	c.mu.Unlock()
}

// CleanupAround evicts the single entry that the last move pushed
// furthest behind the viewing position, then prefetches the newly
// entered leading edge. Moving forward the trailing index is
// currentIndex - radius - 1; moving backward it is
// currentIndex + radius + 1. With no known direction nothing is
// evicted.
func (c *Cache) CleanupAround(ctx context.Context, items []Item, currentIndex int) {
	c.mu.Lock()
	trailing := -1
	switch c.direction {
	case DirectionForward:
		trailing = currentIndex - c.radius - 1
	case DirectionBackward:
		trailing = currentIndex + c.radius + 1
	}
	if trailing >= 0 && trailing < len(items) {
		id := items[trailing].ID
		if handle, ok := c.handles[id]; ok {
			delete(c.handles, id)
			handle.Release()
			if c.metrics != nil {
				c.metrics.RecordEvicted()
			}
			logger.Debug("evicted trailing prefetch entry",
				logger.KeyItemID, id, logger.KeyIndex, trailing)
		}
	}
	c.mu.Unlock()

	c.Prefetch(ctx, items, currentIndex)
}

// Resident reports whether a ready handle for id is cached, and returns
// it if so.
func (c *Cache) Resident(id string) (Handle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.handles[id]
	return h, ok
}

// Len returns the number of resident handles.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handles)
}

// Reset releases every resident handle and forgets all in-flight
// markers. Called on feed teardown and when the disk cache is cleared.
func (c *Cache) Reset() {
	c.mu.Lock()
	for id, handle := range c.handles {
		handle.Release()
		delete(c.handles, id)
	}
	c.inflight = make(map[string]struct{})
	c.window = make(map[string]struct{})
	c.direction = DirectionNone
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.RecordResident(0)
	}
	logger.Debug("prefetch cache reset")
}
