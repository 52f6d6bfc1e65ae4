package diskcache

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/reelfeed/reelfeed/internal/logger"
)

// cacheEntry is one evictable file in a region.
type cacheEntry struct {
	name    string
	size    int64
	modTime time.Time
}

// regionUsage lists a region's evictable entries and their total size.
// The sentinel and in-progress temp files are excluded.
func regionUsage(dir string) (int64, []cacheEntry, error) {
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return 0, nil, err
	}

	var total int64
	entries := make([]cacheEntry, 0, len(dirEntries))
	for _, de := range dirEntries {
		name := de.Name()
		if name == SentinelName || strings.HasPrefix(name, tmpPrefix) || de.IsDir() {
			continue
		}
		info, err := de.Info()
		if err != nil {
			// Entry vanished between listing and stat, skip it
			continue
		}
		total += info.Size()
		entries = append(entries, cacheEntry{
			name:    name,
			size:    info.Size(),
			modTime: info.ModTime(),
		})
	}
	return total, entries, nil
}

// reclaimIfNeeded trims the region back to budget × reclaim fraction when
// its total size exceeds the budget. Entries are deleted strictly oldest
// first by write time; last access is intentionally ignored. The caller
// must hold the region lock.
func (c *Cache) reclaimIfNeeded(r *region) {
	if r.budget <= 0 {
		return
	}

	total, entries, err := regionUsage(r.dir)
	if err != nil {
		logger.Warn("failed to measure cache region",
			logger.KeyRegion, string(r.name), logger.KeyError, err)
		return
	}
	if c.metrics != nil {
		c.metrics.RecordRegionSize(string(r.name), total)
	}
	if total <= r.budget {
		return
	}

	target := int64(float64(r.budget) * c.reclaim)

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].modTime.Before(entries[j].modTime)
	})

	var freed int64
	removed := 0
	for _, entry := range entries {
		if total <= target {
			break
		}
		if err := os.Remove(filepath.Join(r.dir, entry.name)); err != nil {
			logger.Warn("failed to evict cache entry",
				logger.KeyRegion, string(r.name),
				logger.KeyItemID, entry.name, logger.KeyError, err)
			continue
		}
		total -= entry.size
		freed += entry.size
		removed++
	}

	if c.metrics != nil {
		c.metrics.RecordEviction(string(r.name), removed, freed)
		c.metrics.RecordRegionSize(string(r.name), total)
	}
	logger.Info("cache region reclaimed",
		logger.KeyRegion, string(r.name),
		logger.KeyEvicted, removed,
		logger.KeyBytes, freed,
		logger.KeyBudget, r.budget)
}
