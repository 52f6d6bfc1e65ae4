// Package metrics exposes the application's Prometheus instrumentation.
// Each consumer package declares the narrow metrics interface it needs;
// this package provides the implementations and the scrape handler, all
// registered on one private registry so tests can run instances in
// parallel without collisions.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles every metric family the application records.
type Registry struct {
	reg *prometheus.Registry

	Cache    *CacheMetrics
	Fetcher  *FetcherMetrics
	Prefetch *PrefetchMetrics
}

// NewRegistry creates the registry and registers all collectors,
// including the standard Go runtime and process collectors.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Registry{
		reg:      reg,
		Cache:    newCacheMetrics(reg),
		Fetcher:  newFetcherMetrics(reg),
		Prefetch: newPrefetchMetrics(reg),
	}
}

// Handler returns the scrape endpoint handler.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// CacheMetrics implements the disk cache's metrics interface.
type CacheMetrics struct {
	hits         *prometheus.CounterVec
	misses       *prometheus.CounterVec
	bytesWritten *prometheus.CounterVec
	evictedFiles *prometheus.CounterVec
	evictedBytes *prometheus.CounterVec
	regionSize   *prometheus.GaugeVec
}

func newCacheMetrics(reg *prometheus.Registry) *CacheMetrics {
	m := &CacheMetrics{
		hits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reelfeed_cache_hits_total",
			Help: "Cache hits per region.",
		}, []string{"region"}),
		misses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reelfeed_cache_misses_total",
			Help: "Cache misses per region.",
		}, []string{"region"}),
		bytesWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reelfeed_cache_bytes_written_total",
			Help: "Bytes written into the cache per region.",
		}, []string{"region"}),
		evictedFiles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reelfeed_cache_evicted_files_total",
			Help: "Files evicted by reclaim passes per region.",
		}, []string{"region"}),
		evictedBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reelfeed_cache_evicted_bytes_total",
			Help: "Bytes freed by reclaim passes per region.",
		}, []string{"region"}),
		regionSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "reelfeed_cache_region_size_bytes",
			Help: "Last observed total size of a cache region.",
		}, []string{"region"}),
	}
	reg.MustRegister(m.hits, m.misses, m.bytesWritten, m.evictedFiles, m.evictedBytes, m.regionSize)
	return m
}

func (m *CacheMetrics) RecordHit(region string)  { m.hits.WithLabelValues(region).Inc() }
func (m *CacheMetrics) RecordMiss(region string) { m.misses.WithLabelValues(region).Inc() }

func (m *CacheMetrics) RecordBytesWritten(region string, n int64) {
	m.bytesWritten.WithLabelValues(region).Add(float64(n))
}

func (m *CacheMetrics) RecordEviction(region string, files int, bytes int64) {
	m.evictedFiles.WithLabelValues(region).Add(float64(files))
	m.evictedBytes.WithLabelValues(region).Add(float64(bytes))
}

func (m *CacheMetrics) RecordRegionSize(region string, bytes int64) {
	m.regionSize.WithLabelValues(region).Set(float64(bytes))
}

// FetcherMetrics implements the feed fetcher's metrics interface.
type FetcherMetrics struct {
	batches   prometheus.Counter
	batchSize prometheus.Histogram
	retries   prometheus.Counter
	failures  prometheus.Counter
}

func newFetcherMetrics(reg *prometheus.Registry) *FetcherMetrics {
	m := &FetcherMetrics{
		batches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reelfeed_fetch_batches_total",
			Help: "Successfully fetched feed batches.",
		}),
		batchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "reelfeed_fetch_batch_items",
			Help:    "Items per fetched batch.",
			Buckets: prometheus.LinearBuckets(0, 5, 11),
		}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reelfeed_fetch_retries_total",
			Help: "Batch fetch retry attempts.",
		}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reelfeed_fetch_failures_total",
			Help: "Batch fetches that failed permanently or exhausted retries.",
		}),
	}
	reg.MustRegister(m.batches, m.batchSize, m.retries, m.failures)
	return m
}

func (m *FetcherMetrics) RecordBatch(items int) {
	m.batches.Inc()
	m.batchSize.Observe(float64(items))
}

func (m *FetcherMetrics) RecordRetry()        { m.retries.Inc() }
func (m *FetcherMetrics) RecordFetchFailure() { m.failures.Inc() }

// PrefetchMetrics implements the prefetch cache's metrics interface.
type PrefetchMetrics struct {
	prepared prometheus.Counter
	failed   prometheus.Counter
	evicted  prometheus.Counter
	resident prometheus.Gauge
}

func newPrefetchMetrics(reg *prometheus.Registry) *PrefetchMetrics {
	m := &PrefetchMetrics{
		prepared: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reelfeed_prefetch_prepared_total",
			Help: "Media handles prepared successfully.",
		}),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reelfeed_prefetch_failures_total",
			Help: "Preparation attempts that failed.",
		}),
		evicted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reelfeed_prefetch_evicted_total",
			Help: "Handles evicted from the prefetch window.",
		}),
		resident: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "reelfeed_prefetch_resident",
			Help: "Handles currently resident in the prefetch cache.",
		}),
	}
	reg.MustRegister(m.prepared, m.failed, m.evicted, m.resident)
	return m
}

func (m *PrefetchMetrics) RecordPrepared()      { m.prepared.Inc() }
func (m *PrefetchMetrics) RecordPrepareFailed() { m.failed.Inc() }
func (m *PrefetchMetrics) RecordEvicted()       { m.evicted.Inc() }
func (m *PrefetchMetrics) RecordResident(n int) { m.resident.Set(float64(n)) }
