// Package gateway exposes the feed session over a local HTTP API: feed
// navigation, cache inspection and maintenance, health and metrics.
package gateway

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/reelfeed/reelfeed/internal/logger"
)

// NewRouter creates and configures the chi router with all middleware
// and routes.
//
// Routes:
//   - GET  /healthz                      - liveness probe
//   - GET  /metrics                      - Prometheus scrape (when enabled)
//   - POST /api/v1/feed/load             - (re)load the feed
//   - POST /api/v1/feed/next             - advance one item
//   - POST /api/v1/feed/previous        - step back one item
//   - GET  /api/v1/feed/current          - current item and position
//   - GET  /api/v1/feed/state            - session state
//   - GET  /api/v1/cache/status          - region sizes and budgets
//   - POST /api/v1/cache/clear           - clear both regions
//   - POST /api/v1/items/{id}/video      - download-and-cache an item's video
//   - GET  /api/v1/items/{id}/thumbnail  - serve a cached thumbnail
func NewRouter(h *Handler, metricsHandler http.Handler) http.Handler {
	r := chi.NewRouter()

	// Middleware stack - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", h.Healthz)
	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/feed", func(r chi.Router) {
			r.Post("/load", h.FeedLoad)
			r.Post("/next", h.FeedNext)
			r.Post("/previous", h.FeedPrevious)
			r.Get("/current", h.FeedCurrent)
			r.Get("/state", h.FeedState)
		})
		r.Route("/cache", func(r chi.Router) {
			r.Get("/status", h.CacheStatus)
			r.Post("/clear", h.CacheClear)
		})
		r.Route("/items/{id}", func(r chi.Router) {
			r.Post("/video", h.CacheItemVideo)
			r.Get("/thumbnail", h.ItemThumbnail)
		})
	})

	return r
}

// requestLogger logs request start at debug and completion at info using
// the internal logger.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		logger.Debug("gateway request started",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
		)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		logger.Info("gateway request completed",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			logger.KeyDuration, time.Since(start).String(),
		)
	})
}
