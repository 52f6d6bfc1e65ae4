package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/reelfeed/reelfeed/pkg/diskcache"
	"github.com/reelfeed/reelfeed/pkg/feed"
)

// Response is the standard API response wrapper.
type Response struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
	Error     string    `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func okResponse(data any) Response {
	return Response{Status: "ok", Timestamp: time.Now().UTC(), Data: data}
}

func errResponse(msg string) Response {
	return Response{Status: "error", Timestamp: time.Now().UTC(), Error: msg}
}

// itemView is the wire shape of a feed item.
type itemView struct {
	ID           string    `json:"id"`
	Caption      string    `json:"caption,omitempty"`
	AuthorID     string    `json:"author_id,omitempty"`
	VideoURL     string    `json:"video_url"`
	ThumbnailURL string    `json:"thumbnail_url,omitempty"`
	LikeCount    int       `json:"like_count"`
	CommentCount int       `json:"comment_count"`
	ShareCount   int       `json:"share_count"`
	Privacy      string    `json:"privacy"`
	CreatedAt    time.Time `json:"created_at"`
}

func toItemView(item feed.Item) itemView {
	return itemView{
		ID:           item.ID,
		Caption:      item.Caption,
		AuthorID:     item.AuthorID,
		VideoURL:     item.VideoURL,
		ThumbnailURL: item.ThumbnailURL,
		LikeCount:    item.LikeCount,
		CommentCount: item.CommentCount,
		ShareCount:   item.ShareCount,
		Privacy:      item.Privacy,
		CreatedAt:    item.CreatedAt,
	}
}

// positionView reports the item together with the session position.
type positionView struct {
	Item  itemView `json:"item"`
	Index int      `json:"index"`
	Count int      `json:"count"`
}

// Handler implements the gateway endpoints over one feed session and
// its disk cache.
type Handler struct {
	controller *feed.Controller
	cache      *diskcache.Cache
	startTime  time.Time
}

// NewHandler creates the endpoint handler.
func NewHandler(controller *feed.Controller, cache *diskcache.Cache) *Handler {
	return &Handler{
		controller: controller,
		cache:      cache,
		startTime:  time.Now(),
	}
}

// Healthz handles GET /healthz.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(h.startTime)
	writeJSON(w, http.StatusOK, okResponse(map[string]any{
		"service":    "reelfeed",
		"started_at": h.startTime.UTC().Format(time.RFC3339),
		"uptime":     uptime.Round(time.Second).String(),
	}))
}

// FeedLoad handles POST /api/v1/feed/load. An optional body may name an
// initial item to start from.
func (h *Handler) FeedLoad(w http.ResponseWriter, r *http.Request) {
	var req struct {
		InitialItemID string `json:"initial_item_id"`
	}
	if r.Body != nil && r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errResponse("invalid request body"))
			return
		}
	}
	if req.InitialItemID != "" {
		h.controller.SetInitialItem(feed.Item{ID: req.InitialItemID})
	}

	if err := h.controller.Load(r.Context()); err != nil {
		if errors.Is(err, feed.ErrLoadInFlight) {
			writeJSON(w, http.StatusConflict, errResponse(err.Error()))
			return
		}
		writeJSON(w, http.StatusBadGateway, errResponse(err.Error()))
		return
	}

	writeJSON(w, http.StatusOK, okResponse(map[string]any{
		"state": h.controller.State(),
		"count": h.controller.Len(),
	}))
}

// FeedNext handles POST /api/v1/feed/next.
func (h *Handler) FeedNext(w http.ResponseWriter, r *http.Request) {
	item, err := h.controller.MoveNext(r.Context())
	h.writeMove(w, item, err)
}

// FeedPrevious handles POST /api/v1/feed/previous.
func (h *Handler) FeedPrevious(w http.ResponseWriter, r *http.Request) {
	item, err := h.controller.MovePrevious(r.Context())
	h.writeMove(w, item, err)
}

func (h *Handler) writeMove(w http.ResponseWriter, item feed.Item, err error) {
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, okResponse(positionView{
			Item:  toItemView(item),
			Index: h.controller.Index(),
			Count: h.controller.Len(),
		}))
	case errors.Is(err, feed.ErrAtFeedStart), errors.Is(err, feed.ErrAtFeedEnd):
		writeJSON(w, http.StatusConflict, errResponse(err.Error()))
	case errors.Is(err, feed.ErrNotReady):
		writeJSON(w, http.StatusPreconditionFailed, errResponse(err.Error()))
	default:
		writeJSON(w, http.StatusInternalServerError, errResponse(err.Error()))
	}
}

// FeedCurrent handles GET /api/v1/feed/current.
func (h *Handler) FeedCurrent(w http.ResponseWriter, r *http.Request) {
	item, err := h.controller.Current()
	if err != nil {
		writeJSON(w, http.StatusPreconditionFailed, errResponse(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, okResponse(positionView{
		Item:  toItemView(item),
		Index: h.controller.Index(),
		Count: h.controller.Len(),
	}))
}

// FeedState handles GET /api/v1/feed/state.
func (h *Handler) FeedState(w http.ResponseWriter, r *http.Request) {
	data := map[string]any{
		"state": h.controller.State(),
		"count": h.controller.Len(),
		"index": h.controller.Index(),
	}
	if err := h.controller.Err(); err != nil {
		data["error"] = err.Error()
	}
	writeJSON(w, http.StatusOK, okResponse(data))
}

// CacheStatus handles GET /api/v1/cache/status.
func (h *Handler) CacheStatus(w http.ResponseWriter, r *http.Request) {
	regions := make(map[string]any, 2)
	for _, region := range []diskcache.Region{diskcache.RegionVideo, diskcache.RegionThumbnail} {
		size, err := h.cache.RegionSize(r.Context(), region)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, errResponse(err.Error()))
			return
		}
		regions[string(region)] = map[string]int64{
			"size_bytes":   size,
			"budget_bytes": h.cache.Budget(region),
		}
	}
	writeJSON(w, http.StatusOK, okResponse(regions))
}

// CacheClear handles POST /api/v1/cache/clear.
func (h *Handler) CacheClear(w http.ResponseWriter, r *http.Request) {
	if err := h.cache.ClearVideos(r.Context()); err != nil {
		writeJSON(w, http.StatusInternalServerError, errResponse(err.Error()))
		return
	}
	if err := h.cache.ClearThumbnails(r.Context()); err != nil {
		writeJSON(w, http.StatusInternalServerError, errResponse(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, okResponse(map[string]string{"result": "cleared"}))
}

// CacheItemVideo handles POST /api/v1/items/{id}/video: downloads the
// item's video into the cache if needed and returns the local path.
func (h *Handler) CacheItemVideo(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req struct {
		SourceRef string `json:"source_ref"`
	}
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.SourceRef == "" {
		writeJSON(w, http.StatusBadRequest, errResponse("source_ref is required"))
		return
	}

	path, err := h.cache.CacheVideo(r.Context(), req.SourceRef, id)
	if err != nil {
		switch {
		case errors.Is(err, diskcache.ErrInvalidID):
			writeJSON(w, http.StatusBadRequest, errResponse(err.Error()))
		case errors.Is(err, diskcache.ErrDownloadFailed):
			writeJSON(w, http.StatusBadGateway, errResponse(err.Error()))
		default:
			writeJSON(w, http.StatusInternalServerError, errResponse(err.Error()))
		}
		return
	}
	writeJSON(w, http.StatusOK, okResponse(map[string]string{"path": path}))
}

// ItemThumbnail handles GET /api/v1/items/{id}/thumbnail, serving the
// cached thumbnail bytes.
func (h *Handler) ItemThumbnail(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	data, err := h.cache.CachedThumbnail(r.Context(), id)
	if err != nil {
		if errors.Is(err, diskcache.ErrNotCached) {
			writeJSON(w, http.StatusNotFound, errResponse("thumbnail not cached"))
			return
		}
		writeJSON(w, http.StatusInternalServerError, errResponse(err.Error()))
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// decodeJSONBody decodes a JSON request body into the provided pointer,
// writing the error response itself on failure.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errResponse("invalid request body"))
		return false
	}
	return true
}
