package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/reelfeed/reelfeed/pkg/docstore"
)

// fakeStore is a scriptable in-memory document store. Errors queued in
// errs are returned one per Query call before any records are served.
type fakeStore struct {
	mu      sync.Mutex
	records []docstore.RawRecord
	errs    []error
	queries int
}

func (s *fakeStore) Query(ctx context.Context, q docstore.Query) ([]docstore.RawRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries++

	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		return nil, err
	}
	if q.Limit <= 0 {
		return nil, fmt.Errorf("invalid limit %d", q.Limit)
	}

	sorted := make([]docstore.RawRecord, len(s.records))
	copy(sorted, s.records)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i]["order_key"].(string) < sorted[j]["order_key"].(string)
	})

	var out []docstore.RawRecord
	for _, rec := range sorted {
		if q.StartAfter != "" && rec["order_key"].(string) <= string(q.StartAfter) {
			continue
		}
		out = append(out, rec)
		if len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

func (s *fakeStore) Put(ctx context.Context, orderKey string, rec docstore.RawRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func (s *fakeStore) Close() error { return nil }

func (s *fakeStore) queryCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queries
}

// fakeResolver resolves blob references to URLs, with optional per-ref
// failures.
type fakeResolver struct {
	mu       sync.Mutex
	failRefs map[string]bool
	resolved []string
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{failRefs: make(map[string]bool)}
}

func (r *fakeResolver) ResolveURL(ctx context.Context, ref string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failRefs[ref] {
		return "", errors.New("resolution failed")
	}
	r.resolved = append(r.resolved, ref)
	return "https://cdn.example/" + ref, nil
}

func (r *fakeResolver) Download(ctx context.Context, ref string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("")), nil
}

func (r *fakeResolver) DownloadTo(ctx context.Context, ref, path string) error { return nil }

func (r *fakeResolver) UploadReturningURL(ctx context.Context, data []byte, path string) (string, error) {
	return "https://cdn.example/" + path, nil
}

// feedRecord builds a well-formed raw record. Creation times ascend
// with i so the ordering key and creation order agree.
func feedRecord(i int) docstore.RawRecord {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(i) * time.Hour)
	return docstore.RawRecord{
		"id":            fmt.Sprintf("item-%d", i),
		"order_key":     fmt.Sprintf("%012d", i),
		"video_ref":     fmt.Sprintf("videos/item-%d.mp4", i),
		"thumbnail_ref": fmt.Sprintf("thumbs/item-%d.jpg", i),
		"author_id":     "author-1",
		"caption":       fmt.Sprintf("caption %d", i),
		"created_at":    created.Format(time.RFC3339),
	}
}

func seededStore(n int) *fakeStore {
	s := &fakeStore{}
	for i := 0; i < n; i++ {
		s.records = append(s.records, feedRecord(i))
	}
	return s
}

func testFetcher(store *fakeStore, blobs *fakeResolver, cfg FetcherConfig) *Fetcher {
	if cfg.BaseDelay == 0 {
		cfg.BaseDelay = time.Millisecond
	}
	return NewFetcher(cfg, store, blobs, nil)
}

func TestNextBatch_ResolvesAndSorts(t *testing.T) {
	f := testFetcher(seededStore(5), newFakeResolver(), FetcherConfig{BatchSize: 10})

	batch, err := f.NextBatch(context.Background())
	if err != nil {
		t.Fatalf("NextBatch failed: %v", err)
	}
	if len(batch) != 5 {
		t.Fatalf("batch size = %d, want 5", len(batch))
	}
	// Presentation order is newest first
	if batch[0].ID != "item-4" || batch[4].ID != "item-0" {
		t.Errorf("batch order = [%s .. %s], want [item-4 .. item-0]", batch[0].ID, batch[4].ID)
	}
	for _, item := range batch {
		if item.VideoURL == "" {
			t.Errorf("item %s missing resolved video URL", item.ID)
		}
		if item.ThumbnailURL == "" {
			t.Errorf("item %s missing resolved thumbnail URL", item.ID)
		}
		if item.Privacy != "public" {
			t.Errorf("item %s privacy = %q, want default public", item.ID, item.Privacy)
		}
	}
}

func TestNextBatch_CursorNeverOverlaps(t *testing.T) {
	f := testFetcher(seededStore(10), newFakeResolver(), FetcherConfig{BatchSize: 4})
	ctx := context.Background()

	seen := map[string]bool{}
	for page := 0; ; page++ {
		batch, err := f.NextBatch(ctx)
		if err != nil {
			t.Fatalf("NextBatch page %d failed: %v", page, err)
		}
		if len(batch) == 0 {
			break
		}
		for _, item := range batch {
			if seen[item.ID] {
				t.Errorf("item %s returned twice across pages", item.ID)
			}
			seen[item.ID] = true
		}
	}
	if len(seen) != 10 {
		t.Errorf("total items = %d, want 10", len(seen))
	}
}

func TestNextBatch_RetriesTransientFailures(t *testing.T) {
	store := seededStore(3)
	store.errs = []error{
		fmt.Errorf("%w: connection lost", docstore.ErrUnavailable),
		fmt.Errorf("%w: connection lost", docstore.ErrUnavailable),
	}
	f := testFetcher(store, newFakeResolver(), FetcherConfig{BatchSize: 5, BaseDelay: 10 * time.Millisecond})

	start := time.Now()
	batch, err := f.NextBatch(context.Background())
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("NextBatch failed after retries: %v", err)
	}
	if len(batch) != 3 {
		t.Errorf("batch size = %d, want 3", len(batch))
	}
	if n := store.queryCount(); n != 3 {
		t.Errorf("attempts = %d, want 3 (2 failures + 1 success)", n)
	}
	// Delays double: 10ms then 20ms
	if elapsed < 30*time.Millisecond {
		t.Errorf("elapsed = %v, want >= 30ms of backoff", elapsed)
	}
}

func TestNextBatch_PermanentFailureNoRetry(t *testing.T) {
	store := seededStore(3)
	store.errs = []error{errors.New("permission denied")}
	f := testFetcher(store, newFakeResolver(), FetcherConfig{BatchSize: 5})

	if _, err := f.NextBatch(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if n := store.queryCount(); n != 1 {
		t.Errorf("attempts = %d, want exactly 1 for a permanent failure", n)
	}
}

func TestNextBatch_RetriesExhausted(t *testing.T) {
	store := seededStore(3)
	transient := fmt.Errorf("%w: overloaded", docstore.ErrUnavailable)
	store.errs = []error{transient, transient, transient, transient}
	f := testFetcher(store, newFakeResolver(), FetcherConfig{BatchSize: 5, MaxRetries: 3})

	_, err := f.NextBatch(context.Background())
	if !errors.Is(err, docstore.ErrUnavailable) {
		t.Fatalf("expected wrapped ErrUnavailable, got %v", err)
	}
	if n := store.queryCount(); n != 4 {
		t.Errorf("attempts = %d, want 4 (initial + 3 retries)", n)
	}
}

func TestNextBatch_MalformedRecordIsPermanent(t *testing.T) {
	store := &fakeStore{records: []docstore.RawRecord{{
		"id":        "item-0",
		"order_key": "000000000000",
		// video_ref missing
	}}}
	f := testFetcher(store, newFakeResolver(), FetcherConfig{BatchSize: 5})

	_, err := f.NextBatch(context.Background())
	if !errors.Is(err, ErrMalformedRecord) {
		t.Fatalf("expected ErrMalformedRecord, got %v", err)
	}
	if n := store.queryCount(); n != 1 {
		t.Errorf("attempts = %d, want 1", n)
	}
}

func TestNextBatch_ThumbnailFailureIsBestEffort(t *testing.T) {
	blobs := newFakeResolver()
	blobs.failRefs["thumbs/item-0.jpg"] = true
	f := testFetcher(seededStore(1), blobs, FetcherConfig{BatchSize: 5})

	batch, err := f.NextBatch(context.Background())
	if err != nil {
		t.Fatalf("NextBatch failed: %v", err)
	}
	if len(batch) != 1 {
		t.Fatalf("batch size = %d, want 1", len(batch))
	}
	if batch[0].ThumbnailURL != "" {
		t.Errorf("thumbnail URL = %q, want empty after resolution failure", batch[0].ThumbnailURL)
	}
	if batch[0].VideoURL == "" {
		t.Error("video URL must still be resolved")
	}
}

func TestNextBatch_SkipsSoftDeleted(t *testing.T) {
	store := seededStore(3)
	store.records[1]["deleted"] = true
	f := testFetcher(store, newFakeResolver(), FetcherConfig{BatchSize: 10})

	batch, err := f.NextBatch(context.Background())
	if err != nil {
		t.Fatalf("NextBatch failed: %v", err)
	}
	if len(batch) != 2 {
		t.Fatalf("batch size = %d, want 2 (deleted record skipped)", len(batch))
	}
	for _, item := range batch {
		if item.ID == "item-1" {
			t.Error("soft-deleted item-1 must not appear in the feed")
		}
	}
}

func TestNextBatch_ExhaustedFeed(t *testing.T) {
	f := testFetcher(seededStore(2), newFakeResolver(), FetcherConfig{BatchSize: 5})
	ctx := context.Background()

	if _, err := f.NextBatch(ctx); err != nil {
		t.Fatalf("NextBatch failed: %v", err)
	}
	batch, err := f.NextBatch(ctx)
	if err != nil {
		t.Fatalf("NextBatch failed: %v", err)
	}
	if len(batch) != 0 {
		t.Errorf("batch size = %d past the end, want 0", len(batch))
	}
}

func TestResolveRecord_Defaults(t *testing.T) {
	item, err := resolveRecord(docstore.RawRecord{
		"id":        "item-x",
		"order_key": "k",
		"video_ref": "videos/x.mp4",
	})
	if err != nil {
		t.Fatalf("resolveRecord failed: %v", err)
	}
	if item.Caption != "" || item.LikeCount != 0 || item.CommentCount != 0 {
		t.Errorf("optional fields not defaulted: %+v", item)
	}
	if item.Privacy != "public" {
		t.Errorf("privacy = %q, want public", item.Privacy)
	}
	if item.Deleted {
		t.Error("deleted should default to false")
	}
}

func TestResolveRecord_MissingID(t *testing.T) {
	_, err := resolveRecord(docstore.RawRecord{
		"order_key": "k",
		"video_ref": "videos/x.mp4",
	})
	if !errors.Is(err, ErrMalformedRecord) {
		t.Errorf("expected ErrMalformedRecord, got %v", err)
	}
}
