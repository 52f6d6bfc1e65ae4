package diskcache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// fakeBlobStore serves canned payloads and counts downloads per ref.
type fakeBlobStore struct {
	mu        sync.Mutex
	payloads  map[string][]byte
	downloads map[string]int
	failWith  error
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{
		payloads:  make(map[string][]byte),
		downloads: make(map[string]int),
	}
}

func (f *fakeBlobStore) DownloadTo(ctx context.Context, ref, path string) error {
	f.mu.Lock()
	f.downloads[ref]++
	data, ok := f.payloads[ref]
	err := f.failWith
	f.mu.Unlock()

	if err != nil {
		return err
	}
	if !ok {
		data = []byte("video-bytes-" + ref)
	}
	return os.WriteFile(path, data, 0644)
}

func (f *fakeBlobStore) Download(ctx context.Context, ref string) (io.ReadCloser, error) {
	f.mu.Lock()
	data := f.payloads[ref]
	f.mu.Unlock()
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeBlobStore) UploadReturningURL(ctx context.Context, data []byte, path string) (string, error) {
	return "fake://" + path, nil
}

func (f *fakeBlobStore) ResolveURL(ctx context.Context, ref string) (string, error) {
	return "fake://" + ref, nil
}

func (f *fakeBlobStore) downloadCount(ref string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.downloads[ref]
}

func newTestCache(t *testing.T, cfg Config) (*Cache, *fakeBlobStore) {
	t.Helper()
	base := t.TempDir()
	if cfg.VideoDir == "" {
		cfg.VideoDir = filepath.Join(base, "videos")
	}
	if cfg.ThumbnailDir == "" {
		cfg.ThumbnailDir = filepath.Join(base, "thumbnails")
	}
	blobs := newFakeBlobStore()
	c, err := New(cfg, blobs, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c, blobs
}

// pngBytes returns a small valid PNG image.
func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4))); err != nil {
		t.Fatalf("png encode failed: %v", err)
	}
	return buf.Bytes()
}

func TestNew_CreatesSentinel(t *testing.T) {
	c, _ := newTestCache(t, Config{})

	sentinel := filepath.Join(c.thumbnails.dir, SentinelName)
	if _, err := os.Stat(sentinel); err != nil {
		t.Fatalf("sentinel file missing: %v", err)
	}
}

func TestNew_IdenticalDirsRejected(t *testing.T) {
	dir := t.TempDir()
	if _, err := New(Config{VideoDir: dir, ThumbnailDir: dir}, newFakeBlobStore(), nil); err == nil {
		t.Error("expected error for identical region directories")
	}
}

func TestNew_RemovesStaleTempFiles(t *testing.T) {
	base := t.TempDir()
	videoDir := filepath.Join(base, "videos")
	if err := os.MkdirAll(videoDir, 0755); err != nil {
		t.Fatal(err)
	}
	stale := filepath.Join(videoDir, tmpPrefix+"leftover")
	if err := os.WriteFile(stale, []byte("partial"), 0644); err != nil {
		t.Fatal(err)
	}

	newTestCache(t, Config{VideoDir: videoDir})

	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("stale temp file should be removed on startup")
	}
}

func TestCacheVideo_DownloadsOnce(t *testing.T) {
	c, blobs := newTestCache(t, Config{})
	ctx := context.Background()

	path1, err := c.CacheVideo(ctx, "ref-a", "vid-a")
	if err != nil {
		t.Fatalf("CacheVideo failed: %v", err)
	}
	path2, err := c.CacheVideo(ctx, "ref-a", "vid-a")
	if err != nil {
		t.Fatalf("CacheVideo failed: %v", err)
	}

	if path1 != path2 {
		t.Errorf("paths differ: %s vs %s", path1, path2)
	}
	if n := blobs.downloadCount("ref-a"); n != 1 {
		t.Errorf("expected 1 download, got %d", n)
	}
	data, err := os.ReadFile(path1)
	if err != nil {
		t.Fatalf("cached file unreadable: %v", err)
	}
	if string(data) != "video-bytes-ref-a" {
		t.Errorf("unexpected cached content: %q", data)
	}
}

func TestCacheVideo_DownloadFailure(t *testing.T) {
	c, blobs := newTestCache(t, Config{})
	blobs.failWith = errors.New("network down")

	_, err := c.CacheVideo(context.Background(), "ref-x", "vid-x")
	if !errors.Is(err, ErrDownloadFailed) {
		t.Fatalf("expected ErrDownloadFailed, got %v", err)
	}

	// No partial or destination file may remain
	entries, _ := os.ReadDir(c.videos.dir)
	if len(entries) != 0 {
		t.Errorf("expected empty video dir after failed download, found %d entries", len(entries))
	}
}

func TestCacheVideo_ConcurrentSameID(t *testing.T) {
	c, blobs := newTestCache(t, Config{})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.CacheVideo(ctx, "ref-c", "vid-c"); err != nil {
				t.Errorf("CacheVideo failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if n := blobs.downloadCount("ref-c"); n != 1 {
		t.Errorf("expected exactly 1 download under concurrency, got %d", n)
	}
}

func TestCacheThumbnail_RoundTrip(t *testing.T) {
	c, _ := newTestCache(t, Config{})
	ctx := context.Background()

	if _, err := c.CacheThumbnail(ctx, pngBytes(t), "thumb-a"); err != nil {
		t.Fatalf("CacheThumbnail failed: %v", err)
	}

	data, err := c.CachedThumbnail(ctx, "thumb-a")
	if err != nil {
		t.Fatalf("CachedThumbnail failed: %v", err)
	}
	// Stored re-encoded as JPEG
	if _, format, err := image.Decode(bytes.NewReader(data)); err != nil || format != "jpeg" {
		t.Errorf("cached thumbnail decode = (%s, %v), want jpeg", format, err)
	}
}

func TestCacheThumbnail_InvalidImage(t *testing.T) {
	c, _ := newTestCache(t, Config{})

	_, err := c.CacheThumbnail(context.Background(), []byte("not an image"), "thumb-bad")
	if !errors.Is(err, ErrEncodingFailed) {
		t.Errorf("expected ErrEncodingFailed, got %v", err)
	}
}

func TestCachedThumbnail_Absent(t *testing.T) {
	c, _ := newTestCache(t, Config{})

	if _, err := c.CachedThumbnail(context.Background(), "missing"); !errors.Is(err, ErrNotCached) {
		t.Errorf("expected ErrNotCached, got %v", err)
	}
}

func TestCachedThumbnail_CorruptTreatedAsAbsent(t *testing.T) {
	c, _ := newTestCache(t, Config{})
	ctx := context.Background()

	if _, err := c.CacheThumbnail(ctx, pngBytes(t), "thumb-c"); err != nil {
		t.Fatalf("CacheThumbnail failed: %v", err)
	}
	// Corrupt the file on disk
	path := filepath.Join(c.thumbnails.dir, "thumb-c")
	if err := os.WriteFile(path, []byte("garbage"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := c.CachedThumbnail(ctx, "thumb-c"); !errors.Is(err, ErrNotCached) {
		t.Errorf("expected ErrNotCached for corrupt file, got %v", err)
	}
}

func TestRemoveVideo_AbsentIsNoError(t *testing.T) {
	c, _ := newTestCache(t, Config{})

	if err := c.RemoveVideo(context.Background(), "never-cached"); err != nil {
		t.Errorf("RemoveVideo of absent entry returned %v", err)
	}
}

func TestRemoveVideo_DeletesFile(t *testing.T) {
	c, _ := newTestCache(t, Config{})
	ctx := context.Background()

	path, err := c.CacheVideo(ctx, "ref-r", "vid-r")
	if err != nil {
		t.Fatalf("CacheVideo failed: %v", err)
	}
	if err := c.RemoveVideo(ctx, "vid-r"); err != nil {
		t.Fatalf("RemoveVideo failed: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("video file should be gone after RemoveVideo")
	}
}

func TestClearVideos_EmitsEventOnce(t *testing.T) {
	c, _ := newTestCache(t, Config{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := c.CacheVideo(ctx, fmt.Sprintf("ref-%d", i), fmt.Sprintf("vid-%d", i)); err != nil {
			t.Fatalf("CacheVideo failed: %v", err)
		}
	}

	var events []Event
	c.Events().Subscribe(func(e Event) { events = append(events, e) })

	if err := c.ClearVideos(ctx); err != nil {
		t.Fatalf("ClearVideos failed: %v", err)
	}

	if len(events) != 1 {
		t.Fatalf("expected exactly 1 event, got %d", len(events))
	}
	if events[0].Type != EventCacheCleared || events[0].Region != RegionVideo {
		t.Errorf("unexpected event %+v", events[0])
	}

	size, err := c.RegionSize(ctx, RegionVideo)
	if err != nil {
		t.Fatalf("RegionSize failed: %v", err)
	}
	if size != 0 {
		t.Errorf("expected empty region after clear, size = %d", size)
	}
}

func TestClearThumbnails_PreservesSentinel(t *testing.T) {
	c, _ := newTestCache(t, Config{})
	ctx := context.Background()

	if _, err := c.CacheThumbnail(ctx, pngBytes(t), "thumb-x"); err != nil {
		t.Fatalf("CacheThumbnail failed: %v", err)
	}
	if err := c.ClearThumbnails(ctx); err != nil {
		t.Fatalf("ClearThumbnails failed: %v", err)
	}

	if _, err := c.CachedThumbnail(ctx, "thumb-x"); !errors.Is(err, ErrNotCached) {
		t.Errorf("thumbnail should be gone after clear, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(c.thumbnails.dir, SentinelName)); err != nil {
		t.Errorf("sentinel should survive clear: %v", err)
	}
}

func TestRegionSize_ExcludesSentinel(t *testing.T) {
	c, _ := newTestCache(t, Config{})
	ctx := context.Background()

	size, err := c.RegionSize(ctx, RegionThumbnail)
	if err != nil {
		t.Fatalf("RegionSize failed: %v", err)
	}
	if size != 0 {
		t.Errorf("empty thumbnail region size = %d, want 0", size)
	}
}

func TestCache_InvalidID(t *testing.T) {
	c, _ := newTestCache(t, Config{})
	ctx := context.Background()

	for _, id := range []string{"", "..", "a/b", SentinelName} {
		if _, err := c.CacheVideo(ctx, "ref", id); !errors.Is(err, ErrInvalidID) {
			t.Errorf("CacheVideo(%q) = %v, want ErrInvalidID", id, err)
		}
	}
}

func TestCache_ClosedRejectsOperations(t *testing.T) {
	c, _ := newTestCache(t, Config{})
	if err := c.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if _, err := c.CacheVideo(context.Background(), "ref", "vid"); !errors.Is(err, ErrCacheClosed) {
		t.Errorf("expected ErrCacheClosed, got %v", err)
	}
}

// backdate shifts a cached file's mod time into the past so eviction
// order is deterministic.
func backdate(t *testing.T, path string, age time.Duration) {
	t.Helper()
	when := time.Now().Add(-age)
	if err := os.Chtimes(path, when, when); err != nil {
		t.Fatalf("Chtimes failed: %v", err)
	}
}
