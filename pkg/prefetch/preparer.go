package prefetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// HTTPPreparer verifies that a media URL is reachable and playable by
// probing it over HTTP. It holds no per-item state, so a single handle
// type carrying the verified URL is enough.
type HTTPPreparer struct {
	client *http.Client
}

// NewHTTPPreparer creates a preparer using the given client. A nil
// client falls back to http.DefaultClient.
func NewHTTPPreparer(client *http.Client) *HTTPPreparer {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPPreparer{client: client}
}

// Prepare probes the URL with a HEAD request, falling back to a
// one-byte ranged GET for servers that reject HEAD. Any status below
// 400 counts as ready; presigned blob URLs answer 200 or 206.
func (p *HTTPPreparer) Prepare(ctx context.Context, url string) (Handle, error) {
	status, err := p.probe(ctx, http.MethodHead, url)
	if err != nil {
		return nil, err
	}
	if status == http.StatusMethodNotAllowed {
		status, err = p.probe(ctx, http.MethodGet, url)
		if err != nil {
			return nil, err
		}
	}
	if status >= 400 {
		return nil, fmt.Errorf("media not ready: status %d", status)
	}
	return &httpHandle{url: url}, nil
}

func (p *HTTPPreparer) probe(ctx context.Context, method, url string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return 0, err
	}
	if method == http.MethodGet {
		req.Header.Set("Range", "bytes=0-0")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
	return resp.StatusCode, nil
}

type httpHandle struct {
	url string
}

func (h *httpHandle) URL() string { return h.url }
func (h *httpHandle) Release()    {}
