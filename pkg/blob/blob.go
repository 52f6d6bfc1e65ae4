// Package blob defines the abstract remote blob store consumed by the
// disk cache and the feed fetcher.
//
// The blob store holds large binary media (videos, thumbnails) addressed
// by an opaque reference. Implementations must be safe for concurrent use
// by multiple goroutines. The reference format is implementation-specific
// and must be treated as opaque by callers; only the store interprets it.
package blob

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound indicates the referenced blob does not exist. It is a
// permanent error; callers must not retry.
var ErrNotFound = errors.New("blob not found")

// Store provides access to remote binary media.
type Store interface {
	// Download returns a reader for the blob's content. The caller must
	// close the reader. Returns ErrNotFound if the reference does not
	// resolve; transient transport failures are retried internally before
	// being surfaced.
	Download(ctx context.Context, ref string) (io.ReadCloser, error)

	// DownloadTo streams the blob's content into the file at path,
	// creating or truncating it. The file is removed on failure.
	DownloadTo(ctx context.Context, ref string, path string) error

	// UploadReturningURL stores data under the given path and returns a
	// URL from which the uploaded blob can be retrieved.
	UploadReturningURL(ctx context.Context, data []byte, path string) (string, error)

	// ResolveURL converts a blob reference into a retrievable URL without
	// transferring any data. Used by the feed fetcher to hand playable
	// URLs to media consumers.
	ResolveURL(ctx context.Context, ref string) (string, error)
}
