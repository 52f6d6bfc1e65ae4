// Package docstore defines the abstract document store the feed fetcher
// paginates over.
//
// The store holds the raw feed records as untyped key-value maps, ordered
// by a monotonic ordering key. Queries are cursor-based range scans: each
// page starts strictly after the previous page's last ordering key. The
// order returned by the store is authoritative; callers must not re-sort
// records for pagination purposes.
package docstore

import (
	"context"
	"errors"
)

// ErrUnavailable wraps transient backend failures (connection loss,
// timeouts, overload). Callers may retry operations that fail with it.
// Any other error is permanent.
var ErrUnavailable = errors.New("document store unavailable")

// RawRecord is an untyped feed record as stored in the backend. Field
// typing and defaulting happen in one place, the feed fetcher's record
// resolution step.
type RawRecord map[string]any

// Cursor marks the last ordering key of a previously fetched page. The
// zero value starts from the beginning.
type Cursor string

// Query describes one page request.
type Query struct {
	// StartAfter excludes every record up to and including this ordering
	// key. Empty means start from the first record.
	StartAfter Cursor

	// Limit is the maximum number of records to return. Must be > 0.
	Limit int
}

// Store provides ordered, cursor-based access to feed records.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Query returns up to q.Limit records ordered ascending by ordering
	// key, starting strictly after q.StartAfter. An empty result means
	// the feed is exhausted; that is not an error.
	Query(ctx context.Context, q Query) ([]RawRecord, error)

	// Put stores a record under the given ordering key, replacing any
	// existing record with the same key.
	Put(ctx context.Context, orderKey string, rec RawRecord) error

	// Close releases backend resources.
	Close() error
}
