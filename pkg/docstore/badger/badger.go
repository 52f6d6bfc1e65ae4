// Package badger implements the document store on an embedded badger
// database. Records are stored as JSON values under their ordering key,
// so a forward iteration yields records in cursor order.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/reelfeed/reelfeed/pkg/docstore"
)

// recordPrefix namespaces feed records within the database.
var recordPrefix = []byte("record/")

// Store is a badger-backed document store.
type Store struct {
	db *badgerdb.DB
}

// Options configures the store.
type Options struct {
	// Dir is the database directory. Ignored when InMemory is set.
	Dir string

	// InMemory runs badger without persistence (tests).
	InMemory bool
}

// Open opens or creates the database.
func Open(opts Options) (*Store, error) {
	var badgerOpts badgerdb.Options
	if opts.InMemory {
		badgerOpts = badgerdb.DefaultOptions("").WithInMemory(true)
	} else {
		badgerOpts = badgerdb.DefaultOptions(opts.Dir)
	}
	// Badger's own logger is too chatty for a client-side store
	badgerOpts = badgerOpts.WithLogger(nil)

	db, err := badgerdb.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open document store: %w", err)
	}
	return &Store{db: db}, nil
}

// recordKey builds the database key for an ordering key.
func recordKey(orderKey string) []byte {
	return append(append([]byte{}, recordPrefix...), orderKey...)
}

// Put stores a record under the given ordering key.
func (s *Store) Put(ctx context.Context, orderKey string, rec docstore.RawRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if orderKey == "" {
		return fmt.Errorf("empty ordering key")
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode record %s: %w", orderKey, err)
	}

	err = s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(recordKey(orderKey), data)
	})
	if err != nil {
		return wrapBackendErr(fmt.Errorf("failed to store record %s: %w", orderKey, err))
	}
	return nil
}

// Query returns up to q.Limit records ordered ascending by ordering key,
// starting strictly after q.StartAfter.
func (s *Store) Query(ctx context.Context, q docstore.Query) ([]docstore.RawRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if q.Limit <= 0 {
		return nil, fmt.Errorf("query limit must be positive, got %d", q.Limit)
	}

	var records []docstore.RawRecord

	err := s.db.View(func(txn *badgerdb.Txn) error {
		itOpts := badgerdb.DefaultIteratorOptions
		itOpts.Prefix = recordPrefix
		it := txn.NewIterator(itOpts)
		defer it.Close()

		start := recordPrefix
		if q.StartAfter != "" {
			// Seek to the first key strictly greater than the cursor
			start = append(recordKey(string(q.StartAfter)), 0x00)
		}

		for it.Seek(start); it.Valid() && len(records) < q.Limit; it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var rec docstore.RawRecord
				if err := json.Unmarshal(val, &rec); err != nil {
					return fmt.Errorf("failed to decode record %s: %w",
						string(it.Item().Key()), err)
				}
				records = append(records, rec)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, wrapBackendErr(err)
	}

	return records, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// wrapBackendErr tags transient badger failures with
// docstore.ErrUnavailable so the fetcher can classify them.
func wrapBackendErr(err error) error {
	if errors.Is(err, badgerdb.ErrConflict) || errors.Is(err, badgerdb.ErrDBClosed) ||
		errors.Is(err, badgerdb.ErrBlockedWrites) {
		return fmt.Errorf("%w: %v", docstore.ErrUnavailable, err)
	}
	return err
}
