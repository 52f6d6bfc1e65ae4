// Package feed implements the paginated feed pipeline: resolving raw
// backend records into typed items, fetching ordered batches with
// bounded retries, and the session controller that coordinates
// pagination and prefetching as the viewing position moves.
package feed

import (
	"errors"
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/reelfeed/reelfeed/pkg/docstore"
)

// ErrMalformedRecord marks a backend record that cannot be resolved
// into an item. It is permanent: retrying the fetch cannot fix it.
var ErrMalformedRecord = errors.New("malformed feed record")

// Item is one resolved feed entry.
type Item struct {
	ID           string    `mapstructure:"id"`
	OrderKey     string    `mapstructure:"order_key"`
	VideoRef     string    `mapstructure:"video_ref"`
	ThumbnailRef string    `mapstructure:"thumbnail_ref"`
	AuthorID     string    `mapstructure:"author_id"`
	Caption      string    `mapstructure:"caption"`
	LikeCount    int       `mapstructure:"like_count"`
	CommentCount int       `mapstructure:"comment_count"`
	ShareCount   int       `mapstructure:"share_count"`
	Privacy      string    `mapstructure:"privacy"`
	Deleted      bool      `mapstructure:"deleted"`
	CreatedAt    time.Time `mapstructure:"created_at"`

	// VideoURL and ThumbnailURL are resolved against the blob store
	// during fetching. ThumbnailURL may be empty: thumbnail resolution
	// is best-effort.
	VideoURL     string `mapstructure:"-"`
	ThumbnailURL string `mapstructure:"-"`
}

// resolveRecord decodes a raw backend record into an Item and applies
// the optional-field defaults in one place: caption empty, counters
// zero, privacy public, deleted false. A record missing its id, video
// reference or ordering key is malformed.
func resolveRecord(rec docstore.RawRecord) (Item, error) {
	var item Item

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result: &item,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeHookFunc(time.RFC3339),
		),
	})
	if err != nil {
		return Item{}, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	if err := decoder.Decode(map[string]any(rec)); err != nil {
		return Item{}, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}

	if item.ID == "" {
		return Item{}, fmt.Errorf("%w: missing id", ErrMalformedRecord)
	}
	if item.VideoRef == "" {
		return Item{}, fmt.Errorf("%w: record %s missing video reference", ErrMalformedRecord, item.ID)
	}
	if item.OrderKey == "" {
		return Item{}, fmt.Errorf("%w: record %s missing ordering key", ErrMalformedRecord, item.ID)
	}
	if item.Privacy == "" {
		item.Privacy = "public"
	}
	return item, nil
}
