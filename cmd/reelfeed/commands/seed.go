package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/reelfeed/reelfeed/pkg/blob/s3"
	"github.com/reelfeed/reelfeed/pkg/config"
	"github.com/reelfeed/reelfeed/pkg/docstore"
	badgerstore "github.com/reelfeed/reelfeed/pkg/docstore/badger"
)

var (
	seedCount  int
	seedUpload bool
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Insert synthetic feed records for local development",
	Long: `Insert synthetic feed records into the document store. With --upload,
a placeholder blob is also uploaded for each record so that media
resolution succeeds against the configured bucket.

Examples:
  reelfeed seed --count 25
  reelfeed seed --count 5 --upload`,
	RunE: runSeed,
}

func init() {
	seedCmd.Flags().IntVar(&seedCount, "count", 10, "number of records to insert")
	seedCmd.Flags().BoolVar(&seedUpload, "upload", false, "upload placeholder blobs for each record")
}

func runSeed(cmd *cobra.Command, args []string) error {
	if seedCount <= 0 {
		return fmt.Errorf("count must be positive, got %d", seedCount)
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	store, err := badgerstore.Open(badgerstore.Options{
		Dir:      cfg.Store.Dir,
		InMemory: cfg.Store.InMemory,
	})
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()

	var blobs *s3.Store
	if seedUpload {
		client, err := s3.NewClient(ctx,
			cfg.Blob.Endpoint, cfg.Blob.Region,
			cfg.Blob.AccessKeyID, cfg.Blob.SecretAccessKey,
			cfg.Blob.UsePathStyle)
		if err != nil {
			return fmt.Errorf("failed to create blob store client: %w", err)
		}
		blobs, err = s3.New(s3.Config{
			Client:     client,
			Bucket:     cfg.Blob.Bucket,
			KeyPrefix:  cfg.Blob.KeyPrefix,
			PresignTTL: cfg.Blob.PresignTTL,
		})
		if err != nil {
			return fmt.Errorf("failed to create blob store: %w", err)
		}
	}

	now := time.Now().UTC()
	for i := 0; i < seedCount; i++ {
		id := uuid.New().String()
		videoRef := fmt.Sprintf("videos/%s.mp4", id)
		thumbRef := fmt.Sprintf("thumbnails/%s.jpg", id)

		if blobs != nil {
			payload := []byte(fmt.Sprintf("placeholder video %d", i))
			if _, err := blobs.UploadReturningURL(ctx, payload, videoRef); err != nil {
				return fmt.Errorf("failed to upload blob for record %d: %w", i, err)
			}
		}

		created := now.Add(time.Duration(i-seedCount) * time.Minute)
		orderKey := fmt.Sprintf("%020d", created.UnixNano())
		rec := docstore.RawRecord{
			"id":            id,
			"order_key":     orderKey,
			"video_ref":     videoRef,
			"thumbnail_ref": thumbRef,
			"author_id":     fmt.Sprintf("author-%d", i%3),
			"caption":       fmt.Sprintf("Synthetic reel #%d", i),
			"like_count":    i * 7,
			"comment_count": i * 2,
			"privacy":       "public",
			"created_at":    created.Format(time.RFC3339),
		}
		if err := store.Put(ctx, orderKey, rec); err != nil {
			return fmt.Errorf("failed to store record %d: %w", i, err)
		}
	}

	fmt.Printf("Inserted %d synthetic records.\n", seedCount)
	if seedUpload {
		fmt.Println("Uploaded placeholder blobs.")
	}
	return nil
}
