// Package s3 implements the blob store against Amazon S3 or any
// S3-compatible object storage (MinIO, LocalStack, ...).
//
// References are object keys relative to the configured key prefix.
// Transient failures (throttling, 5xx, network timeouts) are retried with
// exponential backoff; permanent failures (missing object, access denied)
// surface immediately.
package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/reelfeed/reelfeed/internal/logger"
	"github.com/reelfeed/reelfeed/pkg/blob"
)

// Store implements blob.Store on top of an S3 bucket.
type Store struct {
	client    *s3.Client
	presigner *s3.PresignClient
	bucket    string
	keyPrefix string

	presignTTL time.Duration
	retry      retryConfig
}

// Config configures the S3 blob store.
type Config struct {
	// Client is the configured S3 client
	Client *s3.Client

	// Bucket is the S3 bucket holding media blobs
	Bucket string

	// KeyPrefix is an optional prefix applied to all object keys
	KeyPrefix string

	// PresignTTL is the validity window of URLs returned by ResolveURL
	// and UploadReturningURL (default: 1h)
	PresignTTL time.Duration

	// MaxRetries is the retry budget for transient errors (default: 3,
	// 0 disables retries)
	MaxRetries int

	// InitialBackoff is the delay before the first retry (default: 100ms)
	InitialBackoff time.Duration

	// MaxBackoff caps the delay between retries (default: 2s)
	MaxBackoff time.Duration

	// BackoffMultiplier grows the delay each attempt (default: 2.0)
	BackoffMultiplier float64
}

// retryConfig holds retry settings for S3 operations.
type retryConfig struct {
	maxRetries        int
	initialBackoff    time.Duration
	maxBackoff        time.Duration
	backoffMultiplier float64
}

// NewClient creates an S3 client from endpoint/credential parameters.
// An empty endpoint uses AWS; empty credentials use the default chain.
func NewClient(ctx context.Context, endpoint, region, accessKeyID, secretAccessKey string, usePathStyle bool) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
	}
	if accessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.UsePathStyle = usePathStyle
	}), nil
}

// New creates an S3-backed blob store.
func New(cfg Config) (*Store, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("s3 client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}

	if cfg.PresignTTL == 0 {
		cfg.PresignTTL = time.Hour
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.InitialBackoff == 0 {
		cfg.InitialBackoff = 100 * time.Millisecond
	}
	if cfg.MaxBackoff == 0 {
		cfg.MaxBackoff = 2 * time.Second
	}
	if cfg.BackoffMultiplier == 0 {
		cfg.BackoffMultiplier = 2.0
	}

	return &Store{
		client:     cfg.Client,
		presigner:  s3.NewPresignClient(cfg.Client),
		bucket:     cfg.Bucket,
		keyPrefix:  cfg.KeyPrefix,
		presignTTL: cfg.PresignTTL,
		retry: retryConfig{
			maxRetries:        cfg.MaxRetries,
			initialBackoff:    cfg.InitialBackoff,
			maxBackoff:        cfg.MaxBackoff,
			backoffMultiplier: cfg.BackoffMultiplier,
		},
	}, nil
}

// key maps a blob reference to a full object key.
func (s *Store) key(ref string) string {
	if s.keyPrefix == "" {
		return ref
	}
	return path.Join(s.keyPrefix, ref)
}

// Download returns a reader for the blob's content.
func (s *Store) Download(ctx context.Context, ref string) (io.ReadCloser, error) {
	key := s.key(ref)

	var lastErr error
	for attempt := 0; attempt <= s.retry.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := s.backoff(attempt - 1)
			logger.Debug("retrying S3 download",
				logger.KeyAttempt, attempt, logger.KeyBackoff, backoff, "key", key)

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		if err == nil {
			return out.Body, nil
		}

		if isNotFoundError(err) {
			return nil, fmt.Errorf("%w: %s", blob.ErrNotFound, ref)
		}
		if !isRetryableError(err) {
			return nil, fmt.Errorf("failed to download %s: %w", ref, err)
		}
		lastErr = err
	}

	return nil, fmt.Errorf("failed to download %s after %d attempts: %w",
		ref, s.retry.maxRetries+1, lastErr)
}

// DownloadTo streams the blob's content into the file at path.
func (s *Store) DownloadTo(ctx context.Context, ref string, dst string) error {
	reader, err := s.Download(ctx, ref)
	if err != nil {
		return err
	}
	defer func() { _ = reader.Close() }()

	f, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}

	if _, err := io.Copy(f, reader); err != nil {
		_ = f.Close()
		_ = os.Remove(dst)
		return fmt.Errorf("failed to write %s: %w", dst, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(dst)
		return fmt.Errorf("failed to close %s: %w", dst, err)
	}
	return nil
}

// UploadReturningURL stores data under path and returns a presigned GET URL.
func (s *Store) UploadReturningURL(ctx context.Context, data []byte, ref string) (string, error) {
	key := s.key(ref)

	var lastErr error
	for attempt := 0; attempt <= s.retry.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := s.backoff(attempt - 1)
			logger.Debug("retrying S3 upload",
				logger.KeyAttempt, attempt, logger.KeyBackoff, backoff, "key", key)

			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
		}

		_, lastErr = s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
			Body:   bytes.NewReader(data),
		})
		if lastErr == nil {
			return s.ResolveURL(ctx, ref)
		}
		if !isRetryableError(lastErr) {
			break
		}
	}

	return "", fmt.Errorf("failed to upload %s after %d attempts: %w",
		ref, s.retry.maxRetries+1, lastErr)
}

// ResolveURL returns a presigned GET URL for the blob.
func (s *Store) ResolveURL(ctx context.Context, ref string) (string, error) {
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(ref)),
	}, s3.WithPresignExpires(s.presignTTL))
	if err != nil {
		return "", fmt.Errorf("failed to presign %s: %w", ref, err)
	}
	return req.URL, nil
}

// backoff returns the delay before the given retry attempt.
func (s *Store) backoff(attempt int) time.Duration {
	d := float64(s.retry.initialBackoff)
	for i := 0; i < attempt; i++ {
		d *= s.retry.backoffMultiplier
	}
	if d > float64(s.retry.maxBackoff) {
		d = float64(s.retry.maxBackoff)
	}
	return time.Duration(d)
}
