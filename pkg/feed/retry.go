package feed

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/reelfeed/reelfeed/pkg/blob"
	"github.com/reelfeed/reelfeed/pkg/docstore"
)

// isRetryableError classifies a batch-fetch failure. Transient backend
// failures (connection loss, timeouts, overload) are worth retrying
// with backoff; everything else, notably malformed records, missing
// blobs and authorization failures, is permanent and propagates
// immediately.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	// A cancelled caller must not be retried against
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	if errors.Is(err, ErrMalformedRecord) || errors.Is(err, blob.ErrNotFound) {
		return false
	}

	if errors.Is(err, docstore.ErrUnavailable) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	retryablePatterns := []string{
		"connection reset",
		"connection refused",
		"broken pipe",
		"i/o timeout",
		"service unavailable",
		"slow down",
		"too many requests",
		"temporarily unavailable",
	}
	for _, pattern := range retryablePatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
