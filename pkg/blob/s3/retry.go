package s3

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// isRetryableError returns true if the error is transient and the
// operation should be retried.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	// Context errors are not retryable
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	// Network timeouts are retryable
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		// Throttling
		case "Throttling", "ThrottlingException", "RequestThrottled", "SlowDown":
			return true
		// Server errors (5xx)
		case "InternalError", "ServiceUnavailable", "ServiceException":
			return true
		// Missing object, bad credentials, malformed request
		case "NoSuchKey", "NotFound", "AccessDenied", "Forbidden", "InvalidRequest":
			return false
		}
	}

	// Fall back to message inspection for wrapped transport errors
	msg := err.Error()
	return strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "i/o timeout") ||
		strings.Contains(msg, "temporary failure") ||
		strings.Contains(msg, "503") ||
		strings.Contains(msg, "500")
}

// isNotFoundError returns true if the error indicates the object doesn't
// exist.
func isNotFoundError(err error) bool {
	if err == nil {
		return false
	}

	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		return true
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		if code == "NoSuchKey" || code == "NotFound" || code == "404" {
			return true
		}
	}

	return strings.Contains(err.Error(), "StatusCode: 404")
}
