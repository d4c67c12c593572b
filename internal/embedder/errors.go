package embedder

import (
	"context"
	"errors"
	"fmt"
	"net"

	"google.golang.org/api/googleapi"
)

// TransientError marks a provider failure worth retrying (rate limit,
// timeout, 5xx). Anything else from a provider is terminal for the batch.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("transient provider error: %v", e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether err should be retried with backoff.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case 429, 500, 502, 503, 504:
			return true
		}
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return errors.Is(err, context.DeadlineExceeded)
}

// EmbeddingFailedError is the terminal error after retries are exhausted.
// The orchestrator fails the document run and deletes any partial vectors.
type EmbeddingFailedError struct {
	Attempts int
	Err      error
}

func (e *EmbeddingFailedError) Error() string {
	return fmt.Sprintf("embedding failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *EmbeddingFailedError) Unwrap() error { return e.Err }
