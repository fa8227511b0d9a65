package httpclient

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"math"
	"time"
)

// permanentError marks errors that retrying cannot fix (4xx responses).
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so RetryWithBackoff stops immediately.
func Permanent(err error) error {
	return &permanentError{err: err}
}

// RetryWithBackoff retries fn with exponential backoff and ±25% jitter.
// Stops immediately on permanent errors and context cancellation.
// maxRetries = 0 means a single attempt.
func RetryWithBackoff(ctx context.Context, maxRetries int, initialDelay time.Duration, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		var permErr *permanentError
		if errors.As(err, &permErr) {
			return permErr.Unwrap()
		}

		if attempt == maxRetries {
			break
		}

		delay := time.Duration(float64(initialDelay) * math.Pow(2, float64(attempt)))

		var b [8]byte
		_, _ = rand.Read(b[:])
		jitterValue := int64(binary.LittleEndian.Uint64(b[:]))
		if jitterValue < 0 {
			jitterValue = -jitterValue
		}
		jitter := time.Duration(jitterValue % (int64(delay) / 2))
		delay = delay - delay/4 + jitter

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return lastErr
}
