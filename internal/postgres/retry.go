package postgres

import (
	"context"
	"time"
)

// WithRetry runs fn up to maxAttempts times with a doubling backoff.
// fn decides retryability itself: returning nil stops, any error after the
// last attempt is returned as-is.
func WithRetry(ctx context.Context, maxAttempts int, fn func(ctx context.Context) error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	backoff := 100 * time.Millisecond
	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if attempt == maxAttempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return err
}
