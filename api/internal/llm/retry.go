package llm

import (
	"context"
	"time"
)

// RetryPause is the wait before the second attempt.
var RetryPause = 300 * time.Millisecond

// Retry runs fn and retries it once on error. attempt starts at 1.
// A cancelled context is returned immediately.
func Retry[T any](ctx context.Context, fn func(ctx context.Context, attempt int) (T, error)) (T, error) {
	var zero T
	var lastErr error
	for attempt := 1; attempt <= 2; attempt++ {
		v, err := fn(ctx, attempt)
		if err == nil {
			return v, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		if attempt == 1 && RetryPause > 0 {
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(RetryPause):
			}
		}
	}
	return zero, lastErr
}
