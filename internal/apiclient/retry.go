package apiclient

import (
	"context"
	"time"

	"eventhub/internal/shared/apperr"
)

// Retry runs fn up to maxAttempts times while it fails with a retryable error,
// sleeping backoff*attempt between tries (linear backoff). It stops early when
// ctx is done. Only use it for calls that are safe to repeat.
func Retry(ctx context.Context, maxAttempts int, backoff time.Duration, fn func(ctx context.Context) error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return err
			case <-time.After(backoff * time.Duration(attempt)):
			}
		}
		err = fn(ctx)
		if err == nil || !apperr.IsRetryable(err) {
			return err
		}
	}
	return err
}
