package persistence

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/refmd-collab/docserver/internal/apperr"
)

// retryPolicy is the backoff schedule for transient persistence
// errors: 100ms base, factor 2, capped at 5s, at most 3 attempts
// total.
func retryPolicy() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.Multiplier = 2
	b.MaxInterval = 5 * time.Second
	return b
}

// withRetry runs op, retrying on apperr.IsTransient errors per
// retryPolicy, and converting a non-transient error into a permanent
// backoff failure so it aborts immediately instead of exhausting
// retries pointlessly.
func withRetry[T any](ctx context.Context, op func() (T, error)) (T, error) {
	wrapped := func() (T, error) {
		v, err := op()
		if err != nil && !apperr.IsTransient(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}
	return backoff.Retry(ctx, wrapped, backoff.WithBackOff(retryPolicy()), backoff.WithMaxTries(3))
}

// withRetryVoid is withRetry for operations with no useful return value.
func withRetryVoid(ctx context.Context, op func() error) error {
	_, err := withRetry(ctx, func() (struct{}, error) {
		return struct{}{}, op()
	})
	return err
}
