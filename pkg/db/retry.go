package db

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryTransient runs fn until it succeeds, returns a non-transient error or
// maxAttempts is reached. Waits grow exponentially from initial.
func RetryTransient(ctx context.Context, maxAttempts int, initial time.Duration, fn func(attempt int) error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	policy := backoff.NewExponentialBackOff()
	if initial > 0 {
		policy.InitialInterval = initial
	}
	policy.MaxInterval = 2 * time.Second

	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		err := fn(attempt)
		if err != nil && !IsTransient(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(uint(maxAttempts)),
		backoff.WithMaxElapsedTime(0),
	)
	return err
}
