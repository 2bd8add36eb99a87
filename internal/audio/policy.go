package audio

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"
)

// RetryPolicy is shared by the primary capture and every fallback stage.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
	// Retryable reports whether a failed attempt may be repeated. Nil retries everything.
	Retryable func(error) bool
	// BackoffOn selects the failures that wait Backoff before the next attempt;
	// the rest retry immediately. Nil backs off after every failure.
	BackoffOn func(error) bool
}

// Do runs fn until it succeeds, fails with a non-retryable error or runs out of
// attempts. The last error is returned unwrapped.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var (
		attempt int
		last    error
	)

	delay := retry.BackoffFunc(func() (time.Duration, bool) {
		if p.BackoffOn == nil || p.BackoffOn(last) {
			return p.Backoff, false
		}
		return 0, false
	})

	return retry.Do(ctx, retry.WithMaxRetries(uint64(attempts-1), delay), func(ctx context.Context) error {
		attempt++
		err := fn(ctx, attempt)
		last = err
		if err == nil {
			return nil
		}
		if p.Retryable == nil || p.Retryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}
