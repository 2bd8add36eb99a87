package audio

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryPolicyStopsAfterMaxAttempts(t *testing.T) {
	errBoom := errors.New("boom")
	calls := 0

	p := RetryPolicy{MaxAttempts: 3}
	err := p.Do(context.Background(), func(ctx context.Context, attempt int) error {
		calls++
		assert.Equal(t, calls, attempt)
		return errBoom
	})

	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, 3, calls)
}

func TestRetryPolicySucceedsMidway(t *testing.T) {
	calls := 0

	p := RetryPolicy{MaxAttempts: 5}
	err := p.Do(context.Background(), func(ctx context.Context, attempt int) error {
		calls++
		if attempt < 2 {
			return errors.New("not yet")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestRetryPolicyNonRetryableStopsImmediately(t *testing.T) {
	errFatal := errors.New("fatal")
	calls := 0

	p := RetryPolicy{
		MaxAttempts: 4,
		Retryable:   func(err error) bool { return errors.Is(err, ErrCaptureTimeout) },
	}
	err := p.Do(context.Background(), func(ctx context.Context, attempt int) error {
		calls++
		return errFatal
	})

	require.ErrorIs(t, err, errFatal)
	assert.Equal(t, 1, calls)
}

func TestRetryPolicyBackoffOnlyForSelectedErrors(t *testing.T) {
	p := RetryPolicy{
		MaxAttempts: 3,
		Backoff:     time.Hour,
		BackoffOn:   func(err error) bool { return errors.Is(err, ErrCaptureDevice) },
	}

	start := time.Now()
	err := p.Do(context.Background(), func(ctx context.Context, attempt int) error {
		return ErrCaptureTimeout
	})

	require.ErrorIs(t, err, ErrCaptureTimeout)
	assert.Less(t, time.Since(start), time.Minute)
}

func TestRetryPolicyZeroAttemptsRunsOnce(t *testing.T) {
	calls := 0
	p := RetryPolicy{}
	_ = p.Do(context.Background(), func(ctx context.Context, attempt int) error {
		calls++
		return errors.New("x")
	})
	assert.Equal(t, 1, calls)
}
