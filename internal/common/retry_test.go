package common

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Veraticus/spice-audit/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry(attempts int) service.RetryOptions {
	return service.RetryOptions{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     2 * time.Millisecond,
		Multiplier:   2,
	}
}

func TestWithRetry(t *testing.T) {
	t.Run("succeeds after transient failures", func(t *testing.T) {
		calls := 0
		err := WithRetry(context.Background(), func() error {
			calls++
			if calls < 3 {
				return &RetryableError{Err: errors.New("flaky"), Retryable: true}
			}
			return nil
		}, fastRetry(5))

		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("stops on permanent error", func(t *testing.T) {
		permanent := errors.New("bad request")
		calls := 0
		err := WithRetry(context.Background(), func() error {
			calls++
			return &RetryableError{Err: permanent}
		}, fastRetry(5))

		require.ErrorIs(t, err, permanent)
		assert.NotErrorIs(t, err, ErrMaxRetries)
		assert.Equal(t, 1, calls)
	})

	t.Run("wraps last error when attempts run out", func(t *testing.T) {
		cause := errors.New("timeout")
		calls := 0
		err := WithRetry(context.Background(), func() error {
			calls++
			return cause
		}, fastRetry(2))

		require.ErrorIs(t, err, ErrMaxRetries)
		assert.ErrorIs(t, err, cause)
		assert.Equal(t, 2, calls)
	})

	t.Run("context cancellation between attempts", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		opts := fastRetry(5)
		opts.InitialDelay = time.Minute
		opts.MaxDelay = time.Minute

		calls := 0
		err := WithRetry(ctx, func() error {
			calls++
			cancel()
			return errors.New("fail")
		}, opts)

		require.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	})
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(&RetryableError{Err: errors.New("x"), Retryable: true}))
	assert.False(t, IsRetryable(&RetryableError{Err: errors.New("x")}))
	assert.True(t, IsRetryable(ErrRateLimit))
	assert.True(t, IsRetryable(context.DeadlineExceeded))
	assert.False(t, IsRetryable(errors.New("plain")))
	assert.False(t, IsRetryable(&RetryableError{Err: ErrRateLimit}), "explicit flag wins")
}

func TestUserError(t *testing.T) {
	cause := errors.New("no such file")
	err := NewUserError("could not open report", cause)

	assert.EqualError(t, err, "could not open report: no such file")
	assert.ErrorIs(t, err, cause)
	assert.EqualError(t, NewUserError("plain", nil), "plain")
}
