package llm

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter(t *testing.T) {
	t.Run("basic rate limiting", func(t *testing.T) {
		// 600 per minute refills one token every 100ms.
		rl := newRateLimiter(600)
		defer rl.Close()
		ctx := context.Background()

		for i := 0; i < 600; i++ {
			require.NoError(t, rl.wait(ctx))
		}
		assert.Equal(t, 0, rl.available())

		start := time.Now()
		done := make(chan error, 1)
		go func() {
			done <- rl.wait(ctx)
		}()

		select {
		case err := <-done:
			require.NoError(t, err)
			assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond, "expected to wait for refill")
		case <-time.After(5 * time.Second):
			t.Fatal("rate limiter wait timed out")
		}
	})

	t.Run("context cancellation", func(t *testing.T) {
		rl := newRateLimiter(1)
		defer rl.Close()

		require.NoError(t, rl.wait(context.Background()))

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() {
			done <- rl.wait(ctx)
		}()

		time.Sleep(10 * time.Millisecond)
		cancel()

		err := <-done
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Contains(t, err.Error(), "rate limiter canceled")
	})

	t.Run("default rate limit", func(t *testing.T) {
		rl := newRateLimiter(0)
		defer rl.Close()

		assert.Equal(t, 60, rl.available())
	})

	t.Run("concurrent access", func(t *testing.T) {
		rl := newRateLimiter(100)
		defer rl.Close()
		ctx := context.Background()

		var acquired atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 10; j++ {
					if err := rl.wait(ctx); err == nil {
						acquired.Add(1)
					}
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(100), acquired.Load())
	})

	t.Run("close is idempotent", func(t *testing.T) {
		rl := newRateLimiter(5)
		rl.Close()
		assert.NotPanics(t, rl.Close)
	})
}
