package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Veraticus/spice-audit/internal/common"
	"github.com/Veraticus/spice-audit/internal/model"
	"github.com/Veraticus/spice-audit/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// fakeGenerator answers every prompt with respond and counts calls.
type fakeGenerator struct {
	respond func(call int, prompt string) (string, error)
	calls   atomic.Int32
}

func (f *fakeGenerator) Generate(_ context.Context, prompt string, _ int) (string, error) {
	n := int(f.calls.Add(1))
	if f.respond == nil {
		return `{"category":"Travel"}`, nil
	}
	return f.respond(n, prompt)
}

func testBackendOptions() BackendOptions {
	return BackendOptions{
		Retry: service.RetryOptions{
			MaxAttempts:  3,
			InitialDelay: time.Millisecond,
			MaxDelay:     5 * time.Millisecond,
			Multiplier:   2,
		},
		RateLimit: 1000,
	}
}

func newTestBackend(t *testing.T, factory Factory, opts BackendOptions) *Backend {
	t.Helper()
	b := NewBackend("fake", factory, opts, nil)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestBackend_LazySingleInit(t *testing.T) {
	var inits atomic.Int32
	gen := &fakeGenerator{}
	b := newTestBackend(t, func(context.Context) (Generator, error) {
		inits.Add(1)
		time.Sleep(50 * time.Millisecond)
		return gen, nil
	}, testBackendOptions())

	assert.False(t, b.Ready())
	assert.Equal(t, int32(0), inits.Load(), "construction must not initialize")

	var wg sync.WaitGroup
	errs := make([]error, 20)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = b.Generate(context.Background(), fmt.Sprintf("prompt %d", i), 10)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), inits.Load())
	assert.Equal(t, int32(20), gen.calls.Load())
	assert.True(t, b.Ready())
}

func TestBackend_InitFailure(t *testing.T) {
	var inits atomic.Int32
	loadErr := errors.New("weights not found")
	b := newTestBackend(t, func(context.Context) (Generator, error) {
		inits.Add(1)
		return nil, loadErr
	}, testBackendOptions())

	for i := 0; i < 3; i++ {
		_, err := b.Generate(context.Background(), "prompt", 10)
		require.Error(t, err)
		assert.ErrorIs(t, err, model.ErrBackendUnavailable)
		assert.ErrorIs(t, err, loadErr)

		var backendErr *model.BackendError
		require.ErrorAs(t, err, &backendErr)
		assert.Equal(t, "fake", backendErr.Provider)
	}

	assert.Equal(t, int32(1), inits.Load(), "failed init is not retried")
	assert.False(t, b.Ready())
	assert.ErrorIs(t, b.Init(context.Background()), model.ErrBackendUnavailable)
}

func TestBackend_FactoryPanic(t *testing.T) {
	b := newTestBackend(t, func(context.Context) (Generator, error) {
		panic("boom")
	}, testBackendOptions())

	_, err := b.Generate(context.Background(), "prompt", 10)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrBackendUnavailable)
	assert.Contains(t, err.Error(), "boom")
}

func TestBackend_InitIgnoresCallerCancellation(t *testing.T) {
	b := newTestBackend(t, func(ctx context.Context) (Generator, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline, "init runs under its own timeout")
		return &fakeGenerator{}, nil
	}, testBackendOptions())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, b.Init(ctx))
	assert.True(t, b.Ready())
}

func TestBackend_Cache(t *testing.T) {
	t.Run("repeated prompt served from cache", func(t *testing.T) {
		gen := &fakeGenerator{}
		b := newTestBackend(t, func(context.Context) (Generator, error) { return gen, nil }, testBackendOptions())

		for i := 0; i < 3; i++ {
			text, err := b.Generate(context.Background(), "same prompt", 10)
			require.NoError(t, err)
			assert.Equal(t, `{"category":"Travel"}`, text)
		}
		assert.Equal(t, int32(1), gen.calls.Load())

		_, err := b.Generate(context.Background(), "same prompt", 20)
		require.NoError(t, err)
		assert.Equal(t, int32(2), gen.calls.Load(), "token limit is part of the key")
	})

	t.Run("negative ttl disables cache", func(t *testing.T) {
		gen := &fakeGenerator{}
		opts := testBackendOptions()
		opts.CacheTTL = -1
		b := newTestBackend(t, func(context.Context) (Generator, error) { return gen, nil }, opts)

		for i := 0; i < 3; i++ {
			_, err := b.Generate(context.Background(), "same prompt", 10)
			require.NoError(t, err)
		}
		assert.Equal(t, int32(3), gen.calls.Load())
	})
}

func TestBackend_Retry(t *testing.T) {
	t.Run("transient errors are retried", func(t *testing.T) {
		gen := &fakeGenerator{respond: func(call int, _ string) (string, error) {
			if call < 3 {
				return "", &common.RetryableError{Err: errors.New("503"), Retryable: true}
			}
			return "ok", nil
		}}
		b := newTestBackend(t, func(context.Context) (Generator, error) { return gen, nil }, testBackendOptions())

		text, err := b.Generate(context.Background(), "prompt", 10)
		require.NoError(t, err)
		assert.Equal(t, "ok", text)
		assert.Equal(t, int32(3), gen.calls.Load())
	})

	t.Run("permanent errors are not retried", func(t *testing.T) {
		gen := &fakeGenerator{respond: func(int, string) (string, error) {
			return "", &common.RetryableError{Err: errors.New("400 bad request")}
		}}
		b := newTestBackend(t, func(context.Context) (Generator, error) { return gen, nil }, testBackendOptions())

		_, err := b.Generate(context.Background(), "prompt", 10)
		require.Error(t, err)
		assert.ErrorIs(t, err, model.ErrBackendUnavailable)
		assert.Equal(t, int32(1), gen.calls.Load())
	})

	t.Run("exhausted retries", func(t *testing.T) {
		gen := &fakeGenerator{respond: func(int, string) (string, error) {
			return "", &common.RetryableError{Err: errors.New("timeout"), Retryable: true}
		}}
		b := newTestBackend(t, func(context.Context) (Generator, error) { return gen, nil }, testBackendOptions())

		_, err := b.Generate(context.Background(), "prompt", 10)
		require.Error(t, err)
		assert.ErrorIs(t, err, common.ErrMaxRetries)
		assert.ErrorIs(t, err, model.ErrBackendUnavailable)
		assert.Equal(t, int32(3), gen.calls.Load())
	})

	t.Run("canceled generation is not retried", func(t *testing.T) {
		gen := &fakeGenerator{respond: func(int, string) (string, error) {
			return "", fmt.Errorf("transport: %w", context.Canceled)
		}}
		b := newTestBackend(t, func(context.Context) (Generator, error) { return gen, nil }, testBackendOptions())

		_, err := b.Generate(context.Background(), "prompt", 10)
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
		assert.NotErrorIs(t, err, common.ErrMaxRetries)
		assert.Equal(t, int32(1), gen.calls.Load())
	})

	t.Run("errors are not cached", func(t *testing.T) {
		gen := &fakeGenerator{respond: func(call int, _ string) (string, error) {
			if call == 1 {
				return "", &common.RetryableError{Err: errors.New("400")}
			}
			return "ok", nil
		}}
		b := newTestBackend(t, func(context.Context) (Generator, error) { return gen, nil }, testBackendOptions())

		_, err := b.Generate(context.Background(), "prompt", 10)
		require.Error(t, err)
		text, err := b.Generate(context.Background(), "prompt", 10)
		require.NoError(t, err)
		assert.Equal(t, "ok", text)
	})
}

func TestBackend_SharesInflightRequests(t *testing.T) {
	release := make(chan struct{})
	gen := &fakeGenerator{respond: func(int, string) (string, error) {
		<-release
		return "shared", nil
	}}
	opts := testBackendOptions()
	opts.CacheTTL = -1
	b := newTestBackend(t, func(context.Context) (Generator, error) { return gen, nil }, opts)
	require.NoError(t, b.Init(context.Background()))

	var wg sync.WaitGroup
	results := make([]string, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = b.Generate(context.Background(), "same", 10)
		}(i)
	}

	// Let every caller reach the in-flight group before releasing.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for _, r := range results {
		assert.Equal(t, "shared", r)
	}
	assert.Equal(t, int32(1), gen.calls.Load())
}

// blockingGenerator holds every call until release is closed or its context
// ends, signalling started on entry.
type blockingGenerator struct {
	started chan struct{}
	release chan struct{}
	calls   atomic.Int32
}

func (g *blockingGenerator) Generate(ctx context.Context, _ string, _ int) (string, error) {
	g.calls.Add(1)
	g.started <- struct{}{}
	select {
	case <-g.release:
		return "shared", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func TestBackend_CallerCancellationDoesNotLeak(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	gen := &blockingGenerator{started: make(chan struct{}, 1), release: make(chan struct{})}
	opts := testBackendOptions()
	opts.CacheTTL = -1
	b := NewBackend("fake", func(context.Context) (Generator, error) { return gen, nil }, opts, nil)
	defer func() { _ = b.Close() }()
	require.NoError(t, b.Init(context.Background()))

	ctxA, cancelA := context.WithCancel(context.Background())
	defer cancelA()
	errA := make(chan error, 1)
	go func() {
		_, err := b.Generate(ctxA, "same", 10)
		errA <- err
	}()
	<-gen.started

	type outcome struct {
		text string
		err  error
	}
	resultB := make(chan outcome, 1)
	go func() {
		text, err := b.Generate(context.Background(), "same", 10)
		resultB <- outcome{text, err}
	}()

	// Let the second caller join the in-flight call before the first leaves.
	time.Sleep(50 * time.Millisecond)
	cancelA()

	select {
	case err := <-errA:
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("canceled caller did not return")
	}

	close(gen.release)
	got := <-resultB
	require.NoError(t, got.err)
	assert.Equal(t, "shared", got.text)
	assert.Equal(t, int32(1), gen.calls.Load())
}

func TestBackend_CloseStopsGoroutines(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	b := NewBackend("fake", func(context.Context) (Generator, error) {
		return &fakeGenerator{}, nil
	}, testBackendOptions(), nil)

	_, err := b.Generate(context.Background(), "prompt", 10)
	require.NoError(t, err)

	require.NoError(t, b.Close())
	require.NoError(t, b.Close())
}

type closingGenerator struct {
	fakeGenerator
	closed atomic.Bool
}

func (c *closingGenerator) Close() error {
	c.closed.Store(true)
	return nil
}

func TestBackend_ClosesGenerator(t *testing.T) {
	gen := &closingGenerator{}
	b := NewBackend("fake", func(context.Context) (Generator, error) { return gen, nil }, testBackendOptions(), nil)

	require.NoError(t, b.Init(context.Background()))
	require.NoError(t, b.Close())
	assert.True(t, gen.closed.Load())
}
