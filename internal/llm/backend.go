package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Veraticus/spice-audit/internal/common"
	"github.com/Veraticus/spice-audit/internal/model"
	"github.com/Veraticus/spice-audit/internal/service"
	"golang.org/x/sync/singleflight"
)

// Factory creates the underlying generator. It is the expensive step (API
// key checks, model loading) and is run at most once per Backend.
type Factory func(ctx context.Context) (Generator, error)

// BackendOptions tunes the layers a Backend puts around its generator.
type BackendOptions struct {
	Retry service.RetryOptions
	// CacheTTL of zero uses the default, a negative value disables caching.
	CacheTTL    time.Duration
	InitTimeout time.Duration
	// RequestTimeout bounds one shared generation, retries included.
	RequestTimeout time.Duration
	RateLimit      int
}

// Backend is the shared handle to a generation provider. The provider is
// created lazily on the first Generate call; concurrent first callers wait
// for that single initialization. If it fails, every call returns a
// *model.BackendError wrapping model.ErrBackendUnavailable.
type Backend struct {
	factory        Factory
	gen            Generator
	initErr        error
	logger         *slog.Logger
	cache          *responseCache
	limiter        *rateLimiter
	provider       string
	group          singleflight.Group
	retryOpts      service.RetryOptions
	initTimeout    time.Duration
	requestTimeout time.Duration
	initOnce       sync.Once
	closeOnce      sync.Once
	ready          atomic.Bool
}

// NewBackend wraps factory in a lazily initialized Backend.
func NewBackend(provider string, factory Factory, opts BackendOptions, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.InitTimeout <= 0 {
		opts.InitTimeout = 2 * time.Minute
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 5 * time.Minute
	}

	b := &Backend{
		factory:        factory,
		provider:       provider,
		logger:         logger.With("provider", provider),
		retryOpts:      opts.Retry,
		initTimeout:    opts.InitTimeout,
		requestTimeout: opts.RequestTimeout,
		limiter:        newRateLimiter(opts.RateLimit),
	}
	if opts.CacheTTL >= 0 {
		b.cache = newResponseCache(opts.CacheTTL)
	}

	return b
}

// Provider returns the provider name the backend was built for.
func (b *Backend) Provider() string {
	return b.provider
}

// Ready reports whether the generator has been created successfully.
func (b *Backend) Ready() bool {
	return b.ready.Load()
}

// Init forces initialization and reports its outcome. Generate calls it
// implicitly.
func (b *Backend) Init(ctx context.Context) error {
	_, err := b.load(ctx)
	return err
}

// Generate returns generated text for prompt. Identical concurrent requests
// share one provider call, and results are cached for the configured TTL.
func (b *Backend) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	gen, err := b.load(ctx)
	if err != nil {
		return "", err
	}

	key := cacheKey(prompt, maxTokens)
	if b.cache != nil {
		if text, ok := b.cache.get(key); ok {
			b.logger.Debug("cache hit for prompt", "key", key[:12])
			return text, nil
		}
	}

	// The shared call outlives any single caller; each waiter stops on its
	// own context.
	ch := b.group.DoChan(key, func() (any, error) {
		sharedCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.requestTimeout)
		defer cancel()
		return b.generate(sharedCtx, gen, prompt, maxTokens)
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return "", &model.BackendError{Provider: b.provider, Err: ctx.Err()}
	case res = <-ch:
	}
	if res.Err != nil {
		return "", &model.BackendError{Provider: b.provider, Err: res.Err}
	}
	if res.Shared {
		b.logger.Debug("shared in-flight generation", "key", key[:12])
	}

	text, _ := res.Val.(string)
	if b.cache != nil {
		b.cache.set(key, text)
	}
	return text, nil
}

func (b *Backend) generate(ctx context.Context, gen Generator, prompt string, maxTokens int) (string, error) {
	var text string
	err := common.WithRetry(ctx, func() error {
		if err := b.limiter.wait(ctx); err != nil {
			return &common.RetryableError{Err: err}
		}

		out, err := gen.Generate(ctx, prompt, maxTokens)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return &common.RetryableError{Err: ctxErr}
			}
			if errors.Is(err, context.Canceled) {
				return &common.RetryableError{Err: err}
			}
			return err
		}
		text = out
		return nil
	}, b.retryOpts)
	if err != nil {
		return "", err
	}
	return text, nil
}

func (b *Backend) load(ctx context.Context) (Generator, error) {
	b.initOnce.Do(func() {
		// Init outlives the first caller's context.
		initCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.initTimeout)
		defer cancel()

		start := time.Now()
		b.gen, b.initErr = b.safeFactory(initCtx)
		if b.initErr == nil && b.gen == nil {
			b.initErr = errors.New("factory returned no generator")
		}
		if b.initErr != nil {
			b.logger.Error("generation backend failed to initialize", "error", b.initErr)
			return
		}

		b.ready.Store(true)
		b.logger.Info("generation backend initialized", "elapsed", time.Since(start))
	})

	if b.initErr != nil {
		return nil, &model.BackendError{Provider: b.provider, Err: b.initErr}
	}
	return b.gen, nil
}

func (b *Backend) safeFactory(ctx context.Context) (gen Generator, err error) {
	defer func() {
		if r := recover(); r != nil {
			gen, err = nil, fmt.Errorf("factory panicked: %v", r)
		}
	}()
	return b.factory(ctx)
}

// Close stops background goroutines and closes the generator if it holds
// resources.
func (b *Backend) Close() error {
	var err error
	b.closeOnce.Do(func() {
		b.limiter.Close()
		if b.cache != nil {
			b.cache.Close()
		}
		if !b.ready.Load() {
			return
		}
		if closer, ok := b.gen.(io.Closer); ok {
			err = closer.Close()
		}
	})
	return err
}
