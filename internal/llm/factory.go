package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Veraticus/spice-audit/internal/service"
)

// Providers lists the supported provider names.
func Providers() []string {
	return []string{"openai", "anthropic", "ollama", "claudecode"}
}

// NewGenerator creates a provider client based on the provided configuration.
// For ollama this also loads the model, so it can block for a while.
func NewGenerator(ctx context.Context, cfg Config) (Generator, error) {
	switch strings.ToLower(cfg.Provider) {
	case "openai":
		return newOpenAIClient(cfg)
	case "anthropic":
		return newAnthropicClient(cfg)
	case "ollama":
		client, err := newOllamaClient(cfg)
		if err != nil {
			return nil, err
		}
		if err := client.preload(ctx); err != nil {
			return nil, err
		}
		return client, nil
	case "claudecode":
		return newClaudeCodeClient(cfg)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}

// NewBackendFromConfig returns a lazily initialized Backend for cfg. Only
// the provider name is checked here; credentials and model loading are
// checked on first use.
func NewBackendFromConfig(cfg Config, logger *slog.Logger) (*Backend, error) {
	provider := strings.ToLower(cfg.Provider)
	supported := false
	for _, p := range Providers() {
		if p == provider {
			supported = true
			break
		}
	}
	if !supported {
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}

	retryOpts := service.RetryOptions{
		MaxAttempts:  cfg.MaxRetries,
		InitialDelay: cfg.RetryDelay,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
	if retryOpts.MaxAttempts == 0 {
		retryOpts.MaxAttempts = 3
	}
	if retryOpts.InitialDelay == 0 {
		retryOpts.InitialDelay = time.Second
	}

	factory := func(ctx context.Context) (Generator, error) {
		return NewGenerator(ctx, cfg)
	}

	return NewBackend(provider, factory, BackendOptions{
		Retry:          retryOpts,
		CacheTTL:       cfg.CacheTTL,
		InitTimeout:    cfg.InitTimeout,
		RequestTimeout: cfg.RequestTimeout,
		RateLimit:      cfg.RateLimit,
	}, logger), nil
}
