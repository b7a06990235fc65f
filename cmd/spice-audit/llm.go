package main

import (
	"log/slog"
	"os"
	"strings"

	"github.com/Veraticus/spice-audit/internal/llm"
	"github.com/spf13/viper"
)

// llmConfig builds the backend configuration from viper settings.
func llmConfig(v *viper.Viper) llm.Config {
	provider := strings.ToLower(v.GetString("llm.provider"))
	if provider == "" {
		provider = "openai"
	}

	cfg := llm.Config{
		Provider:       provider,
		Model:          v.GetString("llm.model"),
		BaseURL:        v.GetString("llm.base_url"),
		Temperature:    v.GetFloat64("llm.temperature"),
		MaxTokens:      v.GetInt("llm.max_tokens"),
		MaxRetries:     v.GetInt("llm.max_retries"),
		RetryDelay:     v.GetDuration("llm.retry_delay"),
		CacheTTL:       v.GetDuration("llm.cache_ttl"),
		InitTimeout:    v.GetDuration("llm.init_timeout"),
		RequestTimeout: v.GetDuration("llm.request_timeout"),
		RateLimit:      v.GetInt("llm.rate_limit"),
		ClaudeCodePath: v.GetString("llm.claude_code_path"),
	}

	// Check viper first, then the provider's conventional environment variable
	switch provider {
	case "openai":
		cfg.APIKey = firstNonEmpty(v.GetString("llm.openai_api_key"), os.Getenv("OPENAI_API_KEY"))
	case "anthropic":
		cfg.APIKey = firstNonEmpty(v.GetString("llm.anthropic_api_key"), os.Getenv("ANTHROPIC_API_KEY"))
	}

	return cfg
}

// createBackend returns the shared, lazily initialized generation backend.
func createBackend(v *viper.Viper, logger *slog.Logger) (*llm.Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg := llmConfig(v)
	if (cfg.Provider == "openai" || cfg.Provider == "anthropic") && cfg.APIKey == "" {
		logger.Warn("No API key configured; every row will fall back to default classification",
			"provider", cfg.Provider)
	}
	return llm.NewBackendFromConfig(cfg, logger)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
