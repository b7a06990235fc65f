package llm

import (
	"context"
	"time"
)

// Generator is a text generation capability. It accepts a prompt and returns
// the raw generated text, which may or may not contain a usable payload.
type Generator interface {
	Generate(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// Config holds configuration for a generation backend.
type Config struct {
	Provider       string
	APIKey         string
	Model          string
	BaseURL        string
	ClaudeCodePath string
	MaxRetries     int
	RetryDelay     time.Duration
	CacheTTL       time.Duration
	InitTimeout    time.Duration
	RequestTimeout time.Duration
	RateLimit      int
	Temperature    float64
	MaxTokens      int
}

const (
	defaultTemperature = 0.3
	defaultMaxTokens   = 150
)

func (c Config) temperature() float64 {
	if c.Temperature == 0 {
		return defaultTemperature
	}
	return c.Temperature
}

func (c Config) maxTokens() int {
	if c.MaxTokens <= 0 {
		return defaultMaxTokens
	}
	return c.MaxTokens
}

func (c Config) baseURL(fallback string) string {
	if c.BaseURL == "" {
		return fallback
	}
	return c.BaseURL
}
