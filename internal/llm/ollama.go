package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Veraticus/spice-audit/internal/common"
)

const ollamaBaseURL = "http://localhost:11434"

// ollamaClient generates text with a local Ollama model server. Loading the
// model weights is the expensive step, so the client preloads on creation.
type ollamaClient struct {
	httpClient  *http.Client
	model       string
	baseURL     string
	temperature float64
	maxTokens   int
}

func newOllamaClient(cfg Config) (*ollamaClient, error) {
	model := cfg.Model
	if model == "" {
		model = "llama3.2"
	}

	return &ollamaClient{
		model:       model,
		baseURL:     strings.TrimRight(cfg.baseURL(ollamaBaseURL), "/"),
		temperature: cfg.temperature(),
		maxTokens:   cfg.maxTokens(),
		httpClient:  newHTTPClient(2 * time.Minute),
	}, nil
}

// preload asks the server to load the model into memory. A generate request
// without a prompt loads the model and returns immediately.
func (c *ollamaClient) preload(ctx context.Context) error {
	_, err := postJSON(ctx, c.httpClient, c.baseURL+"/api/generate", nil, map[string]any{
		"model": c.model,
	}, "ollama")
	if err != nil {
		return fmt.Errorf("failed to load model %s: %w", c.model, err)
	}
	return nil
}

// Generate runs a single non-streaming completion.
func (c *ollamaClient) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}

	requestBody := map[string]any{
		"model":  c.model,
		"system": systemPrompt,
		"prompt": prompt,
		"stream": false,
		"options": map[string]any{
			"temperature": c.temperature,
			"num_predict": maxTokens,
		},
	}

	body, err := postJSON(ctx, c.httpClient, c.baseURL+"/api/generate", nil, requestBody, "ollama")
	if err != nil {
		return "", err
	}

	var response ollamaResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return "", &common.RetryableError{Err: fmt.Errorf("failed to parse response: %w", err)}
	}

	return response.Response, nil
}

type ollamaResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
}
