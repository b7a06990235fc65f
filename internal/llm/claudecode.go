package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/Veraticus/spice-audit/internal/common"
)

// claudeCodeClient generates text by shelling out to the Claude Code CLI.
type claudeCodeClient struct {
	model    string
	cliPath  string
	maxTurns int
	timeout  time.Duration
}

// newClaudeCodeClient creates a new Claude Code CLI client.
func newClaudeCodeClient(cfg Config) (*claudeCodeClient, error) {
	cliPath := cfg.ClaudeCodePath
	if cliPath == "" {
		cliPath = "claude"
	}

	if _, err := exec.LookPath(cliPath); err != nil {
		return nil, fmt.Errorf("claude CLI not found at %s: ensure @anthropic-ai/claude-code is installed", cliPath)
	}

	model := cfg.Model
	if model == "" {
		model = "sonnet"
	}

	return &claudeCodeClient{
		model:    model,
		cliPath:  cliPath,
		maxTurns: 1,
		timeout:  30 * time.Second,
	}, nil
}

// Generate runs the CLI in print mode. The CLI has no output token limit
// flag, so maxTokens is ignored.
func (c *claudeCodeClient) Generate(ctx context.Context, prompt string, _ int) (string, error) {
	args := []string{
		"-p", systemPrompt + "\n\n" + prompt,
		"--output-format", "json",
		"--model", c.model,
		"--max-turns", strconv.Itoa(c.maxTurns),
	}

	cmdCtx := ctx
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		cmdCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(cmdCtx, c.cliPath, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if stderr.Len() > 0 {
			err = fmt.Errorf("claude code error: %s", strings.TrimSpace(stderr.String()))
		} else {
			err = fmt.Errorf("failed to execute claude: %w", err)
		}
		return "", &common.RetryableError{Err: err, Retryable: true}
	}

	var response claudeCodeResponse
	if err := json.Unmarshal(stdout.Bytes(), &response); err != nil {
		// Older CLI versions print plain text.
		return strings.TrimSpace(stdout.String()), nil
	}

	if response.IsError {
		return "", &common.RetryableError{Err: fmt.Errorf("claude code error in response: %s", response.Result)}
	}

	return response.Result, nil
}

// claudeCodeResponse represents the JSON response from Claude Code CLI.
type claudeCodeResponse struct {
	Result    string  `json:"result"`
	Type      string  `json:"type"`
	SessionID string  `json:"session_id"`
	IsError   bool    `json:"is_error"`
	TotalCost float64 `json:"total_cost_usd"`
}
