// Package relay forwards uploaded files to a remote prediction endpoint.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/Veraticus/spice-audit/internal/common"
	"github.com/Veraticus/spice-audit/internal/service"
	"github.com/google/uuid"
)

// ErrNoEndpoint is returned when no remote endpoint is configured.
var ErrNoEndpoint = errors.New("relay endpoint not configured")

// Config configures a Relay.
type Config struct {
	Endpoint   string
	TempDir    string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

// Relay stages an upload in a temporary file and posts it to Endpoint as
// the multipart field "file".
type Relay struct {
	client *http.Client
	logger *slog.Logger
	config Config
}

// New creates a Relay. A zero Timeout defaults to two minutes.
func New(config Config, logger *slog.Logger) (*Relay, error) {
	if config.Endpoint == "" {
		return nil, ErrNoEndpoint
	}
	if config.Timeout <= 0 {
		config.Timeout = 2 * time.Minute
	}
	if config.TempDir == "" {
		config.TempDir = os.TempDir()
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Relay{
		client: &http.Client{Timeout: config.Timeout},
		logger: logger,
		config: config,
	}, nil
}

// Forward copies r to a temporary file, sends it to the remote endpoint and
// returns the response body unchanged. The temporary file is removed
// whether or not forwarding succeeds. A response that is not JSON is
// returned as a JSON string.
func (rl *Relay) Forward(ctx context.Context, filename string, r io.Reader) (json.RawMessage, error) {
	path, err := rl.stage(filename, r)
	if path != "" {
		defer func() {
			if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
				rl.logger.Warn("Failed to remove relay temp file", "path", path, "error", rmErr)
			}
		}()
	}
	if err != nil {
		return nil, err
	}

	var body []byte
	err = common.WithRetry(ctx, func() error {
		var postErr error
		body, postErr = rl.post(ctx, path, filepath.Base(filename))
		return postErr
	}, service.RetryOptions{
		MaxAttempts:  rl.config.MaxRetries,
		InitialDelay: rl.config.RetryDelay,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to forward %s: %w", filename, err)
	}

	if json.Valid(body) {
		return json.RawMessage(body), nil
	}
	quoted, err := json.Marshal(string(body))
	if err != nil {
		return nil, fmt.Errorf("failed to encode remote result: %w", err)
	}
	return quoted, nil
}

// stage writes r to a uniquely named file in the temp dir. The returned
// path is set whenever a file was created, even on error.
func (rl *Relay) stage(filename string, r io.Reader) (string, error) {
	name := fmt.Sprintf("relay-%s-%s", uuid.NewString(), filepath.Base(filename))
	path := filepath.Join(rl.config.TempDir, name)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600) // #nosec G304
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}

	n, err := io.Copy(f, r)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return path, fmt.Errorf("failed to stage upload: %w", err)
	}
	if n == 0 {
		return path, common.ErrEmptyUpload
	}

	rl.logger.Debug("Staged upload", "path", path, "bytes", n)
	return path, nil
}

func (rl *Relay) post(ctx context.Context, path, filename string) ([]byte, error) {
	f, err := os.Open(path) // #nosec G304
	if err != nil {
		return nil, &common.RetryableError{Err: fmt.Errorf("failed to open staged upload: %w", err)}
	}
	defer func() { _ = f.Close() }()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile("file", filename)
		if err == nil {
			_, err = io.Copy(part, f)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rl.config.Endpoint, pr)
	if err != nil {
		_ = pr.Close()
		return nil, &common.RetryableError{Err: fmt.Errorf("failed to build request: %w", err)}
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := rl.client.Do(req)
	if err != nil {
		return nil, &common.RetryableError{Err: fmt.Errorf("relay request failed: %w", err), Retryable: true}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &common.RetryableError{Err: fmt.Errorf("failed to read relay response: %w", err), Retryable: true}
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &common.RetryableError{Err: fmt.Errorf("remote returned %d: %w", resp.StatusCode, common.ErrRateLimit), Retryable: true}
	case resp.StatusCode >= 500:
		return nil, &common.RetryableError{Err: fmt.Errorf("remote returned %d: %s", resp.StatusCode, body), Retryable: true}
	case resp.StatusCode >= 300:
		return nil, &common.RetryableError{Err: fmt.Errorf("remote returned %d: %s", resp.StatusCode, body)}
	}

	return body, nil
}
