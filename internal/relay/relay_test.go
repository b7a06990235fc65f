package relay

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Veraticus/spice-audit/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRelay(t *testing.T, handler http.HandlerFunc) (*Relay, string) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	rl, err := New(Config{
		Endpoint:   srv.URL + "/predict",
		TempDir:    dir,
		MaxRetries: 2,
		RetryDelay: time.Millisecond,
	}, nil)
	require.NoError(t, err)
	return rl, dir
}

func assertNoTempFiles(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "temporary upload copies must be removed")
}

func TestForward(t *testing.T) {
	rl, dir := newTestRelay(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/predict", r.URL.Path)

		file, header, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer func() { _ = file.Close() }()
		data, _ := io.ReadAll(file)

		assert.Equal(t, "receipt.png", header.Filename)
		assert.Equal(t, "PNGDATA", string(data))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"label":"receipt","score":0.97}`)
	})

	result, err := rl.Forward(context.Background(), "../uploads/receipt.png", strings.NewReader("PNGDATA"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"label":"receipt","score":0.97}`, string(result))
	assertNoTempFiles(t, dir)
}

func TestForward_NonJSONResult(t *testing.T) {
	rl, dir := newTestRelay(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "receipt")
	})

	result, err := rl.Forward(context.Background(), "r.png", strings.NewReader("x"))
	require.NoError(t, err)

	var s string
	require.NoError(t, json.Unmarshal(result, &s))
	assert.Equal(t, "receipt", s)
	assertNoTempFiles(t, dir)
}

func TestForward_RemoteFailureCleansUp(t *testing.T) {
	var calls atomic.Int32
	rl, dir := newTestRelay(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "bad file", http.StatusBadRequest)
	})

	_, err := rl.Forward(context.Background(), "r.png", strings.NewReader("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.Equal(t, int32(1), calls.Load(), "client errors are not retried")
	assertNoTempFiles(t, dir)
}

func TestForward_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	rl, dir := newTestRelay(t, func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "warming up", http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, `"ok"`)
	})

	result, err := rl.Forward(context.Background(), "r.png", strings.NewReader("x"))
	require.NoError(t, err)
	assert.Equal(t, `"ok"`, string(result))
	assert.Equal(t, int32(2), calls.Load())
	assertNoTempFiles(t, dir)
}

func TestForward_EmptyUpload(t *testing.T) {
	rl, dir := newTestRelay(t, func(w http.ResponseWriter, _ *http.Request) {
		t.Error("empty uploads must not be forwarded")
	})

	_, err := rl.Forward(context.Background(), "r.png", strings.NewReader(""))
	require.ErrorIs(t, err, common.ErrEmptyUpload)
	assertNoTempFiles(t, dir)
}

func TestNew_RequiresEndpoint(t *testing.T) {
	_, err := New(Config{}, nil)
	assert.ErrorIs(t, err, ErrNoEndpoint)
}
