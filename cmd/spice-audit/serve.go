package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/Veraticus/spice-audit/internal/config"
	"github.com/Veraticus/spice-audit/internal/engine"
	"github.com/Veraticus/spice-audit/internal/metrics"
	"github.com/Veraticus/spice-audit/internal/relay"
	"github.com/Veraticus/spice-audit/internal/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the classification HTTP service",
		Long: `Serve the classification pipeline over HTTP.

Endpoints:
  GET  /api/v1/health              backend readiness
  POST /api/v1/classify            classify an uploaded report or JSON rows
  GET  /api/v1/batches             list stored batches
  GET  /api/v1/batches/{batchID}   show one stored batch
  POST /upload/                    forward a file to the configured relay endpoint
  GET  /metrics                    Prometheus metrics`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}

	cmd.Flags().String("addr", ":8080", "address to listen on")
	cmd.Flags().Bool("no-store", false, "do not record batches in the local database")

	_ = viper.BindPFlag("server.addr", cmd.Flags().Lookup("addr"))

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	noStore, _ := cmd.Flags().GetBool("no-store")
	logger := slog.Default()
	ctx := cmd.Context()

	backend, err := createBackend(viper.GetViper(), logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := backend.Close(); closeErr != nil {
			logger.Warn("Failed to close LLM backend", "error", closeErr)
		}
	}()

	recorder := metrics.New(prometheus.DefaultRegisterer)
	recorder.SetBackendReady(backend.Ready())

	pipeline := engine.New(backend,
		engine.WithLogger(logger),
		engine.WithMetrics(recorder),
		engine.WithMaxRows(viper.GetInt("pipeline.max_rows")),
		engine.WithMaxTokens(viper.GetInt("llm.max_tokens")),
	)

	deps := server.Deps{
		Pipeline: pipeline,
		Backend:  backend,
		Gatherer: prometheus.DefaultGatherer,
		Logger:   logger,
	}

	if !noStore {
		store, err := openStorage(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()
		deps.Store = store
	}

	fileRelay, err := relay.New(relayConfig(viper.GetViper()), logger)
	switch {
	case errors.Is(err, relay.ErrNoEndpoint):
		logger.Info("No relay endpoint configured; /upload/ is disabled")
	case err != nil:
		return fmt.Errorf("failed to create relay: %w", err)
	default:
		deps.Relay = fileRelay
	}

	srv, err := server.New(serverConfig(viper.GetViper()), deps)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	logger.Info("Serving expense classification",
		"provider", backend.Provider(),
		"store", deps.Store != nil,
		"relay", deps.Relay != nil)

	return srv.Run(ctx, viper.GetString("server.addr"))
}

func serverConfig(v *viper.Viper) server.Config {
	cfg := server.DefaultConfig()
	if origins := v.GetStringSlice("server.cors_origins"); len(origins) > 0 {
		cfg.CORSOrigins = origins
	}
	if d := v.GetDuration("server.request_timeout"); d > 0 {
		cfg.RequestTimeout = d
	}
	if n := v.GetInt64("server.max_upload_bytes"); n > 0 {
		cfg.MaxUploadBytes = n
	}
	return cfg
}

func relayConfig(v *viper.Viper) relay.Config {
	cfg := relay.Config{
		Endpoint:   v.GetString("relay.endpoint"),
		Timeout:    v.GetDuration("relay.timeout"),
		MaxRetries: v.GetInt("relay.max_retries"),
		RetryDelay: v.GetDuration("relay.retry_delay"),
	}
	if dir := v.GetString("relay.temp_dir"); dir != "" {
		cfg.TempDir = config.ExpandPath(dir)
	}
	return cfg
}
