package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Veraticus/spice-audit/internal/cli"
	"github.com/Veraticus/spice-audit/internal/common"
	"github.com/Veraticus/spice-audit/internal/config"
	"github.com/Veraticus/spice-audit/internal/engine"
	"github.com/Veraticus/spice-audit/internal/ingest"
	"github.com/Veraticus/spice-audit/internal/model"
	"github.com/Veraticus/spice-audit/internal/service"
	"github.com/Veraticus/spice-audit/internal/sheets"
	"github.com/Veraticus/spice-audit/internal/storage"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func classifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classify <file>",
		Short: "Classify every row of an expense report",
		Long: `Read an expense report (.xlsx, .xls, .csv or .json), classify each row with the
configured LLM, and print the enriched report as JSON.

Rows that cannot be parsed are skipped and rows the LLM could not classify are
kept with a default classification; both are listed in the output.`,
		Args: cobra.ExactArgs(1),
		RunE: runClassify,
	}

	cmd.Flags().StringP("output", "o", "", "write the enriched report to this file instead of stdout")
	cmd.Flags().Bool("save", false, "store the batch in the local database")
	cmd.Flags().Bool("sheets", false, "export the batch to Google Sheets")
	cmd.Flags().Int("max-rows", engine.DefaultMaxRows, "reject reports with more rows than this (0 for no limit)")
	cmd.Flags().Bool("no-progress", false, "disable the progress bar")

	_ = viper.BindPFlag("pipeline.max_rows", cmd.Flags().Lookup("max-rows"))

	return cmd
}

func runClassify(cmd *cobra.Command, args []string) error {
	outputPath, _ := cmd.Flags().GetString("output")
	save, _ := cmd.Flags().GetBool("save")
	exportSheets, _ := cmd.Flags().GetBool("sheets")
	noProgress, _ := cmd.Flags().GetBool("no-progress")

	logger := slog.Default()
	stderr := cmd.ErrOrStderr()

	// Resolve every destination before spending any LLM calls.
	var writers []service.ReportWriter
	if save {
		store, err := openStorage(cmd.Context())
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()
		writers = append(writers, storeWriter{store})
	}
	if exportSheets {
		sheetsConfig, err := config.LoadSheetsConfig(viper.GetViper())
		if err != nil {
			return common.NewUserError("Google Sheets is not configured", err)
		}
		writer, err := sheets.NewWriter(cmd.Context(), *sheetsConfig, logger)
		if err != nil {
			return fmt.Errorf("failed to create sheets writer: %w", err)
		}
		writers = append(writers, writer)
	}

	backend, err := createBackend(viper.GetViper(), logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := backend.Close(); closeErr != nil {
			logger.Warn("Failed to close LLM backend", "error", closeErr)
		}
	}()

	opts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithMaxRows(viper.GetInt("pipeline.max_rows")),
		engine.WithMaxTokens(viper.GetInt("llm.max_tokens")),
	}
	if !noProgress {
		opts = append(opts, engine.WithProgress(cli.NewProgress(stderr)))
	}
	pipeline := engine.New(backend, opts...)

	interrupts := cli.NewInterruptHandler(stderr)
	ctx := interrupts.HandleInterrupts(cmd.Context())
	defer interrupts.Stop()

	batch, err := classifyFile(ctx, pipeline, args[0])
	if err != nil {
		if interrupts.WasInterrupted() {
			return common.NewUserError("classification interrupted", err)
		}
		return err
	}

	if _, err := fmt.Fprintln(stderr, cli.RenderSummary(batch)); err != nil {
		logger.Warn("Failed to write summary", "error", err)
	}

	out := cmd.OutOrStdout()
	if outputPath != "" {
		f, err := os.Create(config.ExpandPath(outputPath))
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer func() { _ = f.Close() }()
		out = f
	}
	if err := writeBatchJSON(out, batch); err != nil {
		return err
	}

	return exportBatch(cmd.Context(), batch, writers...)
}

// classifyFile reads the report at path and runs it through the pipeline.
func classifyFile(ctx context.Context, pipeline *engine.Pipeline, path string) (*model.BatchResult, error) {
	f, err := os.Open(config.ExpandPath(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open report: %w", err)
	}
	defer func() { _ = f.Close() }()

	table, err := ingest.Read(filepath.Base(path), f)
	if err != nil {
		if errors.Is(err, ingest.ErrUnsupportedFormat) {
			return nil, common.NewUserError("unsupported report format (want .xlsx, .xls, .csv or .json)", err)
		}
		return nil, fmt.Errorf("failed to read report: %w", err)
	}

	batch, err := pipeline.Run(ctx, table)
	if err != nil {
		var schemaErr *model.SchemaError
		switch {
		case errors.As(err, &schemaErr):
			return nil, common.NewUserError(schemaErr.Error(), err)
		case errors.Is(err, model.ErrBatchTooLarge):
			return nil, common.NewUserError("report has too many rows; raise --max-rows to allow it", err)
		}
		return nil, err
	}

	return batch, nil
}

// exportBatch hands the batch to every writer, continuing past failures.
func exportBatch(ctx context.Context, batch *model.BatchResult, writers ...service.ReportWriter) error {
	var errs []error
	for _, w := range writers {
		if err := w.Write(ctx, batch); err != nil {
			common.LogError(err, "Export failed", common.Fields{"batch_id": batch.ID})
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func writeBatchJSON(w io.Writer, batch *model.BatchResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(batch); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// storeWriter saves batches to the local database.
type storeWriter struct {
	store service.BatchStore
}

func (s storeWriter) Write(ctx context.Context, batch *model.BatchResult) error {
	if err := s.store.SaveBatch(ctx, batch); err != nil {
		return fmt.Errorf("failed to save batch: %w", err)
	}
	common.LogInfo("Saved batch", common.Fields{"batch_id": batch.ID, "rows": batch.Rows()})
	return nil
}

// openStorage opens and migrates the configured database.
func openStorage(ctx context.Context) (*storage.SQLiteStorage, error) {
	store, err := storage.NewSQLiteStorage(config.ExpandPath(viper.GetString("database.path")))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}
