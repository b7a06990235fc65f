package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/Veraticus/spice-audit/internal/cli"
	"github.com/Veraticus/spice-audit/internal/common"
	"github.com/Veraticus/spice-audit/internal/model"
	"github.com/spf13/cobra"
)

func historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [batch-id]",
		Short: "List stored batches or show one",
		Long: `Without arguments, list the batches saved with "classify --save" or by the
HTTP service, newest first. With a batch id, print that batch's enriched rows
and row diagnostics as JSON.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistory,
	}

	cmd.Flags().IntP("limit", "n", 20, "number of batches to list (0 for all)")

	return cmd
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	store, err := openStorage(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if len(args) == 1 {
		batch, err := store.GetBatch(ctx, args[0])
		if errors.Is(err, common.ErrNotFound) {
			return common.NewUserError(fmt.Sprintf("no batch with id %s", args[0]), err)
		}
		if err != nil {
			return err
		}
		expenses, err := store.GetBatchExpenses(ctx, batch.ID)
		if err != nil {
			return err
		}
		diagnostics, err := store.GetBatchErrors(ctx, batch.ID)
		if err != nil {
			return err
		}
		return writeBatchDetail(cmd.OutOrStdout(), batch, expenses, diagnostics)
	}

	limit, _ := cmd.Flags().GetInt("limit")
	batches, err := store.ListBatches(ctx, limit)
	if err != nil {
		return err
	}
	return writeBatchList(cmd.OutOrStdout(), batches)
}

func writeBatchList(w io.Writer, batches []model.BatchSummary) error {
	if len(batches) == 0 {
		_, err := fmt.Fprintln(w, cli.FormatInfo("No batches stored yet"))
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "BATCH\tSTARTED\tSOURCE\tROWS\tCLASSIFIED\tDEGRADED\tSKIPPED")
	for _, b := range batches {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%d\n",
			b.ID,
			b.StartedAt.Local().Format("2006-01-02 15:04"),
			b.Source,
			b.Rows,
			b.Classified,
			b.Degraded,
			b.Skipped)
	}
	return tw.Flush()
}

type batchDetail struct {
	Batch    *model.BatchSummary     `json:"batch"`
	Expenses []model.EnrichedExpense `json:"expenses"`
	Errors   []model.RowDiagnostic   `json:"errors"`
}

func writeBatchDetail(w io.Writer, batch *model.BatchSummary, expenses []model.EnrichedExpense, diagnostics []model.RowDiagnostic) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(batchDetail{Batch: batch, Expenses: expenses, Errors: diagnostics}); err != nil {
		return fmt.Errorf("failed to write batch: %w", err)
	}
	return nil
}
