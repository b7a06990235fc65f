package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Veraticus/spice-audit/internal/common"
	"github.com/Veraticus/spice-audit/internal/model"
)

// SaveBatch stores a batch header with its expenses and row diagnostics in
// one transaction. Saving the same batch ID twice fails with
// common.ErrDuplicateEntry.
func (s *SQLiteStorage) SaveBatch(ctx context.Context, batch *model.BatchResult) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateBatch(batch); err != nil {
		return err
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM batches WHERE id = ?`, batch.ID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check existing batch: %w", err)
		}
		if exists > 0 {
			return fmt.Errorf("batch %s: %w", batch.ID, common.ErrDuplicateEntry)
		}

		summary := batch.Summary()
		_, err = tx.ExecContext(ctx, `
			INSERT INTO batches (id, source, started_at, finished_at, row_count, classified, degraded, skipped)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			summary.ID, summary.Source, summary.StartedAt, summary.FinishedAt,
			summary.Rows, summary.Classified, summary.Degraded, summary.Skipped)
		if err != nil {
			return fmt.Errorf("failed to insert batch: %w", err)
		}

		if err := saveExpensesTx(ctx, tx, batch.ID, batch.Expenses); err != nil {
			return err
		}

		diagnostics := make([]model.RowDiagnostic, 0, len(batch.Skipped)+len(batch.Warnings))
		diagnostics = append(diagnostics, batch.Skipped...)
		diagnostics = append(diagnostics, batch.Warnings...)
		return saveDiagnosticsTx(ctx, tx, batch.ID, diagnostics)
	})
}

func saveExpensesTx(ctx context.Context, tx *sql.Tx, batchID string, expenses []model.EnrichedExpense) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO expenses (
			batch_id, position, transaction_date, business_type, business_purpose,
			vendor, payment_type, policy_violation_reason, amount, personal_expense,
			policy_violation_flag, receipt_available, pre_approved, category,
			is_personal, classification_degraded
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare expense insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i, e := range expenses {
		_, err := stmt.ExecContext(ctx,
			batchID, i, e.Date, e.BusinessType, e.BusinessPurpose,
			e.Vendor, e.PaymentType, e.PolicyViolationReason, e.Amount, e.PersonalExpense,
			e.PolicyViolationFlag, e.ReceiptAvailable, e.PreApproved, e.Category,
			e.IsPersonal, e.ClassificationDegraded)
		if err != nil {
			return fmt.Errorf("failed to insert expense %d: %w", i, err)
		}
	}
	return nil
}

func saveDiagnosticsTx(ctx context.Context, tx *sql.Tx, batchID string, diagnostics []model.RowDiagnostic) error {
	for _, diag := range diagnostics {
		if err := validateDiagnostic(diag); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO row_errors (batch_id, row_index, source_line, outcome, field, message)
			VALUES (?, ?, ?, ?, ?, ?)`,
			batchID, diag.Row, diag.Line, diag.Outcome.String(), diag.Field, diag.Message)
		if err != nil {
			return fmt.Errorf("failed to insert diagnostic for row %d: %w", diag.Row, err)
		}
	}
	return nil
}

// GetBatch retrieves a batch header by ID.
func (s *SQLiteStorage) GetBatch(ctx context.Context, id string) (*model.BatchSummary, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, source, started_at, finished_at, row_count, classified, degraded, skipped
		FROM batches WHERE id = ?`, id)

	summary, err := scanBatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("batch %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get batch: %w", err)
	}
	return &summary, nil
}

// ListBatches returns the most recent batch headers first. A zero limit
// returns every batch.
func (s *SQLiteStorage) ListBatches(ctx context.Context, limit int) ([]model.BatchSummary, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if limit < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLimit, limit)
	}
	if limit == 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source, started_at, finished_at, row_count, classified, degraded, skipped
		FROM batches
		ORDER BY started_at DESC, created_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query batches: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var batches []model.BatchSummary
	for rows.Next() {
		summary, err := scanBatch(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan batch: %w", err)
		}
		batches = append(batches, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating batches: %w", err)
	}
	return batches, nil
}

// GetBatchExpenses returns the enriched expenses of a batch in input order.
func (s *SQLiteStorage) GetBatchExpenses(ctx context.Context, id string) ([]model.EnrichedExpense, error) {
	if err := s.requireBatch(ctx, id); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT transaction_date, business_type, business_purpose, vendor, payment_type,
			policy_violation_reason, amount, personal_expense, policy_violation_flag,
			receipt_available, pre_approved, category, is_personal, classification_degraded
		FROM expenses
		WHERE batch_id = ?
		ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query expenses: %w", err)
	}
	defer func() { _ = rows.Close() }()

	expenses := []model.EnrichedExpense{}
	for rows.Next() {
		var e model.EnrichedExpense
		if err := rows.Scan(
			&e.Date, &e.BusinessType, &e.BusinessPurpose, &e.Vendor, &e.PaymentType,
			&e.PolicyViolationReason, &e.Amount, &e.PersonalExpense, &e.PolicyViolationFlag,
			&e.ReceiptAvailable, &e.PreApproved, &e.Category, &e.IsPersonal, &e.ClassificationDegraded,
		); err != nil {
			return nil, fmt.Errorf("failed to scan expense: %w", err)
		}
		expenses = append(expenses, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating expenses: %w", err)
	}
	return expenses, nil
}

// GetBatchErrors returns the skipped and degraded row diagnostics of a batch
// ordered by row.
func (s *SQLiteStorage) GetBatchErrors(ctx context.Context, id string) ([]model.RowDiagnostic, error) {
	if err := s.requireBatch(ctx, id); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT row_index, source_line, outcome, field, message
		FROM row_errors
		WHERE batch_id = ?
		ORDER BY row_index, id`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query row errors: %w", err)
	}
	defer func() { _ = rows.Close() }()

	diagnostics := []model.RowDiagnostic{}
	for rows.Next() {
		var (
			diag    model.RowDiagnostic
			outcome string
		)
		if err := rows.Scan(&diag.Row, &diag.Line, &outcome, &diag.Field, &diag.Message); err != nil {
			return nil, fmt.Errorf("failed to scan row error: %w", err)
		}
		if diag.Outcome, err = model.ParseRowOutcome(outcome); err != nil {
			return nil, fmt.Errorf("%w: %w", common.ErrDatabaseCorrupted, err)
		}
		diagnostics = append(diagnostics, diag)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating row errors: %w", err)
	}
	return diagnostics, nil
}

// DeleteBatch removes a batch and everything stored with it.
func (s *SQLiteStorage) DeleteBatch(ctx context.Context, id string) error {
	if err := s.requireBatch(ctx, id); err != nil {
		return err
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, query := range []string{
			`DELETE FROM row_errors WHERE batch_id = ?`,
			`DELETE FROM expenses WHERE batch_id = ?`,
			`DELETE FROM batches WHERE id = ?`,
		} {
			if _, err := tx.ExecContext(ctx, query, id); err != nil {
				return fmt.Errorf("failed to delete batch: %w", err)
			}
		}
		return nil
	})
}

func (s *SQLiteStorage) requireBatch(ctx context.Context, id string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}

	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM batches WHERE id = ?`, id).Scan(&count); err != nil {
		return fmt.Errorf("failed to check batch: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("batch %s: %w", id, common.ErrNotFound)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBatch(row scanner) (model.BatchSummary, error) {
	var b model.BatchSummary
	err := row.Scan(&b.ID, &b.Source, &b.StartedAt, &b.FinishedAt, &b.Rows, &b.Classified, &b.Degraded, &b.Skipped)
	return b, err
}
