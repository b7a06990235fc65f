package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application expects.
// If the database cannot be migrated to this version, it's a fatal error.
const ExpectedSchemaVersion = 3

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS batches (
					id TEXT PRIMARY KEY,
					source TEXT NOT NULL DEFAULT '',
					started_at DATETIME NOT NULL,
					finished_at DATETIME NOT NULL,
					row_count INTEGER NOT NULL DEFAULT 0,
					classified INTEGER NOT NULL DEFAULT 0,
					degraded INTEGER NOT NULL DEFAULT 0,
					skipped INTEGER NOT NULL DEFAULT 0,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_batches_started ON batches(started_at)`,

				`CREATE TABLE IF NOT EXISTS expenses (
					batch_id TEXT NOT NULL,
					position INTEGER NOT NULL,
					transaction_date TEXT NOT NULL,
					business_type TEXT NOT NULL,
					business_purpose TEXT NOT NULL,
					vendor TEXT NOT NULL,
					payment_type TEXT NOT NULL,
					policy_violation_reason TEXT NOT NULL,
					amount REAL NOT NULL,
					personal_expense INTEGER NOT NULL,
					policy_violation_flag INTEGER NOT NULL,
					receipt_available INTEGER NOT NULL,
					pre_approved INTEGER NOT NULL,
					category TEXT NOT NULL,
					is_personal INTEGER NOT NULL,
					PRIMARY KEY (batch_id, position),
					FOREIGN KEY (batch_id) REFERENCES batches(id) ON DELETE CASCADE
				)`,
				`CREATE INDEX idx_expenses_category ON expenses(category)`,

				`CREATE TABLE IF NOT EXISTS row_errors (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					batch_id TEXT NOT NULL,
					row_index INTEGER NOT NULL,
					outcome TEXT NOT NULL,
					field TEXT NOT NULL DEFAULT '',
					message TEXT NOT NULL,
					FOREIGN KEY (batch_id) REFERENCES batches(id) ON DELETE CASCADE
				)`,
				`CREATE INDEX idx_row_errors_batch ON row_errors(batch_id)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     2,
		Description: "Track degraded classifications per expense",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`ALTER TABLE expenses ADD COLUMN classification_degraded INTEGER NOT NULL DEFAULT 0`)
			if err != nil {
				return fmt.Errorf("failed to add classification_degraded column: %w", err)
			}
			return nil
		},
	},
	{
		Version:     3,
		Description: "Record source line of row diagnostics",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`ALTER TABLE row_errors ADD COLUMN source_line INTEGER NOT NULL DEFAULT 0`)
			if err != nil {
				return fmt.Errorf("failed to add source_line column: %w", err)
			}
			return nil
		},
	},
}

// Migrate applies all pending database migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	currentVersion, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Info("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	finalVersion, err := s.SchemaVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}

	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}

// SchemaVersion reports the schema version recorded in the database.
func (s *SQLiteStorage) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return version, nil
}
