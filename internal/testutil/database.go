// Package testutil provides shared fixtures for tests that need a batch
// history database or a ready-made expense report.
package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/Veraticus/spice-audit/internal/model"
	"github.com/Veraticus/spice-audit/internal/storage"
)

// SetupTestDB creates a migrated SQLite database in the test's temp
// directory. It is closed automatically when the test ends.
//
// Example:
//
//	store := testutil.SetupTestDB(t)
//	testutil.SeedBatch(t, store, batch)
func SetupTestDB(t testing.TB) *storage.SQLiteStorage {
	t.Helper()

	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	t.Cleanup(func() {
		_ = store.Close()
	})

	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	return store
}

// SeedBatch saves batch or fails the test.
func SeedBatch(t testing.TB, store *storage.SQLiteStorage, batch *model.BatchResult) {
	t.Helper()

	if err := store.SaveBatch(context.Background(), batch); err != nil {
		t.Fatalf("failed to seed batch %q: %v", batch.ID, err)
	}
}
