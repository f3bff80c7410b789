package store_test

import (
	"path/filepath"
	"testing"

	"github.com/bdobrica/kaiwa/internal/kaiwa/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "kaiwa-test.db"))
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestMigrationsCreateSyncStateTable(t *testing.T) {
	s := newTestStore(t)

	var name string
	err := s.DB().QueryRow(
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'matrix_sync_state'",
	).Scan(&name)
	if err != nil {
		t.Fatalf("matrix_sync_state table missing: %v", err)
	}
}

func TestMigrationsAreIdempotentAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kaiwa-test.db")

	s1, err := store.New(path)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	s1.Close()

	s2, err := store.New(path)
	if err != nil {
		t.Fatalf("second open must not re-apply migrations: %v", err)
	}
	defer s2.Close()

	var count int
	if err := s2.DB().QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
		t.Fatalf("query schema_migrations: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 applied migration, got %d", count)
	}
}
