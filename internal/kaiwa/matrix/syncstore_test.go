package matrix

import (
	"context"
	"path/filepath"
	"testing"

	"maunium.net/go/mautrix/id"

	"github.com/bdobrica/kaiwa/internal/kaiwa/store"
)

func newTestSyncStore(t *testing.T) *dbSyncStore {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "kaiwa-test.db"))
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return newDBSyncStore(s.DB())
}

func TestNextBatchRoundTrip(t *testing.T) {
	ss := newTestSyncStore(t)
	ctx := context.Background()
	user := id.UserID("@kaiwa:example.com")

	// First run: nothing saved yet.
	got, err := ss.LoadNextBatch(ctx, user)
	if err != nil {
		t.Fatalf("LoadNextBatch on empty store: %v", err)
	}
	if got != "" {
		t.Fatalf("expected empty token on first run, got %q", got)
	}

	if err := ss.SaveNextBatch(ctx, user, "s72594_4483_1934"); err != nil {
		t.Fatalf("SaveNextBatch: %v", err)
	}
	got, err = ss.LoadNextBatch(ctx, user)
	if err != nil {
		t.Fatalf("LoadNextBatch: %v", err)
	}
	if got != "s72594_4483_1934" {
		t.Fatalf("expected saved token, got %q", got)
	}

	// Saving again overwrites rather than duplicating.
	if err := ss.SaveNextBatch(ctx, user, "s99999_0_0"); err != nil {
		t.Fatalf("SaveNextBatch overwrite: %v", err)
	}
	got, _ = ss.LoadNextBatch(ctx, user)
	if got != "s99999_0_0" {
		t.Fatalf("expected overwritten token, got %q", got)
	}
}

func TestFilterIDIsPerUser(t *testing.T) {
	ss := newTestSyncStore(t)
	ctx := context.Background()

	if err := ss.SaveFilterID(ctx, "@a:example.com", "filter-a"); err != nil {
		t.Fatalf("SaveFilterID: %v", err)
	}
	if err := ss.SaveFilterID(ctx, "@b:example.com", "filter-b"); err != nil {
		t.Fatalf("SaveFilterID: %v", err)
	}

	got, err := ss.LoadFilterID(ctx, "@a:example.com")
	if err != nil {
		t.Fatalf("LoadFilterID: %v", err)
	}
	if got != "filter-a" {
		t.Fatalf("expected filter-a, got %q", got)
	}
	got, _ = ss.LoadFilterID(ctx, "@b:example.com")
	if got != "filter-b" {
		t.Fatalf("expected filter-b, got %q", got)
	}
}
