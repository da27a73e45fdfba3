package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"lakupos/terminal/internal/domain"
	"lakupos/terminal/internal/localstore"
)

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "terminal.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, path
}

func TestQueueSurvivesReopen(t *testing.T) {
	s, path := openTestStore(t)
	ctx := context.Background()

	id, err := s.Enqueue(ctx, domain.PendingMutation{
		EntityType:     domain.EntityTransaction,
		Operation:      domain.MutationCreate,
		Payload:        []byte(`{"grand_total_cents":2000}`),
		IdempotencyKey: "key-1",
	})
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	pending, err := reopened.ListPending(ctx)
	if err != nil {
		t.Fatalf("list pending failed: %v", err)
	}
	if len(pending) != 1 || pending[0].LocalID != id {
		t.Fatalf("queued sale lost across reopen: %+v", pending)
	}
	if pending[0].IdempotencyKey != "key-1" {
		t.Fatalf("idempotency key lost: %+v", pending[0])
	}
	if string(pending[0].Payload) != `{"grand_total_cents":2000}` {
		t.Fatalf("payload mangled: %s", pending[0].Payload)
	}
}

func TestListPendingOrderAndFilter(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 4; i++ {
		id, err := s.Enqueue(ctx, domain.PendingMutation{
			EntityType: domain.EntityTransaction,
			Operation:  domain.MutationCreate,
			Payload:    []byte(`{}`),
		})
		if err != nil {
			t.Fatalf("enqueue #%d failed: %v", i, err)
		}
		ids = append(ids, id)
	}

	if err := s.MarkStatus(ctx, ids[0], domain.SyncSynced, ""); err != nil {
		t.Fatalf("mark synced failed: %v", err)
	}
	if err := s.MarkStatus(ctx, ids[2], domain.SyncError, "rejected"); err != nil {
		t.Fatalf("mark error failed: %v", err)
	}

	pending, err := s.ListPending(ctx)
	if err != nil {
		t.Fatalf("list pending failed: %v", err)
	}
	want := []string{ids[1], ids[2], ids[3]}
	if len(pending) != len(want) {
		t.Fatalf("expected %d pending, got %d", len(want), len(pending))
	}
	for i, m := range pending {
		if m.LocalID != want[i] {
			t.Fatalf("order broken at %d: got %s want %s", i, m.LocalID, want[i])
		}
	}
	if pending[1].SyncStatus != domain.SyncError || pending[1].ErrorReason != "rejected" {
		t.Fatalf("error details lost: %+v", pending[1])
	}
}

func TestMarkStatusTerminalAndNotFound(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	id, err := s.Enqueue(ctx, domain.PendingMutation{
		EntityType: domain.EntityTransaction,
		Operation:  domain.MutationCreate,
		Payload:    []byte(`{}`),
	})
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if err := s.MarkStatus(ctx, id, domain.SyncSynced, ""); err != nil {
		t.Fatalf("mark synced failed: %v", err)
	}

	if err := s.MarkStatus(ctx, id, domain.SyncPending, ""); !errors.Is(err, localstore.ErrTerminalStatus) {
		t.Fatalf("expected ErrTerminalStatus, got %v", err)
	}
	if err := s.MarkStatus(ctx, "local-0-missing", domain.SyncError, "x"); !errors.Is(err, localstore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPruneSyncedKeepsRecentAndUnsynced(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	oldID, err := s.Enqueue(ctx, domain.PendingMutation{
		EntityType: domain.EntityTransaction,
		Operation:  domain.MutationCreate,
		Payload:    []byte(`{}`),
		EnqueuedAt: time.Now().UTC().Add(-72 * time.Hour),
	})
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	pendingID, err := s.Enqueue(ctx, domain.PendingMutation{
		EntityType: domain.EntityTransaction,
		Operation:  domain.MutationCreate,
		Payload:    []byte(`{}`),
		EnqueuedAt: time.Now().UTC().Add(-72 * time.Hour),
	})
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if err := s.MarkStatus(ctx, oldID, domain.SyncSynced, ""); err != nil {
		t.Fatalf("mark synced failed: %v", err)
	}

	pruned, err := s.PruneSynced(ctx, time.Now().UTC().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("prune failed: %v", err)
	}
	if pruned != 1 {
		t.Fatalf("expected 1 pruned, got %d", pruned)
	}

	// The unsynced sale must never be pruned, no matter how old.
	pending, err := s.ListPending(ctx)
	if err != nil {
		t.Fatalf("list pending failed: %v", err)
	}
	if len(pending) != 1 || pending[0].LocalID != pendingID {
		t.Fatalf("pending sale lost to prune: %+v", pending)
	}
}

func TestCachesAndSnapshotRoundTrip(t *testing.T) {
	s, path := openTestStore(t)
	ctx := context.Background()

	// Fresh database: empty lists, no profile, no snapshot.
	items, err := s.CachedItems(ctx)
	if err != nil || len(items) != 0 {
		t.Fatalf("expected empty item cache, got %d (%v)", len(items), err)
	}
	if _, err := s.CachedProfile(ctx); !errors.Is(err, localstore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for profile, got %v", err)
	}
	if _, err := s.LoadSnapshot(ctx); !errors.Is(err, localstore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for snapshot, got %v", err)
	}

	if err := s.CacheItems(ctx, []domain.Item{{Code: "A", Name: "Item A", PriceCents: 100, Active: true}}); err != nil {
		t.Fatalf("cache items failed: %v", err)
	}
	if err := s.CacheItems(ctx, []domain.Item{
		{Code: "B", Name: "Item B", PriceCents: 200, Active: true},
		{Code: "C", Name: "Item C", PriceCents: 300, Active: true},
	}); err != nil {
		t.Fatalf("cache items failed: %v", err)
	}
	if err := s.CacheCustomers(ctx, []domain.Customer{{ID: "CUST-1", Name: "Budi"}}); err != nil {
		t.Fatalf("cache customers failed: %v", err)
	}
	if err := s.CacheProfile(ctx, domain.Profile{Name: "default", StoreID: "main-store"}); err != nil {
		t.Fatalf("cache profile failed: %v", err)
	}
	if err := s.SaveSnapshot(ctx, domain.SessionSnapshot{
		ProfileName: "default",
		Cart: domain.Cart{
			Lines:           []domain.CartLine{{ItemCode: "B", Quantity: 2, UnitRateCents: 200}},
			SubtotalCents:   400,
			GrandTotalCents: 400,
		},
		SavedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("save snapshot failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	items, err = reopened.CachedItems(ctx)
	if err != nil {
		t.Fatalf("cached items failed: %v", err)
	}
	if len(items) != 2 || items[0].Code != "B" {
		t.Fatalf("expected wholesale-replaced items to survive reopen, got %+v", items)
	}
	profile, err := reopened.CachedProfile(ctx)
	if err != nil || profile.StoreID != "main-store" {
		t.Fatalf("profile lost across reopen: %+v (%v)", profile, err)
	}
	snapshot, err := reopened.LoadSnapshot(ctx)
	if err != nil {
		t.Fatalf("load snapshot failed: %v", err)
	}
	if len(snapshot.Cart.Lines) != 1 || snapshot.Cart.GrandTotalCents != 400 {
		t.Fatalf("snapshot lost across reopen: %+v", snapshot)
	}
}
