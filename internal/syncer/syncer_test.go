package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"lakupos/terminal/internal/domain"
	"lakupos/terminal/internal/localstore/memory"
	"lakupos/terminal/internal/netmon"
	"lakupos/terminal/internal/remote"
)

// scriptedRemote answers SaveDoc per call and serves a minimal catalog.
type scriptedRemote struct {
	mu        sync.Mutex
	saveErrs  []error // consumed in order; nil entry means success
	saved     []json.RawMessage
	blockSave chan struct{} // when set, SaveDoc waits until closed
}

func (f *scriptedRemote) GetList(_ context.Context, entityType domain.EntityType, _ remote.Filters) ([]json.RawMessage, error) {
	switch entityType {
	case domain.EntityItem:
		return []json.RawMessage{json.RawMessage(`{"code":"ITM-KOPI","name":"Kopi Sachet","price_cents":1000,"active":true}`)}, nil
	case domain.EntityCustomer:
		return []json.RawMessage{json.RawMessage(`{"id":"CUST-1","name":"Budi"}`)}, nil
	}
	return nil, nil
}

func (f *scriptedRemote) GetDoc(_ context.Context, entityType domain.EntityType, id string) (json.RawMessage, error) {
	if entityType == domain.EntityProfile {
		return json.RawMessage(`{"name":"` + id + `","store_id":"main-store","currency_code":"IDR"}`), nil
	}
	return nil, remote.ErrUnavailable
}

func (f *scriptedRemote) SaveDoc(_ context.Context, _ domain.EntityType, doc json.RawMessage) (json.RawMessage, error) {
	if f.blockSave != nil {
		<-f.blockSave
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	var err error
	if len(f.saveErrs) > 0 {
		err = f.saveErrs[0]
		f.saveErrs = f.saveErrs[1:]
	}
	if err != nil {
		return nil, err
	}
	f.saved = append(f.saved, doc)
	return doc, nil
}

func (f *scriptedRemote) DeleteDoc(context.Context, domain.EntityType, string) error { return nil }
func (f *scriptedRemote) Ping(context.Context) error                                 { return nil }

func (f *scriptedRemote) savedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saved)
}

func enqueueSale(t *testing.T, local *memory.Store, key string) string {
	t.Helper()
	id, err := local.Enqueue(context.Background(), domain.PendingMutation{
		EntityType:     domain.EntityTransaction,
		Operation:      domain.MutationCreate,
		Payload:        []byte(`{"idempotency_key":"` + key + `","grand_total_cents":2000}`),
		IdempotencyKey: key,
	})
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	return id
}

func TestSyncDataRequiresConnectivity(t *testing.T) {
	local := memory.New()
	c := New(&scriptedRemote{}, local, netmon.New(false), nil, "default", "catalog:test", time.Minute)

	_, err := c.SyncData(context.Background())
	if !errors.Is(err, ErrOffline) {
		t.Fatalf("expected ErrOffline, got %v", err)
	}
}

func TestSyncDataDrainsQueueInOrder(t *testing.T) {
	rc := &scriptedRemote{}
	local := memory.New()
	c := New(rc, local, netmon.New(true), nil, "default", "catalog:test", time.Minute)

	enqueueSale(t, local, "key-1")
	enqueueSale(t, local, "key-2")

	result, err := c.SyncData(context.Background())
	if err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	if result.SyncedCount != 2 || len(result.Errors) != 0 {
		t.Fatalf("expected 2 synced with no errors, got %+v", result)
	}
	if rc.savedCount() != 2 {
		t.Fatalf("expected 2 remote saves, got %d", rc.savedCount())
	}
	if !strings.Contains(string(rc.saved[0]), "key-1") || !strings.Contains(string(rc.saved[1]), "key-2") {
		t.Fatalf("queue not drained in enqueue order: %s then %s", rc.saved[0], rc.saved[1])
	}

	pending, err := local.ListPending(context.Background())
	if err != nil {
		t.Fatalf("list pending failed: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected empty queue after drain, got %d", len(pending))
	}
}

func TestSyncDataRefreshesCaches(t *testing.T) {
	local := memory.New()
	c := New(&scriptedRemote{}, local, netmon.New(true), nil, "default", "catalog:test", time.Minute)

	if _, err := c.SyncData(context.Background()); err != nil {
		t.Fatalf("sync failed: %v", err)
	}

	profile, err := local.CachedProfile(context.Background())
	if err != nil {
		t.Fatalf("cached profile missing after sync: %v", err)
	}
	if profile.Name != "default" {
		t.Fatalf("unexpected profile: %+v", profile)
	}
	items, err := local.CachedItems(context.Background())
	if err != nil || len(items) != 1 {
		t.Fatalf("expected 1 cached item, got %d (%v)", len(items), err)
	}
}

func TestRejectedItemIsMarkedErrorAndCycleContinues(t *testing.T) {
	rc := &scriptedRemote{saveErrs: []error{
		nil,
		errors.New("item discontinued"), // not a transport failure
		nil,
	}}
	local := memory.New()
	c := New(rc, local, netmon.New(true), nil, "default", "catalog:test", time.Minute)

	enqueueSale(t, local, "key-1")
	badID := enqueueSale(t, local, "key-2")
	enqueueSale(t, local, "key-3")

	result, err := c.SyncData(context.Background())
	if err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	if result.SyncedCount != 2 {
		t.Fatalf("expected 2 synced, got %d", result.SyncedCount)
	}
	if len(result.Errors) != 1 || result.Errors[0].LocalID != badID {
		t.Fatalf("expected 1 error for %s, got %+v", badID, result.Errors)
	}

	// The failed item stays sync-eligible for the next cycle.
	pending, err := local.ListPending(context.Background())
	if err != nil {
		t.Fatalf("list pending failed: %v", err)
	}
	if len(pending) != 1 || pending[0].LocalID != badID || pending[0].SyncStatus != domain.SyncError {
		t.Fatalf("expected error item retained, got %+v", pending)
	}
	if pending[0].ErrorReason == "" {
		t.Fatalf("expected error reason recorded")
	}
}

func TestErrorItemRetriedOnNextCycle(t *testing.T) {
	rc := &scriptedRemote{saveErrs: []error{errors.New("stock check failed")}}
	local := memory.New()
	c := New(rc, local, netmon.New(true), nil, "default", "catalog:test", time.Minute)

	enqueueSale(t, local, "key-1")

	first, err := c.SyncData(context.Background())
	if err != nil || len(first.Errors) != 1 {
		t.Fatalf("expected 1 error in first cycle, got %+v (%v)", first, err)
	}

	second, err := c.SyncData(context.Background())
	if err != nil {
		t.Fatalf("second cycle failed: %v", err)
	}
	if second.SyncedCount != 1 || len(second.Errors) != 0 {
		t.Fatalf("expected retry to succeed, got %+v", second)
	}

	// Synced is terminal: a third cycle must not resend.
	third, err := c.SyncData(context.Background())
	if err != nil {
		t.Fatalf("third cycle failed: %v", err)
	}
	if third.SyncedCount != 0 {
		t.Fatalf("synced item was resent: %+v", third)
	}
	if rc.savedCount() != 1 {
		t.Fatalf("expected exactly 1 successful save total, got %d", rc.savedCount())
	}
}

func TestTransportFailureMidCycleStopsAndGoesOffline(t *testing.T) {
	rc := &scriptedRemote{saveErrs: []error{nil, remote.ErrUnavailable}}
	local := memory.New()
	monitor := netmon.New(true)
	c := New(rc, local, monitor, nil, "default", "catalog:test", time.Minute)

	enqueueSale(t, local, "key-1")
	stuckID := enqueueSale(t, local, "key-2")
	enqueueSale(t, local, "key-3")

	result, err := c.SyncData(context.Background())
	if err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	if result.SyncedCount != 1 || len(result.Errors) != 0 {
		t.Fatalf("expected partial progress without errors, got %+v", result)
	}
	if monitor.Online() {
		t.Fatalf("expected monitor flipped offline on transport failure")
	}

	pending, err := local.ListPending(context.Background())
	if err != nil {
		t.Fatalf("list pending failed: %v", err)
	}
	if len(pending) != 2 || pending[0].LocalID != stuckID {
		t.Fatalf("expected interrupted item restored to front, got %+v", pending)
	}
	if pending[0].SyncStatus != domain.SyncPending {
		t.Fatalf("interrupted item must be pending, got %s", pending[0].SyncStatus)
	}
}

func TestConcurrentSyncIsRejected(t *testing.T) {
	gate := make(chan struct{})
	rc := &scriptedRemote{blockSave: gate}
	local := memory.New()
	c := New(rc, local, netmon.New(true), nil, "default", "catalog:test", time.Minute)

	enqueueSale(t, local, "key-1")

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := c.SyncData(context.Background()); err != nil {
			t.Errorf("first cycle failed: %v", err)
		}
	}()

	// Wait until the first cycle is inside SaveDoc, then trigger a second.
	deadline := time.Now().Add(2 * time.Second)
	for {
		_, err := c.SyncData(context.Background())
		if errors.Is(err, ErrSyncActive) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("second cycle never saw ErrSyncActive, got %v", err)
		}
		time.Sleep(time.Millisecond)
	}

	close(gate)
	<-done
}

// mapCatalogCache is a test double for the shared site cache.
type mapCatalogCache struct {
	bundles map[string]*domain.Catalog
}

func (m *mapCatalogCache) Get(_ context.Context, key string) (*domain.Catalog, bool, error) {
	bundle, ok := m.bundles[key]
	return bundle, ok, nil
}

func (m *mapCatalogCache) Set(_ context.Context, key string, catalog *domain.Catalog, _ time.Duration) error {
	m.bundles[key] = catalog
	return nil
}

func TestLoadSharedCatalogFillsLocalStore(t *testing.T) {
	shared := &mapCatalogCache{bundles: map[string]*domain.Catalog{}}
	bundle := &domain.Catalog{
		Profile:   domain.Profile{Name: "default", StoreID: "main-store"},
		Items:     []domain.Item{{Code: "ITM-KOPI", Name: "Kopi Sachet", PriceCents: 1000, Active: true}},
		Customers: []domain.Customer{{ID: "CUST-1", Name: "Budi"}},
		FetchedAt: time.Now().UTC(),
	}
	if err := shared.Set(context.Background(), "catalog:test", bundle, time.Minute); err != nil {
		t.Fatalf("seed shared cache: %v", err)
	}

	local := memory.New()
	c := New(&scriptedRemote{}, local, netmon.New(false), shared, "default", "catalog:test", time.Minute)

	ok, err := c.LoadSharedCatalog(context.Background())
	if err != nil || !ok {
		t.Fatalf("expected shared catalog hit, got ok=%t err=%v", ok, err)
	}
	items, err := local.CachedItems(context.Background())
	if err != nil || len(items) != 1 {
		t.Fatalf("expected shared items cached locally, got %d (%v)", len(items), err)
	}
}
