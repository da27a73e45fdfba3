// Package syncer drains the local pending queue to the remote system when
// connectivity allows, then refreshes the reference caches so the terminal
// stays operable through the next outage.
package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"lakupos/terminal/internal/cache"
	"lakupos/terminal/internal/domain"
	"lakupos/terminal/internal/localstore"
	"lakupos/terminal/internal/netmon"
	"lakupos/terminal/internal/remote"
)

var (
	// ErrOffline rejects a sync attempt made without connectivity.
	ErrOffline = errors.New("sync requires connectivity")
	// ErrSyncActive rejects a second trigger while a cycle is in flight.
	// Rapid connectivity flapping must never interleave two cycles.
	ErrSyncActive = errors.New("sync cycle already running")
)

type Coordinator struct {
	remote      remote.Client
	local       localstore.Store
	monitor     *netmon.Monitor
	catalog     cache.CatalogCache
	profileName string
	cacheKey    string
	cacheTTL    time.Duration

	mu sync.Mutex // held for the duration of one sync cycle
}

func New(remoteClient remote.Client, local localstore.Store, monitor *netmon.Monitor, catalog cache.CatalogCache, profileName string, cacheKey string, cacheTTL time.Duration) *Coordinator {
	if catalog == nil {
		catalog = cache.NoopCatalogCache{}
	}
	return &Coordinator{
		remote:      remoteClient,
		local:       local,
		monitor:     monitor,
		catalog:     catalog,
		profileName: profileName,
		cacheKey:    cacheKey,
		cacheTTL:    cacheTTL,
	}
}

// SyncData runs one sync cycle: drain the queue in FIFO enqueue order, then
// refresh the reference caches. One failing record never blocks the rest of
// the batch; a transport failure mid-cycle stops the cycle and reports what
// was completed, leaving the remainder pending for the next one.
func (s *Coordinator) SyncData(ctx context.Context) (domain.SyncResult, error) {
	if !s.mu.TryLock() {
		return domain.SyncResult{}, ErrSyncActive
	}
	defer s.mu.Unlock()

	if !s.monitor.Online() {
		return domain.SyncResult{}, ErrOffline
	}

	pending, err := s.local.ListPending(ctx)
	if err != nil {
		return domain.SyncResult{}, fmt.Errorf("read pending queue: %w", err)
	}

	result := domain.SyncResult{Errors: []domain.SyncItemError{}}

	for _, item := range pending {
		if err := s.local.MarkStatus(ctx, item.LocalID, domain.SyncSyncing, ""); err != nil {
			return result, fmt.Errorf("mark syncing %s: %w", item.LocalID, err)
		}

		pushErr := s.push(ctx, item)
		switch {
		case pushErr == nil:
			if err := s.local.MarkStatus(ctx, item.LocalID, domain.SyncSynced, ""); err != nil {
				return result, fmt.Errorf("mark synced %s: %w", item.LocalID, err)
			}
			result.SyncedCount++

		case errors.Is(pushErr, remote.ErrUnavailable):
			// Connectivity died mid-cycle. Put the item back and stop
			// instead of hot-looping on failures.
			if err := s.local.MarkStatus(ctx, item.LocalID, domain.SyncPending, ""); err != nil {
				return result, fmt.Errorf("restore pending %s: %w", item.LocalID, err)
			}
			log.Printf("[syncer] connectivity lost mid-cycle at %s, %d synced so far", item.LocalID, result.SyncedCount)
			s.monitor.SetOnline(false)
			return result, nil

		default:
			if err := s.local.MarkStatus(ctx, item.LocalID, domain.SyncError, pushErr.Error()); err != nil {
				return result, fmt.Errorf("mark error %s: %w", item.LocalID, err)
			}
			result.Errors = append(result.Errors, domain.SyncItemError{
				LocalID: item.LocalID,
				Reason:  pushErr.Error(),
			})
		}
	}

	if err := s.RefreshCatalog(ctx); err != nil {
		log.Printf("[syncer] WARN: catalog refresh failed: %v", err)
	}

	log.Printf("[syncer] cycle done: %d synced, %d errors", result.SyncedCount, len(result.Errors))
	return result, nil
}

func (s *Coordinator) push(ctx context.Context, item domain.PendingMutation) error {
	switch item.Operation {
	case domain.MutationCreate, domain.MutationUpdate:
		_, err := s.remote.SaveDoc(ctx, item.EntityType, item.Payload)
		return err
	case domain.MutationDelete:
		var doc struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(item.Payload, &doc); err != nil || doc.ID == "" {
			return fmt.Errorf("%w: delete payload has no id", remote.ErrRejected)
		}
		return s.remote.DeleteDoc(ctx, item.EntityType, doc.ID)
	default:
		return fmt.Errorf("%w: unknown operation %q", remote.ErrRejected, item.Operation)
	}
}

// RefreshCatalog re-fetches profile, items and customers, re-caches them in
// the local store and publishes the bundle to the shared site cache.
func (s *Coordinator) RefreshCatalog(ctx context.Context) error {
	profile, err := remote.FetchProfile(ctx, s.remote, s.profileName)
	if err != nil {
		return fmt.Errorf("fetch profile: %w", err)
	}
	items, err := remote.FetchItems(ctx, s.remote)
	if err != nil {
		return fmt.Errorf("fetch items: %w", err)
	}
	customers, err := remote.FetchCustomers(ctx, s.remote)
	if err != nil {
		return fmt.Errorf("fetch customers: %w", err)
	}

	if err := s.local.CacheProfile(ctx, *profile); err != nil {
		return err
	}
	if err := s.local.CacheItems(ctx, items); err != nil {
		return err
	}
	if err := s.local.CacheCustomers(ctx, customers); err != nil {
		return err
	}

	bundle := &domain.Catalog{
		Profile:   *profile,
		Items:     items,
		Customers: customers,
		FetchedAt: time.Now().UTC(),
	}
	if err := s.catalog.Set(ctx, s.cacheKey, bundle, s.cacheTTL); err != nil {
		log.Printf("[syncer] WARN: site cache publish failed: %v", err)
	}
	return nil
}

// LoadSharedCatalog pulls a recent catalog bundle from the site cache into
// the local store, if one is available.
func (s *Coordinator) LoadSharedCatalog(ctx context.Context) (bool, error) {
	bundle, ok, err := s.catalog.Get(ctx, s.cacheKey)
	if err != nil || !ok {
		return false, err
	}

	if err := s.local.CacheProfile(ctx, bundle.Profile); err != nil {
		return false, err
	}
	if err := s.local.CacheItems(ctx, bundle.Items); err != nil {
		return false, err
	}
	if err := s.local.CacheCustomers(ctx, bundle.Customers); err != nil {
		return false, err
	}
	return true, nil
}
