package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"lakupos/terminal/internal/domain"
	"lakupos/terminal/internal/localstore"
	"lakupos/terminal/internal/xid"
)

// Store is an in-memory localstore.Store. It backs tests and terminals
// running without a configured data path; nothing survives a restart.
type Store struct {
	mu        sync.RWMutex
	items     []domain.Item
	customers []domain.Customer
	profile   *domain.Profile
	queue     []domain.PendingMutation
	snapshot  *domain.SessionSnapshot
}

func New() *Store {
	return &Store{
		queue: make([]domain.PendingMutation, 0, 16),
	}
}

func (s *Store) CacheItems(_ context.Context, items []domain.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = make([]domain.Item, len(items))
	copy(s.items, items)
	return nil
}

func (s *Store) CachedItems(_ context.Context) ([]domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]domain.Item, len(s.items))
	copy(items, s.items)
	return items, nil
}

func (s *Store) CacheCustomers(_ context.Context, customers []domain.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.customers = make([]domain.Customer, len(customers))
	copy(s.customers, customers)
	return nil
}

func (s *Store) CachedCustomers(_ context.Context) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customers := make([]domain.Customer, len(s.customers))
	copy(customers, s.customers)
	return customers, nil
}

func (s *Store) CacheProfile(_ context.Context, profile domain.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copyProfile := profile
	s.profile = &copyProfile
	return nil
}

func (s *Store) CachedProfile(_ context.Context) (*domain.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.profile == nil {
		return nil, localstore.ErrNotFound
	}
	copyProfile := *s.profile
	return &copyProfile, nil
}

func (s *Store) Enqueue(_ context.Context, mutation domain.PendingMutation) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if mutation.LocalID == "" {
		mutation.LocalID = xid.NewLocal()
	}
	if mutation.EnqueuedAt.IsZero() {
		mutation.EnqueuedAt = time.Now().UTC()
	}
	mutation.SyncStatus = domain.SyncPending
	mutation.ErrorReason = ""

	s.queue = append(s.queue, mutation)
	return mutation.LocalID, nil
}

func (s *Store) ListPending(_ context.Context) ([]domain.PendingMutation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pending := make([]domain.PendingMutation, 0, len(s.queue))
	for _, m := range s.queue {
		if m.SyncStatus == domain.SyncPending || m.SyncStatus == domain.SyncError {
			pending = append(pending, m)
		}
	}
	return pending, nil
}

func (s *Store) MarkStatus(_ context.Context, localID string, status string, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.queue {
		if s.queue[i].LocalID != localID {
			continue
		}
		if s.queue[i].SyncStatus == domain.SyncSynced {
			return fmt.Errorf("%w: %s", localstore.ErrTerminalStatus, localID)
		}
		s.queue[i].SyncStatus = status
		s.queue[i].ErrorReason = reason
		return nil
	}
	return localstore.ErrNotFound
}

func (s *Store) Remove(_ context.Context, localID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.queue {
		if s.queue[i].LocalID == localID {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			return nil
		}
	}
	return localstore.ErrNotFound
}

func (s *Store) PruneSynced(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.queue[:0]
	pruned := 0
	for _, m := range s.queue {
		if m.SyncStatus == domain.SyncSynced && m.EnqueuedAt.Before(before) {
			pruned++
			continue
		}
		kept = append(kept, m)
	}
	s.queue = kept
	return pruned, nil
}

func (s *Store) SaveSnapshot(_ context.Context, snapshot domain.SessionSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copySnapshot := snapshot
	s.snapshot = &copySnapshot
	return nil
}

func (s *Store) LoadSnapshot(_ context.Context) (*domain.SessionSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.snapshot == nil {
		return nil, localstore.ErrNotFound
	}
	copySnapshot := *s.snapshot
	return &copySnapshot, nil
}
