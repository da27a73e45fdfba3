package localstore

import (
	"context"
	"errors"
	"time"

	"lakupos/terminal/internal/domain"
)

var (
	// ErrNotFound is returned when a key or queue entry does not exist.
	ErrNotFound = errors.New("not found")
	// ErrStorage wraps any failure of the backing medium. Callers must not
	// assume an enqueue succeeded without confirmation.
	ErrStorage = errors.New("storage unavailable")
	// ErrTerminalStatus is returned for a status transition out of synced.
	ErrTerminalStatus = errors.New("synced record is immutable")
)

// Store is durable keyed persistence for the terminal: the reference-data
// caches, the FIFO pending-mutation queue, and the session snapshot. It is
// the only component allowed to write the queue.
type Store interface {
	// Reference caches are replaced wholesale, never partially merged.
	CacheItems(ctx context.Context, items []domain.Item) error
	CachedItems(ctx context.Context) ([]domain.Item, error)
	CacheCustomers(ctx context.Context, customers []domain.Customer) error
	CachedCustomers(ctx context.Context) ([]domain.Customer, error)
	CacheProfile(ctx context.Context, profile domain.Profile) error
	CachedProfile(ctx context.Context) (*domain.Profile, error)

	// Enqueue assigns a local id (unless one is already set), stamps
	// EnqueuedAt, forces status pending and appends to the FIFO queue.
	Enqueue(ctx context.Context, mutation domain.PendingMutation) (string, error)
	// ListPending returns items with status pending or error in original
	// enqueue order.
	ListPending(ctx context.Context) ([]domain.PendingMutation, error)
	MarkStatus(ctx context.Context, localID string, status string, reason string) error
	Remove(ctx context.Context, localID string) error
	// PruneSynced removes synced entries enqueued before the cutoff and
	// returns how many were dropped. Synced entries are otherwise retained
	// for audit.
	PruneSynced(ctx context.Context, before time.Time) (int, error)

	SaveSnapshot(ctx context.Context, snapshot domain.SessionSnapshot) error
	LoadSnapshot(ctx context.Context) (*domain.SessionSnapshot, error)
}
