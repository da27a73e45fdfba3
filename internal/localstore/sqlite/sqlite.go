package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"lakupos/terminal/internal/domain"
	"lakupos/terminal/internal/localstore"
	"lakupos/terminal/internal/xid"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS entity_cache (
	entity_type TEXT NOT NULL,
	payload     BLOB NOT NULL,
	cached_at   TEXT NOT NULL,
	PRIMARY KEY (entity_type)
);

CREATE TABLE IF NOT EXISTS pending_queue (
	position        INTEGER PRIMARY KEY AUTOINCREMENT,
	local_id        TEXT NOT NULL UNIQUE,
	entity_type     TEXT NOT NULL,
	operation       TEXT NOT NULL,
	payload         BLOB NOT NULL,
	idempotency_key TEXT NOT NULL,
	enqueued_at     TEXT NOT NULL,
	sync_status     TEXT NOT NULL,
	error_reason    TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS session_snapshot (
	id       INTEGER PRIMARY KEY CHECK (id = 1),
	payload  BLOB NOT NULL,
	saved_at TEXT NOT NULL
);
`

// Store is the device-durable localstore.Store backed by a single SQLite
// file. Queue order is the AUTOINCREMENT position, which preserves FIFO
// enqueue order across restarts.
type Store struct {
	db *sql.DB
}

// Open creates or opens the terminal database at path. SQLite supports one
// writer at a time, so the pool is capped at a single connection.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", localstore.ErrStorage, path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: connect %s: %v", localstore.ErrStorage, path, err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%w: %s: %v", localstore.ErrStorage, pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: apply schema: %v", localstore.ErrStorage, err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) cacheEntity(ctx context.Context, entityType domain.EntityType, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%w: encode %s cache: %v", localstore.ErrStorage, entityType, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO entity_cache (entity_type, payload, cached_at) VALUES (?, ?, ?)
		ON CONFLICT (entity_type) DO UPDATE SET payload = excluded.payload, cached_at = excluded.cached_at
	`, string(entityType), payload, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("%w: write %s cache: %v", localstore.ErrStorage, entityType, err)
	}
	return nil
}

func (s *Store) cachedEntity(ctx context.Context, entityType domain.EntityType, out any) error {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM entity_cache WHERE entity_type = ?`, string(entityType),
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return localstore.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("%w: read %s cache: %v", localstore.ErrStorage, entityType, err)
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("%w: decode %s cache: %v", localstore.ErrStorage, entityType, err)
	}
	return nil
}

func (s *Store) CacheItems(ctx context.Context, items []domain.Item) error {
	return s.cacheEntity(ctx, domain.EntityItem, items)
}

func (s *Store) CachedItems(ctx context.Context) ([]domain.Item, error) {
	var items []domain.Item
	err := s.cachedEntity(ctx, domain.EntityItem, &items)
	if errors.Is(err, localstore.ErrNotFound) {
		return []domain.Item{}, nil
	}
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CacheCustomers(ctx context.Context, customers []domain.Customer) error {
	return s.cacheEntity(ctx, domain.EntityCustomer, customers)
}

func (s *Store) CachedCustomers(ctx context.Context) ([]domain.Customer, error) {
	var customers []domain.Customer
	err := s.cachedEntity(ctx, domain.EntityCustomer, &customers)
	if errors.Is(err, localstore.ErrNotFound) {
		return []domain.Customer{}, nil
	}
	if err != nil {
		return nil, err
	}
	return customers, nil
}

func (s *Store) CacheProfile(ctx context.Context, profile domain.Profile) error {
	return s.cacheEntity(ctx, domain.EntityProfile, profile)
}

func (s *Store) CachedProfile(ctx context.Context) (*domain.Profile, error) {
	var profile domain.Profile
	if err := s.cachedEntity(ctx, domain.EntityProfile, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

func (s *Store) Enqueue(ctx context.Context, mutation domain.PendingMutation) (string, error) {
	if mutation.LocalID == "" {
		mutation.LocalID = xid.NewLocal()
	}
	if mutation.EnqueuedAt.IsZero() {
		mutation.EnqueuedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pending_queue (local_id, entity_type, operation, payload, idempotency_key, enqueued_at, sync_status)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		mutation.LocalID,
		string(mutation.EntityType),
		mutation.Operation,
		mutation.Payload,
		mutation.IdempotencyKey,
		mutation.EnqueuedAt.Format(time.RFC3339Nano),
		domain.SyncPending,
	)
	if err != nil {
		return "", fmt.Errorf("%w: enqueue %s: %v", localstore.ErrStorage, mutation.LocalID, err)
	}
	return mutation.LocalID, nil
}

func (s *Store) ListPending(ctx context.Context) ([]domain.PendingMutation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT local_id, entity_type, operation, payload, idempotency_key, enqueued_at, sync_status, error_reason
		FROM pending_queue
		WHERE sync_status IN (?, ?)
		ORDER BY position ASC
	`, domain.SyncPending, domain.SyncError)
	if err != nil {
		return nil, fmt.Errorf("%w: list pending: %v", localstore.ErrStorage, err)
	}
	defer rows.Close()

	pending := make([]domain.PendingMutation, 0, 16)
	for rows.Next() {
		var m domain.PendingMutation
		var entityType, enqueuedAt string
		if err := rows.Scan(&m.LocalID, &entityType, &m.Operation, &m.Payload, &m.IdempotencyKey, &enqueuedAt, &m.SyncStatus, &m.ErrorReason); err != nil {
			return nil, fmt.Errorf("%w: scan pending: %v", localstore.ErrStorage, err)
		}
		m.EntityType = domain.EntityType(entityType)
		if ts, parseErr := time.Parse(time.RFC3339Nano, enqueuedAt); parseErr == nil {
			m.EnqueuedAt = ts
		}
		pending = append(pending, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list pending: %v", localstore.ErrStorage, err)
	}
	return pending, nil
}

func (s *Store) MarkStatus(ctx context.Context, localID string, status string, reason string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE pending_queue SET sync_status = ?, error_reason = ?
		WHERE local_id = ? AND sync_status != ?
	`, status, reason, localID, domain.SyncSynced)
	if err != nil {
		return fmt.Errorf("%w: mark %s %s: %v", localstore.ErrStorage, localID, status, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: mark %s %s: %v", localstore.ErrStorage, localID, status, err)
	}
	if affected == 0 {
		var existing string
		err := s.db.QueryRowContext(ctx,
			`SELECT sync_status FROM pending_queue WHERE local_id = ?`, localID,
		).Scan(&existing)
		if errors.Is(err, sql.ErrNoRows) {
			return localstore.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("%w: mark %s %s: %v", localstore.ErrStorage, localID, status, err)
		}
		return fmt.Errorf("%w: %s", localstore.ErrTerminalStatus, localID)
	}
	return nil
}

func (s *Store) Remove(ctx context.Context, localID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM pending_queue WHERE local_id = ?`, localID)
	if err != nil {
		return fmt.Errorf("%w: remove %s: %v", localstore.ErrStorage, localID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: remove %s: %v", localstore.ErrStorage, localID, err)
	}
	if affected == 0 {
		return localstore.ErrNotFound
	}
	return nil
}

func (s *Store) PruneSynced(ctx context.Context, before time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM pending_queue WHERE sync_status = ? AND enqueued_at < ?
	`, domain.SyncSynced, before.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("%w: prune synced: %v", localstore.ErrStorage, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: prune synced: %v", localstore.ErrStorage, err)
	}
	return int(affected), nil
}

func (s *Store) SaveSnapshot(ctx context.Context, snapshot domain.SessionSnapshot) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("%w: encode snapshot: %v", localstore.ErrStorage, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO session_snapshot (id, payload, saved_at) VALUES (1, ?, ?)
		ON CONFLICT (id) DO UPDATE SET payload = excluded.payload, saved_at = excluded.saved_at
	`, payload, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("%w: write snapshot: %v", localstore.ErrStorage, err)
	}
	return nil
}

func (s *Store) LoadSnapshot(ctx context.Context) (*domain.SessionSnapshot, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM session_snapshot WHERE id = 1`).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, localstore.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read snapshot: %v", localstore.ErrStorage, err)
	}

	var snapshot domain.SessionSnapshot
	if err := json.Unmarshal(payload, &snapshot); err != nil {
		return nil, fmt.Errorf("%w: decode snapshot: %v", localstore.ErrStorage, err)
	}
	return &snapshot, nil
}
