package cache

import (
	"context"
	"time"

	"lakupos/terminal/internal/domain"
)

// CatalogCache shares a recently fetched catalog bundle between the
// terminals of one site, so a cold start does not refetch the full catalog
// from the remote system.
type CatalogCache interface {
	Get(ctx context.Context, key string) (*domain.Catalog, bool, error)
	Set(ctx context.Context, key string, catalog *domain.Catalog, ttl time.Duration) error
}

type NoopCatalogCache struct{}

func (NoopCatalogCache) Get(_ context.Context, _ string) (*domain.Catalog, bool, error) {
	return nil, false, nil
}

func (NoopCatalogCache) Set(_ context.Context, _ string, _ *domain.Catalog, _ time.Duration) error {
	return nil
}
