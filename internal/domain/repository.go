package domain

import (
	"context"
	"time"
)

// CacheRepository defines the interface for caching operations
type CacheRepository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// CatalogProvider supplies read-only catalog snapshots
type CatalogProvider interface {
	FetchCatalog(ctx context.Context) (*Catalog, error)
}
