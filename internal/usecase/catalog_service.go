package usecase

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/chaniweb/backend/internal/domain"
	"github.com/rs/zerolog"
)

// CatalogService holds the current catalog snapshot and refreshes it from a provider.
// Readers always see one complete snapshot; refreshes swap it atomically.
type CatalogService struct {
	provider domain.CatalogProvider
	current  atomic.Pointer[domain.Catalog]
	logger   zerolog.Logger
}

// NewCatalogService creates a catalog service backed by provider
func NewCatalogService(provider domain.CatalogProvider, logger zerolog.Logger) *CatalogService {
	return &CatalogService{
		provider: provider,
		logger:   logger.With().Str("component", "catalog").Logger(),
	}
}

// Refresh fetches a new snapshot and makes it current.
// On failure the previous snapshot stays in place.
func (s *CatalogService) Refresh(ctx context.Context) (*domain.Catalog, error) {
	start := time.Now()
	catalog, err := s.provider.FetchCatalog(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCatalogUnavailable, err)
	}
	if catalog == nil {
		catalog = domain.NewCatalog(nil, time.Now())
	}

	previous := s.current.Swap(catalog)
	changed := previous == nil || previous.Fingerprint() != catalog.Fingerprint()

	s.logger.Info().
		Int("listings", catalog.Len()).
		Str("fingerprint", catalog.Fingerprint()).
		Bool("changed", changed).
		Dur("took", time.Since(start)).
		Msg("catalog refreshed")

	return catalog, nil
}

// Snapshot returns the current snapshot, fetching the first one on demand
func (s *CatalogService) Snapshot(ctx context.Context) (*domain.Catalog, error) {
	if catalog := s.current.Load(); catalog != nil {
		return catalog, nil
	}
	return s.Refresh(ctx)
}

// Run refreshes the snapshot every interval until ctx is done.
// Failed refreshes are logged and retried on the next tick.
func (s *CatalogService) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Refresh(ctx); err != nil {
				s.logger.Warn().Err(err).Msg("catalog refresh failed, keeping previous snapshot")
			}
		}
	}
}
