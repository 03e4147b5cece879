package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chaniweb/backend/internal/domain"
	"github.com/rs/zerolog"
)

// ComparisonServiceConfig holds configuration for the comparison service
type ComparisonServiceConfig struct {
	CacheTTL time.Duration
}

// ComparisonService runs engine queries against catalog snapshots with caching
type ComparisonService struct {
	cache    domain.CacheRepository
	catalogs *CatalogService
	engine   *ComparisonEngine
	cacheTTL time.Duration
	logger   zerolog.Logger
}

// NewComparisonService creates a new comparison service with dependencies.
// cache may be nil, in which case every query is computed.
func NewComparisonService(
	cache domain.CacheRepository,
	catalogs *CatalogService,
	engine *ComparisonEngine,
	config ComparisonServiceConfig,
	logger zerolog.Logger,
) *ComparisonService {
	cacheTTL := config.CacheTTL
	if cacheTTL == 0 {
		cacheTTL = 15 * time.Minute
	}

	return &ComparisonService{
		cache:    cache,
		catalogs: catalogs,
		engine:   engine,
		cacheTTL: cacheTTL,
		logger:   logger.With().Str("component", "comparison").Logger(),
	}
}

// Compare answers query against the current catalog snapshot
func (s *ComparisonService) Compare(ctx context.Context, query domain.Query) (domain.Comparison, error) {
	catalog, err := s.catalogs.Snapshot(ctx)
	if err != nil {
		return domain.Comparison{}, err
	}
	return s.CompareSnapshot(ctx, catalog, query)
}

// CompareSnapshot answers query against an explicit snapshot.
// Flow: check cache -> run engine -> cache -> return
func (s *ComparisonService) CompareSnapshot(ctx context.Context, catalog *domain.Catalog, query domain.Query) (domain.Comparison, error) {
	query, err := validateQuery(query)
	if err != nil {
		return domain.Comparison{}, err
	}

	cacheKey := s.generateCacheKey(catalog.Fingerprint(), query)

	if cached, err := s.getFromCache(ctx, cacheKey); err == nil {
		cached.Query = query
		return cached, nil
	}

	result, err := s.engine.Compare(ctx, catalog, query)
	if err != nil {
		return domain.Comparison{}, err
	}

	if err := s.setInCache(ctx, cacheKey, result); err != nil {
		// Cache failures never fail a query
		s.logger.Warn().Err(err).Str("key", cacheKey).Msg("failed to cache comparison")
	}

	return result, nil
}

// Overview ranks every group of the current snapshot
func (s *ComparisonService) Overview(ctx context.Context) (domain.Overview, error) {
	catalog, err := s.catalogs.Snapshot(ctx)
	if err != nil {
		return domain.Overview{}, err
	}
	return s.engine.Overview(ctx, catalog)
}

// generateCacheKey creates a cache key scoped to one snapshot.
// Format: "comparison:{fingerprint}:{listing|text}:{normalized}"
func (s *ComparisonService) generateCacheKey(fingerprint string, query domain.Query) string {
	if query.ListingID != "" {
		return fmt.Sprintf("comparison:%s:listing:%s", fingerprint, query.ListingID)
	}
	return fmt.Sprintf("comparison:%s:text:%s", fingerprint, normalizeForCacheKey(query.Text))
}

// normalizeForCacheKey folds text the same way the engine does before
// matching, so two texts share a key only if they share an answer.
// Punctuation is kept because substring matching sees it.
func normalizeForCacheKey(s string) string {
	return foldText(s)
}

// getFromCache retrieves a comparison from cache
func (s *ComparisonService) getFromCache(ctx context.Context, key string) (domain.Comparison, error) {
	if s.cache == nil {
		return domain.Comparison{}, domain.ErrCacheMiss
	}

	data, err := s.cache.Get(ctx, key)
	if err != nil {
		return domain.Comparison{}, err
	}

	var comparison domain.Comparison
	if err := json.Unmarshal(data, &comparison); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("discarding undecodable cache entry")
		return domain.Comparison{}, domain.ErrCacheMiss
	}
	return comparison, nil
}

// setInCache stores a comparison in cache
func (s *ComparisonService) setInCache(ctx context.Context, key string, comparison domain.Comparison) error {
	if s.cache == nil {
		return nil
	}
	data, err := json.Marshal(comparison)
	if err != nil {
		return err
	}
	return s.cache.Set(ctx, key, data, s.cacheTTL)
}
