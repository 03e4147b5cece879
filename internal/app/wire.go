// Package app assembles the comparison stack from configuration.
package app

import (
	"fmt"

	"github.com/chaniweb/backend/config"
	"github.com/chaniweb/backend/internal/domain"
	"github.com/chaniweb/backend/internal/infrastructure/cache"
	"github.com/chaniweb/backend/internal/infrastructure/catalog"
	"github.com/chaniweb/backend/internal/usecase"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// EngineConfig maps the matching section onto the engine stages
func EngineConfig(m config.MatchingConfig) usecase.EngineConfig {
	policy := usecase.UnrecognizedUnitExclude
	if m.UnrecognizedUnitPolicy == "singleton" {
		policy = usecase.UnrecognizedUnitSingleton
	}

	return usecase.EngineConfig{
		Keys: usecase.KeyExtractorConfig{
			SignificantTokens: m.SignificantTokens,
			QuantityTolerance: m.QuantityTolerance,
			StopWords:         m.StopWords,
			Brands:            m.Brands,
		},
		Matching: usecase.MatchConfig{
			SimilarityThreshold:    m.SimilarityThreshold,
			EnableFuzzyMatching:    m.EnableFuzzyMatching,
			FuzzyEditDistance:      m.FuzzyEditDistance,
			Workers:                m.Workers,
			UnrecognizedUnitPolicy: policy,
			EnableDebugLogging:     m.EnableDebugLogging,
		},
		Ranking: usecase.RankerConfig{
			EstimateFactor: decimal.NewFromFloat(m.EstimateFactor),
		},
	}
}

// NewCatalogProvider picks the HTTP or file catalog source
func NewCatalogProvider(cfg config.CatalogConfig, debug bool, logger zerolog.Logger) (domain.CatalogProvider, error) {
	switch cfg.Source {
	case "http":
		client := catalog.NewClient(catalog.ClientConfig{
			BaseURL:           cfg.BaseURL,
			PageSize:          cfg.PageSize,
			RequestsPerSecond: cfg.RequestsPerSecond,
			Timeout:           cfg.Timeout,
		}, logger)
		client.SetDebug(debug)
		return client, nil
	case "file":
		return catalog.NewFileProvider(cfg.FilePath, logger), nil
	default:
		return nil, fmt.Errorf("unknown catalog source %q", cfg.Source)
	}
}

// Cache is a cache repository that owns background resources
type Cache interface {
	domain.CacheRepository
	Close() error
}

// NewCache builds the configured cache backend
func NewCache(cfg config.CacheConfig) (Cache, error) {
	switch cfg.Type {
	case "memory":
		return cache.NewMemoryCache(0), nil
	case "redis":
		redisCache, err := cache.NewRedisCache(cache.RedisConfig{URL: cfg.RedisURL})
		if err != nil {
			return nil, err
		}
		return redisCache, nil
	default:
		return nil, fmt.Errorf("unknown cache type %q", cfg.Type)
	}
}
