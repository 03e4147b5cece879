package app

import (
	"context"
	"testing"

	"github.com/chaniweb/backend/config"
	"github.com/chaniweb/backend/internal/domain"
	"github.com/chaniweb/backend/internal/infrastructure/cache"
	"github.com/chaniweb/backend/internal/infrastructure/catalog"
	"github.com/chaniweb/backend/internal/usecase"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngineConfig(t *testing.T) {
	cfg := EngineConfig(config.MatchingConfig{
		SimilarityThreshold:    0.7,
		SignificantTokens:      3,
		QuantityTolerance:      0.1,
		Brands:                 []string{"conejo"},
		UnrecognizedUnitPolicy: "singleton",
		Workers:                2,
		EstimateFactor:         1.5,
		EnableFuzzyMatching:    true,
		FuzzyEditDistance:      2,
	})

	assert.Equal(t, 3, cfg.Keys.SignificantTokens)
	assert.Equal(t, 0.1, cfg.Keys.QuantityTolerance)
	assert.Equal(t, []string{"conejo"}, cfg.Keys.Brands)
	assert.Equal(t, 0.7, cfg.Matching.SimilarityThreshold)
	assert.Equal(t, usecase.UnrecognizedUnitSingleton, cfg.Matching.UnrecognizedUnitPolicy)
	assert.Equal(t, 2, cfg.Matching.Workers)
	assert.True(t, cfg.Matching.EnableFuzzyMatching)
	assert.Equal(t, "1.5", cfg.Ranking.EstimateFactor.String())

	assert.Equal(t, usecase.UnrecognizedUnitExclude,
		EngineConfig(config.MatchingConfig{UnrecognizedUnitPolicy: "exclude"}).Matching.UnrecognizedUnitPolicy)
}

func TestNewCatalogProvider(t *testing.T) {
	t.Run("http", func(t *testing.T) {
		p, err := NewCatalogProvider(config.CatalogConfig{Source: "http", BaseURL: "http://localhost:8000"}, true, zerolog.Nop())
		require.NoError(t, err)
		assert.IsType(t, &catalog.Client{}, p)
	})

	t.Run("file", func(t *testing.T) {
		p, err := NewCatalogProvider(config.CatalogConfig{Source: "file", FilePath: "catalog.json"}, false, zerolog.Nop())
		require.NoError(t, err)
		assert.IsType(t, &catalog.FileProvider{}, p)
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := NewCatalogProvider(config.CatalogConfig{Source: "ftp"}, false, zerolog.Nop())
		assert.Error(t, err)
	})
}

func TestNewCache(t *testing.T) {
	t.Run("memory", func(t *testing.T) {
		c, err := NewCache(config.CacheConfig{Type: "memory"})
		require.NoError(t, err)
		defer c.Close()
		assert.IsType(t, &cache.MemoryCache{}, c)

		_, err = c.Get(context.Background(), "missing")
		assert.ErrorIs(t, err, domain.ErrCacheMiss)
	})

	t.Run("redis unreachable", func(t *testing.T) {
		c, err := NewCache(config.CacheConfig{Type: "redis", RedisURL: "redis://127.0.0.1:1/0"})
		assert.Nil(t, c)
		assert.ErrorIs(t, err, domain.ErrCacheUnavailable)
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := NewCache(config.CacheConfig{Type: "disk"})
		assert.Error(t, err)
	})
}
