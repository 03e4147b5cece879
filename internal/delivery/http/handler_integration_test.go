package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/chaniweb/backend/config"
	"github.com/chaniweb/backend/internal/domain"
	"github.com/chaniweb/backend/internal/infrastructure/cache"
	"github.com/chaniweb/backend/internal/usecase"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMain sets up test environment before running tests
func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

// stubProvider serves a fixed listing set and counts fetches
type stubProvider struct {
	mu       sync.Mutex
	listings []domain.Listing
	err      error
	calls    int
}

func (p *stubProvider) FetchCatalog(ctx context.Context) (*domain.Catalog, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return domain.NewCatalog(p.listings, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)), nil
}

func testListing(id, name, supermarket, price, quantity, unit string) domain.Listing {
	return domain.Listing{
		ID:          domain.ListingID(id),
		Name:        name,
		Supermarket: supermarket,
		Price:       decimal.RequireFromString(price),
		Quantity:    decimal.RequireFromString(quantity),
		Unit:        unit,
	}
}

func testCatalog() []domain.Listing {
	return []domain.Listing{
		testListing("1", "Aceite Girasol 1 L", "Tia", "3.50", "1", "l"),
		testListing("2", "ACEITE GIRASOL 1000 ml", "Supermaxi", "3.20", "1000", "ml"),
		testListing("3", "Arroz Conejo 2 kg", "Tia", "2.10", "2", "kg"),
		testListing("4", "Arroz Conejo 2000 g", "Aki", "2.00", "2000", "g"),
		testListing("5", "Jabon Barra", "Tia", "0.80", "3", "xyz"),
	}
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Port:           "8080",
			Environment:    "test",
			AllowedOrigins: []string{"http://localhost:*"},
		},
		Cache: config.CacheConfig{Type: "memory"},
	}
}

// setupTestRouter wires the real usecase stack over a stub provider
func setupTestRouter(t *testing.T, provider *stubProvider) *gin.Engine {
	t.Helper()

	logger := zerolog.Nop()
	memoryCache := cache.NewMemoryCache(100)
	t.Cleanup(func() { memoryCache.Close() })

	catalogs := usecase.NewCatalogService(provider, logger)
	engine := usecase.BuildComparisonEngine(usecase.EngineConfig{}, logger)
	comparisons := usecase.NewComparisonService(memoryCache, catalogs, engine, usecase.ComparisonServiceConfig{}, logger)

	return SetupRouter(testConfig(), NewHandler(comparisons, catalogs, logger), logger)
}

func doRequest(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestHealthCheckEndpoint(t *testing.T) {
	router := setupTestRouter(t, &stubProvider{})

	t.Run("returns healthy status", func(t *testing.T) {
		w := doRequest(router, http.MethodGet, "/health", "")
		require.Equal(t, http.StatusOK, w.Code)

		response := decodeBody[map[string]any](t, w)
		assert.Equal(t, "healthy", response["status"])
		assert.Equal(t, "chaniweb-backend", response["service"])
		assert.NotEmpty(t, response["version"])
		assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	})

	t.Run("accepts GET requests only", func(t *testing.T) {
		for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodDelete} {
			w := doRequest(router, method, "/health", "")
			assert.Equal(t, http.StatusNotFound, w.Code, method)
		}
	})
}

func TestCompareEndpoint(t *testing.T) {
	router := setupTestRouter(t, &stubProvider{})

	t.Run("ranks the group of a listing in the posted snapshot", func(t *testing.T) {
		body := `{
			"listings": [
				{"id": 1, "name": "Aceite Girasol 1 L", "supermarket": "Tia", "price": "3.50", "quantity": "1", "unit": "l"},
				{"id": 2, "name": "ACEITE GIRASOL 1000 ml", "supermarket": "Supermaxi", "price": 3.20, "quantity": 1000, "unit": "ml"}
			],
			"query": {"listing_id": 1}
		}`
		w := doRequest(router, http.MethodPost, "/api/v1/compare", body)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		result := decodeBody[domain.Comparison](t, w)
		assert.True(t, result.Found)
		require.Len(t, result.Groups, 1)
		assert.Equal(t, domain.ListingID("2"), result.Groups[0].Best.ID)
		assert.Equal(t, "3.2", result.Groups[0].Best.PricePerUnit.String())
		assert.Len(t, result.Groups[0].Members, 2)
	})

	t.Run("unknown listing is found=false", func(t *testing.T) {
		w := doRequest(router, http.MethodPost, "/api/v1/compare", `{"listings": [], "query": {"listing_id": "99"}}`)
		require.Equal(t, http.StatusOK, w.Code)

		result := decodeBody[domain.Comparison](t, w)
		assert.False(t, result.Found)
		assert.Empty(t, result.Groups)
	})

	t.Run("query with both id and text is rejected", func(t *testing.T) {
		w := doRequest(router, http.MethodPost, "/api/v1/compare", `{"listings": [], "query": {"listing_id": "1", "text": "arroz"}}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("malformed body is rejected", func(t *testing.T) {
		w := doRequest(router, http.MethodPost, "/api/v1/compare", `{"listings": [`)
		assert.Equal(t, http.StatusBadRequest, w.Code)

		response := decodeBody[ErrorResponse](t, w)
		assert.Contains(t, response.Error, "invalid request body")
		assert.NotEmpty(t, response.RequestID)
	})
}

func TestSearchComparisonsEndpoint(t *testing.T) {
	provider := &stubProvider{listings: testCatalog()}
	router := setupTestRouter(t, provider)

	t.Run("free text matches a group", func(t *testing.T) {
		w := doRequest(router, http.MethodGet, "/api/v1/comparisons?q=arroz", "")
		require.Equal(t, http.StatusOK, w.Code)

		result := decodeBody[domain.Comparison](t, w)
		assert.True(t, result.Found)
		require.Len(t, result.Groups, 1)
		assert.Equal(t, "Aki", result.Groups[0].Best.Supermarket)
		assert.Equal(t, 1, result.ExcludedCount)
		require.Len(t, result.InvalidListings, 1)
		assert.Equal(t, domain.DiagnosticUnrecognizedUnit, result.InvalidListings[0].Kind)
	})

	t.Run("no match is not an error", func(t *testing.T) {
		w := doRequest(router, http.MethodGet, "/api/v1/comparisons?q=chocolate", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.False(t, decodeBody[domain.Comparison](t, w).Found)
	})

	t.Run("missing q", func(t *testing.T) {
		w := doRequest(router, http.MethodGet, "/api/v1/comparisons", "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("snapshot is fetched once", func(t *testing.T) {
		provider.mu.Lock()
		defer provider.mu.Unlock()
		assert.Equal(t, 1, provider.calls)
	})
}

func TestListingComparisonEndpoint(t *testing.T) {
	router := setupTestRouter(t, &stubProvider{listings: testCatalog()})

	t.Run("listing in a group", func(t *testing.T) {
		w := doRequest(router, http.MethodGet, "/api/v1/listings/1/comparison", "")
		require.Equal(t, http.StatusOK, w.Code)

		result := decodeBody[domain.Comparison](t, w)
		require.Len(t, result.Groups, 1)
		assert.Equal(t, domain.ListingID("2"), result.Groups[0].Best.ID)
		assert.Equal(t, 1, result.Groups[0].Members[0].Rank)
		assert.Equal(t, "estimated_reference_price", result.Groups[0].Members[0].Estimate.Label)
	})

	t.Run("excluded listing is 404", func(t *testing.T) {
		w := doRequest(router, http.MethodGet, "/api/v1/listings/5/comparison", "")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("unknown listing is 404", func(t *testing.T) {
		w := doRequest(router, http.MethodGet, "/api/v1/listings/404/comparison", "")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestGroupsEndpoint(t *testing.T) {
	router := setupTestRouter(t, &stubProvider{listings: testCatalog()})

	w := doRequest(router, http.MethodGet, "/api/v1/groups", "")
	require.Equal(t, http.StatusOK, w.Code)

	overview := decodeBody[domain.Overview](t, w)
	require.Len(t, overview.Groups, 2)
	assert.Equal(t, 1, overview.ExcludedCount)
	assert.NotEmpty(t, overview.CatalogFingerprint)
	for i := 1; i < len(overview.Groups); i++ {
		assert.Less(t, overview.Groups[i-1].Key, overview.Groups[i].Key)
	}
}

func TestRefreshCatalogEndpoint(t *testing.T) {
	t.Run("loads a new snapshot", func(t *testing.T) {
		provider := &stubProvider{listings: testCatalog()}
		router := setupTestRouter(t, provider)

		w := doRequest(router, http.MethodPost, "/api/v1/catalog/refresh", "")
		require.Equal(t, http.StatusOK, w.Code)

		response := decodeBody[RefreshResponse](t, w)
		assert.Equal(t, 5, response.Listings)
		assert.Len(t, response.Fingerprint, 64)
	})

	t.Run("provider failure is 503", func(t *testing.T) {
		router := setupTestRouter(t, &stubProvider{err: errors.New("connection refused")})

		w := doRequest(router, http.MethodPost, "/api/v1/catalog/refresh", "")
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)

		w = doRequest(router, http.MethodGet, "/api/v1/groups", "")
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}

func TestUnconfiguredHandler(t *testing.T) {
	router := SetupRouter(testConfig(), NewHandler(nil, nil, zerolog.Nop()), zerolog.Nop())

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/v1/groups"},
		{http.MethodGet, "/api/v1/comparisons?q=arroz"},
		{http.MethodPost, "/api/v1/catalog/refresh"},
	} {
		w := doRequest(router, tc.method, tc.path, "")
		assert.Equal(t, http.StatusServiceUnavailable, w.Code, tc.path)
	}
}

func TestCORSIntegration(t *testing.T) {
	router := setupTestRouter(t, &stubProvider{})

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/compare", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
}
