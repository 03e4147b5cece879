package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/chaniweb/backend/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(baseURL string, pageSize int) *Client {
	return NewClient(ClientConfig{
		BaseURL:           baseURL,
		PageSize:          pageSize,
		RequestsPerSecond: 1000,
		Timeout:           5 * time.Second,
	}, zerolog.Nop())
}

// productsHandler serves n products through skip/limit paging
func productsHandler(t *testing.T, n int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/products/", r.URL.Path)
		skip, _ := strconv.Atoi(r.URL.Query().Get("skip"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

		page := []map[string]any{}
		for i := skip; i < n && i < skip+limit; i++ {
			page = append(page, map[string]any{
				"id":              i + 1,
				"external_id":     fmt.Sprintf("EXT-%d", i),
				"name":            fmt.Sprintf("ARROZ %d KG", i+1),
				"supermarket":     "Tia",
				"price":           1.25,
				"image_url":       nil,
				"normalized_name": "ARROZ",
				"quantity":        i + 1,
				"unit":            "kg",
				"price_per_unit":  1.25,
			})
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(page)
	}
}

func TestNewClient(t *testing.T) {
	client := NewClient(ClientConfig{BaseURL: "https://api.example.com/"}, zerolog.Nop())

	assert.NotNil(t, client)
	assert.Equal(t, "https://api.example.com", client.baseURL)
	assert.Equal(t, 100, client.pageSize)
	assert.NotNil(t, client.httpClient)
	assert.Equal(t, 30*time.Second, client.httpClient.Timeout)
	assert.NotNil(t, client.rateLimiter)
	assert.False(t, client.debug)
}

func TestSetDebug(t *testing.T) {
	client := newTestClient("https://api.example.com", 10)

	client.SetDebug(true)
	assert.True(t, client.debug)

	client.SetDebug(false)
	assert.False(t, client.debug)
}

func TestExponentialBackoff(t *testing.T) {
	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{1, 500 * time.Millisecond},
		{2, 1000 * time.Millisecond},
		{3, 2000 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(strconv.Itoa(tt.attempt), func(t *testing.T) {
			assert.Equal(t, tt.expected, exponentialBackoff(tt.attempt))
		})
	}
}

func TestFetchCatalog_Paging(t *testing.T) {
	var requests atomic.Int32
	handler := productsHandler(t, 25)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		handler(w, r)
	}))
	defer server.Close()

	client := newTestClient(server.URL, 10)
	client.SetDebug(true)

	catalog, err := client.FetchCatalog(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 25, catalog.Len())
	assert.Equal(t, int32(3), requests.Load())

	listings := catalog.Listings()
	assert.Equal(t, domain.ListingID("1"), listings[0].ID)
	assert.Equal(t, "kg", listings[0].Unit)
	assert.True(t, listings[24].Quantity.Equal(dec("25")))
}

func TestFetchCatalog_ExactPageBoundary(t *testing.T) {
	var requests atomic.Int32
	handler := productsHandler(t, 20)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		handler(w, r)
	}))
	defer server.Close()

	catalog, err := newTestClient(server.URL, 10).FetchCatalog(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 20, catalog.Len())
	// Two full pages, then an empty one ends the scan
	assert.Equal(t, int32(3), requests.Load())
}

func TestFetchCatalog_Empty(t *testing.T) {
	server := httptest.NewServer(productsHandler(t, 0))
	defer server.Close()

	catalog, err := newTestClient(server.URL, 10).FetchCatalog(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, catalog.Len())
}

func TestFetchCatalog_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	catalog, err := newTestClient(server.URL, 10).FetchCatalog(context.Background())
	assert.Nil(t, catalog)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestFetchCatalog_BadRequestIsPermanent(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL, 10).FetchCatalog(context.Background())
	assert.ErrorIs(t, err, domain.ErrCatalogUnavailable)
	assert.Equal(t, int32(1), requests.Load())
}

func TestFetchCatalog_ServerError_Retries(t *testing.T) {
	var attempts atomic.Int32
	handler := productsHandler(t, 3)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		handler(w, r)
	}))
	defer server.Close()

	catalog, err := newTestClient(server.URL, 10).FetchCatalog(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, catalog.Len())
	assert.Equal(t, int32(2), attempts.Load())
}

func TestFetchCatalog_InvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("{not json"))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL, 10).FetchCatalog(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode")
}

func TestFetchCatalog_ContextCanceled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestClient(server.URL, 10).FetchCatalog(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
