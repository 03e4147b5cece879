package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/chaniweb/backend/internal/domain"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	maxAttempts = 3
	maxPages    = 10000
)

// ClientConfig holds configuration for the catalog API client
type ClientConfig struct {
	BaseURL           string
	PageSize          int
	RequestsPerSecond float64
	Timeout           time.Duration
}

// Client reads the product catalog from the ingestion backend's REST API
type Client struct {
	httpClient  *http.Client
	baseURL     string
	pageSize    int
	rateLimiter *rate.Limiter
	logger      zerolog.Logger
	debug       bool
}

// NewClient creates a new catalog API client
func NewClient(cfg ClientConfig, logger zerolog.Logger) *Client {
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 100 // The backend's default page size
	}

	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		pageSize:    pageSize,
		rateLimiter: rate.NewLimiter(rate.Limit(rps), 1),
		logger:      logger.With().Str("component", "catalog_client").Logger(),
	}
}

// SetDebug enables or disables per-page debug logging
func (c *Client) SetDebug(debug bool) {
	c.debug = debug
}

// FetchCatalog pages through /products/ and returns one snapshot of all listings
func (c *Client) FetchCatalog(ctx context.Context) (*domain.Catalog, error) {
	var records []ProductRecord

	for page := 0; page < maxPages; page++ {
		batch, err := c.fetchPage(ctx, page*c.pageSize)
		if err != nil {
			return nil, err
		}
		records = append(records, batch...)

		if c.debug {
			c.logger.Debug().Int("page", page).Int("records", len(batch)).Msg("fetched catalog page")
		}

		if len(batch) < c.pageSize {
			break
		}
	}

	c.logger.Info().Int("records", len(records)).Msg("catalog fetched")
	return domain.NewCatalog(MapToListings(records), time.Now()), nil
}

// doRequest executes an HTTP GET request with proper headers and error handling
func (c *Client) doRequest(ctx context.Context, reqURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "ChaniWeb/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCatalogUnavailable, err)
	}

	return resp, nil
}

// fetchPage fetches one page, retrying transient failures
func (c *Client) fetchPage(ctx context.Context, skip int) ([]ProductRecord, error) {
	params := url.Values{}
	params.Add("skip", strconv.Itoa(skip))
	params.Add("limit", strconv.Itoa(c.pageSize))
	reqURL := fmt.Sprintf("%s/products/?%s", c.baseURL, params.Encode())

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		// Wait for rate limiter
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter error: %w", err)
		}

		resp, err := c.doRequest(ctx, reqURL)
		if err != nil {
			c.logger.Warn().Err(err).Int("attempt", attempt).Int("skip", skip).Msg("catalog request failed")
			lastErr = err
			if err := sleep(ctx, exponentialBackoff(attempt)); err != nil {
				return nil, err
			}
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		// Retry on 5xx and 429; other statuses are permanent
		if resp.StatusCode != http.StatusOK {
			c.logger.Warn().Int("attempt", attempt).Int("status", resp.StatusCode).Str("body", truncate(body, 200)).Msg("catalog API error")
			switch {
			case resp.StatusCode == http.StatusNotFound:
				return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, reqURL)
			case resp.StatusCode == http.StatusTooManyRequests:
				lastErr = domain.ErrRateLimited
			case resp.StatusCode >= 500:
				lastErr = fmt.Errorf("%w: status %d", domain.ErrCatalogUnavailable, resp.StatusCode)
			default:
				return nil, fmt.Errorf("%w: status %d", domain.ErrCatalogUnavailable, resp.StatusCode)
			}
			if err := sleep(ctx, exponentialBackoff(attempt)); err != nil {
				return nil, err
			}
			continue
		}
		if readErr != nil {
			lastErr = fmt.Errorf("%w: read body: %v", domain.ErrCatalogUnavailable, readErr)
			continue
		}

		var records []ProductRecord
		if err := json.Unmarshal(body, &records); err != nil {
			return nil, fmt.Errorf("failed to decode response: %w", err)
		}
		return records, nil
	}

	c.logger.Error().Err(lastErr).Int("skip", skip).Msg("all retries failed")
	return nil, lastErr
}

// exponentialBackoff returns the wait before retrying after the given attempt
func exponentialBackoff(attempt int) time.Duration {
	return time.Duration(500*(1<<(attempt-1))) * time.Millisecond
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
