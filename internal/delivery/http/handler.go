package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/chaniweb/backend/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const (
	serviceName    = "chaniweb-backend"
	serviceVersion = "1.0.0"
)

// ComparisonService is the usecase surface the handlers need
type ComparisonService interface {
	Compare(ctx context.Context, query domain.Query) (domain.Comparison, error)
	CompareSnapshot(ctx context.Context, catalog *domain.Catalog, query domain.Query) (domain.Comparison, error)
	Overview(ctx context.Context) (domain.Overview, error)
}

// CatalogRefresher reloads the catalog snapshot on demand
type CatalogRefresher interface {
	Refresh(ctx context.Context) (*domain.Catalog, error)
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	comparisons ComparisonService
	catalogs    CatalogRefresher
	logger      zerolog.Logger
}

// NewHandler creates a new HTTP handler. Nil services make their endpoints
// answer 503.
func NewHandler(comparisons ComparisonService, catalogs CatalogRefresher, logger zerolog.Logger) *Handler {
	return &Handler{
		comparisons: comparisons,
		catalogs:    catalogs,
		logger:      logger.With().Str("component", "http").Logger(),
	}
}

// ErrorResponse is the body of every non-2xx answer
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// CompareRequest carries an explicit catalog snapshot and one query
type CompareRequest struct {
	Listings []domain.Listing `json:"listings"`
	Query    domain.Query     `json:"query"`
}

// RefreshResponse describes the snapshot loaded by a refresh
type RefreshResponse struct {
	Listings    int       `json:"listings"`
	Fingerprint string    `json:"fingerprint"`
	FetchedAt   time.Time `json:"fetched_at"`
}

// HealthCheck returns the health status of the API
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": serviceName,
		"version": serviceVersion,
	})
}

// Compare handles POST /api/v1/compare against the listings in the body
func (h *Handler) Compare(c *gin.Context) {
	if h.comparisons == nil {
		h.unavailable(c)
		return
	}

	var req CompareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	catalog := domain.NewCatalog(req.Listings, time.Now())
	result, err := h.comparisons.CompareSnapshot(c.Request.Context(), catalog, req.Query)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// SearchComparisons handles GET /api/v1/comparisons?q= against the current snapshot.
// No match is a 200 with found=false.
func (h *Handler) SearchComparisons(c *gin.Context) {
	if h.comparisons == nil {
		h.unavailable(c)
		return
	}

	text := strings.TrimSpace(c.Query("q"))
	if text == "" {
		h.respondError(c, http.StatusBadRequest, "query parameter q is required")
		return
	}

	result, err := h.comparisons.Compare(c.Request.Context(), domain.Query{Text: text})
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// ListingComparison handles GET /api/v1/listings/:id/comparison.
// A listing that is not part of any group answers 404.
func (h *Handler) ListingComparison(c *gin.Context) {
	if h.comparisons == nil {
		h.unavailable(c)
		return
	}

	id := domain.ListingID(strings.TrimSpace(c.Param("id")))
	result, err := h.comparisons.Compare(c.Request.Context(), domain.Query{ListingID: id})
	if err != nil {
		h.handleError(c, err)
		return
	}

	if !result.Found {
		h.respondError(c, http.StatusNotFound, "listing "+id.String()+" not found in any group")
		return
	}

	c.JSON(http.StatusOK, result)
}

// Groups handles GET /api/v1/groups
func (h *Handler) Groups(c *gin.Context) {
	if h.comparisons == nil {
		h.unavailable(c)
		return
	}

	overview, err := h.comparisons.Overview(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, overview)
}

// RefreshCatalog handles POST /api/v1/catalog/refresh
func (h *Handler) RefreshCatalog(c *gin.Context) {
	if h.catalogs == nil {
		h.unavailable(c)
		return
	}

	catalog, err := h.catalogs.Refresh(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, RefreshResponse{
		Listings:    catalog.Len(),
		Fingerprint: catalog.Fingerprint(),
		FetchedAt:   catalog.FetchedAt(),
	})
}

// handleError maps domain errors onto HTTP statuses
func (h *Handler) handleError(c *gin.Context, err error) {
	_ = c.Error(err)

	switch {
	case errors.Is(err, domain.ErrInvalidQuery):
		h.respondError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		h.respondError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrRateLimited):
		h.respondError(c, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, domain.ErrCanceled), errors.Is(err, context.DeadlineExceeded):
		h.respondError(c, http.StatusServiceUnavailable, "comparison canceled")
	case errors.Is(err, domain.ErrCatalogUnavailable):
		h.respondError(c, http.StatusServiceUnavailable, "catalog unavailable")
	default:
		h.logger.Error().Err(err).Str("request_id", requestID(c)).Msg("unhandled error")
		h.respondError(c, http.StatusInternalServerError, "internal server error")
	}
}

func (h *Handler) unavailable(c *gin.Context) {
	h.respondError(c, http.StatusServiceUnavailable, "comparison service not configured")
}

func (h *Handler) respondError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, ErrorResponse{
		Error:     message,
		RequestID: requestID(c),
	})
}
