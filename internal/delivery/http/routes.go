package http

import (
	"github.com/chaniweb/backend/config"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// SetupRouter creates and configures the Gin router
func SetupRouter(cfg *config.Config, handler *Handler, logger zerolog.Logger) *gin.Engine {
	// Set Gin mode based on environment
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(RequestIDMiddleware())
	router.Use(RecoveryMiddleware(logger))
	router.Use(LoggerMiddleware(logger))
	router.Use(CORSMiddleware(cfg.Server.AllowedOrigins))

	// Health check endpoint
	router.GET("/health", handler.HealthCheck)

	// API v1 routes
	v1 := router.Group("/api/v1")
	v1.Use(RateLimitMiddleware(cfg.RateLimit.PerIP))
	{
		v1.POST("/compare", handler.Compare)
		v1.GET("/comparisons", handler.SearchComparisons)
		v1.GET("/listings/:id/comparison", handler.ListingComparison)
		v1.GET("/groups", handler.Groups)
		v1.POST("/catalog/refresh", handler.RefreshCatalog)
	}

	return router
}
