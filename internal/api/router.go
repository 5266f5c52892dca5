package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/catalog-import-console/internal/config"
	"github.com/catalog-import-console/internal/models"
	"github.com/catalog-import-console/internal/repository"
	"github.com/catalog-import-console/internal/service"
	"github.com/catalog-import-console/internal/validation"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const principalKey = "principal"

// NewRouter creates and configures the Gin router
func NewRouter(services *service.Services, cfg *config.Config, log zerolog.Logger) *gin.Engine {
	router := gin.New()

	// Middleware
	router.Use(recoveryMiddleware(log))
	router.Use(loggingMiddleware(log))
	router.Use(corsMiddleware(cfg.Server.AllowOrigins))
	router.Use(principalMiddleware())

	// Handlers
	validator := validation.NewValidator(cfg.Import.MaxUploadSize, cfg.Editor.MaxImageSize)
	importHandler := NewImportHandler(services, validator, cfg, log)
	historyHandler := NewHistoryHandler(services, log)
	productHandler := NewProductHandler(services, cfg, log)

	// Health check
	router.GET("/health", healthCheck(services))
	router.GET("/metrics", metricsHandler(services))

	// API v1
	v1 := router.Group("/v1")
	{
		// Import workflow endpoints
		imports := v1.Group("/imports")
		{
			imports.GET("/template", importHandler.GetTemplate)
			imports.POST("", importHandler.CreateImport)
			imports.GET("/:id", importHandler.GetImport)
			imports.PUT("/:id/file", importHandler.SelectFile)
			imports.POST("/:id/validate", importHandler.Validate)
			imports.POST("/:id/commit", importHandler.Commit)
			imports.POST("/:id/clear", importHandler.Clear)
			imports.POST("/:id/upload-another", importHandler.UploadAnother)
			imports.DELETE("/:id", importHandler.DeleteImport)
		}

		// Committed import history
		runs := v1.Group("/import-runs")
		{
			runs.GET("", historyHandler.ListRuns)
			runs.GET("/:run_id", historyHandler.GetRun)
			runs.GET("/:run_id/errors", historyHandler.GetRunErrors)
		}

		// Single-product editor endpoints
		v1.GET("/categories", productHandler.ListCategories)
		v1.GET("/categories/:category/subcategories", productHandler.ListSubcategories)
		v1.POST("/products", productHandler.CreateProduct)
		v1.PATCH("/products/:id", productHandler.UpdateProduct)
	}

	return router
}

// healthCheck returns the health status. Import workflows keep working
// without the history database, so a failed ping degrades rather than fails.
func healthCheck(services *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := contextWithTimeout(c, 2*time.Second)
		defer cancel()

		status, database := "healthy", "ok"
		if err := services.History.Ping(ctx); err != nil {
			status, database = "degraded", "unavailable"
		}

		c.JSON(http.StatusOK, gin.H{
			"status":         status,
			"database":       database,
			"timestamp":      time.Now().Format(time.RFC3339),
			"service":        "catalog-import-console",
			"active_imports": services.Import.Count(),
		})
	}
}

// metricsHandler returns import metrics
func metricsHandler(services *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		counts := gin.H{}
		for _, status := range []models.ImportRunStatus{
			models.ImportRunStatusCommitted, models.ImportRunStatusPartial, models.ImportRunStatusRejected,
		} {
			list, err := services.History.ListRuns(ctx, repository.ListFilter{Status: status, Limit: 1})
			if err != nil {
				counts[string(status)] = nil
				continue
			}
			counts[string(status)] = list.Total
		}

		c.JSON(http.StatusOK, gin.H{
			"imports": gin.H{
				"active": services.Import.Count(),
			},
			"runs":      counts,
			"timestamp": time.Now().Format(time.RFC3339),
		})
	}
}

// recoveryMiddleware handles panics
func recoveryMiddleware(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.Error().Interface("error", err).Str("path", c.Request.URL.Path).Msg("Panic recovered")
				c.JSON(http.StatusInternalServerError, gin.H{
					"error": "Internal server error",
				})
				c.Abort()
			}
		}()
		c.Next()
	}
}

// loggingMiddleware logs requests
func loggingMiddleware(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		duration := time.Since(start)
		statusCode := c.Writer.Status()

		event := log.Info()
		if statusCode >= 400 {
			event = log.Warn()
		}
		if statusCode >= 500 {
			event = log.Error()
		}

		event.
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", statusCode).
			Dur("duration", duration).
			Str("client_ip", c.ClientIP()).
			Str("user_id", c.GetHeader("X-User-ID")).
			Msg("Request completed")
	}
}

// corsMiddleware allows the admin UI origins. "*" allows every origin.
func corsMiddleware(origins []string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Length", "Content-Type", "Authorization", "X-User-ID", "X-User-Role"},
		ExposeHeaders: []string{"Content-Length", "Content-Disposition"},
		MaxAge:        12 * time.Hour,
	}

	allowAll := len(origins) == 0
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
	}
	if allowAll {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = origins
		config.AllowCredentials = true
	}

	return cors.New(config)
}

// principalMiddleware reads the operator identity asserted by the gateway
func principalMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(principalKey, models.Principal{
			UserID:        strings.TrimSpace(c.GetHeader("X-User-ID")),
			Role:          strings.TrimSpace(c.GetHeader("X-User-Role")),
			Authorization: c.GetHeader("Authorization"),
		})
		c.Next()
	}
}

// contextWithTimeout creates a context with timeout from gin context
func contextWithTimeout(c *gin.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), timeout)
}

func principalFrom(c *gin.Context) models.Principal {
	if v, ok := c.Get(principalKey); ok {
		if p, ok := v.(models.Principal); ok {
			return p
		}
	}
	return models.Principal{}
}
