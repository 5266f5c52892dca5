package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/catalog-import-console/internal/api"
	"github.com/catalog-import-console/internal/cache"
	"github.com/catalog-import-console/internal/catalog"
	"github.com/catalog-import-console/internal/config"
	"github.com/catalog-import-console/internal/database"
	"github.com/catalog-import-console/internal/repository"
	"github.com/catalog-import-console/internal/service"
	"github.com/catalog-import-console/internal/storage"
	"github.com/catalog-import-console/internal/validation"
	"github.com/catalog-import-console/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log := logger.New("info", "json")
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize logger
	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	log.Info().Msg("Starting catalog import console...")

	// Initialize database
	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	// Run migrations
	if err := db.RunMigrations(cfg.Database.MigrationsPath); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	// Initialize repositories
	repos := repository.New(db)

	// Catalog API client
	catalogClient := catalog.New(cfg.Catalog, log)

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelStartup()

	// Category cache; the console works without Redis
	redisClient, err := cache.Connect(startupCtx, cfg.Redis.URL)
	if err != nil {
		log.Warn().Err(err).Msg("Redis unavailable, category caching disabled")
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
		log.Info().Dur("ttl", cfg.Redis.CategoryTTL).Msg("Category cache enabled")
	}
	categories := cache.NewCategories(catalogClient, redisClient, cfg.Redis.CategoryTTL, log)

	deps := service.Deps{
		Repos:      repos,
		Catalog:    catalogClient,
		Categories: categories,
		Validator:  validation.NewValidator(cfg.Import.MaxUploadSize, cfg.Editor.MaxImageSize),
	}

	// Archive of committed files; optional
	archive, err := storage.NewMinio(cfg.Storage)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create object storage client")
	}
	if archive != nil {
		if err := archive.EnsureBucket(startupCtx); err != nil {
			log.Fatal().Err(err).Str("bucket", cfg.Storage.Bucket).Msg("Failed to prepare archive bucket")
		}
		deps.Archive = archive
		log.Info().Str("bucket", cfg.Storage.Bucket).Msg("Import file archive enabled")
	}

	// Initialize services
	services := service.NewServices(deps, cfg, log)

	// Start idle import janitor
	services.Import.StartJanitor(context.Background())
	log.Info().Dur("ttl", cfg.Import.SessionTTL).Msg("Import janitor started")

	// Initialize router
	router := api.NewRouter(services, cfg, log)

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.ReadTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("port", cfg.Server.Port).Str("catalog", cfg.Catalog.BaseURL).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Stop janitor
	services.Import.StopJanitor()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited gracefully")
}
