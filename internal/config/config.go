package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// Catalog API the console talks to
	Catalog CatalogConfig

	// Import workflow configuration
	Import ImportConfig

	// Product editor configuration
	Editor EditorConfig

	// Redis category cache
	Redis RedisConfig

	// Object storage for archived import files
	Storage StorageConfig

	// Logging configuration
	Log LogConfig
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowOrigins    []string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host           string
	Port           string
	User           string
	Password       string
	Name           string
	SSLMode        string
	MaxOpenConns   int
	MaxIdleConns   int
	MaxLifetime    time.Duration
	MigrationsPath string
}

// CatalogConfig holds the external catalog API location and endpoint paths
type CatalogConfig struct {
	BaseURL            string
	Timeout            time.Duration
	ValidateBatchPath  string
	BatchUploadPath    string
	CreateProductPath  string
	EditProductPath    string // contains {id}
	ProductImagesPath  string // contains {id}
	ListCategoriesPath string
}

// ImportConfig holds import workflow settings
type ImportConfig struct {
	MaxUploadSize  int64 // in bytes
	SessionTTL     time.Duration
	JanitorPeriod  time.Duration
	RequestTimeout time.Duration
	HistoryLimit   int
}

// EditorConfig holds single-product editor settings
type EditorConfig struct {
	PrivilegedRoles []string
	MaxImageSize    int64
}

// RedisConfig holds the category cache settings. An empty URL disables caching.
type RedisConfig struct {
	URL         string
	CategoryTTL time.Duration
}

// StorageConfig holds MinIO settings. An empty endpoint disables archiving.
type StorageConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

// LogConfig holds logging settings
type LogConfig struct {
	Level  string
	Format string // "json" or "pretty"
}

// Load reads configuration from environment variables, after an optional .env file
func Load() (*Config, error) {
	// A missing .env is normal outside local development
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", "8080"),
			ReadTimeout:     getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getDurationEnv("SERVER_WRITE_TIMEOUT", 120*time.Second),
			ShutdownTimeout: getDurationEnv("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			AllowOrigins:    getListEnv("CORS_ALLOW_ORIGINS", []string{"*"}),
		},
		Database: DatabaseConfig{
			Host:           getEnv("DB_HOST", "localhost"),
			Port:           getEnv("DB_PORT", "5432"),
			User:           getEnv("DB_USER", "postgres"),
			Password:       getEnv("DB_PASSWORD", "postgres"),
			Name:           getEnv("DB_NAME", "catalog_import"),
			SSLMode:        getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:   getIntEnv("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:   getIntEnv("DB_MAX_IDLE_CONNS", 5),
			MaxLifetime:    getDurationEnv("DB_MAX_LIFETIME", 5*time.Minute),
			MigrationsPath: getEnv("MIGRATIONS_PATH", "./migrations"),
		},
		Catalog: CatalogConfig{
			BaseURL:            getEnv("CATALOG_API_URL", "http://localhost:8000"),
			Timeout:            getDurationEnv("CATALOG_API_TIMEOUT", 60*time.Second),
			ValidateBatchPath:  getEnv("CATALOG_VALIDATE_BATCH_PATH", "/api/products/validate-batch"),
			BatchUploadPath:    getEnv("CATALOG_BATCH_UPLOAD_PATH", "/api/products/batch-upload"),
			CreateProductPath:  getEnv("CATALOG_CREATE_PRODUCT_PATH", "/api/products"),
			EditProductPath:    getEnv("CATALOG_EDIT_PRODUCT_PATH", "/api/products/{id}"),
			ProductImagesPath:  getEnv("CATALOG_PRODUCT_IMAGES_PATH", "/api/products/{id}/images"),
			ListCategoriesPath: getEnv("CATALOG_LIST_CATEGORIES_PATH", "/api/categories"),
		},
		Import: ImportConfig{
			MaxUploadSize:  getInt64Env("MAX_UPLOAD_SIZE", 20*1024*1024), // 20MB
			SessionTTL:     getDurationEnv("IMPORT_SESSION_TTL", 2*time.Hour),
			JanitorPeriod:  getDurationEnv("IMPORT_JANITOR_PERIOD", time.Minute),
			RequestTimeout: getDurationEnv("IMPORT_REQUEST_TIMEOUT", 90*time.Second),
			HistoryLimit:   getIntEnv("IMPORT_HISTORY_LIMIT", 50),
		},
		Editor: EditorConfig{
			PrivilegedRoles: getListEnv("EDITOR_PRIVILEGED_ROLES", []string{"admin", "superadmin"}),
			MaxImageSize:    getInt64Env("MAX_IMAGE_SIZE", 10*1024*1024),
		},
		Redis: RedisConfig{
			URL:         getEnv("REDIS_URL", ""),
			CategoryTTL: getDurationEnv("CATEGORY_CACHE_TTL", 5*time.Minute),
		},
		Storage: StorageConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", ""),
			AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey: getEnv("MINIO_SECRET_KEY", ""),
			UseSSL:    getBoolEnv("MINIO_USE_SSL", false),
			Bucket:    getEnv("MINIO_IMPORT_BUCKET", "catalog-imports"),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	// Validate required configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return fmt.Errorf("DB_HOST is required")
	}
	if c.Database.Name == "" {
		return fmt.Errorf("DB_NAME is required")
	}
	if c.Catalog.BaseURL == "" {
		return fmt.Errorf("CATALOG_API_URL is required")
	}
	if !strings.Contains(c.Catalog.EditProductPath, "{id}") {
		return fmt.Errorf("CATALOG_EDIT_PRODUCT_PATH must contain {id}")
	}
	if !strings.Contains(c.Catalog.ProductImagesPath, "{id}") {
		return fmt.Errorf("CATALOG_PRODUCT_IMAGES_PATH must contain {id}")
	}
	if c.Storage.Endpoint != "" && c.Storage.Bucket == "" {
		return fmt.Errorf("MINIO_IMPORT_BUCKET is required when MINIO_ENDPOINT is set")
	}
	if c.Import.MaxUploadSize <= 0 {
		return fmt.Errorf("MAX_UPLOAD_SIZE must be positive")
	}
	return nil
}

// GetDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// Helper functions for environment variable parsing

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getInt64Env(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
