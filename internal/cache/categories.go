package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/catalog-import-console/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// CategoryListKey is the Redis key of the cached category tree
const CategoryListKey = "catalog-import:categories:list"

// CategorySource lists the category tree
type CategorySource interface {
	ListCategories(ctx context.Context) ([]models.Category, error)
}

// Categories caches a CategorySource in Redis. A nil client disables caching;
// Redis failures fall back to the source.
type Categories struct {
	source CategorySource
	redis  *redis.Client
	ttl    time.Duration
	log    zerolog.Logger
}

// NewCategories wraps source with a Redis cache
func NewCategories(source CategorySource, client *redis.Client, ttl time.Duration, log zerolog.Logger) *Categories {
	return &Categories{
		source: source,
		redis:  client,
		ttl:    ttl,
		log:    log.With().Str("component", "category_cache").Logger(),
	}
}

// ListCategories returns the cached tree or loads and caches it
func (c *Categories) ListCategories(ctx context.Context) ([]models.Category, error) {
	if c.redis != nil {
		val, err := c.redis.Get(ctx, CategoryListKey).Result()
		if err == nil {
			var categories []models.Category
			if err := json.Unmarshal([]byte(val), &categories); err == nil {
				return categories, nil
			}
			c.log.Warn().Msg("Discarding undecodable cached categories")
		} else if err != redis.Nil {
			c.log.Warn().Err(err).Msg("Category cache read failed")
		}
	}

	categories, err := c.source.ListCategories(ctx)
	if err != nil {
		return nil, err
	}

	if c.redis != nil {
		if data, err := json.Marshal(categories); err == nil {
			if err := c.redis.Set(ctx, CategoryListKey, data, c.ttl).Err(); err != nil {
				c.log.Warn().Err(err).Msg("Category cache write failed")
			}
		}
	}

	return categories, nil
}

// Invalidate drops the cached tree
func (c *Categories) Invalidate(ctx context.Context) error {
	if c.redis == nil {
		return nil
	}
	return c.redis.Del(ctx, CategoryListKey).Err()
}

// Connect parses a redis:// URL and pings the server. An empty URL returns a
// nil client.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	if url == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}
