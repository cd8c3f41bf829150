package router

import (
	"context"
	"strconv"
	"time"

	"github.com/ManuelReschke/MemoWindow/internal/pkg/cache"
	"github.com/ManuelReschke/MemoWindow/internal/pkg/config"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/storage/redis"
)

// limiterDatabase keeps rate limit counters apart from the cache keys.
const limiterDatabase = 2

// NewLimiterStorage shares rate limit counters between instances through
// Redis. It returns nil, and the limiter falls back to memory, when the cache
// server is unreachable.
func NewLimiterStorage(cfg config.CacheConfig, c *cache.Cache) fiber.Storage {
	if c == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Ping(ctx); err != nil {
		log.Warnf("[Router] Cache unreachable, rate limits are per instance: %v", err)
		return nil
	}

	port, err := strconv.Atoi(cfg.Port)
	if err != nil {
		port = 6379
	}
	return redis.New(redis.Config{
		Host:     cfg.Host,
		Port:     port,
		Password: cfg.Password,
		Database: limiterDatabase,
		Reset:    false,
	})
}
