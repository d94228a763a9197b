package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/yashrajoria/inventory-reservation-service/models"
	"go.uber.org/zap"
)

const (
	StatusKeyPrefix     = "inventory:status:"
	GenerationKeyPrefix = "inventory:status:gen:"
	DefaultStatusTTL    = 60 * time.Second
)

// RedisStockCache stores stock status in Redis, shared by every instance.
type RedisStockCache struct {
	redis  *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewRedisStockCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisStockCache {
	if ttl <= 0 {
		ttl = DefaultStatusTTL
	}
	return &RedisStockCache{redis: client, ttl: ttl, logger: logger}
}

func (c *RedisStockCache) Shared() bool { return true }

func (c *RedisStockCache) Lookup(ctx context.Context, productID string) (*models.StockStatus, Generation, bool) {
	gen, err := c.generation(ctx, productID)
	if err != nil {
		c.logger.Warn("Stock cache unavailable, reading through", zap.String("product_id", productID), zap.Error(err))
		return nil, -1, false
	}

	data, err := c.redis.Get(ctx, statusKey(productID, gen)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("Stock cache read failed", zap.String("product_id", productID), zap.Error(err))
			return nil, -1, false
		}
		return nil, gen, false
	}

	var status models.StockStatus
	if err := json.Unmarshal(data, &status); err != nil {
		c.logger.Warn("Failed to unmarshal cached stock status", zap.String("product_id", productID), zap.Error(err))
		return nil, gen, false
	}
	return &status, gen, true
}

func (c *RedisStockCache) Store(ctx context.Context, gen Generation, status *models.StockStatus) {
	if gen < 0 || status == nil {
		return
	}
	data, err := json.Marshal(status)
	if err != nil {
		c.logger.Warn("Failed to marshal stock status for cache", zap.String("product_id", status.ProductID), zap.Error(err))
		return
	}
	if err := c.redis.Set(ctx, statusKey(status.ProductID, gen), data, c.ttl).Err(); err != nil {
		c.logger.Warn("Failed to cache stock status", zap.String("product_id", status.ProductID), zap.Error(err))
	}
}

// Invalidate bumps the generation so in-flight computations write to a slot
// nobody reads, then deletes the entry readers could still see.
func (c *RedisStockCache) Invalidate(ctx context.Context, productID string) {
	newGen, err := c.redis.Incr(ctx, GenerationKeyPrefix+productID).Result()
	if err != nil {
		c.logger.Error("CRITICAL: Failed to invalidate stock cache", zap.String("product_id", productID), zap.Error(err))
		// Fall back to deleting the slot we can see.
		if gen, gerr := c.generation(ctx, productID); gerr == nil {
			_ = c.redis.Del(ctx, statusKey(productID, gen)).Err()
		}
		return
	}
	if err := c.redis.Del(ctx, statusKey(productID, Generation(newGen-1))).Err(); err != nil {
		c.logger.Warn("Failed to delete stale stock status", zap.String("product_id", productID), zap.Error(err))
	}
}

func (c *RedisStockCache) generation(ctx context.Context, productID string) (Generation, error) {
	gen, err := c.redis.Get(ctx, GenerationKeyPrefix+productID).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return Generation(gen), nil
}

func statusKey(productID string, gen Generation) string {
	return fmt.Sprintf("%s%s:v%d", StatusKeyPrefix, productID, gen)
}
