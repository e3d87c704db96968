package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"restaurant_ordering_backend/internal/models"

	"github.com/redis/go-redis/v9"
)

const publicMenuKey = "menu:public"

// RedisMenuCache stores the public menu as a JSON document with a TTL.
type RedisMenuCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisMenuCache(rdb *redis.Client, ttl time.Duration) *RedisMenuCache {
	return &RedisMenuCache{rdb: rdb, ttl: ttl}
}

func (c *RedisMenuCache) GetMenu(ctx context.Context) ([]models.MenuItem, bool, error) {
	raw, err := c.rdb.Get(ctx, publicMenuKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading menu cache: %w", err)
	}
	var items []models.MenuItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, false, fmt.Errorf("decoding menu cache: %w", err)
	}
	return items, true, nil
}

func (c *RedisMenuCache) SetMenu(ctx context.Context, items []models.MenuItem) error {
	raw, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encoding menu cache: %w", err)
	}
	return c.rdb.Set(ctx, publicMenuKey, raw, c.ttl).Err()
}

func (c *RedisMenuCache) Invalidate(ctx context.Context) error {
	return c.rdb.Del(ctx, publicMenuKey).Err()
}

// Noop never caches. It is used when Redis is not configured.
type Noop struct{}

func (Noop) GetMenu(context.Context) ([]models.MenuItem, bool, error) { return nil, false, nil }
func (Noop) SetMenu(context.Context, []models.MenuItem) error         { return nil }
func (Noop) Invalidate(context.Context) error                         { return nil }
