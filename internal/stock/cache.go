package stock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache wraps Redis-based caching for stock summary reads. Approvals
// invalidate per-item keys so a summary never outlives a stock movement by
// more than one request.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache helper.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func itemKey(itemID int64) string {
	return fmt.Sprintf("stock:item:%d", itemID)
}

// FetchItemJSON loads a cached item summary or populates it using the loader.
func (c *Cache) FetchItemJSON(ctx context.Context, itemID int64, dest any, loader func(context.Context) (any, error)) error {
	if loader == nil {
		return errors.New("cache: loader required")
	}
	if c == nil || c.client == nil {
		value, err := loader(ctx)
		if err != nil {
			return err
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return err
		}
		return json.Unmarshal(raw, dest)
	}

	key := itemKey(itemID)
	raw, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		return json.Unmarshal(raw, dest)
	}
	if !errors.Is(err, redis.Nil) {
		return err
	}

	value, err := loader(ctx)
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, key, encoded, c.ttl).Err(); err != nil {
		return err
	}
	return json.Unmarshal(encoded, dest)
}

// InvalidateItem drops the cached summary for one item.
func (c *Cache) InvalidateItem(ctx context.Context, itemID int64) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Del(ctx, itemKey(itemID)).Err()
}
