package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/backend-klinik/internal/billing"
)

// Cache holds lab and ultrasound catalog entries in Redis. Pharmacy lots are
// never stored here because their stock changes with every sale.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache returns a Cache; a non-positive ttl means ten minutes.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Cache{client: client, ttl: ttl}
}

func cacheKey(domain billing.Domain, id int64) string {
	return fmt.Sprintf("catalog:v1:%s:%d", domain, id)
}

func (c *Cache) usable(domain billing.Domain) bool {
	return c != nil && c.client != nil && !domain.TracksStock()
}

// Get returns the cached item and whether it was present.
func (c *Cache) Get(ctx context.Context, domain billing.Domain, id int64) (Item, bool, error) {
	if !c.usable(domain) {
		return Item{}, false, nil
	}
	raw, err := c.client.Get(ctx, cacheKey(domain, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Item{}, false, nil
	}
	if err != nil {
		return Item{}, false, err
	}
	var item Item
	if err := json.Unmarshal(raw, &item); err != nil {
		// A stale encoding is dropped so the next read repopulates it.
		_ = c.client.Del(ctx, cacheKey(domain, id)).Err()
		return Item{}, false, err
	}
	return item, true, nil
}

// Put stores item for domain.
func (c *Cache) Put(ctx context.Context, domain billing.Domain, item Item) error {
	if !c.usable(domain) {
		return nil
	}
	raw, err := json.Marshal(item)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, cacheKey(domain, item.ID), raw, c.ttl).Err()
}

// Invalidate drops a cached entry after an admin edit.
func (c *Cache) Invalidate(ctx context.Context, domain billing.Domain, id int64) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Del(ctx, cacheKey(domain, id)).Err()
}
