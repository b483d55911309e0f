package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/backend-klinik/internal/billing"
)

// Store persists carts between requests.
type Store interface {
	Load(ctx context.Context, domain billing.Domain, visitID int64) (*Cart, error)
	Save(ctx context.Context, c *Cart) error
	Delete(ctx context.Context, domain billing.Domain, visitID int64) error
}

// RedisStore keeps carts as JSON documents with a sliding expiry.
type RedisStore struct {
	Client *redis.Client
	TTL    time.Duration
	Prefix string
}

func (s RedisStore) ttl() time.Duration {
	if s.TTL <= 0 {
		return 12 * time.Hour
	}
	return s.TTL
}

// Key returns the Redis key holding the cart of a visit at a billing desk.
func (s RedisStore) Key(domain billing.Domain, visitID int64) string {
	return fmt.Sprintf("%scart:%s:%d", s.Prefix, domain, visitID)
}

// Load returns the stored cart or a new empty one.
func (s RedisStore) Load(ctx context.Context, domain billing.Domain, visitID int64) (*Cart, error) {
	if s.Client == nil {
		return nil, errors.New("cart store: redis client not configured")
	}
	data, err := s.Client.Get(ctx, s.Key(domain, visitID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return New(domain, visitID), nil
		}
		return nil, err
	}
	c := New(domain, visitID)
	if err := json.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("cart store: decode: %w", err)
	}
	if c.Items == nil {
		c.Items = []Line{}
	}
	return c, nil
}

// Save overwrites the stored cart and refreshes its expiry.
func (s RedisStore) Save(ctx context.Context, c *Cart) error {
	if s.Client == nil {
		return errors.New("cart store: redis client not configured")
	}
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return s.Client.Set(ctx, s.Key(c.Domain, c.VisitID), data, s.ttl()).Err()
}

// Delete removes the stored cart.
func (s RedisStore) Delete(ctx context.Context, domain billing.Domain, visitID int64) error {
	if s.Client == nil {
		return errors.New("cart store: redis client not configured")
	}
	return s.Client.Del(ctx, s.Key(domain, visitID)).Err()
}
