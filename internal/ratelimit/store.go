package ratelimit

import (
	"context"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// FixedWindow is a Limiter over a ulule/limiter store.
type FixedWindow struct {
	Store limiter.Store

	mu    sync.Mutex
	rates map[limiter.Rate]*limiter.Limiter
}

// NewRedisStore returns a ulule limiter store on rdb using prefix for its keys.
func NewRedisStore(rdb *redis.Client, prefix string) (limiter.Store, error) {
	if prefix == "" {
		prefix = "ratelimit"
	}
	return limiterredis.NewStoreWithOptions(rdb, limiter.StoreOptions{Prefix: prefix})
}

func (f *FixedWindow) limiterFor(rate limiter.Rate) *limiter.Limiter {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rates == nil {
		f.rates = map[limiter.Rate]*limiter.Limiter{}
	}
	l, ok := f.rates[rate]
	if !ok {
		l = limiter.New(f.Store, rate)
		f.rates[rate] = l
	}
	return l
}

// Allow implements Limiter.
func (f *FixedWindow) Allow(ctx context.Context, key string, rule Rule) (Decision, error) {
	if f == nil || f.Store == nil || !rule.enabled() {
		return Decision{Allowed: true, Remaining: rule.Max, ResetAt: time.Now().Add(rule.Window)}, nil
	}
	lctx, err := f.limiterFor(limiter.Rate{Period: rule.Window, Limit: int64(rule.Max)}).Get(ctx, key)
	if err != nil {
		return Decision{}, err
	}
	return Decision{Allowed: !lctx.Reached, Remaining: int(lctx.Remaining), ResetAt: time.Unix(lctx.Reset, 0)}, nil
}
