package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slidingScript trims the window, admits the call only while below max and
// reports when the oldest admitted call leaves the window. Times are unix ms.
var slidingScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local max = tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
local allowed = 0
if count < max then
  redis.call('ZADD', key, now, ARGV[4])
  count = count + 1
  allowed = 1
end
redis.call('PEXPIRE', key, window)
local reset = now + window
local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
if oldest[2] then
  reset = tonumber(oldest[2]) + window
end
return {allowed, max - count, reset}
`)

// SlidingWindow is a Limiter over a Redis sorted set per key. Rejected calls
// are not recorded, so a client hammering the endpoint regains access once
// its earlier admitted calls age out.
type SlidingWindow struct {
	Client *redis.Client
	Prefix string
	Now    func() time.Time
}

// Allow implements Limiter.
func (l SlidingWindow) Allow(ctx context.Context, key string, rule Rule) (Decision, error) {
	now := time.Now
	if l.Now != nil {
		now = l.Now
	}
	at := now()
	if l.Client == nil || !rule.enabled() {
		return Decision{Allowed: true, Remaining: rule.Max, ResetAt: at.Add(rule.Window)}, nil
	}

	res, err := slidingScript.Run(ctx, l.Client,
		[]string{fmt.Sprintf("%s:%s", l.Prefix, key)},
		at.UnixMilli(), rule.Window.Milliseconds(), rule.Max, uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return Decision{}, err
	}
	if len(res) != 3 {
		return Decision{}, fmt.Errorf("ratelimit: unexpected script reply %v", res)
	}
	return Decision{
		Allowed:   res[0] == 1,
		Remaining: int(res[1]),
		ResetAt:   time.UnixMilli(res[2]),
	}, nil
}
