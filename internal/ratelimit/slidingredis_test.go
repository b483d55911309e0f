package ratelimit

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestSlidingWindowAdmitsUpToMax(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	now := time.Unix(1_700_000_000, 0)
	l := SlidingWindow{Client: client, Prefix: "test", Now: func() time.Time { return now }}
	ctx := context.Background()
	rule := Rule{Window: 2 * time.Second, Max: 2}

	for i := 0; i < rule.Max; i++ {
		d, err := l.Allow(ctx, "desk-1", rule)
		require.NoError(t, err)
		require.True(t, d.Allowed, "call %d", i)
		require.Equal(t, rule.Max-(i+1), d.Remaining)
	}

	d, err := l.Allow(ctx, "desk-1", rule)
	require.NoError(t, err)
	require.False(t, d.Allowed)
	require.Zero(t, d.Remaining)
	require.Equal(t, now.Add(rule.Window).UnixMilli(), d.ResetAt.UnixMilli())

	members, err := client.ZCard(ctx, "test:desk-1").Result()
	require.NoError(t, err)
	require.Equal(t, int64(2), members, "rejected calls are not recorded")

	now = now.Add(rule.Window + time.Millisecond)
	d, err = l.Allow(ctx, "desk-1", rule)
	require.NoError(t, err)
	require.True(t, d.Allowed)
}

func TestSlidingWindowSlides(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	start := time.Unix(1_700_000_000, 0)
	now := start
	l := SlidingWindow{Client: client, Prefix: "test", Now: func() time.Time { return now }}
	ctx := context.Background()
	rule := Rule{Window: 10 * time.Second, Max: 2}

	_, err := l.Allow(ctx, "k", rule)
	require.NoError(t, err)
	now = start.Add(6 * time.Second)
	_, err = l.Allow(ctx, "k", rule)
	require.NoError(t, err)

	now = start.Add(11 * time.Second)
	d, err := l.Allow(ctx, "k", rule)
	require.NoError(t, err)
	require.True(t, d.Allowed, "first call left the window")
	require.Equal(t, start.Add(16*time.Second).UnixMilli(), d.ResetAt.UnixMilli())
}

func TestSlidingWindowDisabledRule(t *testing.T) {
	d, err := SlidingWindow{}.Allow(context.Background(), "k", Rule{})
	require.NoError(t, err)
	require.True(t, d.Allowed)
}
