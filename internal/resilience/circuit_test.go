package resilience_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-klinik/internal/resilience"
)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time          { return c.now }
func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func TestBreakerOpensAndRecovers(t *testing.T) {
	clk := &clock{now: time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)}
	b := resilience.NewBreaker(resilience.BreakerConfig{Name: "test_recover", MinRequests: 2, FailureRatio: 0.5, OpenFor: time.Minute, Now: clk.Now})
	ctx := context.Background()

	require.True(t, b.Allow(ctx))
	b.Report(ctx, false)
	require.Equal(t, resilience.Closed, b.State(), "below MinRequests")
	require.True(t, b.Allow(ctx))
	b.Report(ctx, false)
	require.Equal(t, resilience.Open, b.State())
	require.False(t, b.Allow(ctx))

	clk.Advance(time.Minute)
	require.True(t, b.Allow(ctx), "probe after cool-off")
	require.Equal(t, resilience.HalfOpen, b.State())
	require.False(t, b.Allow(ctx), "only one probe in flight")

	b.Report(ctx, true)
	require.Equal(t, resilience.Closed, b.State())
	require.True(t, b.Allow(ctx))
}

func TestBreakerFailedProbeReopens(t *testing.T) {
	clk := &clock{now: time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)}
	b := resilience.NewBreaker(resilience.BreakerConfig{Name: "test_reopen", MinRequests: 1, OpenFor: 10 * time.Second, Now: clk.Now})
	ctx := context.Background()

	b.Report(ctx, false)
	require.Equal(t, resilience.Open, b.State())

	clk.Advance(10 * time.Second)
	require.True(t, b.Allow(ctx))
	b.Report(ctx, false)
	require.Equal(t, resilience.Open, b.State())
	require.False(t, b.Allow(ctx), "cool-off restarts from the failed probe")
}

func TestBreakerWindowForgetsOldFailures(t *testing.T) {
	b := resilience.NewBreaker(resilience.BreakerConfig{Name: "test_window", MinRequests: 2, FailureRatio: 0.75})
	ctx := context.Background()

	b.Report(ctx, false)
	b.Report(ctx, true)
	b.Report(ctx, true)
	b.Report(ctx, true)
	// The first failure is overwritten next, so three of the last four must fail to trip.
	b.Report(ctx, false)
	b.Report(ctx, false)
	require.Equal(t, resilience.Closed, b.State())
	b.Report(ctx, false)
	require.Equal(t, resilience.Open, b.State())
}

func TestBackoff(t *testing.T) {
	base := 100 * time.Millisecond
	require.Equal(t, base, resilience.Backoff(base, 1, 0))
	require.Equal(t, base*4, resilience.Backoff(base, 3, 0))
	require.Equal(t, 10*time.Minute, resilience.Backoff(time.Second, 40, 0))

	d := resilience.Backoff(base, 2, 0.2)
	require.GreaterOrEqual(t, d, base*2-base*2/5)
	require.LessOrEqual(t, d, base*2+base*2/5)
}
