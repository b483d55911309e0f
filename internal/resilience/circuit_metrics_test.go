package resilience_test

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-klinik/internal/resilience"
)

func TestBreakerMetrics(t *testing.T) {
	clk := &clock{now: time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)}
	b := resilience.NewBreaker(resilience.BreakerConfig{Name: "ledger_metrics", MinRequests: 1, OpenFor: time.Second, Now: clk.Now})
	ctx := context.Background()
	state := resilience.BreakerState.WithLabelValues("ledger_metrics")

	require.Equal(t, 0.0, testutil.ToFloat64(state))
	b.Report(ctx, false)
	require.Equal(t, 1.0, testutil.ToFloat64(state))

	clk.Advance(time.Second)
	require.True(t, b.Allow(ctx))
	require.Equal(t, 2.0, testutil.ToFloat64(state))
	b.Report(ctx, true)
	require.Equal(t, 0.0, testutil.ToFloat64(state))

	for _, tc := range []struct{ from, to string }{
		{"closed", "open"},
		{"open", "half_open"},
		{"half_open", "closed"},
	} {
		got := testutil.ToFloat64(resilience.BreakerTransitions.WithLabelValues("ledger_metrics", tc.from, tc.to))
		require.Equal(t, 1.0, got, "%s -> %s", tc.from, tc.to)
	}
}
