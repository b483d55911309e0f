package obs

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestDomainMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	MustRegisterDomainMetrics("klinik_test", reg)

	RecordBillFinalized("lab", "ok", 45000)
	RecordBillFinalized("lab", "empty_cart", 0)
	RecordCartMutation("pharmacy", "add_item", "insufficient_stock")
	RecordInvoiceRetry("pharmacy")

	require.Equal(t, float64(1), testutil.ToFloat64(BillsFinalizedTotal.WithLabelValues("lab", "ok")))
	require.Equal(t, float64(1), testutil.ToFloat64(BillsFinalizedTotal.WithLabelValues("lab", "empty_cart")))
	require.Equal(t, float64(1), testutil.ToFloat64(CartMutationsTotal.WithLabelValues("pharmacy", "add_item", "insufficient_stock")))
	require.Equal(t, float64(1), testutil.ToFloat64(InvoiceRetriesTotal.WithLabelValues("pharmacy")))
}
