package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// BillsFinalizedTotal counts finalize attempts by billing domain and result.
	BillsFinalizedTotal *prometheus.CounterVec
	// BillAmountPaise records finalized bill totals per domain.
	BillAmountPaise *prometheus.HistogramVec
	// InvoiceRetriesTotal counts invoice number collisions that forced a retry.
	InvoiceRetriesTotal *prometheus.CounterVec
	// CartMutationsTotal counts cart operations by domain, operation and outcome.
	CartMutationsTotal *prometheus.CounterVec
	// LedgerPostsTotal counts ledger posting outcomes.
	LedgerPostsTotal *prometheus.CounterVec
	// OutboxDispatchTotal counts outbox publish outcomes.
	OutboxDispatchTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics creates the billing collectors once per process and registers
// them on reg (the default registerer when nil).
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		counter := func(name, help string, labels ...string) *prometheus.CounterVec {
			return register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: name, Help: help}, labels))
		}
		BillsFinalizedTotal = counter("bills_finalized_total", "Bill finalize attempts by outcome.", "domain", "result")
		InvoiceRetriesTotal = counter("invoice_number_retries_total", "Invoice number collisions that were retried.", "domain")
		CartMutationsTotal = counter("cart_mutations_total", "Cart operations by outcome.", "domain", "op", "outcome")
		LedgerPostsTotal = counter("ledger_posts_total", "Ledger posting outcomes.", "result")
		OutboxDispatchTotal = counter("outbox_dispatch_total", "Outbox event publish outcomes.", "topic", "result")
		BillAmountPaise = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "bill_amount_paise",
			Help:      "Discounted totals of finalized bills in paise.",
			Buckets:   []float64{10000, 50000, 100000, 250000, 500000, 1000000, 2500000, 5000000},
		}, []string{"domain"}))
	})
}

// RecordBillFinalized observes one finalize attempt. amount is ignored unless result is "ok".
func RecordBillFinalized(domain, result string, amount int64) {
	if BillsFinalizedTotal != nil {
		BillsFinalizedTotal.WithLabelValues(domain, result).Inc()
	}
	if result == "ok" && BillAmountPaise != nil {
		BillAmountPaise.WithLabelValues(domain).Observe(float64(amount))
	}
}

// RecordInvoiceRetry counts one invoice number collision.
func RecordInvoiceRetry(domain string) {
	if InvoiceRetriesTotal != nil {
		InvoiceRetriesTotal.WithLabelValues(domain).Inc()
	}
}

// RecordCartMutation counts one cart operation.
func RecordCartMutation(domain, op, outcome string) {
	if CartMutationsTotal != nil {
		CartMutationsTotal.WithLabelValues(domain, op, outcome).Inc()
	}
}

// RecordLedgerPost counts one ledger posting.
func RecordLedgerPost(result string) {
	if LedgerPostsTotal != nil {
		LedgerPostsTotal.WithLabelValues(result).Inc()
	}
}

// RecordOutboxDispatch counts one outbox publish.
func RecordOutboxDispatch(topic, result string) {
	if OutboxDispatchTotal != nil {
		OutboxDispatchTotal.WithLabelValues(topic, result).Inc()
	}
}
