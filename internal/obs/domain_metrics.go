package obs

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// SettlementTotal counts settlement outcomes by result.
	SettlementTotal *prometheus.CounterVec
	// SettlementDuration records end-to-end settlement latency in milliseconds.
	SettlementDuration *prometheus.HistogramVec
	// SettlementRetries counts transaction retries caused by serialization conflicts.
	SettlementRetries prometheus.Counter
	// InvoiceAllocations counts invoice numbers handed out from the shop sequence.
	InvoiceAllocations prometheus.Counter
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		SettlementTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settlement_total",
			Help:      "Count of sale settlement outcomes.",
		}, []string{"result"})
		SettlementDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "settlement_duration_ms",
			Help:      "Latency for sale settlements in milliseconds.",
			Buckets:   []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"result"})
		SettlementRetries = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settlement_retries_total",
			Help:      "Number of settlement transactions retried after serialization conflicts.",
		})
		InvoiceAllocations = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invoice_allocations_total",
			Help:      "Number of invoice numbers allocated from shop sequences.",
		})

		mustRegisterCollector(reg, SettlementTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				SettlementTotal = v
			}
		})
		mustRegisterCollector(reg, SettlementDuration, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.HistogramVec); ok {
				SettlementDuration = v
			}
		})
		mustRegisterCollector(reg, SettlementRetries, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				SettlementRetries = v
			}
		})
		mustRegisterCollector(reg, InvoiceAllocations, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				InvoiceAllocations = v
			}
		})
	})
}

// ObserveSettlement records one settlement outcome with its latency. Safe to
// call before MustRegisterDomainMetrics; observations are dropped until the
// collectors exist.
func ObserveSettlement(d time.Duration, result string) {
	if SettlementTotal != nil {
		SettlementTotal.WithLabelValues(result).Inc()
	}
	if SettlementDuration != nil {
		SettlementDuration.WithLabelValues(result).Observe(float64(d.Milliseconds()))
	}
}

// IncSettlementRetry counts one retried settlement transaction.
func IncSettlementRetry() {
	if SettlementRetries != nil {
		SettlementRetries.Inc()
	}
}

// IncInvoiceAllocation counts one allocated invoice number.
func IncInvoiceAllocation() {
	if InvoiceAllocations != nil {
		InvoiceAllocations.Inc()
	}
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}
