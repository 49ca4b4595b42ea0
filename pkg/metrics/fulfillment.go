package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// FulfillmentMetrics covers the order state machine, the ledger and the route provider.
type FulfillmentMetrics struct {
	transitions      *prometheus.CounterVec
	versionConflicts prometheus.Counter
	ledgerRetries    *prometheus.CounterVec
	stockRejections  prometheus.Counter
	providerCalls    *prometheus.CounterVec
	providerLatency  *prometheus.HistogramVec
}

func NewFulfillmentMetrics(reg prometheus.Registerer) *FulfillmentMetrics {
	if reg == nil {
		return &FulfillmentMetrics{}
	}
	m := &FulfillmentMetrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orders",
			Name:      "transitions_total",
			Help:      "Committed order status transitions.",
		}, []string{"from", "to"}),
		versionConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orders",
			Name:      "version_conflicts_total",
			Help:      "Order writes rejected by the version check.",
		}),
		ledgerRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "inventory",
			Name:      "cas_retries_total",
			Help:      "Stock compare-and-swap attempts lost to a concurrent writer.",
		}, []string{"type"}),
		stockRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "inventory",
			Name:      "insufficient_stock_total",
			Help:      "Deductions rejected for insufficient stock.",
		}),
		providerCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "routing",
			Name:      "provider_calls_total",
			Help:      "Route provider calls by area and outcome.",
		}, []string{"area", "outcome"}),
		providerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "routing",
			Name:      "provider_call_seconds",
			Help:      "Route provider call latency.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 3, 5, 10},
		}, []string{"area"}),
	}
	reg.MustRegister(m.transitions, m.versionConflicts, m.ledgerRetries, m.stockRejections, m.providerCalls, m.providerLatency)
	return m
}

func (m *FulfillmentMetrics) IncTransition(from, to string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(from), normalizeLabel(to)).Inc()
}

func (m *FulfillmentMetrics) IncVersionConflict() {
	if m == nil || m.versionConflicts == nil {
		return
	}
	m.versionConflicts.Inc()
}

func (m *FulfillmentMetrics) IncLedgerRetry(txType string) {
	if m == nil || m.ledgerRetries == nil {
		return
	}
	m.ledgerRetries.WithLabelValues(normalizeLabel(txType)).Inc()
}

func (m *FulfillmentMetrics) IncInsufficientStock() {
	if m == nil || m.stockRejections == nil {
		return
	}
	m.stockRejections.Inc()
}

// ObserveProviderCall records one route provider call. err decides the outcome label.
func (m *FulfillmentMetrics) ObserveProviderCall(area string, took time.Duration, err error) {
	if m == nil || m.providerCalls == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.providerCalls.WithLabelValues(normalizeLabel(area), outcome).Inc()
	m.providerLatency.WithLabelValues(normalizeLabel(area)).Observe(took.Seconds())
}
