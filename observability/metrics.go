package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// FundMetrics records ledger operation outcomes and oracle query latency. It
// satisfies the fund package's MetricsRecorder seam so the engine never sees
// prometheus types directly.
type FundMetrics struct {
	contributions *prometheus.CounterVec
	withdrawals   *prometheus.CounterVec
	oracleLatency prometheus.Histogram
}

var (
	fundMetricsOnce sync.Once
	fundRegistry    *FundMetrics
)

// Metrics returns the lazily-initialised fund metrics registry.
func Metrics() *FundMetrics {
	fundMetricsOnce.Do(func() {
		fundRegistry = &FundMetrics{
			contributions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "fundpool",
				Subsystem: "ledger",
				Name:      "contributions_total",
				Help:      "Total contribution attempts segmented by outcome.",
			}, []string{"outcome"}),
			withdrawals: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "fundpool",
				Subsystem: "ledger",
				Name:      "withdrawals_total",
				Help:      "Total withdrawal attempts segmented by outcome.",
			}, []string{"outcome"}),
			oracleLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "fundpool",
				Subsystem: "oracle",
				Name:      "query_duration_seconds",
				Help:      "Latency distribution for price oracle queries.",
				Buckets:   prometheus.DefBuckets,
			}),
		}
		prometheus.MustRegister(fundRegistry.contributions, fundRegistry.withdrawals, fundRegistry.oracleLatency)
	})
	return fundRegistry
}

// RecordContribution counts a contribution attempt with the given outcome.
func (m *FundMetrics) RecordContribution(outcome string) {
	if m == nil {
		return
	}
	m.contributions.WithLabelValues(outcome).Inc()
}

// RecordWithdrawal counts a withdrawal attempt with the given outcome.
func (m *FundMetrics) RecordWithdrawal(outcome string) {
	if m == nil {
		return
	}
	m.withdrawals.WithLabelValues(outcome).Inc()
}

// ObserveOracleQuery records the duration of a single oracle round trip.
func (m *FundMetrics) ObserveOracleQuery(d time.Duration) {
	if m == nil {
		return
	}
	m.oracleLatency.Observe(d.Seconds())
}
