package observability

import (
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CreditMetricsSet groups the prometheus collectors of the credit engine and
// its HTTP surface.
type CreditMetricsSet struct {
	operations *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	repaid     *prometheus.CounterVec
	totalDebt  prometheus.Gauge
	badDebt    prometheus.Gauge
	auctions   prometheus.Gauge
	requests   *prometheus.CounterVec
	reqLatency *prometheus.HistogramVec
	throttles  *prometheus.CounterVec
}

var (
	creditMetricsOnce sync.Once
	creditRegistry    *CreditMetricsSet
)

// NewCreditMetrics builds an unregistered collector set. Most callers want
// CreditMetrics, which registers the set with the default registry once.
func NewCreditMetrics() *CreditMetricsSet {
	return &CreditMetricsSet{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ripe",
			Subsystem: "credit",
			Name:      "operations_total",
			Help:      "Credit engine operations segmented by operation and outcome.",
		}, []string{"op", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ripe",
			Subsystem: "credit",
			Name:      "operation_duration_seconds",
			Help:      "Latency of credit engine units of work.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		repaid: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ripe",
			Subsystem: "credit",
			Name:      "repaid_total",
			Help:      "Debt repaid in whole stablecoin units segmented by source.",
		}, []string{"source"}),
		totalDebt: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ripe",
			Subsystem: "credit",
			Name:      "total_debt",
			Help:      "Outstanding debt across all borrowers in whole stablecoin units.",
		}),
		badDebt: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ripe",
			Subsystem: "credit",
			Name:      "bad_debt",
			Help:      "Realised bad debt awaiting recovery in whole stablecoin units.",
		}),
		auctions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ripe",
			Subsystem: "auction",
			Name:      "active",
			Help:      "Number of running collateral auctions.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ripe",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests segmented by route and outcome.",
		}, []string{"route", "outcome"}),
		reqLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ripe",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Latency distribution for HTTP handlers.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ripe",
			Subsystem: "http",
			Name:      "throttles_total",
			Help:      "Requests rejected by the rate limiter.",
		}, []string{"reason"}),
	}
}

// Collectors returns every collector of the set.
func (m *CreditMetricsSet) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.operations, m.latency, m.repaid, m.totalDebt, m.badDebt,
		m.auctions, m.requests, m.reqLatency, m.throttles,
	}
}

// CreditMetrics returns the lazily-initialised collector set registered with
// the default prometheus registry.
func CreditMetrics() *CreditMetricsSet {
	creditMetricsOnce.Do(func() {
		creditRegistry = NewCreditMetrics()
		prometheus.MustRegister(creditRegistry.Collectors()...)
	})
	return creditRegistry
}

// ObserveOperation records the outcome of one unit of work.
func (m *CreditMetricsSet) ObserveOperation(op string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	op = normalizeLabel(op)
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.operations.WithLabelValues(op, outcome).Inc()
	m.latency.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordRepaid adds amount (18 decimals) to the repaid counter of source.
func (m *CreditMetricsSet) RecordRepaid(source string, amount *big.Int) {
	if m == nil || amount == nil || amount.Sign() <= 0 {
		return
	}
	m.repaid.WithLabelValues(normalizeLabel(source)).Add(WholeUnits(amount))
}

// SetTotals publishes the ledger totals.
func (m *CreditMetricsSet) SetTotals(totalDebt, badDebt *big.Int, activeAuctions int) {
	if m == nil {
		return
	}
	m.totalDebt.Set(WholeUnits(totalDebt))
	m.badDebt.Set(WholeUnits(badDebt))
	m.auctions.Set(float64(activeAuctions))
}

// ObserveRequest records an HTTP request. The status should be the code
// that was written to the client.
func (m *CreditMetricsSet) ObserveRequest(route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	route = normalizeLabel(route)
	outcome := "success"
	if status >= 400 {
		outcome = fmt.Sprintf("%dxx", status/100)
	}
	m.requests.WithLabelValues(route, outcome).Inc()
	m.reqLatency.WithLabelValues(route).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter. Reasons should be stable
// strings such as "rate_limit".
func (m *CreditMetricsSet) RecordThrottle(reason string) {
	if m == nil {
		return
	}
	if strings.TrimSpace(reason) == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(reason).Inc()
}

var wholeUnit = new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))

// WholeUnits converts an 18 decimal amount to a float for gauges.
func WholeUnits(amount *big.Int) float64 {
	if amount == nil {
		return 0
	}
	f := new(big.Float).SetInt(amount)
	out, _ := f.Quo(f, wholeUnit).Float64()
	return out
}

func normalizeLabel(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "unknown"
	}
	return v
}
