// Package metrics provides Prometheus instrumentation for the pool engine.
//
// Gauges that mirror decimal ledger values are advisory observability
// figures; the decimal ledger remains the source of truth and the float
// conversion here never feeds back into pool arithmetic.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// SwapsTotal counts executed swaps, partitioned by input asset.
	SwapsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pool_swaps_total",
		Help: "Total number of swaps executed",
	}, []string{"asset"})

	// SwapLatency tracks swap execution latency.
	SwapLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pool_swap_latency_seconds",
		Help:    "Swap execution latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"asset"})

	// FlashLoansTotal counts flash-loan lifecycle events by outcome.
	FlashLoansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pool_flash_loans_total",
		Help: "Flash loan lifecycle events",
	}, []string{"outcome"}) // opened, settled, cancelled, rejected

	// OutstandingLoans tracks currently outstanding flash loans.
	OutstandingLoans = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pool_outstanding_flash_loans",
		Help: "Number of outstanding flash loans",
	})

	// DebtRatio tracks the current debt-to-value ratio.
	DebtRatio = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pool_debt_ratio",
		Help: "Current debt-to-value ratio (target 0.5)",
	})

	// LeverageMultiplier tracks the effective leverage.
	LeverageMultiplier = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pool_leverage_multiplier",
		Help: "Effective leverage multiplier (target 2.0)",
	})

	// PoolValue tracks total pool value in asset B units.
	PoolValue = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pool_value",
		Help: "Total pool value in unit-of-account terms",
	})

	// RebalancesTotal counts completed debt rebalances by direction.
	RebalancesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pool_rebalances_total",
		Help: "Completed debt rebalances",
	}, []string{"direction"})

	// CovenantRejections counts operations rejected by the safety band.
	CovenantRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pool_covenant_rejections_total",
		Help: "Operations rejected by the debt-ratio safety band",
	})

	// RateLimitRejections counts requests rejected by the rate limiter.
	RateLimitRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pool_rate_limit_rejections_total",
		Help: "Requests rejected by the rate limiter",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pool_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pool_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the raw path for the label; the API surface is small enough
		// that cardinality stays bounded.
		path := r.URL.Path
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
