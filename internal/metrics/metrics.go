// Package metrics exposes Prometheus collectors for the price error monitor.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	cyclesTotal                *prometheus.CounterVec
	cycleDurationSeconds       prometheus.Histogram
	alertsTotal                *prometheus.CounterVec
	collectorFailuresTotal     *prometheus.CounterVec
	collectorProductsTotal     *prometheus.CounterVec
	classificationsTotal       *prometheus.CounterVec
	ledgerWriteFailuresTotal   prometheus.Counter
	seenProducts               prometheus.Gauge
	deliveriesTotal            *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	rateLimitDelaySeconds      *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		cyclesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricewatch_cycles_total",
				Help: "Total number of monitor cycles, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		cycleDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pricewatch_cycle_duration_seconds",
				Help:    "Histogram of full cycle durations.",
				Buckets: []float64{5, 15, 30, 60, 120, 300, 600},
			},
		)

		alertsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricewatch_alerts_total",
				Help: "Total number of price error alerts, labeled by category and reason.",
			},
			[]string{"category", "reason"},
		)

		collectorFailuresTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricewatch_collector_failures_total",
				Help: "Total number of failed collector invocations, labeled by collector.",
			},
			[]string{"collector"},
		)

		collectorProductsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricewatch_collector_products_total",
				Help: "Total number of products returned, labeled by collector.",
			},
			[]string{"collector"},
		)

		classificationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricewatch_classifications_total",
				Help: "Total number of detector verdicts, labeled by reason (empty when no layer fired).",
			},
			[]string{"reason"},
		)

		ledgerWriteFailuresTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "pricewatch_ledger_write_failures_total",
				Help: "Total number of failed ledger persistence attempts.",
			},
		)

		seenProducts = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "pricewatch_seen_products",
				Help: "Number of product ids currently held in the alert dedup set.",
			},
		)

		deliveriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricewatch_deliveries_total",
				Help: "Total number of alert deliveries, labeled by sink and status.",
			},
			[]string{"sink", "status"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pricewatch_rate_limit_delay_seconds",
				Help:    "Histogram of collector rate limit waits, labeled by collector.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"collector"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// ObserveCycle records a finished cycle.
func ObserveCycle(outcome string, duration time.Duration) {
	Init()
	cyclesTotal.WithLabelValues(outcome).Inc()
	cycleDurationSeconds.Observe(duration.Seconds())
}

// ObserveAlert increments the alert counter.
func ObserveAlert(category, reason string) {
	Init()
	alertsTotal.WithLabelValues(category, reason).Inc()
}

// ObserveCollector records the outcome of one collector invocation.
func ObserveCollector(collector string, products int, err error) {
	Init()
	if err != nil {
		collectorFailuresTotal.WithLabelValues(collector).Inc()
		return
	}
	collectorProductsTotal.WithLabelValues(collector).Add(float64(products))
}

// ObserveClassification increments the detector verdict counter.
func ObserveClassification(reason string) {
	Init()
	if reason == "" {
		reason = "none"
	}
	classificationsTotal.WithLabelValues(reason).Inc()
}

// ObserveLedgerWriteFailure increments the ledger persistence failure counter.
func ObserveLedgerWriteFailure() {
	Init()
	ledgerWriteFailuresTotal.Inc()
}

// SetSeenProducts updates the dedup set size gauge.
func SetSeenProducts(n int) {
	Init()
	seenProducts.Set(float64(n))
}

// ObserveDelivery increments the delivery counter for a sink.
func ObserveDelivery(sink, status string) {
	Init()
	deliveriesTotal.WithLabelValues(sink, status).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveRateLimitDelay records how long a collector waited for a request token.
func ObserveRateLimitDelay(collector string, duration time.Duration) {
	Init()
	rateLimitDelaySeconds.WithLabelValues(collector).Observe(duration.Seconds())
}
