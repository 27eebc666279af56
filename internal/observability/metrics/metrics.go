// Package metrics provides Prometheus instrumentation for permitclaim.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	enabled     bool
	serviceName string

	// HTTP metrics
	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec

	// Claim flow metrics
	claimsTotal        *prometheus.CounterVec
	invalidationsTotal *prometheus.CounterVec
	treasuryFetchTotal *prometheus.CounterVec
	permitImportTotal  *prometheus.CounterVec
)

// Init initializes the metrics system.
func Init(enabledFlag bool, svcName string) {
	enabled = enabledFlag
	serviceName = svcName

	if !enabled {
		return
	}

	// HTTP request counter
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// HTTP request duration histogram
	httpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// Claim flow outcomes by terminal state
	claimsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "permit_claims_total",
			Help: "Total number of claim attempts by terminal state",
		},
		[]string{"state"},
	)

	// Nonce invalidations
	invalidationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "permit_invalidations_total",
			Help: "Total number of nonce invalidation attempts",
		},
		[]string{"result"},
	)

	// Treasury reads by metadata cache outcome
	treasuryFetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "treasury_fetch_total",
			Help: "Total number of treasury reads by token metadata cache outcome",
		},
		[]string{"cache"},
	)

	// Imported permits
	permitImportTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "permit_import_total",
			Help: "Total number of permits read from claim data",
		},
		[]string{"status"},
	)

	// Note: Go runtime metrics (goroutines, memory, GC) are automatically
	// collected by prometheus/client_golang - no custom collector needed
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	if !enabled {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})
	}
	return promhttp.Handler()
}

// Enabled returns whether metrics are enabled.
func Enabled() bool {
	return enabled
}

// ServiceName returns the configured service name for metric labels.
func ServiceName() string {
	return serviceName
}
