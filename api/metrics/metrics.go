package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "atelier_api_build_info",
			Help: "Build information of the Atelier API",
		},
		[]string{"version", "commit", "date"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "atelier_api_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "atelier_api_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "atelier_api_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	// Distribution metrics
	DistributionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "atelier_api_distributions_total",
			Help: "Total number of royalty distribution runs",
		},
		[]string{"status"}, // "success", "error", "replay"
	)

	DistributionDepth = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "atelier_api_distribution_depth",
			Help:    "Ancestor chain depth walked per distribution run",
			Buckets: []float64{1, 2, 3, 5, 8, 13, 21, 34, 64},
		},
	)

	DistributedAmountTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "atelier_api_distributed_amount_total",
			Help: "Total revenue amount distributed, smallest currency unit",
		},
	)

	// Claim metrics
	ClaimsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "atelier_api_claims_total",
			Help: "Total number of royalty claim attempts",
		},
		[]string{"status"}, // "success", "insufficient", "error"
	)

	ClaimedAmountTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "atelier_api_claimed_amount_total",
			Help: "Total amount withdrawn through claims, smallest currency unit",
		},
	)

	// Revenue attribution metrics
	RevenueEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "atelier_api_revenue_events_total",
			Help: "Total number of classified revenue events",
		},
		[]string{"type"}, // "sale", "royalty"
	)

	FlaggedEventsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "atelier_api_flagged_events_total",
			Help: "Total number of revenue events with no matching ancestor creator",
		},
	)
)

// Middleware returns a chi middleware that records HTTP metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		HTTPRequestsInFlight.Inc()
		defer HTTPRequestsInFlight.Dec()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		// Use the route pattern if available, otherwise use the path
		path := chi.RouteContext(r.Context()).RoutePattern()
		if path == "" {
			path = r.URL.Path
		}

		status := strconv.Itoa(ww.Status())
		duration := time.Since(start).Seconds()

		HTTPRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// RecordDistribution records metrics for one distribution run.
func RecordDistribution(result map[string]int64, err error) {
	if err != nil {
		DistributionsTotal.WithLabelValues("error").Inc()
		return
	}
	DistributionsTotal.WithLabelValues("success").Inc()
	DistributionDepth.Observe(float64(len(result)))
	var total int64
	for _, amount := range result {
		total += amount
	}
	DistributedAmountTotal.Add(float64(total))
}

// RecordClaim records metrics for one claim attempt.
func RecordClaim(amount int64, err error) {
	if err != nil {
		ClaimsTotal.WithLabelValues("error").Inc()
		return
	}
	ClaimsTotal.WithLabelValues("success").Inc()
	ClaimedAmountTotal.Add(float64(amount))
}

// RecordClaimInsufficient records a claim rejected for insufficient balance.
func RecordClaimInsufficient() {
	ClaimsTotal.WithLabelValues("insufficient").Inc()
}

// RecordRevenueEvent records one classified revenue event.
func RecordRevenueEvent(eventType string, flagged bool) {
	RevenueEventsTotal.WithLabelValues(eventType).Inc()
	if flagged {
		FlaggedEventsTotal.Inc()
	}
}
