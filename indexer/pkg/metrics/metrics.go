package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "atelier_indexer_build_info",
			Help: "Build information of the Atelier Indexer",
		},
		[]string{"version", "commit", "date"},
	)

	ViewRefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "atelier_indexer_view_refresh_total",
			Help: "Total number of view refreshes",
		},
		[]string{"view_type", "status"},
	)

	ViewRefreshDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "atelier_indexer_view_refresh_duration_seconds",
			Help:    "Duration of view refreshes",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12), // 0.1s to ~410s (~6.8 minutes)
		},
		[]string{"view_type"},
	)

	WorksSyncedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "atelier_indexer_works_synced_total",
			Help: "Total number of work rows upserted from the chain gateway",
		},
	)

	GatewayRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "atelier_indexer_gateway_requests_total",
			Help: "Total number of chain gateway page fetches",
		},
		[]string{"status"},
	)
)
