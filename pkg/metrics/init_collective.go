package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initCollectiveMetrics() {
	r.CollectiveDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kmeans_collective_duration_seconds",
			Help:    "Duration of collective operations in seconds",
			Buckets: prometheus.ExponentialBuckets(0.00005, 4, 12),
		},
		[]string{"op"}, // join, reduce, broadcast, gather
	)

	r.PayloadBytesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "kmeans_payload_bytes_total",
			Help: "Encoded bytes moved by collective operations",
		},
		[]string{"op", "direction"}, // direction: sent, received
	)

	r.CollectiveErrors = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "kmeans_collective_errors_total",
			Help: "Failed collective operations",
		},
		[]string{"op"},
	)
}
