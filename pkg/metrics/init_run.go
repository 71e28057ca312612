package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initRunMetrics() {
	r.RunsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "kmeans_runs_total",
			Help: "Total number of clustering runs",
		},
		[]string{"mode", "status"}, // serial|parallel, success|error
	)

	r.RunDuration = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kmeans_run_duration_seconds",
			Help:    "Wall time of a clustering run in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
		},
	)

	r.Workers = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "kmeans_workers",
			Help: "Number of workers in the run",
		},
	)

	r.LocalPoints = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "kmeans_local_points",
			Help: "Number of points in this worker's partition",
		},
	)

	r.Role = promauto.With(r.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kmeans_role",
			Help: "Role of this worker (1 for the active role)",
		},
		[]string{"role"}, // coordinator, worker
	)

	r.EngineState = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "kmeans_engine_state",
			Help: "Current engine state as its numeric code",
		},
	)

	r.IterationsTotal = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "kmeans_iterations",
			Help: "Configured number of refinement rounds",
		},
	)
}

func (r *Registry) initRoundMetrics() {
	r.RoundsTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "kmeans_rounds_total",
			Help: "Total number of completed refinement rounds",
		},
	)

	r.CurrentRound = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "kmeans_current_round",
			Help: "Last completed round",
		},
	)

	r.RoundDuration = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kmeans_round_duration_seconds",
			Help:    "Duration of a refinement round in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
		},
	)

	r.StepDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kmeans_step_duration_seconds",
			Help:    "Duration of one step of a round in seconds",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 12),
		},
		[]string{"step"}, // accumulate, reduce, update, broadcast, assign
	)

	r.ChangedLabels = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "kmeans_changed_labels",
			Help: "Labels changed by the last round's assignment on this worker",
		},
	)

	r.ChangedLabelsTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "kmeans_changed_labels_total",
			Help: "Total labels changed on this worker",
		},
	)

	r.EmptyClusters = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "kmeans_empty_clusters",
			Help: "Clusters with no members after the last reduction (coordinator only)",
		},
	)
}
