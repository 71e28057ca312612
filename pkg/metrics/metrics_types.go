package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds all metrics of one clustering process
type Registry struct {
	// Run Metrics
	RunsTotal       *prometheus.CounterVec
	RunDuration     prometheus.Histogram
	Workers         prometheus.Gauge
	LocalPoints     prometheus.Gauge
	Role            *prometheus.GaugeVec
	EngineState     prometheus.Gauge
	IterationsTotal prometheus.Gauge

	// Round Metrics
	RoundsTotal        prometheus.Counter
	CurrentRound       prometheus.Gauge
	RoundDuration      prometheus.Histogram
	StepDuration       *prometheus.HistogramVec
	ChangedLabels      prometheus.Gauge
	ChangedLabelsTotal prometheus.Counter
	EmptyClusters      prometheus.Gauge

	// Collective Metrics
	CollectiveDuration *prometheus.HistogramVec
	PayloadBytesTotal  *prometheus.CounterVec
	CollectiveErrors   *prometheus.CounterVec

	// System Metrics
	UptimeSeconds    prometheus.Gauge
	GoRoutines       prometheus.Gauge
	MemoryAllocBytes prometheus.Gauge

	registry *prometheus.Registry
	started  time.Time
	mu       sync.Mutex
}

var (
	defaultRegistry *Registry
	once            sync.Once
)

// DefaultRegistry returns the process-wide metrics registry
func DefaultRegistry() *Registry {
	once.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// NewRegistry creates a new metrics registry with all metrics initialized.
// Each registry owns a private prometheus registry, so in-process workers and
// tests never collide on metric names.
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),
		started:  time.Now(),
	}

	r.initRunMetrics()
	r.initRoundMetrics()
	r.initCollectiveMetrics()
	r.initSystemMetrics()

	return r
}

// GetPrometheusRegistry returns the underlying Prometheus registry
func (r *Registry) GetPrometheusRegistry() *prometheus.Registry {
	return r.registry
}
