package metrics

import (
	"net/http"
	"runtime"
	"time"

	"github.com/dd0wney/cluso-kmeans/pkg/kmeans"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetTopology records this worker's place in the run
func (r *Registry) SetTopology(rank, workers, localPoints, iterations int) {
	r.Workers.Set(float64(workers))
	r.LocalPoints.Set(float64(localPoints))
	r.IterationsTotal.Set(float64(iterations))
	if rank == 0 {
		r.SetRole("coordinator")
	} else {
		r.SetRole("worker")
	}
}

// SetRole sets the current role
func (r *Registry) SetRole(role string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Role.WithLabelValues("coordinator").Set(0)
	r.Role.WithLabelValues("worker").Set(0)
	r.Role.WithLabelValues(role).Set(1)
}

// SetEngineState exports the engine's current state
func (r *Registry) SetEngineState(s kmeans.State) {
	r.EngineState.Set(float64(s))
}

// ObserveRound records a finished round. It satisfies kmeans.Observer.
func (r *Registry) ObserveRound(report kmeans.RoundReport) {
	t := report.Timings
	r.RoundsTotal.Inc()
	r.CurrentRound.Set(float64(report.Round))
	r.RoundDuration.Observe(t.Total().Seconds())
	r.StepDuration.WithLabelValues("accumulate").Observe(t.Accumulate.Seconds())
	r.StepDuration.WithLabelValues("reduce").Observe(t.Reduce.Seconds())
	r.StepDuration.WithLabelValues("update").Observe(t.Update.Seconds())
	r.StepDuration.WithLabelValues("broadcast").Observe(t.Broadcast.Seconds())
	r.StepDuration.WithLabelValues("assign").Observe(t.Assign.Seconds())
	r.ChangedLabels.Set(float64(report.Changed))
	r.ChangedLabelsTotal.Add(float64(report.Changed))
	if report.Rank == 0 {
		r.EmptyClusters.Set(float64(len(report.Empty)))
	}
}

// RecordRun records the outcome of a whole run
func (r *Registry) RecordRun(mode string, err error, elapsed time.Duration) {
	status := "success"
	if err != nil {
		status = "error"
	}
	r.RunsTotal.WithLabelValues(mode, status).Inc()
	r.RunDuration.Observe(elapsed.Seconds())
}

// RecordCollective records one collective operation and its payload sizes
func (r *Registry) RecordCollective(op string, duration time.Duration, sent, received int, err error) {
	r.CollectiveDuration.WithLabelValues(op).Observe(duration.Seconds())
	if sent > 0 {
		r.PayloadBytesTotal.WithLabelValues(op, "sent").Add(float64(sent))
	}
	if received > 0 {
		r.PayloadBytesTotal.WithLabelValues(op, "received").Add(float64(received))
	}
	if err != nil {
		r.CollectiveErrors.WithLabelValues(op).Inc()
	}
}

// UpdateSystemMetrics refreshes uptime, goroutine and memory gauges
func (r *Registry) UpdateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	r.UptimeSeconds.Set(time.Since(r.started).Seconds())
	r.GoRoutines.Set(float64(runtime.NumGoroutine()))
	r.MemoryAllocBytes.Set(float64(m.Alloc))
}

// Handler serves the registry in the Prometheus exposition format, refreshing
// the system gauges on every scrape
func (r *Registry) Handler() http.Handler {
	inner := promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		r.UpdateSystemMetrics()
		inner.ServeHTTP(w, req)
	})
}
