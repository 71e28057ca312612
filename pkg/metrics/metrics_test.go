package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dd0wney/cluso-kmeans/pkg/kmeans"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		t.Fatalf("Failed to write gauge: %v", err)
	}
	return m.GetGauge().GetValue()
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("Failed to write counter: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestNewRegistry(t *testing.T) {
	r := NewRegistry()
	if r == nil {
		t.Fatal("NewRegistry() returned nil")
	}

	if r.RoundsTotal == nil {
		t.Error("RoundsTotal not initialized")
	}
	if r.CollectiveDuration == nil {
		t.Error("CollectiveDuration not initialized")
	}
	if r.RunsTotal == nil {
		t.Error("RunsTotal not initialized")
	}
	if r.GetPrometheusRegistry() == nil {
		t.Error("Prometheus registry not initialized")
	}
}

func TestRegistriesAreIndependent(t *testing.T) {
	a := NewRegistry()
	b := NewRegistry()

	a.RoundsTotal.Inc()
	if got := counterValue(t, b.RoundsTotal); got != 0 {
		t.Errorf("second registry saw %v rounds", got)
	}
}

func TestDefaultRegistry(t *testing.T) {
	if DefaultRegistry() != DefaultRegistry() {
		t.Error("DefaultRegistry() should return the same instance")
	}
}

func TestSetTopology(t *testing.T) {
	r := NewRegistry()
	r.SetTopology(0, 4, 250, 10)

	if got := gaugeValue(t, r.Workers); got != 4 {
		t.Errorf("Workers = %v, want 4", got)
	}
	if got := gaugeValue(t, r.LocalPoints); got != 250 {
		t.Errorf("LocalPoints = %v, want 250", got)
	}
	if got := gaugeValue(t, r.Role.WithLabelValues("coordinator")); got != 1 {
		t.Errorf("coordinator role = %v, want 1", got)
	}

	r.SetTopology(2, 4, 250, 10)
	if got := gaugeValue(t, r.Role.WithLabelValues("coordinator")); got != 0 {
		t.Errorf("coordinator role after switch = %v, want 0", got)
	}
	if got := gaugeValue(t, r.Role.WithLabelValues("worker")); got != 1 {
		t.Errorf("worker role = %v, want 1", got)
	}
}

func TestObserveRound(t *testing.T) {
	r := NewRegistry()

	var observer kmeans.Observer = r
	observer.ObserveRound(kmeans.RoundReport{
		Rank:    0,
		Round:   3,
		Changed: 12,
		Empty:   []int{1, 4},
		Timings: kmeans.StepTimings{Accumulate: time.Millisecond, Assign: 2 * time.Millisecond},
	})
	observer.ObserveRound(kmeans.RoundReport{Rank: 0, Round: 4, Changed: 3})

	if got := counterValue(t, r.RoundsTotal); got != 2 {
		t.Errorf("RoundsTotal = %v, want 2", got)
	}
	if got := gaugeValue(t, r.CurrentRound); got != 4 {
		t.Errorf("CurrentRound = %v, want 4", got)
	}
	if got := counterValue(t, r.ChangedLabelsTotal); got != 15 {
		t.Errorf("ChangedLabelsTotal = %v, want 15", got)
	}
	if got := gaugeValue(t, r.EmptyClusters); got != 0 {
		t.Errorf("EmptyClusters = %v, want 0 after the second round", got)
	}

	var m dto.Metric
	hist := r.StepDuration.WithLabelValues("assign").(prometheus.Histogram)
	if err := hist.Write(&m); err != nil {
		t.Fatal(err)
	}
	if m.GetHistogram().GetSampleCount() != 2 {
		t.Errorf("assign samples = %d, want 2", m.GetHistogram().GetSampleCount())
	}
}

func TestEmptyClustersIgnoredOffCoordinator(t *testing.T) {
	r := NewRegistry()
	r.EmptyClusters.Set(2)
	r.ObserveRound(kmeans.RoundReport{Rank: 1, Round: 1})

	if got := gaugeValue(t, r.EmptyClusters); got != 2 {
		t.Errorf("EmptyClusters = %v, want untouched 2", got)
	}
}

func TestRecordCollective(t *testing.T) {
	r := NewRegistry()
	r.RecordCollective("reduce", 5*time.Millisecond, 128, 0, nil)
	r.RecordCollective("reduce", 5*time.Millisecond, 64, 32, errors.New("closed"))

	if got := counterValue(t, r.PayloadBytesTotal.WithLabelValues("reduce", "sent")); got != 192 {
		t.Errorf("sent bytes = %v, want 192", got)
	}
	if got := counterValue(t, r.PayloadBytesTotal.WithLabelValues("reduce", "received")); got != 32 {
		t.Errorf("received bytes = %v, want 32", got)
	}
	if got := counterValue(t, r.CollectiveErrors.WithLabelValues("reduce")); got != 1 {
		t.Errorf("errors = %v, want 1", got)
	}
}

func TestRecordRun(t *testing.T) {
	r := NewRegistry()
	r.RecordRun("parallel", nil, time.Second)
	r.RecordRun("parallel", errors.New("boom"), time.Second)

	if got := counterValue(t, r.RunsTotal.WithLabelValues("parallel", "success")); got != 1 {
		t.Errorf("success runs = %v, want 1", got)
	}
	if got := counterValue(t, r.RunsTotal.WithLabelValues("parallel", "error")); got != 1 {
		t.Errorf("error runs = %v, want 1", got)
	}
}

func TestSetEngineState(t *testing.T) {
	r := NewRegistry()
	r.SetEngineState(kmeans.StateAssign)
	if got := gaugeValue(t, r.EngineState); got != float64(kmeans.StateAssign) {
		t.Errorf("EngineState = %v, want %d", got, kmeans.StateAssign)
	}
}

func TestHandler(t *testing.T) {
	r := NewRegistry()
	r.RoundsTotal.Inc()

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, name := range []string{"kmeans_rounds_total 1", "kmeans_uptime_seconds", "kmeans_goroutines"} {
		if !strings.Contains(body, name) {
			t.Errorf("exposition missing %q", name)
		}
	}
}

func TestMetricNaming(t *testing.T) {
	r := NewRegistry()
	r.ObserveRound(kmeans.RoundReport{Round: 1})
	r.RecordCollective("gather", time.Millisecond, 1, 1, nil)
	r.RecordRun("serial", nil, time.Millisecond)
	r.SetTopology(0, 1, 1, 1)

	families, err := r.GetPrometheusRegistry().Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	for _, f := range families {
		if !strings.HasPrefix(f.GetName(), "kmeans_") {
			t.Errorf("metric %s lacks the kmeans_ prefix", f.GetName())
		}
	}
}

func TestConcurrentMetricUpdates(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.ObserveRound(kmeans.RoundReport{Rank: i, Round: j, Changed: 1})
				r.RecordCollective("reduce", time.Microsecond, 8, 8, nil)
				r.SetRole("worker")
			}
		}(i)
	}
	wg.Wait()

	if got := counterValue(t, r.RoundsTotal); got != 1000 {
		t.Errorf("RoundsTotal = %v, want 1000", got)
	}
}

func BenchmarkObserveRound(b *testing.B) {
	r := NewRegistry()
	report := kmeans.RoundReport{Round: 1, Changed: 5}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		r.ObserveRound(report)
	}
}
