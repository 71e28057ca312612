package kmeans

import (
	"errors"
	"math"
	"testing"
)

func pts(labels []int, features ...[]float64) []Point {
	out := make([]Point, len(features))
	for i, f := range features {
		out[i] = Point{Features: f}
		if labels != nil {
			out[i].Cluster = labels[i]
		}
	}
	return out
}

func TestInitialLabel(t *testing.T) {
	points := make([]Point, 5)
	SeedLabels(points, 3, 2)

	want := []int{1, 0, 1, 0, 1}
	for i, p := range points {
		if p.Cluster != want[i] {
			t.Errorf("point %d (global %d) label = %d, want %d", i, i+3, p.Cluster, want[i])
		}
	}
}

func TestNewCentroidsAreZero(t *testing.T) {
	centroids := NewCentroids(3, 2)
	for j, c := range centroids {
		if c.Cluster != j {
			t.Errorf("centroid %d has Cluster %d", j, c.Cluster)
		}
		for _, v := range c.Features {
			if v != 0 {
				t.Errorf("centroid %d not zero: %v", j, c.Features)
			}
		}
	}

	// Rows must not alias each other on append
	centroids[0].Features = append(centroids[0].Features, 1)
	if centroids[1].Features[0] != 0 {
		t.Error("centroid rows alias each other")
	}
}

func TestStatsAccumulate(t *testing.T) {
	stats, err := NewStats(2, 2)
	if err != nil {
		t.Fatalf("NewStats failed: %v", err)
	}

	points := pts([]int{0, 1, 0, 1}, []float64{1, 1}, []float64{1, 2}, []float64{9, 9}, []float64{9, 8})
	if err := stats.Accumulate(points, AccumulateFloat); err != nil {
		t.Fatalf("Accumulate failed: %v", err)
	}

	if stats.Counts[0] != 2 || stats.Counts[1] != 2 {
		t.Errorf("Counts = %v, want [2 2]", stats.Counts)
	}
	if r := stats.Row(0); r[0] != 10 || r[1] != 10 {
		t.Errorf("Row(0) = %v, want [10 10]", r)
	}
	if r := stats.Row(1); r[0] != 10 || r[1] != 10 {
		t.Errorf("Row(1) = %v, want [10 10]", r)
	}
	if stats.Members() != 4 {
		t.Errorf("Members() = %d, want 4", stats.Members())
	}
}

func TestStatsAccumulateTruncate(t *testing.T) {
	points := pts([]int{0, 0}, []float64{1.5, 2.7}, []float64{1.6, 0.2})

	exact, _ := NewStats(1, 2)
	if err := exact.Accumulate(points, AccumulateFloat); err != nil {
		t.Fatal(err)
	}
	if math.Abs(exact.Sums[0]-3.1) > 1e-12 || math.Abs(exact.Sums[1]-2.9) > 1e-12 {
		t.Errorf("float sums = %v, want [3.1 2.9]", exact.Sums)
	}

	legacy, _ := NewStats(1, 2)
	if err := legacy.Accumulate(points, AccumulateTruncate); err != nil {
		t.Fatal(err)
	}
	// trunc(trunc(1.5)+1.6) = 2, trunc(trunc(2.7)+0.2) = 2
	if legacy.Sums[0] != 2 || legacy.Sums[1] != 2 {
		t.Errorf("truncated sums = %v, want [2 2]", legacy.Sums)
	}
}

func TestStatsAccumulateRejectsBadPoints(t *testing.T) {
	stats, _ := NewStats(2, 2)

	err := stats.Accumulate(pts([]int{2}, []float64{1, 1}), AccumulateFloat)
	if !errors.Is(err, ErrLabelOutOfRange) {
		t.Errorf("label 2 with K=2: error = %v, want ErrLabelOutOfRange", err)
	}

	err = stats.Accumulate(pts([]int{0}, []float64{1, 1, 1}), AccumulateFloat)
	var dim *DimensionMismatchError
	if !errors.As(err, &dim) || dim.Expected != 2 || dim.Actual != 3 {
		t.Errorf("3 features with F=2: error = %v", err)
	}
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("error %v does not match ErrDimensionMismatch", err)
	}
}

func TestStatsMerge(t *testing.T) {
	a, _ := NewStats(2, 1)
	b, _ := NewStats(2, 1)
	a.Sums[0], a.Counts[0] = 3, 1
	b.Sums[1], b.Counts[1] = 4, 2

	if err := a.Merge(b); err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if a.Sums[0] != 3 || a.Sums[1] != 4 || a.Counts[0] != 1 || a.Counts[1] != 2 {
		t.Errorf("merged = %+v", a)
	}

	wrong, _ := NewStats(3, 1)
	if err := a.Merge(wrong); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("Merge of K=3 into K=2: error = %v", err)
	}

	truncated := &Stats{K: 2, F: 1, Sums: []float64{1}, Counts: []int64{1, 1}}
	if err := a.Merge(truncated); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("Merge of short sums: error = %v", err)
	}
}

func TestStatsResetAndClone(t *testing.T) {
	s, _ := NewStats(1, 2)
	s.Sums[0], s.Counts[0] = 5, 1

	c := s.Clone()
	s.Reset()

	if s.Sums[0] != 0 || s.Counts[0] != 0 {
		t.Errorf("Reset left %+v", s)
	}
	if c.Sums[0] != 5 || c.Counts[0] != 1 {
		t.Errorf("Clone shares storage with original: %+v", c)
	}
}

func TestParseAccumulationMode(t *testing.T) {
	tests := []struct {
		in      string
		want    AccumulationMode
		wantErr bool
	}{
		{"", AccumulateFloat, false},
		{"float", AccumulateFloat, false},
		{"Truncate", AccumulateTruncate, false},
		{"int", AccumulateFloat, true},
	}
	for _, tt := range tests {
		got, err := ParseAccumulationMode(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseAccumulationMode(%q) = %v, %v", tt.in, got, err)
		}
		if err == nil && got.String() == "" {
			t.Errorf("mode %v has empty name", got)
		}
	}
}

func TestUpdateCentroids(t *testing.T) {
	stats, _ := NewStats(2, 2)
	stats.Sums = []float64{10, 10, 10, 10}
	stats.Counts = []int64{2, 2}

	centroids := NewCentroids(2, 2)
	empty, err := UpdateCentroids(centroids, stats)
	if err != nil {
		t.Fatalf("UpdateCentroids failed: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("empty = %v, want none", empty)
	}
	for j, c := range centroids {
		if c.Features[0] != 5 || c.Features[1] != 5 {
			t.Errorf("centroid %d = %v, want [5 5]", j, c.Features)
		}
	}
}

func TestUpdateCentroidsKeepsEmptyClusterBitIdentical(t *testing.T) {
	stats, _ := NewStats(2, 2)
	stats.Sums = []float64{4, 6, 0, 0}
	stats.Counts = []int64{2, 0}

	prev := []float64{0.1 + 0.2, -1e-300}
	centroids := NewCentroids(2, 2)
	copy(centroids[1].Features, prev)

	empty, err := UpdateCentroids(centroids, stats)
	if err != nil {
		t.Fatalf("UpdateCentroids failed: %v", err)
	}
	if len(empty) != 1 || empty[0] != 1 {
		t.Errorf("empty = %v, want [1]", empty)
	}
	for d := range prev {
		if math.Float64bits(centroids[1].Features[d]) != math.Float64bits(prev[d]) {
			t.Errorf("empty centroid feature %d changed: %v -> %v", d, prev[d], centroids[1].Features[d])
		}
	}
	if centroids[0].Features[0] != 2 || centroids[0].Features[1] != 3 {
		t.Errorf("centroid 0 = %v, want [2 3]", centroids[0].Features)
	}
}

func TestUpdateCentroidsShapeMismatch(t *testing.T) {
	stats, _ := NewStats(2, 2)
	if _, err := UpdateCentroids(NewCentroids(3, 2), stats); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("3 centroids for K=2: error = %v", err)
	}
	if _, err := UpdateCentroids(NewCentroids(2, 1), stats); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("F=1 centroids for F=2: error = %v", err)
	}
}

func TestNearestTieBreaksToLowestIndex(t *testing.T) {
	centroids := pts(nil, []float64{0, 0}, []float64{2, 0}, []float64{2, 0})

	// (1,0) is equidistant from centroids 0 and 1
	if got := Nearest([]float64{1, 0}, centroids, 2); got != 0 {
		t.Errorf("Nearest on a tie = %d, want 0", got)
	}
	// centroids 1 and 2 coincide
	if got := Nearest([]float64{3, 0}, centroids, 0); got != 1 {
		t.Errorf("Nearest on duplicate centroids = %d, want 1", got)
	}
}

func TestNearestKeepsLabelOnNaN(t *testing.T) {
	centroids := pts(nil, []float64{math.NaN()}, []float64{math.NaN()})
	if got := Nearest([]float64{1}, centroids, 1); got != 1 {
		t.Errorf("Nearest with NaN centroids = %d, want current label 1", got)
	}
}

func TestDistance(t *testing.T) {
	if d := Distance([]float64{0, 0}, []float64{3, 4}); d != 5 {
		t.Errorf("Distance = %v, want 5", d)
	}
	if d := SquaredDistance([]float64{0, 0}, []float64{3, 4}); d != 25 {
		t.Errorf("SquaredDistance = %v, want 25", d)
	}
}

func TestAssignIsIdempotent(t *testing.T) {
	points := pts([]int{1, 1, 0, 0}, []float64{1, 1}, []float64{1, 2}, []float64{9, 9}, []float64{9, 8})
	centroids := pts(nil, []float64{1, 1.5}, []float64{9, 8.5})

	if changed := Assign(points, centroids); changed != 4 {
		t.Errorf("first Assign changed %d labels, want 4", changed)
	}
	first := Labels(points)

	if changed := Assign(points, centroids); changed != 0 {
		t.Errorf("second Assign changed %d labels, want 0", changed)
	}
	second := Labels(points)
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("label %d moved from %d to %d", i, first[i], second[i])
		}
	}
}
