package kmeans

import (
	"math"
	"sync/atomic"

	"github.com/dd0wney/cluso-kmeans/pkg/parallel"
)

// SquaredDistance returns the squared Euclidean distance between a and b.
// It orders centroids exactly like Distance.
func SquaredDistance(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// Distance returns the Euclidean distance between a and b
func Distance(a, b []float64) float64 {
	return math.Sqrt(SquaredDistance(a, b))
}

// Nearest returns the index of the centroid closest to features. Only a
// strictly smaller distance displaces the current best, so the lowest index
// wins ties. When no distance compares below +Inf (all NaN) current is kept.
func Nearest(features []float64, centroids []Point, current int) int {
	best := current
	minDist := math.Inf(1)
	for j := range centroids {
		if d := SquaredDistance(features, centroids[j].Features); d < minDist {
			minDist = d
			best = j
		}
	}
	return best
}

// Assign relabels every point with its nearest centroid and returns how many
// labels changed. Assigning twice against the same centroids is a no-op the
// second time.
func Assign(points []Point, centroids []Point) int {
	changed := 0
	for i := range points {
		if next := Nearest(points[i].Features, centroids, points[i].Cluster); next != points[i].Cluster {
			points[i].Cluster = next
			changed++
		}
	}
	return changed
}

// DefaultMinParallelPoints is the partition size below which an Assigner
// stays on the calling goroutine.
const DefaultMinParallelPoints = 4096

// Assigner shards assignment across a worker pool. Each point is handled by
// exactly one range so the result matches Assign.
type Assigner struct {
	pool        *parallel.WorkerPool
	minParallel int
}

// NewAssigner returns an Assigner running on pool. A nil pool assigns
// sequentially.
func NewAssigner(pool *parallel.WorkerPool) *Assigner {
	return &Assigner{pool: pool, minParallel: DefaultMinParallelPoints}
}

// WithMinParallel sets the smallest partition that is split across the pool
func (a *Assigner) WithMinParallel(n int) *Assigner {
	a.minParallel = n
	return a
}

// Assign relabels points like the package-level Assign
func (a *Assigner) Assign(points []Point, centroids []Point) (int, error) {
	if a == nil || a.pool == nil || len(points) < a.minParallel {
		return Assign(points, centroids), nil
	}

	var changed atomic.Int64
	err := a.pool.ForEachRange(len(points), 0, func(lo, hi int) {
		changed.Add(int64(Assign(points[lo:hi], centroids)))
	})
	if err != nil {
		return 0, err
	}
	return int(changed.Load()), nil
}
