package kmeans

// Point is a feature vector with its current cluster label. Centroids share the
// type; a centroid's Cluster is its own index.
type Point struct {
	Cluster  int       `msgpack:"cluster"`
	Features []float64 `msgpack:"features"`
}

// InitialLabel is the deterministic starting cluster of the point at globalIndex.
// Striping by index puts at least one point in every cluster when N >= K.
func InitialLabel(globalIndex, k int) int {
	return globalIndex % k
}

// SeedLabels assigns initial labels to a partition whose first point sits at
// global index offset.
func SeedLabels(points []Point, offset, k int) {
	for i := range points {
		points[i].Cluster = InitialLabel(offset+i, k)
	}
}

// NewCentroids returns k zero-valued centroids of dimension f
func NewCentroids(k, f int) []Point {
	centroids := make([]Point, k)
	backing := make([]float64, k*f)
	for j := range centroids {
		centroids[j] = Point{Cluster: j, Features: backing[j*f : (j+1)*f : (j+1)*f]}
	}
	return centroids
}

// ClonePoints deep-copies points
func ClonePoints(points []Point) []Point {
	out := make([]Point, len(points))
	for i, p := range points {
		out[i] = Point{Cluster: p.Cluster, Features: append([]float64(nil), p.Features...)}
	}
	return out
}

// Labels extracts the cluster label of every point
func Labels(points []Point) []int {
	labels := make([]int, len(points))
	for i, p := range points {
		labels[i] = p.Cluster
	}
	return labels
}
