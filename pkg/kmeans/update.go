package kmeans

import "fmt"

// UpdateCentroids moves every centroid to the mean of its members. A centroid
// with no members keeps its previous position bit for bit, which avoids the
// division by zero and lets the cluster be repopulated in a later round. The
// indices of those empty clusters are returned in ascending order.
func UpdateCentroids(centroids []Point, stats *Stats) ([]int, error) {
	if len(centroids) != stats.K {
		return nil, dimensionMismatch("centroids", stats.K, len(centroids))
	}

	var empty []int
	for j := range centroids {
		if len(centroids[j].Features) != stats.F {
			return nil, dimensionMismatch(fmt.Sprintf("centroid %d features", j), stats.F, len(centroids[j].Features))
		}
		centroids[j].Cluster = j

		n := stats.Counts[j]
		if n == 0 {
			empty = append(empty, j)
			continue
		}
		row := stats.Row(j)
		for d := range centroids[j].Features {
			centroids[j].Features[d] = row[d] / float64(n)
		}
	}
	return empty, nil
}
