// Package kmeans implements fixed-round k-means clustering over a partitioned
// dataset.
//
// Every worker runs the same Engine over its own contiguous partition. Per
// round a worker accumulates per-cluster sums and counts for its points, the
// Communicator reduces those statistics onto the coordinator, the coordinator
// recomputes the centroids and the Communicator broadcasts them back before
// every worker reassigns its points. Only aggregated statistics and centroids
// cross worker boundaries between rounds. After the last round the
// coordinator gathers the labels back into global order.
//
// A single-process run uses SingleWorker, for which every collective is a
// no-op, and produces the same labels as a distributed run over the same
// dataset.
package kmeans
