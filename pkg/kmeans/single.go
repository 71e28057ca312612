package kmeans

import (
	"context"
	"fmt"

	"github.com/dd0wney/cluso-kmeans/pkg/partition"
)

// SingleWorker is the Communicator of a one-worker run: reduction is the
// identity, broadcast has no receivers and gather returns the local labels.
type SingleWorker struct{}

func (SingleWorker) Rank() int           { return 0 }
func (SingleWorker) Size() int           { return 1 }
func (SingleWorker) IsCoordinator() bool { return true }

func (SingleWorker) ReduceStats(ctx context.Context, round int, stats *Stats) error {
	return ctx.Err()
}

func (SingleWorker) BroadcastCentroids(ctx context.Context, round int, centroids []Point) error {
	return ctx.Err()
}

func (SingleWorker) GatherLabels(ctx context.Context, labels []int, layout partition.Layout) ([]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if layout.Workers() != 1 || layout.Total() != len(labels) {
		return nil, fmt.Errorf("%w: %d labels for layout of %d points over %d workers",
			ErrPartitionMismatch, len(labels), layout.Total(), layout.Workers())
	}
	return append([]int(nil), labels...), nil
}
