package partition

import (
	"errors"
	"fmt"
)

// Strategy defines how dataset indices map onto workers
type Strategy interface {
	GetPartition(index int) int
	GetPartitionCount() int
}

var (
	// ErrInvalidWorkerCount is returned when the worker count is not positive
	ErrInvalidWorkerCount = errors.New("worker count must be positive")
	// ErrInvalidPointCount is returned when the point count is negative
	ErrInvalidPointCount = errors.New("point count cannot be negative")
	// ErrRankOutOfRange is returned when a rank is outside [0, workers)
	ErrRankOutOfRange = errors.New("rank out of range")
	// ErrLayoutMismatch is returned when a layout does not tile the dataset
	ErrLayoutMismatch = errors.New("partition layout does not tile the dataset")
)

// Partition is the contiguous slice of the dataset owned by one worker
type Partition struct {
	Rank   int
	Offset int
	Count  int
}

// End returns the index one past the last point of the partition
func (p Partition) End() int {
	return p.Offset + p.Count
}

// Contains reports whether the global index i belongs to the partition
func (p Partition) Contains(i int) bool {
	return i >= p.Offset && i < p.End()
}

// BlockPartition splits N points into W contiguous blocks. The first N%W
// workers get one extra point.
type BlockPartition struct {
	points  int
	workers int
	base    int
	rem     int
}

// NewBlockPartition creates a contiguous block partitioning of n points across w workers
func NewBlockPartition(n, w int) (*BlockPartition, error) {
	if w <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidWorkerCount, w)
	}
	if n < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPointCount, n)
	}
	return &BlockPartition{
		points:  n,
		workers: w,
		base:    n / w,
		rem:     n % w,
	}, nil
}

// Size returns the number of points owned by rank r
func (bp *BlockPartition) Size(r int) int {
	if r < bp.rem {
		return bp.base + 1
	}
	return bp.base
}

// Offset returns the global index of rank r's first point
func (bp *BlockPartition) Offset(r int) int {
	if r < bp.rem {
		return r * (bp.base + 1)
	}
	return bp.rem*(bp.base+1) + (r-bp.rem)*bp.base
}

// For returns the partition owned by rank r
func (bp *BlockPartition) For(r int) (Partition, error) {
	if r < 0 || r >= bp.workers {
		return Partition{}, fmt.Errorf("%w: rank %d with %d workers", ErrRankOutOfRange, r, bp.workers)
	}
	return Partition{Rank: r, Offset: bp.Offset(r), Count: bp.Size(r)}, nil
}

// GetPartition returns which worker owns the global index
func (bp *BlockPartition) GetPartition(index int) int {
	if index < 0 || index >= bp.points {
		return -1
	}
	split := bp.rem * (bp.base + 1)
	if index < split {
		return index / (bp.base + 1)
	}
	// base is non-zero here: index >= split implies some worker has base points
	return bp.rem + (index-split)/bp.base
}

// GetPartitionCount returns the number of workers
func (bp *BlockPartition) GetPartitionCount() int {
	return bp.workers
}

// PointCount returns the total number of points being partitioned
func (bp *BlockPartition) PointCount() int {
	return bp.points
}

// Layout returns the size and offset vectors for every worker
func (bp *BlockPartition) Layout() Layout {
	sizes := make([]int, bp.workers)
	offsets := make([]int, bp.workers)
	for r := 0; r < bp.workers; r++ {
		sizes[r] = bp.Size(r)
		offsets[r] = bp.Offset(r)
	}
	return Layout{Sizes: sizes, Offsets: offsets}
}

// Layout holds the per-worker sizes and offsets. The same layout must be used
// when distributing input and when gathering labels back.
type Layout struct {
	Sizes   []int
	Offsets []int
}

// Total returns the number of points covered by the layout
func (l Layout) Total() int {
	total := 0
	for _, s := range l.Sizes {
		total += s
	}
	return total
}

// Workers returns the number of workers in the layout
func (l Layout) Workers() int {
	return len(l.Sizes)
}

// Partition returns rank r's partition
func (l Layout) Partition(r int) (Partition, error) {
	if r < 0 || r >= len(l.Sizes) {
		return Partition{}, fmt.Errorf("%w: rank %d with %d workers", ErrRankOutOfRange, r, len(l.Sizes))
	}
	return Partition{Rank: r, Offset: l.Offsets[r], Count: l.Sizes[r]}, nil
}

// Validate checks that the layout tiles exactly n points with no gap or overlap
func (l Layout) Validate(n int) error {
	if len(l.Sizes) == 0 || len(l.Sizes) != len(l.Offsets) {
		return fmt.Errorf("%w: %d sizes, %d offsets", ErrLayoutMismatch, len(l.Sizes), len(l.Offsets))
	}
	next := 0
	for r := range l.Sizes {
		if l.Sizes[r] < 0 {
			return fmt.Errorf("%w: rank %d has negative size %d", ErrLayoutMismatch, r, l.Sizes[r])
		}
		if l.Offsets[r] != next {
			return fmt.Errorf("%w: rank %d starts at %d, expected %d", ErrLayoutMismatch, r, l.Offsets[r], next)
		}
		next += l.Sizes[r]
	}
	if next != n {
		return fmt.Errorf("%w: covers %d points, expected %d", ErrLayoutMismatch, next, n)
	}
	return nil
}

// Metrics contains partitioning quality metrics
type Metrics struct {
	PartitionSizes []int   // Points per worker
	EmptyWorkers   int     // Workers that own no points
	LoadBalance    float64 // 0-1 (1 = perfect balance)
}

// ComputeMetrics analyzes how evenly a strategy spreads n points
func ComputeMetrics(strategy Strategy, n int) *Metrics {
	partCount := strategy.GetPartitionCount()
	sizes := make([]int, partCount)

	for i := 0; i < n; i++ {
		if p := strategy.GetPartition(i); p >= 0 && p < partCount {
			sizes[p]++
		}
	}

	empty := 0
	for _, size := range sizes {
		if size == 0 {
			empty++
		}
	}

	// Load balance from variance around the ideal size
	balance := 1.0
	if n > 0 {
		avgSize := float64(n) / float64(partCount)
		variance := 0.0
		for _, size := range sizes {
			diff := float64(size) - avgSize
			variance += diff * diff
		}
		variance /= float64(partCount)
		balance = 1.0 / (1.0 + variance/avgSize)
	}

	return &Metrics{
		PartitionSizes: sizes,
		EmptyWorkers:   empty,
		LoadBalance:    balance,
	}
}
