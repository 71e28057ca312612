package kmeans

import (
	"fmt"
	"math"
	"strings"
)

// AccumulationMode selects how feature sums are accumulated
type AccumulationMode int

const (
	// AccumulateFloat sums features at full float64 precision
	AccumulateFloat AccumulationMode = iota
	// AccumulateTruncate truncates every running per-feature total toward zero
	// after each addition, reproducing the integer accumulators of the legacy
	// tool bit for bit.
	AccumulateTruncate
)

// String returns the configuration name of the mode
func (m AccumulationMode) String() string {
	switch m {
	case AccumulateFloat:
		return "float"
	case AccumulateTruncate:
		return "truncate"
	default:
		return fmt.Sprintf("AccumulationMode(%d)", int(m))
	}
}

// ParseAccumulationMode parses "float" or "truncate"
func ParseAccumulationMode(s string) (AccumulationMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "float":
		return AccumulateFloat, nil
	case "truncate":
		return AccumulateTruncate, nil
	default:
		return AccumulateFloat, fmt.Errorf("unknown accumulation mode %q", s)
	}
}

// Stats holds per-cluster feature sums and member counts for one round.
// Sums is row-major: cluster j owns Sums[j*F : (j+1)*F].
type Stats struct {
	K      int
	F      int
	Sums   []float64
	Counts []int64
}

// NewStats allocates zeroed statistics for k clusters of dimension f
func NewStats(k, f int) (*Stats, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidK, k)
	}
	if f <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidFeatures, f)
	}
	return &Stats{
		K:      k,
		F:      f,
		Sums:   make([]float64, k*f),
		Counts: make([]int64, k),
	}, nil
}

// Row returns cluster j's feature sums
func (s *Stats) Row(j int) []float64 {
	return s.Sums[j*s.F : (j+1)*s.F]
}

// Accumulate adds every point's features into its cluster's row. Points must be
// labelled in [0, K) and carry exactly F features.
func (s *Stats) Accumulate(points []Point, mode AccumulationMode) error {
	for i, p := range points {
		if p.Cluster < 0 || p.Cluster >= s.K {
			return fmt.Errorf("%w: point %d has label %d with %d clusters", ErrLabelOutOfRange, i, p.Cluster, s.K)
		}
		if len(p.Features) != s.F {
			return dimensionMismatch(fmt.Sprintf("point %d features", i), s.F, len(p.Features))
		}

		row := s.Row(p.Cluster)
		if mode == AccumulateTruncate {
			for d, v := range p.Features {
				row[d] = math.Trunc(row[d] + v)
			}
		} else {
			for d, v := range p.Features {
				row[d] += v
			}
		}
		s.Counts[p.Cluster]++
	}
	return nil
}

// Merge adds other into s element-wise. Merging is associative and
// commutative up to floating point rounding; callers that need reproducible
// results merge in a fixed order.
func (s *Stats) Merge(other *Stats) error {
	if err := other.Validate(s.K, s.F); err != nil {
		return err
	}
	for i, v := range other.Sums {
		s.Sums[i] += v
	}
	for j, c := range other.Counts {
		s.Counts[j] += c
	}
	return nil
}

// Validate checks that s describes k clusters of dimension f and that its
// slices have matching lengths
func (s *Stats) Validate(k, f int) error {
	if s.K != k {
		return dimensionMismatch("stats clusters", k, s.K)
	}
	if s.F != f {
		return dimensionMismatch("stats features", f, s.F)
	}
	if len(s.Sums) != k*f {
		return dimensionMismatch("stats sums", k*f, len(s.Sums))
	}
	if len(s.Counts) != k {
		return dimensionMismatch("stats counts", k, len(s.Counts))
	}
	return nil
}

// Reset zeroes all sums and counts
func (s *Stats) Reset() {
	clear(s.Sums)
	clear(s.Counts)
}

// Clone returns a deep copy
func (s *Stats) Clone() *Stats {
	return &Stats{
		K:      s.K,
		F:      s.F,
		Sums:   append([]float64(nil), s.Sums...),
		Counts: append([]int64(nil), s.Counts...),
	}
}

// Members returns the total member count over all clusters
func (s *Stats) Members() int64 {
	var total int64
	for _, c := range s.Counts {
		total += c
	}
	return total
}
