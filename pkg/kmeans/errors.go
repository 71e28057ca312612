package kmeans

import (
	"errors"
	"fmt"
)

// Configuration errors
var (
	ErrInvalidK             = errors.New("cluster count must be positive")
	ErrInvalidIterations    = errors.New("iteration count cannot be negative")
	ErrInvalidFeatures      = errors.New("feature count must be positive")
	ErrEmptyPartitionLayout = errors.New("partition layout has no workers")
)

// Runtime errors
var (
	ErrDimensionMismatch = errors.New("dimension mismatch")
	ErrLabelOutOfRange   = errors.New("cluster label out of range")
	ErrPartitionMismatch = errors.New("local points do not match the partition")
)

// DimensionMismatchError reports a vector or statistics shape that differs
// from the run's configured dimensions.
type DimensionMismatchError struct {
	What     string
	Expected int
	Actual   int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("%s: expected %d, got %d", e.What, e.Expected, e.Actual)
}

// Unwrap lets errors.Is match ErrDimensionMismatch
func (e *DimensionMismatchError) Unwrap() error {
	return ErrDimensionMismatch
}

func dimensionMismatch(what string, expected, actual int) error {
	return &DimensionMismatchError{What: what, Expected: expected, Actual: actual}
}
