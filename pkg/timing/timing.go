// Package timing records how long clustering runs take and derives speedup
// and scalability from the records.
package timing

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Mode labels how a run was executed
type Mode string

const (
	ModeSerial   Mode = "Serial"
	ModeParallel Mode = "Parallel"
)

// ModeFor returns the mode of a run with the given worker count
func ModeFor(workers int) Mode {
	if workers > 1 {
		return ModeParallel
	}
	return ModeSerial
}

// Entry is one timed run
type Entry struct {
	RunID      string
	Mode       Mode
	Workers    int
	Points     int
	Features   int
	Clusters   int
	Iterations int
	Elapsed    time.Duration
	RecordedAt time.Time
}

// Sink stores timing entries
type Sink interface {
	Record(ctx context.Context, e Entry) error
}

// MultiSink records to every sink and joins their errors
type MultiSink []Sink

func (m MultiSink) Record(ctx context.Context, e Entry) error {
	var errs []error
	for _, s := range m {
		if err := s.Record(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Speedup is the serial time divided by the parallel time
func Speedup(serial, parallel time.Duration) (float64, error) {
	if parallel <= 0 {
		return 0, fmt.Errorf("parallel time must be positive, got %v", parallel)
	}
	return serial.Seconds() / parallel.Seconds(), nil
}

// Scalability is the single-worker parallel time divided by the parallel time
func Scalability(singleWorker, parallel time.Duration) (float64, error) {
	if parallel <= 0 {
		return 0, fmt.Errorf("parallel time must be positive, got %v", parallel)
	}
	return singleWorker.Seconds() / parallel.Seconds(), nil
}

// Mean averages durations; it is zero for an empty slice
func Mean(ds []time.Duration) time.Duration {
	if len(ds) == 0 {
		return 0
	}
	var sum time.Duration
	for _, d := range ds {
		sum += d
	}
	return sum / time.Duration(len(ds))
}
