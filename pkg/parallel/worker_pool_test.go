package parallel

import (
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newTestPool(t *testing.T, workers int) *WorkerPool {
	t.Helper()
	pool, err := NewWorkerPool(workers)
	if err != nil {
		t.Fatalf("NewWorkerPool(%d) failed: %v", workers, err)
	}
	return pool
}

// TestWorkerPoolBasicOperations tests basic worker pool functionality
func TestWorkerPoolBasicOperations(t *testing.T) {
	pool := newTestPool(t, 4)

	executed := false
	if !pool.Submit(func() { executed = true }) {
		t.Error("Task submission failed")
	}

	// Close waits for queued tasks
	pool.Close()

	if !executed {
		t.Error("Task was not executed")
	}
}

func TestWorkerPoolOverflow(t *testing.T) {
	if _, err := NewWorkerPool(math.MaxInt); err == nil {
		t.Error("Expected error for too many workers")
	}
}

func TestWorkerPoolDefaultsToGOMAXPROCS(t *testing.T) {
	pool := newTestPool(t, 0)
	defer pool.Close()

	if pool.Workers() < 1 {
		t.Errorf("Expected at least 1 worker, got %d", pool.Workers())
	}
}

// TestWorkerPoolConcurrentSubmissions tests concurrent task submissions
func TestWorkerPoolConcurrentSubmissions(t *testing.T) {
	pool := newTestPool(t, 10)

	numTasks := 100
	var counter int64

	var wg sync.WaitGroup
	for i := 0; i < numTasks; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pool.Submit(func() {
				atomic.AddInt64(&counter, 1)
			})
		}()
	}

	wg.Wait()
	pool.Close()

	if counter != int64(numTasks) {
		t.Errorf("Expected counter %d, got %d", numTasks, counter)
	}
}

// TestWorkerPoolSubmitAfterClose tests that submissions after close return false
func TestWorkerPoolSubmitAfterClose(t *testing.T) {
	pool := newTestPool(t, 4)
	pool.Close()

	if pool.Submit(func() { t.Error("This task should never execute") }) {
		t.Error("Task submission after close should return false")
	}
}

// TestWorkerPoolConcurrentClose tests concurrent close calls
func TestWorkerPoolConcurrentClose(t *testing.T) {
	pool := newTestPool(t, 4)

	for i := 0; i < 20; i++ {
		pool.Submit(func() {
			time.Sleep(time.Millisecond)
		})
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pool.Close()
		}()
	}

	wg.Wait()
}

// TestWorkerPoolWithPanic tests that panics in tasks don't crash the pool
func TestWorkerPoolWithPanic(t *testing.T) {
	pool := newTestPool(t, 4)

	var counter int64
	for i := 0; i < 5; i++ {
		pool.Submit(func() {
			panic("intentional panic")
		})
	}
	for i := 0; i < 10; i++ {
		pool.Submit(func() {
			atomic.AddInt64(&counter, 1)
		})
	}

	pool.Close()

	if counter != 10 {
		t.Errorf("Expected counter 10, got %d", counter)
	}
	if pool.Panics() != 5 {
		t.Errorf("Expected 5 recovered panics, got %d", pool.Panics())
	}
}

func TestForEachRangeCoversEveryIndexOnce(t *testing.T) {
	pool := newTestPool(t, 4)
	defer pool.Close()

	tests := []struct {
		name      string
		n, chunks int
	}{
		{"even", 100, 4},
		{"uneven", 103, 4},
		{"more chunks than items", 3, 8},
		{"default chunks", 50, 0},
		{"single item", 1, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hits := make([]int32, tt.n)
			err := pool.ForEachRange(tt.n, tt.chunks, func(lo, hi int) {
				for i := lo; i < hi; i++ {
					atomic.AddInt32(&hits[i], 1)
				}
			})
			if err != nil {
				t.Fatalf("ForEachRange failed: %v", err)
			}
			for i, h := range hits {
				if h != 1 {
					t.Errorf("index %d visited %d times", i, h)
				}
			}
		})
	}
}

func TestForEachRangeEmpty(t *testing.T) {
	pool := newTestPool(t, 2)
	defer pool.Close()

	called := false
	if err := pool.ForEachRange(0, 4, func(lo, hi int) { called = true }); err != nil {
		t.Fatalf("ForEachRange(0) failed: %v", err)
	}
	if called {
		t.Error("fn should not run for an empty range")
	}
}

func TestForEachRangeReportsPanic(t *testing.T) {
	pool := newTestPool(t, 2)
	defer pool.Close()

	err := pool.ForEachRange(10, 2, func(lo, hi int) {
		if lo == 0 {
			panic("boom")
		}
	})
	if err == nil {
		t.Fatal("Expected error from panicking range")
	}
}

func TestForEachRangeAfterClose(t *testing.T) {
	pool := newTestPool(t, 2)
	pool.Close()

	if err := pool.ForEachRange(10, 2, func(lo, hi int) {}); err != ErrPoolClosed {
		t.Errorf("Expected ErrPoolClosed, got %v", err)
	}
}

// BenchmarkForEachRange benchmarks chunked range dispatch
func BenchmarkForEachRange(b *testing.B) {
	pool, err := NewWorkerPool(8)
	if err != nil {
		b.Fatal(err)
	}
	defer pool.Close()

	data := make([]float64, 1<<16)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = pool.ForEachRange(len(data), 0, func(lo, hi int) {
			for j := lo; j < hi; j++ {
				data[j] += 1
			}
		})
	}
}
