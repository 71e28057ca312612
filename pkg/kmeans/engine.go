package kmeans

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dd0wney/cluso-kmeans/pkg/logging"
	"github.com/dd0wney/cluso-kmeans/pkg/partition"
)

// State is a step of the engine's state machine
type State int32

const (
	StateInit State = iota
	StateAccumulate
	StateReduce
	StateUpdate
	StateBroadcast
	StateAssign
	StateGather
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateAccumulate:
		return "accumulate"
	case StateReduce:
		return "reduce"
	case StateUpdate:
		return "update"
	case StateBroadcast:
		return "broadcast"
	case StateAssign:
		return "assign"
	case StateGather:
		return "gather"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Communicator carries the three collectives between the workers of a run.
// Every worker must call each collective once per round, in the same order.
type Communicator interface {
	Rank() int
	Size() int
	IsCoordinator() bool

	// ReduceStats combines every worker's stats. On the coordinator stats is
	// overwritten with the global sums; on other workers it is left as is.
	ReduceStats(ctx context.Context, round int, stats *Stats) error

	// BroadcastCentroids copies the coordinator's centroids into every other
	// worker's centroids. No worker returns before the coordinator has sent
	// the round's centroids.
	BroadcastCentroids(ctx context.Context, round int, centroids []Point) error

	// GatherLabels collects every worker's labels into global order using
	// layout. The coordinator receives all N labels; other workers get nil.
	GatherLabels(ctx context.Context, labels []int, layout partition.Layout) ([]int, error)
}

// Config describes one clustering run
type Config struct {
	K          int
	Features   int
	Iterations int
	Mode       AccumulationMode
}

// Validate checks the run parameters
func (c Config) Validate() error {
	if c.K <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidK, c.K)
	}
	if c.Features <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidFeatures, c.Features)
	}
	if c.Iterations < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidIterations, c.Iterations)
	}
	return nil
}

// RoundReport summarizes one round as seen by one worker. Empty is only known
// on the coordinator.
type RoundReport struct {
	Rank      int
	Round     int
	Changed   int
	Empty     []int
	Members   int64
	Timings   StepTimings
	Centroids []Point
}

// StepTimings records how long each step of a round took
type StepTimings struct {
	Accumulate time.Duration
	Reduce     time.Duration
	Update     time.Duration
	Broadcast  time.Duration
	Assign     time.Duration
}

// Total is the wall time of the round
func (t StepTimings) Total() time.Duration {
	return t.Accumulate + t.Reduce + t.Update + t.Broadcast + t.Assign
}

// Observer receives a report after every round. Observers run on the engine's
// goroutine and must not retain Centroids past the call.
type Observer interface {
	ObserveRound(RoundReport)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(RoundReport)

func (f ObserverFunc) ObserveRound(r RoundReport) { f(r) }

// Result is the outcome of a run. Labels holds all N labels in global order on
// the coordinator and nil elsewhere.
type Result struct {
	Labels    []int
	Centroids []Point
	Rounds    int
	Elapsed   time.Duration
}

// Engine runs the fixed-round clustering loop for one worker
type Engine struct {
	cfg       Config
	comm      Communicator
	layout    partition.Layout
	part      partition.Partition
	points    []Point
	centroids []Point
	stats     *Stats
	assigner  *Assigner
	logger    logging.Logger
	observers []Observer

	state atomic.Int32
	round atomic.Int64
	once  sync.Once
}

// Option configures an Engine
type Option func(*Engine)

// WithLogger sets the engine's logger
func WithLogger(logger logging.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithAssigner sets the assigner used in the assign step
func WithAssigner(a *Assigner) Option {
	return func(e *Engine) { e.assigner = a }
}

// WithObserver registers an observer for round reports
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observers = append(e.observers, o) }
}

// NewEngine builds the engine for comm's rank. points are the worker's local
// partition of layout, in global order.
func NewEngine(cfg Config, comm Communicator, layout partition.Layout, points []Point, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if layout.Workers() == 0 {
		return nil, ErrEmptyPartitionLayout
	}
	if layout.Workers() != comm.Size() {
		return nil, fmt.Errorf("%w: layout has %d workers, communicator %d", ErrPartitionMismatch, layout.Workers(), comm.Size())
	}
	part, err := layout.Partition(comm.Rank())
	if err != nil {
		return nil, err
	}
	if len(points) != part.Count {
		return nil, fmt.Errorf("%w: rank %d holds %d points, partition has %d", ErrPartitionMismatch, part.Rank, len(points), part.Count)
	}
	for i, p := range points {
		if len(p.Features) != cfg.Features {
			return nil, dimensionMismatch(fmt.Sprintf("point %d features", part.Offset+i), cfg.Features, len(p.Features))
		}
	}

	stats, err := NewStats(cfg.K, cfg.Features)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:       cfg,
		comm:      comm,
		layout:    layout,
		part:      part,
		points:    points,
		centroids: NewCentroids(cfg.K, cfg.Features),
		stats:     stats,
		logger:    logging.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With(logging.Component("engine"))
	return e, nil
}

// State returns the step the engine is currently in
func (e *Engine) State() State {
	return State(e.state.Load())
}

// Round returns the current round, starting at 1. It is 0 before the loop.
func (e *Engine) Round() int {
	return int(e.round.Load())
}

// Centroids returns the engine's current centroids. Callers must not modify them.
func (e *Engine) Centroids() []Point {
	return e.centroids
}

func (e *Engine) enter(s State) {
	e.state.Store(int32(s))
}

// Run executes exactly Iterations rounds and gathers the labels. An engine
// runs once; later calls return an error.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	ran := false
	e.once.Do(func() { ran = true })
	if !ran {
		return nil, fmt.Errorf("engine already ran")
	}

	result, err := e.run(ctx)
	if err != nil {
		e.enter(StateFailed)
		e.logger.Error("clustering failed", logging.Round(e.Round()), logging.Error(err))
		return nil, err
	}
	e.enter(StateDone)
	return result, nil
}

func (e *Engine) run(ctx context.Context) (*Result, error) {
	start := time.Now()
	e.enter(StateInit)
	SeedLabels(e.points, e.part.Offset, e.cfg.K)

	e.logger.Info("clustering started",
		logging.Clusters(e.cfg.K),
		logging.Points(len(e.points)),
		logging.Int("offset", e.part.Offset),
		logging.Int("iterations", e.cfg.Iterations),
		logging.String("mode", e.cfg.Mode.String()))

	for round := 1; round <= e.cfg.Iterations; round++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		e.round.Store(int64(round))

		report, err := e.step(ctx, round)
		if err != nil {
			return nil, fmt.Errorf("round %d: %w", round, err)
		}

		e.logger.Debug("round complete",
			logging.Round(round),
			logging.Int("changed", report.Changed),
			logging.Int("empty_clusters", len(report.Empty)),
			logging.Latency(report.Timings.Total()))
		for _, o := range e.observers {
			o.ObserveRound(report)
		}
	}

	e.enter(StateGather)
	labels, err := e.comm.GatherLabels(ctx, Labels(e.points), e.layout)
	if err != nil {
		return nil, fmt.Errorf("gather labels: %w", err)
	}

	result := &Result{
		Labels:    labels,
		Centroids: ClonePoints(e.centroids),
		Rounds:    e.cfg.Iterations,
		Elapsed:   time.Since(start),
	}
	e.logger.Info("clustering finished", logging.Latency(result.Elapsed))
	return result, nil
}

func (e *Engine) step(ctx context.Context, round int) (RoundReport, error) {
	report := RoundReport{Rank: e.comm.Rank(), Round: round}
	mark := time.Now()
	lap := func() time.Duration {
		now := time.Now()
		d := now.Sub(mark)
		mark = now
		return d
	}

	e.enter(StateAccumulate)
	e.stats.Reset()
	if err := e.stats.Accumulate(e.points, e.cfg.Mode); err != nil {
		return report, fmt.Errorf("accumulate: %w", err)
	}
	report.Timings.Accumulate = lap()

	// Workers with no points still contribute zeroed stats
	e.enter(StateReduce)
	if err := e.comm.ReduceStats(ctx, round, e.stats); err != nil {
		return report, fmt.Errorf("reduce: %w", err)
	}
	report.Timings.Reduce = lap()

	if e.comm.IsCoordinator() {
		e.enter(StateUpdate)
		empty, err := UpdateCentroids(e.centroids, e.stats)
		if err != nil {
			return report, fmt.Errorf("update centroids: %w", err)
		}
		report.Empty = empty
		report.Members = e.stats.Members()
		for _, j := range empty {
			e.logger.Debug("cluster empty, centroid kept", logging.Round(round), logging.Cluster(j))
		}
	}
	report.Timings.Update = lap()

	e.enter(StateBroadcast)
	if err := e.comm.BroadcastCentroids(ctx, round, e.centroids); err != nil {
		return report, fmt.Errorf("broadcast: %w", err)
	}
	report.Timings.Broadcast = lap()

	e.enter(StateAssign)
	changed, err := e.assigner.Assign(e.points, e.centroids)
	if err != nil {
		return report, fmt.Errorf("assign: %w", err)
	}
	report.Changed = changed
	report.Timings.Assign = lap()
	report.Centroids = e.centroids
	return report, nil
}
