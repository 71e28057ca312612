package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dd0wney/cluso-kmeans/pkg/blobstore"
	"github.com/dd0wney/cluso-kmeans/pkg/collective"
	"github.com/dd0wney/cluso-kmeans/pkg/config"
	"github.com/dd0wney/cluso-kmeans/pkg/dataset"
	"github.com/dd0wney/cluso-kmeans/pkg/health"
	"github.com/dd0wney/cluso-kmeans/pkg/kmeans"
	"github.com/dd0wney/cluso-kmeans/pkg/logging"
	"github.com/dd0wney/cluso-kmeans/pkg/metrics"
	"github.com/dd0wney/cluso-kmeans/pkg/parallel"
	"github.com/dd0wney/cluso-kmeans/pkg/partition"
	"github.com/dd0wney/cluso-kmeans/pkg/timing"
)

// runner executes one process's share of a clustering run. A local run hosts
// every rank of the run in this process.
type runner struct {
	cfg     config.RunConfig
	logger  logging.Logger
	metrics *metrics.Registry
	health  *health.HealthChecker
	factory collective.SocketFactory
	sink    timing.Sink

	assigner *kmeans.Assigner
	engine   atomic.Pointer[kmeans.Engine]
	joined   atomic.Bool
}

// outcome is what the rank that owns the results reports back
type outcome struct {
	runID  string
	header dataset.Header
	result *kmeans.Result
}

func newRunner(cfg config.RunConfig, logger logging.Logger, reg *metrics.Registry, sink timing.Sink) (*runner, error) {
	factory, err := collective.NewSocketFactory(cfg.Cluster.Transport)
	if err != nil {
		return nil, err
	}
	r := &runner{
		cfg:     cfg,
		logger:  logger,
		metrics: reg,
		health:  health.NewHealthChecker(),
		factory: factory,
		sink:    sink,
	}

	r.health.RegisterLivenessCheck("alive", health.Alive())
	r.health.RegisterReadinessCheck("membership", health.MembershipCheck(func() (bool, int) {
		return r.joined.Load(), cfg.Workers()
	}))
	r.health.RegisterCheck("engine", health.EngineCheck(func() health.EngineState {
		if e := r.engine.Load(); e != nil {
			return e
		}
		return nil
	}, cfg.Iterations))
	return r, nil
}

// Run clusters the input and, on the coordinator, writes the results and
// records the run time
func (r *runner) Run(ctx context.Context) error {
	if r.cfg.Parallelism > 0 {
		pool, err := parallel.NewWorkerPool(r.cfg.Parallelism)
		if err != nil {
			return err
		}
		defer pool.Close()
		r.assigner = kmeans.NewAssigner(pool)
	}

	start := time.Now()
	var (
		out *outcome
		err error
	)
	if r.cfg.Cluster.Local > 0 {
		out, err = r.runLocal(ctx)
	} else {
		out, err = r.runRank(ctx, r.cfg.Collective(r.cfg.Cluster.Rank), true)
	}
	if err == nil && out != nil {
		err = r.finish(ctx, out, start)
	}
	r.metrics.RecordRun(string(r.cfg.Mode()), err, time.Since(start))
	return err
}

// runLocal starts every rank on its own goroutine over an in-process
// transport. The first failure cancels the others.
func (r *runner) runLocal(ctx context.Context) (*outcome, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	runID := uuid.NewString()
	workers := r.cfg.Workers()
	address := collective.LocalAddress(runID)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
		out  *outcome
	)
	for rank := 0; rank < workers; rank++ {
		cc := r.cfg.Collective(rank)
		cc.Address = address
		if rank > 0 {
			cc.ProgressAddress = ""
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			o, err := r.runRank(ctx, cc, cc.Rank == 0, collective.WithRunID(runID))
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if !errors.Is(err, context.Canceled) || len(errs) == 0 {
					errs = append(errs, fmt.Errorf("rank %d: %w", cc.Rank, err))
				}
				cancel()
				return
			}
			if o != nil {
				out = o
			}
		}()
	}
	wg.Wait()

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

// runRank reads rank's partition and runs the engine. primary marks the rank
// whose engine feeds this process's metrics and health checks. Only the
// coordinator returns an outcome.
func (r *runner) runRank(ctx context.Context, cc collective.Config, primary bool, opts ...collective.Option) (*outcome, error) {
	logger := logging.ForWorker(r.logger, cc.Rank, cc.Size)

	shard, err := r.readShard(ctx, cc)
	if err != nil {
		return nil, err
	}
	kcfg, err := r.cfg.KMeans(shard.Header.Features)
	if err != nil {
		return nil, err
	}
	params := collective.RunParams{
		K:          kcfg.K,
		Features:   kcfg.Features,
		Points:     shard.Header.Points,
		Iterations: kcfg.Iterations,
		Mode:       kcfg.Mode.String(),
	}

	if cc.IsCoordinator() && cc.Size > 1 {
		if bp, err := partition.NewBlockPartition(shard.Header.Points, cc.Size); err == nil {
			m := partition.ComputeMetrics(bp, shard.Header.Points)
			logger.Debug("partition layout",
				logging.Any("sizes", m.PartitionSizes),
				logging.Int("empty_workers", m.EmptyWorkers),
				logging.Float64("load_balance", m.LoadBalance))
		}
	}

	opts = append(opts, collective.WithLogger(logger))
	if primary {
		opts = append(opts, collective.WithMetrics(r.metrics))
		r.metrics.SetTopology(cc.Rank, cc.Size, len(shard.Points), kcfg.Iterations)
	}

	comm, runID, closeComm, err := r.connect(ctx, cc, params, opts)
	if err != nil {
		return nil, err
	}
	defer closeComm()
	if primary {
		r.joined.Store(true)
	}

	engineOpts := []kmeans.Option{kmeans.WithLogger(logger)}
	if r.assigner != nil {
		engineOpts = append(engineOpts, kmeans.WithAssigner(r.assigner))
	}
	if primary {
		engineOpts = append(engineOpts, kmeans.WithObserver(r.metrics))
	}

	var progress *collective.ProgressPublisher
	if cc.IsCoordinator() && cc.ProgressAddress != "" {
		progress, err = collective.NewProgressPublisher(r.factory, cc.ProgressAddress, collective.RunInfo{
			RunID:      runID,
			Iterations: kcfg.Iterations,
			Workers:    cc.Size,
			Points:     shard.Header.Points,
			Clusters:   kcfg.K,
		}, logger)
		if err != nil {
			return nil, err
		}
		defer progress.Close()
		engineOpts = append(engineOpts, kmeans.WithObserver(progress))
	}

	engine, err := kmeans.NewEngine(kcfg, comm, shard.Layout, shard.Points, engineOpts...)
	if err != nil {
		return nil, err
	}
	if primary {
		r.engine.Store(engine)
		defer func() { r.metrics.SetEngineState(engine.State()) }()
	}

	result, err := engine.Run(ctx)
	if progress != nil {
		progress.Finish(err)
	}
	if err != nil {
		return nil, err
	}
	if !cc.IsCoordinator() {
		return nil, nil
	}
	return &outcome{runID: runID, header: shard.Header, result: result}, nil
}

// readShard opens the input and parses the rank's partition. Every rank reads
// the input on its own.
func (r *runner) readShard(ctx context.Context, cc collective.Config) (*dataset.Shard, error) {
	store, name, err := blobstore.Resolve(ctx, r.cfg.Input, r.cfg.S3Options())
	if err != nil {
		return nil, err
	}
	rc, err := store.Open(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("open input %s: %w", r.cfg.Input, err)
	}
	defer rc.Close()

	shard, err := dataset.ReadPartition(rc, r.cfg.Clusters, cc.Size, cc.Rank)
	if err != nil {
		return nil, fmt.Errorf("read input %s: %w", r.cfg.Input, err)
	}
	return shard, nil
}

// connect joins the run. A single-worker run needs no transport.
func (r *runner) connect(ctx context.Context, cc collective.Config, params collective.RunParams, opts []collective.Option) (kmeans.Communicator, string, func(), error) {
	if cc.Size == 1 {
		return kmeans.SingleWorker{}, uuid.NewString(), func() {}, nil
	}

	if !cc.IsCoordinator() {
		w, err := collective.Dial(ctx, cc, params, r.factory, opts...)
		if err != nil {
			return nil, "", nil, err
		}
		return w, w.RunID(), func() { w.Close() }, nil
	}

	c, err := collective.NewCoordinator(cc, params, r.factory, opts...)
	if err != nil {
		return nil, "", nil, err
	}
	if err := c.Listen(); err != nil {
		return nil, "", nil, err
	}
	if err := c.AwaitWorkers(ctx); err != nil {
		c.Close()
		return nil, "", nil, err
	}
	return c, c.RunID(), func() { c.Close() }, nil
}

// finish writes the results file and records the run time
func (r *runner) finish(ctx context.Context, out *outcome, start time.Time) error {
	store, name, err := blobstore.Resolve(ctx, r.cfg.Output, r.cfg.S3Options())
	if err != nil {
		return err
	}
	err = blobstore.WriteWith(ctx, store, name, func(w io.Writer) error {
		return dataset.WriteResults(w, out.result.Labels)
	})
	if err != nil {
		return fmt.Errorf("write results %s: %w", r.cfg.Output, err)
	}

	entry := timing.Entry{
		RunID:      out.runID,
		Mode:       r.cfg.Mode(),
		Workers:    r.cfg.Workers(),
		Points:     out.header.Points,
		Features:   out.header.Features,
		Clusters:   r.cfg.Clusters,
		Iterations: r.cfg.Iterations,
		Elapsed:    time.Since(start),
		RecordedAt: time.Now(),
	}
	r.logger.Info("run complete",
		logging.RunID(entry.RunID),
		logging.String("mode", string(entry.Mode)),
		logging.Points(entry.Points),
		logging.Path(name),
		logging.Latency(entry.Elapsed))

	if r.sink == nil {
		return nil
	}
	if err := r.sink.Record(ctx, entry); err != nil {
		return fmt.Errorf("record timing: %w", err)
	}
	return nil
}
