// Command kmeans clusters a dataset file into K groups on one worker or across
// a fleet of workers.
//
//	kmeans [flags] <num_clusters> <iterations> <path>
//
// A run with one worker is serial and writes serial_results.txt. With more
// workers the coordinator (rank 0) writes parallel_results.txt. Rank and size
// come from -rank/-size or KMEANS_RANK/KMEANS_SIZE; -local N runs N workers
// inside this process.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/dd0wney/cluso-kmeans/pkg/config"
	"github.com/dd0wney/cluso-kmeans/pkg/health"
	"github.com/dd0wney/cluso-kmeans/pkg/logging"
	"github.com/dd0wney/cluso-kmeans/pkg/metrics"
	"github.com/dd0wney/cluso-kmeans/pkg/timing"
	"github.com/dd0wney/cluso-kmeans/pkg/validation"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Fatalf("kmeans: %v", err)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("kmeans", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "usage: kmeans [flags] <num_clusters> <iterations> <path>\n")
		fs.PrintDefaults()
	}

	var (
		configFile   = fs.String("config", "", "YAML configuration file")
		rank         = fs.Int("rank", 0, "Rank of this worker (0 = coordinator)")
		size         = fs.Int("size", 1, "Number of workers in the run")
		local        = fs.Int("local", 0, "Run this many workers in-process")
		coordinator  = fs.String("coordinator", "", "Coordinator address, e.g. tcp://10.0.0.1:7070")
		transport    = fs.String("transport", "", "Collective transport: nng or zmq")
		accumulation = fs.String("accumulation", "", "Feature accumulation: float or truncate")
		parallelism  = fs.Int("parallelism", 0, "Goroutines per worker for assignment (0 = sequential)")
		progress     = fs.String("progress", "", "Address to publish round progress on")
		metricsAddr  = fs.String("metrics", "", "Serve /metrics and /health on this host:port")
		output       = fs.String("output", "", "Results location (path or s3://bucket/key)")
		timeLog      = fs.String("time-log", "", "Timing log to append to")
		timingDB     = fs.String("timing-db", "", "PostgreSQL URL for run timings")
		joinSecret   = fs.String("join-secret", "", "Shared secret for worker join tokens")
		joinTimeout  = fs.Duration("join-timeout", 0, "How long workers may take to join (0 = forever)")
		opTimeout    = fs.Duration("op-timeout", 0, "Deadline of each collective step (0 = forever)")
		logLevel     = fs.String("log-level", "", "debug, info, warn or error")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 3 {
		fs.Usage()
		return errors.New("expected <num_clusters> <iterations> <path>")
	}

	cfg := config.DefaultConfig()
	if *configFile != "" {
		loaded, err := config.Load(*configFile)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	clusters, err := strconv.Atoi(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("num_clusters: %w", err)
	}
	iterations, err := strconv.Atoi(fs.Arg(1))
	if err != nil {
		return fmt.Errorf("iterations: %w", err)
	}
	cfg.Clusters = clusters
	cfg.Iterations = iterations
	cfg.Input = fs.Arg(2)

	// Flags override the file only when given
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "rank":
			cfg.Cluster.Rank = *rank
		case "size":
			cfg.Cluster.Size = *size
		case "local":
			cfg.Cluster.Local = *local
		case "coordinator":
			cfg.Cluster.Coordinator = *coordinator
		case "transport":
			cfg.Cluster.Transport = *transport
		case "accumulation":
			cfg.Accumulation = *accumulation
		case "parallelism":
			cfg.Parallelism = *parallelism
		case "progress":
			cfg.Cluster.Progress = *progress
		case "metrics":
			cfg.MetricsAddress = *metricsAddr
		case "output":
			cfg.Output = *output
		case "time-log":
			cfg.Timing.Log = *timeLog
		case "timing-db":
			cfg.Timing.DatabaseURL = *timingDB
		case "join-secret":
			cfg.Cluster.JoinSecret = *joinSecret
		case "join-timeout":
			cfg.Cluster.JoinTimeout = *joinTimeout
		case "op-timeout":
			cfg.Cluster.OpTimeout = *opTimeout
		case "log-level":
			cfg.LogLevel = *logLevel
		}
	})

	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return err
	}
	cfg.ApplyDefaults()
	if err := validation.ValidateConfig(&cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := logging.NewJSONLogger(os.Stderr, cfg.Level())
	logging.SetDefaultLogger(logger)
	reg := metrics.NewRegistry()

	sink, closeSink, err := openSinks(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeSink()

	r, err := newRunner(cfg, logger, reg, sink)
	if err != nil {
		return err
	}
	if pg, ok := findPG(sink); ok {
		r.health.RegisterCheck("database", health.DatabaseCheck(func() error {
			pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return pg.Ping(pingCtx)
		}))
	}

	if cfg.MetricsAddress != "" {
		srv := serveHTTP(cfg.MetricsAddress, reg, r.health, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	logger.Info("starting run",
		logging.Clusters(cfg.Clusters),
		logging.Int("iterations", cfg.Iterations),
		logging.Workers(cfg.Workers()),
		logging.Rank(cfg.Cluster.Rank),
		logging.Path(cfg.Input))
	return r.Run(ctx)
}

// openSinks builds the timing sinks the configuration asks for
func openSinks(ctx context.Context, cfg config.RunConfig) (timing.Sink, func(), error) {
	var sinks timing.MultiSink
	closers := []func(){}
	if cfg.Timing.Log != "" {
		sinks = append(sinks, timing.NewFileSink(cfg.Timing.Log))
	}
	if cfg.Timing.DatabaseURL != "" {
		pg, err := timing.NewPGSink(ctx, cfg.Timing.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, pg)
		closers = append(closers, func() { pg.Close() })
	}
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}
	if len(sinks) == 0 {
		return nil, closeAll, nil
	}
	return sinks, closeAll, nil
}

func findPG(sink timing.Sink) (*timing.PGSink, bool) {
	multi, ok := sink.(timing.MultiSink)
	if !ok {
		return nil, false
	}
	for _, s := range multi {
		if pg, ok := s.(*timing.PGSink); ok {
			return pg, true
		}
	}
	return nil, false
}

func serveHTTP(addr string, reg *metrics.Registry, hc *health.HealthChecker, logger logging.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", reg.Handler())
	hc.Register(mux)

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", logging.Error(err))
		}
	}()
	logger.Info("serving metrics", logging.String("address", addr))
	return srv
}
