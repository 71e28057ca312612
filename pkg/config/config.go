// Package config loads the configuration of one clustering process.
//
// Values come from an optional YAML file, then command-line flags, then the
// launch environment (rank, size and coordinator address), in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dd0wney/cluso-kmeans/pkg/blobstore"
	"github.com/dd0wney/cluso-kmeans/pkg/collective"
	"github.com/dd0wney/cluso-kmeans/pkg/kmeans"
	"github.com/dd0wney/cluso-kmeans/pkg/logging"
	"github.com/dd0wney/cluso-kmeans/pkg/timing"
	"github.com/dd0wney/cluso-kmeans/pkg/validation"
)

// Environment variables read by ApplyEnv
const (
	EnvRank        = "KMEANS_RANK"
	EnvSize        = "KMEANS_SIZE"
	EnvCoordinator = "KMEANS_COORDINATOR"
	EnvLogLevel    = "LOG_LEVEL"
)

// Default output names, one per execution mode
const (
	SerialResults   = "serial_results.txt"
	ParallelResults = "parallel_results.txt"
	DefaultTimeLog  = "time.txt"
)

// RunConfig is the complete configuration of one worker process
type RunConfig struct {
	Clusters     int    `yaml:"clusters"`
	Iterations   int    `yaml:"iterations"`
	Input        string `yaml:"input" validate:"required,location"`
	Output       string `yaml:"output" validate:"omitempty,location"`
	Accumulation string `yaml:"accumulation" validate:"omitempty,oneof=float truncate"`
	Parallelism  int    `yaml:"parallelism" validate:"gte=0"` // assigner goroutines, 0 = sequential

	Cluster ClusterConfig `yaml:"cluster"`
	Timing  TimingConfig  `yaml:"timing"`
	S3      S3Config      `yaml:"s3"`

	MetricsAddress string `yaml:"metrics_address"` // host:port for /metrics and /health, empty = off
	LogLevel       string `yaml:"log_level" validate:"omitempty,oneof=debug info warn error"`
}

// ClusterConfig describes the worker topology and the collective transport
type ClusterConfig struct {
	Rank              int           `yaml:"rank" validate:"gte=0"`
	Size              int           `yaml:"size" validate:"gte=0"`
	Local             int           `yaml:"local" validate:"gte=0"` // in-process workers, overrides Size
	Transport         string        `yaml:"transport" validate:"omitempty,oneof=nng zmq"`
	Coordinator       string        `yaml:"coordinator" validate:"omitempty,address"`
	Progress          string        `yaml:"progress" validate:"omitempty,address"`
	JoinSecret        string        `yaml:"join_secret"`
	JoinTimeout       time.Duration `yaml:"join_timeout"`
	OpTimeout         time.Duration `yaml:"op_timeout"`
	CompressThreshold int           `yaml:"compress_threshold" validate:"gte=0"`
}

// TimingConfig selects where run times are recorded
type TimingConfig struct {
	Log         string `yaml:"log"`          // append-only timing log, empty = off
	DatabaseURL string `yaml:"database_url"` // optional PostgreSQL sink
}

// S3Config holds the object store settings used for s3:// locations
type S3Config struct {
	Region       string `yaml:"region"`
	Endpoint     string `yaml:"endpoint"`
	AccessKey    string `yaml:"access_key"`
	SecretKey    string `yaml:"secret_key"`
	UsePathStyle bool   `yaml:"use_path_style"`
}

// DefaultConfig returns default configuration
func DefaultConfig() RunConfig {
	cc := collective.DefaultConfig()
	return RunConfig{
		Accumulation: kmeans.AccumulateFloat.String(),
		Cluster: ClusterConfig{
			Size:              1,
			Transport:         cc.Transport,
			Coordinator:       cc.Address,
			CompressThreshold: cc.CompressThreshold,
		},
		Timing:   TimingConfig{Log: DefaultTimeLog},
		LogLevel: "info",
	}
}

// Load reads a YAML configuration file on top of the defaults
func Load(path string) (RunConfig, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyDefaults applies default values to zero-valued fields
func (c *RunConfig) ApplyDefaults() {
	defaults := DefaultConfig()

	c.Accumulation = validation.DefaultOr(c.Accumulation, defaults.Accumulation)
	c.LogLevel = validation.DefaultOr(c.LogLevel, defaults.LogLevel)
	c.Cluster.Size = validation.DefaultOrInt(c.Cluster.Size, defaults.Cluster.Size)
	c.Cluster.Transport = validation.DefaultOr(c.Cluster.Transport, defaults.Cluster.Transport)
	c.Cluster.Coordinator = validation.DefaultOr(c.Cluster.Coordinator, defaults.Cluster.Coordinator)
	c.Cluster.CompressThreshold = validation.DefaultOrInt(c.Cluster.CompressThreshold, defaults.Cluster.CompressThreshold)
	if c.Output == "" {
		c.Output = c.ResultsName()
	}
}

// ApplyEnv overrides the topology from the launch environment. Malformed
// numbers are errors rather than silently ignored.
func (c *RunConfig) ApplyEnv(getenv func(string) string) error {
	var errs []error
	if v := getenv(EnvRank); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", EnvRank, err))
		}
		c.Cluster.Rank = n
	}
	if v := getenv(EnvSize); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", EnvSize, err))
		}
		c.Cluster.Size = n
	}
	if v := getenv(EnvCoordinator); v != "" {
		c.Cluster.Coordinator = v
	}
	if v := getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	return errors.Join(errs...)
}

// Workers returns the number of workers in the run
func (c *RunConfig) Workers() int {
	if c.Cluster.Local > 0 {
		return c.Cluster.Local
	}
	return c.Cluster.Size
}

// Mode returns the execution mode recorded in the timing log
func (c *RunConfig) Mode() timing.Mode {
	return timing.ModeFor(c.Workers())
}

// ResultsName returns the default results file for the execution mode
func (c *RunConfig) ResultsName() string {
	if c.Workers() > 1 {
		return ParallelResults
	}
	return SerialResults
}

// Validate validates the run configuration
func (c *RunConfig) Validate() error {
	v := validation.NewConfigValidator("RunConfig")

	v.Positive("Clusters", c.Clusters).
		MinInt("Iterations", c.Iterations, 0).
		Struct(c).
		RangeInt("Cluster.Size", c.Cluster.Size, 1, collective.MaxWorkers).
		MaxInt("Cluster.Local", c.Cluster.Local, collective.MaxWorkers).
		MinDuration("Cluster.JoinTimeout", c.Cluster.JoinTimeout, 0).
		MinDuration("Cluster.OpTimeout", c.Cluster.OpTimeout, 0)

	// Topology rules below assume the sizes above are sane
	if v.HasErrors() {
		return v.Validate()
	}

	// A local run hosts every rank itself
	v.When(c.Cluster.Local == 0, func(cv *validation.ConfigValidator) {
		cv.MaxInt("Cluster.Rank", c.Cluster.Rank, c.Cluster.Size-1)
	})
	v.When(c.Cluster.Local > 0, func(cv *validation.ConfigValidator) {
		cv.MaxInt("Cluster.Rank", c.Cluster.Rank, 0)
	})

	v.When(c.Workers() > 1 && c.Cluster.Local == 0, func(cv *validation.ConfigValidator) {
		cv.Required("Cluster.Coordinator", c.Cluster.Coordinator)
	})

	v.When(c.Cluster.Progress != "" && c.Workers() == 1, func(cv *validation.ConfigValidator) {
		cv.Custom("Cluster.Progress", func() error {
			return errors.New("progress stream needs a distributed run")
		})
	})

	return v.Validate()
}

// KMeans returns the clustering parameters for a dataset with f features
func (c *RunConfig) KMeans(f int) (kmeans.Config, error) {
	mode, err := kmeans.ParseAccumulationMode(c.Accumulation)
	if err != nil {
		return kmeans.Config{}, err
	}
	return kmeans.Config{
		K:          c.Clusters,
		Features:   f,
		Iterations: c.Iterations,
		Mode:       mode,
	}, nil
}

// Collective returns the transport configuration of rank
func (c *RunConfig) Collective(rank int) collective.Config {
	cc := collective.Config{
		Transport:         c.Cluster.Transport,
		Address:           c.Cluster.Coordinator,
		ProgressAddress:   c.Cluster.Progress,
		Rank:              rank,
		Size:              c.Workers(),
		JoinTimeout:       c.Cluster.JoinTimeout,
		OpTimeout:         c.Cluster.OpTimeout,
		CompressThreshold: c.Cluster.CompressThreshold,
		JoinSecret:        c.Cluster.JoinSecret,
	}
	cc.ApplyDefaults()
	return cc
}

// S3Options returns the object store options
func (c *RunConfig) S3Options() blobstore.S3Options {
	return blobstore.S3Options{
		Region:       c.S3.Region,
		Endpoint:     c.S3.Endpoint,
		AccessKey:    c.S3.AccessKey,
		SecretKey:    c.S3.SecretKey,
		UsePathStyle: c.S3.UsePathStyle,
	}
}

// Level returns the configured log level
func (c *RunConfig) Level() logging.Level {
	return logging.ParseLevel(c.LogLevel)
}
