package collective

import (
	"context"
	"time"

	"github.com/dd0wney/cluso-kmeans/pkg/validation"
)

// MaxWorkers bounds the size of a run
const MaxWorkers = 4096

// Config holds the collective transport configuration of one worker
type Config struct {
	Transport       string        // nng (default) or zmq
	Address         string        // coordinator request/reply address, e.g. tcp://127.0.0.1:7070
	ProgressAddress string        // optional coordinator PUB address for progress events
	Rank            int           // this worker's rank; 0 is the coordinator
	Size            int           // number of workers in the run
	JoinTimeout     time.Duration // how long membership may take (0 = wait forever)
	OpTimeout       time.Duration // per send/receive deadline (0 = wait forever)

	CompressThreshold int           // bodies above this many bytes are snappy-compressed
	JoinSecret        string        // HS256 secret for join tokens (empty = no auth)
	TokenTTL          time.Duration // lifetime of issued join tokens
}

// DefaultConfig returns default configuration. Timeouts default to zero: a
// missing worker stalls the run until it is cancelled.
func DefaultConfig() Config {
	return Config{
		Transport:         TransportNNG,
		Address:           "tcp://127.0.0.1:7070",
		Size:              1,
		CompressThreshold: DefaultCompressThreshold,
		TokenTTL:          10 * time.Minute,
	}
}

// Validate validates the collective configuration
func (c *Config) Validate() error {
	v := validation.NewConfigValidator("CollectiveConfig")

	v.RangeInt("Size", c.Size, 1, MaxWorkers).
		RangeInt("Rank", c.Rank, 0, max(c.Size-1, 0)).
		OneOf("Transport", c.Transport, []string{TransportNNG, TransportZMQ}).
		NonNegative("CompressThreshold", c.CompressThreshold).
		MinDuration("JoinTimeout", c.JoinTimeout, 0).
		MinDuration("OpTimeout", c.OpTimeout, 0)

	v.When(c.Size > 1, func(cv *validation.ConfigValidator) {
		cv.Required("Address", c.Address).Address("Address", c.Address)
	})

	v.When(c.ProgressAddress != "", func(cv *validation.ConfigValidator) {
		cv.Address("ProgressAddress", c.ProgressAddress)
	})

	v.When(c.JoinSecret != "", func(cv *validation.ConfigValidator) {
		cv.MinDuration("TokenTTL", c.TokenTTL, time.Second)
	})

	return v.Validate()
}

// ApplyDefaults applies default values to zero-valued fields
func (c *Config) ApplyDefaults() {
	defaults := DefaultConfig()

	c.Transport = validation.DefaultOr(c.Transport, defaults.Transport)
	c.Address = validation.DefaultOr(c.Address, defaults.Address)
	c.Size = validation.DefaultOrInt(c.Size, defaults.Size)
	c.CompressThreshold = validation.DefaultOrInt(c.CompressThreshold, defaults.CompressThreshold)
	c.TokenTTL = validation.DefaultOrDuration(c.TokenTTL, defaults.TokenTTL)
}

// IsCoordinator reports whether the configured rank is the coordinator
func (c *Config) IsCoordinator() bool {
	return c.Rank == 0
}

// LocalAddress returns the in-process address used by a run with the given ID
func LocalAddress(runID string) string {
	return "inproc://kmeans-" + runID
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
