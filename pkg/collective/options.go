package collective

import (
	"time"

	"github.com/dd0wney/cluso-kmeans/pkg/logging"
	"github.com/dd0wney/cluso-kmeans/pkg/metrics"
)

type options struct {
	logger  logging.Logger
	metrics *metrics.Registry
	runID   string
}

// Option configures a Coordinator or Worker
type Option func(*options)

// WithLogger sets the logger
func WithLogger(logger logging.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMetrics records collective durations and payload sizes in reg
func WithMetrics(reg *metrics.Registry) Option {
	return func(o *options) { o.metrics = reg }
}

// WithRunID fixes the run ID the coordinator hands out instead of generating one
func WithRunID(id string) Option {
	return func(o *options) { o.runID = id }
}

func buildOptions(opts []Option) options {
	o := options{logger: logging.NewNopLogger()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o *options) record(op string, start time.Time, sent, received int, err error) {
	if o.metrics != nil {
		o.metrics.RecordCollective(op, time.Since(start), sent, received, err)
	}
}
