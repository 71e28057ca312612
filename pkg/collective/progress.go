package collective

import (
	"context"
	"fmt"
	"time"

	"github.com/dd0wney/cluso-kmeans/pkg/kmeans"
	"github.com/dd0wney/cluso-kmeans/pkg/logging"
	"github.com/vmihailenco/msgpack/v5"
)

// Progress event kinds
const (
	EventStarted = "started"
	EventRound   = "round"
	EventDone    = "done"
	EventFailed  = "failed"
)

// ProgressEvent is published by the coordinator after every round
type ProgressEvent struct {
	Version    uint16      `msgpack:"v"`
	Kind       string      `msgpack:"kind"`
	RunID      string      `msgpack:"run_id"`
	Round      int         `msgpack:"round"`
	Iterations int         `msgpack:"iterations"`
	Workers    int         `msgpack:"workers"`
	Points     int         `msgpack:"points"`
	Clusters   int         `msgpack:"clusters"`
	Changed    int         `msgpack:"changed"`
	Empty      []int       `msgpack:"empty,omitempty"`
	Members    int64       `msgpack:"members"`
	RoundTime  float64     `msgpack:"round_s"`
	Elapsed    float64     `msgpack:"elapsed_s"`
	Centroids  []WirePoint `msgpack:"centroids,omitempty"`
	Error      string      `msgpack:"error,omitempty"`
	Timestamp  int64       `msgpack:"ts"`
}

// RunInfo describes the run announced on the progress stream
type RunInfo struct {
	RunID      string
	Iterations int
	Workers    int
	Points     int
	Clusters   int
}

// ProgressPublisher publishes round reports on a PUB socket. Publishing is
// best effort and never blocks the clustering loop.
type ProgressPublisher struct {
	sock    PublishSocket
	info    RunInfo
	logger  logging.Logger
	started time.Time
}

// NewProgressPublisher listens on addr and announces the run
func NewProgressPublisher(factory SocketFactory, addr string, info RunInfo, logger logging.Logger) (*ProgressPublisher, error) {
	sock, err := factory.NewPublishSocket()
	if err != nil {
		return nil, fmt.Errorf("create publish socket: %w", err)
	}
	if err := sock.Listen(addr); err != nil {
		sock.Close()
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	p := &ProgressPublisher{
		sock:    sock,
		info:    info,
		logger:  logger.With(logging.Component("progress")),
		started: time.Now(),
	}
	p.publish(p.event(EventStarted))
	return p, nil
}

func (p *ProgressPublisher) event(kind string) *ProgressEvent {
	return &ProgressEvent{
		Version:    ProtocolVersion,
		Kind:       kind,
		RunID:      p.info.RunID,
		Iterations: p.info.Iterations,
		Workers:    p.info.Workers,
		Points:     p.info.Points,
		Clusters:   p.info.Clusters,
		Elapsed:    time.Since(p.started).Seconds(),
		Timestamp:  time.Now().UnixNano(),
	}
}

// ObserveRound publishes a round report. It satisfies kmeans.Observer.
func (p *ProgressPublisher) ObserveRound(report kmeans.RoundReport) {
	e := p.event(EventRound)
	e.Round = report.Round
	e.Changed = report.Changed
	e.Empty = report.Empty
	e.Members = report.Members
	e.RoundTime = report.Timings.Total().Seconds()
	e.Centroids = NewCentroidsBody(report.Centroids).Centroids
	p.publish(e)
}

// Finish publishes the final event of the run
func (p *ProgressPublisher) Finish(runErr error) {
	e := p.event(EventDone)
	e.Round = p.info.Iterations
	if runErr != nil {
		e.Kind = EventFailed
		e.Error = runErr.Error()
	}
	p.publish(e)
}

func (p *ProgressPublisher) publish(e *ProgressEvent) {
	data, err := msgpack.Marshal(e)
	if err == nil {
		err = p.sock.Publish(data)
	}
	if err != nil {
		p.logger.Debug("progress event dropped", logging.String("kind", e.Kind), logging.Error(err))
	}
}

// Close closes the publish socket
func (p *ProgressPublisher) Close() error {
	return p.sock.Close()
}

// ProgressSubscriber receives progress events
type ProgressSubscriber struct {
	sock SubscribeSocket
}

// SubscribeProgress connects to a coordinator's progress address
func SubscribeProgress(factory SocketFactory, addr string) (*ProgressSubscriber, error) {
	sock, err := factory.NewSubscribeSocket()
	if err != nil {
		return nil, fmt.Errorf("create subscribe socket: %w", err)
	}
	if err := sock.Subscribe([]byte{}); err != nil {
		sock.Close()
		return nil, err
	}
	if err := sock.Dial(addr); err != nil {
		sock.Close()
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return &ProgressSubscriber{sock: sock}, nil
}

// Next blocks for the next event
func (s *ProgressSubscriber) Next(ctx context.Context) (*ProgressEvent, error) {
	data, err := s.sock.Recv(ctx)
	if err != nil {
		return nil, err
	}
	var e ProgressEvent
	if err := msgpack.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("%w: decode progress event: %v", ErrProtocol, err)
	}
	if e.Version != ProtocolVersion {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrVersionMismatch, e.Version, ProtocolVersion)
	}
	return &e, nil
}

// Close closes the subscribe socket
func (s *ProgressSubscriber) Close() error {
	return s.sock.Close()
}
