package collective

import (
	"context"
	"fmt"
	"time"

	"github.com/dd0wney/cluso-kmeans/pkg/kmeans"
	"github.com/dd0wney/cluso-kmeans/pkg/logging"
	"github.com/dd0wney/cluso-kmeans/pkg/partition"
)

// Worker is a non-coordinator rank. Its reduction request and the broadcast
// reply form one request/reply exchange with the coordinator.
type Worker struct {
	cfg    Config
	params RunParams
	codec  Codec
	sock   RequestSocket
	runID  string
	opts   options
	logger logging.Logger

	// awaiting is set between sending Stats and receiving Centroids
	awaiting bool
	sentAt   time.Time
}

// Dial connects to the coordinator and joins the run. It returns once the
// coordinator has accepted every worker.
func Dial(ctx context.Context, cfg Config, params RunParams, factory SocketFactory, opts ...Option) (*Worker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.IsCoordinator() {
		return nil, fmt.Errorf("rank 0 is the coordinator and cannot dial")
	}

	o := buildOptions(opts)
	w := &Worker{
		cfg:    cfg,
		params: params,
		codec:  NewCodec(cfg.CompressThreshold),
		opts:   o,
		logger: o.logger.With(logging.Component("worker"), logging.Rank(cfg.Rank)),
	}

	sock, err := factory.NewRequestSocket()
	if err != nil {
		return nil, fmt.Errorf("create request socket: %w", err)
	}
	if err := sock.SetRecvDeadline(cfg.OpTimeout); err != nil {
		sock.Close()
		return nil, err
	}
	if err := sock.SetSendDeadline(cfg.OpTimeout); err != nil {
		sock.Close()
		return nil, err
	}
	if err := sock.Dial(cfg.Address); err != nil {
		sock.Close()
		return nil, fmt.Errorf("dial %s: %w", cfg.Address, err)
	}
	w.sock = sock

	if err := w.join(ctx); err != nil {
		sock.Close()
		return nil, err
	}
	return w, nil
}

func (w *Worker) join(ctx context.Context) error {
	start := time.Now()
	ctx, cancel := withTimeout(ctx, w.cfg.JoinTimeout)
	defer cancel()

	req := JoinRequest{Rank: w.cfg.Rank, Size: w.cfg.Size, Params: w.params}
	if w.cfg.JoinSecret != "" {
		token, err := IssueJoinToken([]byte(w.cfg.JoinSecret), w.cfg.Rank, w.cfg.Size, w.cfg.TokenTTL)
		if err != nil {
			return err
		}
		req.Token = token
	}

	data, err := w.codec.Encode(MsgJoin, "", 0, w.cfg.Rank, req)
	if err != nil {
		return err
	}
	reply, err := w.roundTrip(ctx, data)
	w.opts.record("join", start, len(data), len(reply), err)
	if err != nil {
		return fmt.Errorf("join: %w", err)
	}

	msg, err := w.codec.Decode(reply)
	if err != nil {
		return err
	}
	if remote := msg.AsError(); remote != nil {
		return remote
	}
	if msg.Type != MsgJoinAck {
		return &ProtocolError{Op: "join", Rank: w.cfg.Rank, Reason: fmt.Sprintf("expected join_ack, got %s", msg.Type)}
	}
	var ack JoinAck
	if err := msg.DecodeBody(&ack); err != nil {
		return err
	}
	if !ack.Accepted {
		return fmt.Errorf("%w: %s", ErrJoinRejected, ack.Reason)
	}

	w.runID = ack.RunID
	w.logger = w.logger.With(logging.RunID(ack.RunID))
	w.logger.Info("joined run", logging.Workers(w.cfg.Size), logging.Latency(time.Since(start)))
	return nil
}

func (w *Worker) roundTrip(ctx context.Context, data []byte) ([]byte, error) {
	if err := w.sock.Send(ctx, data); err != nil {
		return nil, err
	}
	return w.sock.Recv(ctx)
}

// RunID returns the ID handed out by the coordinator
func (w *Worker) RunID() string { return w.runID }

func (w *Worker) Rank() int           { return w.cfg.Rank }
func (w *Worker) Size() int           { return w.cfg.Size }
func (w *Worker) IsCoordinator() bool { return false }

// ReduceStats sends this worker's contribution. stats is left unchanged.
func (w *Worker) ReduceStats(ctx context.Context, round int, stats *kmeans.Stats) error {
	if w.runID == "" {
		return ErrNotJoined
	}
	if w.awaiting {
		return &ProtocolError{Op: "reduce", Rank: w.cfg.Rank, Round: round, Reason: "previous broadcast not received"}
	}

	start := time.Now()
	data, err := w.codec.Encode(MsgStats, w.runID, round, w.cfg.Rank, NewStatsBody(stats))
	if err != nil {
		return err
	}
	if err := w.sock.Send(ctx, data); err != nil {
		w.opts.record("reduce", start, 0, 0, err)
		return fmt.Errorf("send stats: %w", err)
	}
	w.awaiting = true
	w.sentAt = start
	w.opts.record("reduce", start, len(data), 0, nil)
	return nil
}

// BroadcastCentroids waits for the coordinator's centroids for round and copies
// them into centroids
func (w *Worker) BroadcastCentroids(ctx context.Context, round int, centroids []kmeans.Point) error {
	if !w.awaiting {
		return &ProtocolError{Op: "broadcast", Rank: w.cfg.Rank, Round: round, Reason: "no reduction request outstanding"}
	}

	start := time.Now()
	data, err := w.sock.Recv(ctx)
	w.awaiting = false
	if err != nil {
		w.opts.record("broadcast", start, 0, 0, err)
		return fmt.Errorf("receive centroids: %w", err)
	}

	err = w.applyCentroids(data, round, centroids)
	w.opts.record("broadcast", start, 0, len(data), err)
	if err == nil {
		w.logger.Debug("round synchronized", logging.Round(round), logging.Latency(time.Since(w.sentAt)))
	}
	return err
}

func (w *Worker) applyCentroids(data []byte, round int, centroids []kmeans.Point) error {
	msg, err := w.codec.Decode(data)
	if err != nil {
		return err
	}
	if remote := msg.AsError(); remote != nil {
		return remote
	}
	switch {
	case msg.Type != MsgCentroids:
		return &ProtocolError{Op: "broadcast", Rank: w.cfg.Rank, Round: round, Reason: fmt.Sprintf("expected centroids, got %s", msg.Type)}
	case msg.Round != round:
		return &ProtocolError{Op: "broadcast", Rank: w.cfg.Rank, Round: round, Reason: fmt.Sprintf("centroids for round %d", msg.Round)}
	case msg.RunID != w.runID:
		return &ProtocolError{Op: "broadcast", Rank: w.cfg.Rank, Round: round, Reason: fmt.Sprintf("centroids for run %q", msg.RunID)}
	}

	var body CentroidsBody
	if err := msg.DecodeBody(&body); err != nil {
		return err
	}
	return body.CopyInto(centroids)
}

// GatherLabels sends this worker's labels and waits for the acknowledgement.
// Only the coordinator receives the gathered labels, so it returns nil.
func (w *Worker) GatherLabels(ctx context.Context, labels []int, layout partition.Layout) ([]int, error) {
	if w.runID == "" {
		return nil, ErrNotJoined
	}
	p, err := layout.Partition(w.cfg.Rank)
	if err != nil {
		return nil, err
	}
	if len(labels) != p.Count {
		return nil, fmt.Errorf("%w: rank %d has %d labels, partition holds %d", partition.ErrLayoutMismatch, w.cfg.Rank, len(labels), p.Count)
	}

	start := time.Now()
	data, err := w.codec.Encode(MsgLabels, w.runID, 0, w.cfg.Rank, LabelsBody{Offset: p.Offset, Labels: labels})
	if err != nil {
		return nil, err
	}
	reply, err := w.roundTrip(ctx, data)
	w.opts.record("gather", start, len(data), len(reply), err)
	if err != nil {
		return nil, fmt.Errorf("send labels: %w", err)
	}

	msg, err := w.codec.Decode(reply)
	if err != nil {
		return nil, err
	}
	if remote := msg.AsError(); remote != nil {
		return nil, remote
	}
	if msg.Type != MsgLabelsAck {
		return nil, &ProtocolError{Op: "gather", Rank: w.cfg.Rank, Reason: fmt.Sprintf("expected labels_ack, got %s", msg.Type)}
	}
	return nil, nil
}

// Close closes the request socket
func (w *Worker) Close() error {
	return w.sock.Close()
}

var _ kmeans.Communicator = (*Worker)(nil)
