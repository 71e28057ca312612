package collective

import (
	"context"
	"fmt"
	"time"

	"github.com/dd0wney/cluso-kmeans/pkg/kmeans"
	"github.com/dd0wney/cluso-kmeans/pkg/logging"
	"github.com/dd0wney/cluso-kmeans/pkg/partition"
	"github.com/google/uuid"
)

// Coordinator is rank 0 of a distributed run. It owns the reply socket, merges
// the reduction in ascending rank order and answers every held request with
// the round's centroids, which makes the broadcast a barrier.
type Coordinator struct {
	cfg     Config
	params  RunParams
	factory SocketFactory
	codec   Codec
	sock    ReplySocket
	runID   string
	secret  []byte
	opts    options
	logger  logging.Logger

	// pending holds, per rank, the Stats request awaiting its Centroids reply
	pending []Exchange
}

// NewCoordinator creates the coordinator for a run described by params
func NewCoordinator(cfg Config, params RunParams, factory SocketFactory, opts ...Option) (*Coordinator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !cfg.IsCoordinator() {
		return nil, fmt.Errorf("coordinator must run as rank 0, got rank %d", cfg.Rank)
	}

	o := buildOptions(opts)
	runID := o.runID
	if runID == "" {
		runID = uuid.NewString()
	}

	return &Coordinator{
		cfg:     cfg,
		params:  params,
		factory: factory,
		codec:   NewCodec(cfg.CompressThreshold),
		runID:   runID,
		secret:  []byte(cfg.JoinSecret),
		opts:    o,
		logger:  o.logger.With(logging.Component("coordinator"), logging.RunID(runID)),
		pending: make([]Exchange, cfg.Size),
	}, nil
}

// RunID returns the ID of the run
func (c *Coordinator) RunID() string { return c.runID }

func (c *Coordinator) Rank() int           { return 0 }
func (c *Coordinator) Size() int           { return c.cfg.Size }
func (c *Coordinator) IsCoordinator() bool { return true }

// Listen opens the reply socket. A single-worker run opens nothing.
func (c *Coordinator) Listen() error {
	if c.cfg.Size == 1 {
		return nil
	}
	sock, err := c.factory.NewReplySocket()
	if err != nil {
		return fmt.Errorf("create reply socket: %w", err)
	}
	if err := sock.SetRecvDeadline(c.cfg.OpTimeout); err != nil {
		sock.Close()
		return err
	}
	if err := sock.SetSendDeadline(c.cfg.OpTimeout); err != nil {
		sock.Close()
		return err
	}
	if err := sock.Listen(c.cfg.Address); err != nil {
		sock.Close()
		return fmt.Errorf("listen on %s: %w", c.cfg.Address, err)
	}
	c.sock = sock
	c.logger.Info("listening", logging.String("address", c.cfg.Address), logging.Workers(c.cfg.Size))
	return nil
}

// AwaitWorkers blocks until every other rank has joined. Join requests with a
// bad rank, a duplicate rank, different run parameters or an invalid token are
// rejected and waiting continues. Accepted workers are released together.
func (c *Coordinator) AwaitWorkers(ctx context.Context) error {
	if c.cfg.Size == 1 {
		return nil
	}
	if c.sock == nil {
		return fmt.Errorf("%w: coordinator is not listening", ErrClosed)
	}

	start := time.Now()
	ctx, cancel := withTimeout(ctx, c.cfg.JoinTimeout)
	defer cancel()

	joined := make([]Exchange, c.cfg.Size)
	received := 0
	for count := 0; count < c.cfg.Size-1; {
		ex, err := c.sock.Accept(ctx)
		if err != nil {
			c.abort(context.Background(), joined, "join", err)
			c.opts.record("join", start, 0, received, err)
			return fmt.Errorf("await workers (%d of %d joined): %w", count, c.cfg.Size-1, err)
		}
		received += len(ex.Body())

		req, reason := c.checkJoin(ex.Body(), joined)
		if reason != "" {
			c.logger.Warn("join rejected", logging.Rank(req.Rank), logging.String("reason", reason))
			c.replyJoin(ctx, ex, JoinAck{Accepted: false, Reason: reason})
			continue
		}
		joined[req.Rank] = ex
		count++
		c.logger.Debug("worker joined", logging.Rank(req.Rank), logging.Count(count))
	}

	sent := 0
	for r := 1; r < c.cfg.Size; r++ {
		n, err := c.replyJoin(ctx, joined[r], JoinAck{Accepted: true, RunID: c.runID})
		sent += n
		if err != nil {
			c.opts.record("join", start, sent, received, err)
			return fmt.Errorf("acknowledge rank %d: %w", r, err)
		}
	}
	c.opts.record("join", start, sent, received, nil)
	c.logger.Info("all workers joined", logging.Workers(c.cfg.Size), logging.Latency(time.Since(start)))
	return nil
}

func (c *Coordinator) checkJoin(data []byte, joined []Exchange) (JoinRequest, string) {
	req := JoinRequest{Rank: -1}
	msg, err := c.codec.Decode(data)
	if err != nil {
		return req, err.Error()
	}
	if msg.Type != MsgJoin {
		return req, fmt.Sprintf("expected join, got %s", msg.Type)
	}
	if err := msg.DecodeBody(&req); err != nil {
		return req, err.Error()
	}
	switch {
	case req.Size != c.cfg.Size:
		return req, fmt.Sprintf("run has %d workers, worker expects %d", c.cfg.Size, req.Size)
	case req.Rank < 1 || req.Rank >= c.cfg.Size:
		return req, fmt.Sprintf("rank %d out of range [1, %d)", req.Rank, c.cfg.Size)
	case joined[req.Rank] != nil:
		return req, fmt.Sprintf("rank %d already joined", req.Rank)
	}
	if diff := req.Params.Diff(c.params); diff != "" {
		return req, "parameter mismatch: " + diff
	}
	if len(c.secret) > 0 {
		if err := VerifyJoinToken(c.secret, req.Token, req.Rank, req.Size); err != nil {
			return req, err.Error()
		}
	}
	return req, ""
}

func (c *Coordinator) replyJoin(ctx context.Context, ex Exchange, ack JoinAck) (int, error) {
	data, err := c.codec.Encode(MsgJoinAck, ack.RunID, 0, 0, ack)
	if err != nil {
		return 0, err
	}
	return len(data), ex.Reply(ctx, data)
}

// ReduceStats collects one Stats contribution from every other rank for round
// and overwrites stats with the sum of all contributions, merged in ascending
// rank order. The requests stay open until BroadcastCentroids answers them.
func (c *Coordinator) ReduceStats(ctx context.Context, round int, stats *kmeans.Stats) error {
	if c.cfg.Size == 1 {
		return ctx.Err()
	}

	start := time.Now()
	contributions := make([]*kmeans.Stats, c.cfg.Size)
	contributions[0] = stats.Clone()
	received := 0

	for count := 0; count < c.cfg.Size-1; {
		ex, err := c.sock.Accept(ctx)
		if err != nil {
			c.abort(context.Background(), c.pending, "reduce", err)
			c.opts.record("reduce", start, 0, received, err)
			return err
		}
		received += len(ex.Body())

		msg, err := c.codec.Decode(ex.Body())
		if err == nil && msg.Type == MsgJoin {
			c.replyJoin(ctx, ex, JoinAck{Accepted: false, Reason: "run already started"})
			continue
		}
		if err == nil {
			err = c.expect(msg, MsgStats, "reduce", round, c.pending)
		}
		var contribution *kmeans.Stats
		if err == nil {
			var body StatsBody
			if err = msg.DecodeBody(&body); err == nil {
				contribution, err = body.Stats(c.params.K, c.params.Features)
			}
		}
		if err != nil {
			c.replyError(context.Background(), ex, "reduce", err)
			c.abort(context.Background(), c.pending, "reduce", err)
			c.opts.record("reduce", start, 0, received, err)
			return err
		}

		contributions[msg.Rank] = contribution
		c.pending[msg.Rank] = ex
		count++
	}

	stats.Reset()
	for r, s := range contributions {
		if err := stats.Merge(s); err != nil {
			err = fmt.Errorf("merge rank %d: %w", r, err)
			c.abort(context.Background(), c.pending, "reduce", err)
			return err
		}
	}
	c.opts.record("reduce", start, 0, received, nil)
	c.logger.Debug("reduced", logging.Round(round), logging.Bytes(received), logging.Latency(time.Since(start)))
	return nil
}

// BroadcastCentroids answers every held Stats request with the centroids
func (c *Coordinator) BroadcastCentroids(ctx context.Context, round int, centroids []kmeans.Point) error {
	if c.cfg.Size == 1 {
		return ctx.Err()
	}

	start := time.Now()
	data, err := c.codec.Encode(MsgCentroids, c.runID, round, 0, NewCentroidsBody(centroids))
	if err != nil {
		return err
	}

	sent := 0
	for r := 1; r < c.cfg.Size; r++ {
		ex := c.pending[r]
		if ex == nil {
			err := &ProtocolError{Op: "broadcast", Rank: r, Round: round, Reason: "no pending reduction request"}
			c.abort(context.Background(), c.pending, "broadcast", err)
			return err
		}
		c.pending[r] = nil
		if err := ex.Reply(ctx, data); err != nil {
			c.abort(context.Background(), c.pending, "broadcast", err)
			c.opts.record("broadcast", start, sent, 0, err)
			return fmt.Errorf("broadcast to rank %d: %w", r, err)
		}
		sent += len(data)
	}
	c.opts.record("broadcast", start, sent, 0, nil)
	return nil
}

// GatherLabels collects every rank's labels and places them at the layout
// offsets. Workers are acknowledged once all labels have arrived.
func (c *Coordinator) GatherLabels(ctx context.Context, labels []int, layout partition.Layout) ([]int, error) {
	if err := layout.Validate(layout.Total()); err != nil {
		return nil, err
	}
	if layout.Workers() != c.cfg.Size {
		return nil, fmt.Errorf("%w: layout has %d workers, run has %d", partition.ErrLayoutMismatch, layout.Workers(), c.cfg.Size)
	}
	if len(labels) != layout.Sizes[0] {
		return nil, fmt.Errorf("%w: coordinator has %d labels, partition holds %d", partition.ErrLayoutMismatch, len(labels), layout.Sizes[0])
	}

	out := make([]int, layout.Total())
	copy(out[layout.Offsets[0]:], labels)
	if c.cfg.Size == 1 {
		return out, ctx.Err()
	}

	start := time.Now()
	got := make([]Exchange, c.cfg.Size)
	received := 0
	for count := 0; count < c.cfg.Size-1; {
		ex, err := c.sock.Accept(ctx)
		if err != nil {
			c.abort(context.Background(), got, "gather", err)
			c.opts.record("gather", start, 0, received, err)
			return nil, err
		}
		received += len(ex.Body())

		msg, err := c.codec.Decode(ex.Body())
		if err == nil {
			err = c.expect(msg, MsgLabels, "gather", 0, got)
		}
		if err == nil {
			err = c.placeLabels(msg, layout, out)
		}
		if err != nil {
			c.replyError(context.Background(), ex, "gather", err)
			c.abort(context.Background(), got, "gather", err)
			c.opts.record("gather", start, 0, received, err)
			return nil, err
		}
		got[msg.Rank] = ex
		count++
	}

	ack, err := c.codec.Encode(MsgLabelsAck, c.runID, 0, 0, nil)
	if err != nil {
		return nil, err
	}
	for r := 1; r < c.cfg.Size; r++ {
		if err := got[r].Reply(ctx, ack); err != nil {
			c.opts.record("gather", start, 0, received, err)
			return nil, fmt.Errorf("acknowledge labels of rank %d: %w", r, err)
		}
	}
	c.opts.record("gather", start, len(ack)*(c.cfg.Size-1), received, nil)
	c.logger.Debug("gathered labels", logging.Points(len(out)), logging.Bytes(received))
	return out, nil
}

func (c *Coordinator) placeLabels(msg *Message, layout partition.Layout, out []int) error {
	var body LabelsBody
	if err := msg.DecodeBody(&body); err != nil {
		return err
	}
	p, err := layout.Partition(msg.Rank)
	if err != nil {
		return err
	}
	if body.Offset != p.Offset || len(body.Labels) != p.Count {
		return &ProtocolError{Op: "gather", Rank: msg.Rank, Reason: fmt.Sprintf(
			"sent %d labels at offset %d, partition is %d at offset %d", len(body.Labels), body.Offset, p.Count, p.Offset)}
	}
	for i, l := range body.Labels {
		if l < 0 || l >= c.params.K {
			return &ProtocolError{Op: "gather", Rank: msg.Rank, Reason: fmt.Sprintf("label %d of point %d out of range", l, p.Offset+i)}
		}
	}
	copy(out[p.Offset:], body.Labels)
	return nil
}

// expect checks the envelope of a message received during op
func (c *Coordinator) expect(msg *Message, want MessageType, op string, round int, seen []Exchange) error {
	fail := func(reason string) error {
		return &ProtocolError{Op: op, Rank: msg.Rank, Round: msg.Round, Reason: reason}
	}
	switch {
	case msg.Type != want:
		return fail(fmt.Sprintf("expected %s, got %s", want, msg.Type))
	case msg.RunID != c.runID:
		return fail(fmt.Sprintf("message for run %q", msg.RunID))
	case msg.Round != round:
		return fail(fmt.Sprintf("expected round %d", round))
	case msg.Rank < 1 || msg.Rank >= c.cfg.Size:
		return fail("unknown rank")
	case seen[msg.Rank] != nil:
		return fail("duplicate contribution")
	}
	return nil
}

func (c *Coordinator) replyError(ctx context.Context, ex Exchange, op string, cause error) {
	data, err := c.codec.Encode(MsgError, c.runID, 0, 0, ErrorBody{Code: op, Message: cause.Error()})
	if err != nil {
		return
	}
	_ = ex.Reply(ctx, data)
}

// abort releases every held request with an Error reply so that no worker
// waits on a run that has failed
func (c *Coordinator) abort(ctx context.Context, held []Exchange, op string, cause error) {
	c.logger.Error("collective failed", logging.Operation(op), logging.Error(cause))
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	for r, ex := range held {
		if ex != nil {
			c.replyError(ctx, ex, op, cause)
			held[r] = nil
		}
	}
}

// Close closes the reply socket
func (c *Coordinator) Close() error {
	if c.sock == nil {
		return nil
	}
	return c.sock.Close()
}

var _ kmeans.Communicator = (*Coordinator)(nil)
