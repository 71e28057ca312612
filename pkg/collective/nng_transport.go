package collective

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.nanomsg.org/mangos/v3"
	"go.nanomsg.org/mangos/v3/protocol/pub"
	"go.nanomsg.org/mangos/v3/protocol/rep"
	"go.nanomsg.org/mangos/v3/protocol/req"
	"go.nanomsg.org/mangos/v3/protocol/sub"

	// Register all transports
	_ "go.nanomsg.org/mangos/v3/transport/all"
)

// nngSocket wraps a mangos.Socket. Cancelling the context of a blocking call
// closes the socket, which is terminal for the run.
type nngSocket struct {
	sock mangos.Socket
}

func (s *nngSocket) Close() error {
	return s.sock.Close()
}

// SetRecvDeadline bounds each receive. mangos rejects non-positive deadlines,
// so zero leaves the socket blocking until the context ends.
func (s *nngSocket) SetRecvDeadline(d time.Duration) error {
	if d <= 0 {
		return nil
	}
	return s.sock.SetOption(mangos.OptionRecvDeadline, d)
}

// SetSendDeadline bounds each send. Zero means no deadline.
func (s *nngSocket) SetSendDeadline(d time.Duration) error {
	if d <= 0 {
		return nil
	}
	return s.sock.SetOption(mangos.OptionSendDeadline, d)
}

func (s *nngSocket) Listen(addr string) error {
	return s.sock.Listen(addr)
}

// Dial connects in the background so workers may start before the coordinator
func (s *nngSocket) Dial(addr string) error {
	return s.sock.DialOptions(addr, map[string]interface{}{
		mangos.OptionDialAsynch: true,
	})
}

func (s *nngSocket) Send(ctx context.Context, data []byte) error {
	stop := context.AfterFunc(ctx, func() { _ = s.sock.Close() })
	defer stop()
	return nngError(ctx, s.sock.Send(data))
}

func (s *nngSocket) Recv(ctx context.Context) ([]byte, error) {
	stop := context.AfterFunc(ctx, func() { _ = s.sock.Close() })
	defer stop()
	data, err := s.sock.Recv()
	if err != nil {
		return nil, nngError(ctx, err)
	}
	return data, nil
}

func nngError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	switch {
	case errors.Is(err, mangos.ErrRecvTimeout), errors.Is(err, mangos.ErrSendTimeout):
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	case errors.Is(err, mangos.ErrClosed):
		return fmt.Errorf("%w: %v", ErrClosed, err)
	default:
		return err
	}
}

// nngSubSocket adds subscription capability
type nngSubSocket struct {
	nngSocket
}

func (s *nngSubSocket) Subscribe(topic []byte) error {
	return s.sock.SetOption(mangos.OptionSubscribe, topic)
}

// nngPubSocket publishes without blocking; pub drops messages for slow peers
type nngPubSocket struct {
	nngSocket
}

func (s *nngPubSocket) Publish(data []byte) error {
	return s.sock.Send(data)
}

// nngReplySocket hands each request its own REP context so the coordinator can
// hold several requests open at once.
type nngReplySocket struct {
	nngSocket
	recvDeadline time.Duration
	sendDeadline time.Duration
}

func (s *nngReplySocket) SetRecvDeadline(d time.Duration) error {
	s.recvDeadline = d
	return s.nngSocket.SetRecvDeadline(d)
}

func (s *nngReplySocket) SetSendDeadline(d time.Duration) error {
	s.sendDeadline = d
	return s.nngSocket.SetSendDeadline(d)
}

func (s *nngReplySocket) Accept(ctx context.Context) (Exchange, error) {
	mctx, err := s.sock.OpenContext()
	if err != nil {
		return nil, nngError(ctx, err)
	}
	if s.recvDeadline > 0 {
		_ = mctx.SetOption(mangos.OptionRecvDeadline, s.recvDeadline)
	}
	if s.sendDeadline > 0 {
		_ = mctx.SetOption(mangos.OptionSendDeadline, s.sendDeadline)
	}

	stop := context.AfterFunc(ctx, func() { _ = mctx.Close() })
	data, err := mctx.Recv()
	stop()
	if err != nil {
		_ = mctx.Close()
		return nil, nngError(ctx, err)
	}
	return &nngExchange{ctx: mctx, body: data}, nil
}

type nngExchange struct {
	ctx  mangos.Context
	body []byte
}

func (e *nngExchange) Body() []byte {
	return e.body
}

func (e *nngExchange) Reply(ctx context.Context, data []byte) error {
	defer e.ctx.Close()
	stop := context.AfterFunc(ctx, func() { _ = e.ctx.Close() })
	defer stop()
	return nngError(ctx, e.ctx.Send(data))
}

// NNGSocketFactory creates NNG/mangos sockets. Addresses use the tcp://,
// ipc:// and inproc:// schemes.
type NNGSocketFactory struct{}

// NewNNGSocketFactory creates a new NNG socket factory
func NewNNGSocketFactory() *NNGSocketFactory {
	return &NNGSocketFactory{}
}

func (f *NNGSocketFactory) NewRequestSocket() (RequestSocket, error) {
	sock, err := req.NewSocket()
	if err != nil {
		return nil, err
	}
	// A resent request would be counted twice by the coordinator
	if err := sock.SetOption(mangos.OptionRetryTime, time.Duration(0)); err != nil {
		sock.Close()
		return nil, err
	}
	return &nngSocket{sock: sock}, nil
}

func (f *NNGSocketFactory) NewReplySocket() (ReplySocket, error) {
	sock, err := rep.NewSocket()
	if err != nil {
		return nil, err
	}
	return &nngReplySocket{nngSocket: nngSocket{sock: sock}}, nil
}

func (f *NNGSocketFactory) NewPublishSocket() (PublishSocket, error) {
	sock, err := pub.NewSocket()
	if err != nil {
		return nil, err
	}
	return &nngPubSocket{nngSocket{sock: sock}}, nil
}

func (f *NNGSocketFactory) NewSubscribeSocket() (SubscribeSocket, error) {
	sock, err := sub.NewSocket()
	if err != nil {
		return nil, err
	}
	return &nngSubSocket{nngSocket{sock: sock}}, nil
}

// Ensure NNGSocketFactory implements SocketFactory
var _ SocketFactory = (*NNGSocketFactory)(nil)
