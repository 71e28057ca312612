//go:build zmq
// +build zmq

package collective

import (
	"context"
	"fmt"
	"syscall"
	"time"

	zmq "github.com/pebbe/zmq4"
)

// zmq sockets are not safe for use from several goroutines, so blocking calls
// poll with a short receive timeout and check the context between polls
// instead of closing the socket from another goroutine.
const zmqPollInterval = 100 * time.Millisecond

type zmqSocket struct {
	sock         *zmq.Socket
	recvDeadline time.Duration
	sendDeadline time.Duration
}

func newZMQSocket(t zmq.Type) (*zmqSocket, error) {
	sock, err := zmq.NewSocket(t)
	if err != nil {
		return nil, err
	}
	if err := sock.SetLinger(0); err != nil {
		sock.Close()
		return nil, err
	}
	if err := sock.SetRcvtimeo(zmqPollInterval); err != nil {
		sock.Close()
		return nil, err
	}
	if err := sock.SetSndtimeo(zmqPollInterval); err != nil {
		sock.Close()
		return nil, err
	}
	return &zmqSocket{sock: sock}, nil
}

func (s *zmqSocket) Close() error {
	return s.sock.Close()
}

func (s *zmqSocket) SetRecvDeadline(d time.Duration) error {
	s.recvDeadline = d
	return nil
}

func (s *zmqSocket) SetSendDeadline(d time.Duration) error {
	s.sendDeadline = d
	return nil
}

func (s *zmqSocket) Listen(addr string) error {
	return s.sock.Bind(addr)
}

func (s *zmqSocket) Dial(addr string) error {
	return s.sock.Connect(addr)
}

func isAgain(err error) bool {
	return zmq.AsErrno(err) == zmq.Errno(syscall.EAGAIN)
}

// poll retries op until it stops returning EAGAIN, the context ends or the
// deadline passes
func poll(ctx context.Context, deadline time.Duration, op func() error) error {
	var expire time.Time
	if deadline > 0 {
		expire = time.Now().Add(deadline)
	}
	for {
		err := op()
		if err == nil || !isAgain(err) {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if !expire.IsZero() && time.Now().After(expire) {
			return fmt.Errorf("%w after %v", ErrTimeout, deadline)
		}
	}
}

func (s *zmqSocket) Send(ctx context.Context, data []byte) error {
	return poll(ctx, s.sendDeadline, func() error {
		_, err := s.sock.SendBytes(data, 0)
		return err
	})
}

func (s *zmqSocket) Recv(ctx context.Context) ([]byte, error) {
	var data []byte
	err := poll(ctx, s.recvDeadline, func() error {
		var err error
		data, err = s.sock.RecvBytes(0)
		return err
	})
	return data, err
}

func (s *zmqSocket) Subscribe(topic []byte) error {
	return s.sock.SetSubscribe(string(topic))
}

func (s *zmqSocket) Publish(data []byte) error {
	_, err := s.sock.SendBytes(data, zmq.DONTWAIT)
	if isAgain(err) {
		return nil
	}
	return err
}

// zmqRouterSocket answers REQ peers through a ROUTER socket. Frames are
// [identity, empty delimiter, payload].
type zmqRouterSocket struct {
	*zmqSocket
}

func (s *zmqRouterSocket) Accept(ctx context.Context) (Exchange, error) {
	var frames [][]byte
	err := poll(ctx, s.recvDeadline, func() error {
		var err error
		frames, err = s.sock.RecvMessageBytes(0)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(frames) != 3 || len(frames[1]) != 0 {
		return nil, &ProtocolError{Op: "accept", Rank: -1, Reason: fmt.Sprintf("malformed envelope with %d frames", len(frames))}
	}
	return &zmqExchange{sock: s.zmqSocket, identity: frames[0], body: frames[2]}, nil
}

type zmqExchange struct {
	sock     *zmqSocket
	identity []byte
	body     []byte
}

func (e *zmqExchange) Body() []byte {
	return e.body
}

func (e *zmqExchange) Reply(ctx context.Context, data []byte) error {
	return poll(ctx, e.sock.sendDeadline, func() error {
		_, err := e.sock.sock.SendMessage(e.identity, "", data)
		return err
	})
}

// ZMQSocketFactory creates ZeroMQ sockets
type ZMQSocketFactory struct{}

func newZMQSocketFactory() (SocketFactory, error) {
	return &ZMQSocketFactory{}, nil
}

func (f *ZMQSocketFactory) NewRequestSocket() (RequestSocket, error) {
	return newZMQSocket(zmq.REQ)
}

func (f *ZMQSocketFactory) NewReplySocket() (ReplySocket, error) {
	s, err := newZMQSocket(zmq.ROUTER)
	if err != nil {
		return nil, err
	}
	return &zmqRouterSocket{s}, nil
}

func (f *ZMQSocketFactory) NewPublishSocket() (PublishSocket, error) {
	return newZMQSocket(zmq.PUB)
}

func (f *ZMQSocketFactory) NewSubscribeSocket() (SubscribeSocket, error) {
	return newZMQSocket(zmq.SUB)
}

var _ SocketFactory = (*ZMQSocketFactory)(nil)
