package collective

import (
	"context"
	"fmt"
	"io"
	"time"
)

// Socket is the part shared by every socket kind. A zero deadline waits forever.
type Socket interface {
	io.Closer
	SetRecvDeadline(d time.Duration) error
	SetSendDeadline(d time.Duration) error
}

// RequestSocket is the worker end of request/reply. Every Send must be
// followed by exactly one Recv.
type RequestSocket interface {
	Socket
	Dial(addr string) error
	Send(ctx context.Context, data []byte) error
	Recv(ctx context.Context) ([]byte, error)
}

// Exchange is one received request awaiting its reply
type Exchange interface {
	Body() []byte
	Reply(ctx context.Context, data []byte) error
}

// ReplySocket is the coordinator end of request/reply. Requests can be held
// and answered later, which is how the coordinator keeps workers waiting at a
// barrier.
type ReplySocket interface {
	Socket
	Listen(addr string) error
	Accept(ctx context.Context) (Exchange, error)
}

// PublishSocket fans progress events out to subscribers without blocking
type PublishSocket interface {
	Socket
	Listen(addr string) error
	Publish(data []byte) error
}

// SubscribeSocket receives published events
type SubscribeSocket interface {
	Socket
	Dial(addr string) error
	Subscribe(topic []byte) error
	Recv(ctx context.Context) ([]byte, error)
}

// SocketFactory creates sockets for one transport implementation
type SocketFactory interface {
	NewRequestSocket() (RequestSocket, error)
	NewReplySocket() (ReplySocket, error)
	NewPublishSocket() (PublishSocket, error)
	NewSubscribeSocket() (SubscribeSocket, error)
}

// Transport names
const (
	TransportNNG = "nng"
	TransportZMQ = "zmq"
)

// NewSocketFactory returns the factory for the named transport. ZeroMQ is only
// available in binaries built with the zmq tag.
func NewSocketFactory(transport string) (SocketFactory, error) {
	switch transport {
	case "", TransportNNG:
		return NewNNGSocketFactory(), nil
	case TransportZMQ:
		return newZMQSocketFactory()
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedTransport, transport)
	}
}
