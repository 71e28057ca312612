//go:build !zmq
// +build !zmq

package collective

import "fmt"

func newZMQSocketFactory() (SocketFactory, error) {
	return nil, fmt.Errorf("%w: zmq (rebuild with -tags zmq)", ErrUnsupportedTransport)
}
