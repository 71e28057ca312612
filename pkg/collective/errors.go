package collective

import (
	"errors"
	"fmt"
)

// Transport errors
var (
	ErrClosed               = errors.New("socket closed")
	ErrTimeout              = errors.New("collective operation timed out")
	ErrUnsupportedTransport = errors.New("unsupported transport")
)

// Membership errors
var (
	ErrJoinRejected = errors.New("join rejected")
	ErrInvalidToken = errors.New("invalid join token")
	ErrNotJoined    = errors.New("worker has not joined a run")
)

// Protocol errors
var (
	ErrProtocol        = errors.New("protocol error")
	ErrVersionMismatch = errors.New("protocol version mismatch")
)

// ProtocolError describes a message that violates the exchange sequence
type ProtocolError struct {
	Op     string
	Rank   int
	Round  int
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s: rank %d round %d: %s", e.Op, e.Rank, e.Round, e.Reason)
}

// Unwrap lets errors.Is match ErrProtocol
func (e *ProtocolError) Unwrap() error {
	return ErrProtocol
}

// RemoteError carries an Error message sent by the peer
type RemoteError struct {
	Rank    int
	Code    string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("rank %d reported %s: %s", e.Rank, e.Code, e.Message)
}
