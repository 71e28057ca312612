package collective

import (
	"fmt"
	"time"

	"github.com/golang/snappy"
	"github.com/vmihailenco/msgpack/v5"
)

// ProtocolVersion is bumped whenever a message body changes shape
const ProtocolVersion uint16 = 1

// DefaultCompressThreshold is the body size above which bodies are compressed
const DefaultCompressThreshold = 1024

// MessageType represents the type of a collective message
type MessageType uint8

const (
	// Membership
	MsgJoin MessageType = iota + 1
	MsgJoinAck

	// Rounds
	MsgStats
	MsgCentroids

	// Shutdown
	MsgLabels
	MsgLabelsAck

	MsgError
)

func (t MessageType) String() string {
	switch t {
	case MsgJoin:
		return "join"
	case MsgJoinAck:
		return "join_ack"
	case MsgStats:
		return "stats"
	case MsgCentroids:
		return "centroids"
	case MsgLabels:
		return "labels"
	case MsgLabelsAck:
		return "labels_ack"
	case MsgError:
		return "error"
	default:
		return fmt.Sprintf("MessageType(%d)", uint8(t))
	}
}

// Message is the envelope of every collective message. Body holds the
// msgpack-encoded payload, snappy-compressed when Compressed is set.
type Message struct {
	Version    uint16      `msgpack:"v"`
	Type       MessageType `msgpack:"t"`
	RunID      string      `msgpack:"run,omitempty"`
	Round      int         `msgpack:"round"`
	Rank       int         `msgpack:"rank"`
	Timestamp  int64       `msgpack:"ts"`
	Compressed bool        `msgpack:"z,omitempty"`
	Body       []byte      `msgpack:"body,omitempty"`
}

// Codec encodes and decodes envelopes
type Codec struct {
	// CompressThreshold is the body size above which snappy is applied.
	// Zero disables compression.
	CompressThreshold int
}

// NewCodec returns a codec compressing bodies larger than threshold
func NewCodec(threshold int) Codec {
	return Codec{CompressThreshold: threshold}
}

// Encode wraps body in an envelope and returns the wire bytes
func (c Codec) Encode(msgType MessageType, runID string, round, rank int, body any) ([]byte, error) {
	msg := &Message{
		Version:   ProtocolVersion,
		Type:      msgType,
		RunID:     runID,
		Round:     round,
		Rank:      rank,
		Timestamp: time.Now().UnixNano(),
	}

	if body != nil {
		raw, err := msgpack.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s body: %w", msgType, err)
		}
		if c.CompressThreshold > 0 && len(raw) > c.CompressThreshold {
			raw = snappy.Encode(nil, raw)
			msg.Compressed = true
		}
		msg.Body = raw
	}

	data, err := msgpack.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode %s envelope: %w", msgType, err)
	}
	return data, nil
}

// Decode parses an envelope and checks its version
func (c Codec) Decode(data []byte) (*Message, error) {
	var msg Message
	if err := msgpack.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: decode envelope: %v", ErrProtocol, err)
	}
	if msg.Version != ProtocolVersion {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrVersionMismatch, msg.Version, ProtocolVersion)
	}
	return &msg, nil
}

// DecodeBody decodes the message body into v
func (m *Message) DecodeBody(v any) error {
	raw := m.Body
	if m.Compressed {
		var err error
		if raw, err = snappy.Decode(nil, m.Body); err != nil {
			return fmt.Errorf("%w: decompress %s body: %v", ErrProtocol, m.Type, err)
		}
	}
	if err := msgpack.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: decode %s body: %v", ErrProtocol, m.Type, err)
	}
	return nil
}

// AsError converts an Error message into a RemoteError, or returns nil
func (m *Message) AsError() error {
	if m.Type != MsgError {
		return nil
	}
	var body ErrorBody
	if err := m.DecodeBody(&body); err != nil {
		return err
	}
	return &RemoteError{Rank: m.Rank, Code: body.Code, Message: body.Message}
}
