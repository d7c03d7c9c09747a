package gossip

import (
	"bytes"
	"fmt"

	"github.com/ugorji/go/codec"
)

type messageType uint8

const (
	messageTypePullRequest messageType = iota + 1
	messageTypePullResponse
	messageTypePush
)

func (t messageType) String() string {
	switch t {
	case messageTypePullRequest:
		return "pull-request"
	case messageTypePullResponse:
		return "pull-response"
	case messageTypePush:
		return "push"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

const (
	// supportedVersion is the encoding version. Messages with a different
	// version are rejected.
	supportedVersion uint8 = 0

	headerSize = 2

	// MaxMessageOverhead is an upper bound on the bytes a pull response or
	// push adds around its records, including the header, msgpack framing,
	// protocol prefix and transport framing.
	MaxMessageOverhead = 128
)

// encodedRecordSize returns an upper bound on the encoded size of a record
// of n bytes within a message.
func encodedRecordSize(n int) int {
	if n < 1<<16 {
		return n + 3
	}
	return n + 5
}

// pullRequest requests the records missing from the senders filter.
type pullRequest struct {
	Filter []byte `codec:"filter"`
	Salt   []byte `codec:"salt"`
}

// pullResponse contains serialized records missing from the requesters
// filter.
type pullResponse struct {
	Records [][]byte `codec:"records"`
}

// push contains serialized records pushed to the receiver.
type push struct {
	Records [][]byte `codec:"records"`
}

var msgpackHandle = &codec.MsgpackHandle{}

// encodeMessage encodes the message with a 2 byte header containing the
// message type and version.
func encodeMessage(t messageType, msg any) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(uint8(t))
	buf.WriteByte(supportedVersion)

	enc := codec.NewEncoder(&buf, msgpackHandle)
	if err := enc.Encode(msg); err != nil {
		return nil, fmt.Errorf("encode %s: %w", t, err)
	}
	return buf.Bytes(), nil
}

// decodeMessage decodes the message, checking the header matches the
// expected type.
func decodeMessage(b []byte, t messageType, msg any) error {
	if len(b) < headerSize {
		return fmt.Errorf("decode %s: message too small", t)
	}
	if messageType(b[0]) != t {
		return fmt.Errorf("decode %s: unexpected type: %s", t, messageType(b[0]))
	}
	if b[1] != supportedVersion {
		return fmt.Errorf("decode %s: unsupported version: %d", t, b[1])
	}

	dec := codec.NewDecoderBytes(b[headerSize:], msgpackHandle)
	if err := dec.Decode(msg); err != nil {
		return fmt.Errorf("decode %s: %w", t, err)
	}
	return nil
}
