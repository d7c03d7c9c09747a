package transport

import (
	"bytes"
	"fmt"

	"github.com/ugorji/go/codec"

	"github.com/andydunstall/spread/pkg/gossip"
)

const helloVersion uint8 = 0

// hello is exchanged by peers when a connection is established.
type hello struct {
	// NodeID is the ID of the sending node.
	NodeID gossip.PeerID `codec:"node_id"`

	// Addr is the senders advertised address.
	Addr string `codec:"addr"`
}

var msgpackHandle = &codec.MsgpackHandle{}

func (h *hello) Encode() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(helloVersion)

	enc := codec.NewEncoder(&buf, msgpackHandle)
	if err := enc.Encode(h); err != nil {
		return nil, fmt.Errorf("encode hello: %w", err)
	}
	return buf.Bytes(), nil
}

func (h *hello) Decode(b []byte) error {
	if len(b) == 0 {
		return fmt.Errorf("decode hello: empty message")
	}
	if b[0] != helloVersion {
		return fmt.Errorf("decode hello: unsupported version: %d", b[0])
	}

	dec := codec.NewDecoderBytes(b[1:], msgpackHandle)
	if err := dec.Decode(h); err != nil {
		return fmt.Errorf("decode hello: %w", err)
	}
	if h.NodeID == "" {
		return fmt.Errorf("decode hello: missing node id")
	}
	return nil
}
