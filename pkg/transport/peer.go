package transport

import (
	"time"

	"go.uber.org/atomic"

	"github.com/andydunstall/spread/pkg/gossip"
	"github.com/andydunstall/spread/pkg/rpc"
)

// PeerStatus contains the status of a connected peer.
type PeerStatus struct {
	ID          gossip.PeerID `json:"id"`
	Addr        string        `json:"addr"`
	Outbound    bool          `json:"outbound"`
	ConnectedAt time.Time     `json:"connected_at"`
}

// peer is a connection to a remote node.
type peer struct {
	// id is the remote node ID, which is set once the handshake completes.
	id *atomic.String

	// addr is the remote nodes advertised address.
	addr *atomic.String

	// outbound is true if the local node dialed the connection.
	outbound bool

	connectedAt time.Time

	stream *rpc.Stream
}

func newPeer(outbound bool) *peer {
	return &peer{
		id:       atomic.NewString(""),
		addr:     atomic.NewString(""),
		outbound: outbound,
	}
}

func (p *peer) ID() gossip.PeerID {
	return gossip.PeerID(p.id.Load())
}

func (p *peer) Status() PeerStatus {
	return PeerStatus{
		ID:          p.ID(),
		Addr:        p.addr.Load(),
		Outbound:    p.outbound,
		ConnectedAt: p.connectedAt,
	}
}

// preferred returns true if the connection should be kept when there are
// multiple connections to the same peer.
//
// The connection dialed by the node with the lowest ID is kept, so both
// nodes keep the same connection.
func (p *peer) preferred(localID gossip.PeerID) bool {
	if p.outbound {
		return localID < p.ID()
	}
	return p.ID() < localID
}

func (p *peer) direction() string {
	if p.outbound {
		return "outbound"
	}
	return "inbound"
}
