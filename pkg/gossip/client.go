package gossip

import (
	"context"
)

// PeerID identifies a peer. Its format is defined by the transport.
type PeerID string

// Client sends messages to peers.
//
// Failures only apply to the individual call, and the client remains usable
// after an error.
type Client interface {
	// RequestAny sends the request to a peer chosen by the client.
	//
	// The returned channel receives the peers response at most once and is
	// then closed. If no response is received before the clients request
	// timeout, or the context is cancelled, the channel is closed without a
	// value.
	//
	// Returns an error wrapping ErrTransport if the request could not be
	// sent, such as there being no peers.
	RequestAny(ctx context.Context, request []byte) (<-chan []byte, error)

	// Request sends a one-way request to a peer. Any response must be
	// correlated by the caller.
	Request(ctx context.Context, request []byte) error

	// Gossip sends the message to a random sample of peers.
	Gossip(ctx context.Context, msg []byte) error

	// GossipSpecific sends the message to the peers selected by the
	// clients configured selector.
	GossipSpecific(ctx context.Context, msg []byte) error
}

// PeerHandler handles messages received from peers.
type PeerHandler interface {
	// HandleRequest handles a request from a peer, returning the response.
	HandleRequest(ctx context.Context, peer PeerID, request []byte) ([]byte, error)

	// HandleGossip handles a one-way message from a peer.
	HandleGossip(ctx context.Context, peer PeerID, msg []byte) error
}

// Selector selects the peers to send a message to from the connected peers.
type Selector func(peers []PeerID) []PeerID

// AllPeers is a Selector that selects every peer.
func AllPeers(peers []PeerID) []PeerID {
	return peers
}
