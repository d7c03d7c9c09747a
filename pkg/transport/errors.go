package transport

import (
	"errors"
	"fmt"

	"github.com/andydunstall/spread/pkg/gossip"
)

var (
	// ErrSelfConnection is returned when a node connects to itself.
	ErrSelfConnection = errors.New("connected to self")

	// ErrDuplicatePeer is returned when connecting to a peer that is already
	// connected.
	ErrDuplicatePeer = errors.New("duplicate peer")

	// ErrPeerClosed is returned when the connection to a peer closes.
	ErrPeerClosed = fmt.Errorf("%w: peer closed", gossip.ErrTransport)

	// ErrHandshake is returned when a peer fails to complete the handshake.
	ErrHandshake = errors.New("handshake")

	// ErrClosed is returned when using a closed transport.
	ErrClosed = errors.New("transport closed")
)
