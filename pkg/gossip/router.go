package gossip

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
)

// PrefixMessage prefixes the message with the protocol ID, so the receiver
// can route the message to the handler for the protocol.
func PrefixMessage(protocolID uint64, msg []byte) []byte {
	b := make([]byte, 0, binary.MaxVarintLen64+len(msg))
	b = binary.AppendUvarint(b, protocolID)
	return append(b, msg...)
}

// ParsePrefix returns the protocol ID and message from a message created
// with PrefixMessage.
func ParsePrefix(b []byte) (uint64, []byte, error) {
	protocolID, n := binary.Uvarint(b)
	if n <= 0 {
		return 0, nil, fmt.Errorf("invalid protocol prefix")
	}
	return protocolID, b[n:], nil
}

// Router routes messages from peers to the handler registered for the
// messages protocol.
//
// This lets multiple gossipers, each with their own record type, share a
// single client.
type Router struct {
	handlers map[uint64]PeerHandler

	mu sync.RWMutex
}

func NewRouter() *Router {
	return &Router{
		handlers: make(map[uint64]PeerHandler),
	}
}

// Register registers the handler for the protocol. Each protocol can only
// be registered once.
func (r *Router) Register(protocolID uint64, handler PeerHandler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.handlers[protocolID]; ok {
		return fmt.Errorf("protocol already registered: %d", protocolID)
	}
	r.handlers[protocolID] = handler
	return nil
}

func (r *Router) HandleRequest(
	ctx context.Context,
	peer PeerID,
	request []byte,
) ([]byte, error) {
	handler, msg, err := r.route(request)
	if err != nil {
		return nil, err
	}
	return handler.HandleRequest(ctx, peer, msg)
}

func (r *Router) HandleGossip(
	ctx context.Context,
	peer PeerID,
	msg []byte,
) error {
	handler, msg, err := r.route(msg)
	if err != nil {
		return err
	}
	return handler.HandleGossip(ctx, peer, msg)
}

func (r *Router) route(b []byte) (PeerHandler, []byte, error) {
	protocolID, msg, err := ParsePrefix(b)
	if err != nil {
		return nil, nil, err
	}

	r.mu.RLock()
	handler, ok := r.handlers[protocolID]
	r.mu.RUnlock()

	if !ok {
		return nil, nil, fmt.Errorf("%w: %d", ErrUnknownProtocol, protocolID)
	}
	return handler, msg, nil
}

var _ PeerHandler = &Router{}
