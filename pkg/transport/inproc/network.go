// Package inproc implements a gossip.Client that delivers messages to peers
// in the same process.
//
// It is used to test gossip between multiple nodes without a network.
package inproc

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/andydunstall/spread/pkg/gossip"
)

const (
	defaultGossipSize     = 3
	defaultRequestTimeout = time.Second
)

type options struct {
	gossipSize     int
	selector       gossip.Selector
	requestTimeout time.Duration
}

type Option interface {
	apply(*options)
}

type gossipSizeOption int

func (o gossipSizeOption) apply(opts *options) {
	opts.gossipSize = int(o)
}

// WithGossipSize sets the number of peers Gossip sends to.
func WithGossipSize(n int) Option {
	return gossipSizeOption(n)
}

type selectorOption gossip.Selector

func (o selectorOption) apply(opts *options) {
	opts.selector = gossip.Selector(o)
}

// WithSelector sets the selector used by GossipSpecific. Defaults to all
// peers.
func WithSelector(selector gossip.Selector) Option {
	return selectorOption(selector)
}

type requestTimeoutOption time.Duration

func (o requestTimeoutOption) apply(opts *options) {
	opts.requestTimeout = time.Duration(o)
}

// WithRequestTimeout sets the maximum duration RequestAny waits for a
// response.
func WithRequestTimeout(timeout time.Duration) Option {
	return requestTimeoutOption(timeout)
}

// Network connects in-process peers.
type Network struct {
	peers map[gossip.PeerID]gossip.PeerHandler

	mu sync.RWMutex
}

func NewNetwork() *Network {
	return &Network{
		peers: make(map[gossip.PeerID]gossip.PeerHandler),
	}
}

// Join adds a peer to the network with the given handler for inbound
// messages, and returns a client to send messages to the other peers.
func (n *Network) Join(
	id gossip.PeerID,
	handler gossip.PeerHandler,
	opts ...Option,
) *Client {
	options := options{
		gossipSize:     defaultGossipSize,
		selector:       gossip.AllPeers,
		requestTimeout: defaultRequestTimeout,
	}
	for _, o := range opts {
		o.apply(&options)
	}

	n.mu.Lock()
	n.peers[id] = handler
	n.mu.Unlock()

	return &Client{
		id:      id,
		network: n,
		options: options,
	}
}

// Leave removes the peer from the network.
func (n *Network) Leave(id gossip.PeerID) {
	n.mu.Lock()
	defer n.mu.Unlock()

	delete(n.peers, id)
}

// Peers returns the IDs of the peers in the network, sorted.
func (n *Network) Peers() []gossip.PeerID {
	n.mu.RLock()
	defer n.mu.RUnlock()

	var peers []gossip.PeerID
	for id := range n.peers {
		peers = append(peers, id)
	}
	slices.Sort(peers)
	return peers
}

func (n *Network) handler(id gossip.PeerID) (gossip.PeerHandler, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	h, ok := n.peers[id]
	return h, ok
}

// Client sends messages to the other peers in the network.
type Client struct {
	id      gossip.PeerID
	network *Network
	options options
}

func (c *Client) ID() gossip.PeerID {
	return c.id
}

func (c *Client) RequestAny(
	ctx context.Context,
	request []byte,
) (<-chan []byte, error) {
	_, handler, err := c.randomPeer()
	if err != nil {
		return nil, err
	}

	ch := make(chan []byte, 1)
	go func() {
		defer close(ch)

		ctx, cancel := context.WithTimeout(ctx, c.options.requestTimeout)
		defer cancel()

		// Closed without a response if the handler fails.
		respCh := make(chan []byte, 1)
		go func() {
			defer close(respCh)

			resp, err := handler.HandleRequest(ctx, c.id, request)
			if err != nil {
				return
			}
			respCh <- resp
		}()

		select {
		case resp, ok := <-respCh:
			if ok {
				ch <- resp
			}
		case <-ctx.Done():
		}
	}()
	return ch, nil
}

func (c *Client) Request(ctx context.Context, request []byte) error {
	_, handler, err := c.randomPeer()
	if err != nil {
		return err
	}
	if _, err := handler.HandleRequest(ctx, c.id, request); err != nil {
		return fmt.Errorf("%w: %w", gossip.ErrTransport, err)
	}
	return nil
}

func (c *Client) Gossip(ctx context.Context, msg []byte) error {
	peers := c.otherPeers()
	rand.Shuffle(len(peers), func(i, j int) {
		peers[i], peers[j] = peers[j], peers[i]
	})
	if len(peers) > c.options.gossipSize {
		peers = peers[:c.options.gossipSize]
	}
	return c.send(ctx, peers, msg)
}

func (c *Client) GossipSpecific(ctx context.Context, msg []byte) error {
	return c.send(ctx, c.options.selector(c.otherPeers()), msg)
}

func (c *Client) send(ctx context.Context, peers []gossip.PeerID, msg []byte) error {
	if len(peers) == 0 {
		return gossip.ErrNoPeers
	}

	var errs []error
	for _, peer := range peers {
		handler, ok := c.network.handler(peer)
		if !ok {
			continue
		}
		if err := handler.HandleGossip(ctx, c.id, msg); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", peer, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", gossip.ErrTransport, errors.Join(errs...))
	}
	return nil
}

func (c *Client) randomPeer() (gossip.PeerID, gossip.PeerHandler, error) {
	peers := c.otherPeers()
	if len(peers) == 0 {
		return "", nil, gossip.ErrNoPeers
	}
	peer := peers[rand.IntN(len(peers))]
	handler, ok := c.network.handler(peer)
	if !ok {
		return "", nil, gossip.ErrNoPeers
	}
	return peer, handler, nil
}

func (c *Client) otherPeers() []gossip.PeerID {
	peers := c.network.Peers()
	return slices.DeleteFunc(peers, func(id gossip.PeerID) bool {
		return id == c.id
	})
}

var _ gossip.Client = &Client{}
