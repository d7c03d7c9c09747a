package transport

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/url"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/andydunstall/spread/pkg/backoff"
	"github.com/andydunstall/spread/pkg/conn"
	"github.com/andydunstall/spread/pkg/conn/websocket"
	"github.com/andydunstall/spread/pkg/gossip"
	"github.com/andydunstall/spread/pkg/log"
	"github.com/andydunstall/spread/pkg/rpc"
)

const (
	minConnectBackoff = 100 * time.Millisecond
	maxConnectBackoff = 15 * time.Second
)

type options struct {
	selector gossip.Selector
	metrics  *Metrics
}

type Option interface {
	apply(*options)
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

type metricsOption struct {
	Metrics *Metrics
}

func (o metricsOption) apply(opts *options) {
	opts.metrics = o.Metrics
}

func WithMetrics(metrics *Metrics) Option {
	return metricsOption{Metrics: metrics}
}

// Transport manages connections to peers and implements gossip.Client to
// send messages to them.
//
// Each peer connection is a WebSocket carrying an RPC stream, which may be
// dialed by either node. Messages received from peers are passed to the
// configured gossip.PeerHandler.
type Transport struct {
	nodeID gossip.PeerID

	peers map[gossip.PeerID]*peer
	// mu protects the above fields.
	mu sync.Mutex

	handler gossip.PeerHandler

	conf    Config
	options options

	shutdownCtx    context.Context
	shutdownCancel func()

	metrics *Metrics
	logger  log.Logger
}

func NewTransport(
	nodeID gossip.PeerID,
	conf Config,
	handler gossip.PeerHandler,
	logger log.Logger,
	opts ...Option,
) *Transport {
	options := options{
		selector: gossip.AllPeers,
	}
	for _, o := range opts {
		o.apply(&options)
	}
	if options.metrics == nil {
		options.metrics = NewMetrics()
	}

	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())
	return &Transport{
		nodeID:         nodeID,
		peers:          make(map[gossip.PeerID]*peer),
		handler:        handler,
		conf:           conf,
		options:        options,
		shutdownCtx:    shutdownCtx,
		shutdownCancel: shutdownCancel,
		metrics:        options.metrics,
		logger:         logger.WithSubsystem("transport"),
	}
}

func (t *Transport) NodeID() gossip.PeerID {
	return t.nodeID
}

// Join connects to each of the given addresses, retrying with backoff until
// the context is cancelled. Returns the IDs of the peers connected.
//
// Addresses that resolve to the local node are ignored.
func (t *Transport) Join(ctx context.Context, addrs []string) ([]gossip.PeerID, error) {
	type result struct {
		id  gossip.PeerID
		err error
	}

	resultCh := make(chan result, len(addrs))
	for _, addr := range addrs {
		go func() {
			id, err := t.Connect(ctx, addr)
			resultCh <- result{id: id, err: err}
		}()
	}

	var ids []gossip.PeerID
	var errs []error
	for range addrs {
		r := <-resultCh
		switch {
		case r.err == nil:
			ids = append(ids, r.id)
		case errors.Is(r.err, ErrSelfConnection):
		case errors.Is(r.err, ErrDuplicatePeer):
			ids = append(ids, r.id)
		default:
			errs = append(errs, r.err)
		}
	}

	// A peer may reject a connection when it is already connected to this
	// node, so only fail if there are no connected peers.
	if len(ids) == 0 && len(errs) > 0 && len(t.peerList()) == 0 {
		return nil, errors.Join(errs...)
	}
	return ids, nil
}

// Connect dials the peer at the given address and completes the handshake.
//
// Retryable connection errors are retried with backoff until the context is
// cancelled.
func (t *Transport) Connect(ctx context.Context, addr string) (gossip.PeerID, error) {
	u := url.URL{
		Scheme: "ws",
		Host:   addr,
		Path:   "/peer/v1/ws",
	}

	retry := backoff.New(0, minConnectBackoff, maxConnectBackoff)
	for {
		id, err := t.connect(ctx, u.String())
		if err == nil {
			return id, nil
		}
		if !conn.IsRetryable(err) {
			return id, err
		}

		t.logger.Debug(
			"failed to connect to peer; retrying",
			zap.String("addr", addr),
			zap.Error(err),
		)
		if !retry.Wait(ctx) {
			return "", fmt.Errorf("connect %s: %w", addr, err)
		}
	}
}

func (t *Transport) connect(ctx context.Context, url string) (gossip.PeerID, error) {
	c, err := websocket.Dial(
		ctx, url, websocket.WithReadLimit(t.conf.MaxMessageSize),
	)
	if err != nil {
		return "", err
	}

	p := newPeer(true)
	p.stream = rpc.NewStream(c, t.streamHandler(p), t.logger)

	helloCtx, cancel := context.WithTimeout(ctx, t.conf.HandshakeTimeout)
	defer cancel()

	req, err := t.localHello().Encode()
	if err != nil {
		p.stream.Close()
		return "", err
	}
	b, err := p.stream.RPC(helloCtx, rpc.TypeHello, req)
	if err != nil {
		p.stream.Close()
		t.metrics.HandshakesTotal.WithLabelValues("outbound", "error").Inc()
		if errors.Is(err, rpc.ErrHandler) {
			// The peer rejected the connection.
			return "", fmt.Errorf("%w: rejected: %w", ErrHandshake, err)
		}
		return "", conn.NewRetryableError(fmt.Errorf("%w: %w", ErrHandshake, err))
	}

	var resp hello
	if err := resp.Decode(b); err != nil {
		p.stream.Close()
		t.metrics.HandshakesTotal.WithLabelValues("outbound", "error").Inc()
		return "", fmt.Errorf("%w: %w", ErrHandshake, err)
	}
	p.id.Store(string(resp.NodeID))
	p.addr.Store(resp.Addr)

	if err := t.addPeer(p); err != nil {
		p.stream.Close()
		t.metrics.HandshakesTotal.WithLabelValues("outbound", "rejected").Inc()
		return resp.NodeID, err
	}
	t.metrics.HandshakesTotal.WithLabelValues("outbound", "ok").Inc()

	go t.monitor(p)

	return resp.NodeID, nil
}

// Accept handles an inbound connection from a peer. It blocks until the
// connection closes.
func (t *Transport) Accept(c conn.Conn) error {
	p := newPeer(false)

	// The stream must be set before the peer is added, as once added the
	// peer may be used by other goroutines.
	streamReady := make(chan struct{})
	helloCh := make(chan struct{})
	var helloOnce sync.Once
	handler := t.streamHandler(p)
	handler.Register(rpc.TypeHello, func(_ context.Context, b []byte) ([]byte, error) {
		<-streamReady

		var req hello
		if err := req.Decode(b); err != nil {
			return nil, err
		}
		if p.ID() != "" {
			return nil, fmt.Errorf("%w: handshake already complete", ErrHandshake)
		}
		if req.NodeID == t.nodeID {
			// Respond so the dialer detects it connected to itself and
			// closes the connection.
			return t.localHello().Encode()
		}
		p.id.Store(string(req.NodeID))
		p.addr.Store(req.Addr)

		if err := t.addPeer(p); err != nil {
			return nil, err
		}
		helloOnce.Do(func() {
			close(helloCh)
		})
		return t.localHello().Encode()
	})

	p.stream = rpc.NewStream(c, handler, t.logger)
	close(streamReady)
	defer p.stream.Close()

	timer := time.NewTimer(t.conf.HandshakeTimeout)
	defer timer.Stop()

	select {
	case <-helloCh:
		t.metrics.HandshakesTotal.WithLabelValues("inbound", "ok").Inc()
	case <-timer.C:
		t.metrics.HandshakesTotal.WithLabelValues("inbound", "error").Inc()
		return fmt.Errorf("%w: timeout", ErrHandshake)
	case <-p.stream.Done():
		t.metrics.HandshakesTotal.WithLabelValues("inbound", "error").Inc()
		return fmt.Errorf("%w: %w", ErrHandshake, p.stream.Err())
	case <-t.shutdownCtx.Done():
		return ErrClosed
	}

	t.monitor(p)
	return nil
}

// Peers returns the status of the connected peers, sorted by ID.
func (t *Transport) Peers() []PeerStatus {
	t.mu.Lock()
	defer t.mu.Unlock()

	var peers []PeerStatus
	for _, p := range t.peers {
		peers = append(peers, p.Status())
	}
	slices.SortFunc(peers, func(a, b PeerStatus) int {
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
	return peers
}

func (t *Transport) RequestAny(
	ctx context.Context,
	request []byte,
) (<-chan []byte, error) {
	p, err := t.randomPeer()
	if err != nil {
		return nil, err
	}

	t.metrics.MessagesSentTotal.WithLabelValues(rpc.TypeRequest.String()).Inc()

	ch := make(chan []byte, 1)
	go func() {
		defer close(ch)

		ctx, cancel := context.WithTimeout(ctx, t.conf.RequestTimeout)
		defer cancel()

		start := time.Now()
		resp, err := p.stream.RPC(ctx, rpc.TypeRequest, request)
		if err != nil {
			t.metrics.MessagesFailedTotal.WithLabelValues(
				rpc.TypeRequest.String(),
			).Inc()
			t.logger.Debug(
				"request failed",
				zap.String("peer", string(p.ID())),
				zap.Error(err),
			)
			return
		}
		t.metrics.RequestLatency.Observe(time.Since(start).Seconds())
		ch <- resp
	}()
	return ch, nil
}

func (t *Transport) Request(_ context.Context, request []byte) error {
	p, err := t.randomPeer()
	if err != nil {
		return err
	}
	return t.notify(p, rpc.TypeMessage, request)
}

func (t *Transport) Gossip(_ context.Context, msg []byte) error {
	peers := t.peerList()
	rand.Shuffle(len(peers), func(i, j int) {
		peers[i], peers[j] = peers[j], peers[i]
	})
	if len(peers) > t.conf.GossipSize {
		peers = peers[:t.conf.GossipSize]
	}
	return t.broadcast(peers, msg)
}

func (t *Transport) GossipSpecific(_ context.Context, msg []byte) error {
	peers := t.peerList()

	ids := make([]gossip.PeerID, 0, len(peers))
	byID := make(map[gossip.PeerID]*peer, len(peers))
	for _, p := range peers {
		ids = append(ids, p.ID())
		byID[p.ID()] = p
	}

	var selected []*peer
	for _, id := range t.options.selector(ids) {
		if p, ok := byID[id]; ok {
			selected = append(selected, p)
		}
	}
	return t.broadcast(selected, msg)
}

// Close closes all peer connections.
func (t *Transport) Close() error {
	t.shutdownCancel()

	t.mu.Lock()
	peers := make([]*peer, 0, len(t.peers))
	for _, p := range t.peers {
		peers = append(peers, p)
	}
	t.mu.Unlock()

	for _, p := range peers {
		p.stream.Close()
	}
	return nil
}

func (t *Transport) broadcast(peers []*peer, msg []byte) error {
	if len(peers) == 0 {
		return gossip.ErrNoPeers
	}

	var errs []error
	for _, p := range peers {
		if err := t.notify(p, rpc.TypeGossip, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (t *Transport) notify(p *peer, rpcType rpc.Type, msg []byte) error {
	t.metrics.MessagesSentTotal.WithLabelValues(rpcType.String()).Inc()
	if err := p.stream.Notify(rpcType, msg); err != nil {
		t.metrics.MessagesFailedTotal.WithLabelValues(rpcType.String()).Inc()
		return fmt.Errorf("%w: %s: %w", gossip.ErrTransport, p.ID(), err)
	}
	return nil
}

// streamHandler returns the RPC handler for messages from the peer.
func (t *Transport) streamHandler(p *peer) *rpc.Handler {
	handler := rpc.NewHandler()
	handler.Register(rpc.TypeRequest, func(ctx context.Context, b []byte) ([]byte, error) {
		id, err := t.receive(p, rpc.TypeRequest)
		if err != nil {
			return nil, err
		}
		return t.handler.HandleRequest(ctx, id, b)
	})
	handler.Register(rpc.TypeMessage, func(ctx context.Context, b []byte) ([]byte, error) {
		id, err := t.receive(p, rpc.TypeMessage)
		if err != nil {
			return nil, err
		}
		_, err = t.handler.HandleRequest(ctx, id, b)
		return nil, err
	})
	handler.Register(rpc.TypeGossip, func(ctx context.Context, b []byte) ([]byte, error) {
		id, err := t.receive(p, rpc.TypeGossip)
		if err != nil {
			return nil, err
		}
		return nil, t.handler.HandleGossip(ctx, id, b)
	})
	return handler
}

func (t *Transport) receive(p *peer, rpcType rpc.Type) (gossip.PeerID, error) {
	id := p.ID()
	if id == "" {
		return "", fmt.Errorf("%w: handshake not complete", ErrHandshake)
	}
	t.metrics.MessagesReceivedTotal.WithLabelValues(rpcType.String()).Inc()
	return id, nil
}

func (t *Transport) localHello() *hello {
	return &hello{
		NodeID: t.nodeID,
		Addr:   t.conf.AdvertiseAddr,
	}
}

func (t *Transport) addPeer(p *peer) error {
	id := p.ID()
	if id == t.nodeID {
		return ErrSelfConnection
	}

	t.mu.Lock()

	if t.shutdownCtx.Err() != nil {
		t.mu.Unlock()
		return ErrClosed
	}

	existing, ok := t.peers[id]
	if ok && !p.preferred(t.nodeID) {
		t.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicatePeer, id)
	}

	p.connectedAt = time.Now()
	t.peers[id] = p
	t.metrics.ConnectedPeers.Set(float64(len(t.peers)))

	t.mu.Unlock()

	if ok {
		t.logger.Debug(
			"replacing duplicate peer connection",
			zap.String("peer", string(id)),
		)
		existing.stream.Close()
	}

	t.logger.Info(
		"peer connected",
		zap.String("peer", string(id)),
		zap.String("addr", p.addr.Load()),
		zap.String("direction", p.direction()),
	)
	return nil
}

// monitor blocks until the peers stream closes, then removes the peer.
func (t *Transport) monitor(p *peer) {
	select {
	case <-p.stream.Done():
	case <-t.shutdownCtx.Done():
		p.stream.Close()
	}

	t.mu.Lock()
	if t.peers[p.ID()] == p {
		delete(t.peers, p.ID())
	}
	t.metrics.ConnectedPeers.Set(float64(len(t.peers)))
	t.mu.Unlock()

	t.logger.Info(
		"peer disconnected",
		zap.String("peer", string(p.ID())),
		zap.Error(p.stream.Err()),
	)
}

func (t *Transport) peerList() []*peer {
	t.mu.Lock()
	defer t.mu.Unlock()

	peers := make([]*peer, 0, len(t.peers))
	for _, p := range t.peers {
		peers = append(peers, p)
	}
	return peers
}

func (t *Transport) randomPeer() (*peer, error) {
	peers := t.peerList()
	if len(peers) == 0 {
		return nil, gossip.ErrNoPeers
	}
	return peers[rand.IntN(len(peers))], nil
}

var _ gossip.Client = &Transport{}
