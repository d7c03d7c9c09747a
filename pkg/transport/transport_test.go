package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andydunstall/spread/pkg/gossip"
	"github.com/andydunstall/spread/pkg/log"
	"github.com/andydunstall/spread/pkg/record"
)

type fakeHandler struct {
	gossipCh chan []byte
	mu       sync.Mutex
	peers    []gossip.PeerID
}

func newFakeHandler() *fakeHandler {
	return &fakeHandler{
		gossipCh: make(chan []byte, 16),
	}
}

func (h *fakeHandler) HandleRequest(
	_ context.Context,
	peer gossip.PeerID,
	request []byte,
) ([]byte, error) {
	h.mu.Lock()
	h.peers = append(h.peers, peer)
	h.mu.Unlock()

	return append([]byte("resp:"), request...), nil
}

func (h *fakeHandler) HandleGossip(
	_ context.Context,
	_ gossip.PeerID,
	msg []byte,
) error {
	h.gossipCh <- msg
	return nil
}

var _ gossip.PeerHandler = &fakeHandler{}

func testConfig(ln net.Listener) Config {
	return Config{
		BindAddr:         ln.Addr().String(),
		AdvertiseAddr:    ln.Addr().String(),
		JoinTimeout:      time.Second,
		GossipSize:       3,
		RequestTimeout:   time.Second,
		HandshakeTimeout: time.Second,
		MaxMessageSize:   1024 * 1024,
	}
}

type testNode struct {
	transport *Transport
	server    *Server
	addr      string
}

func newTestNode(t *testing.T, id gossip.PeerID, handler gossip.PeerHandler) *testNode {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	transport := NewTransport(id, testConfig(ln), handler, log.NewNopLogger())
	server := NewServer(ln, transport, log.NewNopLogger())
	go func() {
		_ = server.Serve()
	}()
	t.Cleanup(func() {
		_ = server.Shutdown(context.Background())
	})

	return &testNode{
		transport: transport,
		server:    server,
		addr:      ln.Addr().String(),
	}
}

func TestTransport_Connect(t *testing.T) {
	t.Run("connect", func(t *testing.T) {
		n1 := newTestNode(t, "node-1", newFakeHandler())
		n2 := newTestNode(t, "node-2", newFakeHandler())

		id, err := n1.transport.Connect(context.Background(), n2.addr)
		require.NoError(t, err)
		assert.Equal(t, gossip.PeerID("node-2"), id)

		require.Len(t, n1.transport.Peers(), 1)
		assert.Equal(t, gossip.PeerID("node-2"), n1.transport.Peers()[0].ID)
		assert.Equal(t, n2.addr, n1.transport.Peers()[0].Addr)
		assert.True(t, n1.transport.Peers()[0].Outbound)

		require.Eventually(t, func() bool {
			return len(n2.transport.Peers()) == 1
		}, time.Second, 10*time.Millisecond)
		assert.Equal(t, gossip.PeerID("node-1"), n2.transport.Peers()[0].ID)
		assert.False(t, n2.transport.Peers()[0].Outbound)
	})

	t.Run("self", func(t *testing.T) {
		n1 := newTestNode(t, "node-1", newFakeHandler())

		_, err := n1.transport.Connect(context.Background(), n1.addr)
		assert.ErrorIs(t, err, ErrSelfConnection)
		assert.Empty(t, n1.transport.Peers())
	})

	t.Run("duplicate", func(t *testing.T) {
		n1 := newTestNode(t, "node-1", newFakeHandler())
		n2 := newTestNode(t, "node-2", newFakeHandler())

		_, err := n1.transport.Connect(context.Background(), n2.addr)
		require.NoError(t, err)

		// node-1 has the lower ID so keeps its own outbound connection.
		_, err = n2.transport.Connect(context.Background(), n1.addr)
		assert.Error(t, err)

		time.Sleep(50 * time.Millisecond)
		require.Len(t, n1.transport.Peers(), 1)
		assert.True(t, n1.transport.Peers()[0].Outbound)
		require.Len(t, n2.transport.Peers(), 1)
		assert.False(t, n2.transport.Peers()[0].Outbound)
	})

	t.Run("peer closed", func(t *testing.T) {
		n1 := newTestNode(t, "node-1", newFakeHandler())
		n2 := newTestNode(t, "node-2", newFakeHandler())

		_, err := n1.transport.Connect(context.Background(), n2.addr)
		require.NoError(t, err)

		require.NoError(t, n2.server.Shutdown(context.Background()))

		require.Eventually(t, func() bool {
			return len(n1.transport.Peers()) == 0
		}, time.Second, 10*time.Millisecond)
	})

	t.Run("cancelled", func(t *testing.T) {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		addr := ln.Addr().String()
		// Close the listener so connections are refused.
		ln.Close()

		n1 := newTestNode(t, "node-1", newFakeHandler())

		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()
		_, err = n1.transport.Connect(ctx, addr)
		assert.Error(t, err)
	})
}

func TestTransport_Join(t *testing.T) {
	n1 := newTestNode(t, "node-1", newFakeHandler())
	n2 := newTestNode(t, "node-2", newFakeHandler())
	n3 := newTestNode(t, "node-3", newFakeHandler())

	ids, err := n1.transport.Join(
		context.Background(), []string{n1.addr, n2.addr, n3.addr},
	)
	require.NoError(t, err)
	assert.ElementsMatch(t, []gossip.PeerID{"node-2", "node-3"}, ids)
}

func TestTransport_RequestAny(t *testing.T) {
	t.Run("response", func(t *testing.T) {
		h2 := newFakeHandler()
		n1 := newTestNode(t, "node-1", newFakeHandler())
		n2 := newTestNode(t, "node-2", h2)

		_, err := n1.transport.Connect(context.Background(), n2.addr)
		require.NoError(t, err)

		ch, err := n1.transport.RequestAny(context.Background(), []byte("foo"))
		require.NoError(t, err)

		resp, ok := <-ch
		require.True(t, ok)
		assert.Equal(t, []byte("resp:foo"), resp)

		_, ok = <-ch
		assert.False(t, ok)

		h2.mu.Lock()
		assert.Equal(t, []gossip.PeerID{"node-1"}, h2.peers)
		h2.mu.Unlock()
	})

	t.Run("inbound peer", func(t *testing.T) {
		n1 := newTestNode(t, "node-1", newFakeHandler())
		n2 := newTestNode(t, "node-2", newFakeHandler())

		_, err := n1.transport.Connect(context.Background(), n2.addr)
		require.NoError(t, err)
		require.Eventually(t, func() bool {
			return len(n2.transport.Peers()) == 1
		}, time.Second, 10*time.Millisecond)

		// Send a request over the connection dialed by the peer.
		ch, err := n2.transport.RequestAny(context.Background(), []byte("foo"))
		require.NoError(t, err)
		assert.Equal(t, []byte("resp:foo"), <-ch)
	})

	t.Run("inbound peer immediately after connect", func(t *testing.T) {
		n2 := newTestNode(t, "node-2", newFakeHandler())

		for i := 0; i != 10; i++ {
			n1 := newTestNode(t, gossip.PeerID(fmt.Sprintf("node-1-%d", i)), newFakeHandler())

			_, err := n1.transport.Connect(context.Background(), n2.addr)
			require.NoError(t, err)

			// Send a request as soon as the inbound peer is registered.
			var ch <-chan []byte
			require.Eventually(t, func() bool {
				ch, err = n2.transport.RequestAny(context.Background(), []byte("foo"))
				return err == nil
			}, time.Second, time.Millisecond)
			assert.Equal(t, []byte("resp:foo"), <-ch)

			require.NoError(t, n1.transport.Close())
			require.Eventually(t, func() bool {
				return len(n2.transport.Peers()) == 0
			}, time.Second, 10*time.Millisecond)
		}
	})

	t.Run("no peers", func(t *testing.T) {
		n1 := newTestNode(t, "node-1", newFakeHandler())

		_, err := n1.transport.RequestAny(context.Background(), []byte("foo"))
		assert.ErrorIs(t, err, gossip.ErrNoPeers)
	})
}

func TestTransport_Gossip(t *testing.T) {
	h2 := newFakeHandler()
	h3 := newFakeHandler()
	n1 := newTestNode(t, "node-1", newFakeHandler())
	n2 := newTestNode(t, "node-2", h2)
	n3 := newTestNode(t, "node-3", h3)

	_, err := n1.transport.Join(context.Background(), []string{n2.addr, n3.addr})
	require.NoError(t, err)

	require.NoError(t, n1.transport.Gossip(context.Background(), []byte("foo")))
	require.NoError(t, n1.transport.GossipSpecific(context.Background(), []byte("bar")))

	for _, h := range []*fakeHandler{h2, h3} {
		for _, expected := range []string{"foo", "bar"} {
			select {
			case msg := <-h.gossipCh:
				assert.Equal(t, []byte(expected), msg)
			case <-time.After(time.Second):
				t.Fatal("gossip not received")
			}
		}
	}
}

// Tests a node pulls missing records from a peer over the network.
func TestTransport_GossipRecords(t *testing.T) {
	config := gossip.Config{
		Frequency: 10 * time.Millisecond,
		PollSize:  1,
	}
	marshaller := record.NewBlobMarshaller(0)

	newSet := func() (*gossip.MemorySet[*record.Blob], *gossip.Router) {
		set, err := gossip.NewMemorySet[*record.Blob](marshaller)
		require.NoError(t, err)
		router := gossip.NewRouter()
		require.NoError(t, router.Register(0, gossip.NewSetHandler[*record.Blob](
			config, set, marshaller, log.NewNopLogger(),
		)))
		return set, router
	}

	set1, router1 := newSet()
	set2, router2 := newSet()
	for _, payload := range []string{"r1", "r2", "r3"} {
		require.NoError(t, set2.Add(record.NewBlob([]byte(payload))))
	}

	n1 := newTestNode(t, "node-1", router1)
	n2 := newTestNode(t, "node-2", router2)
	_, err := n1.transport.Connect(context.Background(), n2.addr)
	require.NoError(t, err)

	gossiper, err := gossip.NewGossiper[*record.Blob](
		config, set1, n1.transport, marshaller, log.NewNopLogger(),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = gossiper.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		return set1.Len() == 3
	}, time.Second*5, 10*time.Millisecond)
}
