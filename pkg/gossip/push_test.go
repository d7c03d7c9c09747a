package gossip

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andydunstall/spread/pkg/log"
)

func decodePush(t *testing.T, b []byte) push {
	protocolID, msg, err := ParsePrefix(b)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), protocolID)

	var p push
	require.NoError(t, decodeMessage(msg, messageTypePush, &p))
	return p
}

func TestPushGossiper_Push(t *testing.T) {
	t.Run("gossip", func(t *testing.T) {
		client := &fakeClient{}
		gossiper, err := NewPushGossiper[*fakeRecord](
			Config{Frequency: time.Second, ProtocolID: 3},
			client,
			&fakeMarshaller{},
			log.NewNopLogger(),
		)
		require.NoError(t, err)

		gossiper.Add(newFakeRecord("foo"), newFakeRecord("bar"))
		require.NoError(t, gossiper.Push(context.Background()))

		require.Len(t, client.gossip, 1)
		assert.Empty(t, client.specific)
		assert.Equal(t, [][]byte{
			[]byte("foo"), []byte("bar"),
		}, decodePush(t, client.gossip[0]).Records)
		assert.Equal(t, 0, gossiper.Pending())

		// Nothing to push.
		require.NoError(t, gossiper.Push(context.Background()))
		assert.Len(t, client.gossip, 1)
	})

	t.Run("specific", func(t *testing.T) {
		client := &fakeClient{}
		gossiper, err := NewPushGossiper[*fakeRecord](
			Config{Frequency: time.Second, ProtocolID: 3},
			client,
			&fakeMarshaller{},
			log.NewNopLogger(),
			WithSpecific(),
		)
		require.NoError(t, err)

		gossiper.Add(newFakeRecord("foo"))
		require.NoError(t, gossiper.Push(context.Background()))

		assert.Empty(t, client.gossip)
		require.Len(t, client.specific, 1)
		assert.Equal(t, [][]byte{
			[]byte("foo"),
		}, decodePush(t, client.specific[0]).Records)
	})

	t.Run("target size", func(t *testing.T) {
		client := &fakeClient{}
		gossiper, err := NewPushGossiper[*fakeRecord](
			// Each record encodes to at most 13 bytes.
			Config{Frequency: time.Second, ProtocolID: 3, TargetResponseSize: 40},
			client,
			&fakeMarshaller{},
			log.NewNopLogger(),
		)
		require.NoError(t, err)

		for i := 0; i != 5; i++ {
			gossiper.Add(newFakeRecord(fmt.Sprintf("record-%03d", i)))
		}

		require.NoError(t, gossiper.Push(context.Background()))
		assert.Len(t, decodePush(t, client.gossip[0]).Records, 3)
		assert.Equal(t, 2, gossiper.Pending())

		require.NoError(t, gossiper.Push(context.Background()))
		assert.Len(t, decodePush(t, client.gossip[1]).Records, 2)
		assert.Equal(t, 0, gossiper.Pending())
	})

	t.Run("push does not exceed target size", func(t *testing.T) {
		client := &fakeClient{}
		config := Config{Frequency: time.Second, ProtocolID: 3, TargetResponseSize: 30}
		gossiper, err := NewPushGossiper[*fakeRecord](
			config, client, &fakeMarshaller{}, log.NewNopLogger(),
		)
		require.NoError(t, err)

		for i := 0; i != 3; i++ {
			gossiper.Add(newFakeRecord(fmt.Sprintf("record-%03d", i)))
		}

		require.NoError(t, gossiper.Push(context.Background()))
		assert.Len(t, decodePush(t, client.gossip[0]).Records, 2)
		assert.LessOrEqual(t, len(client.gossip[0]), config.MaxMessageSize(10))
		assert.Equal(t, 1, gossiper.Pending())
	})
}

func TestPushGossiper_Run(t *testing.T) {
	remote := newFakeSet(t)
	handler := NewSetHandler[*fakeRecord](
		Config{Frequency: time.Second, ProtocolID: 3}, remote, &fakeMarshaller{}, log.NewNopLogger(),
	)
	router := NewRouter()
	require.NoError(t, router.Register(3, handler))

	client := &fakeClient{}
	gossiper, err := NewPushGossiper[*fakeRecord](
		Config{Frequency: 10 * time.Millisecond, ProtocolID: 3},
		client,
		&fakeMarshaller{},
		log.NewNopLogger(),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- gossiper.Run(ctx)
	}()

	gossiper.Add(newFakeRecord("foo"))
	require.Eventually(t, func() bool {
		return gossiper.Pending() == 0
	}, time.Second, time.Millisecond)

	cancel()
	require.NoError(t, <-errCh)

	client.mu.Lock()
	defer client.mu.Unlock()
	for _, msg := range client.gossip {
		require.NoError(t, router.HandleGossip(context.Background(), "peer", msg))
	}
	assert.True(t, remote.Has(newFakeRecord("foo").GossipID()))
}
