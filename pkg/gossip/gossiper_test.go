package gossip

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/andydunstall/spread/pkg/log"
)

// fakeClient sends requests to a local peer handler.
type fakeClient struct {
	handler PeerHandler

	// requestAnyErr is returned by RequestAny after failAfter successful
	// calls.
	requestAnyErr error
	failAfter     int

	requestAnyCalls int
	gossip          [][]byte
	specific        [][]byte

	mu sync.Mutex
}

func (c *fakeClient) RequestAny(ctx context.Context, request []byte) (<-chan []byte, error) {
	c.mu.Lock()
	c.requestAnyCalls++
	calls := c.requestAnyCalls
	c.mu.Unlock()

	if c.requestAnyErr != nil && calls > c.failAfter {
		return nil, c.requestAnyErr
	}

	ch := make(chan []byte, 1)
	if c.handler != nil {
		resp, err := c.handler.HandleRequest(ctx, "peer", request)
		if err == nil {
			ch <- resp
		}
	}
	close(ch)
	return ch, nil
}

func (c *fakeClient) Request(ctx context.Context, request []byte) error {
	_, err := c.RequestAny(ctx, request)
	return err
}

func (c *fakeClient) Gossip(_ context.Context, msg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gossip = append(c.gossip, msg)
	return nil
}

func (c *fakeClient) GossipSpecific(_ context.Context, msg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.specific = append(c.specific, msg)
	return nil
}

func (c *fakeClient) RequestAnyCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.requestAnyCalls
}

var _ Client = &fakeClient{}

// slowSet is a set whose GetFilter takes a fixed duration, and tracks the
// number of concurrent calls.
type slowSet struct {
	*MemorySet[*fakeRecord]

	delay time.Duration

	calls     *atomic.Int32
	active    *atomic.Int32
	maxActive *atomic.Int32
	filterErr error
}

func (s *slowSet) GetFilter() ([]byte, []byte, error) {
	s.calls.Inc()
	active := s.active.Inc()
	defer s.active.Dec()

	for {
		cur := s.maxActive.Load()
		if active <= cur || s.maxActive.CompareAndSwap(cur, active) {
			break
		}
	}

	time.Sleep(s.delay)

	if s.filterErr != nil {
		return nil, nil, s.filterErr
	}
	return s.MemorySet.GetFilter()
}

func newSlowSet(t *testing.T, delay time.Duration) *slowSet {
	return &slowSet{
		MemorySet: newFakeSet(t),
		delay:     delay,
		calls:     atomic.NewInt32(0),
		active:    atomic.NewInt32(0),
		maxActive: atomic.NewInt32(0),
	}
}

var _ Set[*fakeRecord] = &slowSet{}

func TestNewGossiper(t *testing.T) {
	tests := []struct {
		name   string
		config Config
	}{
		{
			name:   "zero frequency",
			config: Config{Frequency: 0, PollSize: 1},
		},
		{
			name:   "negative frequency",
			config: Config{Frequency: -time.Second, PollSize: 1},
		},
		{
			name:   "negative poll size",
			config: Config{Frequency: time.Second, PollSize: -1},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewGossiper[*fakeRecord](
				tt.config,
				newFakeSet(t),
				&fakeClient{},
				&fakeMarshaller{},
				log.NewNopLogger(),
			)
			assert.ErrorIs(t, err, ErrConfig)
		})
	}
}

func TestGossiper_Gossip(t *testing.T) {
	t.Run("pull missing records", func(t *testing.T) {
		local := newFakeSet(t)
		remote := newFakeSet(t)
		for i := 0; i != 3; i++ {
			require.NoError(t, remote.Add(newFakeRecord(fmt.Sprintf("r%d", i))))
		}

		client := &fakeClient{
			handler: NewSetHandler[*fakeRecord](
				Config{Frequency: time.Second}, remote, &fakeMarshaller{}, log.NewNopLogger(),
			),
		}
		gossiper, err := NewGossiper[*fakeRecord](
			Config{Frequency: time.Second, PollSize: 1},
			local,
			client,
			&fakeMarshaller{},
			log.NewNopLogger(),
		)
		require.NoError(t, err)

		require.NoError(t, gossiper.Gossip(context.Background()))

		assert.Equal(t, 1, client.RequestAnyCalls())
		assert.Equal(t, 3, local.Len())
		for i := 0; i != 3; i++ {
			assert.True(t, local.Has(newFakeRecord(fmt.Sprintf("r%d", i)).GossipID()))
		}
		// Pulling must not modify the remote set.
		assert.Equal(t, 3, remote.Len())
	})

	t.Run("zero poll size", func(t *testing.T) {
		client := &fakeClient{}
		gossiper, err := NewGossiper[*fakeRecord](
			Config{Frequency: time.Second, PollSize: 0},
			newFakeSet(t),
			client,
			&fakeMarshaller{},
			log.NewNopLogger(),
		)
		require.NoError(t, err)

		require.NoError(t, gossiper.Gossip(context.Background()))
		assert.Equal(t, 0, client.RequestAnyCalls())
	})

	t.Run("poll size", func(t *testing.T) {
		client := &fakeClient{}
		gossiper, err := NewGossiper[*fakeRecord](
			Config{Frequency: time.Second, PollSize: 3},
			newFakeSet(t),
			client,
			&fakeMarshaller{},
			log.NewNopLogger(),
		)
		require.NoError(t, err)

		require.NoError(t, gossiper.Gossip(context.Background()))
		assert.Equal(t, 3, client.RequestAnyCalls())
	})

	t.Run("request error", func(t *testing.T) {
		remote := newFakeSet(t)
		require.NoError(t, remote.Add(newFakeRecord("foo")))

		client := &fakeClient{
			handler: NewSetHandler[*fakeRecord](
				Config{Frequency: time.Second}, remote, &fakeMarshaller{}, log.NewNopLogger(),
			),
			requestAnyErr: ErrNoPeers,
			failAfter:     1,
		}
		local := newFakeSet(t)
		gossiper, err := NewGossiper[*fakeRecord](
			Config{Frequency: time.Second, PollSize: 5},
			local,
			client,
			&fakeMarshaller{},
			log.NewNopLogger(),
		)
		require.NoError(t, err)

		// The error is not returned and stops further requests, though
		// the response to the successful request is still processed.
		require.NoError(t, gossiper.Gossip(context.Background()))
		assert.Equal(t, 2, client.RequestAnyCalls())
		assert.Equal(t, 1, local.Len())
	})

	t.Run("filter error", func(t *testing.T) {
		set := newSlowSet(t, 0)
		set.filterErr = ErrFilterBuild

		client := &fakeClient{}
		gossiper, err := NewGossiper[*fakeRecord](
			Config{Frequency: time.Second, PollSize: 1},
			set,
			client,
			&fakeMarshaller{},
			log.NewNopLogger(),
		)
		require.NoError(t, err)

		assert.ErrorIs(t, gossiper.Gossip(context.Background()), ErrFilterBuild)
		assert.Equal(t, 0, client.RequestAnyCalls())
	})

	t.Run("no response", func(t *testing.T) {
		// With no handler the client closes the channel without a
		// response.
		client := &fakeClient{}
		local := newFakeSet(t)
		gossiper, err := NewGossiper[*fakeRecord](
			Config{Frequency: time.Second, PollSize: 1},
			local,
			client,
			&fakeMarshaller{},
			log.NewNopLogger(),
		)
		require.NoError(t, err)

		require.NoError(t, gossiper.Gossip(context.Background()))
		assert.Equal(t, 0, local.Len())
	})
}

func TestGossiper_Run(t *testing.T) {
	t.Run("sequential rounds", func(t *testing.T) {
		set := newSlowSet(t, 120*time.Millisecond)
		gossiper, err := NewGossiper[*fakeRecord](
			Config{Frequency: 50 * time.Millisecond, PollSize: 0},
			set,
			&fakeClient{},
			&fakeMarshaller{},
			log.NewNopLogger(),
		)
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
		defer cancel()

		require.NoError(t, gossiper.Run(ctx))

		// Rounds start at roughly 50ms, 170ms, 290ms and 410ms. Allow one
		// fewer round for a slow scheduler.
		assert.LessOrEqual(t, set.calls.Load(), int32(4))
		assert.GreaterOrEqual(t, set.calls.Load(), int32(3))
		assert.Equal(t, int32(1), set.maxActive.Load())
	})

	t.Run("graceful stop", func(t *testing.T) {
		gossiper, err := NewGossiper[*fakeRecord](
			Config{Frequency: 50 * time.Millisecond, PollSize: 1},
			newFakeSet(t),
			&fakeClient{},
			&fakeMarshaller{},
			log.NewNopLogger(),
		)
		require.NoError(t, err)
		assert.Equal(t, StateIdle, gossiper.State())

		ctx, cancel := context.WithCancel(context.Background())
		errCh := make(chan error, 1)
		go func() {
			errCh <- gossiper.Run(ctx)
		}()

		time.Sleep(120 * time.Millisecond)
		assert.Equal(t, StateRunning, gossiper.State())

		cancel()
		select {
		case err := <-errCh:
			assert.NoError(t, err)
		case <-time.After(50 * time.Millisecond):
			t.Fatal("gossiper did not stop")
		}
		assert.Equal(t, StateStopped, gossiper.State())

		// A stopped gossiper cannot be restarted.
		assert.ErrorIs(t, gossiper.Run(context.Background()), ErrNotIdle)
	})

	t.Run("in-progress round completes", func(t *testing.T) {
		set := newSlowSet(t, 100*time.Millisecond)
		gossiper, err := NewGossiper[*fakeRecord](
			Config{Frequency: 20 * time.Millisecond, PollSize: 0},
			set,
			&fakeClient{},
			&fakeMarshaller{},
			log.NewNopLogger(),
		)
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		errCh := make(chan error, 1)
		go func() {
			errCh <- gossiper.Run(ctx)
		}()

		// Cancel during the first round.
		time.Sleep(50 * time.Millisecond)
		cancel()

		require.NoError(t, <-errCh)
		assert.Equal(t, int32(1), set.calls.Load())
		assert.Equal(t, int32(0), set.active.Load())
	})

	t.Run("already running", func(t *testing.T) {
		gossiper, err := NewGossiper[*fakeRecord](
			Config{Frequency: time.Second, PollSize: 1},
			newFakeSet(t),
			&fakeClient{},
			&fakeMarshaller{},
			log.NewNopLogger(),
		)
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		errCh := make(chan error, 1)
		go func() {
			errCh <- gossiper.Run(ctx)
		}()

		require.Eventually(t, func() bool {
			return gossiper.State() == StateRunning
		}, time.Second, time.Millisecond)
		assert.ErrorIs(t, gossiper.Run(context.Background()), ErrNotIdle)

		cancel()
		assert.NoError(t, <-errCh)
	})
}
