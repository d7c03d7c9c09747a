package client

import (
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andydunstall/spread/node/status"
	"github.com/andydunstall/spread/pkg/gossip"
	"github.com/andydunstall/spread/pkg/record"
	"github.com/andydunstall/spread/pkg/transport"
)

type nopPublisher struct {
}

func (p *nopPublisher) Add(_ ...*record.Blob) {}

type fakePeers struct {
}

func (p *fakePeers) NodeID() gossip.PeerID {
	return "node-1"
}

func (p *fakePeers) Peers() []transport.PeerStatus {
	return []transport.PeerStatus{{ID: "node-2", Addr: "10.26.104.15:7000"}}
}

func newServer(t *testing.T) *Client {
	marshaller := record.NewBlobMarshaller(0)
	set, err := gossip.NewMemorySet[*record.Blob](marshaller)
	require.NoError(t, err)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	status.NewRecordsHandler(set, &nopPublisher{}, marshaller).Register(
		router.Group("/status/records"),
	)
	status.NewPeersHandler(&fakePeers{}).Register(
		router.Group("/status/peers"),
	)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	u, err := url.Parse(server.URL)
	require.NoError(t, err)
	c := NewClient(u)
	t.Cleanup(c.Close)
	return c
}

func TestRecords(t *testing.T) {
	c := newServer(t)
	records := NewRecords(c)

	meta, err := records.Publish([]byte("foo"))
	require.NoError(t, err)
	assert.Equal(t, record.NewBlob([]byte("foo")).GossipID(), meta.ID)

	list, err := records.List()
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, meta.ID, list[0].ID)

	r, err := records.Get(meta.ID.String())
	require.NoError(t, err)
	assert.Equal(t, []byte("foo"), r.Payload)

	_, err = records.Get(record.NewBlob([]byte("bar")).GossipID().String())
	assert.ErrorContains(t, err, "bad status: 404: record not found")

	_, err = records.Publish(nil)
	assert.ErrorContains(t, err, "bad status: 400")
}

func TestPeers(t *testing.T) {
	c := newServer(t)

	s, err := NewPeers(c).Status()
	require.NoError(t, err)
	assert.Equal(t, gossip.PeerID("node-1"), s.NodeID)
	require.Len(t, s.Peers, 1)
	assert.Equal(t, gossip.PeerID("node-2"), s.Peers[0].ID)
}
