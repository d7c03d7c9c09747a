package status

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/andydunstall/spread/pkg/gossip"
	"github.com/andydunstall/spread/pkg/transport"
)

type Peers interface {
	NodeID() gossip.PeerID
	Peers() []transport.PeerStatus
}

type PeersStatus struct {
	NodeID gossip.PeerID          `json:"node_id"`
	Peers  []transport.PeerStatus `json:"peers"`
}

// PeersHandler exposes the peers connected to the node.
type PeersHandler struct {
	peers Peers
}

func NewPeersHandler(peers Peers) *PeersHandler {
	return &PeersHandler{
		peers: peers,
	}
}

func (h *PeersHandler) Register(group *gin.RouterGroup) {
	group.GET("", h.peersRoute)
}

func (h *PeersHandler) peersRoute(c *gin.Context) {
	peers := h.peers.Peers()
	if peers == nil {
		peers = []transport.PeerStatus{}
	}
	c.JSON(http.StatusOK, PeersStatus{
		NodeID: h.peers.NodeID(),
		Peers:  peers,
	})
}

var _ Handler = &PeersHandler{}
