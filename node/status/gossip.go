package status

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/andydunstall/spread/pkg/gossip"
)

// Gossiper is the status of a pull gossiper.
type Gossiper interface {
	State() gossip.State
	Config() gossip.Config
}

type GossipStatus struct {
	State   string        `json:"state"`
	Config  gossip.Config `json:"config"`
	Records int           `json:"records"`
	Pending int           `json:"pending"`
}

// GossipHandler exposes the status of the gossiper.
type GossipHandler struct {
	gossiper Gossiper
	records  func() int
	pending  func() int
}

// NewGossipHandler returns a handler for the gossiper status, where records
// returns the number of local records and pending returns the number of
// records waiting to be pushed.
func NewGossipHandler(
	gossiper Gossiper,
	records func() int,
	pending func() int,
) *GossipHandler {
	return &GossipHandler{
		gossiper: gossiper,
		records:  records,
		pending:  pending,
	}
}

func (h *GossipHandler) Register(group *gin.RouterGroup) {
	group.GET("", h.statusRoute)
}

func (h *GossipHandler) statusRoute(c *gin.Context) {
	c.JSON(http.StatusOK, GossipStatus{
		State:   h.gossiper.State().String(),
		Config:  h.gossiper.Config(),
		Records: h.records(),
		Pending: h.pending(),
	})
}

var _ Handler = &GossipHandler{}
