package status

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/andydunstall/spread/pkg/gossip"
	"github.com/andydunstall/spread/pkg/record"
)

// Records is the local record set.
type Records interface {
	Add(b *record.Blob) error
	Iterate(f func(b *record.Blob) bool)
	Get(id gossip.ID) (*record.Blob, bool)
}

// Publisher queues records to be pushed to peers.
type Publisher interface {
	Add(records ...*record.Blob)
}

type RecordMeta struct {
	ID   gossip.ID `json:"id"`
	Size int       `json:"size"`
}

type Record struct {
	ID      gossip.ID `json:"id"`
	Payload []byte    `json:"payload"`
}

// RecordsHandler exposes the records stored by the node, and lets users
// publish new records.
type RecordsHandler struct {
	records    Records
	publisher  Publisher
	marshaller *record.BlobMarshaller
}

func NewRecordsHandler(
	records Records,
	publisher Publisher,
	marshaller *record.BlobMarshaller,
) *RecordsHandler {
	return &RecordsHandler{
		records:    records,
		publisher:  publisher,
		marshaller: marshaller,
	}
}

func (h *RecordsHandler) Register(group *gin.RouterGroup) {
	group.GET("", h.listRoute)
	group.GET("/:id", h.getRoute)
	group.POST("", h.publishRoute)
}

func (h *RecordsHandler) listRoute(c *gin.Context) {
	records := []RecordMeta{}
	h.records.Iterate(func(b *record.Blob) bool {
		records = append(records, RecordMeta{
			ID:   b.GossipID(),
			Size: b.Size(),
		})
		return true
	})
	c.JSON(http.StatusOK, records)
}

func (h *RecordsHandler) getRoute(c *gin.Context) {
	id, err := gossip.ParseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	b, ok := h.records.Get(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
		return
	}
	c.JSON(http.StatusOK, Record{
		ID:      b.GossipID(),
		Payload: b.Payload(),
	})
}

func (h *RecordsHandler) publishRoute(c *gin.Context) {
	// Reading one byte past the max size is enough for the blob to fail
	// verification.
	body := http.MaxBytesReader(
		c.Writer, c.Request.Body, int64(h.marshaller.MaxSize())+1,
	)
	payload, err := io.ReadAll(body)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "payload too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "read body: " + err.Error()})
		return
	}

	b := h.marshaller.NewBlob(payload)
	if err := h.records.Add(b); err != nil {
		switch {
		case errors.Is(err, gossip.ErrSerialization):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, gossip.ErrCapacity):
			c.JSON(http.StatusInsufficientStorage, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	h.publisher.Add(b)

	c.JSON(http.StatusCreated, RecordMeta{
		ID:   b.GossipID(),
		Size: b.Size(),
	})
}

var _ Handler = &RecordsHandler{}
