package gossip

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/andydunstall/spread/pkg/log"
)

// SetHandler handles gossip messages from peers for a single record set.
//
// Pull requests are answered with the records in the set whose IDs are
// absent from the requesters filter, up to the configured target response
// size. Pushed records are added to the set.
type SetHandler[T Record] struct {
	set        Set[T]
	marshaller Marshaller[T]

	targetResponseSize int

	ingester *ingester[T]

	protocol string
	metrics  *Metrics
	logger   log.Logger
}

func NewSetHandler[T Record](
	config Config,
	set Set[T],
	marshaller Marshaller[T],
	logger log.Logger,
	opts ...Option,
) *SetHandler[T] {
	options := applyOptions(opts)
	protocol := strconv.FormatUint(config.ProtocolID, 10)
	logger = logger.WithSubsystem("gossip").With(
		zap.String("protocol", protocol),
	)
	return &SetHandler[T]{
		set:                set,
		marshaller:         marshaller,
		targetResponseSize: config.targetResponseSize(),
		ingester: &ingester[T]{
			set:        set,
			marshaller: marshaller,
			protocol:   protocol,
			metrics:    options.metrics,
			logger:     logger,
		},
		protocol: protocol,
		metrics:  options.metrics,
		logger:   logger,
	}
}

func (h *SetHandler[T]) HandleRequest(
	_ context.Context,
	peer PeerID,
	request []byte,
) ([]byte, error) {
	h.metrics.InboundMessagesTotal.WithLabelValues(
		h.protocol, messageTypePullRequest.String(),
	).Inc()

	var req pullRequest
	if err := decodeMessage(request, messageTypePullRequest, &req); err != nil {
		return nil, err
	}
	filter, err := ParseFilter(req.Filter, req.Salt)
	if err != nil {
		return nil, fmt.Errorf("parse filter: %w", err)
	}

	var resp pullResponse
	size := 0
	h.set.Iterate(func(record T) bool {
		if filter.Has(record.GossipID()) {
			return true
		}

		b, err := h.marshaller.MarshalGossip(record)
		if err != nil {
			h.logger.Warn(
				"failed to marshal record",
				zap.String("id", record.GossipID().String()),
				zap.Error(err),
			)
			return true
		}
		n := encodedRecordSize(len(b))
		if len(resp.Records) > 0 && size+n > h.targetResponseSize {
			return false
		}
		resp.Records = append(resp.Records, b)
		size += n
		return size < h.targetResponseSize
	})

	h.metrics.ResponseRecords.WithLabelValues(h.protocol).Observe(
		float64(len(resp.Records)),
	)
	h.logger.Debug(
		"pull request",
		zap.String("peer", string(peer)),
		zap.Int("records", len(resp.Records)),
		zap.Int("size", size),
	)

	return encodeMessage(messageTypePullResponse, &resp)
}

func (h *SetHandler[T]) HandleGossip(
	_ context.Context,
	peer PeerID,
	msg []byte,
) error {
	h.metrics.InboundMessagesTotal.WithLabelValues(
		h.protocol, messageTypePush.String(),
	).Inc()

	var p push
	if err := decodeMessage(msg, messageTypePush, &p); err != nil {
		return err
	}

	added := h.ingester.Ingest(p.Records)
	h.logger.Debug(
		"push",
		zap.String("peer", string(peer)),
		zap.Int("records", len(p.Records)),
		zap.Int("added", added),
	)
	return nil
}

// ingester adds serialized records received from peers to the set.
//
// Records that can't be decoded or added are logged and discarded.
type ingester[T Record] struct {
	set        Set[T]
	marshaller Marshaller[T]

	protocol string
	metrics  *Metrics
	logger   log.Logger
}

// Ingest adds the records to the set and returns the number of records that
// were not already in the set.
func (i *ingester[T]) Ingest(records [][]byte) int {
	has, _ := i.set.(interface{ Has(id ID) bool })

	added := 0
	for _, b := range records {
		record, err := i.marshaller.UnmarshalGossip(b)
		if err != nil {
			i.drop("unmarshal", err)
			continue
		}
		if has != nil && has.Has(record.GossipID()) {
			i.metrics.RecordsDroppedTotal.WithLabelValues(
				i.protocol, "duplicate",
			).Inc()
			continue
		}

		if err := i.set.Add(record); err != nil {
			reason := "add"
			switch {
			case errors.Is(err, ErrSerialization):
				reason = "invalid"
			case errors.Is(err, ErrCapacity):
				reason = "capacity"
			}
			i.drop(reason, err)
			continue
		}

		added++
		i.metrics.RecordsIngestedTotal.WithLabelValues(i.protocol).Inc()
	}
	return added
}

func (i *ingester[T]) drop(reason string, err error) {
	i.metrics.RecordsDroppedTotal.WithLabelValues(i.protocol, reason).Inc()
	i.logger.Debug(
		"discarded record",
		zap.String("reason", reason),
		zap.Error(err),
	)
}

var _ PeerHandler = &SetHandler[Record]{}
