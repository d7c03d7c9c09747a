package gossip

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/andydunstall/spread/pkg/log"
)

// PushGossiper pushes records produced locally to peers.
//
// Records are queued with Add and sent in batches every PushFrequency.
// Pushing is best effort, so a peer that misses a push will pull the
// record in a later pull round instead.
type PushGossiper[T Record] struct {
	config     Config
	client     Client
	marshaller Marshaller[T]
	specific   bool

	pending []T
	mu      sync.Mutex

	protocol string
	metrics  *Metrics
	logger   log.Logger
}

func NewPushGossiper[T Record](
	config Config,
	client Client,
	marshaller Marshaller[T],
	logger log.Logger,
	opts ...Option,
) (*PushGossiper[T], error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	options := applyOptions(opts)
	protocol := strconv.FormatUint(config.ProtocolID, 10)
	return &PushGossiper[T]{
		config:     config,
		client:     client,
		marshaller: marshaller,
		specific:   options.specific,
		protocol:   protocol,
		metrics:    options.metrics,
		logger: logger.WithSubsystem("gossip").With(
			zap.String("protocol", protocol),
		),
	}, nil
}

// Add queues the records to be pushed.
func (g *PushGossiper[T]) Add(records ...T) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.pending = append(g.pending, records...)
}

// Pending returns the number of queued records.
func (g *PushGossiper[T]) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	return len(g.pending)
}

// Push sends queued records to peers, up to TargetResponseSize bytes.
// Records that don't fit remain queued for the next push.
//
// Records are removed from the queue whether or not the push succeeds.
func (g *PushGossiper[T]) Push(ctx context.Context) error {
	var p push
	size := 0

	g.mu.Lock()
	n := 0
	for _, record := range g.pending {
		if size >= g.config.targetResponseSize() {
			break
		}

		b, err := g.marshaller.MarshalGossip(record)
		if err != nil {
			n++
			g.logger.Warn(
				"failed to marshal record",
				zap.String("id", record.GossipID().String()),
				zap.Error(err),
			)
			continue
		}
		recordSize := encodedRecordSize(len(b))
		if len(p.Records) > 0 && size+recordSize > g.config.targetResponseSize() {
			break
		}
		n++
		p.Records = append(p.Records, b)
		size += recordSize
	}
	g.pending = g.pending[n:]
	g.mu.Unlock()

	if len(p.Records) == 0 {
		return nil
	}

	msg, err := encodeMessage(messageTypePush, &p)
	if err != nil {
		return err
	}
	msg = PrefixMessage(g.config.ProtocolID, msg)

	if g.specific {
		err = g.client.GossipSpecific(ctx, msg)
	} else {
		err = g.client.Gossip(ctx, msg)
	}
	if err != nil {
		return fmt.Errorf("gossip: %w", err)
	}

	g.metrics.RecordsPushedTotal.WithLabelValues(g.protocol).Add(
		float64(len(p.Records)),
	)
	g.logger.Debug("pushed records", zap.Int("records", len(p.Records)))
	return nil
}

// Run pushes queued records every PushFrequency until the context is
// cancelled.
func (g *PushGossiper[T]) Run(ctx context.Context) error {
	ticker := time.NewTicker(g.config.pushFrequency())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if ctx.Err() != nil {
				return nil
			}
			g.push(ctx)
		}
	}
}

func (g *PushGossiper[T]) push(ctx context.Context) {
	ctx, cancel := context.WithTimeout(
		context.WithoutCancel(ctx), g.config.requestTimeout(),
	)
	defer cancel()

	if err := g.Push(ctx); err != nil {
		g.logger.Warn("failed to push records", zap.Error(err))
	}
}
