package gossip

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/andydunstall/spread/pkg/log"
)

type State int32

const (
	// StateIdle means the gossiper has not yet been started.
	StateIdle State = iota
	// StateRunning means the gossiper is running rounds of gossip.
	StateRunning
	// StateStopped means the gossiper has stopped and cannot be restarted.
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Gossiper periodically pulls the records missing from the local set from
// a sample of peers.
//
// Each round sends a bloom filter of the local records to up to PollSize
// peers, which respond with the records absent from the filter. Received
// records are added to the local set.
type Gossiper[T Record] struct {
	config Config

	set    Set[T]
	client Client

	ingester *ingester[T]

	state *atomic.Int32

	protocol string
	metrics  *Metrics
	logger   log.Logger
}

// NewGossiper returns a gossiper in the idle state. Returns ErrConfig if the
// config is invalid.
func NewGossiper[T Record](
	config Config,
	set Set[T],
	client Client,
	marshaller Marshaller[T],
	logger log.Logger,
	opts ...Option,
) (*Gossiper[T], error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	options := applyOptions(opts)
	protocol := strconv.FormatUint(config.ProtocolID, 10)
	logger = logger.WithSubsystem("gossip").With(
		zap.String("protocol", protocol),
	)
	return &Gossiper[T]{
		config: config,
		set:    set,
		client: client,
		ingester: &ingester[T]{
			set:        set,
			marshaller: marshaller,
			protocol:   protocol,
			metrics:    options.metrics,
			logger:     logger,
		},
		state:    atomic.NewInt32(int32(StateIdle)),
		protocol: protocol,
		metrics:  options.metrics,
		logger:   logger,
	}, nil
}

// Run runs a round of gossip every Frequency until the context is
// cancelled.
//
// Rounds are run sequentially. If a round takes longer than the gossip
// frequency, the next round starts as soon as the previous completes,
// though missed rounds are not made up.
//
// Once the context is cancelled no new rounds are started, though an
// in-progress round will complete (bounded by RequestTimeout). Run then
// returns nil.
//
// Returns ErrNotIdle if the gossiper has already been started.
func (g *Gossiper[T]) Run(ctx context.Context) error {
	if !g.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return ErrNotIdle
	}
	defer g.state.Store(int32(StateStopped))

	g.logger.Info(
		"starting gossiper",
		zap.Duration("frequency", g.config.Frequency),
		zap.Int("poll-size", g.config.PollSize),
	)

	ticker := time.NewTicker(g.config.Frequency)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			g.logger.Info("gossiper stopped")
			return nil
		case <-ticker.C:
			// Both cases may be ready, so check for cancellation before
			// starting a new round.
			if ctx.Err() != nil {
				g.logger.Info("gossiper stopped")
				return nil
			}
			g.round(ctx)
		}
	}
}

// Gossip runs a single round of gossip.
//
// Returns an error only if the local filter could not be built. Failures
// to reach peers, and invalid records received from peers, are logged and
// discarded.
func (g *Gossiper[T]) Gossip(ctx context.Context) error {
	filter, salt, err := g.set.GetFilter()
	if err != nil {
		return fmt.Errorf("get filter: %w", err)
	}

	if g.config.PollSize == 0 {
		return nil
	}

	request, err := encodeMessage(messageTypePullRequest, &pullRequest{
		Filter: filter,
		Salt:   salt,
	})
	if err != nil {
		return err
	}
	request = PrefixMessage(g.config.ProtocolID, request)

	responses := make([]<-chan []byte, 0, g.config.PollSize)
	for i := 0; i != g.config.PollSize; i++ {
		ch, err := g.client.RequestAny(ctx, request)
		if err != nil {
			g.metrics.PeerRequestsTotal.WithLabelValues(
				g.protocol, "error",
			).Inc()
			g.logger.Warn("failed to send pull request", zap.Error(err))
			break
		}
		responses = append(responses, ch)
	}

	var group errgroup.Group
	for _, ch := range responses {
		group.Go(func() error {
			g.awaitResponse(ctx, ch)
			return nil
		})
	}
	// awaitResponse never returns an error.
	_ = group.Wait()

	return nil
}

// State returns the gossipers current state.
func (g *Gossiper[T]) State() State {
	return State(g.state.Load())
}

func (g *Gossiper[T]) Config() Config {
	return g.config
}

func (g *Gossiper[T]) round(ctx context.Context) {
	// Complete the round even if the context is cancelled mid-round.
	ctx, cancel := context.WithTimeout(
		context.WithoutCancel(ctx), g.config.requestTimeout(),
	)
	defer cancel()

	start := time.Now()
	g.logger.Debug("gossip round started")

	if err := g.Gossip(ctx); err != nil {
		g.metrics.RoundsTotal.WithLabelValues(g.protocol, "error").Inc()
		g.logger.Warn("gossip round failed", zap.Error(err))
		return
	}

	g.metrics.RoundsTotal.WithLabelValues(g.protocol, "ok").Inc()
	g.metrics.RoundLatency.WithLabelValues(g.protocol).Observe(
		time.Since(start).Seconds(),
	)
	g.logger.Debug(
		"gossip round completed",
		zap.Duration("latency", time.Since(start)),
	)
}

func (g *Gossiper[T]) awaitResponse(ctx context.Context, ch <-chan []byte) {
	var b []byte
	select {
	case resp, ok := <-ch:
		if !ok {
			g.metrics.PeerRequestsTotal.WithLabelValues(
				g.protocol, "timeout",
			).Inc()
			g.logger.Debug("pull request timed out")
			return
		}
		b = resp
	case <-ctx.Done():
		g.metrics.PeerRequestsTotal.WithLabelValues(
			g.protocol, "timeout",
		).Inc()
		g.logger.Debug("pull request timed out")
		return
	}

	var resp pullResponse
	if err := decodeMessage(b, messageTypePullResponse, &resp); err != nil {
		g.metrics.PeerRequestsTotal.WithLabelValues(
			g.protocol, "invalid",
		).Inc()
		g.logger.Warn("invalid pull response", zap.Error(err))
		return
	}
	g.metrics.PeerRequestsTotal.WithLabelValues(g.protocol, "ok").Inc()

	added := g.ingester.Ingest(resp.Records)
	g.logger.Debug(
		"pull response",
		zap.Int("records", len(resp.Records)),
		zap.Int("added", added),
	)
}
