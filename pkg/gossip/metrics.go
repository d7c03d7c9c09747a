package gossip

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	// RoundsTotal is the number of gossip rounds, labelled by protocol and
	// result.
	RoundsTotal *prometheus.CounterVec

	// RoundLatency is the duration of each gossip round.
	RoundLatency *prometheus.HistogramVec

	// PeerRequestsTotal is the number of pull requests sent to peers,
	// labelled by protocol and result.
	PeerRequestsTotal *prometheus.CounterVec

	// RecordsIngestedTotal is the number of new records received from
	// peers.
	RecordsIngestedTotal *prometheus.CounterVec

	// RecordsDroppedTotal is the number of records received from peers
	// that were discarded, labelled by protocol and reason.
	RecordsDroppedTotal *prometheus.CounterVec

	// RecordsPushedTotal is the number of records pushed to peers.
	RecordsPushedTotal *prometheus.CounterVec

	// InboundMessagesTotal is the number of messages received from peers,
	// labelled by protocol and message type.
	InboundMessagesTotal *prometheus.CounterVec

	// ResponseRecords is the number of records included in each pull
	// response to a peer.
	ResponseRecords *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		RoundsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "spread",
				Subsystem: "gossip",
				Name:      "rounds_total",
				Help:      "Gossip rounds",
			},
			[]string{"protocol", "result"},
		),
		RoundLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "spread",
				Subsystem: "gossip",
				Name:      "round_latency_seconds",
				Help:      "Gossip round latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"protocol"},
		),
		PeerRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "spread",
				Subsystem: "gossip",
				Name:      "peer_requests_total",
				Help:      "Pull requests sent to peers",
			},
			[]string{"protocol", "result"},
		),
		RecordsIngestedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "spread",
				Subsystem: "gossip",
				Name:      "records_ingested_total",
				Help:      "New records received from peers",
			},
			[]string{"protocol"},
		),
		RecordsDroppedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "spread",
				Subsystem: "gossip",
				Name:      "records_dropped_total",
				Help:      "Records received from peers that were discarded",
			},
			[]string{"protocol", "reason"},
		),
		RecordsPushedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "spread",
				Subsystem: "gossip",
				Name:      "records_pushed_total",
				Help:      "Records pushed to peers",
			},
			[]string{"protocol"},
		),
		InboundMessagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "spread",
				Subsystem: "gossip",
				Name:      "inbound_messages_total",
				Help:      "Messages received from peers",
			},
			[]string{"protocol", "type"},
		),
		ResponseRecords: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "spread",
				Subsystem: "gossip",
				Name:      "response_records",
				Help:      "Records included in each pull response",
				Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
			},
			[]string{"protocol"},
		),
	}
}

func (m *Metrics) Register(registry *prometheus.Registry) {
	registry.MustRegister(
		m.RoundsTotal,
		m.RoundLatency,
		m.PeerRequestsTotal,
		m.RecordsIngestedTotal,
		m.RecordsDroppedTotal,
		m.RecordsPushedTotal,
		m.InboundMessagesTotal,
		m.ResponseRecords,
	)
}
