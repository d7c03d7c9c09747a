package transport

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	// ConnectedPeers is the number of connected peers.
	ConnectedPeers prometheus.Gauge

	// HandshakesTotal is the number of connection handshakes, labelled by
	// direction and result.
	HandshakesTotal *prometheus.CounterVec

	// MessagesSentTotal is the number of messages sent to peers, labelled by
	// RPC type.
	MessagesSentTotal *prometheus.CounterVec

	// MessagesFailedTotal is the number of messages that failed to be sent
	// to peers or did not receive a response, labelled by RPC type.
	MessagesFailedTotal *prometheus.CounterVec

	// MessagesReceivedTotal is the number of messages received from peers,
	// labelled by RPC type.
	MessagesReceivedTotal *prometheus.CounterVec

	// RequestLatency is the latency of requests to peers.
	RequestLatency prometheus.Histogram
}

func NewMetrics() *Metrics {
	return &Metrics{
		ConnectedPeers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "spread",
				Subsystem: "transport",
				Name:      "connected_peers",
				Help:      "Number of connected peers",
			},
		),
		HandshakesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "spread",
				Subsystem: "transport",
				Name:      "handshakes_total",
				Help:      "Peer connection handshakes",
			},
			[]string{"direction", "result"},
		),
		MessagesSentTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "spread",
				Subsystem: "transport",
				Name:      "messages_sent_total",
				Help:      "Messages sent to peers",
			},
			[]string{"type"},
		),
		MessagesFailedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "spread",
				Subsystem: "transport",
				Name:      "messages_failed_total",
				Help:      "Messages that failed to be sent to peers",
			},
			[]string{"type"},
		),
		MessagesReceivedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "spread",
				Subsystem: "transport",
				Name:      "messages_received_total",
				Help:      "Messages received from peers",
			},
			[]string{"type"},
		),
		RequestLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "spread",
				Subsystem: "transport",
				Name:      "request_latency_seconds",
				Help:      "Latency of requests to peers",
				Buckets:   prometheus.DefBuckets,
			},
		),
	}
}

func (m *Metrics) Register(registry *prometheus.Registry) {
	registry.MustRegister(
		m.ConnectedPeers,
		m.HandshakesTotal,
		m.MessagesSentTotal,
		m.MessagesFailedTotal,
		m.MessagesReceivedTotal,
		m.RequestLatency,
	)
}
