package transport

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

type Config struct {
	// BindAddr is the address to bind to listen for connections from peers.
	BindAddr string `json:"bind_addr" yaml:"bind_addr"`

	// AdvertiseAddr is the address to advertise to peers.
	AdvertiseAddr string `json:"advertise_addr" yaml:"advertise_addr"`

	// Join contains a list of addresses of peers to connect to.
	Join []string `json:"join" yaml:"join"`

	// AbortIfJoinFails indicates whether the node should exit if it is
	// configured with peers to join but fails to connect to any.
	AbortIfJoinFails bool `json:"abort_if_join_fails" yaml:"abort_if_join_fails"`

	// JoinTimeout is the maximum duration to retry connecting to the peers
	// to join.
	JoinTimeout time.Duration `json:"join_timeout" yaml:"join_timeout"`

	// GossipSize is the number of random peers to send each gossip message
	// to.
	GossipSize int `json:"gossip_size" yaml:"gossip_size"`

	// RequestTimeout is the maximum duration to wait for a peer to respond
	// to a request.
	RequestTimeout time.Duration `json:"request_timeout" yaml:"request_timeout"`

	// HandshakeTimeout is the maximum duration to wait for a new connection
	// to complete the handshake.
	HandshakeTimeout time.Duration `json:"handshake_timeout" yaml:"handshake_timeout"`

	// MaxMessageSize is the maximum size of a message received from a peer.
	MaxMessageSize int64 `json:"max_message_size" yaml:"max_message_size"`
}

func (c *Config) Validate() error {
	if c.BindAddr == "" {
		return fmt.Errorf("missing bind addr")
	}
	if c.JoinTimeout <= 0 {
		return fmt.Errorf("missing join timeout")
	}
	if c.GossipSize <= 0 {
		return fmt.Errorf("gossip size must be positive")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("missing request timeout")
	}
	if c.HandshakeTimeout <= 0 {
		return fmt.Errorf("missing handshake timeout")
	}
	if c.MaxMessageSize <= 0 {
		return fmt.Errorf("missing max message size")
	}
	return nil
}

func (c *Config) RegisterFlags(fs *pflag.FlagSet) {
	fs.StringVar(
		&c.BindAddr,
		"peer.bind-addr",
		":7000",
		`
The host/port to listen for connections from peers.

If the host is unspecified it defaults to all listeners, such as
'--peer.bind-addr :7000' will listen on '0.0.0.0:7000'`,
	)
	fs.StringVar(
		&c.AdvertiseAddr,
		"peer.advertise-addr",
		"",
		`
Peer listen address to advertise to other nodes.

Such as if the listen address is ':7000', the advertised address may be
'10.26.104.45:7000' or 'node1.cluster:7000'.

By default, if the bind address includes an IP to bind to that will be used.
If the bind address does not include an IP (such as ':7000') the nodes
private IP will be used, such as a bind address of ':7000' may have an
advertise address of '10.26.104.14:7000'.`,
	)
	fs.StringSliceVar(
		&c.Join,
		"peer.join",
		nil,
		`
A list of addresses of peers to connect to.

Such as '--peer.join 10.26.104.14:7000,10.26.104.75:7000'.

Records propagate through the connected peers, so each node only needs to
connect to a subset of nodes, as long as the resulting network is
connected.`,
	)
	fs.BoolVar(
		&c.AbortIfJoinFails,
		"peer.abort-if-join-fails",
		true,
		`
Whether the node should abort if it is configured with peers to join but
fails to connect to any of them.`,
	)
	fs.DurationVar(
		&c.JoinTimeout,
		"peer.join-timeout",
		time.Minute,
		`
The maximum duration to retry connecting to the peers to join.

Peers that are unreachable are retried with backoff until the timeout.`,
	)
	fs.IntVar(
		&c.GossipSize,
		"peer.gossip-size",
		3,
		`
The number of random peers to send each gossip message to.`,
	)
	fs.DurationVar(
		&c.RequestTimeout,
		"peer.request-timeout",
		time.Second*5,
		`
The maximum duration to wait for a peer to respond to a request.`,
	)
	fs.DurationVar(
		&c.HandshakeTimeout,
		"peer.handshake-timeout",
		time.Second*10,
		`
The maximum duration to wait for a new peer connection to complete the
handshake.`,
	)
	fs.Int64Var(
		&c.MaxMessageSize,
		"peer.max-message-size",
		4*1024*1024,
		`
The maximum size of a message received from a peer in bytes.

Peers that send larger messages are disconnected.`,
	)
}
