package config

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/andydunstall/spread/pkg/gossip"
	"github.com/andydunstall/spread/pkg/log"
	"github.com/andydunstall/spread/pkg/record"
	"github.com/andydunstall/spread/pkg/transport"
)

type NodeConfig struct {
	// ID is a unique identifier for this node.
	ID string `json:"id" yaml:"id"`

	// IDPrefix is a node ID prefix, where the rest of the node ID is
	// generated to ensure uniqueness.
	IDPrefix string `json:"id_prefix" yaml:"id_prefix"`
}

func (c *NodeConfig) Validate() error {
	if c.ID != "" && c.IDPrefix != "" {
		return fmt.Errorf("cannot specify both node ID and node ID prefix")
	}
	return nil
}

type AdminConfig struct {
	// BindAddr is the address to bind to listen for incoming HTTP connections.
	BindAddr string `json:"bind_addr" yaml:"bind_addr"`
}

func (c *AdminConfig) Validate() error {
	if c.BindAddr == "" {
		return fmt.Errorf("missing bind addr")
	}
	return nil
}

type RecordsConfig struct {
	// MaxSize is the maximum size of a record payload in bytes.
	MaxSize int `json:"max_size" yaml:"max_size"`

	// Capacity is the maximum number of records stored by the node. A
	// capacity of 0 means the number of records is unbounded.
	Capacity int `json:"capacity" yaml:"capacity"`

	// Eviction indicates whether to evict the oldest record when the node
	// reaches capacity, rather than rejecting new records.
	Eviction bool `json:"eviction" yaml:"eviction"`

	// FalsePositiveRate is the target false positive rate of the bloom
	// filters sent to peers.
	FalsePositiveRate float64 `json:"false_positive_rate" yaml:"false_positive_rate"`
}

func (c *RecordsConfig) Validate() error {
	if c.MaxSize <= 0 {
		return fmt.Errorf("max size must be positive")
	}
	if c.Capacity < 0 {
		return fmt.Errorf("capacity must not be negative")
	}
	if c.FalsePositiveRate <= 0 || c.FalsePositiveRate >= 1 {
		return fmt.Errorf("false positive rate must be between 0 and 1")
	}
	return nil
}

type Config struct {
	Node    NodeConfig       `json:"node" yaml:"node"`
	Peer    transport.Config `json:"peer" yaml:"peer"`
	Admin   AdminConfig      `json:"admin" yaml:"admin"`
	Gossip  gossip.Config    `json:"gossip" yaml:"gossip"`
	Records RecordsConfig    `json:"records" yaml:"records"`
	Log     log.Config       `json:"log" yaml:"log"`

	// GracePeriod is the duration to gracefully shutdown the node.
	GracePeriod time.Duration `json:"grace_period" yaml:"grace_period"`
}

func (c *Config) Validate() error {
	if err := c.Node.Validate(); err != nil {
		return fmt.Errorf("node: %w", err)
	}
	if err := c.Peer.Validate(); err != nil {
		return fmt.Errorf("peer: %w", err)
	}
	if err := c.Admin.Validate(); err != nil {
		return fmt.Errorf("admin: %w", err)
	}
	if err := c.Gossip.Validate(); err != nil {
		return fmt.Errorf("gossip: %w", err)
	}
	if err := c.Records.Validate(); err != nil {
		return fmt.Errorf("records: %w", err)
	}
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("log: %w", err)
	}

	// A pull response or push carrying the largest record must fit in a
	// peer message, otherwise the receiving peer drops the connection.
	if size := c.Gossip.MaxMessageSize(c.Records.MaxSize); int64(size) > c.Peer.MaxMessageSize {
		return fmt.Errorf(
			"records max size and gossip target response size exceed peer max message size: %d > %d",
			size, c.Peer.MaxMessageSize,
		)
	}

	if c.Records.Capacity > 0 {
		filterSize := gossip.FilterSize(c.Records.Capacity, c.Records.FalsePositiveRate)
		if size := filterSize + gossip.SaltSize + gossip.MaxMessageOverhead; int64(size) > c.Peer.MaxMessageSize {
			return fmt.Errorf(
				"records capacity filter exceeds peer max message size: %d > %d",
				size, c.Peer.MaxMessageSize,
			)
		}
	}

	if c.GracePeriod == 0 {
		return fmt.Errorf("missing grace period")
	}

	return nil
}

func (c *Config) RegisterFlags(fs *pflag.FlagSet) {
	fs.StringVar(
		&c.Node.ID,
		"node.id",
		"",
		`
A unique identifier for the node.

By default a random ID will be generated for the node.`,
	)
	fs.StringVar(
		&c.Node.IDPrefix,
		"node.id-prefix",
		"",
		`
A prefix for the node ID.

A unique random identifier is generated for the node and appended to the
given prefix.

Such as you could use the node or pod name as a prefix, then add a unique
identifier to ensure the node ID is unique across restarts.`,
	)

	c.Peer.RegisterFlags(fs)

	fs.StringVar(
		&c.Admin.BindAddr,
		"admin.bind-addr",
		":7001",
		`
The host/port to listen for incoming admin connections.

If the host is unspecified it defaults to all listeners, such as
'--admin.bind-addr :7001' will listen on '0.0.0.0:7001'`,
	)

	c.Gossip.RegisterFlags(fs, "")

	fs.IntVar(
		&c.Records.MaxSize,
		"records.max-size",
		record.DefaultMaxBlobSize,
		`
The maximum size of a record payload in bytes.

Larger records are rejected, both when published to this node and when
received from peers.`,
	)
	fs.IntVar(
		&c.Records.Capacity,
		"records.capacity",
		0,
		`
The maximum number of records stored by the node.

A capacity of 0 means the number of records is unbounded.`,
	)
	fs.BoolVar(
		&c.Records.Eviction,
		"records.eviction",
		false,
		`
Whether to evict the oldest record when the node reaches capacity.

If disabled, new records are rejected once the node is at capacity.`,
	)
	fs.Float64Var(
		&c.Records.FalsePositiveRate,
		"records.false-positive-rate",
		0.01,
		`
The target false positive rate of the bloom filters sent to peers.

A false positive means a peer won't send a record this node is missing in
that round. Since each round uses a new random salt, the record will be
received in a later round. A lower rate uses larger filters.`,
	)

	c.Log.RegisterFlags(fs)

	fs.DurationVar(
		&c.GracePeriod,
		"grace-period",
		time.Second*30,
		`
Maximum duration after a shutdown signal is received (SIGTERM or
SIGINT) to gracefully shutdown the node before terminating.
This includes completing in-progress gossip rounds, handling in-progress
admin requests and closing peer connections.`,
	)
}
