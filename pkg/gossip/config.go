package gossip

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

const (
	defaultTargetResponseSize = 64 * 1024
)

type Config struct {
	// Frequency is the interval between gossip rounds.
	Frequency time.Duration `json:"frequency" yaml:"frequency"`

	// PollSize is the number of peers to request missing records from each
	// round. A poll size of 0 disables pulling.
	PollSize int `json:"poll_size" yaml:"poll_size"`

	// ProtocolID identifies the record type when multiple gossipers share
	// the same client.
	ProtocolID uint64 `json:"protocol_id" yaml:"protocol_id"`

	// RequestTimeout is the maximum duration to wait for peer responses in
	// a round. Defaults to Frequency.
	RequestTimeout time.Duration `json:"request_timeout" yaml:"request_timeout"`

	// TargetResponseSize is the number of bytes of records after which a
	// pull response stops adding records.
	TargetResponseSize int `json:"target_response_size" yaml:"target_response_size"`

	// PushFrequency is the interval between pushing locally added records.
	// Defaults to Frequency.
	PushFrequency time.Duration `json:"push_frequency" yaml:"push_frequency"`
}

func (c *Config) Validate() error {
	if c.Frequency <= 0 {
		return fmt.Errorf("%w: frequency must be positive", ErrConfig)
	}
	if c.PollSize < 0 {
		return fmt.Errorf("%w: poll size must not be negative", ErrConfig)
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("%w: request timeout must not be negative", ErrConfig)
	}
	if c.TargetResponseSize < 0 {
		return fmt.Errorf("%w: target response size must not be negative", ErrConfig)
	}
	if c.PushFrequency < 0 {
		return fmt.Errorf("%w: push frequency must not be negative", ErrConfig)
	}
	return nil
}

// MaxMessageSize returns an upper bound on the size of a pull response or
// push message, given the maximum size of a serialized record.
//
// Responses and pushes stop adding records before exceeding the target
// response size, except that a single record larger than the target is
// sent on its own.
func (c *Config) MaxMessageSize(maxRecordSize int) int {
	return c.targetResponseSize() + encodedRecordSize(maxRecordSize) + MaxMessageOverhead
}

func (c *Config) requestTimeout() time.Duration {
	if c.RequestTimeout == 0 {
		return c.Frequency
	}
	return c.RequestTimeout
}

func (c *Config) targetResponseSize() int {
	if c.TargetResponseSize == 0 {
		return defaultTargetResponseSize
	}
	return c.TargetResponseSize
}

func (c *Config) pushFrequency() time.Duration {
	if c.PushFrequency == 0 {
		return c.Frequency
	}
	return c.PushFrequency
}

// RegisterFlags registers the gossip flags with the given prefix, such as
// a prefix of 'blobs.' registers '--blobs.gossip.frequency'.
func (c *Config) RegisterFlags(fs *pflag.FlagSet, prefix string) {
	prefix = prefix + "gossip."

	fs.DurationVar(
		&c.Frequency,
		prefix+"frequency",
		time.Second,
		`
The interval to initiate rounds of gossip.

Each round sends a summary of the known records to a sample of peers, which
respond with the records this node is missing.`,
	)
	fs.IntVar(
		&c.PollSize,
		prefix+"poll-size",
		2,
		`
The number of peers to request missing records from each round.

Setting the poll size to 0 disables pulling records from peers.`,
	)
	fs.Uint64Var(
		&c.ProtocolID,
		prefix+"protocol-id",
		0,
		`
The protocol ID used to route gossip messages to the record set.

All nodes gossiping the same record type must use the same protocol ID.`,
	)
	fs.DurationVar(
		&c.RequestTimeout,
		prefix+"request-timeout",
		0,
		`
The maximum duration to wait for peers to respond in a gossip round.

Defaults to the gossip frequency.`,
	)
	fs.IntVar(
		&c.TargetResponseSize,
		prefix+"target-response-size",
		defaultTargetResponseSize,
		`
The target size in bytes of records included in a response to a peer.

Once the response exceeds the target size no more records are added, so the
peer will receive the remaining records in later rounds.`,
	)
	fs.DurationVar(
		&c.PushFrequency,
		prefix+"push-frequency",
		0,
		`
The interval to push locally added records to peers.

Defaults to the gossip frequency.`,
	)
}
