package gossip

import (
	"errors"
	"fmt"
)

var (
	// ErrConfig indicates invalid construction parameters.
	ErrConfig = errors.New("invalid config")

	// ErrSerialization indicates a record could not be serialized or failed
	// validation.
	ErrSerialization = errors.New("serialization")

	// ErrCapacity indicates a bounded set is full.
	ErrCapacity = errors.New("set at capacity")

	// ErrFilterBuild indicates the set failed to build a filter.
	ErrFilterBuild = errors.New("filter build")

	// ErrTransport indicates the peer client could not be used.
	ErrTransport = errors.New("transport")

	// ErrNoPeers indicates there are no peers to send to.
	ErrNoPeers = fmt.Errorf("%w: no peers", ErrTransport)

	// ErrNotIdle is returned when running a gossiper that has already been
	// started.
	ErrNotIdle = errors.New("gossiper not idle")

	// ErrUnknownProtocol indicates a message for a protocol with no
	// registered handler.
	ErrUnknownProtocol = errors.New("unknown protocol")
)
