package rpc

import "fmt"

// Type is an identifier for the RPC request/response type.
type Type uint16

const (
	// TypeHello exchanges node IDs when a connection is established.
	TypeHello Type = iota + 1
	// TypeRequest sends a request that expects a response, such as a gossip
	// pull request.
	TypeRequest
	// TypeMessage sends a one-way request.
	TypeMessage
	// TypeGossip sends a one-way gossip message.
	TypeGossip
)

func (t Type) String() string {
	switch t {
	case TypeHello:
		return "hello"
	case TypeRequest:
		return "request"
	case TypeMessage:
		return "message"
	case TypeGossip:
		return "gossip"
	default:
		return fmt.Sprintf("unknown(%d)", uint16(t))
	}
}
