package gossip

import (
	"encoding/hex"
	"fmt"
)

// IDSize is the size of a record ID in bytes.
const IDSize = 32

// ID uniquely identifies a record. Records with the same ID are considered
// duplicates.
type ID [IDSize]byte

// ParseID parses the hex encoded ID.
func ParseID(s string) (ID, error) {
	var id ID
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("invalid id: %w", err)
	}
	if len(b) != IDSize {
		return id, fmt.Errorf("invalid id: bad length: %d", len(b))
	}
	copy(id[:], b)
	return id, nil
}

func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *ID) UnmarshalText(b []byte) error {
	parsed, err := ParseID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Record is a unit of application data that can be gossiped.
//
// Once a record is added to a Set it must not be modified.
type Record interface {
	// GossipID returns the records stable unique identifier.
	GossipID() ID
}

// Marshaller serializes and deserializes a concrete record type.
type Marshaller[T Record] interface {
	MarshalGossip(record T) ([]byte, error)
	UnmarshalGossip(b []byte) (T, error)
}

// Verifier may be implemented by records to validate their own contents
// before they are added to a set.
type Verifier interface {
	Verify() error
}
