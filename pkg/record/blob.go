// Package record contains record types that can be gossiped.
package record

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"slices"

	"github.com/andydunstall/spread/pkg/gossip"
)

// DefaultMaxBlobSize is the default maximum payload size of a blob.
const DefaultMaxBlobSize = 64 * 1024

var (
	ErrEmpty    = errors.New("empty payload")
	ErrTooLarge = errors.New("payload too large")
)

// Blob is an opaque payload identified by the SHA-256 hash of its contents,
// so publishing the same payload on multiple nodes produces the same
// record.
type Blob struct {
	id      gossip.ID
	payload []byte
	maxSize int
}

func NewBlob(payload []byte) *Blob {
	return newBlob(payload, DefaultMaxBlobSize)
}

func newBlob(payload []byte, maxSize int) *Blob {
	return &Blob{
		id:      sha256.Sum256(payload),
		payload: slices.Clone(payload),
		maxSize: maxSize,
	}
}

func (b *Blob) GossipID() gossip.ID {
	return b.id
}

// Payload returns the blob contents. The returned slice must not be
// modified.
func (b *Blob) Payload() []byte {
	return b.payload
}

func (b *Blob) Size() int {
	return len(b.payload)
}

func (b *Blob) Verify() error {
	if len(b.payload) == 0 {
		return ErrEmpty
	}
	if len(b.payload) > b.maxSize {
		return fmt.Errorf("%w: %d > %d", ErrTooLarge, len(b.payload), b.maxSize)
	}
	return nil
}

// BlobMarshaller encodes a blob as its raw payload.
type BlobMarshaller struct {
	maxSize int
}

// NewBlobMarshaller returns a marshaller that rejects payloads larger than
// maxSize. If maxSize is 0 DefaultMaxBlobSize is used.
func NewBlobMarshaller(maxSize int) *BlobMarshaller {
	if maxSize == 0 {
		maxSize = DefaultMaxBlobSize
	}
	return &BlobMarshaller{
		maxSize: maxSize,
	}
}

// NewBlob returns a blob with the marshallers maximum size.
func (m *BlobMarshaller) NewBlob(payload []byte) *Blob {
	return newBlob(payload, m.maxSize)
}

func (m *BlobMarshaller) MaxSize() int {
	return m.maxSize
}

func (m *BlobMarshaller) MarshalGossip(b *Blob) ([]byte, error) {
	if len(b.payload) > m.maxSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooLarge, len(b.payload), m.maxSize)
	}
	return b.payload, nil
}

func (m *BlobMarshaller) UnmarshalGossip(b []byte) (*Blob, error) {
	if len(b) == 0 {
		return nil, ErrEmpty
	}
	if len(b) > m.maxSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooLarge, len(b), m.maxSize)
	}
	return newBlob(b, m.maxSize), nil
}

var _ gossip.Record = &Blob{}
var _ gossip.Verifier = &Blob{}
var _ gossip.Marshaller[*Blob] = &BlobMarshaller{}
