package gossip

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"slices"

	"github.com/bits-and-blooms/bloom/v3"
)

const (
	// SaltSize is the size of the random salt added to each filter.
	SaltSize = 32

	// minFilterCapacity is the minimum number of expected entries when
	// sizing a filter.
	minFilterCapacity = 64

	// maxFilterHashes is the maximum number of hash functions accepted in a
	// filter received from a peer.
	maxFilterHashes = 64

	// filterHeaderSize is the encoded size of the filter 'm' and 'k'
	// parameters, followed by the bitset length.
	filterHeaderSize = 24

	defaultFalsePositiveRate = 0.01
)

// Filter is a salted bloom filter summarising a set of record IDs.
//
// Each ID is hashed along with a random salt, so filters from different
// calls can't be compared to one another, and a record ID that collides in
// one filter is unlikely to collide in the next.
//
// A filter never reports a false negative.
type Filter struct {
	filter *bloom.BloomFilter
	salt   []byte
}

// NewFilter returns an empty filter with a new random salt, sized for the
// given number of IDs at the given false positive rate.
func NewFilter(capacity int, falsePositiveRate float64) (*Filter, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("salt: %w", err)
	}

	if capacity < minFilterCapacity {
		capacity = minFilterCapacity
	}
	return &Filter{
		filter: bloom.NewWithEstimates(uint(capacity), falsePositiveRate),
		salt:   salt,
	}, nil
}

// FilterSize returns the encoded size in bytes of a filter sized for the
// given number of IDs, excluding the salt.
func FilterSize(capacity int, falsePositiveRate float64) int {
	if capacity < minFilterCapacity {
		capacity = minFilterCapacity
	}
	m, _ := bloom.EstimateParameters(uint(capacity), falsePositiveRate)
	return filterHeaderSize + int((m+63)/64)*8
}

// ParseFilter parses a filter received from a peer.
func ParseFilter(filter []byte, salt []byte) (*Filter, error) {
	if len(salt) != SaltSize {
		return nil, fmt.Errorf("invalid salt size: %d", len(salt))
	}
	if len(filter) < filterHeaderSize {
		return nil, fmt.Errorf("filter too small: %d", len(filter))
	}

	// Check the header before decoding, since the decoder allocates the
	// filter based on the encoded size.
	m := binary.BigEndian.Uint64(filter[0:8])
	k := binary.BigEndian.Uint64(filter[8:16])
	if m == 0 || m > uint64(len(filter))*8 {
		return nil, fmt.Errorf("invalid filter size: %d", m)
	}
	if k == 0 || k > maxFilterHashes {
		return nil, fmt.Errorf("invalid filter hashes: %d", k)
	}
	if n := binary.BigEndian.Uint64(filter[16:24]); n != m {
		return nil, fmt.Errorf("invalid filter bitset size: %d", n)
	}

	var f bloom.BloomFilter
	if _, err := f.ReadFrom(bytes.NewReader(filter)); err != nil {
		return nil, fmt.Errorf("decode filter: %w", err)
	}
	return &Filter{
		filter: &f,
		salt:   slices.Clone(salt),
	}, nil
}

func (f *Filter) Add(id ID) {
	f.filter.Add(f.key(id))
}

// Has returns true if the ID may be in the filter, or false if the ID is
// definitely not in the filter.
func (f *Filter) Has(id ID) bool {
	return f.filter.Test(f.key(id))
}

// Marshal returns the encoded filter and its salt.
func (f *Filter) Marshal() ([]byte, []byte, error) {
	var buf bytes.Buffer
	if _, err := f.filter.WriteTo(&buf); err != nil {
		return nil, nil, fmt.Errorf("encode filter: %w", err)
	}
	return buf.Bytes(), slices.Clone(f.salt), nil
}

func (f *Filter) key(id ID) []byte {
	k := make([]byte, 0, len(f.salt)+IDSize)
	k = append(k, f.salt...)
	return append(k, id[:]...)
}
