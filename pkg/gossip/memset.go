package gossip

import (
	"container/list"
	"fmt"
	"sync"
)

type memorySetOptions struct {
	capacity          int
	eviction          bool
	falsePositiveRate float64
}

type MemorySetOption interface {
	apply(*memorySetOptions)
}

type capacityOption int

func (o capacityOption) apply(opts *memorySetOptions) {
	opts.capacity = int(o)
}

// WithCapacity bounds the number of records in the set. A capacity of 0
// means the set is unbounded.
func WithCapacity(capacity int) MemorySetOption {
	return capacityOption(capacity)
}

type evictionOption bool

func (o evictionOption) apply(opts *memorySetOptions) {
	opts.eviction = bool(o)
}

// WithEviction configures a bounded set to evict its oldest record when
// full, rather than rejecting new records with ErrCapacity.
func WithEviction() MemorySetOption {
	return evictionOption(true)
}

type falsePositiveRateOption float64

func (o falsePositiveRateOption) apply(opts *memorySetOptions) {
	opts.falsePositiveRate = float64(o)
}

// WithFalsePositiveRate sets the target false positive rate of the filters
// returned by GetFilter.
func WithFalsePositiveRate(rate float64) MemorySetOption {
	return falsePositiveRateOption(rate)
}

// MemorySet is an in-memory Set.
//
// Records are kept in insertion order so when the set is bounded with
// eviction enabled the oldest record is evicted first.
type MemorySet[T Record] struct {
	// records contains the list element for each record, where the element
	// value is the record.
	records map[ID]*list.Element
	// order contains the records ordered oldest first.
	order *list.List

	// mu protects the above fields.
	mu sync.RWMutex

	marshaller Marshaller[T]
	options    memorySetOptions
}

// NewMemorySet returns an empty set. The marshaller is used to validate
// records are serializable before they are added.
func NewMemorySet[T Record](
	marshaller Marshaller[T],
	opts ...MemorySetOption,
) (*MemorySet[T], error) {
	options := memorySetOptions{
		falsePositiveRate: defaultFalsePositiveRate,
	}
	for _, o := range opts {
		o.apply(&options)
	}

	if options.capacity < 0 {
		return nil, fmt.Errorf("%w: capacity must not be negative", ErrConfig)
	}
	if options.falsePositiveRate <= 0 || options.falsePositiveRate >= 1 {
		return nil, fmt.Errorf(
			"%w: false positive rate must be between 0 and 1", ErrConfig,
		)
	}

	return &MemorySet[T]{
		records:    make(map[ID]*list.Element),
		order:      list.New(),
		marshaller: marshaller,
		options:    options,
	}, nil
}

func (s *MemorySet[T]) Add(record T) error {
	if v, ok := any(record).(Verifier); ok {
		if err := v.Verify(); err != nil {
			return fmt.Errorf("%w: verify: %w", ErrSerialization, err)
		}
	}
	if _, err := s.marshaller.MarshalGossip(record); err != nil {
		return fmt.Errorf("%w: marshal: %w", ErrSerialization, err)
	}

	id := record.GossipID()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[id]; ok {
		return nil
	}

	if s.options.capacity > 0 && len(s.records) >= s.options.capacity {
		if !s.options.eviction {
			return ErrCapacity
		}
		s.evictOldestLocked()
	}

	s.records[id] = s.order.PushBack(record)
	return nil
}

func (s *MemorySet[T]) Iterate(f func(record T) bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for e := s.order.Front(); e != nil; e = e.Next() {
		if !f(e.Value.(T)) {
			return
		}
	}
}

func (s *MemorySet[T]) GetFilter() ([]byte, []byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.records) != s.order.Len() {
		return nil, nil, fmt.Errorf(
			"%w: index size %d does not match record count %d",
			ErrFilterBuild, len(s.records), s.order.Len(),
		)
	}

	filter, err := NewFilter(len(s.records), s.options.falsePositiveRate)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrFilterBuild, err)
	}
	for id := range s.records {
		filter.Add(id)
	}

	b, salt, err := filter.Marshal()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrFilterBuild, err)
	}
	return b, salt, nil
}

// Get returns the record with the given ID.
func (s *MemorySet[T]) Get(id ID) (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.records[id]
	if !ok {
		var zero T
		return zero, false
	}
	return e.Value.(T), true
}

func (s *MemorySet[T]) Has(id ID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.records[id]
	return ok
}

func (s *MemorySet[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.records)
}

func (s *MemorySet[T]) evictOldestLocked() {
	e := s.order.Front()
	if e == nil {
		return
	}
	s.order.Remove(e)
	delete(s.records, e.Value.(T).GossipID())
}

var _ Set[Record] = &MemorySet[Record]{}
