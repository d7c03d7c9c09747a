package gossip

// Set is a collection of unique records that can be summarised with a
// bloom filter.
//
// Implementations must be safe for concurrent use, as a set is shared
// between gossipers, the peer handler and the application.
type Set[T Record] interface {
	// Add adds the record to the set. Adding a record whose ID is already
	// in the set is a no-op.
	Add(record T) error

	// Iterate calls f for each record in the set, in an unspecified order,
	// until f returns false.
	Iterate(f func(record T) bool)

	// GetFilter returns a bloom filter containing the IDs of the records in
	// the set, and the salt used to hash the IDs. Each call uses a new
	// random salt.
	GetFilter() (filter []byte, salt []byte, err error)
}
