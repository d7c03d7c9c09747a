// Package gossip implements push-pull anti-entropy gossip of application
// records.
//
// Records are opaque to the package beyond a stable ID. Each node keeps a
// Set of known records per record type. On each round, a Gossiper sends a
// salted bloom filter summarising its set to a sample of peers, which respond
// with the records the filter doesn't contain. Locally produced records are
// also pushed to peers by a PushGossiper.
//
// Gossip is best-effort. Records are delivered at least once with no ordering
// guarantees, and lost messages are corrected by later rounds.
package gossip
