package cache

// Cache is a sharded, in-memory byte cache.
// All methods are safe for concurrent use by multiple goroutines.
//
// Keys are identified by their 64-bit FNV-1a hash only: two distinct keys
// with the same hash address the same entry.
//
// Every operation locks exactly one shard. Get and Set cost a map lookup plus
// a copy of the value across the blocks that hold it.
type Cache interface {
	// Set stores a copy of value under key. The entry expires after
	// Options.Expire. An existing key yields ErrKeyExists unless
	// Options.ForceSet is on, in which case the old value is replaced.
	// A shard without room yields ErrNoSpace; nothing is evicted to make room.
	Set(key string, value []byte) error

	// Get copies the value of key into buf and returns its length.
	// It fails with ErrKeyNotFound, ErrKeyExpired or ErrBufferTooSmall.
	Get(key string, buf []byte) (int, error)

	// Fetch returns a newly allocated copy of the value of key.
	Fetch(key string) ([]byte, error)

	// Evict removes key immediately. It fails with ErrKeyNotFound when the
	// key is absent, including when it was already collected.
	Evict(key string) error

	// Len returns the number of stored entries across all shards, expired but
	// not yet collected ones included.
	Len() int

	// Stats returns per-shard and aggregate usage counters.
	Stats() Stats

	// Vacuum compacts every shard now, independent of the vacuum supervisor.
	Vacuum() VacuumStats

	// Close stops both supervisors, waits for them to exit and releases all
	// memory. Every later call fails with ErrClosed. Close is idempotent.
	Close() error
}
