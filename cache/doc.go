// Package cache provides a sharded in-memory byte cache with a fixed entry
// lifetime, an explicit capacity and background compaction.
//
// Design
//
//   - Concurrency: the key space is split into a power-of-two number of
//     shards (4..4096, 1024 by default), each protected by a Mutex. A key is
//     routed by masking its 64-bit FNV-1a hash with shards-1. Only the hash
//     is stored, so colliding keys share one entry.
//
//   - Storage: each shard owns an arena of pages, every page 10% of the
//     shard's capacity, reserved lazily. Values are copied into one or more
//     blocks taken from the front of a FIFO free list; leftovers and released
//     blocks go to its back. A value may therefore span several
//     non-contiguous blocks.
//
//   - Capacity: Set fails with ErrNoSpace when the shard would exceed its
//     share of MaxSize. Nothing is evicted to make room.
//
//   - Expiration: every entry lives for Options.Expire. Entries are grouped
//     in one-second buckets; the expiration supervisor evicts due buckets
//     every Expire period. Get on an expired but uncollected entry returns
//     ErrKeyExpired.
//
//   - Vacuum: every Options.Vacuum period the vacuum supervisor compacts each
//     shard. Live blocks slide to the start of the arena, adjacent blocks of
//     one entry are merged, the free list becomes one tail block and unused
//     trailing pages are released.
//
//   - Metrics: Options.Metrics receives Hit/Miss/Evict/Error signals from
//     client calls and Cycle/Size signals from the supervisors. NoopMetrics
//     is the default; metrics/prom exports them to Prometheus.
//
// Basic usage
//
//	c := cache.New(cache.Options{Shards: 16, MaxSize: 64 << 20, Expire: time.Minute})
//	defer c.Close()
//
//	if err := c.Set("a", []byte("1")); err != nil {
//	    // ErrKeyExists, ErrNoSpace, ...
//	}
//	buf := make([]byte, 64)
//	n, err := c.Get("a", buf)
//	if err == nil {
//	    _ = buf[:n]
//	}
//	_ = c.Evict("a")
//
// From a configuration file
//
//	cfg, err := config.Load("cache.jsonc")
//	if err != nil {
//	    return err
//	}
//	c := cache.NewFromConfig(cfg)
//
// Errors
//
// Every error returned by the cache matches one of the Err* sentinels with
// errors.Is, and KindOf maps it to a stable numeric ErrKind.
package cache
