package cache

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/IvanBrykalov/arenacache/config"
	"github.com/IvanBrykalov/arenacache/internal/util"
)

// cache splits the key space over a power-of-two number of shards and runs
// the expiration and vacuum supervisors in the background.
type cache struct {
	shards []*shard
	closed atomic.Bool

	opt Options
	log *slog.Logger

	stop context.CancelFunc
	wg   sync.WaitGroup
}

// New constructs a cache with the provided Options and starts its
// supervisors. Invalid options never fail construction; see Options for the
// fallbacks applied.
func New(opt Options) Cache {
	log := opt.normalize()

	sh := opt.Shards
	perShard := uint64(opt.MaxSize) / uint64(sh)
	cs := make([]*shard, sh)
	for i := range cs {
		cs[i] = newShard(i, perShard, opt.Expire, opt.Clock, opt.Metrics, log)
	}

	c := &cache{
		shards: cs,
		opt:    opt,
		log:    log,
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.stop = cancel

	expire := newSupervisor(SupervisorExpire, opt.Expire, cs, func(s *shard) error {
		_, err := s.bulkExpire()
		return err
	}, opt.Metrics, log)
	expire.after = c.reportSize
	vacuum := newSupervisor(SupervisorVacuum, opt.Vacuum, cs, func(s *shard) error {
		_, err := s.vacuum()
		return err
	}, opt.Metrics, log)
	vacuum.after = c.reportSize
	c.start(ctx, expire, vacuum)

	log.Info("cache initialized",
		"shards", sh,
		"max_size", opt.MaxSize,
		"shard_size", perShard,
		"page_size", cs[0].arena.pageBytes,
		"force_set", opt.ForceSet,
		"expire", opt.Expire,
		"vacuum", opt.Vacuum)
	return c
}

// NewFromConfig constructs a cache from a parsed configuration object.
func NewFromConfig(cfg config.Config) Cache {
	return New(OptionsFromConfig(cfg))
}

func (c *cache) start(ctx context.Context, sups ...*supervisor) {
	for _, sv := range sups {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			sv.run(ctx)
		}()
	}
}

// ---- Cache implementation ----

// Set stores a copy of value under key.
func (c *cache) Set(key string, value []byte) error {
	if c.closed.Load() {
		return c.observe(ErrClosed)
	}
	h := util.Fnv64a(key)
	s, err := c.shardFor(h)
	if err != nil {
		return c.observe(err)
	}
	return c.observe(s.set(h, value, c.opt.ForceSet))
}

// Get copies the value of key into buf and returns its length.
func (c *cache) Get(key string, buf []byte) (int, error) {
	if c.closed.Load() {
		return 0, c.observe(ErrClosed)
	}
	h := util.Fnv64a(key)
	s, err := c.shardFor(h)
	if err != nil {
		return 0, c.observe(err)
	}
	n, err := s.get(h, buf)
	return n, c.observe(err)
}

// Fetch returns a fresh copy of the value of key.
func (c *cache) Fetch(key string) ([]byte, error) {
	if c.closed.Load() {
		return nil, c.observe(ErrClosed)
	}
	h := util.Fnv64a(key)
	s, err := c.shardFor(h)
	if err != nil {
		return nil, c.observe(err)
	}
	v, err := s.fetch(h)
	return v, c.observe(err)
}

// Evict removes key immediately.
func (c *cache) Evict(key string) error {
	if c.closed.Load() {
		return c.observe(ErrClosed)
	}
	h := util.Fnv64a(key)
	s, err := c.shardFor(h)
	if err != nil {
		return c.observe(err)
	}
	return c.observe(s.evict(h))
}

// Len returns the total number of stored entries across all shards.
func (c *cache) Len() int {
	total := 0
	for _, s := range c.shards {
		total += s.len()
	}
	return total
}

// Stats returns usage counters for every shard and their sum.
func (c *cache) Stats() Stats {
	st := Stats{Shards: len(c.shards), PerShard: make([]ShardStats, 0, len(c.shards))}
	for _, s := range c.shards {
		st.add(s.stats())
	}
	return st
}

// Vacuum compacts every shard, one at a time.
func (c *cache) Vacuum() VacuumStats {
	var total VacuumStats
	if c.closed.Load() {
		return total
	}
	for _, s := range c.shards {
		st, err := s.vacuum()
		if err != nil {
			c.log.Error("vacuum failed", "shard", s.idx, "error", err)
		}
		total.add(st)
	}
	return total
}

// Close stops the supervisors and releases every shard. Operations already
// inside a shard finish first; later ones fail with ErrClosed.
func (c *cache) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.stop()
	c.wg.Wait()
	for _, s := range c.shards {
		s.release()
	}
	c.log.Info("cache closed")
	return nil
}

// ---- helpers ----

// shardFor picks the shard owning hash h.
// len(c.shards) is guaranteed to be a power of two.
func (c *cache) shardFor(h uint64) (*shard, error) {
	idx := util.ShardIndex(h, len(c.shards))
	if idx < 0 || idx >= len(c.shards) || c.shards[idx] == nil {
		c.log.Error("shard not found", "hash", h, "index", idx, "shards", len(c.shards))
		return nil, ErrNoShard
	}
	return c.shards[idx], nil
}

// observe reports err to metrics by kind and returns it unchanged.
// Internal errors are reported where they are detected.
func (c *cache) observe(err error) error {
	if err == nil {
		return nil
	}
	if k := KindOf(err); k != KindInternal {
		c.opt.Metrics.Error(k)
	}
	return err
}

// reportSize publishes totals after a supervisor cycle.
func (c *cache) reportSize() {
	var (
		entries         int
		used, allocated uint64
	)
	for _, s := range c.shards {
		st := s.stats()
		entries += st.Entries
		used += st.UsedBytes
		allocated += st.AllocatedBytes
	}
	c.opt.Metrics.Size(entries, int64(used), int64(allocated))
}
