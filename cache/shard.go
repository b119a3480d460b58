package cache

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/IvanBrykalov/arenacache/internal/util"
)

// maxPages bounds the page slots of one shard: enough pages to hold the
// shard's full capacity plus one page of slack for fragmentation.
const maxPages = 100/PagePercent + 1

// shard is an independent partition of the cache with its own lock, arena,
// entry map, free list and expiration index.
//
// Accounting invariant (mu held): used + free == arena.allocated().
type shard struct {
	// ---- guarded by mu ----
	mu       sync.Mutex
	idx      int
	maxBytes uint64
	used     uint64 // bytes occupied by live entries
	free     uint64 // bytes in the free list
	expire   int64  // entry lifetime in ns
	closed   bool

	arena     arena
	entries   map[uint64]*entry
	freeList  freeList
	expireIdx expireIndex

	log     *slog.Logger
	metrics Metrics
	clock   Clock

	// ---- hot counters (separate cache lines to avoid false sharing) ----
	_      util.CacheLinePad
	hits   util.PaddedAtomicInt64
	misses util.PaddedAtomicInt64
	evicts util.PaddedAtomicUint64
}

// newShard builds an empty shard holding up to maxBytes of payload.
// No page is reserved until the first Set needs one.
func newShard(idx int, maxBytes uint64, expire time.Duration, clock Clock, m Metrics, log *slog.Logger) *shard {
	return &shard{
		idx:       idx,
		maxBytes:  maxBytes,
		expire:    int64(expire),
		arena:     newArena(pageSize(maxBytes), maxPages),
		entries:   make(map[uint64]*entry),
		expireIdx: newExpireIndex(),
		log:       log.With("shard", idx),
		metrics:   m,
		clock:     clock,
	}
}

// pageSize returns ceil(maxBytes*PagePercent/100) without overflowing for
// capacities close to MaxUint64.
func pageSize(maxBytes uint64) uint64 {
	return maxBytes/100*PagePercent + util.CeilDiv(maxBytes%100*PagePercent, 100)
}

// set stores value under hash h. An existing entry is replaced when force is
// true and reported as ErrKeyExists otherwise.
func (s *shard) set(h uint64, value []byte, force bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	return s.setLocked(h, value, force)
}

func (s *shard) setLocked(h uint64, value []byte, force bool) error {
	n := uint64(len(value))
	if n == 0 {
		return ErrEmptyValue
	}

	// Capacity and pages are checked as if the old value were already gone.
	// The old value is dropped only once both succeed, so a forced overwrite
	// that does not fit leaves it in place.
	used := s.used
	old, exists := s.entries[h]
	if exists {
		if !force {
			return ErrKeyExists
		}
		used -= old.total
	}
	if used+n > s.maxBytes {
		s.log.Warn("no space left in shard",
			"hash", h, "size", n, "used", s.used, "max", s.maxBytes)
		return ErrNoSpace
	}
	for s.arena.allocated()-used < n {
		b, err := s.arena.reserve()
		if err != nil {
			s.log.Warn("no free page slot left in shard",
				"hash", h, "size", n, "pages", len(s.arena.pages), "used", s.used)
			return err
		}
		s.freeList.pushBack(b)
		s.free += b.length
		s.log.Debug("page reserved", "lo", b.offset, "hi", b.end(), "pages", len(s.arena.pages))
	}
	if exists {
		s.evictLocked(h, EvictOverwrite)
	}

	e := &entry{total: n, expireAt: s.clock.NowUnixNano() + s.expire}
	rest := value
	for len(rest) > 0 {
		fb, ok := s.freeList.popFront()
		if !ok {
			s.rollbackLocked(e)
			return s.internal("set", h, internalf("free list exhausted with %d of %d bytes unplaced (free=%d)", len(rest), n, s.free))
		}
		take := min(fb.length, uint64(len(rest)))
		b := block{offset: fb.offset, length: take}
		if err := s.arena.write(b.offset, rest[:take]); err != nil {
			s.freeList.pushBack(fb)
			s.rollbackLocked(e)
			return s.internal("set", h, err)
		}
		e.blocks = append(e.blocks, b)
		if fb.length > take {
			s.freeList.pushBack(block{offset: b.end(), length: fb.length - take})
		}
		rest = rest[take:]
	}

	s.entries[h] = e
	s.expireIdx.add(bucketOf(e.expireAt), h)
	s.used += n
	s.free -= n

	if tracing(s.log) {
		s.log.Log(context.Background(), LevelTrace, "entry stored",
			"hash", h, "size", n, "blocks", len(e.blocks), "expire_at", e.expireAt)
	}
	return nil
}

// rollbackLocked returns the blocks of a partially placed entry to the free list.
func (s *shard) rollbackLocked(e *entry) {
	for _, b := range e.blocks {
		s.freeList.pushBack(b)
	}
	e.blocks = nil
}

// get copies the value stored under h into buf and returns its length.
func (s *shard) get(h uint64, buf []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.lookupLocked(h)
	if err != nil {
		return 0, err
	}
	if uint64(len(buf)) < e.total {
		return 0, ErrBufferTooSmall
	}
	if err := s.readLocked(h, e, buf[:e.total]); err != nil {
		return 0, err
	}
	s.hit()
	return int(e.total), nil
}

// fetch returns a fresh copy of the value stored under h.
func (s *shard) fetch(h uint64) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.lookupLocked(h)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, e.total)
	if err := s.readLocked(h, e, buf); err != nil {
		return nil, err
	}
	s.hit()
	return buf, nil
}

// lookupLocked resolves h to a live entry, counting misses.
func (s *shard) lookupLocked(h uint64) (*entry, error) {
	if s.closed {
		return nil, ErrClosed
	}
	e, ok := s.entries[h]
	if !ok || e.total == 0 {
		s.miss()
		return nil, ErrKeyNotFound
	}
	if e.expiredAt(s.clock.NowUnixNano()) {
		s.miss()
		return nil, ErrKeyExpired
	}
	return e, nil
}

func (s *shard) readLocked(h uint64, e *entry, dst []byte) error {
	off := uint64(0)
	for _, b := range e.blocks {
		if err := s.arena.read(b.offset, dst[off:off+b.length]); err != nil {
			return s.internal("get", h, err)
		}
		off += b.length
	}
	if off != e.total {
		return s.internal("get", h, internalf("blocks hold %d bytes, entry size is %d", off, e.total))
	}
	return nil
}

func (s *shard) hit() {
	s.hits.Add(1)
	s.metrics.Hit()
}

func (s *shard) miss() {
	s.misses.Add(1)
	s.metrics.Miss()
}

// evict removes the entry stored under h.
func (s *shard) evict(h uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if !s.evictLocked(h, EvictExplicit) {
		return ErrKeyNotFound
	}
	return nil
}

// evictLocked releases every block of the entry to the back of the free list
// and unregisters it from the expiration index. It reports false when h is
// not stored.
func (s *shard) evictLocked(h uint64, reason EvictReason) bool {
	e, ok := s.entries[h]
	if !ok {
		return false
	}
	for _, b := range e.blocks {
		s.freeList.pushBack(b)
	}
	s.used -= e.total
	s.free += e.total
	s.expireIdx.remove(bucketOf(e.expireAt), h)
	delete(s.entries, h)

	s.evicts.Add(1)
	s.metrics.Evict(reason)
	if tracing(s.log) {
		s.log.Log(context.Background(), LevelTrace, "entry evicted",
			"hash", h, "size", e.total, "reason", reason.String())
	}
	return true
}

// bulkExpire evicts every entry in buckets that are due at the current time.
// Buckets are visited oldest-first and the lock is held for one bucket at a
// time, so client operations interleave with a long collection.
func (s *shard) bulkExpire() (int, error) {
	now := s.clock.NowUnixNano()
	var (
		evicted int
		errs    []error
	)
	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			break
		}
		deadline, ok := s.expireIdx.oldest()
		if !ok || now < deadline {
			s.mu.Unlock()
			break
		}
		for h := range s.expireIdx.take(deadline) {
			if s.evictLocked(h, EvictTTL) {
				evicted++
				continue
			}
			errs = append(errs, s.internal("expire", h, internalf("bucket %d references a missing entry", deadline)))
		}
		s.mu.Unlock()
	}
	if evicted > 0 {
		s.log.Debug("expired entries collected", "count", evicted)
	}
	return evicted, errors.Join(errs...)
}

// release drops every page and index of the shard. Later operations fail
// with ErrClosed.
func (s *shard) release() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.arena.truncate(0)
	clear(s.entries)
	s.freeList.reset()
	s.expireIdx.reset()
	s.used, s.free = 0, 0
}

// internal logs a bookkeeping failure and reports it to metrics.
func (s *shard) internal(op string, h uint64, err error) error {
	if !errors.Is(err, ErrInternal) {
		err = internalf("%v", err)
	}
	s.log.Error("internal error", "op", op, "hash", h, "error", err)
	s.metrics.Error(KindInternal)
	return err
}

func (s *shard) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *shard) stats() ShardStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ShardStats{
		Index:          s.idx,
		Entries:        len(s.entries),
		MaxBytes:       s.maxBytes,
		UsedBytes:      s.used,
		FreeBytes:      s.free,
		AllocatedBytes: s.arena.allocated(),
		PageBytes:      s.arena.pageBytes,
		Pages:          len(s.arena.pages),
		FreeBlocks:     s.freeList.len(),
		ExpireBuckets:  s.expireIdx.len(),
		Hits:           s.hits.Load(),
		Misses:         s.misses.Load(),
		Evictions:      s.evicts.Load(),
	}
}

// verify checks the accounting and layout invariants of the shard: every
// reserved byte belongs to exactly one entry block or free block, the byte
// counters match the blocks, and the expiration index agrees with the entries.
func (s *shard) verify() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.used+s.free != s.arena.allocated() {
		return internalf("used %d + free %d != allocated %d", s.used, s.free, s.arena.allocated())
	}
	if s.used > s.maxBytes {
		return internalf("used %d exceeds max %d", s.used, s.maxBytes)
	}
	if fb := s.freeList.bytes(); fb != s.free {
		return internalf("free list holds %d bytes, counter says %d", fb, s.free)
	}

	all := slices.Clone(s.freeList.items())
	var used uint64
	indexed := 0
	for h, e := range s.entries {
		var sum uint64
		for _, b := range e.blocks {
			sum += b.length
		}
		if sum != e.total {
			return internalf("entry %d: blocks hold %d bytes, size is %d", h, sum, e.total)
		}
		if _, ok := s.expireIdx.buckets[bucketOf(e.expireAt)][h]; !ok {
			return internalf("entry %d missing from expire bucket %d", h, bucketOf(e.expireAt))
		}
		used += sum
		all = append(all, e.blocks...)
	}
	for _, b := range s.expireIdx.buckets {
		indexed += len(b)
	}
	if indexed != len(s.entries) {
		return internalf("expire index holds %d hashes for %d entries", indexed, len(s.entries))
	}
	if used != s.used {
		return internalf("entries hold %d bytes, counter says %d", used, s.used)
	}

	slices.SortFunc(all, func(a, b block) int {
		switch {
		case a.offset < b.offset:
			return -1
		case a.offset > b.offset:
			return 1
		}
		return 0
	})
	var cursor uint64
	for _, b := range all {
		if b.offset != cursor {
			return internalf("layout gap or overlap at %d (block starts at %d)", cursor, b.offset)
		}
		cursor = b.end()
	}
	if cursor != s.arena.highWater {
		return internalf("blocks cover [0, %d), high water is %d", cursor, s.arena.highWater)
	}
	return nil
}
