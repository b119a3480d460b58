package cache

// block is a contiguous range of a shard's logical address space.
// The same shape describes both the pieces of a live entry and the
// reclaimable ranges held by the free list.
type block struct {
	offset uint64
	length uint64
}

func (b block) end() uint64 { return b.offset + b.length }

// entry is a live value owned by a shard. Its bytes are the concatenation of
// blocks in slice order; blocks need not be contiguous or sorted by address.
//
// Only the 64-bit key hash identifies an entry (the string key is not kept),
// so two keys with colliding hashes share one entry.
type entry struct {
	total    uint64
	expireAt int64 // absolute deadline in UnixNano
	blocks   []block
}

// expiredAt reports whether the entry is past its deadline at now.
func (e *entry) expiredAt(now int64) bool { return now >= e.expireAt }
