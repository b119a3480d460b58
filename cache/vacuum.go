package cache

import (
	"cmp"
	"slices"

	"github.com/IvanBrykalov/arenacache/internal/util"
)

// VacuumStats summarizes one compaction pass.
type VacuumStats struct {
	// FreeBlocksBefore is the free list length before compaction.
	FreeBlocksBefore int
	BlocksMoved      int
	BytesMoved       uint64
	// PagesReleased counts trailing pages returned after compaction.
	PagesReleased int
}

func (v *VacuumStats) add(o VacuumStats) {
	v.FreeBlocksBefore += o.FreeBlocksBefore
	v.BlocksMoved += o.BlocksMoved
	v.BytesMoved += o.BytesMoved
	v.PagesReleased += o.PagesReleased
}

// vacuum compacts the shard: live blocks slide down to the start of the
// address space in address order, blocks of one entry that end up adjacent
// are merged, the free list collapses into a single tail block and trailing
// pages that hold no live byte are released.
//
// The whole pass runs under the shard lock.
func (s *shard) vacuum() (VacuumStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := VacuumStats{FreeBlocksBefore: s.freeList.len()}
	if s.closed || s.compactLocked() {
		return st, nil
	}

	type ref struct {
		e *entry
		i int
	}
	refs := make([]ref, 0, len(s.entries))
	for _, e := range s.entries {
		for i, b := range e.blocks {
			if b.end() > s.arena.highWater {
				return st, s.internal("vacuum", 0, internalf("block [%d, %d) beyond high water %d", b.offset, b.end(), s.arena.highWater))
			}
			refs = append(refs, ref{e: e, i: i})
		}
	}
	slices.SortFunc(refs, func(a, b ref) int {
		return cmp.Compare(a.e.blocks[a.i].offset, b.e.blocks[b.i].offset)
	})

	var cursor uint64
	for _, r := range refs {
		b := &r.e.blocks[r.i]
		if b.offset != cursor {
			if err := s.arena.move(cursor, b.offset, b.length); err != nil {
				return st, s.internal("vacuum", 0, err)
			}
			st.BlocksMoved++
			st.BytesMoved += b.length
			b.offset = cursor
		}
		cursor += b.length
	}
	if cursor != s.used {
		return st, s.internal("vacuum", 0, internalf("compacted %d bytes, used counter is %d", cursor, s.used))
	}

	for _, e := range s.entries {
		e.blocks = mergeAdjacent(e.blocks)
	}

	keep := int(util.CeilDiv(s.used, s.arena.pageBytes))
	st.PagesReleased = len(s.arena.pages) - keep
	s.arena.truncate(keep)

	s.freeList.reset()
	s.freeList.pushBack(block{offset: s.used, length: s.arena.highWater - s.used})
	s.free = s.arena.allocated() - s.used

	s.log.Debug("shard compacted",
		"free_blocks_before", st.FreeBlocksBefore,
		"blocks_moved", st.BlocksMoved,
		"bytes_moved", st.BytesMoved,
		"pages_released", st.PagesReleased,
		"pages", len(s.arena.pages))
	return st, nil
}

// compactLocked reports whether the shard is already compact: at most one
// free block, sitting at the tail, and no page that could be released.
func (s *shard) compactLocked() bool {
	if len(s.arena.pages) != int(util.CeilDiv(s.used, s.arena.pageBytes)) {
		return false
	}
	switch s.freeList.len() {
	case 0:
		return true
	case 1:
		b, _ := s.freeList.front()
		return b.end() == s.arena.highWater && b.offset == s.used
	}
	return false
}

// mergeAdjacent joins consecutive blocks where one ends exactly where the
// next begins. The result reuses the input's backing array.
func mergeAdjacent(blocks []block) []block {
	if len(blocks) < 2 {
		return blocks
	}
	out := blocks[:1]
	for _, b := range blocks[1:] {
		last := &out[len(out)-1]
		if last.end() == b.offset {
			last.length += b.length
			continue
		}
		out = append(out, b)
	}
	return out
}
