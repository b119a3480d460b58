package cache

// freeList is a FIFO of reclaimable address ranges. Allocation pops from the
// front and every released or leftover range goes to the back. Ranges are
// never merged here; vacuum rebuilds the list.
type freeList struct {
	blocks []block
	head   int
}

func (f *freeList) len() int { return len(f.blocks) - f.head }

func (f *freeList) pushBack(b block) {
	if b.length == 0 {
		return
	}
	f.blocks = append(f.blocks, b)
}

func (f *freeList) popFront() (block, bool) {
	if f.head >= len(f.blocks) {
		return block{}, false
	}
	b := f.blocks[f.head]
	f.blocks[f.head] = block{}
	f.head++
	// Reclaim the consumed prefix once it dominates the backing array.
	if f.head >= 64 && f.head*2 >= len(f.blocks) {
		n := copy(f.blocks, f.blocks[f.head:])
		f.blocks = f.blocks[:n]
		f.head = 0
	}
	return b, true
}

// front returns the next block popFront would return.
func (f *freeList) front() (block, bool) {
	if f.head >= len(f.blocks) {
		return block{}, false
	}
	return f.blocks[f.head], true
}

// items returns the live blocks in FIFO order. The slice aliases the list.
func (f *freeList) items() []block { return f.blocks[f.head:] }

// bytes sums the lengths of all free blocks.
func (f *freeList) bytes() uint64 {
	var n uint64
	for _, b := range f.items() {
		n += b.length
	}
	return n
}

func (f *freeList) reset() {
	f.blocks = f.blocks[:0]
	f.head = 0
}
