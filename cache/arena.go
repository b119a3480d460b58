package cache

// page backs the logical window [lo, hi) of a shard's address space.
type page struct {
	payload []byte
	lo, hi  uint64
}

// arena is a shard's paged byte store. Pages are reserved lazily, one at a
// time, and the logical address space grows by pageBytes per reservation.
// An address is decomposed as (addr / pageBytes, addr % pageBytes).
//
// arena is not safe for concurrent use; the owning shard's lock guards it.
type arena struct {
	pageBytes uint64
	maxPages  int
	pages     []page
	highWater uint64
}

func newArena(pageBytes uint64, maxPages int) arena {
	if pageBytes == 0 {
		pageBytes = 1
	}
	return arena{
		pageBytes: pageBytes,
		maxPages:  maxPages,
		pages:     make([]page, 0, maxPages),
	}
}

// allocated returns the number of bytes backed by reserved pages.
func (a *arena) allocated() uint64 { return uint64(len(a.pages)) * a.pageBytes }

// reserve backs the next window of the address space with a fresh page and
// returns that window. It fails with ErrNoSpace once every slot is used.
func (a *arena) reserve() (block, error) {
	if len(a.pages) >= a.maxPages {
		return block{}, ErrNoSpace
	}
	p := page{
		payload: make([]byte, a.pageBytes),
		lo:      a.highWater,
		hi:      a.highWater + a.pageBytes,
	}
	a.pages = append(a.pages, p)
	a.highWater = p.hi
	return block{offset: p.lo, length: a.pageBytes}, nil
}

// truncate keeps the first n pages and releases the rest.
func (a *arena) truncate(n int) {
	if n >= len(a.pages) {
		return
	}
	for i := n; i < len(a.pages); i++ {
		a.pages[i] = page{}
	}
	a.pages = a.pages[:n]
	a.highWater = uint64(n) * a.pageBytes
}

// span returns the longest contiguous slice of page memory starting at addr,
// capped at n bytes. Addresses in unreserved pages are rejected.
func (a *arena) span(addr, n uint64) ([]byte, error) {
	idx := addr / a.pageBytes
	if idx >= uint64(len(a.pages)) {
		return nil, internalf("address %d is in unreserved page %d (%d reserved)", addr, idx, len(a.pages))
	}
	p := a.pages[idx].payload[addr%a.pageBytes:]
	if uint64(len(p)) > n {
		p = p[:n]
	}
	return p, nil
}

// write copies src into the address space starting at addr.
func (a *arena) write(addr uint64, src []byte) error {
	for len(src) > 0 {
		dst, err := a.span(addr, uint64(len(src)))
		if err != nil {
			return err
		}
		n := copy(dst, src)
		src = src[n:]
		addr += uint64(n)
	}
	return nil
}

// read fills dst from the address space starting at addr.
func (a *arena) read(addr uint64, dst []byte) error {
	for len(dst) > 0 {
		src, err := a.span(addr, uint64(len(dst)))
		if err != nil {
			return err
		}
		n := copy(dst, src)
		dst = dst[n:]
		addr += uint64(n)
	}
	return nil
}

// move copies n bytes from src to dst where dst <= src. Pieces are copied in
// ascending order, so a piece never overwrites source bytes not yet copied.
func (a *arena) move(dst, src, n uint64) error {
	if dst > src {
		return internalf("move towards higher address %d -> %d", src, dst)
	}
	if dst == src {
		return nil
	}
	for n > 0 {
		from, err := a.span(src, n)
		if err != nil {
			return err
		}
		to, err := a.span(dst, uint64(len(from)))
		if err != nil {
			return err
		}
		c := uint64(copy(to, from))
		dst += c
		src += c
		n -= c
	}
	return nil
}
