package cache

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/IvanBrykalov/arenacache/internal/util"
)

// fakeClock is a manually advanced Clock. It starts on a whole second so
// bucket arithmetic in tests is easy to follow.
type fakeClock struct{ t atomic.Int64 }

func newFakeClock() *fakeClock {
	c := &fakeClock{}
	c.t.Store(int64(1_000 * time.Second))
	return c
}

func (f *fakeClock) NowUnixNano() int64  { return f.t.Load() }
func (f *fakeClock) add(d time.Duration) { f.t.Add(int64(d)) }

type cycleRec struct {
	kind    SupervisorKind
	skipped bool
}

// recMetrics records every hook call.
type recMetrics struct {
	mu     sync.Mutex
	hits   int
	misses int
	evicts map[EvictReason]int
	errs   map[ErrKind]int
	cycles []cycleRec
	sizes  int
}

func newRecMetrics() *recMetrics {
	return &recMetrics{evicts: map[EvictReason]int{}, errs: map[ErrKind]int{}}
}

func (m *recMetrics) Hit() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hits++
}

func (m *recMetrics) Miss() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.misses++
}

func (m *recMetrics) Evict(r EvictReason) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evicts[r]++
}

func (m *recMetrics) Error(k ErrKind) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[k]++
}

func (m *recMetrics) Size(int, int64, int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sizes++
}

func (m *recMetrics) Cycle(k SupervisorKind, _ time.Duration, skipped bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cycles = append(m.cycles, cycleRec{kind: k, skipped: skipped})
}

func (m *recMetrics) snapshotCycles() []cycleRec {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]cycleRec(nil), m.cycles...)
}

func quietLogger() *slog.Logger { return slog.New(slog.DiscardHandler) }

// newTestCache builds a cache with a discarding logger and a fake clock
// unless opt provides its own, and closes it when the test ends.
func newTestCache(t testing.TB, opt Options) (*cache, *fakeClock) {
	t.Helper()
	clk := newFakeClock()
	if opt.Clock == nil {
		opt.Clock = clk
	}
	if opt.Logger == nil {
		opt.Logger = quietLogger()
	}
	c := New(opt).(*cache)
	t.Cleanup(func() { _ = c.Close() })
	return c, clk
}

// newTestShard builds a standalone shard with a fake clock and a 2s lifetime.
func newTestShard(maxBytes uint64) (*shard, *fakeClock) {
	clk := newFakeClock()
	return newShard(0, maxBytes, 2*time.Second, clk, NoopMetrics{}, quietLogger()), clk
}

// keysInShard returns n distinct keys routed to shard idx of a cache with
// the given shard count.
func keysInShard(shards, idx, n int) []string {
	out := make([]string, 0, n)
	for i := 0; len(out) < n; i++ {
		k := fmt.Sprintf("key-%d", i)
		if util.ShardIndex(util.Fnv64a(k), shards) == idx {
			out = append(out, k)
		}
	}
	return out
}

// pattern returns n bytes that differ from any other pattern with a different seed.
func pattern(seed byte, n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = seed + byte(i*7)
	}
	return b
}

// verifyAll checks the invariants of every shard.
func verifyAll(t testing.TB, c *cache) {
	t.Helper()
	for _, s := range c.shards {
		if err := s.verify(); err != nil {
			t.Fatalf("shard %d: %v", s.idx, err)
		}
	}
}
