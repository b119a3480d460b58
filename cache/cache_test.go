package cache

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IvanBrykalov/arenacache/config"
)

// Basic Set/Get/Fetch/Evict semantics on a small cache.
func TestCache_RoundTrip(t *testing.T) {
	t.Parallel()

	c, _ := newTestCache(t, Options{Shards: 4, MaxSize: 4 << 20})

	require.NoError(t, c.Set("alpha", []byte("first value")))
	buf := make([]byte, 64)
	n, err := c.Get("alpha", buf)
	require.NoError(t, err)
	assert.Equal(t, "first value", string(buf[:n]))

	v, err := c.Fetch("alpha")
	require.NoError(t, err)
	assert.Equal(t, []byte("first value"), v)

	_, err = c.Get("alpha", make([]byte, 5))
	assert.ErrorIs(t, err, ErrBufferTooSmall)

	require.NoError(t, c.Evict("alpha"))
	_, err = c.Get("alpha", buf)
	assert.ErrorIs(t, err, ErrKeyNotFound)
	assert.ErrorIs(t, c.Evict("alpha"), ErrKeyNotFound)
	assert.ErrorIs(t, c.Set("empty", nil), ErrEmptyValue)
	assert.Zero(t, c.Len())
	verifyAll(t, c)
}

func TestCache_ExistingKey(t *testing.T) {
	t.Parallel()

	c, _ := newTestCache(t, Options{Shards: 4, MaxSize: 1 << 20})
	require.NoError(t, c.Set("k", []byte("v1")))
	assert.ErrorIs(t, c.Set("k", []byte("v2")), ErrKeyExists)
	v, err := c.Fetch("k")
	require.NoError(t, err)
	assert.Equal(t, "v1", string(v))

	forced, _ := newTestCache(t, Options{Shards: 4, MaxSize: 1 << 20, ForceSet: true})
	require.NoError(t, forced.Set("k", []byte("v1")))
	require.NoError(t, forced.Set("k", []byte("longer v2")))
	v, err = forced.Fetch("k")
	require.NoError(t, err)
	assert.Equal(t, "longer v2", string(v))
	assert.Equal(t, 1, forced.Len())
	verifyAll(t, forced)
}

// An entry is readable strictly before its deadline and reported expired
// from the deadline on, until the expiration pass collects it.
func TestCache_ExpireBoundary(t *testing.T) {
	t.Parallel()

	c, clk := newTestCache(t, Options{Shards: 4, MaxSize: 1 << 20, Expire: 2 * time.Second})
	require.NoError(t, c.Set("ttl", []byte("v")))

	buf := make([]byte, 8)
	clk.add(2*time.Second - 1)
	_, err := c.Get("ttl", buf)
	require.NoError(t, err)

	clk.add(1)
	_, err = c.Get("ttl", buf)
	assert.ErrorIs(t, err, ErrKeyExpired)
	assert.Equal(t, 1, c.Len(), "expired entries stay until collected")

	for _, s := range c.shards {
		_, err := s.bulkExpire()
		require.NoError(t, err)
	}
	_, err = c.Get("ttl", buf)
	assert.ErrorIs(t, err, ErrKeyNotFound)
	assert.Zero(t, c.Len())
	verifyAll(t, c)
}

func TestCache_NoSpaceIsPerShard(t *testing.T) {
	t.Parallel()

	c, _ := newTestCache(t, Options{Shards: 4, MaxSize: 4000})
	keys := keysInShard(4, 2, 3)
	other := keysInShard(4, 1, 1)[0]

	require.NoError(t, c.Set(keys[0], make([]byte, 600)))
	require.NoError(t, c.Set(keys[1], make([]byte, 400)))
	assert.ErrorIs(t, c.Set(keys[2], []byte("x")), ErrNoSpace)
	require.NoError(t, c.Set(other, make([]byte, 1000)), "other shards keep their own budget")

	require.NoError(t, c.Evict(keys[0]))
	require.NoError(t, c.Set(keys[2], make([]byte, 600)))
	verifyAll(t, c)
}

// Space freed by the expiration pass is available to the next Set.
func TestCache_NoSpaceRecoversAfterExpiry(t *testing.T) {
	t.Parallel()

	c, clk := newTestCache(t, Options{Shards: 4, MaxSize: 4000, Expire: 2 * time.Second})
	keys := keysInShard(4, 2, 3)

	require.NoError(t, c.Set(keys[0], make([]byte, 600)))
	require.NoError(t, c.Set(keys[1], make([]byte, 400)))
	assert.ErrorIs(t, c.Set(keys[2], []byte("x")), ErrNoSpace)

	clk.add(2 * time.Second)
	n, err := c.shards[2].bulkExpire()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Zero(t, c.Len())

	require.NoError(t, c.Set(keys[2], make([]byte, 1000)))
	v, err := c.Fetch(keys[2])
	require.NoError(t, err)
	assert.Len(t, v, 1000)
	verifyAll(t, c)
}

func TestCache_ShardRouting(t *testing.T) {
	t.Parallel()

	cases := []struct {
		shards      int
		alpha, beta int
	}{
		{16, 11, 7},
		{1024, 43, 167},
	}
	for _, tc := range cases {
		c, _ := newTestCache(t, Options{Shards: tc.shards, MaxSize: int64(tc.shards) << 10})
		require.NoError(t, c.Set("alpha", []byte("a")))
		require.NoError(t, c.Set("beta", []byte("b")))

		st := c.Stats()
		assert.Equal(t, 1, st.PerShard[tc.alpha].Entries, "shards=%d", tc.shards)
		assert.Equal(t, 1, st.PerShard[tc.beta].Entries, "shards=%d", tc.shards)
		assert.Equal(t, 2, st.Entries)
	}
}

func TestCache_OptionFallbacks(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		opt  Options
		want Options
		warn string
	}{
		{"zero", Options{}, Options{Shards: DefaultShards, Expire: DefaultExpire, Vacuum: DefaultVacuum}, ""},
		{"not pow2", Options{Shards: 12}, Options{Shards: DefaultShards, Expire: DefaultExpire, Vacuum: DefaultVacuum}, "power of two"},
		{"too few", Options{Shards: 2}, Options{Shards: DefaultShards, Expire: DefaultExpire, Vacuum: DefaultVacuum}, "out of range"},
		{"too many", Options{Shards: 8192}, Options{Shards: DefaultShards, Expire: DefaultExpire, Vacuum: DefaultVacuum}, "out of range"},
		{"short expire", Options{Shards: 8, Expire: time.Millisecond}, Options{Shards: 8, Expire: DefaultExpire, Vacuum: DefaultVacuum}, "expire time"},
		{"short vacuum", Options{Shards: 8, Vacuum: time.Second}, Options{Shards: 8, Expire: DefaultExpire, Vacuum: DefaultVacuum}, "vacuum time"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var out bytes.Buffer
			tc.opt.MaxSize = 1 << 20
			tc.opt.Logger = slog.New(slog.NewTextHandler(&out, &slog.HandlerOptions{Level: slog.LevelWarn}))
			c, _ := newTestCache(t, tc.opt)

			assert.Equal(t, tc.want.Shards, c.opt.Shards)
			assert.Len(t, c.shards, tc.want.Shards)
			assert.Equal(t, tc.want.Expire, c.opt.Expire)
			assert.Equal(t, tc.want.Vacuum, c.opt.Vacuum)
			if tc.warn == "" {
				assert.Empty(t, out.String())
			} else {
				assert.Contains(t, out.String(), tc.warn)
			}
		})
	}
}

func TestCache_MaxSizeSplitAcrossShards(t *testing.T) {
	t.Parallel()

	c, _ := newTestCache(t, Options{Shards: 8, MaxSize: 8000})
	st := c.Stats()
	assert.Equal(t, uint64(8000), st.MaxBytes)
	for _, ss := range st.PerShard {
		assert.Equal(t, uint64(1000), ss.MaxBytes)
		assert.Equal(t, uint64(100), ss.PageBytes)
	}
	assert.Zero(t, st.AllocatedBytes, "no page is reserved up front")
}

func TestCache_FromConfig(t *testing.T) {
	t.Parallel()

	cfg, err := config.Parse([]byte(`{
		// small cache
		"verbose_lvl": 0,
		"shards_cnt": 16,
		"force_set": true,
		"max_size": 16384,
		"expire": "5s",
		"vacuum": "2m",
	}`))
	require.NoError(t, err)

	c := NewFromConfig(cfg).(*cache)
	t.Cleanup(func() { _ = c.Close() })
	assert.Len(t, c.shards, 16)
	assert.True(t, c.opt.ForceSet)
	assert.Equal(t, 5*time.Second, c.opt.Expire)
	assert.Equal(t, 2*time.Minute, c.opt.Vacuum)

	require.NoError(t, c.Set("a", []byte("1")))
	require.NoError(t, c.Set("a", []byte("2")))
}

func TestCache_Close(t *testing.T) {
	t.Parallel()

	c, _ := newTestCache(t, Options{Shards: 4, MaxSize: 1 << 20})
	require.NoError(t, c.Set("a", []byte("1")))

	start := time.Now()
	require.NoError(t, c.Close())
	assert.Less(t, time.Since(start), time.Second, "close must not wait for a supervisor period")
	require.NoError(t, c.Close())

	assert.ErrorIs(t, c.Set("b", []byte("2")), ErrClosed)
	_, err := c.Get("a", make([]byte, 4))
	assert.ErrorIs(t, err, ErrClosed)
	_, err = c.Fetch("a")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, c.Evict("a"), ErrClosed)
	assert.Zero(t, c.Len())
	assert.Zero(t, c.Stats().AllocatedBytes)
	assert.Equal(t, VacuumStats{}, c.Vacuum())
}

func TestCache_Metrics(t *testing.T) {
	t.Parallel()

	m := newRecMetrics()
	c, clk := newTestCache(t, Options{Shards: 4, MaxSize: 1 << 20, Metrics: m, ForceSet: true, Expire: time.Second})

	require.NoError(t, c.Set("a", []byte("1")))
	require.NoError(t, c.Set("a", []byte("2")))
	_, _ = c.Fetch("a")
	_, _ = c.Fetch("missing")
	require.NoError(t, c.Evict("a"))
	require.NoError(t, c.Set("b", []byte("3")))
	clk.add(time.Second)
	for _, s := range c.shards {
		_, _ = s.bulkExpire()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	assert.Equal(t, 1, m.hits)
	assert.Equal(t, 1, m.misses)
	assert.Equal(t, map[EvictReason]int{EvictOverwrite: 1, EvictExplicit: 1, EvictTTL: 1}, m.evicts)
	assert.Equal(t, map[ErrKind]int{KindKeyNotFound: 1}, m.errs)
}

func TestCache_Vacuum(t *testing.T) {
	t.Parallel()

	c, _ := newTestCache(t, Options{Shards: 4, MaxSize: 4000})
	keys := keysInShard(4, 0, 4)
	for i, k := range keys {
		require.NoError(t, c.Set(k, pattern(byte(i), 100)))
	}
	require.NoError(t, c.Evict(keys[0]))
	require.NoError(t, c.Evict(keys[2]))

	st := c.Vacuum()
	assert.Equal(t, 2, st.BlocksMoved)
	assert.Equal(t, uint64(200), st.BytesMoved)
	assert.Equal(t, 2, st.PagesReleased)
	for _, i := range []int{1, 3} {
		v, err := c.Fetch(keys[i])
		require.NoError(t, err)
		assert.Equal(t, pattern(byte(i), 100), v)
	}
	verifyAll(t, c)
}

func TestKindOf(t *testing.T) {
	t.Parallel()

	assert.Equal(t, KindOK, KindOf(nil))
	for k := KindNoShard; k <= KindClosed; k++ {
		assert.Equal(t, k, KindOf(k.Err()), k.String())
		assert.Equal(t, k, KindOf(errors.Join(errors.New("ctx"), k.Err())))
	}
	assert.Equal(t, KindInternal, KindOf(errors.New("foreign")))
	assert.Equal(t, KindInternal, KindOf(internalf("bad %d", 1)))
	assert.True(t, strings.HasPrefix(ErrKind(42).String(), "kind("))
	assert.Equal(t, 9, int(KindClosed))
}
