package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBucketOf_RoundsUpToWholeSecond(t *testing.T) {
	t.Parallel()

	sec := int64(time.Second)
	cases := map[int64]int64{
		0:           0,
		1:           sec,
		sec - 1:     sec,
		sec:         sec,
		sec + 1:     2 * sec,
		7*sec + 500: 8 * sec,
	}
	for in, want := range cases {
		assert.Equal(t, want, bucketOf(in), "bucketOf(%d)", in)
	}
}

func TestExpireIndex_OrderAndRemoval(t *testing.T) {
	t.Parallel()

	x := newExpireIndex()
	x.add(30, 1)
	x.add(10, 2)
	x.add(20, 3)
	x.add(10, 4)
	assert.Equal(t, []int64{10, 20, 30}, x.order)
	assert.Equal(t, 3, x.len())

	d, ok := x.oldest()
	require.True(t, ok)
	assert.Equal(t, int64(10), d)

	x.remove(10, 2)
	assert.Equal(t, 3, x.len(), "bucket with members left stays")
	x.remove(10, 4)
	assert.Equal(t, []int64{20, 30}, x.order, "emptied bucket is dropped")

	x.remove(99, 1) // unknown bucket is a no-op
	members := x.take(20)
	assert.Equal(t, map[uint64]struct{}{3: {}}, members)
	assert.Equal(t, []int64{30}, x.order)

	x.reset()
	_, ok = x.oldest()
	assert.False(t, ok)
}
