package cache

import (
	"slices"
	"time"
)

// expireBucketNs is the granularity of the expiration index.
const expireBucketNs = int64(time.Second)

// bucketOf rounds an absolute deadline up to the next whole second.
// A bucket is due once the clock reaches its key, by which time every entry
// registered in it has reached its own deadline.
func bucketOf(expireAt int64) int64 {
	if expireAt <= 0 {
		return 0
	}
	return ((expireAt + expireBucketNs - 1) / expireBucketNs) * expireBucketNs
}

// expireIndex groups key hashes by bucket deadline and keeps the deadlines
// sorted so that collection can walk them oldest-first and stop early.
type expireIndex struct {
	buckets map[int64]map[uint64]struct{}
	order   []int64
}

func newExpireIndex() expireIndex {
	return expireIndex{buckets: make(map[int64]map[uint64]struct{})}
}

func (x *expireIndex) add(deadline int64, h uint64) {
	b, ok := x.buckets[deadline]
	if !ok {
		b = make(map[uint64]struct{})
		x.buckets[deadline] = b
		// Deadlines mostly arrive in increasing order; appending is the fast path.
		if n := len(x.order); n == 0 || x.order[n-1] < deadline {
			x.order = append(x.order, deadline)
		} else {
			i, _ := slices.BinarySearch(x.order, deadline)
			x.order = slices.Insert(x.order, i, deadline)
		}
	}
	b[h] = struct{}{}
}

func (x *expireIndex) remove(deadline int64, h uint64) {
	b, ok := x.buckets[deadline]
	if !ok {
		return
	}
	delete(b, h)
	if len(b) == 0 {
		x.drop(deadline)
	}
}

// oldest returns the earliest bucket deadline.
func (x *expireIndex) oldest() (int64, bool) {
	if len(x.order) == 0 {
		return 0, false
	}
	return x.order[0], true
}

// take removes the bucket and returns its members.
func (x *expireIndex) take(deadline int64) map[uint64]struct{} {
	b := x.buckets[deadline]
	x.drop(deadline)
	return b
}

func (x *expireIndex) drop(deadline int64) {
	delete(x.buckets, deadline)
	if i, found := slices.BinarySearch(x.order, deadline); found {
		x.order = slices.Delete(x.order, i, i+1)
	}
}

func (x *expireIndex) len() int { return len(x.order) }

func (x *expireIndex) reset() {
	clear(x.buckets)
	x.order = x.order[:0]
}
