package util

// ShardIndex maps a 64-bit hash to a shard index by masking with shards-1.
// shards must be a power of two.
func ShardIndex(hash uint64, shards int) int {
	return int(hash & uint64(shards-1))
}

// Chunks partitions [0, n) into consecutive half-open ranges of at most size
// elements. The last range may be shorter. size <= 0 is treated as 1.
func Chunks(n, size int) [][2]int {
	if n <= 0 {
		return nil
	}
	if size <= 0 {
		size = 1
	}
	out := make([][2]int, 0, (n+size-1)/size)
	for lo := 0; lo < n; lo += size {
		hi := lo + size
		if hi > n {
			hi = n
		}
		out = append(out, [2]int{lo, hi})
	}
	return out
}
