// Package util contains internal helpers (hashing, sharding, padding, memory probing).
//revive:disable:var-naming  // allow 'util' as an internal helpers package name
package util

const (
	fnvOffset64 = 14695981039346656037
	fnvPrime64  = 1099511628211
)

// Fnv64a hashes a string key using 64-bit FNV-1a (XOR the byte, then multiply).
// The result is used both for shard selection and as the shard-local entry key,
// so it must stay stable across releases.
//
// The string is walked byte by byte without converting it to a slice,
// so hashing never allocates.
func Fnv64a(s string) uint64 {
	h := uint64(fnvOffset64)
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= fnvPrime64
	}
	return h
}

