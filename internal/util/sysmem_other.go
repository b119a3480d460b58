//go:build !linux

package util

// AvailableMemory is not implemented outside Linux; callers fall back to a
// fixed default.
func AvailableMemory() uint64 { return 0 }
