//go:build linux

package util

import "golang.org/x/sys/unix"

// AvailableMemory returns the amount of free RAM in bytes as reported by
// sysinfo(2). It returns 0 when the value cannot be determined.
func AvailableMemory() uint64 {
	var si unix.Sysinfo_t
	if err := unix.Sysinfo(&si); err != nil {
		return 0
	}
	unit := uint64(si.Unit)
	if unit == 0 {
		unit = 1
	}
	return uint64(si.Freeram) * unit
}
