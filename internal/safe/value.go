// Package safe provides checked conversions between the protocol's
// 64-bit identifiers and the narrower types kernel interfaces take.
package safe

import (
	"math"
)

// Pid converts a process or thread identifier to a Linux pid. The
// second return is false when the value cannot name a host pid.
func Pid(id uint64) (int32, bool) {
	if id == 0 || id > math.MaxInt32 {
		return 0, false
	}
	return int32(id), true
}

// Offset converts a target address to the signed offset pread and
// pwrite on /proc/<pid>/mem accept. The second return is false when
// the address exceeds the signed range.
func Offset(address uint64) (int64, bool) {
	if address > math.MaxInt64 {
		return 0, false
	}
	return int64(address), true
}
