//go:build linux || darwin

package common

import "golang.org/x/sys/unix"

// MonotonicNow reads CLOCK_MONOTONIC in nanoseconds.
func MonotonicNow() int64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return fallbackMonotonic()
	}
	return ts.Nano()
}

func timespecFromNs(ns int64) Timespec {
	ts := unix.NsecToTimespec(ns)
	return Timespec{Sec: int64(ts.Sec), Nsec: int64(ts.Nsec)}
}
