//go:build !(linux || darwin)

package common

// MonotonicNow reads the process monotonic clock in nanoseconds.
func MonotonicNow() int64 {
	return fallbackMonotonic()
}

func timespecFromNs(ns int64) Timespec {
	return Timespec{Sec: ns / SecondNs, Nsec: ns % SecondNs}
}
