package common

import (
	"sync/atomic"
	"time"
)

// Well-known durations in nanoseconds.
const (
	HalfMillisecondNs int64 = 500_000
	MillisecondNs     int64 = 1_000_000
	SecondNs          int64 = 1_000_000_000
)

// Timespec mirrors a POSIX timespec on CLOCK_MONOTONIC.
type Timespec struct {
	Sec  int64
	Nsec int64
}

// Nano returns the timespec in nanoseconds.
func (t Timespec) Nano() int64 {
	return t.Sec*SecondNs + t.Nsec
}

// TimeState converts between the monotonic clock and runtime time. Runtime time starts near one
// second at creation so every valid timestamp is strictly positive.
type TimeState struct {
	offsetNs int64
	lastNs   atomic.Int64
}

// NewTimeState anchors a new runtime clock to the current monotonic time.
//
// Returns:
//   - *TimeState: the new time state
func NewTimeState() *TimeState {
	return &TimeState{offsetNs: MonotonicNow() - SecondNs}
}

// Now returns the current runtime time in nanoseconds.
func (t *TimeState) Now() int64 {
	now := MonotonicNow() - t.offsetNs
	t.lastNs.Store(now)
	return now
}

// Last returns the runtime time observed by the most recent call to Now.
func (t *TimeState) Last() int64 {
	return t.lastNs.Load()
}

// FromMonotonic converts a monotonic timestamp to runtime time.
func (t *TimeState) FromMonotonic(ns int64) int64 {
	return ns - t.offsetNs
}

// ToMonotonic converts a runtime timestamp to the monotonic clock.
func (t *TimeState) ToMonotonic(xr int64) int64 {
	return xr + t.offsetNs
}

// FromTimespec converts a CLOCK_MONOTONIC timespec to runtime time.
func (t *TimeState) FromTimespec(ts Timespec) int64 {
	return t.FromMonotonic(ts.Nano())
}

// ToTimespec converts runtime time to a CLOCK_MONOTONIC timespec.
func (t *TimeState) ToTimespec(xr int64) Timespec {
	return timespecFromNs(t.ToMonotonic(xr))
}

// SleepUntil blocks until the monotonic clock reaches ns or the done channel closes.
// It returns false when interrupted.
//
// Parameters:
//   - ns: monotonic deadline in nanoseconds
//   - done: cancellation channel, may be nil
//
// Returns:
//   - bool: true if the deadline was reached
func SleepUntil(ns int64, done <-chan struct{}) bool {
	d := time.Duration(ns - MonotonicNow())
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-done:
		return false
	}
}
