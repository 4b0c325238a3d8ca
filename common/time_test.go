package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTimespecRoundTrip(t *testing.T) {
	ts := NewTimeState()
	now := ts.Now()
	assert.Greater(t, now, int64(0))

	for _, xr := range []int64{1, now, now + 123_456_789, 42 * SecondNs} {
		assert.Equal(t, xr, ts.FromTimespec(ts.ToTimespec(xr)))
	}
}

func TestMonotonicNowAdvances(t *testing.T) {
	a := MonotonicNow()
	b := MonotonicNow()
	assert.GreaterOrEqual(t, b, a)
}

func TestSleepUntilPast(t *testing.T) {
	assert.True(t, SleepUntil(MonotonicNow()-SecondNs, nil))
	done := make(chan struct{})
	close(done)
	assert.False(t, SleepUntil(MonotonicNow()+SecondNs, done))
}
