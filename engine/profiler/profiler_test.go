package profiler

import (
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-xr/engine/pacer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type steppedClock struct {
	t time.Time
}

func (c *steppedClock) now() time.Time { return c.t }

func TestTickReportsOncePerInterval(t *testing.T) {
	clock := &steppedClock{t: time.Unix(100, 0)}
	p := NewProfiler(WithNow(clock.now), WithInterval(time.Second))

	for i := 0; i < 59; i++ {
		clock.t = clock.t.Add(time.Second / 60)
		assert.False(t, p.Tick(pacer.Stats{}), "tick %d", i)
	}
	p.Discard()
	clock.t = clock.t.Add(time.Second / 60)
	require.True(t, p.Tick(pacer.Stats{Missed: 3, CompTimeNs: 2_500_000, FramePeriodNs: 16_666_666}))

	r := p.Last()
	assert.InDelta(t, 60.0, r.FPS, 0.01)
	assert.Equal(t, uint64(3), r.Missed)
	assert.Equal(t, 1, r.Discarded)
	assert.InDelta(t, 2.5, r.CompTimeMs, 1e-9)
}

func TestTickMissedIsPerInterval(t *testing.T) {
	clock := &steppedClock{t: time.Unix(0, 0)}
	p := NewProfiler(WithNow(clock.now), WithInterval(time.Second))

	clock.t = clock.t.Add(time.Second)
	require.True(t, p.Tick(pacer.Stats{Missed: 5}))
	assert.Equal(t, uint64(5), p.Last().Missed)

	clock.t = clock.t.Add(time.Second)
	require.True(t, p.Tick(pacer.Stats{Missed: 7}))
	assert.Equal(t, uint64(2), p.Last().Missed)
	assert.Equal(t, 0, p.Last().Discarded)
}
