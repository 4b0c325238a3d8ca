// Package profiler aggregates compositor frame timing and process memory statistics and logs
// them at a fixed interval.
package profiler

import (
	"log/slog"
	"runtime"
	"time"

	"github.com/Carmen-Shannon/oxy-xr/common"
	"github.com/Carmen-Shannon/oxy-xr/engine/pacer"
)

// Report is the summary produced each time the interval elapses.
type Report struct {
	FPS float64
	// Missed is how many frames the pacer counted as missed during the interval.
	Missed uint64
	// Discarded is how many frames were dropped without presenting during the interval.
	Discarded  int
	CompTimeMs float64
	HeapMB     float64
	GCCount    uint32
}

// Profiler tracks frame rate, pacing misses and memory statistics for the compositor thread.
type Profiler struct {
	log            *slog.Logger
	now            func() time.Time
	frameCount     int
	discardCount   int
	lastTime       time.Time
	updateInterval time.Duration
	memStats       runtime.MemStats
	lastGCCount    uint32
	lastMissed     uint64
	last           Report
}

// NewProfiler creates a new Profiler. The update interval defaults to 1 second.
//
// Parameters:
//   - options: functional options to configure the profiler
//
// Returns:
//   - *Profiler: the newly created profiler instance
func NewProfiler(options ...ProfilerBuilderOption) *Profiler {
	p := &Profiler{
		log:            common.ComponentLogger("profiler"),
		now:            time.Now,
		updateInterval: time.Second,
	}
	for _, opt := range options {
		opt(p)
	}
	p.lastTime = p.now()
	return p
}

// Discard counts a frame that was committed without layers and never presented.
func (p *Profiler) Discard() {
	p.discardCount++
}

// Last returns the most recent report, zero until the first interval elapsed.
func (p *Profiler) Last() Report {
	return p.last
}

// Tick should be called once per presented frame with the target pacer's counters.
// When the update interval has elapsed it logs FPS, missed frames, the current composition
// time and heap usage at debug level.
//
// Parameters:
//   - stats: the pacer snapshot taken after the frame was presented
//
// Returns:
//   - bool: true if stats were logged this tick, false otherwise
func (p *Profiler) Tick(stats pacer.Stats) bool {
	p.frameCount++
	currentTime := p.now()
	elapsed := currentTime.Sub(p.lastTime)
	if elapsed < p.updateInterval {
		return false
	}

	runtime.ReadMemStats(&p.memStats)

	missed := stats.Missed
	if missed >= p.lastMissed {
		missed -= p.lastMissed
	}
	p.last = Report{
		FPS:        float64(p.frameCount) / elapsed.Seconds(),
		Missed:     missed,
		Discarded:  p.discardCount,
		CompTimeMs: float64(stats.CompTimeNs) / float64(common.MillisecondNs),
		HeapMB:     float64(p.memStats.Alloc) / 1024 / 1024,
		GCCount:    p.memStats.NumGC - p.lastGCCount,
	}

	p.log.Debug("frame timing",
		"fps", p.last.FPS,
		"missed", p.last.Missed,
		"discarded", p.last.Discarded,
		"comp_time_ms", p.last.CompTimeMs,
		"period_ms", float64(stats.FramePeriodNs)/float64(common.MillisecondNs),
		"heap_mb", p.last.HeapMB,
		"gc", p.last.GCCount)

	p.frameCount = 0
	p.discardCount = 0
	p.lastTime = currentTime
	p.lastGCCount = p.memStats.NumGC
	p.lastMissed = stats.Missed
	return true
}
