package pacer

import (
	"context"
	"log/slog"
	"sync"

	"github.com/Carmen-Shannon/oxy-xr/common"
)

// frameRingSize is the number of frames the display timing pacer remembers.
const frameRingSize = 16

type frameState int

const (
	stateSkipped frameState = iota - 1
	stateCleared
	statePredicted
	stateWoke
	stateBegan
	stateSubmitted
	stateInfo
)

type frameRecord struct {
	id    int64
	state frameState

	whenPredictNs   int64
	wakeUpNs        int64
	whenWokeNs      int64
	whenBeganNs     int64
	whenSubmittedNs int64
	whenInfoedNs    int64

	compTimeNs         int64
	desiredPresentNs   int64
	predictedDisplayNs int64
	presentMarginNs    int64
	actualPresentNs    int64
	earliestPresentNs  int64
	gpuStartNs         int64
	gpuEndNs           int64
}

// displayTimingPacerImpl locks predictions to the present times reported by the display.
// Compositor time adapts: a missed present grows it, a present margin away from the target
// margin nudges it toward the target.
type displayTimingPacerImpl struct {
	mu  *sync.Mutex
	log *slog.Logger

	framePeriodNs   int64
	presentOffsetNs int64
	marginNs        int64
	compTimeNs      int64
	compTimeMaxNs   int64
	adjustMissedNs  int64
	adjustNonMissNs int64

	// Percentages of the frame period, resolved once options are applied.
	compPercent        int64
	compMaxPercent     int64
	adjustMissedPct    int64
	adjustNonMissedPct int64

	nextFrameID int64
	frames      [frameRingSize]frameRecord
	stats       Stats
}

var _ Pacer = &displayTimingPacerImpl{}

// NewDisplayTimingPacer creates a pacer for a display that reports present feedback.
//
// Parameters:
//   - framePeriodNs: the estimated display refresh interval
//   - options: functional options to configure the pacer
//
// Returns:
//   - Pacer: the pacer
func NewDisplayTimingPacer(framePeriodNs int64, options ...DisplayTimingBuilderOption) Pacer {
	p := &displayTimingPacerImpl{
		mu:                 &sync.Mutex{},
		log:                common.ComponentLogger("pacer"),
		framePeriodNs:      framePeriodNs,
		presentOffsetNs:    4 * common.MillisecondNs,
		marginNs:           common.MillisecondNs,
		compPercent:        10,
		compMaxPercent:     30,
		adjustMissedPct:    4,
		adjustNonMissedPct: 2,
	}

	for _, option := range options {
		option(p)
	}

	p.compTimeNs = percentOf(framePeriodNs, p.compPercent)
	p.compTimeMaxNs = percentOf(framePeriodNs, p.compMaxPercent)
	p.adjustMissedNs = percentOf(framePeriodNs, p.adjustMissedPct)
	p.adjustNonMissNs = percentOf(framePeriodNs, p.adjustNonMissedPct)

	p.log.Info("created display timing pacer", "period_ms", float64(framePeriodNs)/float64(common.MillisecondNs))
	return p
}

func (p *displayTimingPacerImpl) totalCompTime() int64 {
	return p.compTimeNs + p.marginNs
}

func (p *displayTimingPacerImpl) frame(id int64) *frameRecord {
	return &p.frames[id%frameRingSize]
}

func (p *displayTimingPacerImpl) createFrame(state frameState) *frameRecord {
	id := p.nextFrameID
	p.nextFrameID++
	f := p.frame(id)
	*f = frameRecord{id: id, state: state}
	return f
}

// latestFrameAtLeast returns the newest remembered frame whose state is at least state.
func (p *displayTimingPacerImpl) latestFrameAtLeast(state frameState) *frameRecord {
	for count := int64(1); count <= p.nextFrameID && count < frameRingSize; count++ {
		id := p.nextFrameID - count
		f := p.frame(id)
		if f.state >= state && f.id == id {
			return f
		}
	}
	return nil
}

// walkForward finds the first present slot after lastPresentNs that still leaves room for
// the compositor to render.
func (p *displayTimingPacerImpl) walkForward(lastPresentNs, nowNs int64) *frameRecord {
	fromNs := nowNs + p.totalCompTime()
	desired := lastPresentNs + p.framePeriodNs
	for desired <= fromNs {
		p.log.Debug("skipped present slot", "from_ns", fromNs, "desired_ns", desired)
		desired += p.framePeriodNs
	}

	f := p.createFrame(statePredicted)
	f.whenPredictNs = nowNs
	f.desiredPresentNs = desired
	return f
}

// predictNext picks a present slot from the best evidence available: present feedback,
// then earlier predictions, then a guess ten periods out.
func (p *displayTimingPacerImpl) predictNext(nowNs int64) (*frameRecord, bool) {
	lastPredicted := p.latestFrameAtLeast(statePredicted)
	lastCompleted := p.latestFrameAtLeast(stateInfo)

	var f *frameRecord
	switch {
	case lastPredicted == nil && lastCompleted == nil:
		f = p.createFrame(statePredicted)
		f.whenPredictNs = nowNs
		f.desiredPresentNs = nowNs + p.framePeriodNs*10
	case lastCompleted == lastPredicted:
		f = p.walkForward(lastCompleted.earliestPresentNs, nowNs)
	case lastCompleted != nil:
		diffID := lastPredicted.id - lastCompleted.id
		adjusted := lastCompleted.earliestPresentNs + diffID*p.framePeriodNs
		if diffID > 1 {
			p.log.Debug("predicting past unfinished frames", "diff_id", diffID, "adjusted_last_present_ns", adjusted)
		}
		f = p.walkForward(adjusted, nowNs)
	default:
		f = p.walkForward(lastPredicted.predictedDisplayNs, nowNs)
	}

	f.predictedDisplayNs = f.desiredPresentNs + p.presentOffsetNs
	f.wakeUpNs = f.desiredPresentNs - p.totalCompTime()
	f.compTimeNs = p.compTimeNs
	return f, lastCompleted != nil
}

func (p *displayTimingPacerImpl) Predict(nowNs int64) Prediction {
	p.mu.Lock()
	defer p.mu.Unlock()

	f, haveFeedback := p.predictNext(nowNs)
	p.stats.Predicted++

	// Without feedback the present slot is a guess, so allow a wider window.
	slop := 2 * common.MillisecondNs
	if haveFeedback {
		slop = common.HalfMillisecondNs
	}

	return Prediction{
		FrameID:                  f.id,
		WakeUpNs:                 f.wakeUpNs,
		DesiredPresentNs:         f.desiredPresentNs,
		PresentSlopNs:            slop,
		PredictedDisplayNs:       f.predictedDisplayNs,
		PredictedDisplayPeriodNs: p.framePeriodNs,
		MinDisplayPeriodNs:       p.framePeriodNs,
	}
}

// lookup returns the tracked frame for id, or nil after logging when it is gone.
func (p *displayTimingPacerImpl) lookup(id int64, what string) *frameRecord {
	if id < 0 {
		p.log.Warn("discarded "+what+" for invalid frame", "frame_id", id)
		return nil
	}
	f := p.frame(id)
	if f.id != id {
		attrs := []any{"frame_id", id}
		if last := p.latestFrameAtLeast(statePredicted); last != nil {
			attrs = append(attrs, "latest_predicted", last.id)
		}
		p.log.Warn("discarded "+what+" for unsubmitted or expired frame", attrs...)
		return nil
	}
	return f
}

func (p *displayTimingPacerImpl) MarkPoint(point TimingPoint, frameID int64, whenNs int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	f := p.lookup(frameID, "point marking")
	if f == nil {
		return
	}

	switch point {
	case PointWakeUp:
		f.state = stateWoke
		f.whenWokeNs = whenNs
	case PointBegin:
		f.state = stateBegan
		f.whenBeganNs = whenNs
	case PointSubmit:
		f.state = stateSubmitted
		f.whenSubmittedNs = whenNs
	}
}

func (p *displayTimingPacerImpl) InfoGPU(frameID int64, gpuStartNs, gpuEndNs, _ int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if f := p.lookup(frameID, "gpu info"); f != nil {
		f.gpuStartNs = gpuStartNs
		f.gpuEndNs = gpuEndNs
	}
}

func (p *displayTimingPacerImpl) Info(frameID int64, desiredPresentNs, actualPresentNs, earliestPresentNs, presentMarginNs, whenNs int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	last := p.latestFrameAtLeast(stateInfo)
	f := p.lookup(frameID, "present info")
	if f == nil {
		return
	}
	if f.desiredPresentNs != desiredPresentNs {
		p.log.Debug("present info desired time differs from prediction",
			"frame_id", frameID, "predicted_ns", f.desiredPresentNs, "reported_ns", desiredPresentNs)
	}

	f.whenInfoedNs = whenNs
	f.actualPresentNs = actualPresentNs
	f.earliestPresentNs = earliestPresentNs
	f.presentMarginNs = presentMarginNs
	f.state = stateInfo

	var sinceLastNs int64
	if last != nil {
		sinceLastNs = f.desiredPresentNs - last.desiredPresentNs
	}

	p.adjustCompTime(f)
	p.stats.Infoed++
	p.stats.LastPresentMarginNs = presentMarginNs

	p.log.Log(context.Background(), common.LevelTrace, "present info",
		"frame_id", frameID,
		"since_last_frame_ns", sinceLastNs,
		"desired_ns", f.desiredPresentNs,
		"actual_ns", actualPresentNs,
		"earliest_ns", earliestPresentNs,
		"margin_ns", presentMarginNs,
		"comp_time_ns", p.compTimeNs)
}

func (p *displayTimingPacerImpl) adjustCompTime(f *frameRecord) {
	if f.actualPresentNs > f.desiredPresentNs && !withinRange(f.actualPresentNs, f.desiredPresentNs, common.HalfMillisecondNs) {
		p.stats.Missed++
		p.log.Warn("frame missed", "frame_id", f.id, "missed_ms", float64(f.actualPresentNs-f.desiredPresentNs)/float64(common.MillisecondNs))
		p.compTimeNs = min(p.compTimeNs+p.adjustMissedNs, p.compTimeMaxNs)
		return
	}

	if withinRange(f.presentMarginNs, p.marginNs, p.adjustNonMissNs) {
		return
	}
	if f.presentMarginNs > p.marginNs {
		p.compTimeNs -= p.adjustNonMissNs
	} else {
		p.compTimeNs += p.adjustNonMissNs
	}
}

func (p *displayTimingPacerImpl) UpdatePresentOffset(_ int64, offsetNs int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.presentOffsetNs = offsetNs
}

// UpdateVblank is a no-op: present feedback already carries the vsync phase.
func (p *displayTimingPacerImpl) UpdateVblank(int64) {}

func (p *displayTimingPacerImpl) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.stats
	s.FramePeriodNs = p.framePeriodNs
	s.CompTimeNs = p.compTimeNs
	s.PresentOffsetNs = p.presentOffsetNs
	return s
}
