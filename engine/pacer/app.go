package pacer

import (
	"context"
	"log/slog"
	"sync"

	"github.com/Carmen-Shannon/oxy-xr/common"
)

const appRingSize = 8

// iirAlpha weights the running estimate against a new sample.
const iirAlpha = 0.8

type appFrameState int

const (
	appReady appFrameState = iota
	appPredicted
	appWaitLeft
	appBegun
	appDelivered
)

type appFrame struct {
	id    int64
	state appFrameState

	predictedDisplayNs int64
	periodNs           int64
	predictedGPUDoneNs int64
	displayNs          int64

	whenPredictedNs int64
	whenWokeNs      int64
	whenBeganNs     int64
	whenDeliveredNs int64
	whenGPUDoneNs   int64
}

// AppPrediction is the schedule handed to an application for one frame.
type AppPrediction struct {
	FrameID                  int64
	WakeUpNs                 int64
	PredictedDisplayNs       int64
	PredictedDisplayPeriodNs int64
}

// AppPacer schedules application frames against the compositor's schedule.
// It learns how long the application spends between wake-up, begin, delivery and GPU completion.
// Out of order marks are logged and ignored. Implementations are safe for concurrent use.
type AppPacer interface {
	// Predict starts a new application frame. Frame ids start at 1.
	//
	// Parameters:
	//   - nowNs: the current runtime time
	//
	// Returns:
	//   - AppPrediction: the schedule of the new frame
	Predict(nowNs int64) AppPrediction

	// MarkPoint records the wake-up or begin point of a frame. Submit is not an application point.
	//
	// Parameters:
	//   - point: PointWakeUp or PointBegin
	//   - frameID: the frame
	//   - whenNs: when the point was reached
	MarkPoint(point TimingPoint, frameID int64, whenNs int64)

	// MarkDiscarded releases a frame that will never be delivered.
	//
	// Parameters:
	//   - frameID: the frame
	//   - whenNs: when it was discarded
	MarkDiscarded(frameID int64, whenNs int64)

	// MarkDelivered records that the application submitted the frame's layers.
	//
	// Parameters:
	//   - frameID: the frame
	//   - whenNs: when the layers were delivered
	//   - displayTimeNs: the display time the application asked for
	MarkDelivered(frameID int64, whenNs, displayTimeNs int64)

	// MarkGPUDone records that the application's GPU work for the frame completed and
	// folds the frame's durations into the running estimates.
	//
	// Parameters:
	//   - frameID: the frame
	//   - whenNs: when the GPU work completed
	MarkGPUDone(frameID int64, whenNs int64)

	// Info feeds the compositor's latest schedule.
	//
	// Parameters:
	//   - predictedDisplayNs: the compositor's predicted display time
	//   - periodNs: the display period
	//   - extraNs: extra time the compositor needs before its own wake-up
	Info(predictedDisplayNs, periodNs, extraNs int64)
}

type appPacerImpl struct {
	mu  *sync.Mutex
	log *slog.Logger

	frames       [appRingSize]appFrame
	frameCounter int64

	cpuTimeNs  int64
	drawTimeNs int64
	waitTimeNs int64
	marginNs   int64

	lastDisplayNs  int64
	lastPeriodNs   int64
	lastExtraNs    int64
	lastReturnedNs int64
}

var _ AppPacer = &appPacerImpl{}

// NewAppPacer creates an application pacer with 2 ms initial CPU, draw and margin estimates.
//
// Returns:
//   - AppPacer: the pacer
func NewAppPacer() AppPacer {
	p := &appPacerImpl{
		mu:         &sync.Mutex{},
		log:        common.ComponentLogger("app_pacer"),
		cpuTimeNs:  2 * common.MillisecondNs,
		drawTimeNs: 2 * common.MillisecondNs,
		marginNs:   2 * common.MillisecondNs,
	}
	for i := range p.frames {
		p.frames[i] = appFrame{id: -1, state: appReady}
	}
	return p
}

func (p *appPacerImpl) appTime() int64 {
	return p.cpuTimeNs + p.drawTimeNs + p.waitTimeNs
}

func (p *appPacerImpl) compositorTime() int64 {
	return p.marginNs + p.lastExtraNs
}

// period rounds the display period up until no single stage of the application overruns it.
func (p *appPacerImpl) period() int64 {
	base := p.lastPeriodNs
	if base <= 0 {
		base = 16 * common.MillisecondNs
	}
	period := base
	for _, stage := range []int64{p.cpuTimeNs, p.drawTimeNs, p.waitTimeNs} {
		for stage > period {
			period += base
		}
	}
	return period
}

func (p *appPacerImpl) predictDisplay(nowNs, periodNs int64) int64 {
	total := p.appTime() + p.compositorTime()

	val := p.lastDisplayNs
	if val <= 0 {
		val = nowNs
	}
	// Half a period of slack keeps a slightly early compositor sample from repeating a slot.
	for val <= p.lastReturnedNs+periodNs/2 {
		val += periodNs
	}
	for val-total <= nowNs {
		val += periodNs
	}
	return val
}

func (p *appPacerImpl) Predict(nowNs int64) AppPrediction {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.frameCounter++
	id := p.frameCounter

	period := p.period()
	display := p.predictDisplay(nowNs, period)
	wake := display - p.appTime() - p.compositorTime()
	gpuDone := display - p.compositorTime()
	p.lastReturnedNs = display

	f := &p.frames[id%appRingSize]
	if f.state != appReady {
		p.log.Warn("reusing slot of unfinished frame", "frame_id", f.id, "new_frame_id", id)
	}
	*f = appFrame{
		id:                 id,
		state:              appPredicted,
		predictedDisplayNs: display,
		periodNs:           period,
		predictedGPUDoneNs: gpuDone,
		whenPredictedNs:    nowNs,
	}

	return AppPrediction{
		FrameID:                  id,
		WakeUpNs:                 wake,
		PredictedDisplayNs:       display,
		PredictedDisplayPeriodNs: period,
	}
}

// frameIn returns the frame for id if it is in one of the given states.
func (p *appPacerImpl) frameIn(id int64, what string, states ...appFrameState) *appFrame {
	if id < 0 {
		p.log.Warn("ignored "+what+" for invalid frame", "frame_id", id)
		return nil
	}
	f := &p.frames[id%appRingSize]
	if f.id != id {
		p.log.Warn("ignored "+what+" for unknown frame", "frame_id", id)
		return nil
	}
	for _, s := range states {
		if f.state == s {
			return f
		}
	}
	p.log.Warn("ignored "+what+" out of order", "frame_id", id, "state", int(f.state))
	return nil
}

func (p *appPacerImpl) MarkPoint(point TimingPoint, frameID int64, whenNs int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch point {
	case PointWakeUp:
		if f := p.frameIn(frameID, "wake-up", appPredicted); f != nil {
			f.whenWokeNs = whenNs
			f.state = appWaitLeft
		}
	case PointBegin:
		if f := p.frameIn(frameID, "begin", appWaitLeft); f != nil {
			f.whenBeganNs = whenNs
			f.state = appBegun
		}
	default:
		p.log.Warn("ignored unsupported timing point", "point", point, "frame_id", frameID)
	}
}

func (p *appPacerImpl) MarkDiscarded(frameID int64, _ int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if f := p.frameIn(frameID, "discard", appWaitLeft, appBegun); f != nil {
		*f = appFrame{id: -1, state: appReady}
	}
}

func (p *appPacerImpl) MarkDelivered(frameID int64, whenNs, displayTimeNs int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if f := p.frameIn(frameID, "delivery", appBegun); f != nil {
		f.whenDeliveredNs = whenNs
		f.displayNs = displayTimeNs
		f.state = appDelivered
	}
}

func (p *appPacerImpl) MarkGPUDone(frameID int64, whenNs int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	f := p.frameIn(frameID, "gpu done", appDelivered)
	if f == nil {
		return
	}
	f.whenGPUDoneNs = whenNs

	cpu := f.whenBeganNs - f.whenWokeNs
	draw := f.whenDeliveredNs - f.whenBeganNs
	wait := f.whenGPUDoneNs - f.whenDeliveredNs
	p.log.Log(context.Background(), common.LevelTrace, "app frame done",
		"frame_id", frameID,
		"late", whenNs > f.predictedGPUDoneNs,
		"period_ns", f.periodNs,
		"cpu_ns", cpu, "draw_ns", draw, "wait_ns", wait)

	p.cpuTimeNs = iirFilter(p.cpuTimeNs, cpu)
	p.drawTimeNs = iirFilter(p.drawTimeNs, draw)
	p.waitTimeNs = iirFilter(p.waitTimeNs, wait)

	*f = appFrame{id: -1, state: appReady}
}

func (p *appPacerImpl) Info(predictedDisplayNs, periodNs, extraNs int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastDisplayNs = predictedDisplayNs
	p.lastPeriodNs = periodNs
	p.lastExtraNs = extraNs
}

func iirFilter(current, sample int64) int64 {
	if sample < 0 {
		sample = 0
	}
	return int64(float64(current)*iirAlpha + float64(sample)*(1-iirAlpha))
}
