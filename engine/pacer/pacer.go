// Package pacer predicts when compositor and application frames will reach the display,
// schedules the wake-up, render-begin and submit points of each frame and absorbs present
// feedback to keep those predictions locked to vsync.
package pacer

import (
	"fmt"
)

// TimingPoint is a milestone inside one frame.
type TimingPoint int

const (
	// PointWakeUp is when the frame's thread returned from its wait.
	PointWakeUp TimingPoint = iota
	// PointBegin is when rendering work started.
	PointBegin
	// PointSubmit is when the work was handed to the GPU.
	PointSubmit
)

func (p TimingPoint) String() string {
	switch p {
	case PointWakeUp:
		return "wake_up"
	case PointBegin:
		return "begin"
	case PointSubmit:
		return "submit"
	}
	return fmt.Sprintf("TimingPoint(%d)", int(p))
}

// Prediction is the schedule for one compositor frame. All times are runtime nanoseconds.
type Prediction struct {
	FrameID int64
	// WakeUpNs is when the compositor should start working on the frame.
	WakeUpNs int64
	// DesiredPresentNs is when the image should be handed to scanout.
	DesiredPresentNs int64
	// PresentSlopNs is how far from DesiredPresentNs the present may land and still count as on time.
	PresentSlopNs int64
	// PredictedDisplayNs is when photons are expected to leave the panel.
	PredictedDisplayNs       int64
	PredictedDisplayPeriodNs int64
	MinDisplayPeriodNs       int64
}

// Stats summarizes a pacer's recent behavior for the profiler.
type Stats struct {
	FramePeriodNs   int64
	CompTimeNs      int64
	PresentOffsetNs int64
	// LastPresentMarginNs is the margin reported with the most recent present feedback.
	LastPresentMarginNs int64
	Predicted           uint64
	Infoed              uint64
	Missed              uint64
}

// Pacer is the compositor side frame timing helper. Every frame goes through
// Predict, MarkPoint for wake-up, begin and submit, then optionally InfoGPU and Info.
// Marks and feedback for a frame that is no longer tracked are ignored.
// Implementations are safe for concurrent use.
type Pacer interface {
	// Predict creates the next frame and returns its schedule.
	//
	// Parameters:
	//   - nowNs: the current runtime time
	//
	// Returns:
	//   - Prediction: the schedule of the new frame
	Predict(nowNs int64) Prediction

	// MarkPoint records that a frame reached a timing point.
	//
	// Parameters:
	//   - point: the timing point
	//   - frameID: a frame returned by Predict
	//   - whenNs: when the point was reached
	MarkPoint(point TimingPoint, frameID int64, whenNs int64)

	// InfoGPU records when the GPU started and finished the frame's work.
	//
	// Parameters:
	//   - frameID: a frame returned by Predict
	//   - gpuStartNs: GPU work start
	//   - gpuEndNs: GPU work end
	//   - whenNs: when the information became available
	InfoGPU(frameID int64, gpuStartNs, gpuEndNs, whenNs int64)

	// Info feeds back how presentation of a frame actually went.
	//
	// Parameters:
	//   - frameID: a frame returned by Predict
	//   - desiredPresentNs: the desired present time the frame was submitted with
	//   - actualPresentNs: when the image was actually presented
	//   - earliestPresentNs: the earliest time the image could have been presented
	//   - presentMarginNs: how long before the present the GPU finished
	//   - whenNs: when the feedback became available
	Info(frameID int64, desiredPresentNs, actualPresentNs, earliestPresentNs, presentMarginNs, whenNs int64)

	// UpdatePresentOffset sets the delay between present and photons.
	//
	// Parameters:
	//   - frameID: the frame the measurement belongs to
	//   - offsetNs: the new present-to-display offset
	UpdatePresentOffset(frameID int64, offsetNs int64)

	// UpdateVblank reports a vblank observed by the display.
	//
	// Parameters:
	//   - lastVblankNs: when the vblank happened
	UpdateVblank(lastVblankNs int64)

	// Stats returns a snapshot of the pacer's counters.
	//
	// Returns:
	//   - Stats: the snapshot
	Stats() Stats
}

// percentOf returns pct percent of t.
func percentOf(t int64, pct int64) int64 {
	return t * pct / 100
}

// withinRange reports whether l and r are less than rangeNs apart.
func withinRange(l, r, rangeNs int64) bool {
	d := l - r
	return -rangeNs < d && d < rangeNs
}
