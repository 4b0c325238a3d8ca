package pacer

import (
	"sync"

	"github.com/Carmen-Shannon/oxy-xr/common"
)

// fakePacerImpl paces at a nominal period when the display reports nothing back.
// Each prediction claims the next free present slot, so back-to-back predictions advance
// by at least one period. A reported vblank re-anchors the slot grid.
type fakePacerImpl struct {
	mu *sync.Mutex

	framePeriodNs   int64
	presentOffsetNs int64
	compTimeNs      int64
	lastPresentNs   int64
	nextFrameID     int64

	stats Stats
}

var _ Pacer = &fakePacerImpl{}

// NewFakePacer creates a pacer that needs no present feedback.
//
// Parameters:
//   - framePeriodNs: the nominal display refresh interval
//   - nowNs: the current runtime time; the first slot is placed 50 ms after it
//   - options: functional options to configure the pacer
//
// Returns:
//   - Pacer: the pacer
func NewFakePacer(framePeriodNs, nowNs int64, options ...FakeBuilderOption) Pacer {
	p := &fakePacerImpl{
		mu:              &sync.Mutex{},
		framePeriodNs:   framePeriodNs,
		presentOffsetNs: 4 * common.MillisecondNs,
		compTimeNs:      max(percentOf(framePeriodNs, 20), 2*common.MillisecondNs),
		lastPresentNs:   nowNs + 50*common.MillisecondNs,
		nextFrameID:     5,
	}

	for _, option := range options {
		option(p)
	}

	common.ComponentLogger("pacer").Info("created fake pacer", "period_ms", float64(framePeriodNs)/float64(common.MillisecondNs))
	return p
}

func (p *fakePacerImpl) Predict(nowNs int64) Prediction {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := p.nextFrameID
	p.nextFrameID++

	desired := p.lastPresentNs + p.framePeriodNs
	for nowNs+p.compTimeNs > desired {
		desired += p.framePeriodNs
	}
	p.lastPresentNs = desired
	p.stats.Predicted++

	return Prediction{
		FrameID:                  id,
		WakeUpNs:                 desired - p.compTimeNs,
		DesiredPresentNs:         desired,
		PresentSlopNs:            common.HalfMillisecondNs,
		PredictedDisplayNs:       desired + p.presentOffsetNs,
		PredictedDisplayPeriodNs: p.framePeriodNs,
		MinDisplayPeriodNs:       p.framePeriodNs,
	}
}

func (p *fakePacerImpl) MarkPoint(TimingPoint, int64, int64) {}

func (p *fakePacerImpl) InfoGPU(int64, int64, int64, int64) {}

func (p *fakePacerImpl) Info(_ int64, _, _, _, presentMarginNs, _ int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats.Infoed++
	p.stats.LastPresentMarginNs = presentMarginNs
}

func (p *fakePacerImpl) UpdatePresentOffset(_ int64, offsetNs int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.presentOffsetNs = offsetNs
}

func (p *fakePacerImpl) UpdateVblank(lastVblankNs int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastPresentNs = lastVblankNs
}

func (p *fakePacerImpl) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.stats
	s.FramePeriodNs = p.framePeriodNs
	s.CompTimeNs = p.compTimeNs
	s.PresentOffsetNs = p.presentOffsetNs
	return s
}
