package pacer

type DisplayTimingBuilderOption func(*displayTimingPacerImpl)

// WithPresentOffset sets the initial estimate of how long after present the photons appear.
//
// Parameters:
//   - offsetNs: the present-to-display offset
//
// Returns:
//   - DisplayTimingBuilderOption: a function that sets the offset
func WithPresentOffset(offsetNs int64) DisplayTimingBuilderOption {
	return func(p *displayTimingPacerImpl) {
		p.presentOffsetNs = offsetNs
	}
}

// WithMargin sets how long before the present the GPU should finish.
//
// Parameters:
//   - marginNs: the target present margin
//
// Returns:
//   - DisplayTimingBuilderOption: a function that sets the margin
func WithMargin(marginNs int64) DisplayTimingBuilderOption {
	return func(p *displayTimingPacerImpl) {
		p.marginNs = marginNs
	}
}

// WithCompTimePercent sets the starting compositor time and its ceiling as percentages of the frame period.
//
// Parameters:
//   - start: initial compositor time percentage
//   - max: upper bound percentage
//
// Returns:
//   - DisplayTimingBuilderOption: a function that sets the compositor time budget
func WithCompTimePercent(start, max int64) DisplayTimingBuilderOption {
	return func(p *displayTimingPacerImpl) {
		p.compPercent = start
		p.compMaxPercent = max
	}
}

// WithAdjustPercent sets the compositor time step sizes as percentages of the frame period.
//
// Parameters:
//   - missed: step added after a missed present
//   - nonMiss: step used to chase the target margin
//
// Returns:
//   - DisplayTimingBuilderOption: a function that sets the step sizes
func WithAdjustPercent(missed, nonMiss int64) DisplayTimingBuilderOption {
	return func(p *displayTimingPacerImpl) {
		p.adjustMissedPct = missed
		p.adjustNonMissedPct = nonMiss
	}
}
