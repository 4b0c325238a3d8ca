package pacer

type FakeBuilderOption func(*fakePacerImpl)

// WithFakeCompTime overrides the fixed compositor time budget.
//
// Parameters:
//   - compTimeNs: time reserved before each present for compositing
//
// Returns:
//   - FakeBuilderOption: a function that sets the budget
func WithFakeCompTime(compTimeNs int64) FakeBuilderOption {
	return func(p *fakePacerImpl) {
		p.compTimeNs = compTimeNs
	}
}

// WithFakePresentOffset overrides the present-to-display offset.
//
// Parameters:
//   - offsetNs: the offset
//
// Returns:
//   - FakeBuilderOption: a function that sets the offset
func WithFakePresentOffset(offsetNs int64) FakeBuilderOption {
	return func(p *fakePacerImpl) {
		p.presentOffsetNs = offsetNs
	}
}
