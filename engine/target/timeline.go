package target

import (
	"context"
	"sync"
)

// Timeline is a monotonically increasing 64-bit counter that waiters block on, the host side
// of a GPU timeline semaphore. The renderer signals the value of each frame's render work and
// the target waits for it before presenting.
type Timeline struct {
	mu      *sync.Mutex
	value   uint64
	changed chan struct{}
}

// NewTimeline creates a timeline at value zero.
//
// Returns:
//   - *Timeline: the timeline
func NewTimeline() *Timeline {
	return &Timeline{mu: &sync.Mutex{}, changed: make(chan struct{})}
}

// Value returns the last signalled value.
func (t *Timeline) Value() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.value
}

// Signal advances the timeline to v. Values at or below the current one are ignored.
//
// Parameters:
//   - v: the new value
//
// Returns:
//   - bool: true if the timeline advanced
func (t *Timeline) Signal(v uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if v <= t.value {
		return false
	}
	t.value = v
	close(t.changed)
	t.changed = make(chan struct{})
	return true
}

// Wait blocks until the timeline reaches v or ctx is done.
//
// Parameters:
//   - ctx: cancels the wait
//   - v: the value to wait for
//
// Returns:
//   - error: ctx.Err() if the wait was cancelled
func (t *Timeline) Wait(ctx context.Context, v uint64) error {
	for {
		t.mu.Lock()
		if t.value >= v {
			t.mu.Unlock()
			return nil
		}
		ch := t.changed
		t.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
