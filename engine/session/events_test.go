package session

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stateEvent(id uuid.UUID, st State) Event {
	return Event{Type: EventSessionStateChanged, Session: id, State: st}
}

func TestQueueIsFIFO(t *testing.T) {
	q := NewQueue(4)
	id := uuid.New()
	q.Push(stateEvent(id, StateIdle))
	q.Push(stateEvent(id, StateReady))
	assert.Equal(t, 2, q.Len())

	e, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, StateIdle, e.State)
	e, ok = q.Pop()
	require.True(t, ok)
	assert.Equal(t, StateReady, e.State)

	_, ok = q.Pop()
	assert.False(t, ok, "an empty queue does not block")
}

func TestQueueOverflowReportsLostEvents(t *testing.T) {
	q := NewQueue(2)
	id := uuid.New()
	for _, st := range []State{StateIdle, StateReady, StateSynchronized, StateVisible} {
		q.Push(stateEvent(id, st))
	}
	assert.Equal(t, 2, q.Len())

	e, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, EventEventsLost, e.Type)
	assert.Equal(t, 2, e.LostCount)

	e, _ = q.Pop()
	assert.Equal(t, StateSynchronized, e.State, "the oldest events were dropped")
	e, _ = q.Pop()
	assert.Equal(t, StateVisible, e.State)
}

func TestQueueDropRemovesOneSession(t *testing.T) {
	q := NewQueue(0)
	a, b := uuid.New(), uuid.New()
	q.Push(stateEvent(a, StateIdle))
	q.Push(stateEvent(b, StateIdle))
	q.Push(stateEvent(a, StateReady))

	q.Drop(a)
	require.Equal(t, 1, q.Len())
	e, _ := q.Pop()
	assert.Equal(t, b, e.Session)
}

func TestEventStrings(t *testing.T) {
	assert.Equal(t, "interaction_profile_changed", EventInteractionProfileChanged.String())
	assert.Equal(t, "loss_pending", StateLossPending.String())
	assert.Equal(t, "EventType(99)", EventType(99).String())
}
