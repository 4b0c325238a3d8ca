package session

import (
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-xr/engine/space"
	"github.com/google/uuid"
)

// DefaultQueueCapacity is how many events a queue holds before it starts dropping the oldest.
const DefaultQueueCapacity = 32

// EventType identifies the payload of an Event.
type EventType int

const (
	EventSessionStateChanged EventType = iota + 1
	EventReferenceSpaceChangePending
	EventInteractionProfileChanged
	EventEventsLost
)

func (t EventType) String() string {
	switch t {
	case EventSessionStateChanged:
		return "session_state_changed"
	case EventReferenceSpaceChangePending:
		return "reference_space_change_pending"
	case EventInteractionProfileChanged:
		return "interaction_profile_changed"
	case EventEventsLost:
		return "events_lost"
	}
	return fmt.Sprintf("EventType(%d)", int(t))
}

// Event is one entry of the client event queue. Only the fields of its Type are set.
type Event struct {
	Type    EventType
	Session uuid.UUID
	TimeNs  int64

	// State is the new state of a session-state-changed event.
	State State
	// ReferenceSpace is the space a reference-space-change-pending event is about.
	ReferenceSpace space.ReferenceType
	// LostCount is how many events an events-lost event stands for.
	LostCount int
}

// Queue is the bounded FIFO events are delivered through. When full, pushing drops the oldest
// event; the next Pop then reports the drop as a single events-lost event.
// Safe for concurrent use.
type Queue struct {
	mu       *sync.Mutex
	capacity int
	events   []Event
	lost     int
}

// NewQueue creates an empty event queue.
//
// Parameters:
//   - capacity: the most events held at once, DefaultQueueCapacity if below one
//
// Returns:
//   - *Queue: the queue
func NewQueue(capacity int) *Queue {
	if capacity < 1 {
		capacity = DefaultQueueCapacity
	}
	return &Queue{
		mu:       &sync.Mutex{},
		capacity: capacity,
		events:   make([]Event, 0, capacity),
	}
}

// Push appends an event.
func (q *Queue) Push(e Event) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.events) == q.capacity {
		q.events = append(q.events[:0], q.events[1:]...)
		q.lost++
	}
	q.events = append(q.events, e)
}

// Pop removes the oldest event. It never blocks.
//
// Returns:
//   - Event: the event
//   - bool: false if the queue is empty
func (q *Queue) Pop() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.lost > 0 {
		e := Event{Type: EventEventsLost, LostCount: q.lost}
		q.lost = 0
		return e, true
	}
	if len(q.events) == 0 {
		return Event{}, false
	}
	e := q.events[0]
	q.events = append(q.events[:0], q.events[1:]...)
	return e, true
}

// Len returns how many events are waiting, not counting a pending events-lost report.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Drop removes every event belonging to a session, as when the session is destroyed.
func (q *Queue) Drop(id uuid.UUID) {
	q.mu.Lock()
	defer q.mu.Unlock()
	kept := q.events[:0]
	for _, e := range q.events {
		if e.Session != id {
			kept = append(kept, e)
		}
	}
	q.events = kept
}
