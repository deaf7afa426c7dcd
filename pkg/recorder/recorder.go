// Package recorder journals the input emitted during playback.
package recorder

// Recorder stores journal events
type Recorder interface {
	RecordEvent(e Event) error
	GetEvents() []Event
	Clear()
}

// InMemoryRecorder keeps events in a slice
type InMemoryRecorder struct {
	events []Event
}

// NewInMemoryRecorder creates an empty InMemoryRecorder
func NewInMemoryRecorder() *InMemoryRecorder {
	return &InMemoryRecorder{events: []Event{}}
}

func (r *InMemoryRecorder) RecordEvent(e Event) error {
	r.events = append(r.events, e)
	return nil
}

func (r *InMemoryRecorder) GetEvents() []Event {
	return r.events
}

func (r *InMemoryRecorder) Clear() {
	r.events = []Event{}
}

// Discard is a Recorder that drops every event
var Discard Recorder = discard{}

type discard struct{}

func (discard) RecordEvent(Event) error { return nil }
func (discard) GetEvents() []Event      { return nil }
func (discard) Clear()                  {}
