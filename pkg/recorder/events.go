package recorder

import (
	"fmt"
	"time"
)

// EventType classifies journal events
type EventType int

const (
	KeyPress EventType = iota
	KeyRelease
	CursorMove
	// FrameApplied marks the first tick that drives a new timeline frame
	FrameApplied
	// StateChange marks a playback state transition
	StateChange
)

var eventTypeNames = map[EventType]string{
	KeyPress:     "KeyPress",
	KeyRelease:   "KeyRelease",
	CursorMove:   "CursorMove",
	FrameApplied: "FrameApplied",
	StateChange:  "StateChange",
}

// Event is one entry of the playback journal
type Event struct {
	Seq       int64     `json:"seq"`
	Timestamp time.Time `json:"ts"`
	// AudioTime is the target's elapsed time when the event was emitted
	AudioTime int32     `json:"audio_ms"`
	Type      EventType `json:"type"`
	Key       string    `json:"key,omitempty"`
	X         int       `json:"x,omitempty"`
	Y         int       `json:"y,omitempty"`
	Frame     int       `json:"frame,omitempty"`
	Details   string    `json:"details,omitempty"`
	// Err holds the injection error, if any
	Err string `json:"error,omitempty"`
}

// String returns the string representation of the EventType
func (et EventType) String() string {
	if name, ok := eventTypeNames[et]; ok {
		return name
	}
	return "Unknown"
}

// MarshalText encodes the type by name so journals stay readable
func (et EventType) MarshalText() ([]byte, error) {
	if _, ok := eventTypeNames[et]; !ok {
		return nil, fmt.Errorf("unknown event type %d", int(et))
	}
	return []byte(et.String()), nil
}

// UnmarshalText decodes a type name
func (et *EventType) UnmarshalText(b []byte) error {
	for t, name := range eventTypeNames {
		if name == string(b) {
			*et = t
			return nil
		}
	}
	return fmt.Errorf("unknown event type %q", b)
}

// CurrentTime returns the timestamp used for new events
func CurrentTime() time.Time {
	return time.Now()
}
