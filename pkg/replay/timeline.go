// Package replay holds recorded frames and answers "what was held at time t".
package replay

import (
	"errors"
	"fmt"
	"sort"
)

// ErrLoad is returned when a recording cannot be loaded.
var ErrLoad = errors.New("replay load failure")

// Timeline is an immutable sequence of frames ordered by time.
type Timeline struct {
	frames []Frame
}

// NewTimeline checks that frame times never decrease and takes a copy.
func NewTimeline(frames []Frame) (*Timeline, error) {
	for i := 1; i < len(frames); i++ {
		if frames[i].Time < frames[i-1].Time {
			return nil, fmt.Errorf("frame %d at %dms is earlier than frame %d at %dms",
				i, frames[i].Time, i-1, frames[i-1].Time)
		}
	}
	cp := make([]Frame, len(frames))
	copy(cp, frames)
	return &Timeline{frames: cp}, nil
}

// Len returns the number of frames.
func (t *Timeline) Len() int {
	return len(t.frames)
}

// Frames returns a copy of the frames.
func (t *Timeline) Frames() []Frame {
	cp := make([]Frame, len(t.frames))
	copy(cp, t.frames)
	return cp
}

// Frame returns the frame at index i.
func (t *Timeline) Frame(i int) Frame {
	return t.frames[i]
}

// Index returns the index of the frame Seek would select for audioTime, or -1
// once audioTime is past the last frame.
//
// The frame selected is the latest one not later than audioTime. Before the
// first frame (lead-in, where audio time is negative) the first frame is used.
func (t *Timeline) Index(audioTime int32) int {
	n := len(t.frames)
	if n == 0 || audioTime > t.frames[n-1].Time {
		return -1
	}
	// j is the first frame strictly after audioTime
	j := sort.Search(n, func(i int) bool { return t.frames[i].Time > audioTime })
	if j == 0 {
		return 0
	}
	return j - 1
}

// Seek returns the frame in effect at audioTime. It returns false when
// audioTime is past the last frame, which ends playback. Seek has no side
// effects.
func (t *Timeline) Seek(audioTime int32) (Frame, bool) {
	i := t.Index(audioTime)
	if i < 0 {
		return Frame{}, false
	}
	return t.frames[i], true
}

// Start returns the time of the first frame.
func (t *Timeline) Start() int32 {
	if len(t.frames) == 0 {
		return 0
	}
	return t.frames[0].Time
}

// End returns the time of the last frame.
func (t *Timeline) End() int32 {
	if len(t.frames) == 0 {
		return 0
	}
	return t.frames[len(t.frames)-1].Time
}

// Duration returns the span between the first and last frames in milliseconds.
func (t *Timeline) Duration() int32 {
	return t.End() - t.Start()
}

// Stats summarizes a timeline.
type Stats struct {
	Frames   int
	Start    int32
	End      int32
	Presses  map[string]int
	MaxGapMs int32
}

// Stats counts how many times each key channel goes from released to held.
func (t *Timeline) Stats() Stats {
	s := Stats{
		Frames:  len(t.frames),
		Start:   t.Start(),
		End:     t.End(),
		Presses: make(map[string]int, len(Channels)),
	}
	var prev Keys
	for i, f := range t.frames {
		for _, k := range Channels {
			if f.Keys.Has(k) && !prev.Has(k) {
				s.Presses[channelName(k)]++
			}
		}
		prev = f.Keys
		if i > 0 {
			if gap := f.Time - t.frames[i-1].Time; gap > s.MaxGapMs {
				s.MaxGapMs = gap
			}
		}
	}
	return s
}

// Cursor follows playback through a timeline. It remembers the last frame it
// returned so the caller can report progress and notice the end; the frame
// selection itself is always Timeline.Seek.
type Cursor struct {
	timeline *Timeline
	current  int
	done     bool
}

// NewCursor returns a cursor positioned before the first frame.
func (t *Timeline) NewCursor() *Cursor {
	return &Cursor{timeline: t, current: -1}
}

// Seek selects the frame for audioTime and records it.
func (c *Cursor) Seek(audioTime int32) (Frame, bool) {
	i := c.timeline.Index(audioTime)
	if i < 0 {
		c.done = true
		return Frame{}, false
	}
	c.current = i
	return c.timeline.frames[i], true
}

// CurrentIndex returns the index of the last frame returned, or -1.
func (c *Cursor) CurrentIndex() int {
	return c.current
}

// Done reports whether a seek has run past the last frame.
func (c *Cursor) Done() bool {
	return c.done
}
