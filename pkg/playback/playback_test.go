package playback

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/willibrandon/replaybot/pkg/input"
	"github.com/willibrandon/replaybot/pkg/livestate"
	"github.com/willibrandon/replaybot/pkg/memory"
	"github.com/willibrandon/replaybot/pkg/playfield"
	"github.com/willibrandon/replaybot/pkg/recorder"
	"github.com/willibrandon/replaybot/pkg/replay"
)

// fakeSource replays scripted mode and time readings. The last value of
// each script repeats once it runs out.
type fakeSource struct {
	modes    []livestate.Mode
	times    []int32
	geometry playfield.Geometry

	modeCalls int
	timeCalls int
	modeErr   error
	// onMode runs before each mode read with the call number.
	onMode func(n int)
}

func (s *fakeSource) Mode() (livestate.Mode, error) {
	s.modeCalls++
	if s.onMode != nil {
		s.onMode(s.modeCalls)
	}
	if s.modeErr != nil {
		return 0, s.modeErr
	}
	return s.modes[min(s.modeCalls, len(s.modes))-1], nil
}

func (s *fakeSource) ElapsedTime() (int32, error) {
	s.timeCalls++
	return s.times[min(s.timeCalls, len(s.times))-1], nil
}

func (s *fakeSource) WindowGeometry() (playfield.Geometry, error) {
	return s.geometry, nil
}

func threeFrames(t *testing.T) *replay.Timeline {
	t.Helper()
	tl, err := replay.NewTimeline([]replay.Frame{
		{Time: 0, Position: playfield.Vec2{X: 256, Y: 192}, Keys: replay.M1},
		{Time: 10, Position: playfield.Vec2{X: 0, Y: 0}, Keys: replay.M1 | replay.K1},
		{Time: 20, Position: playfield.Vec2{X: 512, Y: 384}},
	})
	require.NoError(t, err)
	return tl
}

// tickCalls is what one driving tick must emit for the given keys and cursor.
func tickCalls(keys replay.Keys, x, y int) []input.Call {
	b := input.DefaultBindings()
	var calls []input.Call
	for _, ch := range replay.Channels {
		op := "release"
		if keys.Has(ch) {
			op = "press"
		}
		calls = append(calls, input.Call{Op: op, Key: b[ch]})
	}
	return append(calls, input.Call{Op: "move", X: x, Y: y})
}

func releases() []input.Call {
	var calls []input.Call
	for _, k := range input.DefaultBindings().Keys() {
		calls = append(calls, input.Call{Op: "release", Key: k})
	}
	return calls
}

func TestRunEndToEnd(t *testing.T) {
	src := &fakeSource{
		modes:    []livestate.Mode{livestate.ModeSelectPlay, livestate.ModeSelectPlay, livestate.ModePlay},
		times:    []int32{0, 5, 10, 15, 20, 25},
		geometry: playfield.Geometry{Width: 640, Height: 480},
	}
	inj := &input.Capture{}
	journal := recorder.NewInMemoryRecorder()
	sleeps := 0

	loop := New(src, threeFrames(t), inj, Options{
		Journal: journal,
		Sleep:   func(time.Duration) { sleeps++ },
	})
	summary, err := loop.Run(context.Background())
	require.NoError(t, err)

	var want []input.Call
	want = append(want, tickCalls(replay.M1, 320, 248)...)
	want = append(want, tickCalls(replay.M1, 320, 248)...)
	want = append(want, tickCalls(replay.M1|replay.K1, 64, 56)...)
	want = append(want, tickCalls(replay.M1|replay.K1, 64, 56)...)
	want = append(want, tickCalls(0, 576, 440)...)
	want = append(want, releases()...)
	assert.Equal(t, want, inj.Calls)

	assert.Equal(t, Finished, loop.State())
	assert.Equal(t, Finished, summary.Final)
	assert.Equal(t, 2, summary.Ticks[Waiting])
	assert.Equal(t, 5, summary.Ticks[Driving])
	assert.Equal(t, 1, summary.Ticks[Finished])
	assert.Equal(t, 3, summary.FramesApplied)
	assert.Equal(t, 2, summary.LastFrame)
	assert.Equal(t, 5, summary.Moves)
	assert.Equal(t, 0, summary.InjectErrors)
	assert.Equal(t, 7, sleeps, "no sleep after the finishing tick")

	var applied, changes int
	for i, e := range journal.GetEvents() {
		assert.Equal(t, int64(i+1), e.Seq)
		switch e.Type {
		case recorder.FrameApplied:
			applied++
		case recorder.StateChange:
			changes++
		}
	}
	assert.Equal(t, 3, applied)
	assert.Equal(t, 2, changes)
}

func TestRunWaitsWithoutInput(t *testing.T) {
	src := &fakeSource{
		modes:    []livestate.Mode{livestate.ModeMenu},
		times:    []int32{0},
		geometry: playfield.Geometry{Width: 640, Height: 480},
	}
	ctx, cancel := context.WithCancel(context.Background())
	src.onMode = func(n int) {
		if n == 5 {
			cancel()
		}
	}
	inj := &input.Capture{}

	summary, err := New(src, threeFrames(t), inj, Options{Sleep: func(time.Duration) {}}).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, inj.Calls, "nothing is pressed or released while waiting")
	assert.Equal(t, 0, src.timeCalls)
	assert.Equal(t, 5, summary.Ticks[Waiting])
}

func TestRunLeavingPlayPauses(t *testing.T) {
	src := &fakeSource{
		modes:    []livestate.Mode{livestate.ModePlay, livestate.ModeMenu, livestate.ModePlay},
		times:    []int32{0, 30},
		geometry: playfield.Geometry{Width: 640, Height: 480},
	}
	inj := &input.Capture{}

	summary, err := New(src, threeFrames(t), inj, Options{Sleep: func(time.Duration) {}}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Ticks[Waiting])
	assert.Equal(t, 1, summary.Ticks[Driving])
	assert.Equal(t, 1, summary.Ticks[Finished])
	assert.Equal(t, append(tickCalls(replay.M1, 320, 248), releases()...), inj.Calls)
}

func TestRunReadErrorIsFatal(t *testing.T) {
	src := &fakeSource{modeErr: memory.ErrProcessGone}
	inj := &input.Capture{}

	summary, err := New(src, threeFrames(t), inj, Options{Sleep: func(time.Duration) {}}).Run(context.Background())
	assert.ErrorIs(t, err, memory.ErrProcessGone)
	assert.Empty(t, inj.Calls, "keys are only released after driving")
	assert.Equal(t, Waiting, summary.Final)
}

func TestRunCancelReleasesKeys(t *testing.T) {
	src := &fakeSource{
		modes:    []livestate.Mode{livestate.ModePlay},
		times:    []int32{10},
		geometry: playfield.Geometry{Width: 640, Height: 480},
	}
	ctx, cancel := context.WithCancel(context.Background())
	inj := &input.Capture{}

	loop := New(src, threeFrames(t), inj, Options{Sleep: func(time.Duration) { cancel() }})
	summary, err := loop.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, summary.Ticks[Driving])
	assert.Equal(t, append(tickCalls(replay.M1|replay.K1, 64, 56), releases()...), inj.Calls)
}

func TestRunCountsInjectErrors(t *testing.T) {
	src := &fakeSource{
		modes:    []livestate.Mode{livestate.ModePlay},
		times:    []int32{0, 21},
		geometry: playfield.Geometry{Width: 640, Height: 480},
	}
	inj := &input.Capture{Fail: errors.New("blocked")}
	journal := recorder.NewInMemoryRecorder()

	summary, err := New(src, threeFrames(t), inj, Options{Journal: journal, Sleep: func(time.Duration) {}}).Run(context.Background())
	require.NoError(t, err, "injection failures do not stop playback")
	assert.Equal(t, 6+5, summary.InjectErrors)

	var failed int
	for _, e := range journal.GetEvents() {
		if e.Err != "" {
			failed++
		}
	}
	assert.Equal(t, 11, failed)
}

func TestRunCustomBindings(t *testing.T) {
	src := &fakeSource{
		modes:    []livestate.Mode{livestate.ModePlay},
		times:    []int32{10, 99},
		geometry: playfield.Geometry{Width: 640, Height: 480},
	}
	inj := &input.Capture{}
	bindings := input.Bindings{replay.K1: 'A'}

	_, err := New(src, threeFrames(t), inj, Options{Bindings: bindings, Sleep: func(time.Duration) {}}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []input.Call{
		{Op: "press", Key: 'A'},
		{Op: "move", X: 64, Y: 56},
		{Op: "release", Key: 'A'},
	}, inj.Calls)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "waiting", Waiting.String())
	assert.Equal(t, "driving", Driving.String())
	assert.Equal(t, "finished", Finished.String())
	assert.Equal(t, "state(9)", State(9).String())
}
