// Package playback drives a recorded timeline against the live target.
//
// The loop polls on a fixed period. While the target is not in active play it
// waits. While it is, every tick seeks the frame in effect at the target's
// audio time and re-emits that frame's full key state and cursor position.
// Keys are level driven: each bound key is pressed or released on every tick,
// not only when it changes. Once the audio time passes the last frame the
// loop finishes.
package playback

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/willibrandon/replaybot/pkg/input"
	"github.com/willibrandon/replaybot/pkg/instrumentation"
	"github.com/willibrandon/replaybot/pkg/livestate"
	"github.com/willibrandon/replaybot/pkg/metrics"
	"github.com/willibrandon/replaybot/pkg/playfield"
	"github.com/willibrandon/replaybot/pkg/recorder"
	"github.com/willibrandon/replaybot/pkg/replay"
)

// DefaultPeriod is the nominal tick period.
const DefaultPeriod = time.Millisecond

// State is the loop's phase.
type State int

const (
	Waiting State = iota
	Driving
	Finished
)

func (s State) String() string {
	switch s {
	case Waiting:
		return "waiting"
	case Driving:
		return "driving"
	case Finished:
		return "finished"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Source provides the live values the loop polls.
type Source interface {
	ElapsedTime() (int32, error)
	Mode() (livestate.Mode, error)
	WindowGeometry() (playfield.Geometry, error)
}

// Options configures a Loop. Zero values select defaults.
type Options struct {
	Period   time.Duration
	Bindings input.Bindings
	// Journal receives every emitted event.
	Journal recorder.Recorder
	Logger  *slog.Logger
	Metrics *metrics.Collectors
	// Sleep waits between ticks; time.Sleep when nil.
	Sleep func(time.Duration)
}

// Summary reports what a run did.
type Summary struct {
	// Ticks counts completed ticks by the state each one ended in.
	Ticks         map[State]int
	FramesApplied int
	LastFrame     int
	Presses       int
	Releases      int
	Moves         int
	InjectErrors  int
	Duration      time.Duration
	Final         State
}

// Loop is a single-goroutine playback state machine.
type Loop struct {
	source   Source
	timeline *replay.Timeline
	injector input.Injector
	bindings input.Bindings
	period   time.Duration
	journal  recorder.Recorder
	logger   *slog.Logger
	metrics  *metrics.Collectors
	sleep    func(time.Duration)

	ctx     context.Context
	state   State
	cursor  *replay.Cursor
	seq     int64
	summary *Summary
	driven  bool
}

// New creates a Loop over timeline.
func New(source Source, timeline *replay.Timeline, injector input.Injector, opts Options) *Loop {
	l := &Loop{
		source:   source,
		timeline: timeline,
		injector: injector,
		bindings: opts.Bindings,
		period:   opts.Period,
		journal:  opts.Journal,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		sleep:    opts.Sleep,
	}
	if l.bindings == nil {
		l.bindings = input.DefaultBindings()
	}
	if l.period <= 0 {
		l.period = DefaultPeriod
	}
	if l.journal == nil {
		l.journal = recorder.Discard
	}
	if l.logger == nil {
		l.logger = slog.New(slog.DiscardHandler)
	}
	if l.sleep == nil {
		l.sleep = time.Sleep
	}
	return l
}

// Run polls until the timeline is exhausted, a read fails, or ctx is done.
// ctx is checked between ticks only. Exhausting the timeline is a clean
// finish and returns a nil error. Bound keys are released before returning
// if any tick drove input.
func (l *Loop) Run(ctx context.Context) (*Summary, error) {
	start := time.Now()
	ctx, endTask := instrumentation.Task(ctx, "playback")
	defer endTask()
	l.ctx = ctx
	l.state = Waiting
	l.cursor = l.timeline.NewCursor()
	l.summary = &Summary{Ticks: make(map[State]int), LastFrame: -1}
	l.logger.Info("playback started",
		"frames", l.timeline.Len(),
		"start_ms", l.timeline.Start(),
		"end_ms", l.timeline.End(),
		"period", l.period)

	var err error
	for l.state != Finished {
		if err = ctx.Err(); err != nil {
			break
		}
		tickStart := time.Now()
		endRegion := instrumentation.Region(ctx, l.state.String())
		err = l.tick()
		endRegion()
		if err != nil {
			break
		}
		l.summary.Ticks[l.state]++
		l.metrics.ObserveTick(l.state.String(), time.Since(tickStart))
		if l.state == Finished {
			break
		}
		l.sleep(l.period)
	}

	if l.driven {
		l.releaseAll()
	}
	l.summary.Final = l.state
	l.summary.LastFrame = l.cursor.CurrentIndex()
	l.summary.Duration = time.Since(start)

	if err != nil {
		l.logger.Error("playback stopped", "state", l.state.String(), "error", err)
		return l.summary, err
	}
	l.logger.Info("playback finished",
		"frames_applied", l.summary.FramesApplied,
		"inject_errors", l.summary.InjectErrors,
		"duration", l.summary.Duration)
	return l.summary, nil
}

// State returns the current phase.
func (l *Loop) State() State {
	return l.state
}

func (l *Loop) tick() error {
	mode, err := l.source.Mode()
	if err != nil {
		return err
	}
	if !mode.Playing() {
		l.transition(Waiting, 0, "mode "+mode.String())
		return nil
	}

	audioTime, err := l.source.ElapsedTime()
	if err != nil {
		return err
	}
	l.metrics.SetAudioTime(audioTime)
	l.transition(Driving, audioTime, "mode "+mode.String())

	prev := l.cursor.CurrentIndex()
	frame, ok := l.cursor.Seek(audioTime)
	if !ok {
		l.transition(Finished, audioTime, "timeline exhausted")
		return nil
	}
	if idx := l.cursor.CurrentIndex(); idx != prev {
		l.summary.FramesApplied++
		l.record(recorder.Event{AudioTime: audioTime, Type: recorder.FrameApplied, Frame: idx, Details: frame.Keys.String()})
	}

	for _, ch := range replay.Channels {
		k, bound := l.bindings[ch]
		if !bound {
			continue
		}
		if frame.Keys.Has(ch) {
			l.press(audioTime, k)
		} else {
			l.release(audioTime, k)
		}
	}
	l.driven = true

	geometry, err := l.source.WindowGeometry()
	if err != nil {
		return err
	}
	x, y := playfield.ToScreen(frame.Position, geometry).Point()
	l.move(audioTime, x, y)
	return nil
}

func (l *Loop) transition(to State, audioTime int32, why string) {
	if l.state == to {
		return
	}
	from := l.state
	l.state = to
	l.logger.Info("playback state changed", "from", from.String(), "to", to.String(), "audio_ms", audioTime, "reason", why)
	instrumentation.Logf(l.ctx, "state", "%s -> %s at %dms", from, to, audioTime)
	l.record(recorder.Event{AudioTime: audioTime, Type: recorder.StateChange, Details: from.String() + " -> " + to.String()})
}

func (l *Loop) press(audioTime int32, k input.Key) {
	l.summary.Presses++
	err := l.injector.Press(k)
	l.injected("press", err)
	l.record(recorder.Event{AudioTime: audioTime, Type: recorder.KeyPress, Key: k.String(), Err: errString(err)})
}

func (l *Loop) release(audioTime int32, k input.Key) {
	l.summary.Releases++
	err := l.injector.Release(k)
	l.injected("release", err)
	l.record(recorder.Event{AudioTime: audioTime, Type: recorder.KeyRelease, Key: k.String(), Err: errString(err)})
}

func (l *Loop) move(audioTime int32, x, y int) {
	l.summary.Moves++
	err := l.injector.MoveTo(x, y)
	l.injected("move", err)
	l.record(recorder.Event{AudioTime: audioTime, Type: recorder.CursorMove, X: x, Y: y, Err: errString(err)})
}

func (l *Loop) injected(kind string, err error) {
	l.metrics.ObserveInput(kind, err != nil)
	if err == nil {
		return
	}
	l.summary.InjectErrors++
	if l.summary.InjectErrors == 1 {
		l.logger.Warn("input injection failed", "kind", kind, "error", err)
	} else {
		l.logger.Debug("input injection failed", "kind", kind, "error", err)
	}
}

func (l *Loop) releaseAll() {
	for _, k := range l.bindings.Keys() {
		l.release(0, k)
	}
}

func (l *Loop) record(e recorder.Event) {
	l.seq++
	e.Seq = l.seq
	e.Timestamp = recorder.CurrentTime()
	if err := l.journal.RecordEvent(e); err != nil {
		l.logger.Debug("journal write failed", "error", err)
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
