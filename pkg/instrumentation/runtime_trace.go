// Package instrumentation integrates playback with the Go execution tracer.
//
// A run is one trace task and every tick one region named after the state it
// ran in, so `go tool trace` shows tick latency per state. Regions and logs
// cost next to nothing while no trace is being written.
package instrumentation

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"runtime/trace"
	"sync"
)

// ErrTraceActive is returned when a trace is already being written.
var ErrTraceActive = errors.New("an execution trace is already running")

var (
	activeMu sync.Mutex
	active   *Trace
)

// Trace is an execution trace being written to a file.
type Trace struct {
	path string
	f    *os.File
	w    *bufio.Writer
}

// StartTrace starts writing an execution trace to path.
func StartTrace(path string) (*Trace, error) {
	activeMu.Lock()
	defer activeMu.Unlock()
	if active != nil || trace.IsEnabled() {
		return nil, ErrTraceActive
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating trace file: %w", err)
	}
	t := &Trace{path: path, f: f, w: bufio.NewWriter(f)}
	if err := trace.Start(t.w); err != nil {
		f.Close()
		return nil, fmt.Errorf("starting execution trace: %w", err)
	}
	active = t
	return t, nil
}

// Path returns the trace file.
func (t *Trace) Path() string {
	return t.path
}

// Stop ends the trace and closes the file. Calling it again is a no-op.
func (t *Trace) Stop() error {
	activeMu.Lock()
	defer activeMu.Unlock()
	if active != t {
		return nil
	}
	active = nil

	trace.Stop()
	err := t.w.Flush()
	if cerr := t.f.Close(); err == nil {
		err = cerr
	}
	return err
}

// Task starts a trace task; call end when it is done.
func Task(ctx context.Context, name string) (context.Context, func()) {
	ctx, task := trace.NewTask(ctx, name)
	return ctx, task.End
}

// Region marks a region of the current goroutine; call end when it is done.
func Region(ctx context.Context, name string) (end func()) {
	return trace.StartRegion(ctx, name).End
}

// Logf attaches a message to the task in ctx.
func Logf(ctx context.Context, category, format string, args ...any) {
	if !trace.IsEnabled() {
		return
	}
	trace.Logf(ctx, category, format, args...)
}
