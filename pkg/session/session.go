// Package session wires a target process, its resolved pointers and a
// timeline into one object that playback runs against.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/willibrandon/replaybot/pkg/config"
	"github.com/willibrandon/replaybot/pkg/debugger"
	"github.com/willibrandon/replaybot/pkg/input"
	"github.com/willibrandon/replaybot/pkg/livestate"
	"github.com/willibrandon/replaybot/pkg/memory"
	"github.com/willibrandon/replaybot/pkg/metrics"
	"github.com/willibrandon/replaybot/pkg/playback"
	"github.com/willibrandon/replaybot/pkg/recorder"
	"github.com/willibrandon/replaybot/pkg/replay"
	"github.com/willibrandon/replaybot/pkg/resolver"
	"github.com/willibrandon/replaybot/pkg/scanner"
)

// RawInputNotice is shown before playback; injected cursor moves are
// ignored by a target reading raw input.
const RawInputNotice = "raw input must be disabled in the target for cursor movement to take effect"

// ErrBackendHaltsTarget is returned when playback is requested on a backend
// that stops the target while attached.
var ErrBackendHaltsTarget = errors.New("the delve backend halts the target; use it with scan only")

// Deps are the shared services a session reports to.
type Deps struct {
	Logger  *slog.Logger
	Metrics *metrics.Collectors
}

func (d Deps) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return d.Logger
}

// Session holds everything resolved at startup. Nothing in it is re-derived
// while it is open.
type Session struct {
	Process  memory.Process
	Pointers resolver.Pointers
	State    *livestate.Reader
	Timeline *replay.Timeline

	cfg  config.Config
	deps Deps
}

// Open finds and opens the configured process, then resolves pointers with
// Attach. replayPath may be empty when no playback is planned; otherwise the
// timeline is loaded first so a bad file fails before the target is touched.
func Open(ctx context.Context, cfg config.Config, replayPath string, deps Deps) (*Session, error) {
	logger := deps.logger()

	var tl *replay.Timeline
	if replayPath != "" {
		var err error
		if tl, err = replay.LoadTimeline(replayPath); err != nil {
			return nil, err
		}
		logger.Info("loaded replay", "path", replayPath, "frames", tl.Len(), "duration_ms", tl.Duration())
	}

	pid := cfg.Process.PID
	if pid == 0 {
		var err error
		if pid, err = memory.FindProcess(cfg.Process.Name); err != nil {
			return nil, err
		}
	}
	logger.Info("found target", "name", cfg.Process.Name, "pid", pid, "backend", cfg.Process.Backend)

	proc, err := openBackend(ctx, cfg, pid, logger)
	if err != nil {
		return nil, err
	}

	s, err := Attach(ctx, proc, cfg, deps)
	if err != nil {
		_ = proc.Close()
		return nil, err
	}
	s.Timeline = tl
	return s, nil
}

func openBackend(ctx context.Context, cfg config.Config, pid int, logger *slog.Logger) (memory.Process, error) {
	switch cfg.Process.Backend {
	case config.BackendDelve:
		opts := debugger.Options{DlvPath: cfg.Process.DlvPath, Logger: logger}
		if cfg.Process.DelveAddr != "" {
			return debugger.Connect(ctx, cfg.Process.DelveAddr, pid, opts)
		}
		return debugger.Attach(ctx, pid, opts)
	default:
		proc, err := memory.Open(pid)
		if err != nil {
			return nil, fmt.Errorf("opening process %d: %w", pid, err)
		}
		return proc, nil
	}
}

// Attach resolves the configured signatures in proc, retrying while some are
// missing, and prepares the live state reader. The session takes ownership of
// proc.
func Attach(ctx context.Context, proc memory.Process, cfg config.Config, deps Deps) (*Session, error) {
	logger := deps.logger()

	targets, err := cfg.Targets()
	if err != nil {
		return nil, err
	}
	sc := scanner.New(scanner.Options{
		MaxRegionSize: uintptr(cfg.Scan.MaxRegionSize),
		Logger:        logger,
		Metrics:       deps.Metrics,
	})
	res, err := resolver.New(targets, sc, cfg.Scan.PointerSize, logger)
	if err != nil {
		return nil, err
	}

	ptrs, err := res.ResolveWithRetry(ctx, proc, cfg.RetryPolicy())
	if err != nil {
		return nil, fmt.Errorf("resolving pointers in process %d: %w", proc.PID(), err)
	}

	state, err := livestate.New(proc, ptrs, cfg.Layout())
	if err != nil {
		return nil, err
	}
	return &Session{
		Process:  proc,
		Pointers: ptrs,
		State:    state,
		cfg:      cfg,
		deps:     deps,
	}, nil
}

// PlayOptions adjusts a single playback run.
type PlayOptions struct {
	Injector input.Injector
	Journal  recorder.Recorder
}

// Play runs the playback loop over the session's timeline.
func (s *Session) Play(ctx context.Context, opts PlayOptions) (*playback.Summary, error) {
	if s.Timeline == nil {
		return nil, fmt.Errorf("%w: no replay loaded", replay.ErrLoad)
	}
	if _, halted := s.Process.(*debugger.Session); halted {
		return nil, ErrBackendHaltsTarget
	}
	bindings, err := s.cfg.Bindings()
	if err != nil {
		return nil, err
	}

	logger := s.deps.logger()
	logger.Warn(RawInputNotice)

	loop := playback.New(s.State, s.Timeline, opts.Injector, playback.Options{
		Period:   s.cfg.Playback.Period,
		Bindings: bindings,
		Journal:  opts.Journal,
		Logger:   logger,
		Metrics:  s.deps.Metrics,
	})
	return loop.Run(ctx)
}

// Close releases the process handle.
func (s *Session) Close() error {
	if s.Process == nil {
		return nil
	}
	err := s.Process.Close()
	s.Process = nil
	return err
}
