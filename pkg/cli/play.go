package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/willibrandon/replaybot/pkg/config"
	"github.com/willibrandon/replaybot/pkg/input"
	"github.com/willibrandon/replaybot/pkg/instrumentation"
	"github.com/willibrandon/replaybot/pkg/livestate"
	"github.com/willibrandon/replaybot/pkg/playback"
	"github.com/willibrandon/replaybot/pkg/recorder"
	"github.com/willibrandon/replaybot/pkg/session"
	"github.com/willibrandon/replaybot/pkg/simulate"
)

// simulatedLeadIn is how long the simulated target stays in song select
// before play starts.
const simulatedLeadIn = 500 * time.Millisecond

func newPlayCmd(g *globalOptions) *cobra.Command {
	var (
		target     targetOptions
		replayPath string
		dryRun     bool
		journal    string
		period     time.Duration
		tracePath  string
	)

	cmd := &cobra.Command{
		Use:   "play",
		Short: "Play a replay into the running client",
		Long: `Attaches to the client, waits for it to enter play and then drives the
replay's keys and cursor in step with the client's audio time until the
replay ends or the command is interrupted.

Raw input must be disabled in the client, or injected cursor moves are
ignored. Native injection is only available on Windows; use --dry-run
elsewhere.`,
		Example: `  replaybot play --replay run.osr
  replaybot play --replay run.osr --dry-run --journal run.journal
  replaybot play --replay run.frames.zst --simulate --log-level debug
  replaybot play --replay run.osr --dry-run --trace run.trace`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if replayPath == "" {
				return fmt.Errorf("--replay is required")
			}

			cfg, err := g.load(cmd)
			if err != nil {
				return err
			}
			target.apply(cmd, &cfg)
			if cmd.Flags().Changed("journal") {
				cfg.Playback.Journal = journal
			}
			if cmd.Flags().Changed("period") {
				cfg.Playback.Period = period
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger, err := newLogger(cmd, cfg)
			if err != nil {
				return err
			}
			defer logger.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			m, err := startMetrics(ctx, cfg.Metrics.Addr, logger.Logger)
			if err != nil {
				return err
			}
			deps := session.Deps{Logger: logger.Logger, Metrics: m}

			s, sim, err := target.open(ctx, cfg, replayPath, deps)
			if err != nil {
				return err
			}
			defer s.Close()

			inj, err := newInjector(dryRun || target.simulate, logger.Logger)
			if err != nil {
				return err
			}

			rec, err := openJournal(cfg)
			if err != nil {
				return err
			}
			if closer, ok := rec.(io.Closer); ok {
				defer closer.Close()
			}

			if tracePath != "" {
				tr, err := instrumentation.StartTrace(tracePath)
				if err != nil {
					return err
				}
				defer func() {
					if err := tr.Stop(); err != nil {
						logger.Warn("writing execution trace failed", "path", tracePath, "error", err)
					}
				}()
				logger.Info("writing execution trace", "path", tracePath)
			}

			if sim != nil {
				go driveSimulation(ctx, sim, s.Timeline.Start())
			}

			summary, err := s.Play(ctx, session.PlayOptions{Injector: inj, Journal: rec})
			if summary != nil {
				printSummary(cmd.OutOrStdout(), summary)
			}
			if errors.Is(err, context.Canceled) {
				logger.Info("playback interrupted")
				return nil
			}
			return err
		},
	}

	target.register(cmd)
	f := cmd.Flags()
	f.StringVarP(&replayPath, "replay", "r", "", "replay file (.osr, .frames, .frames.zst)")
	f.BoolVar(&dryRun, "dry-run", false, "log input instead of injecting it")
	f.StringVar(&journal, "journal", "", "record every emitted event to this file")
	f.DurationVar(&period, "period", playback.DefaultPeriod, "polling period")
	f.StringVar(&tracePath, "trace", "", "write a Go execution trace of the run to this file")

	return cmd
}

func newInjector(dryRun bool, logger *slog.Logger) (input.Injector, error) {
	if dryRun {
		return input.NewDryRun(logger), nil
	}
	inj, err := input.NewNative()
	if err != nil {
		return nil, fmt.Errorf("%w (use --dry-run)", err)
	}
	return inj, nil
}

func openJournal(cfg config.Config) (recorder.Recorder, error) {
	if cfg.Playback.Journal == "" {
		return recorder.Discard, nil
	}
	opts := recorder.DefaultFileRecorderOptions()
	opts.CompressionType = cfg.JournalCompression()
	return recorder.NewFileRecorderWithOptions(cfg.Playback.Journal, opts)
}

// driveSimulation holds the simulated target in song select for a moment,
// then starts play with the audio clock at the first frame.
func driveSimulation(ctx context.Context, sim *simulate.Target, from int32) {
	sim.SetMode(livestate.ModeSelectPlay)
	select {
	case <-ctx.Done():
		return
	case <-time.After(simulatedLeadIn):
	}
	sim.SetMode(livestate.ModePlay)
	sim.Start(from)
}

func printSummary(w io.Writer, s *playback.Summary) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "--- Playback Summary ---")
	fmt.Fprintf(w, "  Final state:     %s\n", s.Final)
	fmt.Fprintf(w, "  Ticks:           %d waiting, %d driving, %d finished\n",
		s.Ticks[playback.Waiting], s.Ticks[playback.Driving], s.Ticks[playback.Finished])
	fmt.Fprintf(w, "  Frames applied:  %d (last index %d)\n", s.FramesApplied, s.LastFrame)
	fmt.Fprintf(w, "  Input:           %d presses, %d releases, %d moves\n", s.Presses, s.Releases, s.Moves)
	fmt.Fprintf(w, "  Inject errors:   %d\n", s.InjectErrors)
	fmt.Fprintf(w, "  Wall time:       %s\n", s.Duration.Round(time.Millisecond))
}
