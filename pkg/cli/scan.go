package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/willibrandon/replaybot/pkg/livestate"
	"github.com/willibrandon/replaybot/pkg/resolver"
	"github.com/willibrandon/replaybot/pkg/session"
)

// scanResult is the JSON form of a scan.
type scanResult struct {
	PID      int               `json:"pid"`
	Pointers map[string]string `json:"pointers"`
	Sample   *sampleJSON       `json:"sample,omitempty"`
	Error    string            `json:"sample_error,omitempty"`
}

type sampleJSON struct {
	TimeMs int32   `json:"time_ms"`
	Mode   string  `json:"mode"`
	Width  float32 `json:"width"`
	Height float32 `json:"height"`
}

func newScanCmd(g *globalOptions) *cobra.Command {
	var (
		target     targetOptions
		outputJSON bool
	)

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Resolve the client's pointers and read its live state once",
		Long: `Scans the client's executable memory for the configured signatures, prints
the resolved pointers and one sample of the elapsed time, mode and window
size. Nothing is injected.

The delve backend is only usable here: it halts the client while attached.`,
		Example: `  replaybot scan
  replaybot scan --pid 4242 --json
  replaybot scan --backend delve --delve-addr 127.0.0.1:4040
  replaybot scan --simulate`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load(cmd)
			if err != nil {
				return err
			}
			target.apply(cmd, &cfg)
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
			s, _, err := target.open(ctx, cfg, "", session.Deps{Logger: logger.Logger, Metrics: m})
			if err != nil {
				return err
			}
			defer s.Close()

			res := newScanResult(s.Process.PID(), s.Pointers)
			sample, sampleErr := s.State.Sample()
			if sampleErr != nil {
				res.Error = sampleErr.Error()
			} else {
				res.Sample = &sampleJSON{
					TimeMs: sample.Time,
					Mode:   sample.Mode.String(),
					Width:  sample.Geometry.Width,
					Height: sample.Geometry.Height,
				}
			}

			if outputJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			printScan(cmd.OutOrStdout(), res, sample)
			return sampleErr
		},
	}

	target.register(cmd)
	cmd.Flags().BoolVar(&outputJSON, "json", false, "output as JSON")

	return cmd
}

func newScanResult(pid int, ptrs resolver.Pointers) scanResult {
	return scanResult{
		PID: pid,
		Pointers: lo.MapValues(ptrs, func(p resolver.Pointer, _ string) string {
			return p.String()
		}),
	}
}

func printScan(w io.Writer, res scanResult, sample livestate.Sample) {
	fmt.Fprintf(w, "Process %d\n\n", res.PID)
	fmt.Fprintln(w, "Pointers:")
	names := lo.Keys(res.Pointers)
	slices.Sort(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-10s %s\n", name, res.Pointers[name])
	}
	fmt.Fprintln(w)
	if res.Sample == nil {
		fmt.Fprintf(w, "Live state unavailable: %s\n", res.Error)
		return
	}
	fmt.Fprintln(w, "Live state:")
	fmt.Fprintf(w, "  time       %d ms\n", sample.Time)
	fmt.Fprintf(w, "  mode       %s\n", sample.Mode)
	fmt.Fprintf(w, "  window     %s\n", sample.Geometry)
}
