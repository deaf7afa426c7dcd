package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/willibrandon/replaybot/pkg/replay"
)

// windowsEpochTicks is the .NET tick count at the Unix epoch.
const windowsEpochTicks = 621355968000000000

type inspectResult struct {
	Path   string         `json:"path"`
	Header *replay.Header `json:"header,omitempty"`
	Stats  replay.Stats   `json:"stats"`
}

func newInspectCmd() *cobra.Command {
	var (
		replayPath string
		export     string
		outputJSON bool
	)

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print statistics about a replay and optionally convert it",
		Long: `Loads a replay the same way play does and prints its frame count, time
span, key presses per channel and the longest gap between frames.

With --export the loaded frames are written as a frame log. A name ending in
.zst is compressed with zstd.`,
		Example: `  replaybot inspect --replay run.osr
  replaybot inspect --replay run.osr --export run.frames.zst
  replaybot inspect --replay run.frames --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if replayPath == "" {
				return fmt.Errorf("--replay is required")
			}

			res, frames, err := inspect(replayPath)
			if err != nil {
				return err
			}

			if export != "" {
				if err := replay.Save(export, frames); err != nil {
					return err
				}
			}

			if outputJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			printInspect(cmd.OutOrStdout(), res)
			if export != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "\nExported %d frames to %s\n", len(frames), export)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&replayPath, "replay", "r", "", "replay file (.osr, .frames, .frames.zst)")
	f.StringVar(&export, "export", "", "write the frames to this frame log")
	f.BoolVar(&outputJSON, "json", false, "output as JSON")

	return cmd
}

func inspect(path string) (inspectResult, []replay.Frame, error) {
	res := inspectResult{Path: path}

	var (
		frames []replay.Frame
		err    error
	)
	if strings.EqualFold(filepath.Ext(path), replay.ExtOSR) {
		var h replay.Header
		if h, frames, err = replay.LoadOSR(path); err != nil {
			return res, nil, err
		}
		res.Header = &h
	} else if frames, err = replay.Load(path); err != nil {
		return res, nil, err
	}
	if len(frames) == 0 {
		return res, nil, fmt.Errorf("%w: %s has no frames", replay.ErrLoad, path)
	}

	tl, err := replay.NewTimeline(frames)
	if err != nil {
		return res, nil, err
	}
	res.Stats = tl.Stats()
	return res, frames, nil
}

func printInspect(w io.Writer, res inspectResult) {
	fmt.Fprintf(w, "Replay %s\n", res.Path)
	if h := res.Header; h != nil {
		fmt.Fprintf(w, "  Player:        %s\n", h.Player)
		fmt.Fprintf(w, "  Beatmap hash:  %s\n", h.BeatmapHash)
		fmt.Fprintf(w, "  Score:         %d (max combo %d, %d misses)\n", h.Score, h.MaxCombo, h.CountMiss)
		fmt.Fprintf(w, "  Mods:          %#x\n", h.Mods)
		if h.Timestamp > windowsEpochTicks {
			played := time.Unix(0, (h.Timestamp-windowsEpochTicks)*100).UTC()
			fmt.Fprintf(w, "  Played:        %s\n", played.Format(time.RFC3339))
		}
	}

	s := res.Stats
	fmt.Fprintf(w, "  Frames:        %d\n", s.Frames)
	fmt.Fprintf(w, "  Span:          %d ms .. %d ms\n", s.Start, s.End)
	fmt.Fprintf(w, "  Longest gap:   %d ms\n", s.MaxGapMs)
	fmt.Fprintln(w, "  Presses:")
	names := lo.Keys(s.Presses)
	slices.Sort(names)
	for _, name := range names {
		fmt.Fprintf(w, "    %-6s %d\n", name, s.Presses[name])
	}
}
