// Package cli implements the replaybot command line.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/willibrandon/replaybot/pkg/config"
	"github.com/willibrandon/replaybot/pkg/logging"
)

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	configPath string
	logLevel   string
	logFormat  string
	logFile    string
}

// NewRootCmd creates the root replaybot command.
func NewRootCmd() *cobra.Command {
	g := &globalOptions{}

	root := &cobra.Command{
		Use:   "replaybot",
		Short: "Play recorded osu! replays back into a running client",
		Long: `replaybot locates the running osu! client, resolves its audio clock, mode
and window pointers by signature scanning, and replays a recorded timeline by
injecting keys and cursor moves in step with the client's audio time.

Settings come from defaults, a YAML file (--config) and REPLAYBOT_* environment
variables. Flags given explicitly override all of them.`,
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&g.configPath, "config", "c", "", "YAML config file")
	pf.StringVar(&g.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&g.logFormat, "log-format", "", "console log format: text, json, auto")
	pf.StringVar(&g.logFile, "log-file", "", "also write JSON logs to this file")

	root.AddCommand(
		newPlayCmd(g),
		newScanCmd(g),
		newInspectCmd(),
		newConfigCmd(),
		newVersionCmd(),
	)

	return root
}

// load reads the configuration and applies the persistent flags that were
// set explicitly.
func (g *globalOptions) load(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return cfg, err
	}
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Logging.Level = g.logLevel
	}
	if flags.Changed("log-format") {
		cfg.Logging.Format = g.logFormat
	}
	if flags.Changed("log-file") {
		cfg.Logging.File = g.logFile
	}
	return cfg, nil
}

func newLogger(cmd *cobra.Command, cfg config.Config) (*logging.Logger, error) {
	return logging.New(logging.Options{
		Level:   cfg.Logging.Level,
		Format:  cfg.Logging.Format,
		File:    cfg.Logging.File,
		Console: cmd.ErrOrStderr(),
	})
}
