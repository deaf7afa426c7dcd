package cli

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/willibrandon/replaybot/pkg/config"
	"github.com/willibrandon/replaybot/pkg/metrics"
	"github.com/willibrandon/replaybot/pkg/replay"
	"github.com/willibrandon/replaybot/pkg/session"
	"github.com/willibrandon/replaybot/pkg/simulate"
)

// simulatedPID is reported by the simulated target.
const simulatedPID = 1

// targetOptions select the process to attach to.
type targetOptions struct {
	process     string
	pid         int
	backend     string
	delveAddr   string
	metricsAddr string
	simulate    bool
}

func (o *targetOptions) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&o.process, "process", "", "target process image name")
	f.IntVar(&o.pid, "pid", 0, "target process id; skips the lookup by name")
	f.StringVar(&o.backend, "backend", "", "memory backend: native or delve")
	f.StringVar(&o.delveAddr, "delve-addr", "", "existing headless delve server to connect to")
	f.StringVar(&o.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	f.BoolVar(&o.simulate, "simulate", false, "run against an in-memory simulated target")
}

func (o *targetOptions) apply(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("process") {
		cfg.Process.Name = o.process
	}
	if f.Changed("pid") {
		cfg.Process.PID = o.pid
	}
	if f.Changed("backend") {
		cfg.Process.Backend = o.backend
	}
	if f.Changed("delve-addr") {
		cfg.Process.DelveAddr = o.delveAddr
	}
	if f.Changed("metrics-addr") {
		cfg.Metrics.Addr = o.metricsAddr
	}
}

// open attaches to the configured process, or to a fresh simulated target
// when --simulate is set. The simulated target is returned so the caller can
// drive it.
func (o *targetOptions) open(ctx context.Context, cfg config.Config, replayPath string, deps session.Deps) (*session.Session, *simulate.Target, error) {
	if !o.simulate {
		s, err := session.Open(ctx, cfg, replayPath, deps)
		return s, nil, err
	}

	var tl *replay.Timeline
	if replayPath != "" {
		var err error
		if tl, err = replay.LoadTimeline(replayPath); err != nil {
			return nil, nil, err
		}
	}
	target, err := simulate.New(simulatedPID, cfg)
	if err != nil {
		return nil, nil, err
	}
	s, err := session.Attach(ctx, target, cfg, deps)
	if err != nil {
		return nil, nil, err
	}
	s.Timeline = tl
	deps.Logger.Info("attached to simulated target", "pid", simulatedPID)
	return s, target, nil
}

// startMetrics registers the collectors on a fresh registry and serves it in
// the background until ctx is done. It returns nil collectors when addr is
// empty.
func startMetrics(ctx context.Context, addr string, logger *slog.Logger) (*metrics.Collectors, error) {
	if addr == "" {
		return nil, nil
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m, err := metrics.New(reg)
	if err != nil {
		return nil, err
	}
	go func() {
		if err := metrics.Serve(ctx, addr, reg, logger); err != nil {
			logger.Error("metrics server failed", "addr", addr, "error", err)
		}
	}()
	return m, nil
}
