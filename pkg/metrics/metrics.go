// Package metrics exposes scan and playback counters to Prometheus.
// A nil *Collectors is valid and records nothing.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "replaybot"

// Collectors groups every metric the tool exports.
type Collectors struct {
	ScanDuration       prometheus.Histogram
	Regions            *prometheus.CounterVec
	SignaturesResolved prometheus.Gauge
	Ticks              *prometheus.CounterVec
	TickDuration       prometheus.Histogram
	InputEvents        *prometheus.CounterVec
	InjectErrors       prometheus.Counter
	AudioTime          prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Collectors, error) {
	c := &Collectors{
		ScanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "duration_seconds",
			Help:      "Wall time of one full signature scan.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		Regions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "regions_total",
			Help:      "Memory regions seen during scans, by outcome.",
		}, []string{"outcome"}),
		SignaturesResolved: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "signatures_resolved",
			Help:      "Number of signatures resolved by the last scan.",
		}),
		Ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "playback",
			Name:      "ticks_total",
			Help:      "Playback ticks, by state.",
		}, []string{"state"}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "playback",
			Name:      "tick_duration_seconds",
			Help:      "Time spent reading state and injecting input in one tick, excluding the sleep.",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 2, 14),
		}),
		InputEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "playback",
			Name:      "input_events_total",
			Help:      "Injected input events, by kind.",
		}, []string{"kind"}),
		InjectErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "playback",
			Name:      "inject_errors_total",
			Help:      "Input injections that reported a failure.",
		}),
		AudioTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "playback",
			Name:      "audio_time_milliseconds",
			Help:      "Last elapsed time read from the target.",
		}),
	}

	for _, col := range []prometheus.Collector{
		c.ScanDuration, c.Regions, c.SignaturesResolved,
		c.Ticks, c.TickDuration, c.InputEvents, c.InjectErrors, c.AudioTime,
	} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// ObserveScan records one finished scan.
func (c *Collectors) ObserveScan(d time.Duration, visited, eligible, unreadable, resolved int) {
	if c == nil {
		return
	}
	c.ScanDuration.Observe(d.Seconds())
	c.Regions.WithLabelValues("visited").Add(float64(visited))
	c.Regions.WithLabelValues("eligible").Add(float64(eligible))
	c.Regions.WithLabelValues("unreadable").Add(float64(unreadable))
	c.SignaturesResolved.Set(float64(resolved))
}

// ObserveTick records one playback tick in the given state.
func (c *Collectors) ObserveTick(state string, d time.Duration) {
	if c == nil {
		return
	}
	c.Ticks.WithLabelValues(state).Inc()
	c.TickDuration.Observe(d.Seconds())
}

// ObserveInput records one injected event; failed marks an injection error.
func (c *Collectors) ObserveInput(kind string, failed bool) {
	if c == nil {
		return
	}
	c.InputEvents.WithLabelValues(kind).Inc()
	if failed {
		c.InjectErrors.Inc()
	}
}

// SetAudioTime records the last elapsed time read from the target.
func (c *Collectors) SetAudioTime(ms int32) {
	if c == nil {
		return
	}
	c.AudioTime.Set(float64(ms))
}

// Serve exposes g on addr under /metrics until ctx is done.
func Serve(ctx context.Context, addr string, g prometheus.Gatherer, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
