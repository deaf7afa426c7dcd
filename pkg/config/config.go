// Package config loads replaybot settings from defaults, a YAML file and
// REPLAYBOT_* environment variables, in that order of precedence (lowest
// first). Command-line flags are applied on top by the cli package.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/willibrandon/replaybot/pkg/input"
	"github.com/willibrandon/replaybot/pkg/livestate"
	"github.com/willibrandon/replaybot/pkg/recorder"
	"github.com/willibrandon/replaybot/pkg/resolver"
)

// EnvPrefix prefixes every environment variable read by ApplyEnv.
const EnvPrefix = "REPLAYBOT_"

// Process backends.
const (
	BackendNative = "native"
	BackendDelve  = "delve"
)

// Config is the top-level configuration.
type Config struct {
	Process  ProcessConfig  `yaml:"process" envPrefix:"PROCESS_"`
	Scan     ScanConfig     `yaml:"scan" envPrefix:"SCAN_"`
	Playback PlaybackConfig `yaml:"playback" envPrefix:"PLAYBACK_"`
	Logging  LoggingConfig  `yaml:"logging" envPrefix:"LOG_"`
	Metrics  MetricsConfig  `yaml:"metrics" envPrefix:"METRICS_"`
}

// ProcessConfig selects the target and how its memory is read.
type ProcessConfig struct {
	Name string `yaml:"name" env:"NAME"`
	// PID skips the lookup by name when non-zero.
	PID     int    `yaml:"pid" env:"PID"`
	Backend string `yaml:"backend" env:"BACKEND"`
	// DlvPath and DelveAddr apply to the delve backend. With DelveAddr set an
	// existing headless server is used instead of starting one.
	DlvPath   string `yaml:"dlv_path" env:"DLV_PATH"`
	DelveAddr string `yaml:"delve_addr" env:"DELVE_ADDR"`
}

// ScanConfig holds the signatures, their offsets and retry behavior.
type ScanConfig struct {
	TimeSignature      string        `yaml:"time_signature" env:"TIME_SIGNATURE"`
	TimeOffset         int64         `yaml:"time_offset" env:"TIME_OFFSET"`
	ModeSignature      string        `yaml:"mode_signature" env:"MODE_SIGNATURE"`
	ModeOffset         int64         `yaml:"mode_offset" env:"MODE_OFFSET"`
	GamefieldSignature string        `yaml:"gamefield_signature" env:"GAMEFIELD_SIGNATURE"`
	GamefieldOffset    int64         `yaml:"gamefield_offset" env:"GAMEFIELD_OFFSET"`
	PointerSize        int           `yaml:"pointer_size" env:"POINTER_SIZE"`
	MaxRegionSize      uint64        `yaml:"max_region_size" env:"MAX_REGION_SIZE"`
	RetryTimeout       time.Duration `yaml:"retry_timeout" env:"RETRY_TIMEOUT"`
	RetryInterval      time.Duration `yaml:"retry_interval" env:"RETRY_INTERVAL"`
	RetryMaxInterval   time.Duration `yaml:"retry_max_interval" env:"RETRY_MAX_INTERVAL"`
}

// PlaybackConfig controls the playback loop.
type PlaybackConfig struct {
	Period time.Duration `yaml:"period" env:"PERIOD"`
	// Bindings overrides key channels by name, e.g. K1: A.
	Bindings map[string]string `yaml:"bindings" env:"BINDINGS"`
	// Journal, when set, records every emitted event to this file.
	Journal            string `yaml:"journal" env:"JOURNAL"`
	JournalCompression string `yaml:"journal_compression" env:"JOURNAL_COMPRESSION"`
	WindowOffset       uint64 `yaml:"window_offset" env:"WINDOW_OFFSET"`
	WidthOffset        uint64 `yaml:"width_offset" env:"WIDTH_OFFSET"`
	HeightOffset       uint64 `yaml:"height_offset" env:"HEIGHT_OFFSET"`
}

// LoggingConfig configures the logging package.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
	File   string `yaml:"file" env:"FILE"`
}

// MetricsConfig enables the Prometheus endpoint when Addr is set.
type MetricsConfig struct {
	Addr string `yaml:"addr" env:"ADDR"`
}

// Default returns a Config for the 32-bit osu! client.
func Default() Config {
	layout := livestate.DefaultLayout()
	retry := resolver.DefaultRetryPolicy()
	return Config{
		Process: ProcessConfig{
			Name:    "osu!.exe",
			Backend: BackendNative,
		},
		Scan: ScanConfig{
			TimeSignature:      "DE E9 83 EC 04 D9 1C 24 E8 ?? ?? ?? ?? 8B 85",
			TimeOffset:         0x1E,
			ModeSignature:      "A1 ?? ?? ?? ?? 3B 05 ?? ?? ?? ?? 74 10",
			ModeOffset:         0x1,
			GamefieldSignature: "8B 0D ?? ?? ?? ?? BA 01 00 00 00 39 09 E8 ?? ?? ?? ?? 83 3D",
			GamefieldOffset:    0x2,
			PointerSize:        layout.PointerSize,
			RetryTimeout:       retry.Timeout,
			RetryInterval:      retry.InitialInterval,
			RetryMaxInterval:   retry.MaxInterval,
		},
		Playback: PlaybackConfig{
			Period:             time.Millisecond,
			JournalCompression: recorder.DefaultCompression.String(),
			WindowOffset:       uint64(layout.WindowOffset),
			WidthOffset:        uint64(layout.WidthOffset),
			HeightOffset:       uint64(layout.HeightOffset),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "auto",
		},
	}
}

// LoadFile reads a YAML config file over the defaults. Fields not present
// in the file keep their default values.
func LoadFile(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config file: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("parsing config file: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides cfg with any REPLAYBOT_* variables that are set.
func ApplyEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load builds the effective config: defaults, then the file at path if path
// is not empty, then the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		var err error
		if cfg, err = LoadFile(path); err != nil {
			return cfg, err
		}
	}
	if err := ApplyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks that the config is usable.
func (c Config) Validate() error {
	if c.Process.Name == "" && c.Process.PID == 0 {
		return errors.New("process name or pid is required")
	}
	switch c.Process.Backend {
	case BackendNative, BackendDelve:
	default:
		return fmt.Errorf("unknown process backend %q, must be one of: native, delve", c.Process.Backend)
	}
	if _, err := c.Targets(); err != nil {
		return err
	}
	if c.Scan.PointerSize != 4 && c.Scan.PointerSize != 8 {
		return fmt.Errorf("pointer size must be 4 or 8, got %d", c.Scan.PointerSize)
	}
	if c.Scan.RetryTimeout < 0 {
		return fmt.Errorf("retry timeout must not be negative, got %s", c.Scan.RetryTimeout)
	}
	if c.Playback.Period <= 0 {
		return fmt.Errorf("playback period must be positive, got %s", c.Playback.Period)
	}
	if _, err := c.Bindings(); err != nil {
		return err
	}
	if _, err := recorder.ParseCompression(c.Playback.JournalCompression); err != nil {
		return err
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "auto", "text", "json":
	default:
		return fmt.Errorf("unknown log format %q, must be one of: auto, text, json", c.Logging.Format)
	}
	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q, must be one of: debug, info, warn, error", c.Logging.Level)
	}
	return nil
}

// Targets compiles the three signatures.
func (c Config) Targets() (resolver.Targets, error) {
	specs := []struct {
		name   string
		sig    string
		offset int64
	}{
		{resolver.Time, c.Scan.TimeSignature, c.Scan.TimeOffset},
		{resolver.Mode, c.Scan.ModeSignature, c.Scan.ModeOffset},
		{resolver.Gamefield, c.Scan.GamefieldSignature, c.Scan.GamefieldOffset},
	}
	targets := make(resolver.Targets, len(specs))
	for _, s := range specs {
		t, err := resolver.ParseTarget(s.sig, s.offset)
		if err != nil {
			return nil, fmt.Errorf("%s_signature: %w", s.name, err)
		}
		targets[s.name] = t
	}
	return targets, nil
}

// Layout returns the geometry chain offsets.
func (c Config) Layout() livestate.Layout {
	return livestate.Layout{
		WindowOffset: uintptr(c.Playback.WindowOffset),
		WidthOffset:  uintptr(c.Playback.WidthOffset),
		HeightOffset: uintptr(c.Playback.HeightOffset),
		PointerSize:  c.Scan.PointerSize,
	}
}

// RetryPolicy returns the rescan policy.
func (c Config) RetryPolicy() resolver.RetryPolicy {
	return resolver.RetryPolicy{
		InitialInterval: c.Scan.RetryInterval,
		MaxInterval:     c.Scan.RetryMaxInterval,
		Timeout:         c.Scan.RetryTimeout,
	}
}

// Bindings returns the key bindings with overrides applied.
func (c Config) Bindings() (input.Bindings, error) {
	return input.ParseBindings(c.Playback.Bindings)
}

// JournalCompression returns the journal compression type.
func (c Config) JournalCompression() recorder.CompressionType {
	ct, _ := recorder.ParseCompression(c.Playback.JournalCompression)
	return ct
}

// WriteExample writes the default config as YAML to path.
func WriteExample(path string) error {
	data, err := yaml.Marshal(Default())
	if err != nil {
		return err
	}
	header := "# replaybot configuration. Environment variables " + EnvPrefix + "* override these values.\n"
	return os.WriteFile(path, append([]byte(header), data...), 0644)
}
