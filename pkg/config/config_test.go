package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/willibrandon/replaybot/pkg/input"
	"github.com/willibrandon/replaybot/pkg/recorder"
	"github.com/willibrandon/replaybot/pkg/replay"
	"github.com/willibrandon/replaybot/pkg/resolver"
	"github.com/willibrandon/replaybot/pkg/signature"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "replaybot.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	targets, err := cfg.Targets()
	require.NoError(t, err)
	assert.Equal(t, []string{resolver.Gamefield, resolver.Mode, resolver.Time}, targets.Names())
	assert.Equal(t, int64(0x1E), targets[resolver.Time].Offset)
	assert.Equal(t, 15, targets[resolver.Time].Signature.Len())
	assert.Equal(t, "osu!.exe", cfg.Process.Name)
	assert.Equal(t, 4, cfg.Layout().PointerSize)
	assert.Equal(t, uintptr(0x8), cfg.Layout().HeightOffset)
}

func TestLoadFileMergesDefaults(t *testing.T) {
	path := writeFile(t, `
process:
  pid: 4242
scan:
  mode_offset: 0x3
  retry_timeout: 5s
playback:
  period: 2ms
  bindings:
    K1: A
`)
	cfg, err := LoadFile(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 4242, cfg.Process.PID)
	assert.Equal(t, "osu!.exe", cfg.Process.Name, "unset fields keep defaults")
	assert.Equal(t, int64(3), cfg.Scan.ModeOffset)
	assert.Equal(t, int64(0x1E), cfg.Scan.TimeOffset)
	assert.Equal(t, 5*time.Second, cfg.RetryPolicy().Timeout)
	assert.Equal(t, 2*time.Millisecond, cfg.Playback.Period)

	b, err := cfg.Bindings()
	require.NoError(t, err)
	assert.Equal(t, input.Key('A'), b[replay.K1])
	assert.Equal(t, input.LButton, b[replay.M1])
}

func TestLoadFileErrors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = LoadFile(writeFile(t, "scan:\n  unknown_key: 1\n"))
	assert.Error(t, err, "unknown keys are rejected")

	cfg, err := LoadFile(writeFile(t, ""))
	require.NoError(t, err, "an empty file is the defaults")
	assert.Equal(t, Default(), cfg)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("REPLAYBOT_PROCESS_NAME", "osu-test.exe")
	t.Setenv("REPLAYBOT_SCAN_TIME_OFFSET", "40")
	t.Setenv("REPLAYBOT_PLAYBACK_PERIOD", "3ms")
	t.Setenv("REPLAYBOT_PLAYBACK_BINDINGS", "K2:S,Smoke:0x20")
	t.Setenv("REPLAYBOT_LOG_LEVEL", "debug")

	cfg := Default()
	require.NoError(t, ApplyEnv(&cfg))
	assert.Equal(t, "osu-test.exe", cfg.Process.Name)
	assert.Equal(t, int64(40), cfg.Scan.TimeOffset)
	assert.Equal(t, 3*time.Millisecond, cfg.Playback.Period)
	assert.Equal(t, map[string]string{"K2": "S", "Smoke": "0x20"}, cfg.Playback.Bindings)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, BackendNative, cfg.Process.Backend, "unset variables leave values alone")
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeFile(t, "process:\n  backend: delve\nlogging:\n  format: json\n")
	t.Setenv("REPLAYBOT_LOG_FORMAT", "text")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, BackendDelve, cfg.Process.Backend)
	assert.Equal(t, "text", cfg.Logging.Format)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"no process", func(c *Config) { c.Process.Name = ""; c.Process.PID = 0 }},
		{"backend", func(c *Config) { c.Process.Backend = "ptrace" }},
		{"signature", func(c *Config) { c.Scan.ModeSignature = "A1 ?" }},
		{"empty signature", func(c *Config) { c.Scan.TimeSignature = "" }},
		{"pointer size", func(c *Config) { c.Scan.PointerSize = 2 }},
		{"retry", func(c *Config) { c.Scan.RetryTimeout = -time.Second }},
		{"period", func(c *Config) { c.Playback.Period = 0 }},
		{"binding", func(c *Config) { c.Playback.Bindings = map[string]string{"K9": "A"} }},
		{"compression", func(c *Config) { c.Playback.JournalCompression = "gzip" }},
		{"log format", func(c *Config) { c.Logging.Format = "xml" }},
		{"log level", func(c *Config) { c.Logging.Level = "trace" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestSignatureErrorNamesField(t *testing.T) {
	cfg := Default()
	cfg.Scan.GamefieldSignature = "8B 0D ZZ"
	_, err := cfg.Targets()
	assert.ErrorIs(t, err, signature.ErrMalformedSignature)
	assert.Contains(t, err.Error(), "gamefield_signature")
}

func TestWriteExampleRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "example.yaml")
	require.NoError(t, WriteExample(path))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, Default().Scan, cfg.Scan)
	assert.Equal(t, Default().Playback.Period, cfg.Playback.Period)
	assert.Equal(t, recorder.ZstdCompression, cfg.JournalCompression())
}
