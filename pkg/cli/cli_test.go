package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/willibrandon/replaybot/pkg/config"
	"github.com/willibrandon/replaybot/pkg/playfield"
	"github.com/willibrandon/replaybot/pkg/recorder"
	"github.com/willibrandon/replaybot/pkg/replay"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func testFrames() []replay.Frame {
	return []replay.Frame{
		{Time: 0, Position: playfield.Vec2{X: 256, Y: 192}, Keys: replay.K1},
		{Time: 40, Position: playfield.Vec2{X: 300, Y: 200}},
		{Time: 90, Position: playfield.Vec2{X: 100, Y: 50}, Keys: replay.K1 | replay.M1},
	}
}

func writeFrames(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, replay.Save(path, testFrames()))
	return path
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "replaybot")
}

func TestConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "replaybot.yaml")

	out, err := execute(t, "config", "init", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)

	cfg, err := config.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, config.Default().Scan, cfg.Scan)
	assert.Equal(t, config.Default().Process, cfg.Process)

	_, err = execute(t, "config", "init", path)
	assert.Error(t, err, "existing file is kept")

	_, err = execute(t, "config", "init", path, "--force")
	assert.NoError(t, err)
}

func TestInspectFrameLog(t *testing.T) {
	path := writeFrames(t, "run.frames")
	export := filepath.Join(t.TempDir(), "run.frames.zst")

	out, err := execute(t, "inspect", "--replay", path, "--export", export)
	require.NoError(t, err)
	assert.Contains(t, out, "Frames:        3")
	assert.Contains(t, out, "Span:          0 ms .. 90 ms")
	assert.Contains(t, out, "Longest gap:   50 ms")

	exported, err := replay.Load(export)
	require.NoError(t, err)
	assert.Equal(t, testFrames(), exported)
}

func TestInspectOSRJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.osr")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, replay.EncodeOSR(f, replay.Header{Player: "tester", Score: 1000}, testFrames()))
	require.NoError(t, f.Close())

	out, err := execute(t, "inspect", "-r", path, "--json")
	require.NoError(t, err)

	var res inspectResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.NotNil(t, res.Header)
	assert.Equal(t, "tester", res.Header.Player)
	assert.Equal(t, 3, res.Stats.Frames)
	assert.Equal(t, 2, res.Stats.Presses["K1"])
	assert.Equal(t, 1, res.Stats.Presses["M1"])
}

func TestInspectRequiresReplay(t *testing.T) {
	_, err := execute(t, "inspect")
	assert.Error(t, err)

	_, err = execute(t, "inspect", "--replay", filepath.Join(t.TempDir(), "missing.frames"))
	assert.ErrorIs(t, err, replay.ErrLoad)
}

func TestScanSimulated(t *testing.T) {
	out, err := execute(t, "scan", "--simulate", "--json")
	require.NoError(t, err)

	var res scanResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, simulatedPID, res.PID)
	assert.Len(t, res.Pointers, 3)
	require.NotNil(t, res.Sample)
	assert.Equal(t, "menu", res.Sample.Mode)
	assert.Equal(t, float32(800), res.Sample.Width)
	assert.Equal(t, float32(600), res.Sample.Height)
}

func TestPlaySimulated(t *testing.T) {
	path := writeFrames(t, "run.frames")
	journal := filepath.Join(t.TempDir(), "run.journal")

	tracePath := filepath.Join(t.TempDir(), "run.trace")

	out, err := execute(t, "play", "--simulate", "--replay", path, "--journal", journal,
		"--trace", tracePath, "--log-level", "warn")
	require.NoError(t, err)
	assert.Contains(t, out, "Final state:     finished")
	assert.FileExists(t, tracePath)

	events, err := recorder.ReadJournal(journal, recorder.ZstdCompression)
	require.NoError(t, err)
	assert.NotEmpty(t, events)
	assert.Equal(t, recorder.StateChange, events[0].Type)
}

func TestPlayRejectsBadInput(t *testing.T) {
	_, err := execute(t, "play")
	assert.Error(t, err, "--replay is required")

	path := writeFrames(t, "run.frames")
	_, err = execute(t, "play", "--simulate", "--replay", path, "--backend", "serial")
	assert.Error(t, err)

	_, err = execute(t, "play", "--simulate", "--replay", path, "--log-level", "loud")
	assert.Error(t, err)
}

func TestFlagsOverrideConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "replaybot.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: error\nprocess:\n  name: game.exe\n"), 0644))

	scan, _, err := NewRootCmd().Find([]string{"scan"})
	require.NoError(t, err)
	require.NoError(t, scan.ParseFlags([]string{"--config", path, "--log-level", "debug"}))

	g := &globalOptions{configPath: path, logLevel: "debug"}
	cfg, err := g.load(scan)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "game.exe", cfg.Process.Name)
	assert.Empty(t, cfg.Logging.File, "unset flags keep file values")
}
