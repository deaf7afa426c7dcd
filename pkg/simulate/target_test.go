package simulate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/willibrandon/replaybot/pkg/config"
	"github.com/willibrandon/replaybot/pkg/livestate"
	"github.com/willibrandon/replaybot/pkg/memory"
	"github.com/willibrandon/replaybot/pkg/playfield"
	"github.com/willibrandon/replaybot/pkg/resolver"
	"github.com/willibrandon/replaybot/pkg/scanner"
)

func resolve(t *testing.T, cfg config.Config, target *Target) *livestate.Reader {
	t.Helper()
	targets, err := cfg.Targets()
	require.NoError(t, err)
	r, err := resolver.New(targets, scanner.New(scanner.Options{}), cfg.Scan.PointerSize, nil)
	require.NoError(t, err)

	ptrs, err := r.Resolve(context.Background(), target)
	require.NoError(t, err)
	assert.Equal(t, resolver.Pointer(timeVar), ptrs[resolver.Time])
	assert.Equal(t, resolver.Pointer(modeVar), ptrs[resolver.Mode])
	assert.Equal(t, resolver.Pointer(gamefieldVar), ptrs[resolver.Gamefield])

	state, err := livestate.New(target, ptrs, cfg.Layout())
	require.NoError(t, err)
	return state
}

func TestDefaultSignaturesResolve(t *testing.T) {
	cfg := config.Default()
	target, err := New(1, cfg)
	require.NoError(t, err)
	state := resolve(t, cfg, target)

	target.SetMode(livestate.ModePlay)
	target.SetTime(-1500)
	target.SetGeometry(1920, 1080)

	s, err := state.Sample()
	require.NoError(t, err)
	assert.Equal(t, livestate.Sample{
		Time:     -1500,
		Mode:     livestate.ModePlay,
		Geometry: playfield.Geometry{Width: 1920, Height: 1080},
	}, s)
}

func TestEightBytePointers(t *testing.T) {
	cfg := config.Default()
	cfg.Scan.PointerSize = 8
	target, err := New(1, cfg)
	require.NoError(t, err)
	resolve(t, cfg, target)
}

func TestClockRunsFromStart(t *testing.T) {
	cfg := config.Default()
	target, err := New(1, cfg)
	require.NoError(t, err)
	state := resolve(t, cfg, target)

	now := time.Unix(100, 0)
	target.SetClock(func() time.Time { return now })
	target.Start(-200)

	now = now.Add(250 * time.Millisecond)
	ms, err := state.ElapsedTime()
	require.NoError(t, err)
	assert.Equal(t, int32(50), ms)

	target.SetTime(7)
	now = now.Add(time.Second)
	ms, err = state.ElapsedTime()
	require.NoError(t, err)
	assert.Equal(t, int32(7), ms, "SetTime stops the clock")
}

func TestSignatureOverlappingSlotIsRejected(t *testing.T) {
	cfg := config.Default()
	cfg.Scan.ModeOffset = 5
	_, err := New(1, cfg)
	assert.Error(t, err)
}

func TestKill(t *testing.T) {
	target, err := New(1, config.Default())
	require.NoError(t, err)
	target.Kill()
	assert.False(t, target.Alive())
	assert.ErrorIs(t, target.ReadMemory(DataBase, make([]byte, 4)), memory.ErrProcessGone)
}

func TestReadDuringWalk(t *testing.T) {
	target, err := New(1, config.Default())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		buf := make([]byte, 4)
		done <- target.WalkRegions(func(r memory.Region) bool {
			return target.ReadMemory(r.Base, buf) == nil
		})
	}()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("ReadMemory blocked inside a WalkRegions callback")
	}
}

func TestScanFinishesWithinDeadline(t *testing.T) {
	cfg := config.Default()
	target, err := New(1, cfg)
	require.NoError(t, err)
	targets, err := cfg.Targets()
	require.NoError(t, err)
	r, err := resolver.New(targets, scanner.New(scanner.Options{}), cfg.Scan.PointerSize, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := r.Resolve(ctx, target)
		done <- err
	}()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-ctx.Done():
		t.Fatal("scanning the simulated target did not finish")
	}
}
