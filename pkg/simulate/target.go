// Package simulate builds an in-memory stand-in for the target process.
//
// The image holds the configured signatures in an executable region, pointer
// slots that lead to the elapsed time, mode and window objects, and an audio
// clock that can run in real time. It lets the whole pipeline run without the
// real client, for demos, dry runs and tests.
package simulate

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"github.com/willibrandon/replaybot/pkg/config"
	"github.com/willibrandon/replaybot/pkg/livestate"
	"github.com/willibrandon/replaybot/pkg/memory"
	"github.com/willibrandon/replaybot/pkg/resolver"
)

// Address layout of the simulated process.
const (
	CodeBase uintptr = 0x00400000
	DataBase uintptr = 0x00800000

	codeSize = 0x1000
	dataSize = 0x3000

	timeVar       = DataBase + 0x0
	modeVar       = DataBase + 0x8
	gamefieldVar  = DataBase + 0x10
	gamefieldObj  = DataBase + 0x1000
	windowObj     = DataBase + 0x2000
	signatureStep = 0x100
)

// filler is int3, which none of the signatures start with.
const filler = 0xCC

// Target is a simulated process. It is safe for one reader and one writer.
type Target struct {
	img    *memory.Image
	layout livestate.Layout

	mu      sync.Mutex
	running bool
	from    int32
	started time.Time
	now     func() time.Time
}

// New lays out a target for cfg's signatures, offsets and pointer size.
// The mode starts at menu and the window at 800x600.
func New(pid int, cfg config.Config) (*Target, error) {
	targets, err := cfg.Targets()
	if err != nil {
		return nil, err
	}
	layout := cfg.Layout()
	t := &Target{
		img:    memory.NewImage(pid),
		layout: layout,
		now:    time.Now,
	}

	code := bytes.Repeat([]byte{filler}, codeSize)
	t.img.Map(CodeBase, code, memory.ProtRWX)
	t.img.Map(DataBase, make([]byte, dataSize), memory.ProtRead|memory.ProtWrite)

	slots := map[string]uintptr{
		resolver.Time:      timeVar,
		resolver.Mode:      modeVar,
		resolver.Gamefield: gamefieldVar,
	}
	for i, name := range targets.Names() {
		tg := targets[name]
		match := CodeBase + uintptr(i+1)*signatureStep
		if err := t.plant(match, tg, slots[name]); err != nil {
			return nil, fmt.Errorf("planting %s: %w", name, err)
		}
	}

	t.putPointer(gamefieldVar, gamefieldObj)
	t.putPointer(gamefieldObj+layout.WindowOffset, windowObj)
	t.SetGeometry(800, 600)
	t.SetMode(livestate.ModeMenu)
	return t, nil
}

func (t *Target) plant(match uintptr, tg resolver.Target, value uintptr) error {
	sig := tg.Signature.Bytes()
	slot := int(tg.Offset)
	if slot < 0 || match+uintptr(slot+t.layout.PointerSize) > CodeBase+codeSize {
		return fmt.Errorf("offset %d does not fit the code region", tg.Offset)
	}
	pattern := make([]byte, len(sig))
	for i, b := range sig {
		if b.Wildcard {
			continue
		}
		if i >= slot && i < slot+t.layout.PointerSize {
			return fmt.Errorf("pointer slot at offset %d overlaps fixed byte %d", slot, i)
		}
		pattern[i] = b.Value
	}
	t.img.Write(match, pattern)
	t.putPointer(match+uintptr(slot), value)
	return nil
}

func (t *Target) putPointer(addr, v uintptr) {
	if t.layout.PointerSize == 8 {
		t.img.PutUint64(addr, uint64(v))
		return
	}
	t.img.PutUint32(addr, uint32(v))
}

// SetMode changes the reported mode.
func (t *Target) SetMode(m livestate.Mode) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.img.PutUint32(modeVar, uint32(m))
}

// SetTime stops the audio clock at ms.
func (t *Target) SetTime(ms int32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.running = false
	t.img.PutUint32(timeVar, uint32(ms))
}

// Start runs the audio clock in real time from ms.
func (t *Target) Start(ms int32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.running = true
	t.from = ms
	t.started = t.now()
	t.img.PutUint32(timeVar, uint32(ms))
}

// SetClock replaces the wall clock used by Start.
func (t *Target) SetClock(now func() time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.now = now
}

// SetGeometry changes the window client size.
func (t *Target) SetGeometry(width, height uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.img.PutUint32(windowObj+t.layout.WidthOffset, width)
	t.img.PutUint32(windowObj+t.layout.HeightOffset, height)
}

// Kill makes the target behave as exited.
func (t *Target) Kill() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.img.Kill()
}

// WalkRegions implements memory.RegionWalker. fn runs without the lock held,
// so it may read the target.
func (t *Target) WalkRegions(fn func(memory.Region) bool) error {
	var regions []memory.Region
	t.mu.Lock()
	err := t.img.WalkRegions(func(r memory.Region) bool {
		regions = append(regions, r)
		return true
	})
	t.mu.Unlock()
	if err != nil {
		return err
	}
	for _, r := range regions {
		if !fn(r) {
			return nil
		}
	}
	return nil
}

// ReadMemory implements memory.Reader, advancing the audio clock first.
func (t *Target) ReadMemory(addr uintptr, buf []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running && t.img.Alive() {
		elapsed := t.now().Sub(t.started).Milliseconds()
		t.img.PutUint32(timeVar, uint32(t.from+int32(elapsed)))
	}
	return t.img.ReadMemory(addr, buf)
}

// PID implements memory.Process.
func (t *Target) PID() int { return t.img.PID() }

// Alive implements memory.Process.
func (t *Target) Alive() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.img.Alive()
}

// Close implements memory.Process.
func (t *Target) Close() error { return nil }
