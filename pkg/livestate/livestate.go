// Package livestate reads the target's live state through resolved pointers.
//
// Every call performs fresh reads; only the resolved base pointers are kept
// between calls. A failed read is returned as an error, never as a zero value.
package livestate

import (
	"errors"
	"fmt"

	"github.com/willibrandon/replaybot/pkg/memory"
	"github.com/willibrandon/replaybot/pkg/playfield"
	"github.com/willibrandon/replaybot/pkg/resolver"
)

// Mode is the target's current top-level mode.
type Mode int32

// Known modes. Only ModePlay matters to playback; the rest are named for logs.
const (
	ModeMenu       Mode = 0
	ModeEdit       Mode = 1
	ModePlay       Mode = 2
	ModeExit       Mode = 3
	ModeSelectEdit Mode = 4
	ModeSelectPlay Mode = 5
	ModeRank       Mode = 7
	ModeUpdate     Mode = 8
	ModeBusy       Mode = 9
	ModeLobby      Mode = 11
	ModeMatchSetup Mode = 12
)

var modeNames = map[Mode]string{
	ModeMenu:       "menu",
	ModeEdit:       "edit",
	ModePlay:       "play",
	ModeExit:       "exit",
	ModeSelectEdit: "select-edit",
	ModeSelectPlay: "select-play",
	ModeRank:       "rank",
	ModeUpdate:     "update",
	ModeBusy:       "busy",
	ModeLobby:      "lobby",
	ModeMatchSetup: "match-setup",
}

// Playing reports whether the target is in active play.
func (m Mode) Playing() bool {
	return m == ModePlay
}

func (m Mode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("mode(%d)", int32(m))
}

// Layout holds the fixed offsets of the window geometry chain.
type Layout struct {
	// WindowOffset locates the window object pointer inside the gamefield.
	WindowOffset uintptr
	// WidthOffset and HeightOffset locate the uint32 client size fields
	// inside the window object.
	WidthOffset  uintptr
	HeightOffset uintptr
	PointerSize  int
}

// DefaultLayout matches the 32-bit target.
func DefaultLayout() Layout {
	return Layout{
		WindowOffset: 0x4,
		WidthOffset:  0x4,
		HeightOffset: 0x8,
		PointerSize:  4,
	}
}

// Reader reads elapsed time, mode and window geometry.
type Reader struct {
	mem       memory.Reader
	time      uintptr
	mode      uintptr
	gamefield uintptr
	layout    Layout
}

// New creates a Reader from resolved pointers. All three of resolver.Time,
// resolver.Mode and resolver.Gamefield must be present.
func New(mem memory.Reader, ptrs resolver.Pointers, layout Layout) (*Reader, error) {
	var missing []string
	get := func(name string) uintptr {
		p, ok := ptrs.Get(name)
		if !ok || p == 0 {
			missing = append(missing, name)
		}
		return uintptr(p)
	}
	r := &Reader{
		mem:       mem,
		time:      get(resolver.Time),
		mode:      get(resolver.Mode),
		gamefield: get(resolver.Gamefield),
		layout:    layout,
	}
	if len(missing) > 0 {
		return nil, &resolver.UnresolvedError{Found: 3 - len(missing), Required: 3, Missing: missing}
	}
	if layout.PointerSize != 4 && layout.PointerSize != 8 {
		return nil, fmt.Errorf("unsupported pointer size %d", layout.PointerSize)
	}
	return r, nil
}

// ElapsedTime returns the target's audio time in milliseconds.
func (r *Reader) ElapsedTime() (int32, error) {
	v, err := memory.ReadInt32(r.mem, r.time)
	if err != nil {
		return 0, fmt.Errorf("reading elapsed time: %w", err)
	}
	return v, nil
}

// Mode returns the target's current mode.
func (r *Reader) Mode() (Mode, error) {
	v, err := memory.ReadInt32(r.mem, r.mode)
	if err != nil {
		return 0, fmt.Errorf("reading mode: %w", err)
	}
	return Mode(v), nil
}

// ErrNoWindow is returned while the gamefield or its window is not allocated.
var ErrNoWindow = errors.New("window object not allocated")

// WindowGeometry follows gamefield slot -> gamefield -> window and reads the
// client size. Each link is read again on every call.
func (r *Reader) WindowGeometry() (playfield.Geometry, error) {
	gamefield, err := memory.ReadPointer(r.mem, r.gamefield, r.layout.PointerSize)
	if err != nil {
		return playfield.Geometry{}, fmt.Errorf("reading gamefield: %w", err)
	}
	if gamefield == 0 {
		return playfield.Geometry{}, fmt.Errorf("reading gamefield: %w", ErrNoWindow)
	}

	window, err := memory.ReadPointer(r.mem, gamefield+r.layout.WindowOffset, r.layout.PointerSize)
	if err != nil {
		return playfield.Geometry{}, fmt.Errorf("reading window: %w", err)
	}
	if window == 0 {
		return playfield.Geometry{}, fmt.Errorf("reading window: %w", ErrNoWindow)
	}

	width, err := memory.ReadUint32(r.mem, window+r.layout.WidthOffset)
	if err != nil {
		return playfield.Geometry{}, fmt.Errorf("reading window width: %w", err)
	}
	height, err := memory.ReadUint32(r.mem, window+r.layout.HeightOffset)
	if err != nil {
		return playfield.Geometry{}, fmt.Errorf("reading window height: %w", err)
	}
	return playfield.Geometry{Width: float32(width), Height: float32(height)}, nil
}

// Sample is one consistent-enough reading of all live values.
type Sample struct {
	Time     int32
	Mode     Mode
	Geometry playfield.Geometry
}

// Sample reads every value once. It is used for diagnostics, not playback.
func (r *Reader) Sample() (Sample, error) {
	var s Sample
	var err error
	if s.Time, err = r.ElapsedTime(); err != nil {
		return s, err
	}
	if s.Mode, err = r.Mode(); err != nil {
		return s, err
	}
	if s.Geometry, err = r.WindowGeometry(); err != nil {
		return s, err
	}
	return s, nil
}
