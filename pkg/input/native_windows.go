//go:build windows

package input

import (
	"fmt"

	"golang.org/x/sys/windows"
)

const keyeventfKeyUp = 0x0002

var (
	user32           = windows.NewLazySystemDLL("user32.dll")
	procKeybdEvent   = user32.NewProc("keybd_event")
	procSetCursorPos = user32.NewProc("SetCursorPos")
)

// Native injects through user32. Mouse buttons are sent as virtual keys
// like any other key.
type Native struct{}

// NewNative returns the host injector.
func NewNative() (*Native, error) {
	if err := user32.Load(); err != nil {
		return nil, fmt.Errorf("loading user32: %w", err)
	}
	if err := procKeybdEvent.Find(); err != nil {
		return nil, err
	}
	if err := procSetCursorPos.Find(); err != nil {
		return nil, err
	}
	return &Native{}, nil
}

func (Native) Press(k Key) error {
	procKeybdEvent.Call(uintptr(k), 0, 0, 0)
	return nil
}

func (Native) Release(k Key) error {
	procKeybdEvent.Call(uintptr(k), 0, keyeventfKeyUp, 0)
	return nil
}

func (Native) MoveTo(x, y int) error {
	r, _, err := procSetCursorPos.Call(uintptr(int32(x)), uintptr(int32(y)))
	if r == 0 {
		return fmt.Errorf("SetCursorPos(%d, %d): %w", x, y, err)
	}
	return nil
}
