// Package input turns playback decisions into host input events.
package input

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrUnknownKey is returned by ParseKey for names it does not recognize.
var ErrUnknownKey = errors.New("unknown key")

// Key is a virtual-key code.
type Key uint8

// Virtual keys with names.
const (
	LButton Key = 0x01
	RButton Key = 0x02
	MButton Key = 0x04
	Space   Key = 0x20
	Shift   Key = 0x10
	Control Key = 0x11
)

var keyNames = map[string]Key{
	"LBUTTON": LButton,
	"RBUTTON": RButton,
	"MBUTTON": MButton,
	"SPACE":   Space,
	"SHIFT":   Shift,
	"CONTROL": Control,
	"CTRL":    Control,
}

// ParseKey accepts a key name (LBUTTON, RBUTTON, SPACE...), a single letter
// or digit, or a hex code such as 0x5A.
func ParseKey(s string) (Key, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	if k, ok := keyNames[name]; ok {
		return k, nil
	}
	if len(name) == 1 {
		c := name[0]
		if (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') {
			return Key(c), nil
		}
	}
	if strings.HasPrefix(name, "0X") {
		v, err := strconv.ParseUint(name[2:], 16, 8)
		if err == nil && v != 0 {
			return Key(v), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKey, s)
}

func (k Key) String() string {
	for name, v := range keyNames {
		if v == k && name != "CTRL" {
			return name
		}
	}
	if (k >= 'A' && k <= 'Z') || (k >= '0' && k <= '9') {
		return string(rune(k))
	}
	return fmt.Sprintf("0x%02X", uint8(k))
}

// IsMouseButton reports whether k names a mouse button.
func (k Key) IsMouseButton() bool {
	return k == LButton || k == RButton || k == MButton
}
