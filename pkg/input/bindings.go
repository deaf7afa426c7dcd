package input

import (
	"fmt"

	"github.com/willibrandon/replaybot/pkg/replay"
)

// Bindings maps each recorded key channel to the virtual key pressed for it.
type Bindings map[replay.Keys]Key

// DefaultBindings maps M1 and M2 to the mouse buttons, K1 and K2 to Z and X,
// and smoke to C.
func DefaultBindings() Bindings {
	return Bindings{
		replay.M1:    LButton,
		replay.M2:    RButton,
		replay.K1:    'Z',
		replay.K2:    'X',
		replay.Smoke: 'C',
	}
}

// ParseBindings overrides the defaults with channel-name to key-name pairs,
// e.g. {"K1": "A"}.
func ParseBindings(names map[string]string) (Bindings, error) {
	b := DefaultBindings()
	for channel, keyName := range names {
		ch, ok := channelByName(channel)
		if !ok {
			return nil, fmt.Errorf("unknown key channel %q", channel)
		}
		k, err := ParseKey(keyName)
		if err != nil {
			return nil, fmt.Errorf("binding %s: %w", channel, err)
		}
		b[ch] = k
	}
	return b, nil
}

func channelByName(name string) (replay.Keys, bool) {
	for _, ch := range replay.Channels {
		if replay.ChannelName(ch) == name {
			return ch, true
		}
	}
	return 0, false
}

// Keys returns the bound keys in channel order.
func (b Bindings) Keys() []Key {
	keys := make([]Key, 0, len(replay.Channels))
	for _, ch := range replay.Channels {
		if k, ok := b[ch]; ok {
			keys = append(keys, k)
		}
	}
	return keys
}
