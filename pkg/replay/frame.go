package replay

import (
	"strings"

	"github.com/willibrandon/replaybot/pkg/playfield"
)

// Keys is the set of inputs held during a frame.
type Keys uint8

// Key channels, with the bit values used by recorded replays.
const (
	M1 Keys = 1 << iota
	M2
	K1
	K2
	Smoke
)

// Channels lists every key channel in a fixed order.
var Channels = [...]Keys{M1, M2, K1, K2, Smoke}

// Has reports whether every bit of k is set.
func (ks Keys) Has(k Keys) bool {
	return ks&k == k
}

// String renders the held keys, e.g. "M1+K1", or "none".
func (ks Keys) String() string {
	var parts []string
	for _, k := range Channels {
		if ks.Has(k) {
			parts = append(parts, channelName(k))
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "+")
}

func channelName(k Keys) string {
	switch k {
	case M1:
		return "M1"
	case M2:
		return "M2"
	case K1:
		return "K1"
	case K2:
		return "K2"
	case Smoke:
		return "Smoke"
	default:
		return "?"
	}
}

// ChannelName returns the name of a single key channel.
func ChannelName(k Keys) string {
	return channelName(k)
}

// Frame is one recorded sample: when, where, and which keys were held.
type Frame struct {
	Time     int32          `json:"time"`
	Position playfield.Vec2 `json:"pos"`
	Keys     Keys           `json:"keys"`
}
