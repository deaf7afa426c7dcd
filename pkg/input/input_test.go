package input

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/willibrandon/replaybot/pkg/replay"
)

func TestParseKey(t *testing.T) {
	tests := []struct {
		in   string
		want Key
	}{
		{"LBUTTON", LButton},
		{"rbutton", RButton},
		{"z", 'Z'},
		{"X", 'X'},
		{"7", '7'},
		{"0x43", 'C'},
		{" space ", Space},
		{"ctrl", Control},
	}
	for _, tt := range tests {
		got, err := ParseKey(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	for _, bad := range []string{"", "F13", "0x", "0x00", "0x1FF", "zz"} {
		_, err := ParseKey(bad)
		assert.ErrorIs(t, err, ErrUnknownKey, bad)
	}
}

func TestKeyString(t *testing.T) {
	assert.Equal(t, "LBUTTON", LButton.String())
	assert.Equal(t, "Z", Key('Z').String())
	assert.Equal(t, "CONTROL", Control.String())
	assert.Equal(t, "0x70", Key(0x70).String())
	assert.True(t, RButton.IsMouseButton())
	assert.False(t, Key('Z').IsMouseButton())
}

func TestDefaultBindings(t *testing.T) {
	b := DefaultBindings()
	assert.Equal(t, []Key{LButton, RButton, 'Z', 'X', 'C'}, b.Keys())
}

func TestParseBindings(t *testing.T) {
	b, err := ParseBindings(map[string]string{"K1": "A", "Smoke": "0x20"})
	require.NoError(t, err)
	assert.Equal(t, Key('A'), b[replay.K1])
	assert.Equal(t, Space, b[replay.Smoke])
	assert.Equal(t, LButton, b[replay.M1])

	_, err = ParseBindings(map[string]string{"K3": "A"})
	assert.Error(t, err)
	_, err = ParseBindings(map[string]string{"K1": "??"})
	assert.ErrorIs(t, err, ErrUnknownKey)
}

func TestCapture(t *testing.T) {
	c := &Capture{}
	require.NoError(t, c.Press('Z'))
	require.NoError(t, c.Release('Z'))
	require.NoError(t, c.MoveTo(3, 4))
	assert.Equal(t, []Call{
		{Op: "press", Key: 'Z'},
		{Op: "release", Key: 'Z'},
		{Op: "move", X: 3, Y: 4},
	}, c.Calls)

	c.Reset()
	c.Fail = errors.New("denied")
	assert.Error(t, c.Press(LButton))
	assert.Len(t, c.Calls, 1)
}

func TestDryRun(t *testing.T) {
	var inj Injector = NewDryRun(nil)
	assert.NoError(t, inj.Press(LButton))
	assert.NoError(t, inj.Release(LButton))
	assert.NoError(t, inj.MoveTo(1, 2))
}
