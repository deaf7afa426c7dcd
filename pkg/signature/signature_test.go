package signature

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompile(t *testing.T) {
	sig, err := Compile("A1 ?? ?? 3B 05 ?? ?? 74 10")
	require.NoError(t, err)

	want := []Byte{
		Exact(0xA1), Wildcard(), Wildcard(), Exact(0x3B), Exact(0x05),
		Wildcard(), Wildcard(), Exact(0x74), Exact(0x10),
	}
	assert.Equal(t, want, sig.Bytes())
	assert.Equal(t, 9, sig.Len())
}

func TestCompileWithoutWhitespace(t *testing.T) {
	packed, err := Compile("DEE983EC04D91C24E8????8B85")
	require.NoError(t, err)
	spaced, err := Compile("DE E9 83 EC 04 D9 1C 24 E8 ?? ?? 8B 85")
	require.NoError(t, err)

	assert.True(t, packed.Equal(spaced))
	assert.Equal(t, 13, packed.Len())
}

func TestCompileLowerCase(t *testing.T) {
	sig, err := Compile("8b0d ba")
	require.NoError(t, err)
	assert.Equal(t, "8B 0D BA", sig.String())
}

func TestCompileMalformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"only whitespace", "  \t\n"},
		{"odd digits", "ABC"},
		{"odd field", "AB C"},
		{"not hex", "GG"},
		{"half wildcard", "A?"},
		{"single question mark", "AB ?"},
		{"prefix", "0xAB"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(tt.input)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformedSignature)
		})
	}
}

func TestRenderRoundTrip(t *testing.T) {
	inputs := []string{
		"DEE983EC04D91C24E8????8B85",
		"A1????3B05????7410",
		"8B0D????BA010000003909E8????833D",
		"??",
		"00 ff ?? 7f",
	}

	for _, in := range inputs {
		sig := MustCompile(in)
		again, err := Compile(sig.String())
		require.NoError(t, err, in)
		assert.True(t, sig.Equal(again), "round trip of %q produced %q", in, again.String())
	}
}

func TestMustCompilePanics(t *testing.T) {
	assert.Panics(t, func() { MustCompile("zz") })
}

func TestMatchAt(t *testing.T) {
	sig := MustCompile("11 ?? 33")
	buf := []byte{0x00, 0x11, 0x22, 0x33, 0x11, 0xFF, 0x33}

	assert.False(t, sig.MatchAt(buf, 0))
	assert.True(t, sig.MatchAt(buf, 1))
	assert.True(t, sig.MatchAt(buf, 4))
	assert.False(t, sig.MatchAt(buf, 5), "window past the end must not match")
	assert.False(t, sig.MatchAt(buf, -1))
}

func TestWildcardMatchesAnyByte(t *testing.T) {
	sig := MustCompile("AA ?? CC")
	for b := 0; b < 256; b++ {
		buf := []byte{0xAA, byte(b), 0xCC}
		if !sig.MatchAt(buf, 0) {
			t.Fatalf("wildcard rejected byte %#02x", b)
		}
	}
}

func TestIndex(t *testing.T) {
	sig := MustCompile("BE EF")
	assert.Equal(t, 2, sig.Index([]byte{0xDE, 0xAD, 0xBE, 0xEF, 0xBE, 0xEF}))
	assert.Equal(t, -1, sig.Index([]byte{0xBE}))
}

func TestFromBytes(t *testing.T) {
	_, err := FromBytes()
	assert.ErrorIs(t, err, ErrMalformedSignature)

	sig, err := FromBytes(Exact(0x90), Wildcard())
	require.NoError(t, err)
	assert.Equal(t, "90 ??", sig.String())
	assert.False(t, sig.IsZero())
	assert.True(t, Signature{}.IsZero())
}
