// Package signature compiles textual byte signatures ("A1 ?? ?? 3B 05")
// into matchers that can be slid across a memory snapshot.
package signature

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedSignature is returned when a signature string contains a token
// that is neither a two-digit hex byte nor the wildcard, or is empty.
var ErrMalformedSignature = errors.New("malformed signature")

// WildcardToken is the textual form of a byte that matches anything.
const WildcardToken = "??"

// Byte is a single position of a Signature: either an exact value or a wildcard.
type Byte struct {
	Value    byte
	Wildcard bool
}

// Exact returns a matcher that only accepts v.
func Exact(v byte) Byte {
	return Byte{Value: v}
}

// Wildcard returns a matcher that accepts any byte.
func Wildcard() Byte {
	return Byte{Wildcard: true}
}

// Matches reports whether b is accepted at this position.
func (m Byte) Matches(b byte) bool {
	return m.Wildcard || m.Value == b
}

// String returns the token form of the matcher.
func (m Byte) String() string {
	if m.Wildcard {
		return WildcardToken
	}
	return fmt.Sprintf("%02X", m.Value)
}

// Signature is an immutable, non-empty sequence of byte matchers.
// The zero value is not a valid signature; use Compile.
type Signature struct {
	bytes []Byte
}

// Compile parses text into a Signature. Tokens are two hex digits or "??",
// separated by optional whitespace, so "DEE9??" and "DE E9 ??" compile to
// the same matcher sequence.
func Compile(text string) (Signature, error) {
	var out []Byte

	for _, field := range strings.Fields(text) {
		if len(field)%2 != 0 {
			return Signature{}, fmt.Errorf("%w: token %q has an odd number of digits", ErrMalformedSignature, field)
		}
		for i := 0; i < len(field); i += 2 {
			tok := field[i : i+2]
			if tok == WildcardToken {
				out = append(out, Wildcard())
				continue
			}
			hi, okHi := hexValue(tok[0])
			lo, okLo := hexValue(tok[1])
			if !okHi || !okLo {
				return Signature{}, fmt.Errorf("%w: invalid token %q", ErrMalformedSignature, tok)
			}
			out = append(out, Exact(hi<<4|lo))
		}
	}

	if len(out) == 0 {
		return Signature{}, fmt.Errorf("%w: empty signature", ErrMalformedSignature)
	}
	return Signature{bytes: out}, nil
}

// MustCompile is like Compile but panics on malformed input.
// It is meant for signatures that are constants of the build.
func MustCompile(text string) Signature {
	sig, err := Compile(text)
	if err != nil {
		panic(err)
	}
	return sig
}

// FromBytes builds a Signature from matchers directly.
func FromBytes(bytes ...Byte) (Signature, error) {
	if len(bytes) == 0 {
		return Signature{}, fmt.Errorf("%w: empty signature", ErrMalformedSignature)
	}
	cp := make([]Byte, len(bytes))
	copy(cp, bytes)
	return Signature{bytes: cp}, nil
}

func hexValue(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

// Len returns the number of bytes the signature spans.
func (s Signature) Len() int {
	return len(s.bytes)
}

// IsZero reports whether s was never compiled.
func (s Signature) IsZero() bool {
	return len(s.bytes) == 0
}

// Bytes returns a copy of the matcher sequence.
func (s Signature) Bytes() []Byte {
	out := make([]Byte, len(s.bytes))
	copy(out, s.bytes)
	return out
}

// MatchAt reports whether the signature matches buf starting at off.
// A window that would run past the end of buf never matches.
func (s Signature) MatchAt(buf []byte, off int) bool {
	if off < 0 || len(s.bytes) == 0 || off+len(s.bytes) > len(buf) {
		return false
	}
	window := buf[off : off+len(s.bytes)]
	for i, m := range s.bytes {
		if !m.Matches(window[i]) {
			return false
		}
	}
	return true
}

// Index returns the offset of the first match in buf, or -1.
func (s Signature) Index(buf []byte) int {
	for off := 0; off+len(s.bytes) <= len(buf); off++ {
		if s.MatchAt(buf, off) {
			return off
		}
	}
	return -1
}

// String renders the signature in canonical form: upper-case hex tokens
// separated by single spaces. Compiling the result yields an equal signature.
func (s Signature) String() string {
	var sb strings.Builder
	for i, m := range s.bytes {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(m.String())
	}
	return sb.String()
}

// Equal reports whether both signatures have the same matcher sequence.
func (s Signature) Equal(other Signature) bool {
	if len(s.bytes) != len(other.bytes) {
		return false
	}
	for i := range s.bytes {
		if s.bytes[i] != other.bytes[i] {
			return false
		}
	}
	return true
}
