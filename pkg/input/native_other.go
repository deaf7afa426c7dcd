//go:build !windows

package input

// Native is unavailable off Windows.
type Native struct{}

// NewNative returns ErrUnsupported.
func NewNative() (*Native, error) {
	return nil, ErrUnsupported
}

func (Native) Press(Key) error       { return ErrUnsupported }
func (Native) Release(Key) error     { return ErrUnsupported }
func (Native) MoveTo(int, int) error { return ErrUnsupported }
