//go:build !windows && !linux

package memory

import "fmt"

// Open is not available on this platform.
func Open(pid int) (Process, error) {
	return nil, fmt.Errorf("opening process %d: %w", pid, ErrUnsupported)
}

// NewRegionWalker is not available on this platform.
func NewRegionWalker(pid int) (RegionWalker, error) {
	return nil, fmt.Errorf("listing regions of %d: %w", pid, ErrUnsupported)
}
