// Package memory defines the capabilities used to inspect a foreign process:
// enumerating its memory regions and copying bytes out of it. Foreign memory
// is never dereferenced directly; every access is an explicit read that can fail.
package memory

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	// ErrProcessNotFound is returned when no running process matches the requested name.
	ErrProcessNotFound = errors.New("target process not found")

	// ErrProcessGone is returned when the target exited while it was being read.
	ErrProcessGone = errors.New("target process is gone")

	// ErrAddressNotMapped is returned when an address is not backed by readable memory.
	ErrAddressNotMapped = errors.New("address not mapped")

	// ErrShortRead is returned when fewer bytes than requested were copied.
	ErrShortRead = errors.New("short read")

	// ErrUnsupported is returned by backends that are not available on this platform.
	ErrUnsupported = errors.New("not supported on this platform")
)

// Protection is a set of access rights of a region.
type Protection uint8

const (
	ProtRead Protection = 1 << iota
	ProtWrite
	ProtExecute
	// ProtGuard marks guard or otherwise modified pages; they are never scanned.
	ProtGuard
	// ProtCopy marks copy-on-write mappings, such as image sections.
	ProtCopy
)

// ProtRWX is the protection of regions holding JIT-compiled code and its data.
const ProtRWX = ProtRead | ProtWrite | ProtExecute

// String returns a /proc/<pid>/maps style rendering, e.g. "rwx".
func (p Protection) String() string {
	var sb strings.Builder
	flag := func(f Protection, c byte) {
		if p&f != 0 {
			sb.WriteByte(c)
		} else {
			sb.WriteByte('-')
		}
	}
	flag(ProtRead, 'r')
	flag(ProtWrite, 'w')
	flag(ProtExecute, 'x')
	if p&ProtGuard != 0 {
		sb.WriteByte('g')
	}
	if p&ProtCopy != 0 {
		sb.WriteByte('c')
	}
	return sb.String()
}

// Region describes one contiguous range of the target's address space.
type Region struct {
	Base      uintptr
	Size      uintptr
	Protect   Protection
	Committed bool
}

// End returns the first address after the region.
func (r Region) End() uintptr {
	return r.Base + r.Size
}

// Contains reports whether [addr, addr+n) lies entirely inside the region.
func (r Region) Contains(addr uintptr, n int) bool {
	if n < 0 || addr < r.Base {
		return false
	}
	return uint64(addr-r.Base)+uint64(n) <= uint64(r.Size)
}

func (r Region) String() string {
	return fmt.Sprintf("%#x-%#x %s", r.Base, r.End(), r.Protect)
}

// RegionWalker enumerates regions in ascending address order.
// Walking stops early when fn returns false.
type RegionWalker interface {
	WalkRegions(fn func(Region) bool) error
}

// Reader copies len(buf) bytes starting at addr out of the target.
// A successful read always fills buf completely.
type Reader interface {
	ReadMemory(addr uintptr, buf []byte) error
}

// Process is an opened target process.
type Process interface {
	RegionWalker
	Reader
	io.Closer

	// PID returns the operating system process id.
	PID() int

	// Alive reports whether the process is still running.
	Alive() bool
}

// ReadUint32 reads a little-endian uint32 at addr.
func ReadUint32(r Reader, addr uintptr) (uint32, error) {
	var buf [4]byte
	if err := r.ReadMemory(addr, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

// ReadInt32 reads a little-endian int32 at addr.
func ReadInt32(r Reader, addr uintptr) (int32, error) {
	v, err := ReadUint32(r, addr)
	return int32(v), err
}

// ReadUint64 reads a little-endian uint64 at addr.
func ReadUint64(r Reader, addr uintptr) (uint64, error) {
	var buf [8]byte
	if err := r.ReadMemory(addr, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

// ReadPointer reads a pointer of the given width (4 or 8 bytes) at addr.
// The width is the target's, which may differ from ours.
func ReadPointer(r Reader, addr uintptr, size int) (uintptr, error) {
	switch size {
	case 4:
		v, err := ReadUint32(r, addr)
		return uintptr(v), err
	case 8:
		v, err := ReadUint64(r, addr)
		return uintptr(v), err
	default:
		return 0, fmt.Errorf("unsupported pointer size %d", size)
	}
}
