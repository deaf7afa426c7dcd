//go:build windows

package memory

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

// protection modifiers that make a page unsuitable for scanning
const protModifiers = windows.PAGE_GUARD | windows.PAGE_NOCACHE | windows.PAGE_WRITECOMBINE

// nativeProcess reads another process through a handle opened with
// query and VM read rights.
type nativeProcess struct {
	pid    int
	handle windows.Handle
}

// Open opens the process with the given pid for reading.
func Open(pid int) (Process, error) {
	h, err := windows.OpenProcess(windows.PROCESS_QUERY_INFORMATION|windows.PROCESS_VM_READ, false, uint32(pid))
	if err != nil {
		return nil, fmt.Errorf("opening process %d: %w", pid, err)
	}
	return &nativeProcess{pid: pid, handle: h}, nil
}

// NewRegionWalker returns a walker over the regions of pid.
func NewRegionWalker(pid int) (RegionWalker, error) {
	return regionWalker(pid), nil
}

type regionWalker int

func (w regionWalker) WalkRegions(fn func(Region) bool) error {
	h, err := windows.OpenProcess(windows.PROCESS_QUERY_INFORMATION, false, uint32(w))
	if err != nil {
		return fmt.Errorf("opening process %d: %w", int(w), err)
	}
	defer windows.CloseHandle(h) //nolint:errcheck
	return walk(h, fn)
}

func walk(h windows.Handle, fn func(Region) bool) error {
	var info windows.MemoryBasicInformation
	var addr uintptr

	for {
		if err := windows.VirtualQueryEx(h, addr, &info, unsafe.Sizeof(info)); err != nil {
			// end of the address space
			return nil
		}
		if info.RegionSize == 0 {
			return nil
		}

		region := Region{
			Base:      info.BaseAddress,
			Size:      info.RegionSize,
			Protect:   toProtection(info.Protect),
			Committed: info.State&windows.MEM_COMMIT != 0,
		}
		if !fn(region) {
			return nil
		}

		next := info.BaseAddress + info.RegionSize
		if next <= addr {
			return nil
		}
		addr = next
	}
}

func toProtection(p uint32) Protection {
	var out Protection
	if p&protModifiers != 0 {
		out |= ProtGuard
	}
	switch p &^ protModifiers {
	case windows.PAGE_READONLY:
		out |= ProtRead
	case windows.PAGE_READWRITE:
		out |= ProtRead | ProtWrite
	case windows.PAGE_WRITECOPY:
		out |= ProtRead | ProtWrite | ProtCopy
	case windows.PAGE_EXECUTE:
		out |= ProtExecute
	case windows.PAGE_EXECUTE_READ:
		out |= ProtRead | ProtExecute
	case windows.PAGE_EXECUTE_READWRITE:
		out |= ProtRWX
	case windows.PAGE_EXECUTE_WRITECOPY:
		out |= ProtRWX | ProtCopy
	}
	return out
}

func (p *nativeProcess) WalkRegions(fn func(Region) bool) error {
	return walk(p.handle, fn)
}

func (p *nativeProcess) ReadMemory(addr uintptr, buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	var n uintptr
	if err := windows.ReadProcessMemory(p.handle, addr, &buf[0], uintptr(len(buf)), &n); err != nil {
		return readError(p.pid, addr, len(buf), err)
	}
	if int(n) != len(buf) {
		return fmt.Errorf("reading %d bytes at %#x: %w (got %d)", len(buf), addr, ErrShortRead, n)
	}
	return nil
}

func (p *nativeProcess) PID() int { return p.pid }

func (p *nativeProcess) Alive() bool {
	var code uint32
	if err := windows.GetExitCodeProcess(p.handle, &code); err != nil {
		return Alive(p.pid)
	}
	// STILL_ACTIVE
	return code == 259
}

func (p *nativeProcess) Close() error {
	return windows.CloseHandle(p.handle)
}
