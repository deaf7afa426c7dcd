//go:build linux

package memory

import (
	"fmt"
	"unsafe"

	"github.com/prometheus/procfs"
	"golang.org/x/sys/unix"
)

// nativeProcess reads another process with process_vm_readv and lists its
// mappings from /proc/<pid>/maps. This covers targets running under Wine.
type nativeProcess struct {
	pid int
	fs  procfs.Proc
}

// Open opens the process with the given pid for reading.
func Open(pid int) (Process, error) {
	p, err := procfs.NewProc(pid)
	if err != nil {
		return nil, fmt.Errorf("opening process %d: %w", pid, err)
	}
	return &nativeProcess{pid: pid, fs: p}, nil
}

// NewRegionWalker returns a walker over the mappings of pid.
func NewRegionWalker(pid int) (RegionWalker, error) {
	p, err := procfs.NewProc(pid)
	if err != nil {
		return nil, fmt.Errorf("opening process %d: %w", pid, err)
	}
	return &nativeProcess{pid: pid, fs: p}, nil
}

func (p *nativeProcess) WalkRegions(fn func(Region) bool) error {
	maps, err := p.fs.ProcMaps()
	if err != nil {
		if !Alive(p.pid) {
			return fmt.Errorf("listing mappings of %d: %w", p.pid, ErrProcessGone)
		}
		return fmt.Errorf("listing mappings of %d: %w", p.pid, err)
	}

	for _, m := range maps {
		region := Region{
			Base:      m.StartAddr,
			Size:      m.EndAddr - m.StartAddr,
			Committed: true,
		}
		if m.Perms != nil {
			if m.Perms.Read {
				region.Protect |= ProtRead
			}
			if m.Perms.Write {
				region.Protect |= ProtWrite
			}
			if m.Perms.Execute {
				region.Protect |= ProtExecute
			}
		}
		if !fn(region) {
			return nil
		}
	}
	return nil
}

func (p *nativeProcess) ReadMemory(addr uintptr, buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	local := []unix.Iovec{{Base: (*byte)(unsafe.Pointer(&buf[0]))}}
	local[0].SetLen(len(buf))
	remote := []unix.RemoteIovec{{Base: addr, Len: len(buf)}}

	n, err := unix.ProcessVMReadv(p.pid, local, remote, 0)
	if err != nil {
		return readError(p.pid, addr, len(buf), err)
	}
	if n != len(buf) {
		return fmt.Errorf("reading %d bytes at %#x: %w (got %d)", len(buf), addr, ErrShortRead, n)
	}
	return nil
}

func (p *nativeProcess) PID() int { return p.pid }

func (p *nativeProcess) Alive() bool { return Alive(p.pid) }

func (p *nativeProcess) Close() error { return nil }
