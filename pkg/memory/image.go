package memory

import (
	"encoding/binary"
	"fmt"
	"sort"
)

// Image is an in-memory Process: a set of regions with byte contents.
// It stands in for a live target in tests, demos and offline analysis.
type Image struct {
	pid     int
	regions []*imageRegion
	dead    bool

	// Visits counts regions handed to WalkRegions callbacks.
	Visits int
	// Reads counts ReadMemory calls.
	Reads int
}

type imageRegion struct {
	Region
	data       []byte
	unreadable bool
}

// NewImage returns an empty image reporting the given pid.
func NewImage(pid int) *Image {
	return &Image{pid: pid}
}

// Map adds a committed region at base holding a copy of data.
func (m *Image) Map(base uintptr, data []byte, prot Protection) *Image {
	cp := make([]byte, len(data))
	copy(cp, data)
	m.regions = append(m.regions, &imageRegion{
		Region: Region{Base: base, Size: uintptr(len(cp)), Protect: prot, Committed: true},
		data:   cp,
	})
	sort.Slice(m.regions, func(i, j int) bool { return m.regions[i].Base < m.regions[j].Base })
	return m
}

// Reserve adds an uncommitted region of the given size.
func (m *Image) Reserve(base, size uintptr, prot Protection) *Image {
	m.regions = append(m.regions, &imageRegion{
		Region: Region{Base: base, Size: size, Protect: prot},
	})
	sort.Slice(m.regions, func(i, j int) bool { return m.regions[i].Base < m.regions[j].Base })
	return m
}

// MarkUnreadable makes reads touching the region at base fail.
func (m *Image) MarkUnreadable(base uintptr) {
	for _, r := range m.regions {
		if r.Base == base {
			r.unreadable = true
		}
	}
}

// Kill makes the image behave like an exited process.
func (m *Image) Kill() {
	m.dead = true
}

// PutUint32 stores v little-endian at addr, which must be mapped.
func (m *Image) PutUint32(addr uintptr, v uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	m.Write(addr, buf[:])
}

// PutUint64 stores v little-endian at addr, which must be mapped.
func (m *Image) PutUint64(addr uintptr, v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	m.Write(addr, buf[:])
}

// Write copies data into the mapped region containing addr. It panics when
// the range is not mapped, since that is always a mistake in the caller's setup.
func (m *Image) Write(addr uintptr, data []byte) {
	r := m.find(addr, len(data))
	if r == nil {
		panic(fmt.Sprintf("memory: write of %d bytes at %#x is not mapped", len(data), addr))
	}
	copy(r.data[addr-r.Base:], data)
}

func (m *Image) find(addr uintptr, n int) *imageRegion {
	for _, r := range m.regions {
		if r.Committed && r.Contains(addr, n) {
			return r
		}
	}
	return nil
}

// WalkRegions implements RegionWalker.
func (m *Image) WalkRegions(fn func(Region) bool) error {
	if m.dead {
		return ErrProcessGone
	}
	for _, r := range m.regions {
		m.Visits++
		if !fn(r.Region) {
			return nil
		}
	}
	return nil
}

// ReadMemory implements Reader.
func (m *Image) ReadMemory(addr uintptr, buf []byte) error {
	m.Reads++
	if m.dead {
		return fmt.Errorf("reading %d bytes at %#x: %w", len(buf), addr, ErrProcessGone)
	}
	r := m.find(addr, len(buf))
	if r == nil || r.unreadable {
		return fmt.Errorf("reading %d bytes at %#x: %w", len(buf), addr, ErrAddressNotMapped)
	}
	copy(buf, r.data[addr-r.Base:])
	return nil
}

// PID implements Process.
func (m *Image) PID() int { return m.pid }

// Alive implements Process.
func (m *Image) Alive() bool { return !m.dead }

// Close implements Process.
func (m *Image) Close() error { return nil }
