//go:build linux

package memory

import (
	"os"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNativeProcessSelf(t *testing.T) {
	proc, err := Open(os.Getpid())
	require.NoError(t, err)
	defer proc.Close()

	assert.Equal(t, os.Getpid(), proc.PID())
	assert.True(t, proc.Alive())

	data := []byte{0xDE, 0xAD, 0xBE, 0xEF, 0x01, 0x02, 0x03, 0x04}
	addr := uintptr(unsafe.Pointer(&data[0]))

	var (
		regions  []Region
		dataProt Protection
		found    bool
	)
	require.NoError(t, proc.WalkRegions(func(r Region) bool {
		regions = append(regions, r)
		if r.Contains(addr, len(data)) {
			dataProt, found = r.Protect, true
		}
		return true
	}))

	require.NotEmpty(t, regions)
	for i := 1; i < len(regions); i++ {
		assert.Less(t, regions[i-1].Base, regions[i].Base, "regions in address order")
	}
	for _, r := range regions {
		assert.True(t, r.Committed)
		assert.Greater(t, r.Size, uintptr(0))
	}
	require.True(t, found, "heap slice lies in a listed mapping")
	assert.Equal(t, ProtRead|ProtWrite, dataProt&(ProtRead|ProtWrite))

	buf := make([]byte, len(data))
	require.NoError(t, proc.ReadMemory(addr, buf))
	assert.Equal(t, data, buf)

	assert.Error(t, proc.ReadMemory(0, buf), "page zero is never mapped")
}

func TestNativeWalkStopsEarly(t *testing.T) {
	w, err := NewRegionWalker(os.Getpid())
	require.NoError(t, err)

	visits := 0
	require.NoError(t, w.WalkRegions(func(Region) bool {
		visits++
		return false
	}))
	assert.Equal(t, 1, visits)
}
