//go:build windows

package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/sys/windows"
)

func TestToProtection(t *testing.T) {
	tests := []struct {
		protect uint32
		want    Protection
	}{
		{windows.PAGE_EXECUTE_READWRITE, ProtRWX},
		{windows.PAGE_EXECUTE_WRITECOPY, ProtRWX | ProtCopy},
		{windows.PAGE_EXECUTE_READ, ProtRead | ProtExecute},
		{windows.PAGE_READWRITE, ProtRead | ProtWrite},
		{windows.PAGE_WRITECOPY, ProtRead | ProtWrite | ProtCopy},
		{windows.PAGE_EXECUTE_READWRITE | windows.PAGE_GUARD, ProtRWX | ProtGuard},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, toProtection(tt.protect), "protect %#x", tt.protect)
	}
}
