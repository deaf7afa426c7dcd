package memory

import (
	"fmt"
	"strings"

	"github.com/shirou/gopsutil/v3/process"
)

// FindProcess returns the pid of the first running process whose image name
// equals name (case-insensitive, as image names are on Windows).
func FindProcess(name string) (int, error) {
	procs, err := process.Processes()
	if err != nil {
		return 0, fmt.Errorf("listing processes: %w", err)
	}

	for _, p := range procs {
		procName, err := p.Name()
		if err != nil {
			continue
		}
		if strings.EqualFold(procName, name) {
			return int(p.Pid), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrProcessNotFound, name)
}

// Alive reports whether a process with the given pid still exists.
func Alive(pid int) bool {
	ok, err := process.PidExists(int32(pid))
	return err == nil && ok
}

// readError classifies a failed read: if the process has exited the
// failure is reported as ErrProcessGone, otherwise as ErrAddressNotMapped.
func readError(pid int, addr uintptr, n int, cause error) error {
	if !Alive(pid) {
		return fmt.Errorf("reading %d bytes at %#x: %w", n, addr, ErrProcessGone)
	}
	return fmt.Errorf("reading %d bytes at %#x: %w (%v)", n, addr, ErrAddressNotMapped, cause)
}
