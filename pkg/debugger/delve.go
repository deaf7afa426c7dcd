// Package debugger reads target memory through a Delve headless server.
//
// Delve halts the target while attached, so this backend suits one-off scans
// and inspection rather than live playback. Region enumeration still comes
// from the native walker; Delve has no call for it.
package debugger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-delve/delve/service/rpc2"

	"github.com/willibrandon/replaybot/pkg/memory"
)

// maxExamine is the largest read a Delve server accepts in one request.
const maxExamine = 1000

// examiner is the part of the Delve client used for reads.
type examiner interface {
	ExamineMemory(address uint64, length int) ([]byte, bool, error)
}

// Options configures Attach.
type Options struct {
	// DlvPath is the dlv executable; "dlv" from PATH when empty.
	DlvPath string
	// ConnectTimeout bounds the wait for the headless server to accept.
	ConnectTimeout time.Duration
	Logger         *slog.Logger
}

// Session is a memory.Process backed by a Delve RPC client.
type Session struct {
	client    *rpc2.RPCClient
	mem       examiner
	regions   memory.RegionWalker
	pid       int
	dlvCmd    *exec.Cmd // the running 'dlv attach' command, nil when connected to an existing server
	dlvListen string
	logger    *slog.Logger
}

// findFreePort finds an available TCP port on localhost
func findFreePort() (int, error) {
	addr, err := net.ResolveTCPAddr("tcp", "localhost:0")
	if err != nil {
		return 0, err
	}
	l, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// Attach starts 'dlv attach' for pid as a headless server and connects to it.
func Attach(ctx context.Context, pid int, opts Options) (*Session, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	dlv := opts.DlvPath
	if dlv == "" {
		dlv = "dlv"
	}

	port, err := findFreePort()
	if err != nil {
		return nil, fmt.Errorf("finding free port for delve: %w", err)
	}
	listen := "localhost:" + strconv.Itoa(port)

	cmd := exec.Command(dlv,
		"attach", strconv.Itoa(pid),
		"--headless",
		"--listen="+listen,
		"--api-version=2",
		"--accept-multiclient",
	)
	// Platform-specific process attributes are set in setupProcAttr function
	setupProcAttr(cmd)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting delve: %w", err)
	}
	logger.Info("started delve headless server", "pid", pid, "listen", listen, "dlv_pid", cmd.Process.Pid)

	s, err := connect(ctx, listen, pid, opts.ConnectTimeout, logger)
	if err != nil {
		_ = cmd.Process.Kill()
		_, _ = cmd.Process.Wait()
		return nil, err
	}
	s.dlvCmd = cmd
	return s, nil
}

// Connect uses an already running headless server at addr that is attached
// to pid.
func Connect(ctx context.Context, addr string, pid int, opts Options) (*Session, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return connect(ctx, addr, pid, opts.ConnectTimeout, logger)
}

func connect(ctx context.Context, addr string, pid int, timeout time.Duration, logger *slog.Logger) (*Session, error) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	regions, err := memory.NewRegionWalker(pid)
	if err != nil {
		return nil, fmt.Errorf("delve backend needs native region enumeration: %w", err)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxElapsedTime = timeout

	var conn net.Conn
	dial := func() error {
		var d net.Dialer
		c, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return err
		}
		conn = c
		return nil
	}
	if err := backoff.Retry(dial, backoff.WithContext(b, ctx)); err != nil {
		return nil, fmt.Errorf("connecting to delve server at %s: %w", addr, err)
	}

	client := rpc2.NewClientFromConn(conn)
	if _, err := client.GetState(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("querying delve server at %s: %w", addr, err)
	}
	logger.Info("connected to delve headless server", "listen", addr)

	return &Session{
		client:    client,
		mem:       client,
		regions:   regions,
		pid:       pid,
		dlvListen: addr,
		logger:    logger,
	}, nil
}

// WalkRegions implements memory.RegionWalker.
func (s *Session) WalkRegions(fn func(memory.Region) bool) error {
	return s.regions.WalkRegions(fn)
}

// ReadMemory implements memory.Reader, splitting reads into requests Delve
// accepts.
func (s *Session) ReadMemory(addr uintptr, buf []byte) error {
	for off := 0; off < len(buf); {
		n := min(len(buf)-off, maxExamine)
		at := addr + uintptr(off)
		data, _, err := s.mem.ExamineMemory(uint64(at), n)
		if err != nil {
			if !memory.Alive(s.pid) {
				return fmt.Errorf("reading %d bytes at %#x: %w", n, at, memory.ErrProcessGone)
			}
			return fmt.Errorf("reading %d bytes at %#x: %w: %w", n, at, memory.ErrAddressNotMapped, err)
		}
		if len(data) != n {
			return fmt.Errorf("reading %d bytes at %#x: got %d: %w", n, at, len(data), memory.ErrShortRead)
		}
		copy(buf[off:], data)
		off += n
	}
	return nil
}

// PID implements memory.Process.
func (s *Session) PID() int { return s.pid }

// Alive implements memory.Process.
func (s *Session) Alive() bool { return memory.Alive(s.pid) }

// Listen returns the address of the headless server.
func (s *Session) Listen() string { return s.dlvListen }

// Close detaches from the server and stops the dlv process if Attach started it.
func (s *Session) Close() error {
	var closeErr error
	if s.client != nil {
		// leave the target running when dlv exits
		if err := s.client.Detach(false); err != nil {
			s.logger.Warn("detaching delve", "error", err)
			closeErr = fmt.Errorf("detaching delve: %w", err)
		}
		s.client = nil
	}
	if s.dlvCmd != nil && s.dlvCmd.Process != nil {
		if err := s.dlvCmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			closeErr = errors.Join(closeErr, fmt.Errorf("killing delve: %w", err))
		}
		_, _ = s.dlvCmd.Process.Wait()
		s.logger.Info("delve process terminated", "dlv_pid", s.dlvCmd.Process.Pid)
		s.dlvCmd = nil
	}
	return closeErr
}
