package input

import (
	"errors"
	"log/slog"
)

// ErrUnsupported is returned where native input injection is not available.
var ErrUnsupported = errors.New("input injection not supported on this platform")

// Injector performs input on the host. Calls are fire-and-forget; an error
// means the host refused the request.
type Injector interface {
	Press(k Key) error
	Release(k Key) error
	MoveTo(x, y int) error
}

// DryRun logs every request instead of performing it.
type DryRun struct {
	logger *slog.Logger
}

// NewDryRun creates a DryRun injector logging at debug level.
func NewDryRun(logger *slog.Logger) *DryRun {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &DryRun{logger: logger}
}

func (d *DryRun) Press(k Key) error {
	d.logger.Debug("press", "key", k.String())
	return nil
}

func (d *DryRun) Release(k Key) error {
	d.logger.Debug("release", "key", k.String())
	return nil
}

func (d *DryRun) MoveTo(x, y int) error {
	d.logger.Debug("move", "x", x, "y", y)
	return nil
}

// Call is one request seen by a Capture injector.
type Call struct {
	Op  string
	Key Key
	X   int
	Y   int
}

// Capture records requests in order. It is meant for tests and offline runs.
type Capture struct {
	Calls []Call
	// Fail, when set, is returned by every call after it is recorded.
	Fail error
}

func (c *Capture) Press(k Key) error {
	c.Calls = append(c.Calls, Call{Op: "press", Key: k})
	return c.Fail
}

func (c *Capture) Release(k Key) error {
	c.Calls = append(c.Calls, Call{Op: "release", Key: k})
	return c.Fail
}

func (c *Capture) MoveTo(x, y int) error {
	c.Calls = append(c.Calls, Call{Op: "move", X: x, Y: y})
	return c.Fail
}

// Reset drops recorded calls.
func (c *Capture) Reset() {
	c.Calls = nil
}
