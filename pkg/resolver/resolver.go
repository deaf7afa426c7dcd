// Package resolver turns signature matches into stable base pointers.
//
// For every target the matched address is moved by a fixed, empirically
// determined offset to a pointer slot, and that slot is dereferenced exactly
// once. The result stays valid for as long as the structure it points to does
// not move; the resolver never chases it again.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/willibrandon/replaybot/pkg/memory"
	"github.com/willibrandon/replaybot/pkg/scanner"
	"github.com/willibrandon/replaybot/pkg/signature"
)

// Names of the quantities the playback needs.
const (
	Time      = "time"
	Mode      = "mode"
	Gamefield = "gamefield"
)

// ErrSignatureUnresolved is returned when a scan finished without matching
// every target. Use errors.As with *UnresolvedError for the details.
var ErrSignatureUnresolved = errors.New("signature unresolved")

// ErrNullPointer is returned by Dereference when the pointer slot holds zero.
var ErrNullPointer = errors.New("null pointer")

// UnresolvedError reports how many targets were resolved and which were not.
type UnresolvedError struct {
	Found    int
	Required int
	Missing  []string
}

func (e *UnresolvedError) Error() string {
	return fmt.Sprintf("%s: resolved %d of %d (missing: %s)",
		ErrSignatureUnresolved, e.Found, e.Required, strings.Join(e.Missing, ", "))
}

func (e *UnresolvedError) Unwrap() error {
	return ErrSignatureUnresolved
}

// Target locates one pointer slot: a signature and the byte offset from the
// start of its match to the slot.
type Target struct {
	Signature signature.Signature
	Offset    int64
}

// Targets maps quantity names to how they are located.
type Targets map[string]Target

// ParseTarget compiles a signature string and pairs it with offset.
func ParseTarget(sig string, offset int64) (Target, error) {
	s, err := signature.Compile(sig)
	if err != nil {
		return Target{}, err
	}
	return Target{Signature: s, Offset: offset}, nil
}

// Names returns the target names, sorted.
func (t Targets) Names() []string {
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Pointer is an absolute address in the target, obtained by
// match + offset + one dereference.
type Pointer uintptr

func (p Pointer) String() string {
	return fmt.Sprintf("%#x", uintptr(p))
}

// Pointers holds the resolved pointer of every target by name.
type Pointers map[string]Pointer

// Get returns the pointer for name and whether it was resolved.
func (p Pointers) Get(name string) (Pointer, bool) {
	ptr, ok := p[name]
	return ptr, ok
}

// Process is what resolution needs from the target.
type Process interface {
	memory.RegionWalker
	memory.Reader
}

// Resolver scans for targets and dereferences their pointer slots.
type Resolver struct {
	targets     Targets
	scanner     *scanner.Scanner
	pointerSize int
	logger      *slog.Logger
}

// New creates a Resolver. pointerSize is the width of a pointer in the
// target (4 for a 32-bit process).
func New(targets Targets, sc *scanner.Scanner, pointerSize int, logger *slog.Logger) (*Resolver, error) {
	if len(targets) == 0 {
		return nil, errors.New("no targets to resolve")
	}
	if pointerSize != 4 && pointerSize != 8 {
		return nil, fmt.Errorf("unsupported pointer size %d", pointerSize)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Resolver{
		targets:     targets,
		scanner:     sc,
		pointerSize: pointerSize,
		logger:      logger,
	}, nil
}

// Resolve scans for every target and dereferences the matched slots.
// When some targets cannot be found, the pointers that were resolved are
// returned together with an *UnresolvedError.
func (r *Resolver) Resolve(ctx context.Context, proc Process) (Pointers, error) {
	return r.resolveMissing(ctx, proc, Pointers{})
}

// resolveMissing scans only for targets absent from have and adds them.
func (r *Resolver) resolveMissing(ctx context.Context, proc Process, have Pointers) (Pointers, error) {
	set := make(map[string]signature.Signature)
	for name, t := range r.targets {
		if _, ok := have[name]; !ok {
			set[name] = t.Signature
		}
	}
	if len(set) == 0 {
		return have, nil
	}

	res, err := r.scanner.Scan(ctx, proc, proc, set)
	if err != nil {
		return have, err
	}
	r.logger.Debug("scan finished",
		"regions", res.Stats.Visited,
		"eligible", res.Stats.Eligible,
		"unreadable", res.Stats.Unreadable,
		"bytes", res.Stats.Bytes,
		"duration", res.Stats.Duration)

	for _, name := range sortedKeys(res.Matches) {
		ptr, err := r.Dereference(proc, name, res.Matches[name])
		if errors.Is(err, ErrNullPointer) {
			// the structure is not allocated yet; try again on the next scan
			r.logger.Debug("pointer slot is empty", "name", name, "match", fmt.Sprintf("%#x", res.Matches[name]))
			continue
		}
		if err != nil {
			return have, err
		}
		have[name] = ptr
		r.logger.Info("resolved pointer", "name", name, "match", fmt.Sprintf("%#x", res.Matches[name]), "pointer", ptr.String())
	}

	if len(have) < len(r.targets) {
		return have, r.unresolved(have)
	}
	return have, nil
}

// Dereference applies the target's offset to match and reads the pointer there.
func (r *Resolver) Dereference(reader memory.Reader, name string, match uintptr) (Pointer, error) {
	t, ok := r.targets[name]
	if !ok {
		return 0, fmt.Errorf("unknown target %q", name)
	}
	slot := uintptr(int64(match) + t.Offset)
	v, err := memory.ReadPointer(reader, slot, r.pointerSize)
	if err != nil {
		return 0, fmt.Errorf("dereferencing %s slot at %#x: %w", name, slot, err)
	}
	if v == 0 {
		return 0, fmt.Errorf("dereferencing %s slot at %#x: %w", name, slot, ErrNullPointer)
	}
	return Pointer(v), nil
}

func (r *Resolver) unresolved(have Pointers) *UnresolvedError {
	var missing []string
	for _, name := range r.targets.Names() {
		if _, ok := have[name]; !ok {
			missing = append(missing, name)
		}
	}
	return &UnresolvedError{
		Found:    len(have),
		Required: len(r.targets),
		Missing:  missing,
	}
}

func sortedKeys(m map[string]uintptr) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
