// Package scanner finds byte signatures inside the memory of a target process.
//
// Regions are visited in address order. Each eligible region (committed,
// read+write+execute) is copied out once and every still-unresolved signature
// is tested at each offset in a single pass over the copy. The first match of a
// signature wins; scanning ends as soon as all signatures have matched.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/samber/lo"

	"github.com/willibrandon/replaybot/pkg/memory"
	"github.com/willibrandon/replaybot/pkg/metrics"
	"github.com/willibrandon/replaybot/pkg/signature"
)

// ErrRegionUnreadable marks a region whose snapshot could not be taken.
// Such regions are skipped; the error never escapes Scan.
var ErrRegionUnreadable = errors.New("region unreadable")

// Snapshot is a private copy of one region's bytes, taken at scan time.
type Snapshot struct {
	Base uintptr
	Data []byte
}

// Address translates an offset into the snapshot to an address in the target.
func (s Snapshot) Address(off int) uintptr {
	return s.Base + uintptr(off)
}

// Stats describes the work done by one scan.
type Stats struct {
	Visited    int
	Eligible   int
	Unreadable int
	Bytes      int64
	Duration   time.Duration
}

// Result maps signature names to the absolute address of their first match.
type Result struct {
	Matches map[string]uintptr
	Pending []string
	Stats   Stats
}

// Complete reports whether every requested signature matched.
func (r Result) Complete() bool {
	return len(r.Pending) == 0
}

// Missing returns the names of signatures that did not match, sorted.
func (r Result) Missing() []string {
	out := append([]string(nil), r.Pending...)
	sort.Strings(out)
	return out
}

// Options tunes a Scanner.
type Options struct {
	// MaxRegionSize skips eligible regions larger than this many bytes.
	// Zero means no limit.
	MaxRegionSize uintptr

	Logger  *slog.Logger
	Metrics *metrics.Collectors
}

// Scanner runs signature scans. It holds no per-scan state and may be reused.
type Scanner struct {
	maxRegion uintptr
	logger    *slog.Logger
	metrics   *metrics.Collectors
}

// New creates a Scanner.
func New(opts Options) *Scanner {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Scanner{
		maxRegion: opts.MaxRegionSize,
		logger:    logger,
		metrics:   opts.Metrics,
	}
}

// Eligible reports whether a region may hold the signatures: it must be
// committed and exactly read+write+execute.
func Eligible(r memory.Region) bool {
	return r.Committed && r.Protect == memory.ProtRWX
}

type pending struct {
	name string
	sig  signature.Signature
}

// Scan searches walker's regions for every signature in set, reading region
// contents through reader. Signatures that never match are reported in
// Result.Pending; that is not an error. An error is returned only when the
// regions cannot be enumerated or ctx is done.
func (s *Scanner) Scan(ctx context.Context, walker memory.RegionWalker, reader memory.Reader, set map[string]signature.Signature) (Result, error) {
	start := time.Now()

	todo := make([]pending, 0, len(set))
	for _, name := range lo.Keys(set) {
		sig := set[name]
		if sig.IsZero() {
			return Result{}, fmt.Errorf("signature %q: %w", name, signature.ErrMalformedSignature)
		}
		todo = append(todo, pending{name: name, sig: sig})
	}
	// deterministic evaluation order inside the pass
	sort.Slice(todo, func(i, j int) bool { return todo[i].name < todo[j].name })

	res := Result{Matches: make(map[string]uintptr, len(set))}
	var scanErr error

	if len(todo) > 0 {
		err := walker.WalkRegions(func(region memory.Region) bool {
			if err := ctx.Err(); err != nil {
				scanErr = err
				return false
			}
			res.Stats.Visited++

			if !Eligible(region) {
				return true
			}
			if s.maxRegion > 0 && region.Size > s.maxRegion {
				s.logger.Debug("skipping oversized region", "region", region.String())
				return true
			}
			res.Stats.Eligible++

			snap, err := takeSnapshot(reader, region)
			if err != nil {
				res.Stats.Unreadable++
				s.logger.Debug("skipping region", "region", region.String(), "error", err)
				return true
			}
			res.Stats.Bytes += int64(len(snap.Data))

			todo = matchAll(snap, todo, res.Matches)
			for name, addr := range res.Matches {
				if region.Contains(addr, 1) {
					s.logger.Debug("signature matched", "name", name, "address", fmt.Sprintf("%#x", addr))
				}
			}
			return len(todo) > 0
		})
		if err != nil {
			scanErr = errors.Join(scanErr, err)
		}
	}

	res.Pending = lo.Map(todo, func(p pending, _ int) string { return p.name })
	res.Stats.Duration = time.Since(start)
	s.metrics.ObserveScan(res.Stats.Duration, res.Stats.Visited, res.Stats.Eligible, res.Stats.Unreadable, len(res.Matches))

	if scanErr != nil {
		return res, fmt.Errorf("scanning regions: %w", scanErr)
	}
	return res, nil
}

// takeSnapshot copies a whole region. The read must fill the declared length.
func takeSnapshot(reader memory.Reader, region memory.Region) (Snapshot, error) {
	if region.Size == 0 {
		return Snapshot{Base: region.Base}, nil
	}
	if uint64(region.Size) > uint64(maxInt) {
		return Snapshot{}, fmt.Errorf("%w: %s too large", ErrRegionUnreadable, region)
	}
	buf := make([]byte, int(region.Size))
	if err := reader.ReadMemory(region.Base, buf); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %w", ErrRegionUnreadable, err)
	}
	return Snapshot{Base: region.Base, Data: buf}, nil
}

const maxInt = int(^uint(0) >> 1)

// matchAll walks snap once, testing every pending signature at each offset.
// Matched signatures are recorded in found and removed from the returned slice.
func matchAll(snap Snapshot, todo []pending, found map[string]uintptr) []pending {
	buf := snap.Data
	for off := 0; off < len(buf) && len(todo) > 0; off++ {
		for i := 0; i < len(todo); i++ {
			if !todo[i].sig.MatchAt(buf, off) {
				continue
			}
			found[todo[i].name] = snap.Address(off)
			todo = append(todo[:i], todo[i+1:]...)
			i--
		}
	}
	return todo
}
