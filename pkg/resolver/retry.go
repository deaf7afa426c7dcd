package resolver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/willibrandon/replaybot/pkg/memory"
)

// RetryPolicy bounds how long ResolveWithRetry keeps rescanning.
type RetryPolicy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// Timeout is the total time allowed; zero means a single attempt.
	Timeout time.Duration
}

// DefaultRetryPolicy rescans for up to a minute, which covers the target
// still loading when the tool starts.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		Timeout:         time.Minute,
	}
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	if p.Timeout <= 0 {
		return backoff.WithContext(&backoff.StopBackOff{}, ctx)
	}
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	b.MaxElapsedTime = p.Timeout
	b.Reset()
	return backoff.WithContext(b, ctx)
}

// Liveness reports whether the target still runs.
type Liveness interface {
	Alive() bool
}

// ResolveWithRetry resolves every target, rescanning for the missing ones
// while they stay unresolved. Targets already resolved are kept and never
// scanned again. If the target exits, retrying stops with memory.ErrProcessGone.
func (r *Resolver) ResolveWithRetry(ctx context.Context, proc Process, policy RetryPolicy) (Pointers, error) {
	have := Pointers{}
	attempt := 0

	op := func() error {
		attempt++
		if l, ok := proc.(Liveness); ok && !l.Alive() {
			return backoff.Permanent(fmt.Errorf("resolving pointers: %w", memory.ErrProcessGone))
		}

		var err error
		have, err = r.resolveMissing(ctx, proc, have)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, ErrSignatureUnresolved):
			return err
		case errors.Is(err, memory.ErrAddressNotMapped):
			// a slot may sit in memory that is being remapped; rescan
			return err
		default:
			return backoff.Permanent(err)
		}
	}

	notify := func(err error, next time.Duration) {
		r.logger.Warn("pointers not resolved yet, rescanning",
			"attempt", attempt,
			"error", err,
			"retry_in", next.Round(time.Millisecond))
	}

	if err := backoff.RetryNotify(op, policy.backOff(ctx), notify); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			err = errors.Join(err, ctxErr)
		}
		return have, err
	}
	return have, nil
}
