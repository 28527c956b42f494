// Package retry holds the two failure policies ibctl needs: Backoff,
// for polling the managed window and redialling the command server,
// and Breaker, for giving up on an external tool that keeps failing.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// PermanentError stops a Backoff loop.  Do returns the wrapped error
// as is.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent marks err as not worth retrying.  A nil err stays nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err, or anything it wraps, is permanent.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// Backoff retries an operation with exponentially growing delays.
// Zero fields take the defaults noted below.
type Backoff struct {
	InitialDelay time.Duration // 1s
	MaxDelay     time.Duration // 60s
	Multiplier   float64       // 2

	// MaxAttempts counts the first try.  0 retries until the context
	// is done.
	MaxAttempts int

	// Jitter spreads each delay by up to 25% either way.
	Jitter bool

	// OnRetry runs before each wait with the failed attempt number.
	OnRetry func(attempt int, err error, wait time.Duration)
}

// DialBackoff is the redial policy of `send`: retries extra attempts,
// starting at 250ms and capped at 5s.
func DialBackoff(retries int) *Backoff {
	return &Backoff{
		InitialDelay: 250 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2,
		MaxAttempts:  retries + 1,
		Jitter:       true,
	}
}

// PollBackoff is the window search policy: start at interval, double
// up to one second, and keep going until the context ends.
func PollBackoff(interval time.Duration) *Backoff {
	return &Backoff{
		InitialDelay: interval,
		MaxDelay:     time.Second,
		Multiplier:   2,
	}
}

// Do calls fn until it returns nil or a permanent error, the attempts
// run out, or ctx is done.  Attempts are numbered from 1.
func (b *Backoff) Do(ctx context.Context, fn func(attempt int) error) error {
	delay := b.initial()
	for attempt := 1; ; attempt++ {
		err := fn(attempt)
		var pe *PermanentError
		switch {
		case err == nil:
			return nil
		case errors.As(err, &pe):
			return pe.Err
		case b.MaxAttempts > 0 && attempt >= b.MaxAttempts:
			return fmt.Errorf("gave up after %d attempts: %w", attempt, err)
		}

		wait := delay
		if b.Jitter {
			wait = jitter(delay)
		}
		if b.OnRetry != nil {
			b.OnRetry(attempt, err, wait)
		}
		if cerr := sleep(ctx, wait); cerr != nil {
			return fmt.Errorf("stopped after %d attempts (last error: %v): %w", attempt, err, cerr)
		}
		delay = b.grow(delay)
	}
}

func (b *Backoff) initial() time.Duration {
	if b.InitialDelay > 0 {
		return b.InitialDelay
	}
	return time.Second
}

func (b *Backoff) grow(d time.Duration) time.Duration {
	m := b.Multiplier
	if m <= 0 {
		m = 2
	}
	limit := b.MaxDelay
	if limit <= 0 {
		limit = time.Minute
	}
	if next := time.Duration(float64(d) * m); next < limit {
		return next
	}
	return limit
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// jitter returns d moved randomly by up to 25%, never below 1ms.
func jitter(d time.Duration) time.Duration {
	spread := float64(d) / 4
	out := time.Duration(float64(d) + (rand.Float64()*2-1)*spread)
	if out < time.Millisecond {
		return time.Millisecond
	}
	return out
}
