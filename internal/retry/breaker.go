package retry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	ibcerr "ibctl/internal/errors"
)

// State is the position of a Breaker.
type State int

const (
	StateClosed   State = iota // calls pass through
	StateOpen                  // calls are refused until the cooldown ends
	StateHalfOpen              // probe calls decide whether to close again
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Breaker stops calling an external tool that keeps failing.  After
// Threshold consecutive failures it opens and refuses calls with
// ErrCircuitOpen for Cooldown.  Then it lets calls through as probes;
// Probes successes in a row close it, a single failure re-opens it.
//
// Cancelled or expired contexts are not counted: a search that was cut
// short by its caller says nothing about the tool.
//
// The zero value is ready to use.
type Breaker struct {
	Threshold int           // default 5
	Cooldown  time.Duration // default 30s
	Probes    int           // default 1

	// OnChange is called on every transition, with the lock held.
	OnChange func(from, to State)

	now func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	probes   int
	openedAt time.Time
}

// Do runs fn unless the breaker is open.
func (b *Breaker) Do(fn func() error) error {
	if err := b.allow(); err != nil {
		return err
	}
	err := fn()
	b.record(err)
	return err
}

// State reports the current position, moving an expired open breaker
// to half-open first.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.expire()
	return b.state
}

// Failures is the current run of consecutive failures.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// Reset closes the breaker and forgets past failures.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures, b.probes = 0, 0
	b.move(StateClosed)
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.expire()
	if b.state != StateOpen {
		return nil
	}
	left := b.cooldown() - b.clock().Sub(b.openedAt)
	return fmt.Errorf("%w: %d failures in a row, retry in %v",
		ibcerr.ErrCircuitOpen, b.failures, left.Round(time.Second))
}

func (b *Breaker) record(err error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil {
		b.failures++
		b.probes = 0
		if b.state == StateHalfOpen || b.failures >= b.threshold() {
			b.openedAt = b.clock()
			b.move(StateOpen)
		}
		return
	}

	if b.state != StateHalfOpen {
		b.failures = 0
		return
	}
	b.probes++
	if b.probes >= b.probeCount() {
		b.failures, b.probes = 0, 0
		b.move(StateClosed)
	}
}

// expire must be called with mu held.
func (b *Breaker) expire() {
	if b.state == StateOpen && b.clock().Sub(b.openedAt) >= b.cooldown() {
		b.move(StateHalfOpen)
	}
}

func (b *Breaker) move(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	if b.OnChange != nil {
		b.OnChange(from, to)
	}
}

func (b *Breaker) threshold() int {
	if b.Threshold > 0 {
		return b.Threshold
	}
	return 5
}

func (b *Breaker) cooldown() time.Duration {
	if b.Cooldown > 0 {
		return b.Cooldown
	}
	return 30 * time.Second
}

func (b *Breaker) probeCount() int {
	if b.Probes > 0 {
		return b.Probes
	}
	return 1
}

func (b *Breaker) clock() time.Time {
	if b.now != nil {
		return b.now()
	}
	return time.Now()
}
