// Package window abstracts the managed application window: waiting for
// it to appear and delivering synthetic keystrokes to it.
//
// The dispatcher only sees [Provider] and [Handle]; [Registry] is the
// in-process implementation and [Xdotool] drives a real X11 window.
package window

import (
	"context"
	"fmt"
	"sync"
	"time"

	ibcerr "ibctl/internal/errors"
)

// Handle is a live reference to the managed window.
type Handle interface {
	// Dispatch delivers events in order as one unit; no other input
	// is interleaved between them.
	Dispatch(events ...KeyEvent) error
}

// Provider hands out the managed window.
type Provider interface {
	// Window blocks until the window exists.  A timeout <= 0 waits
	// until ctx is done.  An expired wait returns an error wrapping
	// ErrWindowUnavailable.
	Window(ctx context.Context, timeout time.Duration) (Handle, error)
}

// Registry is a Provider whose window is set by whoever discovers it.
// Waiters are woken as soon as Set is called.
type Registry struct {
	mu     sync.Mutex
	handle Handle
	ready  chan struct{}
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{ready: make(chan struct{})}
}

// Set publishes h as the managed window.
func (r *Registry) Set(h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handle = h
	select {
	case <-r.ready:
	default:
		close(r.ready)
	}
}

// Current returns the published window, or nil, without waiting.
func (r *Registry) Current() Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.handle
}

// Clear forgets the current window; later callers wait again.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handle = nil
	select {
	case <-r.ready:
		r.ready = make(chan struct{})
	default:
	}
}

// Window implements Provider.
func (r *Registry) Window(ctx context.Context, timeout time.Duration) (Handle, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	for {
		r.mu.Lock()
		h, ready := r.handle, r.ready
		r.mu.Unlock()
		if h != nil {
			return h, nil
		}

		select {
		case <-ready:
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ibcerr.ErrWindowUnavailable, ctx.Err())
		}
	}
}

// HandleFunc adapts a function to Handle.
type HandleFunc func(events ...KeyEvent) error

// Dispatch calls f.
func (f HandleFunc) Dispatch(events ...KeyEvent) error { return f(events...) }
