package window

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
	"unicode"

	ibcerr "ibctl/internal/errors"
	"ibctl/internal/retry"
	"ibctl/util"
)

// runFunc executes a program and returns its stdout.
type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRun(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

var errNotFound = errors.New("no window matches")

// Xdotool finds the managed window on an X11 display by title and
// injects keystrokes with the xdotool utility.
//
// The last window found is kept in a Registry and handed out without
// another search, so short waits such as RECONNECTDATA's do not race the
// xdotool process start.  Watch keeps that entry current in the
// background; without it, a miss is polled with exponential backoff
// until the caller's timeout.  A circuit breaker trips when xdotool itself keeps failing
// (no binary, no display) so commands fail fast instead of spawning a
// process per poll.
type Xdotool struct {
	Title        string
	Binary       string
	PollInterval time.Duration
	Logger       *util.Logger

	breaker *retry.Breaker
	run     runFunc
	seen    *Registry
}

// NewXdotool returns a provider searching for windows whose name
// matches title (an xdotool --name regular expression).
func NewXdotool(title string, poll time.Duration, logger *util.Logger) *Xdotool {
	if poll <= 0 {
		poll = 50 * time.Millisecond
	}
	x := &Xdotool{
		Title:        title,
		Binary:       "xdotool",
		PollInterval: poll,
		Logger:       logger,
		run:          execRun,
		seen:         NewRegistry(),
	}
	x.breaker = &retry.Breaker{
		Threshold: 3,
		Cooldown:  30 * time.Second,
		OnChange: func(from, to retry.State) {
			logger.Warn("xdotool circuit %s -> %s", from, to)
		},
	}
	return x
}

// Window implements Provider.
func (x *Xdotool) Window(ctx context.Context, timeout time.Duration) (Handle, error) {
	if h := x.seen.Current(); h != nil {
		return h, nil
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var id string
	err := retry.PollBackoff(x.PollInterval).Do(ctx, func(attempt int) error {
		var found bool
		cbErr := x.breaker.Do(func() error {
			var err error
			id, found, err = x.search(ctx)
			return err
		})
		if cbErr != nil {
			return retry.Permanent(cbErr)
		}
		if !found {
			x.Logger.Debug("window %q not found (attempt %d)", x.Title, attempt)
			return errNotFound
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ibcerr.ErrWindowUnavailable, err)
	}

	x.Logger.Debug("window %q is %s", x.Title, id)
	h := &xdotoolWindow{id: id, x: x}
	x.seen.Set(h)
	return h, nil
}

// Watch searches for the window every interval until ctx ends,
// publishing it when it appears and forgetting it when it goes away.
func (x *Xdotool) Watch(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		x.refresh(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}

func (x *Xdotool) refresh(ctx context.Context) {
	var (
		id    string
		found bool
	)
	err := x.breaker.Do(func() error {
		var err error
		id, found, err = x.search(ctx)
		return err
	})
	if ctx.Err() != nil {
		return
	}

	cur, _ := x.seen.Current().(*xdotoolWindow)
	switch {
	case err != nil:
		x.Logger.Debug("window watch: %v", err)
		x.seen.Clear()
	case !found:
		if cur != nil {
			x.Logger.Verbose("window %q is gone", x.Title)
		}
		x.seen.Clear()
	case cur == nil || cur.id != id:
		x.Logger.Verbose("window %q is %s", x.Title, id)
		x.seen.Set(&xdotoolWindow{id: id, x: x})
	}
}

// search runs `xdotool search --name` and returns the first window id.
// xdotool exits 1 when nothing matches; that is not a failure of the
// tool itself.
func (x *Xdotool) search(ctx context.Context) (string, bool, error) {
	out, err := x.run(ctx, x.Binary, "search", "--onlyvisible", "--name", x.Title)
	if err != nil && ctx.Err() != nil {
		return "", false, nil
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			return "", false, nil
		}
		return "", false, fmt.Errorf("xdotool search: %w", err)
	}

	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		if id := strings.TrimSpace(sc.Text()); id != "" {
			return id, true, nil
		}
	}
	return "", false, nil
}

// ── Handle ───────────────────────────────────────────────────────────

type xdotoolWindow struct {
	id string
	x  *Xdotool
}

// Dispatch maps the events onto one chained xdotool invocation so the
// whole sequence reaches the window back to back.  X11 has no separate
// "typed" phase, so typed events are carried by the down/up pair.  A
// failed injection forgets the window so the next command searches.
func (w *xdotoolWindow) Dispatch(events ...KeyEvent) error {
	args := make([]string, 0, len(events)*4)
	for _, ev := range events {
		var verb string
		switch ev.Kind {
		case KeyPressed:
			verb = "keydown"
		case KeyReleased:
			verb = "keyup"
		default:
			continue
		}
		args = append(args, verb, "--window", w.id, keysym(ev))
	}
	if len(args) == 0 {
		return nil
	}

	err := w.x.breaker.Do(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := w.x.run(ctx, w.x.Binary, args...); err != nil {
			return fmt.Errorf("xdotool key: %w", err)
		}
		return nil
	})
	if err != nil {
		if cur, _ := w.x.seen.Current().(*xdotoolWindow); cur != nil && cur.id == w.id {
			w.x.seen.Clear()
		}
	}
	return err
}

// keysym renders an event as an xdotool key chord such as "ctrl+alt+f".
func keysym(ev KeyEvent) string {
	var parts []string
	if ev.Modifiers.Has(ModCtrl) {
		parts = append(parts, "ctrl")
	}
	if ev.Modifiers.Has(ModAlt) {
		parts = append(parts, "alt")
	}
	if ev.Modifiers.Has(ModShift) {
		parts = append(parts, "shift")
	}
	if ev.Modifiers.Has(ModMeta) {
		parts = append(parts, "super")
	}
	parts = append(parts, string(unicode.ToLower(ev.Code)))
	return strings.Join(parts, "+")
}
