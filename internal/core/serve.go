package core

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sync"

	"golang.org/x/sync/errgroup"

	"ibctl/internal/channel"
	"ibctl/internal/dispatch"
	"ibctl/internal/metrics"
	"ibctl/internal/session"
	"ibctl/internal/task"
	"ibctl/util"
)

// MsgNotAllowed is sent to clients outside the allow-list before the
// connection is dropped.
const MsgNotAllowed = "Not allowed"

// ServeMode accepts command connections and runs a dispatcher session
// on each.  Connections are served one at a time unless KeepOpen is
// set, in which case each gets its own goroutine.
type ServeMode struct {
	Address      string
	Allowed      []netip.Prefix // empty means loopback only
	KeepOpen     bool
	Gateway      bool
	MaxLineBytes int

	Dispatcher *dispatch.Dispatcher
	Scheduler  task.Scheduler // shared by all sessions; nil creates one per Run
	Metrics    *metrics.Collector
	Logger     *util.Logger

	// Ready, when set, is called with the bound address once the
	// server is accepting.
	Ready func(net.Addr)

	// Watchers run alongside the accept loop until the server stops.
	Watchers []func(ctx context.Context) error

	mu       sync.Mutex
	open     map[*channel.Line]struct{}
	stopOnce sync.Once
	stop     chan struct{}
}

// Shutdown asks a running server to stop, as if its context had been
// cancelled.  It is what the STOP command eventually calls.
func (m *ServeMode) Shutdown() {
	stop := m.stopCh()
	m.stopOnce.Do(func() { close(stop) })
}

func (m *ServeMode) stopCh() chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stop == nil {
		m.stop = make(chan struct{})
	}
	return m.stop
}

// Run listens on Address until ctx is cancelled or Shutdown is called.
func (m *ServeMode) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", m.Address)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", m.Address, err)
	}
	defer ln.Close()

	if m.Scheduler == nil {
		ts := task.NewTimerScheduler(m.Logger)
		defer ts.Stop()
		m.Scheduler = ts
	}

	m.Logger.Info("listening for commands on %s", ln.Addr())
	if m.Ready != nil {
		m.Ready(ln.Addr())
	}

	g, gctx := errgroup.WithContext(ctx)
	stop := m.stopCh()

	// Tear everything down when the context ends or STOP fires.
	// Closing a channel unblocks its session's read.
	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-stop:
			m.Logger.Info("shutdown requested")
		}
		ln.Close()
		m.closeAll()
		return errShutdown
	})

	for _, w := range m.Watchers {
		w := w
		g.Go(func() error { return w(gctx) })
	}

	g.Go(func() error {
		for {
			conn, err := ln.Accept()
			if err != nil {
				if util.IsHarmless(err) {
					return nil
				}
				return fmt.Errorf("accept: %w", err)
			}

			if !m.allowed(conn.RemoteAddr()) {
				m.reject(conn)
				continue
			}

			if m.KeepOpen {
				g.Go(func() error {
					m.serveConn(gctx, conn)
					return nil
				})
				continue
			}
			m.serveConn(gctx, conn)
		}
	})

	err = g.Wait()
	m.Logger.Debug("server metrics: %s", m.Metrics.JSON())
	if errors.Is(err, errShutdown) {
		return nil
	}
	return err
}

// errShutdown stops the errgroup once the server is told to stop.
var errShutdown = errors.New("server shut down")

func (m *ServeMode) serveConn(ctx context.Context, conn net.Conn) {
	ch := channel.NewLine(conn, m.MaxLineBytes)
	if !m.track(ch) {
		ch.Close()
		return
	}
	defer m.untrack(ch)

	sess := session.New(ch, conn.RemoteAddr(), m.Gateway, task.Inline{}, m.Scheduler, m.Logger)
	sess.Logger.Verbose("connection accepted")

	if err := ch.WritePrompt(); err != nil {
		sess.Logger.Verbose("initial prompt: %v", err)
		ch.Close()
		return
	}
	if err := m.Dispatcher.Run(ctx, sess); err != nil && !util.IsHarmless(err) {
		sess.Logger.Warn("session ended: %v", err)
		return
	}
	sess.Logger.Verbose("connection closed")
}

// allowed reports whether addr may issue commands.
func (m *ServeMode) allowed(addr net.Addr) bool {
	ip, ok := netip.AddrFromSlice(util.RemoteIP(addr))
	if !ok {
		return false
	}
	ip = ip.Unmap()
	if len(m.Allowed) == 0 {
		return ip.IsLoopback()
	}
	for _, p := range m.Allowed {
		if p.Contains(ip) {
			return true
		}
	}
	return false
}

func (m *ServeMode) reject(conn net.Conn) {
	m.Metrics.ClientRejected()
	m.Logger.Warn("denied command connection from %s", conn.RemoteAddr())
	ch := channel.NewLine(conn, m.MaxLineBytes)
	ch.WriteNack(MsgNotAllowed) //nolint:errcheck
	ch.Close()
}

// ── open-channel tracking ────────────────────────────────────────────

// track registers ch so shutdown can close it.  It returns false once
// shutdown has begun.
func (m *ServeMode) track(ch *channel.Line) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.open == nil {
		m.open = make(map[*channel.Line]struct{})
	}
	if m.stop != nil {
		select {
		case <-m.stop:
			return false
		default:
		}
	}
	m.open[ch] = struct{}{}
	return true
}

func (m *ServeMode) untrack(ch *channel.Line) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.open, ch)
}

func (m *ServeMode) closeAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for ch := range m.open {
		ch.Close()
		delete(m.open, ch)
	}
}
