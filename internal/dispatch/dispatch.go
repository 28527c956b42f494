// Package dispatch implements the command session loop: read one line,
// route it to a handler, write exactly one ack or nack, prompt, repeat.
//
// The loop is strictly sequential per session.  Handlers run on the
// loop's goroutine, so at most one command is in flight and replies are
// totally ordered with respect to requests.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime/debug"
	"strings"
	"time"

	ibcerr "ibctl/internal/errors"
	"ibctl/internal/metrics"
	"ibctl/internal/session"
	"ibctl/internal/task"
	"ibctl/internal/window"
	"ibctl/util"
)

// Command keywords.
const (
	CmdExit             = "EXIT"
	CmdStop             = "STOP"
	CmdEnableAPI        = "ENABLEAPI"
	CmdReconnectData    = "RECONNECTDATA"
	CmdReconnectAccount = "RECONNECTACCOUNT"
)

// Reply texts.
const (
	MsgGoodbye           = "Goodbye"
	MsgInvalid           = "Command invalid"
	MsgGatewayEnableAPI  = "ENABLEAPI is not valid for the IB Gateway"
	MsgWindowUnavailable = "Main window not available"
	MsgInjectionFailed   = "Key injection failed"
	MsgCommandFailed     = "Command failed"
)

// Options wires a Dispatcher to its collaborators.
type Options struct {
	// Windows hands out the managed window for the reconnect commands.
	Windows window.Provider

	// Window waits per reconnect command.  <= 0 waits until the
	// session context ends.
	ReconnectDataTimeout    time.Duration
	ReconnectAccountTimeout time.Duration

	Stop      task.Workflow
	EnableAPI task.Workflow

	Metrics *metrics.Collector

	// Now stamps injected key events; nil means time.Now.
	Now func() time.Time
}

// handler is one routing variant.  terminal ends the loop after the
// reply, without a prompt.
type handler struct {
	terminal bool
	run      func(ctx context.Context, c *cycle) error
}

// cycle is the state of one read-route-reply iteration.
type cycle struct {
	sess    *session.Session
	line    string
	keyword string
	reply   *guard
	log     *util.Logger
}

// Dispatcher routes commands for any number of sessions.  It holds no
// per-session state and is safe to share.
type Dispatcher struct {
	opts    Options
	routes  map[string]handler
	invalid handler
}

// New builds a Dispatcher with the standard command table.
func New(opts Options) *Dispatcher {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	d := &Dispatcher{opts: opts}
	d.routes = map[string]handler{
		CmdExit:      {terminal: true, run: d.exit},
		CmdStop:      {run: d.stop},
		CmdEnableAPI: {run: d.enableAPI},
		CmdReconnectData: {run: func(ctx context.Context, c *cycle) error {
			return d.reconnect(ctx, c, window.ReconnectData, d.opts.ReconnectDataTimeout)
		}},
		CmdReconnectAccount: {run: func(ctx context.Context, c *cycle) error {
			return d.reconnect(ctx, c, window.ReconnectAccount, d.opts.ReconnectAccountTimeout)
		}},
	}
	d.invalid = handler{run: d.reject}
	return d
}

// Run drives sess until end-of-stream, EXIT, a channel failure, or
// ctx ending.  The channel is closed exactly once before Run returns.
// Only channel failures are returned; command failures are nacked.
func (d *Dispatcher) Run(ctx context.Context, sess *session.Session) (err error) {
	log := sess.Logger
	defer func() {
		if cerr := sess.Channel.Close(); cerr != nil && !util.IsHarmless(cerr) {
			log.Debug("close channel: %v", cerr)
		}
		d.opts.Metrics.SessionClosed()
	}()
	d.opts.Metrics.SessionOpened()

	for {
		line, rerr := sess.Channel.ReadCommand(ctx)
		tooLong := errors.Is(rerr, ibcerr.ErrLineTooLong)
		if tooLong {
			line, rerr = fmt.Sprintf("<line longer than the limit: %v>", rerr), nil
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) || ctx.Err() != nil {
				log.Verbose("session ended")
				return nil
			}
			d.opts.Metrics.RecordError(rerr.Error())
			return rerr
		}
		d.opts.Metrics.CommandReceived()

		// Keywords are ASCII, so upper-casing once and looking up the
		// result is the case-insensitive comparison.  Like Java's
		// equalsIgnoreCase it also folds a few non-ASCII letters (the
		// dotless i, the long s) onto their ASCII capitals.
		keyword := strings.ToUpper(line)
		h, ok := d.routes[keyword]
		if !ok || tooLong {
			h = d.invalid
		}

		c := &cycle{
			sess:    sess,
			line:    line,
			keyword: keyword,
			log:     log,
		}
		c.reply = newGuard(sess.Channel, keyword, log)

		if werr := d.serve(ctx, c, h); werr != nil {
			d.opts.Metrics.RecordError(werr.Error())
			return werr
		}
		if h.terminal {
			return nil
		}
		if perr := sess.Channel.WritePrompt(); perr != nil {
			return perr
		}
	}
}

// serve runs one handler and settles the cycle's reply.  It returns a
// channel write failure, which ends the session.
func (d *Dispatcher) serve(ctx context.Context, c *cycle, h handler) error {
	start := time.Now()
	err := d.invoke(ctx, c, h)

	if !c.reply.Replied() {
		if err != nil {
			c.reply.WriteNack(ibcerr.NackMessage(err, MsgCommandFailed)) //nolint:errcheck
		} else {
			c.reply.WriteAck("") //nolint:errcheck
		}
	}
	if err != nil {
		c.log.Warn("%s: %v", c.keyword, err)
	}
	ok, werr := c.reply.Seal()
	if ok {
		d.opts.Metrics.Ack()
	} else {
		d.opts.Metrics.Nack()
	}

	c.log.Debug("%s handled in %v", c.keyword, time.Since(start).Truncate(time.Microsecond))
	return werr
}

// invoke calls the handler, turning a panic into a command failure.
func (d *Dispatcher) invoke(ctx context.Context, c *cycle, h handler) (err error) {
	defer func() {
		if p := recover(); p != nil {
			c.log.Error("%s: panic: %v", c.keyword, p)
			c.log.Debug("%s", debug.Stack())
			err = ibcerr.Command(c.keyword, MsgCommandFailed, fmt.Errorf("panic: %v", p))
		}
	}()
	return h.run(ctx, c)
}

// ── Handlers ─────────────────────────────────────────────────────────

func (d *Dispatcher) exit(_ context.Context, c *cycle) error {
	return c.reply.WriteAck(MsgGoodbye)
}

func (d *Dispatcher) stop(ctx context.Context, c *cycle) error {
	return d.runWorkflow(ctx, c, d.opts.Stop)
}

func (d *Dispatcher) enableAPI(ctx context.Context, c *cycle) error {
	if c.sess.Gateway {
		return c.reply.WriteNack(MsgGatewayEnableAPI)
	}
	return d.runWorkflow(ctx, c, d.opts.EnableAPI)
}

func (d *Dispatcher) reject(_ context.Context, c *cycle) error {
	c.log.Error("invalid command received: %s", c.line)
	d.opts.Metrics.InvalidCommand()
	return c.reply.WriteNack(MsgInvalid)
}

// msgNotConfigured follows the keyword of a workflow that was not wired.
const msgNotConfigured = "is not configured"

// runWorkflow runs wf on the session's immediate executor.  The loop
// does not continue until wf has returned.
func (d *Dispatcher) runWorkflow(ctx context.Context, c *cycle, wf task.Workflow) error {
	if wf == nil {
		return ibcerr.Command(c.keyword, c.keyword+" "+msgNotConfigured, nil)
	}
	env := task.Env{
		Reply:  c.reply,
		Exec:   c.sess.Exec,
		Later:  c.sess.Later,
		Logger: c.log,
	}

	var err error
	c.sess.Exec.Execute(func() {
		err = wf.Run(ctx, env)
	})
	return err
}

// reconnect waits for the managed window and injects sc.  The ack
// confirms submission of the events, not their effect.
func (d *Dispatcher) reconnect(ctx context.Context, c *cycle, sc window.Shortcut, timeout time.Duration) error {
	if d.opts.Windows == nil {
		return ibcerr.Command(c.keyword, MsgWindowUnavailable, ibcerr.ErrWindowUnavailable)
	}

	h, err := d.opts.Windows.Window(ctx, timeout)
	if err != nil {
		return ibcerr.Command(c.keyword, MsgWindowUnavailable, err)
	}
	if err := h.Dispatch(sc.Events(d.opts.Now)...); err != nil {
		return ibcerr.Command(c.keyword, MsgInjectionFailed, err)
	}

	c.log.Verbose("%s: sent %c with ctrl+alt", c.keyword, sc.Code)
	return c.reply.WriteAck("")
}
