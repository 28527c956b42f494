package core

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"

	"ibctl/internal/channel"
	"ibctl/internal/transport"
	"ibctl/util"
)

// ErrRejected is returned by SendMode when the server answered at
// least one command with ERROR.
var ErrRejected = errors.New("command rejected by server")

const exitCommand = "EXIT"

// SendMode connects to a command server, sends each command in turn
// and prints the server's replies.  Commands come from Commands, or
// one per line from Stdin when Commands is empty.
type SendMode struct {
	Dialer       transport.Dialer
	Address      string
	Commands     []string
	ReplyTimeout time.Duration
	Color        bool
	Logger       *util.Logger

	// Stdin/Stdout default to os.Stdin/os.Stdout when nil.
	Stdin  io.Reader
	Stdout io.Writer
}

func (m *SendMode) stdin() io.Reader {
	if m.Stdin != nil {
		return m.Stdin
	}
	return os.Stdin
}

func (m *SendMode) stdout() io.Writer {
	if m.Stdout != nil {
		return m.Stdout
	}
	return os.Stdout
}

// Run dials the server and drives the command exchange.
func (m *SendMode) Run(ctx context.Context) error {
	defer m.Dialer.Close()

	m.Logger.Verbose("connecting to %s", m.Address)
	conn, err := m.Dialer.Dial(ctx, "tcp", m.Address)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", m.Address, err)
	}
	defer conn.Close()

	// Unblock any pending read when the caller gives up.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	c := &client{
		conn:    conn,
		r:       bufio.NewReader(conn),
		out:     newPrinter(m.stdout(), m.Color),
		timeout: m.ReplyTimeout,
	}

	if err := c.awaitPrompt(); err != nil {
		return m.wrap(ctx, "waiting for server", err)
	}

	commands, err := m.commands()
	if err != nil {
		return err
	}

	rejected := 0
	sentExit := false
	for _, cmd := range commands {
		ok, err := c.send(cmd)
		if err != nil {
			return m.wrap(ctx, cmd, err)
		}
		if !ok {
			rejected++
		}
		if strings.EqualFold(cmd, exitCommand) {
			sentExit = true
			break
		}
	}

	if !sentExit {
		if _, err := c.send(exitCommand); err != nil {
			// The server may already be gone after STOP.
			m.Logger.Verbose("EXIT: %v", err)
		}
	}

	if rejected > 0 {
		return fmt.Errorf("%d of %d command(s): %w", rejected, len(commands), ErrRejected)
	}
	return nil
}

func (m *SendMode) commands() ([]string, error) {
	var out []string
	if len(m.Commands) > 0 {
		for _, c := range m.Commands {
			if c = strings.TrimSpace(c); c != "" {
				out = append(out, c)
			}
		}
		return out, nil
	}

	sc := bufio.NewScanner(m.stdin())
	for sc.Scan() {
		if c := strings.TrimSpace(sc.Text()); c != "" && !strings.HasPrefix(c, "#") {
			out = append(out, c)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading commands: %w", err)
	}
	return out, nil
}

func (m *SendMode) wrap(ctx context.Context, what string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("%s: %w", what, err)
}

// ── wire client ──────────────────────────────────────────────────────

type client struct {
	conn    net.Conn
	r       *bufio.Reader
	out     *printer
	timeout time.Duration
}

// send writes one command and prints every reply line up to and
// including its OK or ERROR.  Unless cmd is EXIT it then waits for the
// next prompt.  ok is false when the reply was ERROR.
func (c *client) send(cmd string) (ok bool, err error) {
	c.deadline()
	if _, err := io.WriteString(c.conn, cmd+"\n"); err != nil {
		return false, err
	}

	for {
		line, prompt, err := c.next()
		if err != nil {
			return false, err
		}
		if prompt {
			continue
		}
		c.out.line(line)

		switch {
		case isReply(line, channel.AckPrefix):
			ok = true
		case isReply(line, channel.NackPrefix):
			ok = false
		default:
			continue
		}
		break
	}

	if strings.EqualFold(cmd, exitCommand) {
		return ok, nil
	}
	return ok, c.awaitPrompt()
}

// awaitPrompt consumes lines until the prompt.  A server that rejects
// the connection sends ERROR and closes instead.
func (c *client) awaitPrompt() error {
	c.deadline()
	for {
		line, prompt, err := c.next()
		if err != nil {
			return err
		}
		if prompt {
			return nil
		}
		c.out.line(line)
		if isReply(line, channel.NackPrefix) {
			return fmt.Errorf("%w: %s", ErrRejected, strings.TrimPrefix(line, channel.NackPrefix+" "))
		}
	}
}

// next returns either the prompt or one reply line.
func (c *client) next() (line string, prompt bool, err error) {
	if b, err := c.r.Peek(len(channel.Prompt)); err == nil && string(b) == channel.Prompt {
		c.r.Discard(len(b)) //nolint:errcheck
		return "", true, nil
	}
	line, err = c.r.ReadString('\n')
	line = strings.TrimRight(line, "\r\n")
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return line, false, nil
		}
		return "", false, err
	}
	return line, false, nil
}

func (c *client) deadline() {
	if c.timeout > 0 {
		c.conn.SetDeadline(time.Now().Add(c.timeout)) //nolint:errcheck
	}
}

func isReply(line, prefix string) bool {
	return line == prefix || strings.HasPrefix(line, prefix+" ")
}

// ── output ───────────────────────────────────────────────────────────

type printer struct {
	w               io.Writer
	ok, fail, other *color.Color
}

func newPrinter(w io.Writer, colored bool) *printer {
	p := &printer{
		w:     w,
		ok:    color.New(color.FgGreen),
		fail:  color.New(color.FgRed, color.Bold),
		other: color.New(color.FgCyan),
	}
	if !colored {
		p.ok.DisableColor()
		p.fail.DisableColor()
		p.other.DisableColor()
	}
	return p
}

func (p *printer) line(s string) {
	switch {
	case isReply(s, channel.AckPrefix):
		p.ok.Fprintln(p.w, s) //nolint:errcheck
	case isReply(s, channel.NackPrefix):
		p.fail.Fprintln(p.w, s) //nolint:errcheck
	default:
		p.other.Fprintln(p.w, s) //nolint:errcheck
	}
}
