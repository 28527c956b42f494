// Package channel implements the line-oriented command channel: one
// command per input line, one OK/ERROR reply line per command, and a
// "= " prompt whenever the server is ready for the next command.
package channel

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	ibcerr "ibctl/internal/errors"
)

// Wire tokens.
const (
	AckPrefix  = "OK"
	NackPrefix = "ERROR"
	InfoPrefix = "INFO"
	Prompt     = "= "
)

// Replier is the write half of a channel, handed to workflows so they
// can report their outcome.
type Replier interface {
	WriteAck(msg string) error
	WriteNack(msg string) error
	WriteInfo(msg string) error
}

// Channel is a bidirectional, line-based command transport.
type Channel interface {
	Replier

	// ReadCommand blocks for the next line.  io.EOF signals the end of
	// the stream.
	ReadCommand(ctx context.Context) (string, error)

	// WritePrompt tells the peer the next command may be sent.
	WritePrompt() error

	// Close releases the transport.  Calling it more than once is safe.
	Close() error
}

// Line is a Channel over any io.ReadWriteCloser (usually a net.Conn).
// Writes are serialised so delayed workflow sub-steps can emit INFO
// lines while the loop is reading.
type Line struct {
	rwc     io.ReadWriteCloser
	r       *bufio.Reader
	maxLine int

	mu     sync.Mutex
	w      *bufio.Writer
	closed bool

	closeOnce sync.Once
	closeErr  error
}

// NewLine wraps rwc.  maxLine caps the length of a single command line
// in bytes; values <= 0 mean 4096.
func NewLine(rwc io.ReadWriteCloser, maxLine int) *Line {
	if maxLine <= 0 {
		maxLine = 4096
	}
	return &Line{
		rwc:     rwc,
		r:       bufio.NewReaderSize(rwc, maxLine),
		w:       bufio.NewWriter(rwc),
		maxLine: maxLine,
	}
}

// ReadCommand returns the next line with surrounding whitespace and
// the line terminator removed.  A final unterminated line is returned
// before io.EOF.
//
// A line longer than the limit is consumed up to its terminator and
// reported as ErrLineTooLong; the channel stays usable and the next
// call reads the following line.
func (l *Line) ReadCommand(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	line, isPrefix, err := l.r.ReadLine()
	if isPrefix {
		if derr := l.discardLine(); derr != nil && derr != io.EOF {
			return "", fmt.Errorf("read command: %w", derr)
		}
		return "", fmt.Errorf("read command: %w", ibcerr.ErrLineTooLong)
	}
	if err != nil {
		if err == io.EOF {
			return "", io.EOF
		}
		return "", fmt.Errorf("read command: %w", err)
	}
	return strings.TrimSpace(string(line)), nil
}

// discardLine drops the remainder of an over-long line.
func (l *Line) discardLine() error {
	for {
		_, isPrefix, err := l.r.ReadLine()
		if err != nil {
			return err
		}
		if !isPrefix {
			return nil
		}
	}
}

// WriteAck writes "OK" or "OK <msg>".
func (l *Line) WriteAck(msg string) error {
	if msg == "" {
		return l.writeLine(AckPrefix)
	}
	return l.writeLine(AckPrefix + " " + oneLine(msg))
}

// WriteNack writes "ERROR <msg>".
func (l *Line) WriteNack(msg string) error {
	return l.writeLine(NackPrefix + " " + oneLine(msg))
}

// WriteInfo writes "INFO <msg>".
func (l *Line) WriteInfo(msg string) error {
	return l.writeLine(InfoPrefix + " " + oneLine(msg))
}

// WritePrompt writes the prompt without a newline and flushes it.
func (l *Line) WritePrompt() error {
	return l.write(Prompt)
}

// Close closes the underlying transport exactly once.
func (l *Line) Close() error {
	l.closeOnce.Do(func() {
		l.mu.Lock()
		l.closed = true
		l.w.Flush() //nolint:errcheck
		l.mu.Unlock()
		l.closeErr = l.rwc.Close()
	})
	return l.closeErr
}

func (l *Line) writeLine(s string) error {
	return l.write(s + "\n")
}

func (l *Line) write(s string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ibcerr.ErrChannelClosed
	}
	if _, err := l.w.WriteString(s); err != nil {
		return fmt.Errorf("write reply: %w", err)
	}
	if err := l.w.Flush(); err != nil {
		return fmt.Errorf("write reply: %w", err)
	}
	return nil
}

var lineBreaks = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

// oneLine keeps a reply on a single wire line.
func oneLine(s string) string {
	return lineBreaks.Replace(s)
}
