// Package metrics provides lightweight, lock-free counters for tracking
// runtime statistics of an ibctl server.
//
// All methods are safe for concurrent use.  A nil *Collector is a
// valid no-op receiver, so callers never need to nil-check.
package metrics

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

// Collector tracks sessions, command outcomes and errors.
// A nil Collector is safe to use; all methods become no-ops.
type Collector struct {
	sessionsActive  atomic.Int64
	sessionsTotal   atomic.Int64
	clientsRejected atomic.Int64
	commandsTotal   atomic.Int64
	acks            atomic.Int64
	nacks           atomic.Int64
	invalidCommands atomic.Int64
	errorsTotal     atomic.Int64

	mu           sync.RWMutex
	startTime    time.Time
	lastCommand  time.Time
	lastError    time.Time
	lastErrorMsg string
}

// New creates a metrics collector with the start time set to now.
func New() *Collector {
	return &Collector{startTime: time.Now()}
}

// ── Session metrics ──────────────────────────────────────────────────

// SessionOpened increments both the active and total counters.
func (c *Collector) SessionOpened() {
	if c == nil {
		return
	}
	c.sessionsActive.Add(1)
	c.sessionsTotal.Add(1)
}

// SessionClosed decrements the active session counter.
func (c *Collector) SessionClosed() {
	if c == nil {
		return
	}
	c.sessionsActive.Add(-1)
}

// ActiveSessions returns the current number of open sessions.
func (c *Collector) ActiveSessions() int64 {
	if c == nil {
		return 0
	}
	return c.sessionsActive.Load()
}

// TotalSessions returns the lifetime session count.
func (c *Collector) TotalSessions() int64 {
	if c == nil {
		return 0
	}
	return c.sessionsTotal.Load()
}

// ClientRejected records a connection refused by the allow-list.
func (c *Collector) ClientRejected() {
	if c == nil {
		return
	}
	c.clientsRejected.Add(1)
}

// RejectedClients returns the number of refused connections.
func (c *Collector) RejectedClients() int64 {
	if c == nil {
		return 0
	}
	return c.clientsRejected.Load()
}

// ── Command metrics ──────────────────────────────────────────────────

// CommandReceived records one command line read from a channel.
func (c *Collector) CommandReceived() {
	if c == nil {
		return
	}
	c.commandsTotal.Add(1)
	c.mu.Lock()
	c.lastCommand = time.Now()
	c.mu.Unlock()
}

// Ack records an OK reply.
func (c *Collector) Ack() {
	if c == nil {
		return
	}
	c.acks.Add(1)
}

// Nack records an ERROR reply.
func (c *Collector) Nack() {
	if c == nil {
		return
	}
	c.nacks.Add(1)
}

// InvalidCommand records a line that matched no known command.
func (c *Collector) InvalidCommand() {
	if c == nil {
		return
	}
	c.invalidCommands.Add(1)
}

// Commands returns the total number of commands received.
func (c *Collector) Commands() int64 {
	if c == nil {
		return 0
	}
	return c.commandsTotal.Load()
}

// Acks returns the number of OK replies.
func (c *Collector) Acks() int64 {
	if c == nil {
		return 0
	}
	return c.acks.Load()
}

// Nacks returns the number of ERROR replies.
func (c *Collector) Nacks() int64 {
	if c == nil {
		return 0
	}
	return c.nacks.Load()
}

// InvalidCommands returns the number of unrecognised commands.
func (c *Collector) InvalidCommands() int64 {
	if c == nil {
		return 0
	}
	return c.invalidCommands.Load()
}

// ── Error metrics ────────────────────────────────────────────────────

// RecordError increments the error counter and stores the message.
func (c *Collector) RecordError(msg string) {
	if c == nil {
		return
	}
	c.errorsTotal.Add(1)
	c.mu.Lock()
	c.lastError = time.Now()
	c.lastErrorMsg = msg
	c.mu.Unlock()
}

// ErrorCount returns the total number of errors recorded.
func (c *Collector) ErrorCount() int64 {
	if c == nil {
		return 0
	}
	return c.errorsTotal.Load()
}

// ── Snapshot ─────────────────────────────────────────────────────────

// Snapshot is a point-in-time view of all metrics.
type Snapshot struct {
	Uptime           string `json:"uptime"`
	SessionsActive   int64  `json:"sessions_active"`
	SessionsTotal    int64  `json:"sessions_total"`
	ClientsRejected  int64  `json:"clients_rejected"`
	Commands         int64  `json:"commands"`
	Acks             int64  `json:"acks"`
	Nacks            int64  `json:"nacks"`
	InvalidCommands  int64  `json:"invalid_commands"`
	ErrorsTotal      int64  `json:"errors_total"`
	LastCommand      string `json:"last_command,omitempty"`
	LastError        string `json:"last_error,omitempty"`
	LastErrorMessage string `json:"last_error_message,omitempty"`
}

// Snapshot returns a copy of all current metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{
		Uptime:          time.Since(c.startTime).Truncate(time.Second).String(),
		SessionsActive:  c.sessionsActive.Load(),
		SessionsTotal:   c.sessionsTotal.Load(),
		ClientsRejected: c.clientsRejected.Load(),
		Commands:        c.commandsTotal.Load(),
		Acks:            c.acks.Load(),
		Nacks:           c.nacks.Load(),
		InvalidCommands: c.invalidCommands.Load(),
		ErrorsTotal:     c.errorsTotal.Load(),
	}
	if !c.lastCommand.IsZero() {
		s.LastCommand = c.lastCommand.Format(time.RFC3339)
	}
	if !c.lastError.IsZero() {
		s.LastError = c.lastError.Format(time.RFC3339)
		s.LastErrorMessage = c.lastErrorMsg
	}
	return s
}

// JSON returns the snapshot as an indented JSON string.
func (c *Collector) JSON() string {
	s := c.Snapshot()
	data, _ := json.MarshalIndent(s, "", "  ")
	return string(data)
}
