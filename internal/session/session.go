// Package session represents a single command connection: the channel
// it speaks over, its fixed mode, and the execution contexts its
// commands may use.
//
// Sessions decouple the dispatcher from concrete transports; the
// dispatcher never sees a net.Conn, only the session's Channel.
package session

import (
	"net"

	"github.com/google/uuid"

	"ibctl/internal/channel"
	"ibctl/internal/task"
	"ibctl/util"
)

// Session encapsulates the runtime context for a single connection.
// Gateway is fixed at construction.
type Session struct {
	ID      string
	Channel channel.Channel
	Gateway bool
	Exec    task.Executor
	Later   task.Scheduler
	Remote  net.Addr
	Logger  *util.Logger
}

// New creates a Session bound to ch.  The logger is tagged with the
// session id and, when known, the remote address.
func New(ch channel.Channel, remote net.Addr, gateway bool, exec task.Executor, later task.Scheduler, logger *util.Logger) *Session {
	id := uuid.NewString()
	log := logger.With("session", id[:8])
	if remote != nil {
		log = log.With("remote", remote.String())
	}
	if exec == nil {
		exec = task.Inline{}
	}
	return &Session{
		ID:      id,
		Channel: ch,
		Gateway: gateway,
		Exec:    exec,
		Later:   later,
		Remote:  remote,
		Logger:  log,
	}
}
