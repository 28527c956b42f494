// Package core is the orchestration layer.  It turns a Config into a
// runnable mode: the command server or the command client.
//
// Architecture layers (bottom → top):
//
//	channel, window, task  →  session  →  dispatch  →  core  →  cmd (CLI)
package core

import "context"

// Mode is a complete operational mode of ibctl (serve or send).  Each
// mode owns its lifecycle from the first socket to teardown.
type Mode interface {
	Run(ctx context.Context) error
}
