// Package task provides the execution contexts a session hands to its
// workflows and the workflows themselves.
//
// An [Executor] runs work now, in the caller's flow of control.  A
// [Scheduler] runs work later.  Workflows are run synchronously by the
// dispatcher; only their internal follow-up steps use the Scheduler.
package task

import (
	"context"
	"time"

	"ibctl/internal/channel"
	"ibctl/util"
)

// Executor runs a unit of work immediately.  Execute returns only after
// fn has returned, and a panic in fn propagates to the caller.
type Executor interface {
	Execute(fn func())
}

// Inline is the Executor that calls fn on the current goroutine.
type Inline struct{}

// Execute calls fn.
func (Inline) Execute(fn func()) { fn() }

// Scheduler runs a unit of work after a delay.
type Scheduler interface {
	// Schedule arranges for fn to run once after delay.  The returned
	// function cancels it if it has not started yet.
	Schedule(fn func(), delay time.Duration) (cancel func())
}

// Env is what a workflow may touch while it runs.
type Env struct {
	Reply  channel.Replier
	Exec   Executor
	Later  Scheduler
	Logger *util.Logger
}

// Workflow is a multi-step job triggered by one command.  It reports
// its outcome through env.Reply, or by returning an error which the
// caller turns into a nack.
type Workflow interface {
	Run(ctx context.Context, env Env) error
}

// WorkflowFunc adapts a function to Workflow.
type WorkflowFunc func(ctx context.Context, env Env) error

// Run calls f.
func (f WorkflowFunc) Run(ctx context.Context, env Env) error { return f(ctx, env) }
