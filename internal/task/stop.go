package task

import (
	"context"
	"time"
)

// Stop acknowledges a STOP command and shuts the process down after a
// grace period, long enough for the reply and prompt to reach the
// client.
type Stop struct {
	Grace    time.Duration
	Shutdown func()
}

// Run implements Workflow.
func (s *Stop) Run(_ context.Context, env Env) error {
	if err := env.Reply.WriteAck("Shutting down"); err != nil {
		return err
	}
	if s.Shutdown == nil {
		env.Logger.Warn("STOP: no shutdown hook, nothing to do")
		return nil
	}

	env.Logger.Info("STOP: shutting down in %v", s.Grace)
	env.Later.Schedule(s.Shutdown, s.Grace)
	return nil
}
