package task

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"time"

	ibcerr "ibctl/internal/errors"
)

const enableAPICommand = "ENABLEAPI"

// shellFunc runs a command line and returns its combined output.
type shellFunc func(ctx context.Context, command string) ([]byte, error)

func runShell(ctx context.Context, command string) ([]byte, error) {
	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.CommandContext(ctx, "cmd.exe", "/C", command)
	} else {
		cmd = exec.CommandContext(ctx, "/bin/sh", "-c", command)
	}
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.Bytes(), err
}

// EnableAPI turns on the host application's API socket by running a
// configured hook command.  When Verify is set it is run VerifyDelay
// later to check that the setting took; its result is only logged.
type EnableAPI struct {
	Command     string
	Verify      string
	VerifyDelay time.Duration
	Timeout     time.Duration // per hook run; 0 means one minute

	shell shellFunc
}

// Run implements Workflow.
func (e *EnableAPI) Run(ctx context.Context, env Env) error {
	if strings.TrimSpace(e.Command) == "" {
		return ibcerr.Command(enableAPICommand, "ENABLEAPI is not configured", nil)
	}

	env.Logger.Verbose("ENABLEAPI: running %q", e.Command)
	out, err := e.exec(ctx, e.Command)
	if err != nil {
		env.Logger.Debug("ENABLEAPI output: %s", out)
		return ibcerr.Command(enableAPICommand, "ENABLEAPI failed", err)
	}
	if err := env.Reply.WriteAck("configured"); err != nil {
		return err
	}

	if e.Verify != "" {
		env.Later.Schedule(func() {
			vctx := context.Background()
			if _, err := e.exec(vctx, e.Verify); err != nil {
				env.Logger.Warn("ENABLEAPI: verification failed: %v", err)
				return
			}
			env.Logger.Info("ENABLEAPI: verified")
		}, e.VerifyDelay)
	}
	return nil
}

func (e *EnableAPI) exec(ctx context.Context, command string) ([]byte, error) {
	timeout := e.Timeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	shell := e.shell
	if shell == nil {
		shell = runShell
	}
	out, err := shell(ctx, command)
	if err != nil {
		return out, fmt.Errorf("hook %q: %w", command, err)
	}
	return out, nil
}
