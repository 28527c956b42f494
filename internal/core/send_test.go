package core

import (
	"bytes"
	"context"
	"errors"
	"net/netip"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"ibctl/internal/dispatch"
	"ibctl/internal/retry"
	"ibctl/internal/task"
	"ibctl/internal/transport"
	"ibctl/internal/window"
	"ibctl/util"
)

func newSend(addr string, out *bytes.Buffer, commands ...string) *SendMode {
	return &SendMode{
		Dialer:       &transport.TCPDialer{Timeout: 2 * time.Second},
		Address:      addr,
		Commands:     commands,
		ReplyTimeout: 3 * time.Second,
		Logger:       util.NewLogger(0),
		Stdout:       out,
	}
}

func startTestServer(t *testing.T, opts dispatch.Options) string {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	addr, _ := startServe(t, ctx, &ServeMode{KeepOpen: true, Dispatcher: dispatch.New(opts)})
	return addr
}

// TestSendMode_Commands runs a client against a real server.
func TestSendMode_Commands(t *testing.T) {
	reg := window.NewRegistry()
	reg.Set(window.HandleFunc(func(...window.KeyEvent) error { return nil }))
	addr := startTestServer(t, dispatch.Options{Windows: reg})

	var out bytes.Buffer
	err := newSend(addr, &out, "RECONNECTDATA", "reconnectaccount").Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got, want := out.String(), "OK\nOK\nOK Goodbye\n"; got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

// TestSendMode_Rejected verifies ERROR replies fail the run but every
// command is still sent.
func TestSendMode_Rejected(t *testing.T) {
	addr := startTestServer(t, dispatch.Options{})

	var out bytes.Buffer
	err := newSend(addr, &out, "bogus", "ENABLEAPI").Run(context.Background())
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("err = %v, want ErrRejected", err)
	}
	want := "ERROR Command invalid\nERROR ENABLEAPI is not configured\nOK Goodbye\n"
	if out.String() != want {
		t.Errorf("output = %q, want %q", out.String(), want)
	}
	if !strings.Contains(err.Error(), "2 of 2") {
		t.Errorf("error should count failures: %v", err)
	}
}

// TestSendMode_ExplicitExit verifies no second EXIT is sent and
// commands after EXIT are dropped.
func TestSendMode_ExplicitExit(t *testing.T) {
	addr := startTestServer(t, dispatch.Options{})

	var out bytes.Buffer
	err := newSend(addr, &out, "exit", "STOP").Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.String() != "OK Goodbye\n" {
		t.Errorf("output = %q", out.String())
	}
}

// TestSendMode_Stdin verifies commands are read one per line.
func TestSendMode_Stdin(t *testing.T) {
	var verified atomic.Bool
	wf := task.WorkflowFunc(func(_ context.Context, env task.Env) error {
		env.Reply.WriteInfo("running hook") //nolint:errcheck
		verified.Store(true)
		return env.Reply.WriteAck("configured")
	})
	addr := startTestServer(t, dispatch.Options{EnableAPI: wf})

	var out bytes.Buffer
	mode := newSend(addr, &out)
	mode.Stdin = strings.NewReader("# enable the API\n\n  enableapi  \n")

	if err := mode.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !verified.Load() {
		t.Error("workflow did not run")
	}
	want := "INFO running hook\nOK configured\nOK Goodbye\n"
	if out.String() != want {
		t.Errorf("output = %q, want %q", out.String(), want)
	}
}

// TestSendMode_NotAllowed verifies an allow-list rejection surfaces.
func TestSendMode_NotAllowed(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	addr, _ := startServe(t, ctx, &ServeMode{
		Allowed:    []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")},
		Dispatcher: dispatch.New(dispatch.Options{}),
	})

	var out bytes.Buffer
	err := newSend(addr, &out, "STOP").Run(context.Background())
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("err = %v, want ErrRejected", err)
	}
	if out.String() != "ERROR Not allowed\n" {
		t.Errorf("output = %q", out.String())
	}
}

// TestSendMode_NoServer verifies a dial failure after retries.
func TestSendMode_NoServer(t *testing.T) {
	port, err := util.FindFreePort()
	if err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	mode := newSend(util.FormatAddr("127.0.0.1", port), &out, "STOP")
	mode.Dialer = &transport.RetryDialer{
		Dialer:  mode.Dialer,
		Backoff: &retry.Backoff{InitialDelay: time.Millisecond, MaxAttempts: 2},
		Logger:  util.NewLogger(0),
	}

	if err := mode.Run(context.Background()); err == nil {
		t.Fatal("expected dial error")
	}
	if out.Len() != 0 {
		t.Errorf("unexpected output %q", out.String())
	}
}

func TestIsReply(t *testing.T) {
	tests := []struct {
		line, prefix string
		want         bool
	}{
		{"OK", "OK", true},
		{"OK Goodbye", "OK", true},
		{"OKAY", "OK", false},
		{"ERROR Command invalid", "ERROR", true},
		{"INFO OK", "OK", false},
	}
	for _, tt := range tests {
		if got := isReply(tt.line, tt.prefix); got != tt.want {
			t.Errorf("isReply(%q, %q) = %v, want %v", tt.line, tt.prefix, got, tt.want)
		}
	}
}
