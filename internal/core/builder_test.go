package core

import (
	"testing"
	"time"

	"ibctl/config"
	"ibctl/internal/transport"
	"ibctl/util"
)

func serveConfig() *config.Config {
	cfg := config.Default()
	cfg.Mode = config.ModeServe
	cfg.BindAddress = "127.0.0.1"
	cfg.Port = 0
	cfg.StopGrace = 10 * time.Millisecond
	return cfg
}

// TestBuild_Serve verifies that Build produces a ServeMode wired from
// the configuration.
func TestBuild_Serve(t *testing.T) {
	cfg := serveConfig()
	cfg.AllowedFrom = []string{"10.0.0.0/8", "192.168.1.5"}
	cfg.Gateway = true

	mode, err := Build(cfg, util.NewLogger(0))
	if err != nil {
		t.Fatal(err)
	}
	sm, ok := mode.(*ServeMode)
	if !ok {
		t.Fatalf("expected *ServeMode, got %T", mode)
	}
	if len(sm.Allowed) != 2 {
		t.Errorf("allowed = %v", sm.Allowed)
	}
	if !sm.Gateway {
		t.Error("gateway flag not carried over")
	}
	if sm.Dispatcher == nil || sm.Metrics == nil {
		t.Error("dispatcher and metrics must be set")
	}
}

func TestBuild_ServeBadAllowList(t *testing.T) {
	cfg := serveConfig()
	cfg.AllowedFrom = []string{"not-an-ip"}
	if _, err := Build(cfg, util.NewLogger(0)); err == nil {
		t.Fatal("expected error for bad allow-list")
	}
}

// TestBuild_Send verifies Build produces a SendMode with a retrying
// TCP dialer.
func TestBuild_Send(t *testing.T) {
	cfg := config.Default()
	cfg.Mode = config.ModeSend
	cfg.Commands = []string{"STOP"}

	mode, err := Build(cfg, util.NewLogger(0))
	if err != nil {
		t.Fatal(err)
	}
	sm, ok := mode.(*SendMode)
	if !ok {
		t.Fatalf("expected *SendMode, got %T", mode)
	}
	if sm.Address != "127.0.0.1:7462" {
		t.Errorf("address = %q", sm.Address)
	}
	rd, ok := sm.Dialer.(*transport.RetryDialer)
	if !ok {
		t.Fatalf("expected *RetryDialer, got %T", sm.Dialer)
	}
	if rd.Backoff.MaxAttempts != cfg.Retries+1 {
		t.Errorf("max attempts = %d", rd.Backoff.MaxAttempts)
	}
	if _, ok := rd.Dialer.(*transport.TCPDialer); !ok {
		t.Errorf("expected *TCPDialer, got %T", rd.Dialer)
	}
}

// TestBuild_SendTunnel verifies Build wires the SSH dialer for -T.
func TestBuild_SendTunnel(t *testing.T) {
	cfg := config.Default()
	cfg.Mode = config.ModeSend
	cfg.TunnelSpec = "ib@gw.example.com:2222"
	if err := cfg.ApplyTunnelSpec(); err != nil {
		t.Fatal(err)
	}

	mode, err := Build(cfg, util.NewLogger(0))
	if err != nil {
		t.Fatal(err)
	}
	rd := mode.(*SendMode).Dialer.(*transport.RetryDialer)
	if _, ok := rd.Dialer.(*transport.SSHDialer); !ok {
		t.Errorf("expected *SSHDialer, got %T", rd.Dialer)
	}
}

func TestBuild_UnknownMode(t *testing.T) {
	if _, err := Build(config.Default(), util.NewLogger(0)); err == nil {
		t.Fatal("expected error for empty mode")
	}
}

func TestBuildWindows(t *testing.T) {
	cfg := serveConfig()
	mode := &ServeMode{}
	if p := buildWindows(cfg, mode, util.NewLogger(0)); p != nil {
		t.Errorf("expected nil provider without a title, got %T", p)
	}
	if len(mode.Watchers) != 0 {
		t.Error("no watcher expected without a title")
	}

	cfg.WindowTitle = "IBKR Gateway"
	if p := buildWindows(cfg, mode, util.NewLogger(0)); p == nil {
		t.Error("expected a provider with a title")
	}
	if len(mode.Watchers) != 1 {
		t.Errorf("expected one window watcher, got %d", len(mode.Watchers))
	}

	cfg.WindowWatch = 0
	mode = &ServeMode{}
	buildWindows(cfg, mode, util.NewLogger(0))
	if len(mode.Watchers) != 0 {
		t.Error("window-watch 0 should disable the watcher")
	}
}
