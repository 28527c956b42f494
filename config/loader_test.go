package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadFile_Overlay(t *testing.T) {
	path := writeFile(t, "ibctl.yaml", `
port: 7500
gateway: true
allowed_from: [10.0.0.0/8, 127.0.0.1]
reconnect_data_timeout: 250ms
reconnect_account_timeout: 30s
enable_api_command: /usr/local/bin/enable-api
`)
	cfg := Default()
	if err := LoadFile(cfg, path); err != nil {
		t.Fatal(err)
	}

	if cfg.Port != 7500 {
		t.Errorf("Port = %d, want 7500", cfg.Port)
	}
	if !cfg.Gateway {
		t.Error("Gateway should be true")
	}
	if len(cfg.AllowedFrom) != 2 || cfg.AllowedFrom[0] != "10.0.0.0/8" {
		t.Errorf("AllowedFrom = %v", cfg.AllowedFrom)
	}
	if cfg.ReconnectDataTimeout != 250*time.Millisecond {
		t.Errorf("ReconnectDataTimeout = %v", cfg.ReconnectDataTimeout)
	}
	if cfg.ReconnectAccountTimeout != 30*time.Second {
		t.Errorf("ReconnectAccountTimeout = %v", cfg.ReconnectAccountTimeout)
	}
	if cfg.EnableAPICommand != "/usr/local/bin/enable-api" {
		t.Errorf("EnableAPICommand = %q", cfg.EnableAPICommand)
	}
	// Untouched keys keep their defaults.
	if cfg.StopGrace != DefaultStopGrace {
		t.Errorf("StopGrace = %v, want default", cfg.StopGrace)
	}
}

func TestLoadFile_UnknownKey(t *testing.T) {
	path := writeFile(t, "bad.yaml", "prot: 7500\n")
	if err := LoadFile(Default(), path); err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestLoadFile_EmptyAndComments(t *testing.T) {
	for name, content := range map[string]string{
		"empty.yaml":    "",
		"comments.yaml": "# nothing here\n",
	} {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			if err := LoadFile(cfg, writeFile(t, name, content)); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cfg.Port != DefaultPort {
				t.Errorf("Port = %d, want default", cfg.Port)
			}
		})
	}
}

func TestLoadFile_Missing(t *testing.T) {
	if err := LoadFile(Default(), filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadEnv_Overrides(t *testing.T) {
	t.Setenv("IBCTL_PORT", "7777")
	t.Setenv("IBCTL_GATEWAY", "true")
	t.Setenv("IBCTL_ALLOWED_FROM", "192.168.1.0/24,127.0.0.1")
	t.Setenv("IBCTL_RECONNECT_DATA_TIMEOUT", "2s")
	t.Setenv("IBCTL_TUNNEL", "admin@bastion:2222")
	t.Setenv("IBCTL_VERBOSE", "3")

	cfg := Default()
	if err := LoadEnv(cfg, ""); err != nil {
		t.Fatal(err)
	}

	if cfg.Port != 7777 {
		t.Errorf("Port = %d", cfg.Port)
	}
	if !cfg.Gateway {
		t.Error("Gateway should be true")
	}
	if len(cfg.AllowedFrom) != 2 || cfg.AllowedFrom[1] != "127.0.0.1" {
		t.Errorf("AllowedFrom = %v", cfg.AllowedFrom)
	}
	if cfg.ReconnectDataTimeout != 2*time.Second {
		t.Errorf("ReconnectDataTimeout = %v", cfg.ReconnectDataTimeout)
	}
	if cfg.TunnelSpec != "admin@bastion:2222" {
		t.Errorf("TunnelSpec = %q", cfg.TunnelSpec)
	}
	if cfg.Verbose != 3 {
		t.Errorf("Verbose = %d, want 3", cfg.Verbose)
	}
}

func TestLoadEnv_NoOverrideWhenUnset(t *testing.T) {
	cfg := Default()
	cfg.Host = "original"
	if err := LoadEnv(cfg, ""); err != nil {
		t.Fatal(err)
	}
	if cfg.Host != "original" {
		t.Errorf("Host was overridden: %q", cfg.Host)
	}
	if cfg.Port != DefaultPort {
		t.Errorf("Port was overridden: %d", cfg.Port)
	}
}

func TestLoadEnv_InvalidInt(t *testing.T) {
	t.Setenv("IBCTL_PORT", "not-a-number")
	if err := LoadEnv(Default(), ""); err == nil {
		t.Fatal("expected error for invalid int")
	}
}

func TestLoadEnv_DotEnvFile(t *testing.T) {
	path := writeFile(t, "test.env", "IBCTL_WINDOW_TITLE=Trader Workstation\nIBCTL_HOST=from-dotenv\n")
	t.Setenv("IBCTL_HOST", "from-env")

	cfg := Default()
	if err := LoadEnv(cfg, path); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("IBCTL_WINDOW_TITLE") })

	if cfg.WindowTitle != "Trader Workstation" {
		t.Errorf("WindowTitle = %q", cfg.WindowTitle)
	}
	// The real environment wins over the .env file.
	if cfg.Host != "from-env" {
		t.Errorf("Host = %q, want from-env", cfg.Host)
	}
}

func TestLoad_Precedence(t *testing.T) {
	path := writeFile(t, "ibctl.yaml", "port: 7500\nwindow_title: FromFile\n")
	t.Setenv("IBCTL_PORT", "7600")

	cfg, err := Load(path, "")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != 7600 {
		t.Errorf("env should beat file: Port = %d", cfg.Port)
	}
	if cfg.WindowTitle != "FromFile" {
		t.Errorf("WindowTitle = %q", cfg.WindowTitle)
	}
}
