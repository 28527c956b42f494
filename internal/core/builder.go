package core

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"

	"ibctl/config"
	"ibctl/internal/dispatch"
	"ibctl/internal/metrics"
	"ibctl/internal/retry"
	"ibctl/internal/task"
	"ibctl/internal/transport"
	"ibctl/internal/window"
	"ibctl/tunnel"
	"ibctl/util"
)

// Build constructs the Mode described by cfg.  cfg must already have
// passed Validate.
func Build(cfg *config.Config, logger *util.Logger) (Mode, error) {
	switch cfg.Mode {
	case config.ModeServe:
		return buildServe(cfg, logger)
	case config.ModeSend:
		return buildSend(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown mode %q", cfg.Mode)
	}
}

// ── mode builders ────────────────────────────────────────────────────

func buildServe(cfg *config.Config, logger *util.Logger) (*ServeMode, error) {
	allowed, err := config.ParseAllowed(cfg.AllowedFrom)
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	mode := &ServeMode{
		Address:      util.FormatAddr(cfg.BindAddress, cfg.Port),
		Allowed:      allowed,
		KeepOpen:     cfg.KeepOpen,
		Gateway:      cfg.Gateway,
		MaxLineBytes: cfg.MaxLineBytes,
		Metrics:      m,
		Logger:       logger,
	}

	mode.Dispatcher = dispatch.New(dispatch.Options{
		Windows:                 buildWindows(cfg, mode, logger),
		ReconnectDataTimeout:    cfg.ReconnectDataTimeout,
		ReconnectAccountTimeout: cfg.ReconnectAccountTimeout,
		Stop: &task.Stop{
			Grace:    cfg.StopGrace,
			Shutdown: mode.Shutdown,
		},
		EnableAPI: &task.EnableAPI{
			Command:     cfg.EnableAPICommand,
			Verify:      cfg.VerifyAPICommand,
			VerifyDelay: cfg.VerifyDelay,
		},
		Metrics: m,
	})
	return mode, nil
}

func buildSend(cfg *config.Config, logger *util.Logger) (*SendMode, error) {
	colored := !cfg.NoColor && !color.NoColor
	return &SendMode{
		Dialer: &transport.RetryDialer{
			Dialer:  buildDialer(cfg, logger),
			Backoff: retry.DialBackoff(cfg.Retries),
			Logger:  logger,
		},
		Address:      util.FormatAddr(cfg.Host, cfg.Port),
		Commands:     cfg.Commands,
		ReplyTimeout: cfg.ReplyTimeout,
		Color:        colored,
		Logger:       logger,
		Stdout:       color.Output,
		Stdin:        os.Stdin,
	}, nil
}

// ── shared helpers ───────────────────────────────────────────────────

// buildWindows returns the window provider for the reconnect commands,
// or nil when no window title is configured.  The provider's background
// watch is registered on mode.
func buildWindows(cfg *config.Config, mode *ServeMode, logger *util.Logger) window.Provider {
	if cfg.WindowTitle == "" {
		logger.Warn("no window title configured; RECONNECT commands will fail")
		return nil
	}
	x := window.NewXdotool(cfg.WindowTitle, cfg.WindowPoll, logger)
	if cfg.WindowWatch > 0 {
		mode.Watchers = append(mode.Watchers, func(ctx context.Context) error {
			return x.Watch(ctx, cfg.WindowWatch)
		})
	}
	return x
}

// buildDialer creates the right transport.Dialer for the given config.
func buildDialer(cfg *config.Config, logger *util.Logger) transport.Dialer {
	if cfg.TunnelEnabled {
		return transport.NewSSHDialer(&tunnel.SSHConfig{
			User:          cfg.TunnelUser,
			Host:          cfg.TunnelHost,
			Port:          cfg.TunnelPort,
			KeyPath:       cfg.SSHKeyPath,
			PromptPass:    cfg.SSHPassword,
			UseAgent:      cfg.UseSSHAgent,
			StrictHostKey: cfg.StrictHostKey,
			KnownHosts:    cfg.KnownHostsPath,
			ConnTimeout:   cfg.Timeout,
			KeepAlive:     cfg.SSHKeepAlive,
		}, logger)
	}
	return &transport.TCPDialer{Timeout: cfg.Timeout}
}
