// Package cmd wires up the CLI and dispatches to the serve and send
// modes in internal/core.
package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"ibctl/config"
	"ibctl/internal/core"
	"ibctl/util"
)

// version is overridable at link time:
//
//	go build -ldflags "-X ibctl/cmd.version=2.0.0"
var version = "1.0.0" //nolint:gochecknoglobals

// globals holds the persistent flags shared by every subcommand.
type globals struct {
	configPath string
	envFile    string
	verbose    int
	quiet      bool
	noColor    bool
}

// Execute parses args and runs the selected subcommand.
func Execute(ctx context.Context, args []string) error {
	root := newRootCommand()
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func newRootCommand() *cobra.Command {
	g := &globals{}

	root := &cobra.Command{
		Use:   "ibctl",
		Short: "Remote command channel for a trading gateway window",
		Long: `ibctl runs a small line-based command server next to a desktop
trading application and lets scripts stop it, enable its API or
trigger reconnects from anywhere on the network.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetVersionTemplate("ibctl {{.Version}}\n")

	pf := root.PersistentFlags()
	pf.StringVarP(&g.configPath, "config", "C", "", "YAML config file")
	pf.StringVar(&g.envFile, "env-file", "", "Read IBCTL_* variables from this .env file")
	pf.CountVarP(&g.verbose, "verbose", "v", "Increase verbosity (repeatable)")
	pf.BoolVarP(&g.quiet, "quiet", "q", false, "Only print errors")
	pf.BoolVar(&g.noColor, "no-color", false, "Disable colored output")

	root.AddCommand(newServeCommand(g))
	root.AddCommand(newSendCommand(g))
	root.AddCommand(newVersionCommand())
	return root
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "ibctl %s\n", version)
		},
	}
}

// ── config assembly ──────────────────────────────────────────────────

// load builds the effective Config for a subcommand: defaults, the YAML
// file, the environment and finally the flags the user set.
func (g *globals) load(cmd *cobra.Command, mode config.Mode, o *overlay) (*config.Config, error) {
	cfg, err := config.Load(g.configPath, g.envFile)
	if err != nil {
		return nil, err
	}
	cfg.Mode = mode
	o.onto(cfg)

	flags := cmd.Flags()
	if flags.Changed("verbose") {
		cfg.Verbose += g.verbose
	}
	if g.quiet {
		cfg.Verbose = 0
	}
	if flags.Changed("no-color") {
		cfg.NoColor = g.noColor
	}

	if err := cfg.ApplyTunnelSpec(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// run builds the mode and either describes it (dry run) or runs it.
func run(cmd *cobra.Command, cfg *config.Config, dryRun bool) error {
	logger := util.NewLogger(cfg.Verbose)
	out := cmd.OutOrStdout()

	mode, err := core.Build(cfg, logger)
	if err != nil {
		return err
	}
	if send, ok := mode.(*core.SendMode); ok {
		send.Stdin = cmd.InOrStdin()
		// Keep the color-aware stdout unless output was redirected.
		if out != os.Stdout {
			send.Stdout = out
		}
	}
	if dryRun {
		fmt.Fprintln(out, describe(cfg))
		return nil
	}
	return mode.Run(cmd.Context())
}

func describe(cfg *config.Config) string {
	addr := util.FormatAddr(cfg.BindAddress, cfg.Port)
	switch cfg.Mode {
	case config.ModeServe:
		return fmt.Sprintf("serve on %s allowing %s", addr, strings.Join(cfg.AllowedFrom, ","))
	case config.ModeSend:
		addr = util.FormatAddr(cfg.Host, cfg.Port)
		s := fmt.Sprintf("send %d command(s) to %s", len(cfg.Commands), addr)
		if cfg.TunnelEnabled {
			s += fmt.Sprintf(" via %s", util.FormatAddr(cfg.TunnelHost, cfg.TunnelPort))
		}
		return s
	}
	return string(cfg.Mode)
}
