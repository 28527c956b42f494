package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"ibctl/config"
)

func newServeCommand(g *globals) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the command server",
		Long: `Listen for command clients and act on STOP, ENABLEAPI,
RECONNECTDATA, RECONNECTACCOUNT and EXIT.  Only clients on the
allow-list get a prompt; everyone else is told "ERROR Not allowed".`,
		Args: cobra.NoArgs,
	}

	o := newOverlay(cmd.Flags())
	o.str("bind", "b", "Address to listen on", func(c *config.Config) *string { return &c.BindAddress })
	o.integer("port", "p", "Command port", func(c *config.Config) *int { return &c.Port })
	o.strings("allow", "a", "Allowed client address or CIDR (repeatable)", func(c *config.Config) *[]string { return &c.AllowedFrom })
	o.boolean("keep-open", "k", "Serve clients concurrently", func(c *config.Config) *bool { return &c.KeepOpen })
	o.boolean("gateway", "g", "Managed application is the gateway (ENABLEAPI is refused)", func(c *config.Config) *bool { return &c.Gateway })
	o.integer("max-line-bytes", "", "Longest accepted command line", func(c *config.Config) *int { return &c.MaxLineBytes })
	o.duration("stop-grace", "", "Delay between acknowledging STOP and shutting down", func(c *config.Config) *time.Duration { return &c.StopGrace })
	o.str("enable-api-command", "", "Shell command run by ENABLEAPI", func(c *config.Config) *string { return &c.EnableAPICommand })
	o.str("verify-api-command", "", "Shell command run after ENABLEAPI to verify it", func(c *config.Config) *string { return &c.VerifyAPICommand })
	o.duration("verify-delay", "", "Delay before the verify command runs", func(c *config.Config) *time.Duration { return &c.VerifyDelay })
	addWindowFlags(o)
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Validate the configuration and exit")

	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		cfg, err := g.load(cmd, config.ModeServe, o)
		if err != nil {
			return err
		}
		return run(cmd, cfg, dryRun)
	}
	return cmd
}
