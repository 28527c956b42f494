package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"ibctl/config"
)

func newSendCommand(g *globals) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "send [command...]",
		Short: "Send commands to a command server",
		Long: `Connect to a command server, send each command and print the
replies.  Without arguments commands are read from stdin, one per
line.  EXIT is sent last unless it was given explicitly.

Exits non-zero when any command was answered with ERROR.`,
		Example: `  ibctl send STOP
  ibctl send -H 10.0.0.5 RECONNECTDATA RECONNECTACCOUNT
  ibctl send -T admin@bastion -H 10.0.0.5 ENABLEAPI
  echo STOP | ibctl send`,
	}

	o := newOverlay(cmd.Flags())
	o.str("host", "H", "Server host", func(c *config.Config) *string { return &c.Host })
	o.integer("port", "p", "Command port", func(c *config.Config) *int { return &c.Port })
	o.duration("timeout", "w", "Connection timeout", func(c *config.Config) *time.Duration { return &c.Timeout })
	o.duration("reply-timeout", "", "How long to wait for each reply", func(c *config.Config) *time.Duration { return &c.ReplyTimeout })
	o.integer("retries", "r", "Extra connection attempts", func(c *config.Config) *int { return &c.Retries })
	addTunnelFlags(o)
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Validate the configuration and exit")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := g.load(cmd, config.ModeSend, o)
		if err != nil {
			return err
		}
		cfg.Commands = args
		return run(cmd, cfg, dryRun)
	}
	return cmd
}
