package cmd

import (
	"time"

	flag "github.com/spf13/pflag"

	"ibctl/config"
)

// overlay registers flags whose defaults come from config.Default and
// copies only the flags the user actually set onto a loaded Config.
// That keeps the precedence flags > env > file > defaults intact.
type overlay struct {
	fs    *flag.FlagSet
	apply map[string]func(*config.Config)
}

func newOverlay(fs *flag.FlagSet) *overlay {
	return &overlay{fs: fs, apply: make(map[string]func(*config.Config))}
}

var defaults = config.Default() //nolint:gochecknoglobals

func (o *overlay) str(name, short, usage string, field func(*config.Config) *string) {
	v := new(string)
	o.fs.StringVarP(v, name, short, *field(defaults), usage)
	o.apply[name] = func(c *config.Config) { *field(c) = *v }
}

func (o *overlay) integer(name, short, usage string, field func(*config.Config) *int) {
	v := new(int)
	o.fs.IntVarP(v, name, short, *field(defaults), usage)
	o.apply[name] = func(c *config.Config) { *field(c) = *v }
}

func (o *overlay) boolean(name, short, usage string, field func(*config.Config) *bool) {
	v := new(bool)
	o.fs.BoolVarP(v, name, short, *field(defaults), usage)
	o.apply[name] = func(c *config.Config) { *field(c) = *v }
}

func (o *overlay) duration(name, short, usage string, field func(*config.Config) *time.Duration) {
	v := new(time.Duration)
	o.fs.DurationVarP(v, name, short, *field(defaults), usage)
	o.apply[name] = func(c *config.Config) { *field(c) = *v }
}

func (o *overlay) strings(name, short, usage string, field func(*config.Config) *[]string) {
	v := new([]string)
	o.fs.StringSliceVarP(v, name, short, *field(defaults), usage)
	o.apply[name] = func(c *config.Config) { *field(c) = append([]string(nil), (*v)...) }
}

// onto copies every changed flag onto cfg.
func (o *overlay) onto(cfg *config.Config) {
	o.fs.Visit(func(f *flag.Flag) {
		if fn, ok := o.apply[f.Name]; ok {
			fn(cfg)
		}
	})
}

// ── shared flag groups ───────────────────────────────────────────────

func addTunnelFlags(o *overlay) {
	o.str("tunnel", "T", "SSH tunnel via [user@]host[:port]", func(c *config.Config) *string { return &c.TunnelSpec })
	o.str("ssh-key", "", "SSH private key file", func(c *config.Config) *string { return &c.SSHKeyPath })
	o.boolean("ssh-password", "", "Prompt for SSH password", func(c *config.Config) *bool { return &c.SSHPassword })
	o.boolean("ssh-agent", "", "Use SSH agent", func(c *config.Config) *bool { return &c.UseSSHAgent })
	o.boolean("strict-hostkey", "", "Verify SSH host keys", func(c *config.Config) *bool { return &c.StrictHostKey })
	o.str("known-hosts", "", "Custom known_hosts path", func(c *config.Config) *string { return &c.KnownHostsPath })
	o.duration("ssh-keepalive", "", "Interval between SSH keepalives (0 disables)", func(c *config.Config) *time.Duration { return &c.SSHKeepAlive })
}

func addWindowFlags(o *overlay) {
	o.str("window-title", "", "Title (xdotool --name pattern) of the managed window", func(c *config.Config) *string { return &c.WindowTitle })
	o.duration("window-poll", "", "Initial delay between window searches", func(c *config.Config) *time.Duration { return &c.WindowPoll })
	o.duration("window-watch", "", "Background window check interval (0 disables)", func(c *config.Config) *time.Duration { return &c.WindowWatch })
	o.duration("reconnect-data-timeout", "", "How long RECONNECTDATA waits for the window", func(c *config.Config) *time.Duration { return &c.ReconnectDataTimeout })
	o.duration("reconnect-account-timeout", "", "How long RECONNECTACCOUNT waits for the window (0 waits)", func(c *config.Config) *time.Duration { return &c.ReconnectAccountTimeout })
}
