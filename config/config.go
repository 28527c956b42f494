// Package config defines the runtime configuration for ibctl and
// provides helpers for parsing tunnel specifications and client
// allow-lists.
package config

import (
	"fmt"
	"net/netip"
	"regexp"
	"strconv"
	"strings"
	"time"

	ibcerr "ibctl/internal/errors"
)

// Mode selects which side of the protocol a Config describes.
type Mode string

const (
	ModeServe Mode = "serve"
	ModeSend  Mode = "send"
)

// Config holds every tuneable for an ibctl process.  Field tags drive
// the YAML file loader and the IBCTL_* environment overlay.
type Config struct {
	Mode Mode `yaml:"-"`

	// ── Server ───────────────────────────────────────────────────────
	BindAddress  string   `yaml:"bind_address" env:"BIND_ADDRESS"`
	Port         int      `yaml:"port" env:"PORT"`
	AllowedFrom  []string `yaml:"allowed_from" env:"ALLOWED_FROM" envSeparator:","`
	KeepOpen     bool     `yaml:"keep_open" env:"KEEP_OPEN"`
	Gateway      bool     `yaml:"gateway" env:"GATEWAY"`
	MaxLineBytes int      `yaml:"max_line_bytes" env:"MAX_LINE_BYTES"`

	// ── Managed window ───────────────────────────────────────────────
	WindowTitle             string        `yaml:"window_title" env:"WINDOW_TITLE"`
	WindowPoll              time.Duration `yaml:"window_poll" env:"WINDOW_POLL"`
	WindowWatch             time.Duration `yaml:"window_watch" env:"WINDOW_WATCH"`
	ReconnectDataTimeout    time.Duration `yaml:"reconnect_data_timeout" env:"RECONNECT_DATA_TIMEOUT"`
	ReconnectAccountTimeout time.Duration `yaml:"reconnect_account_timeout" env:"RECONNECT_ACCOUNT_TIMEOUT"`

	// ── Workflows ────────────────────────────────────────────────────
	StopGrace        time.Duration `yaml:"stop_grace" env:"STOP_GRACE"`
	EnableAPICommand string        `yaml:"enable_api_command" env:"ENABLE_API_COMMAND"`
	VerifyAPICommand string        `yaml:"verify_api_command" env:"VERIFY_API_COMMAND"`
	VerifyDelay      time.Duration `yaml:"verify_delay" env:"VERIFY_DELAY"`

	// ── Client ───────────────────────────────────────────────────────
	Host         string        `yaml:"host" env:"HOST"`
	Timeout      time.Duration `yaml:"timeout" env:"TIMEOUT"`
	ReplyTimeout time.Duration `yaml:"reply_timeout" env:"REPLY_TIMEOUT"`
	Retries      int           `yaml:"retries" env:"RETRIES"`
	Commands     []string      `yaml:"-"`

	// ── SSH tunnel ───────────────────────────────────────────────────
	TunnelSpec     string        `yaml:"tunnel" env:"TUNNEL"` // raw user@host[:port] from -T
	TunnelEnabled  bool          `yaml:"-"`
	TunnelUser     string        `yaml:"-"`
	TunnelHost     string        `yaml:"-"`
	TunnelPort     int           `yaml:"-"`
	SSHKeyPath     string        `yaml:"ssh_key" env:"SSH_KEY"`
	SSHPassword    bool          `yaml:"ssh_password" env:"SSH_PASSWORD"` // true → prompt interactively
	UseSSHAgent    bool          `yaml:"ssh_agent" env:"SSH_AGENT"`
	StrictHostKey  bool          `yaml:"strict_hostkey" env:"STRICT_HOSTKEY"`
	KnownHostsPath string        `yaml:"known_hosts" env:"KNOWN_HOSTS"`
	SSHKeepAlive   time.Duration `yaml:"ssh_keepalive" env:"SSH_KEEPALIVE"`

	// ── Output ───────────────────────────────────────────────────────
	Verbose int  `yaml:"verbose" env:"VERBOSE"`
	NoColor bool `yaml:"no_color" env:"NO_COLOR"`
}

// Default returns a Config populated from defaults.go.
func Default() *Config {
	return &Config{
		BindAddress:             DefaultBindAddress,
		Port:                    DefaultPort,
		AllowedFrom:             DefaultAllowedFrom(),
		MaxLineBytes:            DefaultMaxLineBytes,
		WindowPoll:              DefaultWindowPollInterval,
		WindowWatch:             DefaultWindowWatchInterval,
		ReconnectDataTimeout:    DefaultReconnectDataTimeout,
		ReconnectAccountTimeout: DefaultReconnectAccountTimeout,
		StopGrace:               DefaultStopGrace,
		VerifyDelay:             DefaultVerifyDelay,
		Host:                    DefaultHost,
		Timeout:                 DefaultConnTimeout,
		ReplyTimeout:            DefaultReplyTimeout,
		Retries:                 DefaultDialRetries,
		SSHKeepAlive:            DefaultSSHKeepAlive,
		Verbose:                 1,
	}
}

// ── Allow-list helpers ───────────────────────────────────────────────

// ParseAllowed turns "1.2.3.4", "10.0.0.0/8" or "::1" entries into
// prefixes.  Bare addresses become single-host prefixes.
func ParseAllowed(entries []string) ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(entries))
	for _, raw := range entries {
		e := strings.TrimSpace(raw)
		if e == "" {
			continue
		}
		if strings.Contains(e, "/") {
			p, err := netip.ParsePrefix(e)
			if err != nil {
				return nil, fmt.Errorf("invalid allowed network %q", e)
			}
			out = append(out, p.Masked())
			continue
		}
		a, err := netip.ParseAddr(e)
		if err != nil {
			return nil, fmt.Errorf("invalid allowed address %q", e)
		}
		a = a.Unmap()
		out = append(out, netip.PrefixFrom(a, a.BitLen()))
	}
	return out, nil
}

// ── Tunnel-spec parser ───────────────────────────────────────────────

// tunnelRe matches [user@]host[:port].
var tunnelRe = regexp.MustCompile(`^(?:([^@]+)@)?([^:]+)(?::(\d+))?$`)

// ParseTunnelSpec extracts user, host, and port from a string such as
// "admin@bastion.example.com:2222".  Port defaults to 22.
func ParseTunnelSpec(spec string) (user, host string, port int, err error) {
	m := tunnelRe.FindStringSubmatch(spec)
	if m == nil {
		return "", "", 0, fmt.Errorf("invalid tunnel spec %q – expected [user@]host[:port]", spec)
	}
	user = m[1]
	host = m[2]
	port = DefaultSSHPort
	if m[3] != "" {
		port, err = strconv.Atoi(m[3])
		if err != nil || port < 1 || port > 65535 {
			return "", "", 0, fmt.Errorf("invalid tunnel port %q", m[3])
		}
	}
	if host == "" {
		return "", "", 0, fmt.Errorf("tunnel host is required")
	}
	return user, host, port, nil
}

// ApplyTunnelSpec parses TunnelSpec into the Tunnel* fields.
func (c *Config) ApplyTunnelSpec() error {
	if c.TunnelSpec == "" {
		c.TunnelEnabled = false
		return nil
	}
	user, host, port, err := ParseTunnelSpec(c.TunnelSpec)
	if err != nil {
		return fmt.Errorf("tunnel: %w", err)
	}
	c.TunnelEnabled = true
	c.TunnelUser = user
	c.TunnelHost = host
	c.TunnelPort = port
	return nil
}

// ── Validation ───────────────────────────────────────────────────────

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return &ibcerr.ConfigError{
			Field:   "port",
			Value:   c.Port,
			Message: "out of range 1-65535",
			Hint:    fmt.Sprintf("the default command port is %d", DefaultPort),
		}
	}
	if c.ReconnectDataTimeout < 0 {
		return &ibcerr.ConfigError{Field: "reconnect-data-timeout", Value: c.ReconnectDataTimeout, Message: "must not be negative"}
	}
	if c.WindowWatch < 0 {
		return &ibcerr.ConfigError{Field: "window-watch", Value: c.WindowWatch, Message: "must not be negative", Hint: "use 0 to search only when a command needs the window"}
	}
	if c.ReconnectAccountTimeout < 0 {
		return &ibcerr.ConfigError{
			Field:   "reconnect-account-timeout",
			Value:   c.ReconnectAccountTimeout,
			Message: "must not be negative",
			Hint:    "use 0 to wait until the window appears",
		}
	}

	switch c.Mode {
	case ModeServe:
		return c.validateServe()
	case ModeSend:
		return c.validateSend()
	}
	return nil
}

func (c *Config) validateServe() error {
	if c.BindAddress == "" {
		return &ibcerr.ConfigError{Field: "bind", Message: "bind address is required", Hint: "use 0.0.0.0 to listen on all interfaces"}
	}
	if len(c.AllowedFrom) == 0 {
		return &ibcerr.ConfigError{
			Field:   "allow",
			Message: "no clients would be allowed",
			Hint:    "add at least one address, e.g. --allow 127.0.0.1",
		}
	}
	if _, err := ParseAllowed(c.AllowedFrom); err != nil {
		return &ibcerr.ConfigError{Field: "allow", Value: strings.Join(c.AllowedFrom, ","), Message: err.Error()}
	}
	if c.MaxLineBytes < 16 {
		return &ibcerr.ConfigError{Field: "max-line-bytes", Value: c.MaxLineBytes, Message: "must be at least 16"}
	}
	if c.StopGrace < 0 || c.VerifyDelay < 0 {
		return fmt.Errorf("stop grace and verify delay must not be negative")
	}
	if c.TunnelEnabled {
		return fmt.Errorf("serve mode through an SSH tunnel is not supported")
	}
	return nil
}

func (c *Config) validateSend() error {
	if c.Host == "" {
		return &ibcerr.ConfigError{Field: "host", Message: "required for send", Hint: "use --host 127.0.0.1 for a local server"}
	}
	if c.Retries < 0 {
		return &ibcerr.ConfigError{Field: "retries", Value: c.Retries, Message: "must not be negative"}
	}
	if c.TunnelEnabled && c.TunnelHost == "" {
		return fmt.Errorf("tunnel host is required")
	}
	return nil
}
