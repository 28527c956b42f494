package config

import "time"

// ── Default values ───────────────────────────────────────────────────
//
// All tuneable defaults live here so they are easy to audit and reuse
// across CLI flags, the YAML config file, and environment variable
// loading.

const (
	// DefaultPort is the TCP port the command server listens on.
	DefaultPort = 7462

	// DefaultBindAddress listens on every interface; the allow-list
	// decides who may actually talk to the server.
	DefaultBindAddress = "0.0.0.0"

	// DefaultHost is where `send` connects when no host is given.
	DefaultHost = "127.0.0.1"

	// DefaultSSHPort is the standard SSH port.
	DefaultSSHPort = 22

	// DefaultMaxLineBytes caps a single command line.
	DefaultMaxLineBytes = 4096

	// DefaultReconnectDataTimeout is how long RECONNECTDATA waits for
	// the main window.
	DefaultReconnectDataTimeout = time.Millisecond

	// DefaultReconnectAccountTimeout is how long RECONNECTACCOUNT waits
	// for the main window.  Zero waits until the session ends.
	DefaultReconnectAccountTimeout time.Duration = 0

	// DefaultStopGrace is the delay between acknowledging STOP and
	// shutting the server down, so the ack reaches the client.
	DefaultStopGrace = 2 * time.Second

	// DefaultVerifyDelay is how long after ENABLEAPI the verify hook runs.
	DefaultVerifyDelay = 5 * time.Second

	// DefaultConnTimeout is the TCP/SSH connection timeout for `send`.
	DefaultConnTimeout = 10 * time.Second

	// DefaultReplyTimeout bounds how long `send` waits for one reply.
	DefaultReplyTimeout = 60 * time.Second

	// DefaultDialRetries is how many extra dial attempts `send` makes.
	DefaultDialRetries = 3

	// DefaultWindowPollInterval is the first delay between window
	// searches; it backs off from there.
	DefaultWindowPollInterval = 50 * time.Millisecond

	// DefaultWindowWatchInterval is how often serve re-checks the
	// managed window in the background, so RECONNECTDATA's short wait
	// finds it already known.
	DefaultWindowWatchInterval = time.Second

	// DefaultSSHKeepAlive is the interval between SSH keepalive probes.
	DefaultSSHKeepAlive = 30 * time.Second

	// DefaultEnvPrefix prefixes every supported environment variable.
	DefaultEnvPrefix = "IBCTL_"
)

// DefaultAllowedFrom only admits loopback clients.
func DefaultAllowedFrom() []string {
	return []string{"127.0.0.1", "::1"}
}
