package transport

import (
	"context"
	"net"
	"sync"

	"ibctl/tunnel"
	"ibctl/util"
)

// SSHDialer reaches servers that only listen on the gateway host's
// loopback.  The tunnel is opened on the first Dial and replaced when
// it has dropped.
type SSHDialer struct {
	gateway string
	open    func() tunnel.Tunnel
	logger  *util.Logger

	mu  sync.Mutex
	tun tunnel.Tunnel // nil until connected
}

// NewSSHDialer returns a dialer that forwards through cfg's gateway.
func NewSSHDialer(cfg *tunnel.SSHConfig, logger *util.Logger) *SSHDialer {
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	return &SSHDialer{
		gateway: cfg.User + "@" + cfg.Addr(),
		open:    func() tunnel.Tunnel { return tunnel.NewSSHTunnel(cfg, logger) },
		logger:  logger,
	}
}

// live returns a connected tunnel, opening a new one when needed.
func (d *SSHDialer) live(ctx context.Context) (tunnel.Tunnel, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.tun != nil {
		if d.tun.IsAlive() {
			return d.tun, nil
		}
		d.logger.Warn("SSH tunnel to %s dropped; reconnecting", d.gateway)
		d.tun.Close() //nolint:errcheck
		d.tun = nil
	}

	d.logger.Verbose("opening SSH tunnel to %s", d.gateway)
	t := d.open()
	if err := t.Connect(ctx); err != nil {
		return nil, err
	}
	d.tun = t
	return t, nil
}

// Dial connects to address as seen from the gateway host.
func (d *SSHDialer) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	t, err := d.live(ctx)
	if err != nil {
		return nil, err
	}
	d.logger.Debug("forwarding %s through %s", address, d.gateway)
	return t.Dial(ctx, network, address)
}

// Close shuts the tunnel, if one is open.
func (d *SSHDialer) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.tun == nil {
		return nil
	}
	t := d.tun
	d.tun = nil
	return t.Close()
}
