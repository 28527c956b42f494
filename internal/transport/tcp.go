package transport

import (
	"context"
	"net"
	"time"

	ibcerr "ibctl/internal/errors"
)

// TCPDialer opens plain TCP connections.
type TCPDialer struct {
	Timeout time.Duration
}

// Dial connects to address.  Failures are returned as
// *errors.NetworkError so callers can tell transient ones apart.
func (d *TCPDialer) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	dialer := net.Dialer{Timeout: d.Timeout}
	conn, err := dialer.DialContext(ctx, network, address)
	if err != nil {
		return nil, ibcerr.Wrap("dial", address, err)
	}
	return conn, nil
}

// Close is a no-op for stateless TCP dialers.
func (d *TCPDialer) Close() error { return nil }
