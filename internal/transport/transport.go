// Package transport opens the client side of a command connection,
// either directly over TCP or through an SSH tunnel.
package transport

import (
	"context"
	"net"
	"time"

	ibcerr "ibctl/internal/errors"
	"ibctl/internal/retry"
	"ibctl/util"
)

// Dialer opens outbound connections to an ibctl server.
type Dialer interface {
	Dial(ctx context.Context, network, address string) (net.Conn, error)

	// Close releases long-lived resources such as an SSH session.
	// Stateless dialers return nil.
	Close() error
}

// RetryDialer retries transient dial failures of the wrapped Dialer
// with exponential backoff.  Failures that retrying cannot fix (auth,
// host key, unknown host) are returned at once.
type RetryDialer struct {
	Dialer  Dialer
	Backoff *retry.Backoff
	Logger  *util.Logger
}

// Dial implements Dialer.
func (d *RetryDialer) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	bo := retry.Backoff{MaxAttempts: 1}
	if d.Backoff != nil {
		bo = *d.Backoff
	}
	bo.OnRetry = func(attempt int, err error, wait time.Duration) {
		d.Logger.Verbose("dial %s failed (attempt %d): %v; retrying in %v",
			address, attempt, err, wait.Truncate(time.Millisecond))
	}

	var conn net.Conn
	err := bo.Do(ctx, func(int) error {
		c, err := d.Dialer.Dial(ctx, network, address)
		if err != nil {
			if !ibcerr.IsRetryable(err) {
				return retry.Permanent(err)
			}
			return err
		}
		conn = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Close closes the wrapped Dialer.
func (d *RetryDialer) Close() error { return d.Dialer.Close() }
