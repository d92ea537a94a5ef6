package transport

import (
	"context"
	"net"
	"time"

	"trimctl/util"
)

// TCPDialer establishes plain TCP connections bound to the wildcard
// local address of the target's family, on an ephemeral port.
type TCPDialer struct {
	Timeout time.Duration
}

// Dial connects to address over TCP.
func (d *TCPDialer) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	dialer := net.Dialer{Timeout: d.Timeout}

	if local := util.WildcardFor(util.HostOf(address)); local != nil {
		dialer.LocalAddr = local
	}

	return dialer.DialContext(ctx, network, address)
}

// Close is a no-op for stateless TCP dialers.
func (d *TCPDialer) Close() error { return nil }
