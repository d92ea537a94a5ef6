package transport

import (
	"context"
	"net"
	"sync"

	tcerr "trimctl/internal/errors"
	"trimctl/tunnel"
	"trimctl/util"
)

// SSHDialer reaches servers through an SSH gateway.  The tunnel comes
// up on the first Dial and is brought up again by a later Dial once
// the gateway drops it.
type SSHDialer struct {
	logger *util.Logger

	mu  sync.Mutex // guards tun and up
	tun tunnel.Tunnel
	up  bool
}

// NewSSHDialer returns a dialer for the gateway described by cfg.
// Nothing is dialed until the first Dial.
func NewSSHDialer(cfg *tunnel.SSHConfig, logger *util.Logger) *SSHDialer {
	logger = util.OrQuiet(logger)
	return newTunnelDialer(tunnel.NewSSHTunnel(cfg, logger), logger)
}

func newTunnelDialer(t tunnel.Tunnel, logger *util.Logger) *SSHDialer {
	return &SSHDialer{tun: t, logger: util.OrQuiet(logger).Named("ssh")}
}

// ensure brings the tunnel up unless it is already alive.
func (d *SSHDialer) ensure(ctx context.Context) (tunnel.Tunnel, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.up {
		if d.tun.IsAlive() {
			return d.tun, nil
		}
		d.logger.Warn("gateway connection lost, reconnecting")
		d.tun.Close() //nolint:errcheck
		d.up = false
	}
	if err := d.tun.Connect(ctx); err != nil {
		return nil, err
	}
	d.up = true
	d.logger.Verbose("gateway connected")
	return d.tun, nil
}

// Dial opens a stream to address on the far side of the gateway.
func (d *SSHDialer) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	t, err := d.ensure(ctx)
	if err != nil {
		return nil, err
	}
	nc, err := t.Dial(ctx, network, address)
	if err != nil {
		var ne *tcerr.NetworkError
		if !tcerr.As(err, &ne) {
			err = tcerr.Wrap("tunnel dial", address, err)
		}
		return nil, err
	}
	d.logger.Debug("forwarding to %s", address)
	return nc, nil
}

// Close shuts the gateway connection down.  Streams opened through it
// end with it.
func (d *SSHDialer) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.up {
		return nil
	}
	d.up = false
	return d.tun.Close()
}
