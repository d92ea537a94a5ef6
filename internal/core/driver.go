package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"trimctl/client"
	tcerr "trimctl/internal/errors"
	"trimctl/internal/retry"
	"trimctl/util"
)

// Driver runs a client session from a CLI goroutine: it resolves the
// target, connects with retries and pumps Update until a result
// arrives.  It is the owner goroutine of its Client.
type Driver struct {
	Client   *client.Client
	Host     string        // empty → first server that answers a probe
	Wait     time.Duration // discovery window
	Timeout  time.Duration // handshake and per-reply bound, 0 = none
	Interval time.Duration // Update cadence
	Retries  int           // extra connect attempts
	Logger   *util.Logger
}

// Connect resolves the target and connects, retrying retryable
// failures.  It returns the server identity.
func (d *Driver) Connect(ctx context.Context) (string, error) {
	host, err := d.resolve(ctx)
	if err != nil {
		return "", err
	}

	b := retry.ForAttempts(d.Retries + 1)
	b.Retryable = tcerr.IsRetryable
	b.OnRetry = func(attempt int, err error, wait time.Duration) {
		d.Logger.Warn("attempt %d: %v (retrying in %v)", attempt, err, wait.Round(time.Millisecond))
	}

	var identity string
	err = b.Do(ctx, func(_ int) error {
		id, err := d.connectOnce(ctx, host)
		identity = id
		return err
	})
	if err != nil {
		return "", fmt.Errorf("connect to %s: %w", host, err)
	}
	d.Logger.Verbose("connected to %s (%s)", host, identity)
	return identity, nil
}

// resolve returns Host or discovers the first server.
func (d *Driver) resolve(ctx context.Context) (string, error) {
	if d.Host != "" {
		return d.Host, nil
	}

	found := make(chan client.Peer, 1)
	d.Client.OnServerFound(func(p client.Peer) {
		select {
		case found <- p:
		default:
		}
	})
	defer d.Client.OnServerFound(nil)
	defer d.Client.StopFinding()

	if err := d.Client.FindServers(); err != nil {
		return "", fmt.Errorf("discovery: %w", err)
	}
	d.Logger.Verbose("searching for servers for %v", d.Wait)

	timer := time.NewTimer(d.Wait)
	defer timer.Stop()

	select {
	case p := <-found:
		d.Logger.Info("using %s", p)
		return p.Addr.String(), nil
	case <-timer.C:
		return "", tcerr.ErrNoServers
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (d *Driver) connectOnce(ctx context.Context, host string) (string, error) {
	type result struct {
		ok      bool
		message string
	}
	done := make(chan result, 1)
	err := d.Client.Connect(host, func(ok bool, message string) {
		done <- result{ok, message}
	})
	if err != nil {
		return "", retry.Permanent(err)
	}

	deadline, stop := after(d.Timeout)
	defer stop()

	select {
	case r := <-done:
		if r.ok {
			return r.message, nil
		}
		if err := d.Client.LastError(); err != nil {
			return "", err
		}
		return "", errors.New(r.message)
	case <-deadline:
		d.Client.Disconnect()
		return "", tcerr.ErrTimeout
	case <-ctx.Done():
		d.Client.Disconnect()
		return "", retry.Permanent(ctx.Err())
	}
}

// Await pumps Update until done reports true.  It fails when the
// session closes, the timeout elapses or ctx ends first.
func (d *Driver) Await(ctx context.Context, done func() bool) error {
	ticker := time.NewTicker(d.Interval)
	defer ticker.Stop()
	deadline, stop := after(d.Timeout)
	defer stop()

	for {
		d.Client.Update()
		if done() {
			return nil
		}
		if err := d.lost(); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return tcerr.ErrTimeout
		case <-ticker.C:
		}
	}
}

// lost returns an error once the session is no longer established.
func (d *Driver) lost() error {
	if d.Client.Connected() {
		return nil
	}
	if err := d.Client.LastError(); err != nil {
		return fmt.Errorf("connection lost: %w", err)
	}
	return errServerClosed
}

var errServerClosed = errors.New("server closed the connection")

// after returns a channel that fires once after d, or never when d
// is not positive.
func after(d time.Duration) (<-chan time.Time, func()) {
	if d <= 0 {
		return nil, func() {}
	}
	t := time.NewTimer(d)
	return t.C, func() { t.Stop() }
}
