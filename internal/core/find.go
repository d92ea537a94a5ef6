package core

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"trimctl/client"
	tcerr "trimctl/internal/errors"
	"trimctl/util"
)

// FindMode broadcasts one probe and prints every server that answers
// within Wait, one "<address>\t<identity>" line each.
type FindMode struct {
	Client *client.Client
	Wait   time.Duration
	Logger *util.Logger

	// Stdout defaults to os.Stdout when nil.
	Stdout io.Writer
}

func (m *FindMode) stdout() io.Writer {
	if m.Stdout != nil {
		return m.Stdout
	}
	return os.Stdout
}

// Run probes and collects answers.  It returns ErrNoServers when
// nobody answered.
func (m *FindMode) Run(ctx context.Context) error {
	found := make(chan client.Peer, 16)
	done := make(chan struct{})
	defer close(done)

	m.Client.OnServerFound(func(p client.Peer) {
		select {
		case found <- p:
		case <-done:
		}
	})
	defer m.Client.StopFinding()

	if err := m.Client.FindServers(); err != nil {
		return fmt.Errorf("discovery: %w", err)
	}
	m.Logger.Verbose("probe sent, waiting %v for answers", m.Wait)

	timer := time.NewTimer(m.Wait)
	defer timer.Stop()

	count := 0
	for {
		select {
		case p := <-found:
			count++
			fmt.Fprintf(m.stdout(), "%s\t%s\n", p.Addr, p.Identity)
		case <-timer.C:
			if count == 0 {
				return tcerr.ErrNoServers
			}
			m.Logger.Verbose("%d server(s) found", count)
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}
