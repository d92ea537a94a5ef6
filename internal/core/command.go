package core

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"trimctl/config"
	"trimctl/internal/transport"
)

// CommandMode connects, sends one command, prints the reply and
// disconnects.
type CommandMode struct {
	Driver
	Name   string   // ping, get, set or raw
	Args   []string // operands as given on the command line
	Dialer transport.Dialer

	// Stdout defaults to os.Stdout when nil.
	Stdout io.Writer
}

func (m *CommandMode) stdout() io.Writer {
	if m.Stdout != nil {
		return m.Stdout
	}
	return os.Stdout
}

// Run executes the command.  A failure reply from the server is
// returned as an error carrying the server's message.
func (m *CommandMode) Run(ctx context.Context) error {
	if m.Dialer != nil {
		defer m.Dialer.Close()
	}
	defer m.Client.Close()

	if _, err := m.Connect(ctx); err != nil {
		return err
	}

	var (
		replied bool
		ok      bool
		message string
	)
	onResult := func(success bool, msg string) {
		replied, ok, message = true, success, msg
	}
	if err := m.send(onResult); err != nil {
		return fmt.Errorf("%s: %w", m.Name, err)
	}
	if err := m.Await(ctx, func() bool { return replied }); err != nil {
		return fmt.Errorf("%s: %w", m.Name, err)
	}

	if !ok {
		return fmt.Errorf("%s: server error: %s", m.Name, message)
	}
	fmt.Fprintln(m.stdout(), message)
	return nil
}

func (m *CommandMode) send(onResult func(bool, string)) error {
	switch m.Name {
	case config.CmdPing:
		return m.Client.Ping(onResult)
	case config.CmdGet:
		return m.Client.GetValue(strings.Join(m.Args, " "), onResult)
	case config.CmdSet:
		return m.Client.SetValue(strings.Join(m.Args, " "), onResult)
	case config.CmdRaw:
		return m.Client.RawCommand(m.Args[0], strings.Join(m.Args[1:], " "), onResult)
	default:
		return fmt.Errorf("unknown command %q", m.Name)
	}
}
