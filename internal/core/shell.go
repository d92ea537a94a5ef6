package core

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	"trimctl/internal/transport"
)

const shellPrompt = "trim> "

// console reads command lines and prints results.
type console interface {
	io.Writer
	ReadLine() (string, error)
}

// plainConsole reads lines from a pipe or file.
type plainConsole struct {
	io.Writer
	sc *bufio.Scanner
}

func (c *plainConsole) ReadLine() (string, error) {
	if c.sc.Scan() {
		return c.sc.Text(), nil
	}
	if err := c.sc.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

// ShellMode keeps a session open and sends every input line as a raw
// command.  Commands are pipelined: a line is sent as soon as it is
// read and its reply printed when it arrives.
type ShellMode struct {
	Driver
	Dialer transport.Dialer

	// Stdin/Stdout default to os.Stdin/os.Stdout when nil.
	Stdin  io.Reader
	Stdout io.Writer
}

func (m *ShellMode) stdin() io.Reader {
	if m.Stdin != nil {
		return m.Stdin
	}
	return os.Stdin
}

func (m *ShellMode) stdout() io.Writer {
	if m.Stdout != nil {
		return m.Stdout
	}
	return os.Stdout
}

// console returns a line editor when stdin is a terminal, otherwise a
// plain line reader.  restore undoes any terminal mode change.
func (m *ShellMode) console() (c console, restore func(), err error) {
	if f, ok := m.stdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fd := int(f.Fd())
		state, err := term.MakeRaw(fd)
		if err != nil {
			return nil, nil, fmt.Errorf("terminal: %w", err)
		}
		rw := struct {
			io.Reader
			io.Writer
		}{f, m.stdout()}
		return term.NewTerminal(rw, shellPrompt), func() { term.Restore(fd, state) }, nil //nolint:errcheck
	}
	return &plainConsole{Writer: m.stdout(), sc: bufio.NewScanner(m.stdin())}, func() {}, nil
}

// Run connects and serves input lines until EOF, "quit", ctx ends or
// the server closes the session.  After EOF or "quit" it waits up to
// Timeout for outstanding replies.
func (m *ShellMode) Run(ctx context.Context) error {
	if m.Dialer != nil {
		defer m.Dialer.Close()
	}
	defer m.Client.Close()

	identity, err := m.Connect(ctx)
	if err != nil {
		return err
	}

	con, restore, err := m.console()
	if err != nil {
		return err
	}
	defer restore()
	fmt.Fprintf(con, "connected to %s (%s)\n", m.Client.ServerAddress(), identity)

	lines := make(chan string)
	readErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)
	go func(out chan<- string, errc chan<- error) {
		for {
			line, err := con.ReadLine()
			if err != nil {
				errc <- err
				return
			}
			select {
			case out <- line:
			case <-done:
				return
			}
		}
	}(lines, readErr)

	ticker := time.NewTicker(m.Interval)
	defer ticker.Stop()

	// Once input ends, stop reading and wait up to Timeout for the
	// replies still outstanding.
	var in <-chan string = lines
	var drain <-chan time.Time
	closing := false
	stopDrain := func() {}
	defer func() { stopDrain() }()
	finish := func() {
		closing = true
		in, readErr = nil, nil
		drain, stopDrain = after(m.Timeout)
	}

	for {
		m.Client.Update()
		if err := m.lost(); err != nil {
			fmt.Fprintln(con, err)
			if err == errServerClosed {
				return nil
			}
			return err
		}
		if closing && m.Client.Pending() == 0 {
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case line := <-in:
			if m.exec(con, line) {
				finish()
			}
		case err := <-readErr:
			if err != io.EOF {
				return fmt.Errorf("read input: %w", err)
			}
			finish()
		case <-drain:
			return fmt.Errorf("%d command(s) unanswered", m.Client.Pending())
		case <-ticker.C:
		}
	}
}

// exec sends one input line.  It reports whether the user asked to
// leave.
func (m *ShellMode) exec(con console, line string) (quit bool) {
	line = strings.TrimSpace(line)
	switch strings.ToLower(line) {
	case "":
		return false
	case "quit", "exit":
		return true
	}

	name, args, _ := strings.Cut(line, " ")
	err := m.Client.RawCommand(name, strings.TrimSpace(args), func(ok bool, message string) {
		if ok {
			fmt.Fprintln(con, message)
		} else {
			fmt.Fprintf(con, "error: %s\n", message)
		}
	})
	if err != nil {
		fmt.Fprintf(con, "error: %v\n", err)
	}
	return false
}
