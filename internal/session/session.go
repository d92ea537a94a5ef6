// Package session describes the single logical connection a
// controller holds to one server: its status and the facts learned
// while establishing it.
package session

import "fmt"

// Status is the connection state of a session.
type Status int32

const (
	// Idle means no connection has been started.
	Idle Status = iota
	// Connecting means the stream connect is in flight.
	Connecting
	// AwaitingHandshake means the client hello was sent and the
	// server hello has not arrived yet.
	AwaitingHandshake
	// Established means commands may be sent.
	Established
	// Closed is terminal until the next Connect.
	Closed
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case AwaitingHandshake:
		return "awaiting-handshake"
	case Established:
		return "established"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("status(%d)", int32(s))
	}
}

// Active reports whether s holds (or is acquiring) a stream socket.
func (s Status) Active() bool {
	return s == Connecting || s == AwaitingHandshake || s == Established
}

// Info is an immutable snapshot of a session.
type Info struct {
	Status   Status
	Address  string // target host as given to Connect
	Identity string // server hello remainder, set once established
	Port     int
	Hello    string // client hello sent on connect and discovery
	Token    string // expected server hello token
}

func (i Info) String() string {
	if i.Address == "" {
		return i.Status.String()
	}
	if i.Identity == "" {
		return fmt.Sprintf("%s %s:%d", i.Status, i.Address, i.Port)
	}
	return fmt.Sprintf("%s %s:%d (%s)", i.Status, i.Address, i.Port, i.Identity)
}
