// Package transport opens the reliable stream a controller session
// runs over.  A direct TCP dialer is the default; an SSH-tunnelled
// dialer reaches servers on a LAN behind a gateway.
package transport

import (
	"context"
	"net"
)

// Dialer opens outbound stream connections.
type Dialer interface {
	// Dial establishes a connection to the given network address.
	Dial(ctx context.Context, network, address string) (net.Conn, error)

	// Close releases any long-lived resources held by the dialer
	// (e.g. an SSH session).  Stateless dialers return nil.
	Close() error
}
