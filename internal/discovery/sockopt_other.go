//go:build !unix

package discovery

import "syscall"

// broadcastControl is a no-op where the runtime already enables
// SO_BROADCAST on datagram sockets.
func broadcastControl(_, _ string, _ syscall.RawConn) error { return nil }
