// Package core is the orchestration layer.  It drives a client
// session through one complete CLI operation and provides a builder
// that selects the right mode from a Config.
//
// Architecture layers (bottom → top):
//
//	wire → discovery / connection → dispatch → client → core → cmd (CLI)
package core

import "context"

// Mode represents a complete operational mode of trimctl (find, a
// single command, or an interactive shell).  Each mode owns its full
// lifecycle from discovery to teardown.
type Mode interface {
	Run(ctx context.Context) error
}
