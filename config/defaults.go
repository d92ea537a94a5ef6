package config

import "time"

// ── Default values ───────────────────────────────────────────────────
//
// All tuneable defaults live here so they are easy to audit and reuse
// across CLI flags, config file parsing, and environment variable
// loading.

const (
	// DefaultPort is the port servers listen on for both discovery
	// datagrams and stream connections.
	DefaultPort = 21076

	// DefaultClientHello is the client hello format.  {0}, {1} and {2}
	// expand to the product name, product version and platform version.
	DefaultClientHello = "TRIM {0} {1} {2}"

	// DefaultServerHello is the token every server reply and stream
	// greeting starts with.
	DefaultServerHello = "TRAM"

	// DefaultBroadcast is the destination of discovery probes.
	DefaultBroadcast = "255.255.255.255"

	// DefaultProduct is the product name announced in the client hello.
	DefaultProduct = "trimctl"

	// DefaultUpdateInterval is how often CLI modes pump replies.
	DefaultUpdateInterval = 50 * time.Millisecond

	// DefaultDiscoveryWait is how long find collects answers.
	DefaultDiscoveryWait = 2 * time.Second

	// DefaultTimeout bounds the handshake and each command reply in
	// CLI modes.  The session itself never times out a command.
	DefaultTimeout = 10 * time.Second

	// DefaultRetries is the number of extra connect attempts after a
	// retryable failure.
	DefaultRetries = 2

	// DefaultSSHPort is the standard SSH port.
	DefaultSSHPort = 22

	// DefaultKeepAliveInterval is the SSH keepalive interval in seconds.
	DefaultKeepAliveInterval = 30
)

// Default returns a Config populated with every default.
func Default() *Config {
	return &Config{
		Port:           DefaultPort,
		ClientHello:    DefaultClientHello,
		ServerHello:    DefaultServerHello,
		Broadcast:      DefaultBroadcast,
		Product:        DefaultProduct,
		UpdateInterval: DefaultUpdateInterval,
		Wait:           DefaultDiscoveryWait,
		Timeout:        DefaultTimeout,
		Retries:        DefaultRetries,
		KeepAlive:      DefaultKeepAliveInterval,
	}
}
