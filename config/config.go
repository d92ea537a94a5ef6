// Package config defines the runtime configuration for trimctl and
// provides helpers for parsing tunnel specifications and commands.
package config

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	tcerr "trimctl/internal/errors"
)

// Command names accepted on the command line.
const (
	CmdFind  = "find"
	CmdPing  = "ping"
	CmdGet   = "get"
	CmdSet   = "set"
	CmdRaw   = "raw"
	CmdShell = "shell"
)

// Config holds every tuneable for a single trimctl run.
type Config struct {
	// ── Server ───────────────────────────────────────────────────────
	Host           string // empty → use the first discovered server
	Port           int
	ClientHello    string // format with {0} {1} {2} placeholders
	ServerHello    string
	Broadcast      string
	Product        string
	ProductVersion string

	// ── Timing ───────────────────────────────────────────────────────
	UpdateInterval time.Duration
	Wait           time.Duration // discovery window
	Timeout        time.Duration // handshake and per-reply bound
	Retries        int

	// ── SSH tunnel ───────────────────────────────────────────────────
	TunnelSpec     string // raw user@host[:port] from -T
	TunnelEnabled  bool
	TunnelUser     string
	TunnelHost     string
	TunnelPort     int
	SSHKeyPath     string
	SSHPassword    bool // true → prompt interactively
	UseSSHAgent    bool
	StrictHostKey  bool
	KnownHostsPath string
	KeepAlive      int // seconds, 0 disables

	// ── Command ──────────────────────────────────────────────────────
	Command string   // find, ping, get, set, raw, shell
	Args    []string // command operands

	// ── Output ───────────────────────────────────────────────────────
	Verbose int
	Stats   bool
}

// ── Tunnel-spec parser ───────────────────────────────────────────────

// tunnelRe matches [user@]host[:port].
var tunnelRe = regexp.MustCompile(`^(?:([^@]+)@)?([^:]+)(?::(\d+))?$`)

// ParseTunnelSpec extracts user, host, and port from a string such as
// "admin@gateway.example.com:2222".  Port defaults to 22.
func ParseTunnelSpec(spec string) (user, host string, port int, err error) {
	m := tunnelRe.FindStringSubmatch(spec)
	if m == nil {
		return "", "", 0, fmt.Errorf("invalid tunnel spec %q – expected [user@]host[:port]", spec)
	}
	user = m[1]
	host = m[2]
	port = DefaultSSHPort
	if m[3] != "" {
		port, err = strconv.Atoi(m[3])
		if err != nil || port < 1 || port > 65535 {
			return "", "", 0, fmt.Errorf("invalid tunnel port %q", m[3])
		}
	}
	return user, host, port, nil
}

// ApplyTunnelSpec parses TunnelSpec, if set, into the tunnel fields.
func (c *Config) ApplyTunnelSpec() error {
	if c.TunnelSpec == "" {
		return nil
	}
	user, host, port, err := ParseTunnelSpec(c.TunnelSpec)
	if err != nil {
		return fmt.Errorf("tunnel: %w", err)
	}
	c.TunnelEnabled = true
	c.TunnelUser = user
	c.TunnelHost = host
	c.TunnelPort = port
	return nil
}

// ── Command parser ───────────────────────────────────────────────────

// ParseCommand splits positional arguments into a command and its
// operands and checks the operand count.
func ParseCommand(args []string) (string, []string, error) {
	if len(args) == 0 {
		return "", nil, fmt.Errorf("command required (use --help for usage)")
	}
	name, rest := strings.ToLower(args[0]), args[1:]

	switch name {
	case CmdFind, CmdPing, CmdShell:
		if len(rest) > 0 {
			return "", nil, fmt.Errorf("%s takes no arguments", name)
		}
	case CmdGet, CmdSet:
		if len(rest) == 0 {
			return "", nil, fmt.Errorf("%s requires an option path", name)
		}
	case CmdRaw:
		if len(rest) == 0 {
			return "", nil, fmt.Errorf("raw requires a command name")
		}
	default:
		return "", nil, fmt.Errorf("unknown command %q", args[0])
	}
	return name, rest, nil
}

// ── Validation ───────────────────────────────────────────────────────

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return &tcerr.ConfigError{
			Field:   "port",
			Value:   c.Port,
			Message: "out of range 1-65535",
			Hint:    fmt.Sprintf("servers listen on %d unless configured otherwise", DefaultPort),
		}
	}
	if c.ServerHello == "" {
		return &tcerr.ConfigError{
			Field:   "server-hello",
			Message: "must not be empty",
			Hint:    "every server greeting starts with this token, normally " + DefaultServerHello,
		}
	}
	for field, v := range map[string]string{"hello": c.ClientHello, "server-hello": c.ServerHello} {
		if strings.ContainsAny(v, "\r\n") {
			return &tcerr.ConfigError{Field: field, Value: v, Message: "must be a single line"}
		}
	}
	if c.UpdateInterval <= 0 {
		return &tcerr.ConfigError{Field: "update-interval", Value: c.UpdateInterval, Message: "must be positive"}
	}
	if c.Retries < 0 {
		return &tcerr.ConfigError{Field: "retries", Value: c.Retries, Message: "must not be negative"}
	}
	if c.Command == CmdFind && c.Host != "" {
		return &tcerr.ConfigError{
			Field:   "host",
			Value:   c.Host,
			Message: "find does not connect to a host",
			Hint:    "use --broadcast to direct probes at one address",
		}
	}
	if c.Command != CmdFind && c.Host == "" && c.TunnelEnabled {
		return &tcerr.ConfigError{
			Field:   "host",
			Message: "required with --tunnel",
			Hint:    "discovery broadcasts cannot cross an SSH tunnel",
		}
	}
	if c.TunnelEnabled && c.TunnelHost == "" {
		return &tcerr.ConfigError{Field: "tunnel", Value: c.TunnelSpec, Message: "tunnel host is required"}
	}
	return nil
}
