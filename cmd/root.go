// Package cmd wires up the CLI flags and dispatches to a core mode.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	flag "github.com/spf13/pflag"

	"trimctl/config"
	"trimctl/internal/core"
	"trimctl/internal/metrics"
	"trimctl/util"
)

// version is overridable at link time:
//
//	go build -ldflags "-X trimctl/cmd.version=2.0.0"
var version = "1.0.0" //nolint:gochecknoglobals

// Execute parses args and runs the selected trimctl command.
func Execute(ctx context.Context, args []string) error {
	return execute(ctx, args, os.Stdout, os.Stderr)
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	// ── file and environment ─────────────────────────────────────
	cfg := config.Default()
	used, err := config.LoadFile(cfg, configPath(args))
	if err != nil {
		return err
	}
	config.LoadFromEnv(cfg)

	fs := flag.NewFlagSet("trimctl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	// ── server ───────────────────────────────────────────────────
	fs.StringVarP(&cfg.Host, "host", "H", cfg.Host, "Server address (default: first server found)")
	fs.IntVarP(&cfg.Port, "port", "P", cfg.Port, "Discovery and connection port")
	fs.StringVar(&cfg.ClientHello, "hello", cfg.ClientHello, "Client hello format ({0} product, {1} version, {2} platform)")
	fs.StringVar(&cfg.ServerHello, "server-hello", cfg.ServerHello, "Token expected from servers")
	fs.StringVar(&cfg.Broadcast, "broadcast", cfg.Broadcast, "Discovery probe destination")
	fs.StringVar(&cfg.Product, "product", cfg.Product, "Product name announced in the hello")
	fs.StringVar(&cfg.ProductVersion, "product-version", cfg.ProductVersion, "Product version announced in the hello")

	// ── timing ───────────────────────────────────────────────────
	fs.DurationVarP(&cfg.Wait, "wait", "w", cfg.Wait, "How long to wait for discovery answers")
	fs.DurationVarP(&cfg.Timeout, "timeout", "t", cfg.Timeout, "Handshake and reply timeout (0 waits forever)")
	fs.DurationVar(&cfg.UpdateInterval, "update-interval", cfg.UpdateInterval, "Reply polling interval")
	fs.IntVar(&cfg.Retries, "retries", cfg.Retries, "Extra connect attempts after a network failure")

	// ── SSH tunnel ───────────────────────────────────────────────
	fs.StringVarP(&cfg.TunnelSpec, "tunnel", "T", cfg.TunnelSpec, "SSH tunnel via [user@]host[:port]")
	fs.StringVar(&cfg.SSHKeyPath, "ssh-key", cfg.SSHKeyPath, "SSH private key file")
	fs.BoolVar(&cfg.SSHPassword, "ssh-password", cfg.SSHPassword, "Prompt for SSH password")
	fs.BoolVar(&cfg.UseSSHAgent, "ssh-agent", cfg.UseSSHAgent, "Use SSH agent")
	fs.BoolVar(&cfg.StrictHostKey, "strict-hostkey", cfg.StrictHostKey, "Verify SSH host keys")
	fs.StringVar(&cfg.KnownHostsPath, "known-hosts", cfg.KnownHostsPath, "Custom known_hosts path")
	fs.IntVar(&cfg.KeepAlive, "keep-alive", cfg.KeepAlive, "SSH keepalive interval in seconds (0 disables)")

	// ── output ───────────────────────────────────────────────────
	envVerbose := cfg.Verbose
	fs.CountVarP(&cfg.Verbose, "verbose", "v", "Increase verbosity (repeatable)")
	fs.BoolVar(&cfg.Stats, "stats", cfg.Stats, "Print session counters as JSON on exit")

	var configFile string
	var showVersion, showHelp, printConfig, dryRun bool
	fs.StringVar(&configFile, "config", "", "Config file (TOML, YAML or JSON)")
	fs.BoolVar(&printConfig, "print-config", false, "Print the effective configuration as TOML and exit")
	fs.BoolVar(&dryRun, "dry-run", false, "Validate the configuration and exit")
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")
	fs.BoolVarP(&showHelp, "help", "h", false, "Show this help")

	fs.Usage = func() { printUsage(stderr, fs) }

	// ── parse ────────────────────────────────────────────────────
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg.Verbose += envVerbose

	if showHelp || len(args) == 0 {
		printUsage(stderr, fs)
		return nil
	}
	if showVersion {
		fmt.Fprintf(stdout, "trimctl %s\n", version)
		return nil
	}

	if cfg.ProductVersion == "" {
		cfg.ProductVersion = version
	}
	if err := cfg.ApplyTunnelSpec(); err != nil {
		return err
	}

	if printConfig {
		data, err := config.Marshal(cfg)
		if err != nil {
			return err
		}
		_, err = stdout.Write(data)
		return err
	}

	// ── positional arguments ─────────────────────────────────────
	cfg.Command, cfg.Args, err = config.ParseCommand(fs.Args())
	if err != nil {
		return err
	}

	// ── validate ─────────────────────────────────────────────────
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := util.NewLogger(cfg.Verbose)
	if used != "" {
		logger.Verbose("config file %s", used)
	}

	if dryRun {
		target := cfg.Host
		if target == "" {
			target = "first discovered server"
		}
		fmt.Fprintf(stderr, "trimctl: configuration OK (%s %s → %s port %d)\n",
			cfg.Command, strings.Join(cfg.Args, " "), target, cfg.Port)
		return nil
	}

	// ── run ──────────────────────────────────────────────────────
	m := metrics.New()
	mode, err := core.Build(cfg, logger, m)
	if err != nil {
		return err
	}
	err = mode.Run(ctx)

	if cfg.Stats {
		fmt.Fprintln(stderr, m.JSON())
	}
	return err
}

// ── helpers ──────────────────────────────────────────────────────────

// configPath finds --config ahead of the full parse so the file can
// seed flag defaults.
func configPath(args []string) string {
	for i, arg := range args {
		if arg == "--" {
			break
		}
		if v, ok := strings.CutPrefix(arg, "--config="); ok {
			return v
		}
		if arg == "--config" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func printUsage(w io.Writer, fs *flag.FlagSet) {
	fmt.Fprintf(w, `trimctl – Trimmer remote-control client v%s

Discovers Trimmer servers on the local network and sends them commands.

Usage:
  trimctl [options] find                      List servers on the network
  trimctl [options] ping                      Check that a server answers
  trimctl [options] get <path>                Read an option value
  trimctl [options] set <path> <value>        Change an option value
  trimctl [options] raw <name> [args...]      Send any command
  trimctl [options] shell                     Interactive session

Options:
`, version)
	fs.PrintDefaults()
	fmt.Fprintf(w, `
Examples:
  trimctl find                                Broadcast a probe, list answers
  trimctl ping                                Ping the first server found
  trimctl -H 192.168.1.20 get /audio/volume   Query one server
  trimctl -T pi@gateway -H 10.0.0.8 shell     Control a server behind SSH
  echo "GET /debug" | trimctl -H kiosk shell  Pipe commands
`)
}
