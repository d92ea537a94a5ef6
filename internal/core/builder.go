package core

import (
	"fmt"
	"time"

	"trimctl/client"
	"trimctl/config"
	"trimctl/internal/metrics"
	"trimctl/internal/transport"
	"trimctl/tunnel"
	"trimctl/util"
)

// Build constructs the Mode for cfg.Command.  The returned mode owns
// a fresh client that reports into m.
func Build(cfg *config.Config, logger *util.Logger, m *metrics.Collector) (Mode, error) {
	dialer := buildDialer(cfg, logger)
	c := client.New(client.Options{
		Port:          cfg.Port,
		HelloFormat:   cfg.ClientHello,
		ServerHello:   cfg.ServerHello,
		BroadcastAddr: cfg.Broadcast,
		Product:       cfg.Product,
		Version:       cfg.ProductVersion,
		Dialer:        dialer,
		Logger:        logger,
		Metrics:       m,
	})

	driver := Driver{
		Client:   c,
		Host:     cfg.Host,
		Wait:     cfg.Wait,
		Timeout:  cfg.Timeout,
		Interval: cfg.UpdateInterval,
		Retries:  cfg.Retries,
		Logger:   logger,
	}

	switch cfg.Command {
	case config.CmdFind:
		return &FindMode{Client: c, Wait: cfg.Wait, Logger: logger}, nil
	case config.CmdShell:
		return &ShellMode{Driver: driver, Dialer: dialer}, nil
	case config.CmdPing, config.CmdGet, config.CmdSet, config.CmdRaw:
		return &CommandMode{Driver: driver, Name: cfg.Command, Args: cfg.Args, Dialer: dialer}, nil
	default:
		dialer.Close()
		return nil, fmt.Errorf("unknown command %q", cfg.Command)
	}
}

// buildDialer creates the right transport.Dialer for the given config.
func buildDialer(cfg *config.Config, logger *util.Logger) transport.Dialer {
	if cfg.TunnelEnabled {
		var keepAlive time.Duration
		if cfg.KeepAlive > 0 {
			keepAlive = time.Duration(cfg.KeepAlive) * time.Second
		}
		return transport.NewSSHDialer(&tunnel.SSHConfig{
			User:          cfg.TunnelUser,
			Host:          cfg.TunnelHost,
			Port:          cfg.TunnelPort,
			KeyPath:       cfg.SSHKeyPath,
			PromptPass:    cfg.SSHPassword,
			UseAgent:      cfg.UseSSHAgent,
			StrictHostKey: cfg.StrictHostKey,
			KnownHosts:    cfg.KnownHostsPath,
			ConnTimeout:   cfg.Timeout,
			KeepAlive:     keepAlive,
		}, logger)
	}
	return &transport.TCPDialer{Timeout: cfg.Timeout}
}
