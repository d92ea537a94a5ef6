package config

// loader.go - configuration loading from files and environment variables.
//
// Precedence order (highest wins):
//   1. CLI flags  (handled by cmd/root.go)
//   2. Environment variables  (LoadFromEnv)
//   3. Config file  (LoadFile)
//   4. Defaults   (defaults.go)

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

// ── Config file ──────────────────────────────────────────────────────

const (
	configDir  = "trimctl"
	configName = "config"
)

// Keys shared by the config file and the TOML dump.
const (
	keyHost           = "host"
	keyPort           = "port"
	keyClientHello    = "client_hello"
	keyServerHello    = "server_hello"
	keyBroadcast      = "broadcast"
	keyProduct        = "product"
	keyProductVersion = "product_version"
	keyUpdateInterval = "update_interval"
	keyWait           = "wait"
	keyTimeout        = "timeout"
	keyRetries        = "retries"
	keyTunnel         = "tunnel.spec"
	keySSHKey         = "tunnel.key"
	keySSHAgent       = "tunnel.agent"
	keyStrictHostKey  = "tunnel.strict_hostkey"
	keyKnownHosts     = "tunnel.known_hosts"
	keyKeepAlive      = "tunnel.keep_alive"
	keyVerbose        = "verbose"
)

// LoadFile overlays a config file onto cfg.  An explicit path must
// exist; with an empty path the user config directory is searched and
// a missing file is not an error.  TOML, YAML and JSON are accepted.
func LoadFile(cfg *Config, path string) (string, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		dir, err := os.UserConfigDir()
		if err != nil {
			return "", nil
		}
		v.SetConfigName(configName)
		v.AddConfigPath(filepath.Join(dir, configDir))
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path == "" && errors.As(err, &notFound) {
			return "", nil
		}
		return "", fmt.Errorf("read config file: %w", err)
	}

	applyViper(cfg, v)
	return v.ConfigFileUsed(), nil
}

func applyViper(cfg *Config, v *viper.Viper) {
	if v.IsSet(keyHost) {
		cfg.Host = v.GetString(keyHost)
	}
	if v.IsSet(keyPort) {
		cfg.Port = v.GetInt(keyPort)
	}
	if v.IsSet(keyClientHello) {
		cfg.ClientHello = v.GetString(keyClientHello)
	}
	if v.IsSet(keyServerHello) {
		cfg.ServerHello = v.GetString(keyServerHello)
	}
	if v.IsSet(keyBroadcast) {
		cfg.Broadcast = v.GetString(keyBroadcast)
	}
	if v.IsSet(keyProduct) {
		cfg.Product = v.GetString(keyProduct)
	}
	if v.IsSet(keyProductVersion) {
		cfg.ProductVersion = v.GetString(keyProductVersion)
	}
	if v.IsSet(keyUpdateInterval) {
		cfg.UpdateInterval = v.GetDuration(keyUpdateInterval)
	}
	if v.IsSet(keyWait) {
		cfg.Wait = v.GetDuration(keyWait)
	}
	if v.IsSet(keyTimeout) {
		cfg.Timeout = v.GetDuration(keyTimeout)
	}
	if v.IsSet(keyRetries) {
		cfg.Retries = v.GetInt(keyRetries)
	}
	if v.IsSet(keyTunnel) {
		cfg.TunnelSpec = v.GetString(keyTunnel)
	}
	if v.IsSet(keySSHKey) {
		cfg.SSHKeyPath = v.GetString(keySSHKey)
	}
	if v.IsSet(keySSHAgent) {
		cfg.UseSSHAgent = v.GetBool(keySSHAgent)
	}
	if v.IsSet(keyStrictHostKey) {
		cfg.StrictHostKey = v.GetBool(keyStrictHostKey)
	}
	if v.IsSet(keyKnownHosts) {
		cfg.KnownHostsPath = v.GetString(keyKnownHosts)
	}
	if v.IsSet(keyKeepAlive) {
		cfg.KeepAlive = v.GetInt(keyKeepAlive)
	}
	if v.IsSet(keyVerbose) {
		cfg.Verbose = v.GetInt(keyVerbose)
	}
}

// ── TOML dump ────────────────────────────────────────────────────────

type fileSchema struct {
	Host           string       `toml:"host,omitempty"`
	Port           int          `toml:"port"`
	ClientHello    string       `toml:"client_hello"`
	ServerHello    string       `toml:"server_hello"`
	Broadcast      string       `toml:"broadcast"`
	Product        string       `toml:"product"`
	ProductVersion string       `toml:"product_version,omitempty"`
	UpdateInterval string       `toml:"update_interval"`
	Wait           string       `toml:"wait"`
	Timeout        string       `toml:"timeout"`
	Retries        int          `toml:"retries"`
	Verbose        int          `toml:"verbose,omitempty"`
	Tunnel         *tunnelTable `toml:"tunnel,omitempty"`
}

type tunnelTable struct {
	Spec          string `toml:"spec"`
	Key           string `toml:"key,omitempty"`
	Agent         bool   `toml:"agent,omitempty"`
	StrictHostKey bool   `toml:"strict_hostkey,omitempty"`
	KnownHosts    string `toml:"known_hosts,omitempty"`
	KeepAlive     int    `toml:"keep_alive"`
}

// Marshal renders cfg as a TOML document that LoadFile reads back.
func Marshal(cfg *Config) ([]byte, error) {
	file := fileSchema{
		Host:           cfg.Host,
		Port:           cfg.Port,
		ClientHello:    cfg.ClientHello,
		ServerHello:    cfg.ServerHello,
		Broadcast:      cfg.Broadcast,
		Product:        cfg.Product,
		ProductVersion: cfg.ProductVersion,
		UpdateInterval: cfg.UpdateInterval.String(),
		Wait:           cfg.Wait.String(),
		Timeout:        cfg.Timeout.String(),
		Retries:        cfg.Retries,
		Verbose:        cfg.Verbose,
	}
	if cfg.TunnelSpec != "" {
		file.Tunnel = &tunnelTable{
			Spec:          cfg.TunnelSpec,
			Key:           cfg.SSHKeyPath,
			Agent:         cfg.UseSSHAgent,
			StrictHostKey: cfg.StrictHostKey,
			KnownHosts:    cfg.KnownHostsPath,
			KeepAlive:     cfg.KeepAlive,
		}
	}
	data, err := toml.Marshal(file)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return data, nil
}

// ── Environment variable mapping ─────────────────────────────────────
//
// Every supported env var uses the TRIM_ prefix.  Boolean values
// accept "1", "true", "yes" (case-insensitive).  Durations accept Go
// syntax ("500ms") or whole seconds.

// LoadFromEnv overlays environment variables onto cfg.  Only non-empty
// env vars override the existing value.  This should be called BEFORE
// CLI flag parsing so that flags take precedence.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("TRIM_HOST"); v != "" {
		cfg.Host = v
	}
	if v := envInt("TRIM_PORT"); v > 0 {
		cfg.Port = v
	}
	if v := os.Getenv("TRIM_CLIENT_HELLO"); v != "" {
		cfg.ClientHello = v
	}
	if v := os.Getenv("TRIM_SERVER_HELLO"); v != "" {
		cfg.ServerHello = v
	}
	if v := os.Getenv("TRIM_BROADCAST"); v != "" {
		cfg.Broadcast = v
	}
	if v := os.Getenv("TRIM_PRODUCT"); v != "" {
		cfg.Product = v
	}
	if v := os.Getenv("TRIM_PRODUCT_VERSION"); v != "" {
		cfg.ProductVersion = v
	}
	if v := envDuration("TRIM_WAIT"); v > 0 {
		cfg.Wait = v
	}
	if v := envDuration("TRIM_TIMEOUT"); v > 0 {
		cfg.Timeout = v
	}
	if v := envDuration("TRIM_UPDATE_INTERVAL"); v > 0 {
		cfg.UpdateInterval = v
	}
	if v := os.Getenv("TRIM_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Retries = n
		}
	}

	// SSH tunnel
	if v := os.Getenv("TRIM_TUNNEL"); v != "" {
		cfg.TunnelSpec = v
	}
	if v := os.Getenv("TRIM_SSH_KEY"); v != "" {
		cfg.SSHKeyPath = v
	}
	if envBool("TRIM_SSH_PASSWORD") {
		cfg.SSHPassword = true
	}
	if envBool("TRIM_SSH_AGENT") {
		cfg.UseSSHAgent = true
	}
	if envBool("TRIM_STRICT_HOSTKEY") {
		cfg.StrictHostKey = true
	}
	if v := os.Getenv("TRIM_KNOWN_HOSTS"); v != "" {
		cfg.KnownHostsPath = v
	}
	if v := envInt("TRIM_KEEP_ALIVE"); v > 0 {
		cfg.KeepAlive = v
	}

	// Output
	if v := envInt("TRIM_VERBOSE"); v > 0 {
		cfg.Verbose = v
	}
	if envBool("TRIM_STATS") {
		cfg.Stats = true
	}
}

// ── helpers ──────────────────────────────────────────────────────────

func envInt(key string) int {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func envBool(key string) bool {
	v := strings.ToLower(os.Getenv(key))
	return v == "1" || v == "true" || v == "yes"
}

func envDuration(key string) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return 0
}
