package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadFromEnv_Server(t *testing.T) {
	t.Setenv("TRIM_HOST", "192.168.1.40")
	t.Setenv("TRIM_PORT", "21077")
	t.Setenv("TRIM_CLIENT_HELLO", "TRIM {0}")
	t.Setenv("TRIM_SERVER_HELLO", "TRAMX")
	t.Setenv("TRIM_BROADCAST", "192.168.1.255")

	cfg := Default()
	LoadFromEnv(cfg)

	if cfg.Host != "192.168.1.40" {
		t.Errorf("Host = %q", cfg.Host)
	}
	if cfg.Port != 21077 {
		t.Errorf("Port = %d, want 21077", cfg.Port)
	}
	if cfg.ClientHello != "TRIM {0}" || cfg.ServerHello != "TRAMX" {
		t.Errorf("hellos = %q / %q", cfg.ClientHello, cfg.ServerHello)
	}
	if cfg.Broadcast != "192.168.1.255" {
		t.Errorf("Broadcast = %q", cfg.Broadcast)
	}
}

func TestLoadFromEnv_Durations(t *testing.T) {
	t.Setenv("TRIM_WAIT", "500ms")
	t.Setenv("TRIM_TIMEOUT", "3")
	t.Setenv("TRIM_UPDATE_INTERVAL", "bogus")

	cfg := Default()
	LoadFromEnv(cfg)

	if cfg.Wait != 500*time.Millisecond {
		t.Errorf("Wait = %v, want 500ms", cfg.Wait)
	}
	if cfg.Timeout != 3*time.Second {
		t.Errorf("Timeout = %v, want 3s", cfg.Timeout)
	}
	if cfg.UpdateInterval != DefaultUpdateInterval {
		t.Errorf("UpdateInterval = %v, invalid input should be ignored", cfg.UpdateInterval)
	}
}

func TestLoadFromEnv_Booleans(t *testing.T) {
	for _, v := range []string{"1", "true", "yes", "TRUE", "Yes"} {
		t.Run(v, func(t *testing.T) {
			t.Setenv("TRIM_SSH_AGENT", v)
			t.Setenv("TRIM_STATS", v)
			cfg := &Config{}
			LoadFromEnv(cfg)
			if !cfg.UseSSHAgent {
				t.Error("UseSSHAgent should be true")
			}
			if !cfg.Stats {
				t.Error("Stats should be true")
			}
		})
	}
}

func TestLoadFromEnv_SSHFields(t *testing.T) {
	t.Setenv("TRIM_TUNNEL", "admin@gateway:2222")
	t.Setenv("TRIM_SSH_KEY", "/home/user/.ssh/id_ed25519")
	t.Setenv("TRIM_SSH_PASSWORD", "true")
	t.Setenv("TRIM_STRICT_HOSTKEY", "yes")
	t.Setenv("TRIM_KNOWN_HOSTS", "/custom/known_hosts")
	t.Setenv("TRIM_KEEP_ALIVE", "60")

	cfg := &Config{}
	LoadFromEnv(cfg)

	if cfg.TunnelSpec != "admin@gateway:2222" {
		t.Errorf("TunnelSpec = %q", cfg.TunnelSpec)
	}
	if cfg.SSHKeyPath != "/home/user/.ssh/id_ed25519" {
		t.Errorf("SSHKeyPath = %q", cfg.SSHKeyPath)
	}
	if !cfg.SSHPassword || !cfg.StrictHostKey {
		t.Error("SSHPassword and StrictHostKey should be true")
	}
	if cfg.KnownHostsPath != "/custom/known_hosts" {
		t.Errorf("KnownHostsPath = %q", cfg.KnownHostsPath)
	}
	if cfg.KeepAlive != 60 {
		t.Errorf("KeepAlive = %d", cfg.KeepAlive)
	}
}

func TestLoadFromEnv_NoOverrideWhenEmpty(t *testing.T) {
	// Ensure no TRIM_ vars are set.
	os.Clearenv()

	cfg := &Config{Host: "original", Port: 1234, Retries: 5}
	LoadFromEnv(cfg)

	if cfg.Host != "original" {
		t.Errorf("Host was overridden: %q", cfg.Host)
	}
	if cfg.Port != 1234 {
		t.Errorf("Port was overridden: %d", cfg.Port)
	}
	if cfg.Retries != 5 {
		t.Errorf("Retries was overridden: %d", cfg.Retries)
	}
}

func TestLoadFromEnv_InvalidIntIgnored(t *testing.T) {
	t.Setenv("TRIM_PORT", "not-a-number")
	cfg := &Config{Port: DefaultPort}
	LoadFromEnv(cfg)
	if cfg.Port != DefaultPort {
		t.Errorf("Port should be unchanged for invalid input, got %d", cfg.Port)
	}
}

func TestLoadFromEnv_RetriesZero(t *testing.T) {
	t.Setenv("TRIM_RETRIES", "0")
	cfg := Default()
	LoadFromEnv(cfg)
	if cfg.Retries != 0 {
		t.Errorf("Retries = %d, want 0", cfg.Retries)
	}
}

// ── config file ──────────────────────────────────────────────────────

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFile_TOML(t *testing.T) {
	path := writeFile(t, "trimctl.toml", `
host = "10.1.2.3"
port = 21080
server_hello = "TRAM2"
wait = "750ms"
retries = 4

[tunnel]
spec = "ops@gw"
agent = true
keep_alive = 15
`)

	cfg := Default()
	used, err := LoadFile(cfg, path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if used != path {
		t.Errorf("used = %q, want %q", used, path)
	}
	if cfg.Host != "10.1.2.3" || cfg.Port != 21080 || cfg.ServerHello != "TRAM2" {
		t.Errorf("server fields not loaded: %+v", cfg)
	}
	if cfg.Wait != 750*time.Millisecond || cfg.Retries != 4 {
		t.Errorf("Wait = %v, Retries = %d", cfg.Wait, cfg.Retries)
	}
	if cfg.TunnelSpec != "ops@gw" || !cfg.UseSSHAgent || cfg.KeepAlive != 15 {
		t.Errorf("tunnel fields not loaded: %+v", cfg)
	}
	if cfg.ClientHello != DefaultClientHello {
		t.Errorf("unset key overrode default: %q", cfg.ClientHello)
	}
}

func TestLoadFile_YAML(t *testing.T) {
	path := writeFile(t, "trimctl.yaml", "port: 30000\nproduct: kiosk\n")
	cfg := Default()
	if _, err := LoadFile(cfg, path); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Port != 30000 || cfg.Product != "kiosk" {
		t.Errorf("got port=%d product=%q", cfg.Port, cfg.Product)
	}
}

func TestLoadFile_MissingExplicit(t *testing.T) {
	cfg := Default()
	if _, err := LoadFile(cfg, filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Error("expected error for missing explicit config file")
	}
}

func TestLoadFile_MissingDefault(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	cfg := Default()
	used, err := LoadFile(cfg, "")
	if err != nil {
		t.Fatalf("missing default file should not fail: %v", err)
	}
	if used != "" {
		t.Errorf("used = %q, want empty", used)
	}
}

func TestMarshal_RoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Host = "10.0.0.9"
	cfg.ProductVersion = "2.1"
	cfg.TunnelSpec = "ops@gw:2222"
	cfg.KeepAlive = 20

	data, err := Marshal(cfg)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !strings.Contains(string(data), "server_hello") || !strings.Contains(string(data), "TRAM") {
		t.Errorf("dump missing server_hello:\n%s", data)
	}

	path := writeFile(t, "dump.toml", string(data))
	back := &Config{}
	if _, err := LoadFile(back, path); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if back.Host != cfg.Host || back.Port != cfg.Port || back.Timeout != cfg.Timeout ||
		back.TunnelSpec != cfg.TunnelSpec || back.KeepAlive != cfg.KeepAlive ||
		back.ProductVersion != cfg.ProductVersion {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", back, cfg)
	}
}
