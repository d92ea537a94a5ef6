package config

import (
	"strings"
	"testing"

	tcerr "trimctl/internal/errors"
)

// TestValidate_ErrorMessages verifies that Validate returns actionable
// error messages with hints.
func TestValidate_ErrorMessages(t *testing.T) {
	tests := []struct {
		name    string
		mut     func(c *Config)
		wantSub string // substring expected in error
	}{
		{"bad port has hint", func(c *Config) { c.Port = 99999 }, "hint:"},
		{"bad port names flag", func(c *Config) { c.Port = 99999 }, "--port=99999"},
		{"empty token has hint", func(c *Config) { c.ServerHello = "" }, "hint:"},
		{"tunnel needs host", func(c *Config) { c.TunnelEnabled, c.TunnelHost = true, "gw" }, "discovery broadcasts"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Command = CmdGet
			tt.mut(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			var ce *tcerr.ConfigError
			if !tcerr.As(err, &ce) {
				t.Errorf("error %T should be a ConfigError", err)
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("error %q should contain %q", err.Error(), tt.wantSub)
			}
		})
	}
}
