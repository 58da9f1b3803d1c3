package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Provider = "openai"
	cfg.ServiceURL = "https://api.openai.com/v1"
	cfg.PartialKey = "pk_1234"
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.RequestTimeout != 30*time.Second {
		t.Errorf("RequestTimeout = %v, want 30s", cfg.RequestTimeout)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
	if cfg.StorePath == "" {
		t.Error("StorePath must have a default")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"missing gateway URL", func(c *Config) { c.GatewayURL = "" }, true},
		{"unparsable gateway URL", func(c *Config) { c.GatewayURL = "not a url" }, true},
		{"missing provider", func(c *Config) { c.Provider = "" }, true},
		{"missing service URL", func(c *Config) { c.ServiceURL = "" }, true},
		{"unparsable service URL", func(c *Config) { c.ServiceURL = "::::" }, true},
		{"missing partial key", func(c *Config) { c.PartialKey = "" }, true},
		{"zero timeout", func(c *Config) { c.RequestTimeout = 0 }, true},
		{"missing store path", func(c *Config) { c.StorePath = "" }, true},
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
gateway_url: https://gw.example.com
provider: anthropic
service_url: https://api.anthropic.com/v1
partial_key: pk_file
project_id: proj_1
log_level: debug
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.GatewayURL != "https://gw.example.com" {
		t.Errorf("GatewayURL = %q", cfg.GatewayURL)
	}
	if cfg.Provider != "anthropic" {
		t.Errorf("Provider = %q", cfg.Provider)
	}
	if cfg.PartialKey != "pk_file" {
		t.Errorf("PartialKey = %q", cfg.PartialKey)
	}
	if cfg.ProjectID != "proj_1" {
		t.Errorf("ProjectID = %q", cfg.ProjectID)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q", cfg.LogLevel)
	}
	// Defaults fill unspecified fields
	if cfg.RequestTimeout != 30*time.Second {
		t.Errorf("RequestTimeout = %v, want default", cfg.RequestTimeout)
	}
}

func TestLoad_InvalidConfigRejected(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
gateway_url: https://gw.example.com
provider: ""
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	if _, err := Load(configPath); err == nil {
		t.Error("Load() expected validation error for incomplete config")
	}
}

func TestService(t *testing.T) {
	cfg := validConfig()
	cfg.ProjectID = "proj_9"

	svc := cfg.Service()
	if svc.Provider != "openai" || svc.ServiceURL != cfg.ServiceURL || svc.PartialKey != "pk_1234" || svc.ProjectID != "proj_9" {
		t.Errorf("Service() = %+v does not match config", svc)
	}
}
