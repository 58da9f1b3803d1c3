package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the gateway client configuration
type Config struct {
	// Gateway configuration
	GatewayURL string `mapstructure:"gateway_url"`

	// Target service configuration
	Provider   string `mapstructure:"provider"`
	ServiceURL string `mapstructure:"service_url"`
	PartialKey string `mapstructure:"partial_key"`
	ProjectID  string `mapstructure:"project_id"`

	// Transport configuration
	RequestTimeout time.Duration `mapstructure:"request_timeout"`

	// Secure store configuration
	StorePath string `mapstructure:"store_path"`

	// Logging configuration
	LogLevel string `mapstructure:"log_level"`
	LogFile  string `mapstructure:"log_file"`
}

// ServiceConfig identifies the target service a request is signed for.
// PartialKey is a non-secret routing fragment, useless without the
// server-held complement.
type ServiceConfig struct {
	Provider   string
	ServiceURL string
	PartialKey string
	ProjectID  string
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		GatewayURL:     "https://gateway.yourdomain.com",
		RequestTimeout: 30 * time.Second,
		StorePath:      "./aigw-store.db",
		LogLevel:       "info",
		LogFile:        "",
	}
}

// Load loads configuration from file and environment variables
func Load(configFile string) (*Config, error) {
	cfg := DefaultConfig()

	// Set up viper
	v := viper.New()

	// Set default values
	setDefaults(v, cfg)

	// Configure file locations
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/ai-gateway-client")

		// Add user config directory
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".ai-gateway-client"))
		}
	}

	// Environment variable configuration
	v.SetEnvPrefix("AIGW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read configuration file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults
	}

	// Unmarshal into struct
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// setDefaults sets default values in viper
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("gateway_url", cfg.GatewayURL)
	v.SetDefault("provider", cfg.Provider)
	v.SetDefault("service_url", cfg.ServiceURL)
	v.SetDefault("partial_key", cfg.PartialKey)
	v.SetDefault("project_id", cfg.ProjectID)
	v.SetDefault("request_timeout", cfg.RequestTimeout)
	v.SetDefault("store_path", cfg.StorePath)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("log_file", cfg.LogFile)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.GatewayURL == "" {
		return fmt.Errorf("gateway_url is required")
	}
	if _, err := url.ParseRequestURI(c.GatewayURL); err != nil {
		return fmt.Errorf("gateway_url is not a valid URL: %w", err)
	}

	if c.Provider == "" {
		return fmt.Errorf("provider is required")
	}

	if c.ServiceURL == "" {
		return fmt.Errorf("service_url is required")
	}
	if _, err := url.ParseRequestURI(c.ServiceURL); err != nil {
		return fmt.Errorf("service_url is not a valid URL: %w", err)
	}

	if c.PartialKey == "" {
		return fmt.Errorf("partial_key is required")
	}

	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive")
	}

	if c.StorePath == "" {
		return fmt.Errorf("store_path is required")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("log_level must be one of: debug, info, warn, error")
	}

	return nil
}

// Service returns the target service configuration for signing
func (c *Config) Service() ServiceConfig {
	return ServiceConfig{
		Provider:   c.Provider,
		ServiceURL: c.ServiceURL,
		PartialKey: c.PartialKey,
		ProjectID:  c.ProjectID,
	}
}
