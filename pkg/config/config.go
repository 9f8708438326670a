// Package config loads the YAML server configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// StorageEndpoint is a pre-configured data-plane endpoint candidate
// offered to transfer negotiation.
type StorageEndpoint struct {
	URL            string `yaml:"url"`
	Protocol       string `yaml:"protocol"`
	SecurityMethod string `yaml:"security_method,omitempty"`
}

// Storage configures the local storage backend.
type Storage struct {
	RootDir   string            `yaml:"root_dir"`
	Endpoints []StorageEndpoint `yaml:"endpoints"`
}

// Log configures the logger.
type Log struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Config is the server configuration.
type Config struct {
	SpaceName      string  `yaml:"space_name"`
	ListenAddr     string  `yaml:"listen_addr"`
	DataDir        string  `yaml:"data_dir"`
	Log            Log     `yaml:"log"`
	Storage        Storage `yaml:"storage"`
	DirectoryLimit int     `yaml:"directory_limit"`
	AbortGraceSecs int     `yaml:"abort_grace_seconds"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		SpaceName:      "icrar.org",
		ListenAddr:     ":8080",
		DataDir:        "/var/lib/vospace",
		Log:            Log{Level: "info"},
		Storage:        Storage{RootDir: "/var/lib/vospace/data"},
		DirectoryLimit: 1000,
		AbortGraceSecs: 10,
	}
}

// Load reads the configuration file at path, applying defaults for
// unset fields. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks invariants the server relies on.
func (c *Config) Validate() error {
	if c.SpaceName == "" {
		return fmt.Errorf("space_name must not be empty")
	}
	if c.DirectoryLimit <= 0 {
		return fmt.Errorf("directory_limit must be positive")
	}
	if c.AbortGraceSecs <= 0 {
		return fmt.Errorf("abort_grace_seconds must be positive")
	}
	return nil
}

// AbortGrace returns the bounded grace period given to the backend on
// job abort.
func (c *Config) AbortGrace() time.Duration {
	return time.Duration(c.AbortGraceSecs) * time.Second
}
