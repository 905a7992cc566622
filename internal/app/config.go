// Package app wires storage, queue, transport, messaging, and
// connectivity together into the node's startup sequence and exposes
// the operations the UI is allowed to call.
package app

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/pure2p/pure2p/internal/perror"
)

// Config is the bootstrap configuration loaded before the store opens:
// where data lives and how verbose to log. Runtime-mutable preferences
// (retry interval) live in storage.Settings instead, since the UI can
// change them without a restart.
type Config struct {
	DataDir  string `yaml:"data_dir"`
	LogLevel string `yaml:"log_level"`
	Port     int    `yaml:"port,omitempty"`
}

// DefaultConfig returns the configuration used when no file exists yet.
func DefaultConfig() *Config {
	return &Config{
		DataDir:  "~/.pure2p",
		LogLevel: "info",
	}
}

// LoadConfig reads path, creating it with defaults if absent.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		cfg := DefaultConfig()
		if err := cfg.Save(path); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	if err != nil {
		return nil, perror.Wrap(perror.Storage, "read config file", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, perror.Wrap(perror.Storage, "parse config file", err)
	}
	return cfg, nil
}

// Save writes cfg to path as YAML, creating parent directories as needed.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return perror.Wrap(perror.Storage, "create config directory", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return perror.Wrap(perror.Storage, "marshal config", err)
	}

	header := []byte("# pure2p node configuration\n")
	if err := os.WriteFile(path, append(header, data...), 0600); err != nil {
		return perror.Wrap(perror.Storage, "write config file", err)
	}
	return nil
}

// ConfigPath returns the default config file path under dataDir.
func ConfigPath(dataDir string) string {
	return filepath.Join(expandPath(dataDir), "config.yaml")
}

func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}
