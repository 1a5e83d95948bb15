package client

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the CLI configuration stored at ~/.phost/config.yaml.
type Config struct {
	APIServerURL    string `yaml:"api_server_url"`
	HostingBaseURL  string `yaml:"hosting_base_url"`
	HostingProtocol string `yaml:"hosting_protocol"`
	APIKey          string `yaml:"api_key,omitempty"`
	Username        string `yaml:"username,omitempty"`
	Password        string `yaml:"password,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		APIServerURL:    "http://localhost:8080",
		HostingBaseURL:  "localhost",
		HostingProtocol: "https",
	}
}

func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".phost", "config.yaml"), nil
}

// LoadConfig reads path, writing the default configuration there first if
// the file does not exist yet.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg := DefaultConfig()
		if err := SaveConfig(path, cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

func SaveConfig(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
