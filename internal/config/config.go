// Package config loads and validates prontafon-desktopd's YAML
// configuration, following the teacher's default-then-override Load,
// Validate, and first-run WriteDefault pattern.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	BLE      BLEConfig     `yaml:"ble"`
	Pairing  PairingConfig `yaml:"pairing"`
	Inject   InjectConfig  `yaml:"inject"`
	Storage  StorageConfig `yaml:"storage"`
	LogLevel string        `yaml:"log_level"`
}

// BLEConfig holds the GATT peripheral's advertised name and
// characteristic UUIDs (spec.md section 5).
type BLEConfig struct {
	LocalName      string `yaml:"local_name"`
	ServiceUUID    string `yaml:"service_uuid"`
	CommandRXUUID  string `yaml:"command_rx_uuid"`
	ResponseTXUUID string `yaml:"response_tx_uuid"`
	StatusUUID     string `yaml:"status_uuid"`
	MTUInfoUUID    string `yaml:"mtu_info_uuid"`
}

// PairingConfig holds pairing/session tuning (spec.md section 4.4).
type PairingConfig struct {
	// ReplayCacheSize is checked by Validate but not passed to the
	// server; the pairing machine's replay cache is fixed at 128 entries.
	ReplayCacheSize int `yaml:"replay_cache_size"`
}

// InjectConfig holds text injection settings.
type InjectConfig struct {
	Method string `yaml:"method"` // "type" (only adapter carried from the teacher)
}

// StorageConfig holds the on-disk locations of the trusted-device and
// command-phrase stores (spec.md section 6.2/6.3).
type StorageConfig struct {
	DataDir string `yaml:"data_dir"`
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "prontafon-desktopd")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// DefaultDataDir returns the default data directory for the trusted
// device and command stores.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".local", "share", "prontafon-desktopd")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		BLE: BLEConfig{
			LocalName:      "Prontafon",
			ServiceUUID:    "5d3f1000-4a2b-4e7c-9d8a-1f2e3c4b5a60",
			CommandRXUUID:  "5d3f1001-4a2b-4e7c-9d8a-1f2e3c4b5a60",
			ResponseTXUUID: "5d3f1002-4a2b-4e7c-9d8a-1f2e3c4b5a60",
			StatusUUID:     "5d3f1003-4a2b-4e7c-9d8a-1f2e3c4b5a60",
			MTUInfoUUID:    "5d3f1004-4a2b-4e7c-9d8a-1f2e3c4b5a60",
		},
		Pairing: PairingConfig{
			ReplayCacheSize: 128,
		},
		Inject: InjectConfig{
			Method: "type",
		},
		Storage: StorageConfig{
			DataDir: DefaultDataDir(),
		},
		LogLevel: "info",
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults. Tilde (~) in paths is expanded to the user's home
// directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.Storage.DataDir = expandTilde(cfg.Storage.DataDir)

	return cfg, nil
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if c.BLE.LocalName == "" {
		return fmt.Errorf("ble.local_name must not be empty")
	}
	for name, id := range map[string]string{
		"service_uuid":     c.BLE.ServiceUUID,
		"command_rx_uuid":  c.BLE.CommandRXUUID,
		"response_tx_uuid": c.BLE.ResponseTXUUID,
		"status_uuid":      c.BLE.StatusUUID,
		"mtu_info_uuid":    c.BLE.MTUInfoUUID,
	} {
		if id == "" {
			return fmt.Errorf("ble.%s must not be empty", name)
		}
	}

	if c.Pairing.ReplayCacheSize <= 0 {
		return fmt.Errorf("pairing.replay_cache_size must be > 0")
	}

	switch c.Inject.Method {
	case "type":
	default:
		return fmt.Errorf("inject.method must be \"type\", got %q", c.Inject.Method)
	}

	if c.Storage.DataDir == "" {
		return fmt.Errorf("storage.data_dir must not be empty")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	return nil
}

// WriteDefault creates the default config file with documented
// defaults. It creates the parent directory if needed. Returns the
// path written to. If the file already exists, it returns ("", nil)
// without overwriting.
func WriteDefault() (string, error) {
	path := DefaultConfigPath()
	if _, err := os.Stat(path); err == nil {
		return "", nil // already exists
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating config dir %s: %w", dir, err)
	}

	data, err := yaml.Marshal(Default())
	if err != nil {
		return "", fmt.Errorf("marshaling default config: %w", err)
	}

	header := "# prontafon-desktopd configuration\n\n"
	if err := os.WriteFile(path, []byte(header+string(data)), 0644); err != nil {
		return "", fmt.Errorf("writing config file: %w", err)
	}

	return path, nil
}

// ParseLogLevel converts a log level string to a slog.Level.
func ParseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default: // "info"
		return slog.LevelInfo
	}
}
