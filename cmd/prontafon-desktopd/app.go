package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/pelidan/prontafon/internal/config"
)

// loadConfig loads the config from path, or falls back to the default
// config path, or uses built-in defaults. On first run, it writes a
// default config file, matching the teacher's loadConfig helper.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := config.Load(defaultPath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		return cfg, nil
	}

	if created, err := config.WriteDefault(); err != nil {
		slog.Warn("could not write default config", "error", err)
	} else if created != "" {
		slog.Info("created default config", "path", created)
	}

	return config.Default(), nil
}

// setupLogging installs a text slog handler at the configured level,
// matching the teacher's cmd/gostt-writer/main.go setup.
func setupLogging(cfg *config.Config) *slog.Logger {
	level := config.ParseLogLevel(cfg.LogLevel)
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
