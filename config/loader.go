package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// PathFromEnv returns the config path set in SOFTMINE_CONFIG, or def.
func PathFromEnv(def string) string {
	if path := os.Getenv(EnvPrefix + "CONFIG"); path != "" {
		return path
	}
	return def
}

// LoadConfig reads a configuration file and unmarshals it into the specified type.
// Files ending in .toml are parsed as TOML, everything else as YAML.
func LoadConfig[T any](path string) (*T, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg T
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	return &cfg, nil
}

// LoadServerConfig reads a server configuration file, applies defaults and
// validates the result.
func LoadServerConfig(path string) (*Server, error) {
	logger := log.With().Str("com", "config-loader").Logger()

	cfg, err := LoadConfig[Server](path)
	if err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid server config: %w", err)
	}

	logger.Info().
		Str("name", cfg.Name).
		Bool("udp", cfg.Interfaces.UDP.Enabled).
		Bool("quic", cfg.Interfaces.Quic.Enabled).
		Int("tick_rate", cfg.TickRate).
		Msg("loaded server configuration")

	return cfg, nil
}
