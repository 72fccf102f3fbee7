// Package config loads line server settings from an optional YAML file and
// LINESERVER_* environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const envPrefix = "LINESERVER_"

type Config struct {
	Port       int    `yaml:"port"`
	AdminAddr  string `yaml:"admin_addr"`  // empty disables the admin listener
	MaxClients int    `yaml:"max_clients"` // 0 means no cap
	LogLevel   string `yaml:"log_level"`   // debug, info, warn, error
	LogFormat  string `yaml:"log_format"`  // json or text
	Relay      bool   `yaml:"relay"`       // rebroadcast each line to the other clients
}

func Default() *Config {
	return &Config{
		Port:      5000,
		AdminAddr: ":9090",
		LogLevel:  "info",
		LogFormat: "json",
	}
}

// Load starts from Default, overlays the YAML file at path (skipped when path
// is empty) and then the environment, and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(envPrefix + "PORT"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sPORT: %w", envPrefix, err)
		}
		c.Port = n
	}
	if v, ok := lookup(envPrefix + "ADMIN_ADDR"); ok {
		c.AdminAddr = v
	}
	if v, ok := lookup(envPrefix + "MAX_CLIENTS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sMAX_CLIENTS: %w", envPrefix, err)
		}
		c.MaxClients = n
	}
	if v, ok := lookup(envPrefix + "LOG_LEVEL"); ok {
		c.LogLevel = v
	}
	if v, ok := lookup(envPrefix + "LOG_FORMAT"); ok {
		c.LogFormat = v
	}
	if v, ok := lookup(envPrefix + "RELAY"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sRELAY: %w", envPrefix, err)
		}
		c.Relay = b
	}
	return nil
}

// Validate rejects values the server cannot run with.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.MaxClients < 0 {
		return fmt.Errorf("max_clients must not be negative (got %d)", c.MaxClients)
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unsupported log_level: %s (supported: debug, info, warn, error)", c.LogLevel)
	}
	switch strings.ToLower(c.LogFormat) {
	case "json", "text":
	default:
		return fmt.Errorf("unsupported log_format: %s (supported: json, text)", c.LogFormat)
	}
	return nil
}
