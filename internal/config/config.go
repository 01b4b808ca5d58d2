package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the full server configuration. Values are layered:
// defaults, then an optional YAML file, then environment variables.
type Config struct {
	Server struct {
		Addr          string `yaml:"addr"`
		DataDir       string `yaml:"dataDir"`
		PublicBaseURL string `yaml:"publicBaseURL"`
	} `yaml:"server"`

	Auth struct {
		APIKey string `yaml:"apiKey"`
	} `yaml:"auth"`

	Security struct {
		CORSOrigins []string `yaml:"corsOrigins"`
	} `yaml:"security"`
}

// Load builds the configuration. path may be empty, in which case no
// file is read and only defaults and the environment apply.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	cfg.Server.Addr = ":8080"
	cfg.Server.DataDir = "./data"

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnv(cfg)

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Server.DataDir = v
	}
	if v := os.Getenv("PUBLIC_BASE_URL"); v != "" {
		cfg.Server.PublicBaseURL = v
	}
	if v := os.Getenv("API_KEY"); v != "" {
		cfg.Auth.APIKey = v
	}
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		origins := strings.Split(v, ",")
		for i, o := range origins {
			origins[i] = strings.TrimSpace(o)
		}
		cfg.Security.CORSOrigins = origins
	}
}

// validateConfig checks required fields and creates the data directory.
// An empty API key is rejected here rather than silently producing a
// server no request can ever authenticate against.
func validateConfig(cfg *Config) error {
	if cfg.Auth.APIKey == "" {
		return errors.New("API key is required (set auth.apiKey or API_KEY)")
	}
	if cfg.Server.DataDir == "" {
		return errors.New("data directory is required")
	}
	if err := os.MkdirAll(cfg.Server.DataDir, 0755); err != nil {
		return fmt.Errorf("create data directory %s: %w", cfg.Server.DataDir, err)
	}
	cfg.Server.PublicBaseURL = strings.TrimRight(cfg.Server.PublicBaseURL, "/")
	return nil
}
