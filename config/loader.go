package config

// loader.go - configuration loading from a YAML file and the environment.
//
// Precedence order (highest wins):
//   1. CLI flags  (handled by cmd/)
//   2. Environment variables, including a .env file  (LoadEnv)
//   3. YAML config file  (LoadFile)
//   4. Defaults   (defaults.go)

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Load builds a Config from defaults, the optional YAML file at path,
// and the environment.  dotenv names a .env file to read first; an
// empty dotenv only reads ./.env when it exists.
func Load(path, dotenv string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := LoadFile(cfg, path); err != nil {
			return nil, err
		}
	}
	if err := LoadEnv(cfg, dotenv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile overlays the YAML document at path onto cfg.  Unknown keys
// are rejected so typos do not silently fall back to defaults.
func LoadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		// A document holding only comments decodes as EOF.
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// ── Environment variable mapping ─────────────────────────────────────
//
// Every supported env var uses the IBCTL_ prefix and is declared by the
// `env` struct tags on Config.  Only variables that are set override the
// existing value.

// LoadEnv overlays IBCTL_* environment variables onto cfg, after
// loading dotenv (or ./.env) into the process environment.  Variables
// already present in the environment win over the .env file.
func LoadEnv(cfg *Config, dotenv string) error {
	switch {
	case dotenv != "":
		if err := godotenv.Load(dotenv); err != nil {
			return fmt.Errorf("load %s: %w", dotenv, err)
		}
	default:
		if _, err := os.Stat(".env"); err == nil {
			if err := godotenv.Load(); err != nil {
				return fmt.Errorf("load .env: %w", err)
			}
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: DefaultEnvPrefix}); err != nil {
		return fmt.Errorf("environment: %w", err)
	}
	return nil
}
