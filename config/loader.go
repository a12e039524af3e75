// Copyright 2025 The Doublecheck Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// FileEnv names the environment variable pointing at a config file.
	FileEnv = "DOUBLECHECK_CONFIG"
	// DefaultFile is the config file looked up in the working directory.
	DefaultFile = "doublecheck.yaml"
)

// Loader loads configuration with layered precedence: defaults, then the
// config file, then environment variables.
type Loader struct {
	logger *slog.Logger
}

// NewLoader creates a new configuration loader.
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{logger: logger}
}

// Load resolves the effective configuration. A missing config file is not
// an error; defaults plus environment variables apply.
func (l *Loader) Load() (*Config, error) {
	cfg := Default()

	path := os.Getenv(FileEnv)
	explicit := path != ""
	if path == "" {
		path = DefaultFile
	}

	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
		l.logger.Debug("loaded config file", slog.String("path", path))
	} else if explicit || !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	} else {
		l.logger.Debug("no config file found, using defaults", slog.String("path", path))
	}

	l.applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays environment variables onto the config. Environment
// always wins over the file.
func (l *Loader) applyEnv(cfg *Config) {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	setString("DOUBLECHECK_MODEL_ENDPOINT", &cfg.Model.Endpoint)
	setString("DOUBLECHECK_API_KEY", &cfg.Model.APIKey)
	setString("DOUBLECHECK_GUARD_MODEL", &cfg.Model.Guard)
	setString("DOUBLECHECK_GENERATOR_MODEL", &cfg.Model.Generator)
	setString("DOUBLECHECK_EVALUATOR_MODEL", &cfg.Model.Evaluator)
	setString("DOUBLECHECK_STORAGE_DSN", &cfg.Storage.DSN)

	if cfg.Model.APIKey == "" {
		cfg.Model.APIKey = os.Getenv("OPENAI_API_KEY")
	}

	if v := os.Getenv("DOUBLECHECK_MODEL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Model.Timeout = Duration(d)
		} else {
			l.logger.Warn("ignoring invalid model timeout", slog.String("value", v))
		}
	}

	agents := []struct {
		prefix string
		agent  *AgentConfig
	}{
		{"DOUBLECHECK_MANAGER", &cfg.Manager},
		{"DOUBLECHECK_SAFEGUARD", &cfg.Safeguard},
		{"DOUBLECHECK_PROCESSOR", &cfg.Processor},
		{"DOUBLECHECK_CRITIC", &cfg.Critic},
	}
	for _, a := range agents {
		setString(a.prefix+"_HOST", &a.agent.Host)
		if v := os.Getenv(a.prefix + "_PORT"); v != "" {
			if port, err := strconv.Atoi(v); err == nil {
				a.agent.Port = port
			} else {
				l.logger.Warn("ignoring invalid port", slog.String("variable", a.prefix+"_PORT"), slog.String("value", v))
			}
		}
	}
}
