// Copyright 2025 The Doublecheck Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for the doublecheck agents.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Endpoint is the path every agent exposes its protocol API on.
const Endpoint = "/a2a"

// Duration wraps time.Duration so YAML configs can use "2m" and "30s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// AgentConfig describes one agent service.
type AgentConfig struct {
	// Name is the agent's display name, served in its agent card.
	Name string `yaml:"name"`
	// Description is the agent's one-line description.
	Description string `yaml:"description"`
	// Host is the host the agent binds and is reached on.
	Host string `yaml:"host"`
	// Port is the agent's listen port.
	Port int `yaml:"port"`
}

// URL returns the agent's base URL.
func (a AgentConfig) URL() string {
	return fmt.Sprintf("http://%s:%d", a.Host, a.Port)
}

// A2AEndpoint returns the full URL of the agent's protocol API.
func (a AgentConfig) A2AEndpoint() string {
	return a.URL() + Endpoint
}

// ModelConfig configures the language model backend. All three agent roles
// share one OpenAI-compatible endpoint and select their model by name.
type ModelConfig struct {
	// Endpoint is the OpenAI-compatible API base URL.
	Endpoint string `yaml:"endpoint"`
	// APIKey authenticates against the endpoint. Usually supplied via the
	// DOUBLECHECK_API_KEY environment variable rather than the file.
	APIKey string `yaml:"api_key"`
	// Guard is the model used for query safety screening.
	Guard string `yaml:"guard"`
	// Generator is the model used to answer queries.
	Generator string `yaml:"generator"`
	// Evaluator is the model used to rate generated answers.
	Evaluator string `yaml:"evaluator"`
	// Temperature controls sampling randomness (0.0-1.0).
	Temperature float64 `yaml:"temperature"`
	// MaxTokens caps the completion length. Zero means provider default.
	MaxTokens int `yaml:"max_tokens"`
	// Timeout is the per-call deadline for model requests.
	Timeout Duration `yaml:"timeout"`
}

// StorageConfig selects the task store backing the agents. An empty DSN
// keeps tasks in memory for the process lifetime.
type StorageConfig struct {
	// DSN is the SQLite database path tasks are persisted to.
	DSN string `yaml:"dsn"`
	// Table overrides the task table name. Empty means "tasks".
	Table string `yaml:"table"`
}

// Config is the complete configuration for the four agent services.
type Config struct {
	Manager   AgentConfig   `yaml:"manager"`
	Safeguard AgentConfig   `yaml:"safeguard"`
	Processor AgentConfig   `yaml:"processor"`
	Critic    AgentConfig   `yaml:"critic"`
	Model     ModelConfig   `yaml:"model"`
	Storage   StorageConfig `yaml:"storage"`
}

// Default returns a Config with the standard local deployment layout.
func Default() *Config {
	return &Config{
		Manager: AgentConfig{
			Name:        "Manager Agent",
			Description: "Agent that coordinates the process flow between agents",
			Host:        "localhost",
			Port:        8001,
		},
		Safeguard: AgentConfig{
			Name:        "Safeguard Agent",
			Description: "Agent that checks user queries for vulnerabilities",
			Host:        "localhost",
			Port:        8002,
		},
		Processor: AgentConfig{
			Name:        "Processor Agent",
			Description: "Agent that processes user queries",
			Host:        "localhost",
			Port:        8003,
		},
		Critic: AgentConfig{
			Name:        "Critic Agent",
			Description: "Agent that evaluates responses",
			Host:        "localhost",
			Port:        8004,
		},
		Model: ModelConfig{
			Endpoint:    "http://localhost:11434/v1",
			Guard:       "llama-guard3:8b",
			Generator:   "gemma3:27b",
			Evaluator:   "qwen2.5:32b",
			Temperature: 0.2,
			Timeout:     Duration(2 * time.Minute),
		},
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	agents := map[string]AgentConfig{
		"manager":   c.Manager,
		"safeguard": c.Safeguard,
		"processor": c.Processor,
		"critic":    c.Critic,
	}
	addrs := make(map[string]string, len(agents))
	for name, agent := range agents {
		if agent.Host == "" {
			return fmt.Errorf("%s.host is required", name)
		}
		if agent.Port <= 0 || agent.Port > 65535 {
			return fmt.Errorf("%s.port must be between 1 and 65535", name)
		}
		addr := fmt.Sprintf("%s:%d", agent.Host, agent.Port)
		if other, taken := addrs[addr]; taken {
			return fmt.Errorf("%s and %s share address %s", name, other, addr)
		}
		addrs[addr] = name
	}

	if c.Model.Endpoint == "" {
		return fmt.Errorf("model.endpoint is required")
	}
	if c.Model.Guard == "" || c.Model.Generator == "" || c.Model.Evaluator == "" {
		return fmt.Errorf("model.guard, model.generator, and model.evaluator are required")
	}
	if c.Model.Temperature < 0 || c.Model.Temperature > 1 {
		return fmt.Errorf("model.temperature must be between 0 and 1")
	}
	return nil
}
