// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config defines the YAML-tagged configuration for the engine,
// with defaults and an environment-variable overlay following the
// teacher's SetDefaults()-plus-env convention.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ModelConfig describes one configured LLM endpoint.
type ModelConfig struct {
	Provider string `yaml:"provider"`
	ModelID  string `yaml:"model_id"`
	APIKey   string `yaml:"api_key,omitempty"`
	MaxTokens int   `yaml:"max_tokens,omitempty"`
}

// SetDefaults fills in unset fields with sensible defaults.
func (c *ModelConfig) SetDefaults() {
	if c.MaxTokens == 0 {
		c.MaxTokens = 4096
	}
}

// EngineConfig is the top-level configuration for one deployment.
type EngineConfig struct {
	Primary ModelConfig `yaml:"primary_model"`
	Fast    ModelConfig `yaml:"fast_model"`

	ToolBudget        int `yaml:"tool_budget"`
	FailureBudget     int `yaml:"failure_budget"`
	DuplicateWindowS  int `yaml:"duplicate_window_seconds"`
	MaxTurns          int `yaml:"max_turns"`
	MaxSubAgentTurns  int `yaml:"max_sub_agent_turns"`
	MaxSynthesisImages int `yaml:"max_synthesis_images"`

	HTTP HTTPConfig `yaml:"http"`
	Log  LogConfig  `yaml:"log"`
}

// HTTPConfig configures the transport server.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// LogConfig configures the logger package.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// SetDefaults fills in unset fields across the whole configuration tree.
func (c *EngineConfig) SetDefaults() {
	c.Primary.SetDefaults()
	c.Fast.SetDefaults()

	if c.ToolBudget == 0 {
		c.ToolBudget = 30
	}
	if c.FailureBudget == 0 {
		c.FailureBudget = 3
	}
	if c.DuplicateWindowS == 0 {
		c.DuplicateWindowS = 60
	}
	if c.MaxTurns == 0 {
		c.MaxTurns = 50
	}
	if c.MaxSubAgentTurns == 0 {
		c.MaxSubAgentTurns = 25
	}
	if c.MaxSynthesisImages == 0 {
		c.MaxSynthesisImages = 8
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "simple"
	}
}

// Load reads YAML configuration from path, applies defaults, then overlays
// environment variables (AGENTRUN_* prefix) for the fields operators most
// commonly override at deploy time.
func Load(path string) (*EngineConfig, error) {
	var cfg EngineConfig

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.SetDefaults()
	overlayEnv(&cfg)
	return &cfg, nil
}

func overlayEnv(cfg *EngineConfig) {
	if v := os.Getenv("AGENTRUN_PRIMARY_MODEL_API_KEY"); v != "" {
		cfg.Primary.APIKey = v
	}
	if v := os.Getenv("AGENTRUN_FAST_MODEL_API_KEY"); v != "" {
		cfg.Fast.APIKey = v
	}
	if v := os.Getenv("AGENTRUN_HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := os.Getenv("AGENTRUN_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("AGENTRUN_MAX_TURNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxTurns = n
		}
	}
}
