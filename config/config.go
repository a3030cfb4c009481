//
// Tencent is pleased to support the open source community by making trpc-chatguard-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-chatguard-go is licensed under the Apache License Version 2.0.
//
//

// Package config loads service configuration from an optional YAML file
// with environment variable overrides.
//
// The upstream API key is deliberately not part of the file format: it is
// read from OPENAI_API_KEY only, so config files can be committed without
// leaking credentials.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults.
const (
	DefaultAddr            = ":5050"
	DefaultModelName       = "gpt-4o-mini"
	DefaultHistoryMaxTurns = 10
	DefaultRetryAttempts   = 3
	DefaultInitialBackoff  = 500 * time.Millisecond
	DefaultMaxBackoff      = 8 * time.Second
)

// EnvAPIKey is the only source of the upstream credential.
const EnvAPIKey = "OPENAI_API_KEY"

// Environment overrides, applied after the file.
const (
	envAddr            = "CHATGUARD_ADDR"
	envModelName       = "CHATGUARD_MODEL"
	envModelBaseURL    = "CHATGUARD_MODEL_BASE_URL"
	envHistoryMaxTurns = "CHATGUARD_HISTORY_MAX_TURNS"
	envLogLevel        = "CHATGUARD_LOG_LEVEL"
)

// Model configures the upstream model.
type Model struct {
	Name    string `yaml:"name"`
	BaseURL string `yaml:"base_url"`
}

// Duration is a time.Duration that unmarshals from YAML strings such as
// "500ms" or "2s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
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

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Retry configures upstream retries.
type Retry struct {
	MaxAttempts    int      `yaml:"max_attempts"`
	InitialBackoff Duration `yaml:"initial_backoff"`
	MaxBackoff     Duration `yaml:"max_backoff"`
}

// Config is the service configuration.
type Config struct {
	Addr            string   `yaml:"addr"`
	Model           Model    `yaml:"model"`
	HistoryMaxTurns int      `yaml:"history_max_turns"`
	Retry           Retry    `yaml:"retry"`
	SystemPrompt    string   `yaml:"system_prompt"`
	Greetings       []string `yaml:"greetings"`
	LogLevel        string   `yaml:"log_level"`
	Trace           Trace    `yaml:"trace"`
}

// Trace configures OTLP trace export. Disabled unless an endpoint is set
// here or via the standard OTEL_EXPORTER_OTLP_* environment variables.
type Trace struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
	Protocol string `yaml:"protocol"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Addr:            DefaultAddr,
		Model:           Model{Name: DefaultModelName},
		HistoryMaxTurns: DefaultHistoryMaxTurns,
		Retry: Retry{
			MaxAttempts:    DefaultRetryAttempts,
			InitialBackoff: Duration(DefaultInitialBackoff),
			MaxBackoff:     Duration(DefaultMaxBackoff),
		},
		LogLevel: "info",
	}
}

// Load reads the configuration file at path, falling back to defaults when
// path is empty or the file does not exist, then applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// Optional file; defaults apply.
		case err != nil:
			return nil, fmt.Errorf("read %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(b, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// APIKey returns the upstream credential from the environment, or "".
func APIKey() string {
	return os.Getenv(EnvAPIKey)
}

func (c *Config) applyEnv() {
	if v := os.Getenv(envAddr); v != "" {
		c.Addr = v
	}
	if v := os.Getenv(envModelName); v != "" {
		c.Model.Name = v
	}
	if v := os.Getenv(envModelBaseURL); v != "" {
		c.Model.BaseURL = v
	}
	if v := os.Getenv(envHistoryMaxTurns); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.HistoryMaxTurns = n
		}
	}
	if v := os.Getenv(envLogLevel); v != "" {
		c.LogLevel = v
	}
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("addr must not be empty")
	}
	if c.Model.Name == "" {
		return fmt.Errorf("model.name must not be empty")
	}
	if c.HistoryMaxTurns <= 0 {
		return fmt.Errorf("history_max_turns must be positive, got %d", c.HistoryMaxTurns)
	}
	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("retry.max_attempts must be positive, got %d", c.Retry.MaxAttempts)
	}
	if c.Retry.InitialBackoff < 0 || c.Retry.MaxBackoff < 0 {
		return fmt.Errorf("retry backoff intervals must not be negative")
	}
	return nil
}
