// Package config loads and validates the pipeline's tuning from YAML. Every
// knob has a default; an empty document yields a fully usable configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sergeeey/verifind/debate"
	"github.com/sergeeey/verifind/gate"
	"github.com/sergeeey/verifind/sandbox"
)

// SandboxConfig tunes the execution engine.
type SandboxConfig struct {
	Timeout      time.Duration `yaml:"timeout"`
	MaxMemoryMB  int           `yaml:"max_memory_mb"`
	AllowNetwork bool          `yaml:"allow_network"`
	SetupRetries int           `yaml:"setup_retries"`
	// Runtime selects the isolation backend: "process" or "docker".
	Runtime string `yaml:"runtime"`
}

// DebateConfig tunes the synthesis stage.
type DebateConfig struct {
	SpreadDampening float64 `yaml:"spread_dampening"`
}

// PipelineConfig tunes the orchestration layer.
type PipelineConfig struct {
	QueryTimeout time.Duration `yaml:"query_timeout"`
	// MaxRetries bounds retries of retriable stage failures per query.
	MaxRetries int `yaml:"max_retries"`
	// MaxParallelTasks bounds concurrent subtasks of one query; 0 is unbounded.
	MaxParallelTasks int `yaml:"max_parallel_tasks"`
}

// Config is the root document.
type Config struct {
	Sandbox  SandboxConfig  `yaml:"sandbox"`
	Gate     gate.Config    `yaml:"gate"`
	Debate   DebateConfig   `yaml:"debate"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
}

// Default returns the configuration used when no file is supplied.
func Default() Config {
	return Config{
		Sandbox: SandboxConfig{
			Timeout:      30 * time.Second,
			MaxMemoryMB:  512,
			SetupRetries: 3,
			Runtime:      "process",
		},
		Gate: gate.Config{
			Weights:          gate.DefaultWeights(),
			Bounds:           gate.DefaultBounds(),
			FreshnessHorizon: 90 * 24 * time.Hour,
		},
		Debate: DebateConfig{SpreadDampening: 0.5},
		Pipeline: PipelineConfig{
			QueryTimeout: 2 * time.Minute,
			MaxRetries:   1,
		},
		LogLevel: "info",
	}
}

// Load reads and parses the YAML file at path, layered over defaults.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML layered over defaults and validates the result.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the pipeline cannot run with.
func (c Config) Validate() error {
	if c.Sandbox.Timeout <= 0 {
		return fmt.Errorf("config: sandbox.timeout must be positive")
	}
	if c.Sandbox.MaxMemoryMB <= 0 {
		return fmt.Errorf("config: sandbox.max_memory_mb must be positive")
	}
	if c.Sandbox.SetupRetries < 0 {
		return fmt.Errorf("config: sandbox.setup_retries must not be negative")
	}
	switch c.Sandbox.Runtime {
	case "process", "docker":
	default:
		return fmt.Errorf("config: sandbox.runtime must be process or docker, got %q", c.Sandbox.Runtime)
	}
	if err := c.Gate.Weights.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.Debate.SpreadDampening < 0 || c.Debate.SpreadDampening > 1 {
		return fmt.Errorf("config: debate.spread_dampening must be in [0,1]")
	}
	if c.Pipeline.QueryTimeout <= 0 {
		return fmt.Errorf("config: pipeline.query_timeout must be positive")
	}
	if c.Pipeline.MaxRetries < 0 {
		return fmt.Errorf("config: pipeline.max_retries must not be negative")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: log_level must be debug, info, warn or error, got %q", c.LogLevel)
	}
	return nil
}

// SandboxLimits converts the sandbox section into executor limits.
func (c Config) SandboxLimits() sandbox.Limits {
	return sandbox.Limits{
		Timeout:      c.Sandbox.Timeout,
		MaxMemoryMB:  c.Sandbox.MaxMemoryMB,
		AllowNetwork: c.Sandbox.AllowNetwork,
	}
}

// SynthesisConfig converts the debate section into synthesis tuning.
func (c Config) SynthesisConfig() debate.SynthesisConfig {
	return debate.SynthesisConfig{SpreadDampening: c.Debate.SpreadDampening}
}
