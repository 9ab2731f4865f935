package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// StepOverride tunes a single pipeline step.
type StepOverride struct {
	TimeoutSeconds int64 `yaml:"timeout_seconds"`
	MaxRetries     *int  `yaml:"max_retries"`
}

// PipelineOverride tunes a whole registered pipeline.
type PipelineOverride struct {
	TotalTimeoutSeconds int64                   `yaml:"total_timeout_seconds"`
	Steps               map[string]StepOverride `yaml:"steps"`
}

// StepsConfig carries operator overrides for step timeouts and retry limits.
type StepsConfig struct {
	Pipelines map[string]PipelineOverride `yaml:"pipelines"`
}

// LoadSteps loads a YAML step-override file; returns defaults if missing.
func LoadSteps(path string) (*StepsConfig, error) {
	if path == "" {
		return defaultSteps(), nil
	}
	// #nosec G304 -- step config path is operator-provided.
	data, err := os.ReadFile(path)
	if err != nil {
		return defaultSteps(), fmt.Errorf("read step config: %w", err)
	}
	return ParseSteps(data)
}

// ParseSteps parses step-override config from YAML bytes.
func ParseSteps(data []byte) (*StepsConfig, error) {
	if len(data) == 0 {
		return defaultSteps(), nil
	}
	var cfg StepsConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return defaultSteps(), fmt.Errorf("parse step config: %w", err)
	}
	if cfg.Pipelines == nil {
		cfg.Pipelines = map[string]PipelineOverride{}
	}
	return &cfg, nil
}

// StepTimeout returns the override timeout for a step, or zero when absent.
func (c *StepsConfig) StepTimeout(pipeline, stepID string) time.Duration {
	if c == nil {
		return 0
	}
	p, ok := c.Pipelines[pipeline]
	if !ok {
		return 0
	}
	s, ok := p.Steps[stepID]
	if !ok || s.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// StepMaxRetries returns the override retry limit for a step, or -1 when absent.
func (c *StepsConfig) StepMaxRetries(pipeline, stepID string) int {
	if c == nil {
		return -1
	}
	p, ok := c.Pipelines[pipeline]
	if !ok {
		return -1
	}
	s, ok := p.Steps[stepID]
	if !ok || s.MaxRetries == nil || *s.MaxRetries < 0 {
		return -1
	}
	return *s.MaxRetries
}

// PipelineTimeout returns the override total timeout for a pipeline, or zero
// when absent.
func (c *StepsConfig) PipelineTimeout(pipeline string) time.Duration {
	if c == nil {
		return 0
	}
	p, ok := c.Pipelines[pipeline]
	if !ok || p.TotalTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(p.TotalTimeoutSeconds) * time.Second
}

func defaultSteps() *StepsConfig {
	return &StepsConfig{Pipelines: map[string]PipelineOverride{}}
}
