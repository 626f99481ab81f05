// Package config loads and validates the engine configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	yamlv3 "gopkg.in/yaml.v3"
)

type Config struct {
	Project  ProjectConfig  `yaml:"project"`
	AutoSave AutoSaveConfig `yaml:"autosave"`
	Demo     DemoConfig     `yaml:"demo"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ProjectConfig struct {
	Name string `yaml:"name"`
	// EnforceLinks decides whether link-order violations are corrected
	// (true) or merely advisory (false).
	EnforceLinks bool `yaml:"enforce_links"`
}

type AutoSaveConfig struct {
	DebounceMs      int `yaml:"debounce_ms" validate:"gte=0"`
	FlushIntervalMs int `yaml:"flush_interval_ms" validate:"gte=0"`
	MaxRetries      int `yaml:"max_retries" validate:"gte=0"`
	RetryDelayMs    int `yaml:"retry_delay_ms" validate:"gte=0"`
}

type DemoConfig struct {
	// MaxConstrainedTasks caps how many tasks in a project may carry a
	// constraint while demo mode is active.
	MaxConstrainedTasks int `yaml:"max_constrained_tasks" validate:"gte=1"`
}

type LoggingConfig struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
}

const (
	defaultDebounceMs      = 1000
	defaultFlushIntervalMs = 30000
	defaultMaxRetries      = 3
	defaultRetryDelayMs    = 2000
	defaultDemoCap         = 3
)

func (c AutoSaveConfig) Debounce() time.Duration {
	return time.Duration(c.DebounceMs) * time.Millisecond
}

func (c AutoSaveConfig) FlushInterval() time.Duration {
	return time.Duration(c.FlushIntervalMs) * time.Millisecond
}

func (c AutoSaveConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelayMs) * time.Millisecond
}

// Default returns the configuration used when no file is supplied.
func Default() Config {
	var c Config
	c.applyDefaults()
	return c
}

// Load reads, defaults, and validates a YAML configuration file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	var c Config
	if err := yamlv3.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) applyDefaults() {
	if c.AutoSave.DebounceMs == 0 {
		c.AutoSave.DebounceMs = defaultDebounceMs
	}
	if c.AutoSave.FlushIntervalMs == 0 {
		c.AutoSave.FlushIntervalMs = defaultFlushIntervalMs
	}
	if c.AutoSave.MaxRetries == 0 {
		c.AutoSave.MaxRetries = defaultMaxRetries
	}
	if c.AutoSave.RetryDelayMs == 0 {
		c.AutoSave.RetryDelayMs = defaultRetryDelayMs
	}
	if c.Demo.MaxConstrainedTasks == 0 {
		c.Demo.MaxConstrainedTasks = defaultDemoCap
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
