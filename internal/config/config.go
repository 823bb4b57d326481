package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultFile is the config file looked up in the working directory.
const DefaultFile = "microchain.yml"

// Defaults applied by Validate
const (
	DefaultModel            = "gpt-4o-mini"
	DefaultFrameworkVersion = "3.14.1"
	DefaultThreads          = 3
	DefaultMaxIterations    = 10
	DefaultOnExhaustion     = "continue"
	DefaultRoot             = "."
	DefaultLogLevel         = "info"
	DefaultLogMaxSizeMB     = 10
	DefaultLogMaxBackups    = 3
)

// Config represents the top-level microchain.yml configuration
type Config struct {
	Version    string            `yaml:"version"`
	Generation *GenerationConfig `yaml:"generation,omitempty"`
	Pipeline   *PipelineConfig   `yaml:"pipeline,omitempty"`
	Deploy     *DeployConfig     `yaml:"deploy,omitempty"`
	Ledger     *LedgerConfig     `yaml:"ledger,omitempty"`
	Logging    *LoggingConfig    `yaml:"logging,omitempty"`
}

// GenerationConfig configures the text-generation backend
type GenerationConfig struct {
	Model            string   `yaml:"model,omitempty"`
	BaseURL          string   `yaml:"base_url,omitempty"` // OpenAI-compatible gateway
	Temperature      *float32 `yaml:"temperature,omitempty"`
	ChainOfThought   bool     `yaml:"chain_of_thought"`
	FrameworkVersion string   `yaml:"framework_version,omitempty"` // jina version pinned in requirements.txt
}

// PipelineConfig configures candidate selection and the repair loop
type PipelineConfig struct {
	Threads       *int   `yaml:"threads,omitempty"`        // package candidates to try (default 3)
	MaxIterations *int   `yaml:"max_iterations,omitempty"` // versions per candidate (default 10)
	OnExhaustion  string `yaml:"on_exhaustion,omitempty"`  // "continue" or "abort"
	Root          string `yaml:"root,omitempty"`           // directory holding executor/ and flow/
}

// DeployConfig configures image builds
type DeployConfig struct {
	Platform string `yaml:"platform,omitempty"` // e.g. linux/amd64
}

// LedgerConfig enables the Redis attempt ledger when RedisURL is set
type LedgerConfig struct {
	RedisURL string `yaml:"redis_url,omitempty"`
}

// LoggingConfig configures diagnostic logging
type LoggingConfig struct {
	Level      string `yaml:"level,omitempty"`       // debug, info, warn or error
	File       string `yaml:"file,omitempty"`        // optional JSON log file, rotated
	MaxSizeMB  int    `yaml:"max_size_mb,omitempty"` // rotation size (default 10)
	MaxBackups int    `yaml:"max_backups,omitempty"` // rotated files kept (default 3)
}

// Default returns a validated configuration with every default applied.
func Default() *Config {
	cfg := &Config{Version: "1.0"}
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("default configuration is invalid: %v", err))
	}
	return cfg
}

// Validate checks the configuration and fills in defaults for omitted values.
func (c *Config) Validate() error {
	// Required: version
	if c.Version != "1.0" {
		return fmt.Errorf("unsupported version: %s (expected: 1.0)", c.Version)
	}

	if c.Generation == nil {
		c.Generation = &GenerationConfig{}
	}
	if c.Generation.Model == "" {
		c.Generation.Model = DefaultModel
	}
	if c.Generation.FrameworkVersion == "" {
		c.Generation.FrameworkVersion = DefaultFrameworkVersion
	}
	if t := c.Generation.Temperature; t != nil && (*t < 0 || *t > 2) {
		return fmt.Errorf("generation.temperature must be between 0 and 2, got %v", *t)
	}

	if c.Pipeline == nil {
		c.Pipeline = &PipelineConfig{}
	}
	if c.Pipeline.Threads == nil {
		threads := DefaultThreads
		c.Pipeline.Threads = &threads
	}
	if *c.Pipeline.Threads < 1 {
		return fmt.Errorf("pipeline.threads must be >= 1, got %d", *c.Pipeline.Threads)
	}
	if c.Pipeline.MaxIterations == nil {
		iterations := DefaultMaxIterations
		c.Pipeline.MaxIterations = &iterations
	}
	if *c.Pipeline.MaxIterations < 1 {
		return fmt.Errorf("pipeline.max_iterations must be >= 1, got %d", *c.Pipeline.MaxIterations)
	}
	if c.Pipeline.OnExhaustion == "" {
		c.Pipeline.OnExhaustion = DefaultOnExhaustion
	}
	if c.Pipeline.OnExhaustion != "continue" && c.Pipeline.OnExhaustion != "abort" {
		return fmt.Errorf("invalid pipeline.on_exhaustion: %s (must be 'continue' or 'abort')", c.Pipeline.OnExhaustion)
	}
	if c.Pipeline.Root == "" {
		c.Pipeline.Root = DefaultRoot
	}

	if c.Deploy == nil {
		c.Deploy = &DeployConfig{}
	}
	if c.Ledger == nil {
		c.Ledger = &LedgerConfig{}
	}

	if c.Logging == nil {
		c.Logging = &LoggingConfig{}
	}
	switch c.Logging.Level {
	case "":
		c.Logging.Level = DefaultLogLevel
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging.level: %s (must be 'debug', 'info', 'warn', or 'error')", c.Logging.Level)
	}
	if c.Logging.MaxSizeMB == 0 {
		c.Logging.MaxSizeMB = DefaultLogMaxSizeMB
	}
	if c.Logging.MaxBackups == 0 {
		c.Logging.MaxBackups = DefaultLogMaxBackups
	}
	if c.Logging.MaxSizeMB < 0 || c.Logging.MaxBackups < 0 {
		return fmt.Errorf("logging.max_size_mb and logging.max_backups must be >= 0")
	}

	return nil
}

// Load reads and validates microchain.yml from the specified path
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// LoadOrDefault loads path, falling back to Default when the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}
