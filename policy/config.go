package policy

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the file form of the retry configuration.
type Config struct {
	// Retry is the policy applied to every operation without an override.
	Retry RetryPolicy `yaml:"retry"`

	// Operations holds per-key overrides keyed by "namespace.name". Zero fields inherit Retry.
	Operations map[string]RetryPolicy `yaml:"operations"`

	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level   string `yaml:"level"` // debug, info, warn, error
	NoColor bool   `yaml:"no_color"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// LoadWithEnvFiles reads configuration like Load, resolving ${VAR} references from the
// process environment first and then from the given .env files.
func LoadWithEnvFiles(path string, envFiles ...string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	env := map[string]string{}
	if len(envFiles) > 0 {
		env, err = godotenv.Read(envFiles...)
		if err != nil {
			return nil, fmt.Errorf("failed to read env file: %w", err)
		}
	}
	return parse(data, func(k string) string {
		if v, ok := os.LookupEnv(k); ok {
			return v
		}
		return env[k]
	})
}

// Parse decodes YAML configuration, expanding ${VAR} references first.
func Parse(data []byte) (*Config, error) {
	return parse(data, os.Getenv)
}

// envRef matches ${VAR} references. Bare $ and $VAR are left as written.
var envRef = regexp.MustCompile(`\$\{[A-Za-z_][A-Za-z0-9_]*\}`)

func parse(data []byte, mapping func(string) string) (*Config, error) {
	var cfg Config
	expanded := envRef.ReplaceAllStringFunc(string(data), func(ref string) string {
		return mapping(ref[2 : len(ref)-1])
	})
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.Retry.Meta.Source = PolicySourceFile
	normalized, err := cfg.Retry.Normalize()
	if err != nil {
		return nil, err
	}
	cfg.Retry = normalized

	for name, override := range cfg.Operations {
		if _, err := merge(cfg.Retry, override).Normalize(); err != nil {
			return nil, fmt.Errorf("operation %q: %w", name, err)
		}
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	cfg.Logging.Level = strings.ToLower(strings.TrimSpace(cfg.Logging.Level))

	return &cfg, nil
}

// PolicyFor returns the effective policy for key.
func (c *Config) PolicyFor(key PolicyKey) RetryPolicy {
	if c == nil {
		p, _ := DefaultRetryPolicy().Normalize()
		return p
	}
	base := c.Retry
	if override, ok := c.Operations[key.String()]; ok {
		base = merge(base, override)
	}
	p, err := base.Normalize()
	if err != nil {
		p, _ = DefaultRetryPolicy().Normalize()
	}
	return p
}

func merge(base, override RetryPolicy) RetryPolicy {
	out := base
	if override.InitialBackoff != 0 {
		out.InitialBackoff = override.InitialBackoff
	}
	if override.BackoffMultiplier != 0 {
		out.BackoffMultiplier = override.BackoffMultiplier
	}
	if override.MaxBackoff != 0 {
		out.MaxBackoff = override.MaxBackoff
	}
	if override.TotalBudget != 0 {
		out.TotalBudget = override.TotalBudget
	}
	if override.MaxInvalidPartitionRetries != 0 {
		out.MaxInvalidPartitionRetries = override.MaxInvalidPartitionRetries
	}
	out.Meta = Metadata{Source: PolicySourceFile}
	return out
}
