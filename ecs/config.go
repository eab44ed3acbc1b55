package ecs

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds runtime settings that can be loaded from YAML.
type Config struct {
	// Phases run by Update, in order.
	Phases []string `json:"phases" yaml:"phases"`
	// DisabledGroups start disabled.
	DisabledGroups []string `json:"disabled_groups,omitempty" yaml:"disabled_groups,omitempty"`
	// Priorities override the priority of systems by label at registration.
	Priorities map[string]int `json:"priorities,omitempty" yaml:"priorities,omitempty"`
	LogLevel   string         `json:"log_level,omitempty" yaml:"log_level,omitempty"`
}

// DefaultConfig returns the configuration used when none is given.
func DefaultConfig() *Config {
	return &Config{
		Phases:   []string{"preUpdate", DefaultPhase, "postUpdate"},
		LogLevel: "info",
	}
}

// Validate checks that the phase list is usable.
func (c *Config) Validate() error {
	if len(c.Phases) == 0 {
		return fmt.Errorf("%w: no phases", ErrInvalidConfig)
	}
	seen := make(map[string]bool, len(c.Phases))
	for _, phase := range c.Phases {
		if phase == "" {
			return fmt.Errorf("%w: empty phase name", ErrInvalidConfig)
		}
		if seen[phase] {
			return fmt.Errorf("%w: duplicate phase %q", ErrInvalidConfig, phase)
		}
		seen[phase] = true
	}
	return nil
}

// LoadConfig decodes a YAML configuration. Missing fields keep their
// defaults.
func LoadConfig(r io.Reader) (*Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfigFile reads a YAML configuration from path.
func LoadConfigFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadConfig(f)
}
