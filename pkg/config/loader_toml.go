package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// LoadConfigTOML loads configuration from a TOML file instead of the default YAML,
// for operators who prefer TOML for their deployment tooling. The remediator command
// does not call it; it always loads YAML through LoadConfig.
// Env substitution, defaulting, and validation match LoadConfig exactly.
func LoadConfigTOML(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	substituted := envVarRegex.ReplaceAllStringFunc(string(data), func(match string) string {
		if value := os.Getenv(match[2 : len(match)-1]); value != "" {
			return value
		}
		return match
	})

	var c Config
	if _, err := toml.Decode(substituted, &c); err != nil {
		return nil, fmt.Errorf("failed to parse config TOML: %w", err)
	}
	c.ConfigPath = path

	applyDefaults(&c)

	if err := validateConfig(&c); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &c, nil
}
