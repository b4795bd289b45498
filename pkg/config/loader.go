package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

//nolint:gochecknoglobals // compiled once, used by LoadConfig
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

// LoadConfig reads and validates configuration from a YAML file, substituting
// ${VAR} placeholders with environment variable values before parsing.
// Secrets are never read from the file itself; see secrets.go.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	substituted := envVarRegex.ReplaceAllStringFunc(string(data), func(match string) string {
		envVar := match[2 : len(match)-1]
		if value := os.Getenv(envVar); value != "" {
			return value
		}
		return match
	})

	var c Config
	if err := yaml.Unmarshal([]byte(substituted), &c); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}
	c.ConfigPath = path

	applyDefaults(&c)

	if err := validateConfig(&c); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &c, nil
}

func applyDefaults(c *Config) {
	if c.SchemaVersion == "" {
		c.SchemaVersion = SchemaVersion
	}
	if c.RiskThreshold == 0 {
		c.RiskThreshold = 5
	}
	if c.ApprovalTimeoutHours == 0 {
		c.ApprovalTimeoutHours = 24
	}
	if c.CircuitFailureThreshold == 0 {
		c.CircuitFailureThreshold = 3
	}
	if c.CircuitAutoResetHours == 0 {
		c.CircuitAutoResetHours = 24
	}
	if c.PollingIntervalMinutes == 0 {
		c.PollingIntervalMinutes = 5
	}
	if c.HealthCheckDelayMinutes == 0 {
		c.HealthCheckDelayMinutes = 5
	}
	if c.SnapshotRetentionDays == 0 {
		c.SnapshotRetentionDays = 7
	}
	if c.WorkerPoolSize == 0 {
		c.WorkerPoolSize = 4
	}
	if c.Substrate.LLMProvider == "" {
		c.Substrate.LLMProvider = ProviderAnthropic
	}
	if c.Substrate.LLMModel == "" {
		c.Substrate.LLMModel = ModelClaudeSonnetLatest
	}
	if c.Substrate.MetricsBindAddr == "" {
		c.Substrate.MetricsBindAddr = ":9090"
	}
	if c.Substrate.DashboardBindAddr == "" {
		c.Substrate.DashboardBindAddr = ":8080"
	}
	if c.RateLimits == nil {
		c.RateLimits = map[string]RateLimitConfig{
			ProviderAnthropic: {TokensPerMinute: 300000, MaxConcurrency: 4},
			ProviderOpenAI:    {TokensPerMinute: 150000, MaxConcurrency: 4},
			ProviderGoogle:    {TokensPerMinute: 1200000, MaxConcurrency: 4},
			ProviderOllama:    {TokensPerMinute: 1000000, MaxConcurrency: 2},
		}
	}
}

func validateConfig(c *Config) error {
	if len(c.Repositories) == 0 {
		return fmt.Errorf("repositories: at least one repository must be configured")
	}
	if c.RiskThreshold < 0 || c.RiskThreshold > 10 {
		return fmt.Errorf("risk_threshold: must be between 0 and 10, got %d", c.RiskThreshold)
	}
	if c.ApprovalTimeoutHours <= 0 {
		return fmt.Errorf("approval_timeout_hours: must be positive, got %d", c.ApprovalTimeoutHours)
	}
	if c.CircuitFailureThreshold <= 0 {
		return fmt.Errorf("circuit_failure_threshold: must be positive, got %d", c.CircuitFailureThreshold)
	}
	if c.PollingIntervalMinutes <= 0 {
		return fmt.Errorf("polling_interval_minutes: must be positive, got %d", c.PollingIntervalMinutes)
	}
	switch c.Substrate.LLMProvider {
	case ProviderAnthropic, ProviderOpenAI, ProviderGoogle, ProviderOllama:
	default:
		return fmt.Errorf("substrate.llm_provider: unrecognized provider %q", c.Substrate.LLMProvider)
	}
	if c.Substrate.StoreDSN == "" {
		return fmt.Errorf("substrate.store_dsn: must be set")
	}
	for repo, override := range c.RepositoryOverrides {
		if override.RiskThreshold != nil && (*override.RiskThreshold < 0 || *override.RiskThreshold > 10) {
			return fmt.Errorf("repository_overrides[%s].risk_threshold: must be between 0 and 10", repo)
		}
	}
	return nil
}

// PollingInterval returns the configured polling cadence as a time.Duration.
func (c *Config) PollingInterval() time.Duration {
	return time.Duration(c.PollingIntervalMinutes) * time.Minute
}

// HealthCheckDelay returns the configured delay between opening a fix PR and its health check.
func (c *Config) HealthCheckDelay() time.Duration {
	return time.Duration(c.HealthCheckDelayMinutes) * time.Minute
}

// SnapshotRetention returns how long snapshots are kept before cleanup.
func (c *Config) SnapshotRetention() time.Duration {
	return time.Duration(c.SnapshotRetentionDays) * 24 * time.Hour
}

// CircuitAutoReset returns how long a circuit stays OPEN before auto-transitioning to HALF_OPEN.
func (c *Config) CircuitAutoReset() time.Duration {
	return time.Duration(c.CircuitAutoResetHours) * time.Hour
}
