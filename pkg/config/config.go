// Package config provides configuration loading, validation, and management
// for the remediation orchestrator: a schema-versioned struct loaded once
// into a mutex-protected package-level singleton, with secrets resolved from
// the environment rather than stored on disk.
package config

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// SchemaVersion identifies the on-disk config schema. Increment for breaking changes.
const SchemaVersion = "1.0"

// API provider identifiers, shared by the model registry and the LLM client factory.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGoogle    = "google"
	ProviderOllama    = "ollama"
)

// ModelInfo carries static pricing/limits for a known model. Hardcoded, not user-configurable.
type ModelInfo struct {
	Provider         string
	InputCPM         float64 // cost per million input tokens (USD)
	OutputCPM        float64
	MaxContextTokens int
	MaxOutputTokens  int
}

// Known default/fallback model names, referenced by the LLM client factory
// when a repository override does not specify one.
const (
	ModelClaudeSonnetLatest = "claude-sonnet-4-5"
	ModelGPT5               = "gpt-5"
	ModelGeminiFlashLatest  = "gemini-2.5-flash"
)

// KnownModels registry contains pricing and provider information for the models this
// system may classify or propose fixes with. Unknown models fall back to ProviderPatterns.
//
//nolint:gochecknoglobals // intentional global static registry
var KnownModels = map[string]ModelInfo{
	"claude-sonnet-4-5": {Provider: ProviderAnthropic, InputCPM: 3.0, OutputCPM: 15.0, MaxContextTokens: 200000, MaxOutputTokens: 8192},
	"claude-opus-4-5":   {Provider: ProviderAnthropic, InputCPM: 15.0, OutputCPM: 75.0, MaxContextTokens: 200000, MaxOutputTokens: 16384},
	"gpt-5":             {Provider: ProviderOpenAI, InputCPM: 20.0, OutputCPM: 60.0, MaxContextTokens: 128000, MaxOutputTokens: 4096},
	"o4-mini":           {Provider: ProviderOpenAI, InputCPM: 1.1, OutputCPM: 4.4, MaxContextTokens: 128000, MaxOutputTokens: 16384},
	"gemini-2.5-flash":  {Provider: ProviderGoogle, InputCPM: 0.30, OutputCPM: 2.50, MaxContextTokens: 1048576, MaxOutputTokens: 65536},
}

// ProviderPattern infers a provider from an unrecognized model name prefix.
type ProviderPattern struct {
	Prefix   string
	Provider string
}

//nolint:gochecknoglobals // intentional global inference rules
var ProviderPatterns = []ProviderPattern{
	{"claude", ProviderAnthropic},
	{"gpt", ProviderOpenAI},
	{"o1", ProviderOpenAI},
	{"o3", ProviderOpenAI},
	{"o4", ProviderOpenAI},
	{"gemini", ProviderGoogle},
	{"llama", ProviderOllama},
	{"qwen", ProviderOllama},
	{"mistral", ProviderOllama},
	{"ollama:", ProviderOllama},
}

// GetModelProvider returns the API provider for a model name, checking KnownModels
// first and then ProviderPatterns. Returns an error if neither matches.
func GetModelProvider(modelName string) (string, error) {
	if info, ok := KnownModels[modelName]; ok {
		return info.Provider, nil
	}
	for _, p := range ProviderPatterns {
		if strings.HasPrefix(modelName, p.Prefix) {
			return p.Provider, nil
		}
	}
	return "", fmt.Errorf("unknown model %q: no known provider mapping or pattern match", modelName)
}

// Model names a chat model and the rate limit it draws against. Distinct from
// ModelInfo: this is the resolved, per-call view rate-limit middleware acts on.
type Model struct {
	Name            string
	TokensPerMinute int
}

// RateLimitBufferFactor is the safety margin applied to rate limit buckets.
const RateLimitBufferFactor = 0.9

// RateLimitConfig is the per-provider token bucket configuration.
type RateLimitConfig struct {
	TokensPerMinute int `yaml:"tokens_per_minute"`
	MaxConcurrency  int `yaml:"max_concurrency"`
}

// RepositoryOverride narrows or loosens the global safety envelope for one repository.
type RepositoryOverride struct {
	RiskThreshold         *int            `yaml:"risk_threshold,omitempty"`
	DryRun                *bool           `yaml:"dry_run,omitempty"`
	ApprovalTimeoutHours  *int            `yaml:"approval_timeout_hours,omitempty"`
	CircuitFailureThresh  *int            `yaml:"circuit_failure_threshold,omitempty"`
	ProtectedFilePatterns []string        `yaml:"protected_file_patterns,omitempty"`
	Reviewers             *ReviewerRoster `yaml:"reviewers,omitempty"`
}

// ReviewerRoster names the reviewers eligible to approve a repository's remediations.
// Kept as a plain struct here (rather than importing pkg/remediation/approval) so config
// has no dependency on the decision-service layer.
type ReviewerRoster struct {
	Senior []string `yaml:"senior"`
	Any    []string `yaml:"any"`
}

// SubstrateConfig points at the external collaborators the orchestrator polls, calls,
// and reports to (§2.1's leaf interfaces).
type SubstrateConfig struct {
	VCSBaseURL        string `yaml:"vcs_base_url"`
	LLMProvider       string `yaml:"llm_provider"` // anthropic|openai|google|ollama
	LLMModel          string `yaml:"llm_model"`
	OllamaHostURL     string `yaml:"ollama_host_url,omitempty"`
	EmbeddingModel    string `yaml:"embedding_model,omitempty"`
	NotifierChannel   string `yaml:"notifier_channel"`
	StoreDSN          string `yaml:"store_dsn"`
	MetricsBindAddr   string `yaml:"metrics_bind_addr"`
	DashboardBindAddr string `yaml:"dashboard_bind_addr"`
}

// Config is the orchestrator's top-level configuration.
//
//nolint:govet // fieldalignment: grouped by concern for readability over memory
type Config struct {
	SchemaVersion string `yaml:"schema_version"`

	// === Repositories under management ===
	Repositories                []string `yaml:"repositories"`
	ProtectedRepositories       []string `yaml:"protected_repositories"`
	DefaultApplicationCodeGlobs []string `yaml:"default_application_code_globs"`

	// === Safety envelope (§4.3, §4.4) ===
	RiskThreshold           int     `yaml:"risk_threshold"` // 0-10, at or above which auto-apply is denied; default 5
	ApprovalTimeoutHours    int     `yaml:"approval_timeout_hours"`
	CircuitFailureThreshold int     `yaml:"circuit_failure_threshold"`
	CircuitAutoResetHours   int     `yaml:"circuit_auto_reset_hours"`
	DryRun                  bool    `yaml:"dry_run"`

	// === Control loop cadence (§4.1, §5) ===
	PollingIntervalMinutes  int `yaml:"polling_interval_minutes"`
	HealthCheckDelayMinutes int `yaml:"health_check_delay_minutes"`
	SnapshotRetentionDays   int `yaml:"snapshot_retention_days"`
	WorkerPoolSize          int `yaml:"worker_pool_size"`

	// === Per-repository overrides ===
	RepositoryOverrides map[string]RepositoryOverride `yaml:"repository_overrides,omitempty"`

	// === Approval reviewer rosters (§4.8) ===
	Reviewers ReviewerRoster `yaml:"reviewers"`

	// === Resilience / rate limiting, inherited from the teacher's provider limiter map ===
	RateLimits map[string]RateLimitConfig `yaml:"rate_limits"`

	// === External collaborators ===
	Substrate SubstrateConfig `yaml:"substrate"`

	// === Runtime-only, not persisted ===
	ConfigPath string `yaml:"-"`
}

//nolint:gochecknoglobals // singleton pattern, mirrors teacher's package-level config
var (
	mu  sync.RWMutex
	cfg *Config
)

// SetConfig installs the loaded configuration as the process-wide singleton.
func SetConfig(c *Config) {
	mu.Lock()
	defer mu.Unlock()
	cfg = c
}

// SetConfigForTesting sets the global config for tests. Pass nil to reset.
func SetConfigForTesting(c *Config) {
	SetConfig(c)
}

// GetConfig returns the current global config by value, so callers cannot mutate
// the singleton without going through SetConfig.
func GetConfig() (Config, error) {
	mu.RLock()
	defer mu.RUnlock()
	if cfg == nil {
		return Config{}, fmt.Errorf("config not initialized - call LoadConfig first")
	}
	return *cfg, nil
}

// GetWorkerPoolSize returns the configured worker pool size, defaulting to 4 when
// config has not been loaded (used only by resilience middleware safety-net timeouts).
func GetWorkerPoolSize() int {
	mu.RLock()
	defer mu.RUnlock()
	if cfg == nil || cfg.WorkerPoolSize == 0 {
		return 4
	}
	return cfg.WorkerPoolSize
}

// ForRepository resolves per-repository overrides on top of the global config,
// returning the effective risk threshold, dry-run flag, approval timeout, and
// circuit failure threshold for repo.
func (c *Config) ForRepository(repo string) (riskThreshold int, dryRun bool, approvalTimeout time.Duration, circuitFailureThreshold int) {
	riskThreshold = c.RiskThreshold
	dryRun = c.DryRun
	approvalTimeout = time.Duration(c.ApprovalTimeoutHours) * time.Hour
	circuitFailureThreshold = c.CircuitFailureThreshold

	override, ok := c.RepositoryOverrides[repo]
	if !ok {
		return riskThreshold, dryRun, approvalTimeout, circuitFailureThreshold
	}
	if override.RiskThreshold != nil {
		riskThreshold = *override.RiskThreshold
	}
	if override.DryRun != nil {
		dryRun = *override.DryRun
	}
	if override.ApprovalTimeoutHours != nil {
		approvalTimeout = time.Duration(*override.ApprovalTimeoutHours) * time.Hour
	}
	if override.CircuitFailureThresh != nil {
		circuitFailureThreshold = *override.CircuitFailureThresh
	}
	return riskThreshold, dryRun, approvalTimeout, circuitFailureThreshold
}

// ApplicationCodeGlobs returns the glob patterns marking a repository's edits as
// touching application source (escalates SafetyGate to require_approval), falling back
// to the global default when no override is set for repo.
func (c *Config) ApplicationCodeGlobs(repo string) []string {
	if override, ok := c.RepositoryOverrides[repo]; ok && override.ProtectedFilePatterns != nil {
		return override.ProtectedFilePatterns
	}
	return c.DefaultApplicationCodeGlobs
}

// ReviewersFor resolves the reviewer roster for repo, preferring a per-repository
// override over the global roster.
func (c *Config) ReviewersFor(repo string) ReviewerRoster {
	if override, ok := c.RepositoryOverrides[repo]; ok && override.Reviewers != nil {
		return *override.Reviewers
	}
	return c.Reviewers
}

// IsProtected reports whether repo requires approval regardless of risk score (§4.3).
func (c *Config) IsProtected(repo string) bool {
	for _, p := range c.ProtectedRepositories {
		if p == repo {
			return true
		}
	}
	return false
}
