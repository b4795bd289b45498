// Package llmclient selects the concrete ModelClient implementation for the
// configured provider, reusing the teacher's per-provider clients under
// pkg/agent/llmimpl unmodified via the shared llm.LLMClient interface, and wraps it in
// the teacher's resilience middleware chain (circuit breaker, retry, rate limit,
// timeout) so every outbound classification call carries the same protections the
// teacher's agents get around their LLM calls.
package llmclient

import (
	"fmt"
	"time"

	"github.com/ci-remediator/orchestrator/pkg/agent/llm"
	"github.com/ci-remediator/orchestrator/pkg/agent/llmimpl/anthropic"
	"github.com/ci-remediator/orchestrator/pkg/agent/llmimpl/google"
	"github.com/ci-remediator/orchestrator/pkg/agent/llmimpl/ollama"
	"github.com/ci-remediator/orchestrator/pkg/agent/llmimpl/openaiofficial"
	"github.com/ci-remediator/orchestrator/pkg/agent/middleware/resilience/circuit"
	"github.com/ci-remediator/orchestrator/pkg/agent/middleware/resilience/retry"
	"github.com/ci-remediator/orchestrator/pkg/agent/middleware/resilience/timeout"
	"github.com/ci-remediator/orchestrator/pkg/config"
	"github.com/ci-remediator/orchestrator/pkg/remediation/ratelimit"
	"github.com/ci-remediator/orchestrator/pkg/remediation/substrate"
)

// RequestTimeout bounds a single attempt at the LLM client layer; the Classifier's own
// CallTimeout bounds the attempt-plus-retries call as a whole, per §5.
const RequestTimeout = 30 * time.Second

// New constructs the ModelClient for cfg.Substrate.LLMProvider, resolving the API key
// from the environment via config.GetLLMAPIKey (or using OllamaHostURL directly for the
// self-hosted provider, which needs no key), then wraps it with the resilience chain:
// circuit breaker (outermost, fails fast while open) -> retry (re-attempts transient
// errors) -> per-provider rate limit -> per-attempt timeout (innermost, around the base
// client).
func New(cfg *config.Config) (substrate.ModelClient, error) {
	base, provider, err := newBase(cfg)
	if err != nil {
		return nil, err
	}

	breaker := circuit.New(circuit.DefaultConfig)
	retryPolicy := retry.NewPolicy(retry.DefaultConfig, nil)
	limiter := ratelimit.New(cfg.RateLimits)

	return llm.Chain(base,
		circuit.Middleware(breaker),
		retry.Middleware(retryPolicy),
		ratelimit.Middleware(limiter, provider),
		timeout.Middleware(RequestTimeout),
	), nil
}

func newBase(cfg *config.Config) (llm.LLMClient, string, error) {
	switch cfg.Substrate.LLMProvider {
	case config.ProviderAnthropic:
		apiKey, err := config.GetLLMAPIKey()
		if err != nil {
			return nil, "", err
		}
		return anthropic.NewClaudeClientWithModel(apiKey, modelOrDefault(cfg.Substrate.LLMModel, config.ModelClaudeSonnetLatest)), config.ProviderAnthropic, nil

	case config.ProviderOpenAI:
		apiKey, err := config.GetLLMAPIKey()
		if err != nil {
			return nil, "", err
		}
		return openaiofficial.NewOfficialClientWithModel(apiKey, modelOrDefault(cfg.Substrate.LLMModel, config.ModelGPT5)), config.ProviderOpenAI, nil

	case config.ProviderGoogle:
		apiKey, err := config.GetLLMAPIKey()
		if err != nil {
			return nil, "", err
		}
		return google.NewGeminiClientWithModel(apiKey, modelOrDefault(cfg.Substrate.LLMModel, config.ModelGeminiFlashLatest)), config.ProviderGoogle, nil

	case config.ProviderOllama:
		if cfg.Substrate.OllamaHostURL == "" {
			return nil, "", fmt.Errorf("llmclient: substrate.ollama_host_url is required for provider %q", config.ProviderOllama)
		}
		return ollama.NewOllamaClientWithModel(cfg.Substrate.OllamaHostURL, cfg.Substrate.LLMModel), config.ProviderOllama, nil

	default:
		return nil, "", fmt.Errorf("llmclient: unrecognized provider %q", cfg.Substrate.LLMProvider)
	}
}

func modelOrDefault(model, fallback string) string {
	if model == "" {
		return fallback
	}
	return model
}
