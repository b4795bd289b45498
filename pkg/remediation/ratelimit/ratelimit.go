// Package ratelimit throttles outbound ModelClient calls to the per-provider token
// budgets in config.Config.RateLimits, generalized from the teacher's provider limiter
// map (pkg/agent/middleware/resilience) onto golang.org/x/time/rate's token bucket
// instead of a hand-rolled one, and wired as an llm.Middleware in the LLM call chain.
package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"github.com/ci-remediator/orchestrator/pkg/agent/llm"
	"github.com/ci-remediator/orchestrator/pkg/config"
)

// DefaultTokensPerMinute and DefaultBurst apply when a provider has no entry in
// config.Config.RateLimits.
const (
	DefaultTokensPerMinute = 60
	DefaultBurst           = 1
)

// Limiter holds one golang.org/x/time/rate.Limiter per provider, built lazily from
// config.RateLimitConfig entries.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	cfg      map[string]config.RateLimitConfig
}

// New constructs a Limiter over the per-provider rate limit table from config.Config.
func New(cfg map[string]config.RateLimitConfig) *Limiter {
	return &Limiter{limiters: make(map[string]*rate.Limiter), cfg: cfg}
}

// Wait blocks until provider has an available token, or ctx is done.
func (l *Limiter) Wait(ctx context.Context, provider string) error {
	return l.limiterFor(provider).Wait(ctx) //nolint:wrapcheck // rate.Limiter.Wait's error (context cancellation) propagates as-is
}

func (l *Limiter) limiterFor(provider string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if lim, ok := l.limiters[provider]; ok {
		return lim
	}

	tpm := DefaultTokensPerMinute
	burst := DefaultBurst
	if rc, ok := l.cfg[provider]; ok {
		if rc.TokensPerMinute > 0 {
			tpm = rc.TokensPerMinute
		}
		if rc.MaxConcurrency > 0 {
			burst = rc.MaxConcurrency
		}
	}

	lim := rate.NewLimiter(rate.Limit(float64(tpm)/60.0*config.RateLimitBufferFactor), burst)
	l.limiters[provider] = lim
	return lim
}

// Middleware wraps an LLMClient so every Complete/Stream call first waits for a token
// under provider's budget, per §5's per-call rate limiting.
func Middleware(l *Limiter, provider string) llm.Middleware {
	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				if err := l.Wait(ctx, provider); err != nil {
					return llm.CompletionResponse{}, err //nolint:wrapcheck // context cancellation propagated as-is
				}
				return next.Complete(ctx, req)
			},
			func(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
				if err := l.Wait(ctx, provider); err != nil {
					return nil, err //nolint:wrapcheck // context cancellation propagated as-is
				}
				return next.Stream(ctx, req)
			},
			func() string {
				return next.GetModelName()
			},
		)
	}
}
