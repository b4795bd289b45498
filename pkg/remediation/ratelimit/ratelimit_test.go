package ratelimit_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ci-remediator/orchestrator/internal/testkit"
	"github.com/ci-remediator/orchestrator/pkg/agent/llm"
	"github.com/ci-remediator/orchestrator/pkg/config"
	"github.com/ci-remediator/orchestrator/pkg/remediation/ratelimit"
)

func TestMiddleware_AllowsWithinBudget(t *testing.T) {
	l := ratelimit.New(map[string]config.RateLimitConfig{
		"anthropic": {TokensPerMinute: 6000, MaxConcurrency: 5},
	})
	fake := testkit.NewFakeModelClient(llm.CompletionResponse{Content: "ok"})
	client := ratelimit.Middleware(l, "anthropic")(fake)

	resp, err := client.Complete(context.Background(), llm.CompletionRequest{})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
}

func TestMiddleware_BlocksBeyondBurstUntilContextDeadline(t *testing.T) {
	l := ratelimit.New(map[string]config.RateLimitConfig{
		"anthropic": {TokensPerMinute: 1, MaxConcurrency: 1},
	})
	fake := testkit.NewFakeModelClient(llm.CompletionResponse{Content: "ok"})
	client := ratelimit.Middleware(l, "anthropic")(fake)

	ctx := context.Background()
	_, err := client.Complete(ctx, llm.CompletionRequest{})
	require.NoError(t, err)

	shortCtx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = client.Complete(shortCtx, llm.CompletionRequest{})
	assert.Error(t, err)
}

func TestMiddleware_UnconfiguredProviderFallsBackToDefault(t *testing.T) {
	l := ratelimit.New(nil)
	fake := testkit.NewFakeModelClient(llm.CompletionResponse{Content: "ok"})
	client := ratelimit.Middleware(l, "unknown-provider")(fake)

	resp, err := client.Complete(context.Background(), llm.CompletionRequest{})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
}
