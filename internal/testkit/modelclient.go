package testkit

import (
	"context"
	"sync"

	"github.com/ci-remediator/orchestrator/pkg/agent/llm"
)

// FakeModelClient is a scripted substrate.ModelClient: each call to Complete consumes
// the next queued response or error, repeating the last entry once the queue is drained.
type FakeModelClient struct {
	mu        sync.Mutex
	Responses []llm.CompletionResponse
	Errs      []error
	Calls     []llm.CompletionRequest
}

// NewFakeModelClient returns a FakeModelClient that always returns resp.
func NewFakeModelClient(resp llm.CompletionResponse) *FakeModelClient {
	return &FakeModelClient{Responses: []llm.CompletionResponse{resp}}
}

func (f *FakeModelClient) Complete(_ context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := len(f.Calls)
	f.Calls = append(f.Calls, req)

	if i < len(f.Errs) && f.Errs[i] != nil {
		return llm.CompletionResponse{}, f.Errs[i]
	}
	if i < len(f.Responses) {
		return f.Responses[i], nil
	}
	return f.Responses[len(f.Responses)-1], nil
}

// Stream is unused by the remediation control loop, which only calls Complete; it exists
// to satisfy llm.LLMClient.
func (f *FakeModelClient) Stream(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
	resp, err := f.Complete(ctx, req)
	ch := make(chan llm.StreamChunk, 1)
	if err != nil {
		ch <- llm.StreamChunk{Error: err, Done: true}
	} else {
		ch <- llm.StreamChunk{Content: resp.Content, Done: true}
	}
	close(ch)
	return ch, nil
}

// GetModelName satisfies llm.LLMClient.
func (f *FakeModelClient) GetModelName() string { return "fake-model" }

var _ llm.LLMClient = (*FakeModelClient)(nil)
