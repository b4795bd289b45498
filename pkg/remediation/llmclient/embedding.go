package llmclient

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/ci-remediator/orchestrator/pkg/config"
)

// EmbeddingClient wraps langchaingo's OpenAI-compatible embedder, grounded on the
// retrieval pack's embedding-service pattern: works against OpenAI directly or any
// OpenAI-compatible endpoint (e.g. a self-hosted TEI server) by base URL.
type EmbeddingClient struct {
	embedder embeddings.Embedder
	dim      int
}

// NewEmbeddingClient constructs an EmbeddingClient for cfg.Substrate.EmbeddingModel,
// or returns (nil, nil) if no embedding model is configured, signaling PatternMemory to
// use its deterministic hashed-token fallback instead.
func NewEmbeddingClient(cfg *config.Config) (*EmbeddingClient, error) {
	if cfg.Substrate.EmbeddingModel == "" {
		return nil, nil
	}
	apiKey := config.GetEmbeddingAPIKey()
	if apiKey == "" {
		apiKey = "placeholder"
	}

	llm, err := openai.New(
		openai.WithModel(cfg.Substrate.EmbeddingModel),
		openai.WithToken(apiKey),
	)
	if err != nil {
		return nil, fmt.Errorf("llmclient: creating embedding backend: %w", err)
	}
	embedder, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("llmclient: creating embedder: %w", err)
	}
	return &EmbeddingClient{embedder: embedder, dim: 1536}, nil
}

// Embed produces a single embedding vector for text.
func (c *EmbeddingClient) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.embedder.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("llmclient: embed: %w", err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("llmclient: embedding backend returned no vectors")
	}
	return vectors[0], nil
}

// Dimension returns the fixed embedding dimension this client produces.
func (c *EmbeddingClient) Dimension() int {
	return c.dim
}
