// Package patternmemory implements similarity-based recall of past (failure ->
// successful fix) pairs to inform the Classifier prompt (§4.6). Writes are dual to an
// in-memory index and the durable Store; reads never mix embedding families.
package patternmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ci-remediator/orchestrator/pkg/remediation/circuitbreaker"
	"github.com/ci-remediator/orchestrator/pkg/remediation/domain"
	"github.com/ci-remediator/orchestrator/pkg/remediation/store"
	"github.com/ci-remediator/orchestrator/pkg/remediation/substrate"
)

// SameCategoryThreshold is the minimum cosine similarity for a match against the same
// failure category.
const SameCategoryThreshold = 0.75

// CrossCategoryThreshold is the minimum cosine similarity for a match against a
// different failure category.
const CrossCategoryThreshold = 0.85

// Memory is the PatternMemory service: an in-memory index warmed at startup, backed by
// a durable Store for restart survival.
type Memory struct {
	store    store.Store
	embedder substrate.EmbeddingClient

	mu    sync.RWMutex
	index map[string][]domain.Pattern // keyed by repository
}

// New constructs a Memory over s. embedder may be nil, in which case every embedding
// uses the deterministic hashed-token fallback.
func New(s store.Store, embedder substrate.EmbeddingClient) *Memory {
	return &Memory{store: s, embedder: embedder, index: make(map[string][]domain.Pattern)}
}

// Warm loads every pattern for the given repositories from Store into the in-memory
// index, called once at startup.
func (m *Memory) Warm(ctx context.Context, repositories []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, repo := range repositories {
		remote, err := m.store.ListPatterns(ctx, repo, domain.EmbeddingFamilyRemote)
		if err != nil {
			return fmt.Errorf("patternmemory: warm %s (remote): %w", repo, err)
		}
		hashed, err := m.store.ListPatterns(ctx, repo, domain.EmbeddingFamilyHashed)
		if err != nil {
			return fmt.Errorf("patternmemory: warm %s (hashed): %w", repo, err)
		}
		m.index[repo] = append(append([]domain.Pattern{}, remote...), hashed...)
	}
	return nil
}

// Store records a successful (or explicitly-marked-failed, under a negative-example
// policy) remediation as a Pattern, writing to both the in-memory index and Store. The
// error_signature is normalized identically to CircuitBreaker's scheme before
// embedding, to improve recall across superficially different occurrences of the same
// failure.
func (m *Memory) Store(ctx context.Context, p domain.Pattern, rawFailureReason string) error {
	if !p.FixSuccessful {
		// Negative examples are not currently enabled; the caller should not invoke
		// Store for a failed remediation unless that policy is turned on.
		return fmt.Errorf("patternmemory: refusing to store a non-successful pattern without negative-example policy")
	}

	normalized := circuitbreaker.NormalizeReason(rawFailureReason)
	vec, family, err := embed(ctx, m.embedder, normalized)
	if err != nil {
		return fmt.Errorf("patternmemory: embed: %w", err)
	}
	p.ErrorSignature = normalized
	p.Embedding = vec
	p.EmbeddingFamily = family

	if err := m.store.SavePattern(ctx, &p); err != nil {
		return fmt.Errorf("patternmemory: persist: %w", err)
	}

	m.mu.Lock()
	m.index[p.Repository] = append(m.index[p.Repository], p)
	m.mu.Unlock()
	return nil
}

// Similar returns the top-k patterns most similar to failureReason within repository,
// filtered by the category-aware similarity threshold: 0.75 when the pattern's category
// matches, 0.85 otherwise. Only patterns sharing the query embedding's family are
// considered, so remote and hashed vectors are never compared against each other.
func (m *Memory) Similar(ctx context.Context, failureReason, category, repository string, k int) ([]domain.Match, error) {
	normalized := circuitbreaker.NormalizeReason(failureReason)
	queryVec, family, err := embed(ctx, m.embedder, normalized)
	if err != nil {
		return nil, fmt.Errorf("patternmemory: embed query: %w", err)
	}

	m.mu.RLock()
	candidates := append([]domain.Pattern{}, m.index[repository]...)
	m.mu.RUnlock()

	var matches []domain.Match
	for _, p := range candidates {
		if p.EmbeddingFamily != family {
			continue
		}
		sim := cosineSimilarity(queryVec, p.Embedding)
		threshold := CrossCategoryThreshold
		if p.Category == category {
			threshold = SameCategoryThreshold
		}
		if sim >= threshold {
			matches = append(matches, domain.Match{Pattern: p, Similarity: sim})
		}
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Similarity > matches[j].Similarity })
	if k > 0 && len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}
