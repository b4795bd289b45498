package patternmemory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ci-remediator/orchestrator/pkg/remediation/domain"
	"github.com/ci-remediator/orchestrator/pkg/remediation/store/memstore"
)

func TestHashedTokenEmbedding_Deterministic(t *testing.T) {
	a := hashedTokenEmbedding("npm install timeout after 30s", HashedTokenDimension)
	b := hashedTokenEmbedding("npm install timeout after 30s", HashedTokenDimension)
	assert.Equal(t, a, b)
}

func TestCosineSimilarity_IdenticalVectorIsOne(t *testing.T) {
	v := hashedTokenEmbedding("dependency resolution failed for package foo", HashedTokenDimension)
	assert.InDelta(t, 1.0, cosineSimilarity(v, v), 1e-9)
}

func TestMemory_StoreRejectsUnsuccessfulPattern(t *testing.T) {
	m := New(memstore.New(), nil)
	err := m.Store(context.Background(), domain.Pattern{Repository: "org/repo", FixSuccessful: false}, "boom")
	assert.Error(t, err)
}

func TestMemory_StoreAndRecallSimilar(t *testing.T) {
	ctx := context.Background()
	m := New(memstore.New(), nil)

	require.NoError(t, m.Store(ctx, domain.Pattern{
		Repository: "org/repo", Category: "dependency", ProposedFix: "pin npm registry mirror",
		FixSuccessful: true,
	}, "npm install timeout after 30s connecting to registry"))

	matches, err := m.Similar(ctx, "npm install timeout after 30s connecting to registry", "dependency", "org/repo", 3)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "pin npm registry mirror", matches[0].Pattern.ProposedFix)
	assert.GreaterOrEqual(t, matches[0].Similarity, SameCategoryThreshold)
}

func TestMemory_SimilarFiltersUnrelatedFailures(t *testing.T) {
	ctx := context.Background()
	m := New(memstore.New(), nil)

	require.NoError(t, m.Store(ctx, domain.Pattern{
		Repository: "org/repo", Category: "dependency", ProposedFix: "pin npm registry mirror",
		FixSuccessful: true,
	}, "npm install timeout after 30s connecting to registry"))

	matches, err := m.Similar(ctx, "segmentation fault in native addon during test run", "compile_error", "org/repo", 3)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestMemory_WarmLoadsFromStore(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	m := New(s, nil)
	require.NoError(t, m.Store(ctx, domain.Pattern{
		Repository: "org/repo", Category: "dependency", ProposedFix: "bump lockfile", FixSuccessful: true,
	}, "yarn.lock out of date"))

	fresh := New(s, nil)
	require.NoError(t, fresh.Warm(ctx, []string{"org/repo"}))
	matches, err := fresh.Similar(ctx, "yarn.lock out of date", "dependency", "org/repo", 3)
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}
