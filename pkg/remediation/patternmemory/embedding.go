package patternmemory

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"strings"

	"github.com/ci-remediator/orchestrator/pkg/remediation/domain"
	"github.com/ci-remediator/orchestrator/pkg/remediation/substrate"
)

// HashedTokenDimension is the fixed dimension used by the deterministic fallback
// embedding, chosen to match a typical remote embedding endpoint's output size.
const HashedTokenDimension = 1536

// embed produces a fixed-dimension vector for text, preferring client when non-nil and
// falling back to a deterministic hashed-token projection otherwise. The chosen family
// is returned alongside the vector so callers can record it on the Pattern.
func embed(ctx context.Context, client substrate.EmbeddingClient, text string) ([]float32, domain.EmbeddingFamily, error) {
	if client != nil {
		vec, err := client.Embed(ctx, text)
		if err == nil {
			return vec, domain.EmbeddingFamilyRemote, nil
		}
		// Fall through to the hashed fallback rather than fail the whole store() call;
		// PatternMemory would rather record a lower-fidelity match than lose the pattern.
	}
	return hashedTokenEmbedding(text, HashedTokenDimension), domain.EmbeddingFamilyHashed, nil
}

// hashedTokenEmbedding projects text's whitespace-split tokens into a fixed-dimension
// vector by hashing each token into a bucket and accumulating a signed count, then
// L2-normalizing. Deterministic and dependency-free, used when no embedding endpoint is
// configured.
func hashedTokenEmbedding(text string, dim int) []float32 {
	vec := make([]float32, dim)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		sum := sha256.Sum256([]byte(tok))
		bucket := binary.BigEndian.Uint64(sum[:8]) % uint64(dim)
		sign := float32(1)
		if sum[8]&1 == 1 {
			sign = -1
		}
		vec[bucket] += sign
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return vec
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}

// cosineSimilarity computes cosine similarity between two equal-length vectors,
// grounded on the exact-search fallback used elsewhere in the retrieved pack for
// small vector collections.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}
