package classifier

import (
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

// MaxLogTailTokens bounds how much of a failure's captured log makes it into the prompt,
// grounded on the teacher's pkg/utils.TokenCounter but sized for a log tail rather than a
// whole conversation. The Classifier is provider-agnostic (§13's per-vendor ModelClient
// adapters expose one shared interface), so, like the teacher's own fallback branch, one
// GPT-4 codec is used as an approximation across providers rather than one codec per model.
const MaxLogTailTokens = 1500

var (
	tokenCodecOnce sync.Once
	tokenCodec     tokenizer.Codec
)

func codec() tokenizer.Codec {
	tokenCodecOnce.Do(func() {
		c, err := tokenizer.ForModel(tokenizer.GPT4)
		if err == nil {
			tokenCodec = c
		}
	})
	return tokenCodec
}

// countTokens returns the codec's token count, falling back to the teacher's
// four-chars-per-token estimate if the codec failed to initialize.
func countTokens(s string) int {
	c := codec()
	if c == nil {
		return len(s) / 4
	}
	n, err := c.Count(s)
	if err != nil {
		return len(s) / 4
	}
	return n
}

// truncateTailTokens keeps the trailing maxTokens worth of s, since the most recent lines
// of a CI log are the ones most likely to name the actual failure. Truncation is by
// proportional character estimate rather than exact token boundaries, matching the
// teacher's TruncateToTokenLimit.
func truncateTailTokens(s string, maxTokens int) string {
	total := countTokens(s)
	if total <= maxTokens {
		return s
	}
	ratio := float64(maxTokens) / float64(total)
	charLimit := int(float64(len(s)) * ratio * 0.9)
	if charLimit <= 0 || charLimit >= len(s) {
		return s
	}
	return s[len(s)-charLimit:]
}
