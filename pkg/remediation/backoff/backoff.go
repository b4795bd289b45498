// Package backoff implements the full-jitter exponential backoff policy shared by the
// Poller's rate-limit handling, the Classifier's retryable-error handling, and the
// Notifier's webhook retries (§4.1, §4.2, §5). This is deliberately a small, dependency-free
// duration calculator rather than the teacher's pkg/agent/middleware/resilience/retry
// policy: that package's Policy is wired for real as LLM client middleware in
// pkg/remediation/llmclient (it classifies errors via the circuit breaker's Error type and
// targets a single LLMClient.Complete call), while the three callers here only need a
// delay-for-attempt-N calculation around plain VCS/HTTP calls that know nothing about
// LLM-specific error shapes.
package backoff

import (
	"math/rand"
	"time"
)

// Policy is a full-jitter exponential backoff: delay = random(0, min(cap, base*2^attempt)).
type Policy struct {
	Base       time.Duration
	Cap        time.Duration
	MaxRetries int
}

// PollerPolicy matches §4.1's rate-limit backoff: base 1s, cap 60s.
var PollerPolicy = Policy{Base: time.Second, Cap: 60 * time.Second, MaxRetries: 0}

// ClassifierPolicy matches §4.2's retry bound: same shape, capped at 3 retries after the first attempt.
var ClassifierPolicy = Policy{Base: time.Second, Cap: 60 * time.Second, MaxRetries: 3}

// Delay returns the backoff duration for the given zero-indexed attempt number, using
// full jitter (AWS's "Exponential Backoff And Jitter" full-jitter variant) so many
// callers backing off simultaneously don't converge on the same retry instant.
func (p Policy) Delay(attempt int) time.Duration {
	exp := p.Base << attempt
	if exp <= 0 || exp > p.Cap {
		exp = p.Cap
	}
	if exp <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(exp))) //nolint:gosec // jitter timing, not security sensitive
}
