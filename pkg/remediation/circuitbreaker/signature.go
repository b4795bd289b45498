package circuitbreaker

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
)

var normalizers = []*regexp.Regexp{
	regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`),                     // ISO dates
	regexp.MustCompile(`\b\d{2}:\d{2}:\d{2}(\.\d+)?\b`),             // times
	regexp.MustCompile(`:\d+:\d+\b`),                                // line:col
	regexp.MustCompile(`\b\d+:\d+\b`),                               // line numbers
	regexp.MustCompile(`(?i)[a-z]:\\[^\s"']+`),                      // windows paths
	regexp.MustCompile(`/[^\s"']*/[^\s"']+`),                        // posix paths
	regexp.MustCompile(`\b0x[0-9a-fA-F]+\b`),                        // memory addresses
	regexp.MustCompile(`\b[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}\b`), // UUIDs
	regexp.MustCompile(`(?i)\bport[:=]?\s?\d{2,5}\b`),               // port numbers
	regexp.MustCompile(`/tmp/[^\s"']+`),                             // temp paths
}

// NormalizeReason strips the variable substrings CircuitBreaker's signature must ignore
// (dates, times, line numbers, paths, addresses, UUIDs, ports, temp paths) per §4.4, so
// two occurrences of the same underlying failure hash identically.
func NormalizeReason(reason string) string {
	out := reason
	for _, re := range normalizers {
		out = re.ReplaceAllString(out, "*")
	}
	return out
}

// Signature computes the normalized-string hash of (repository, branch, error_pattern)
// used to key the circuit breaker and pattern memory.
func Signature(repository, branch, reason string) string {
	normalized := NormalizeReason(reason)
	sum := sha256.Sum256([]byte(repository + "\x00" + branch + "\x00" + normalized))
	return hex.EncodeToString(sum[:])
}
