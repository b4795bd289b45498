// Package errors defines the typed error taxonomy shared by the remediation control loop.
//
// Substrate adapters translate transport-level failures into these sentinels at the
// boundary (see pkg/remediation/vcsclient, pkg/remediation/llmclient) so the Orchestrator
// never observes a raw network or HTTP error, matching the propagation policy of the
// teacher's pkg/agent/llmerrors.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for the retryable transient taxonomy (§7 spec.md).
var (
	// ErrUpstreamTimeout indicates a substrate call exceeded its deadline.
	ErrUpstreamTimeout = errors.New("upstream timeout")
	// ErrUpstreamRejected indicates the upstream returned a non-timeout failure (5xx, connection reset).
	ErrUpstreamRejected = errors.New("upstream rejected request")
	// ErrRateLimited indicates the upstream signaled a rate limit; callers must honor a sleep, not a retry budget.
	ErrRateLimited = errors.New("rate limited")
	// ErrParseMalformed indicates the LLM response could not be decoded by any parse strategy.
	ErrParseMalformed = errors.New("malformed model response")

	// ErrAuth indicates an authentication/authorization failure; never retried.
	ErrAuth = errors.New("authentication failed")

	// ErrCircuitOpen indicates the circuit breaker denied an attempt for a signature.
	ErrCircuitOpen = errors.New("circuit breaker open")

	// ErrSnapshotFailed indicates pre-edit snapshotting failed; the remediation must abort.
	ErrSnapshotFailed = errors.New("snapshot capture failed")
	// ErrHashMismatch indicates a rollback target's captured hash no longer matches expectations.
	ErrHashMismatch = errors.New("snapshot hash mismatch")
	// ErrIllegalTransition indicates an attempted Failure state transition outside the documented FSM.
	ErrIllegalTransition = errors.New("illegal state transition")

	// ErrApprovalTimeout indicates an ApprovalRequest expired before resolution.
	ErrApprovalTimeout = errors.New("approval request expired")
	// ErrApprovalRejected indicates a human explicitly rejected the approval checkpoint.
	ErrApprovalRejected = errors.New("approval rejected")

	// ErrNotFound indicates a Store lookup found no matching record.
	ErrNotFound = errors.New("record not found")
)

// Retryable is implemented by errors that carry their own retry classification.
type Retryable interface {
	error
	IsRetryable() bool
}

// TransientError wraps a substrate error with retry classification, grounded on
// pkg/agent/llmerrors.Error's Type+IsRetryable design.
type TransientError struct {
	Err       error
	Operation string
}

// Error implements the error interface.
func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: %v", e.Operation, e.Err)
}

// Unwrap allows errors.Is/errors.As to see through to the sentinel or underlying cause.
func (e *TransientError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether this failure category should be retried by the caller's
// backoff policy. Auth and parse failures are never retryable; everything else is.
func (e *TransientError) IsRetryable() bool {
	return !errors.Is(e.Err, ErrAuth) && !errors.Is(e.Err, ErrParseMalformed)
}

// Wrap classifies a raw substrate error into a TransientError tagged with the failing
// operation name, for use at adapter boundaries.
func Wrap(operation string, err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Operation: operation, Err: err}
}
