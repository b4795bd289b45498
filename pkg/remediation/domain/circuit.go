package domain

import "time"

// CircuitStateValue is the FSM state of a CircuitState.
type CircuitStateValue string

// Circuit breaker states.
const (
	CircuitClosed   CircuitStateValue = "CLOSED"
	CircuitOpen     CircuitStateValue = "OPEN"
	CircuitHalfOpen CircuitStateValue = "HALF_OPEN"
)

// CircuitTransition records one edge taken by a CircuitState's FSM.
type CircuitTransition struct {
	From   CircuitStateValue `json:"from"`
	To     CircuitStateValue `json:"to"`
	Reason string            `json:"reason"`
	At     time.Time         `json:"at"`
	Actor  string            `json:"actor"`
}

// CircuitState is the persisted breaker state for one normalized failure signature.
//
//nolint:govet // logical field grouping preferred over memory layout
type CircuitState struct {
	Signature    string              `json:"signature"`
	State        CircuitStateValue   `json:"state"`
	FailureCount int                 `json:"failure_count"`
	LastFailureAt time.Time          `json:"last_failure_at"`
	OpenedAt     *time.Time          `json:"opened_at,omitempty"`
	AutoResetAt  *time.Time          `json:"auto_reset_at,omitempty"`
	History      []CircuitTransition `json:"history"`
}
