package domain

import "time"

// DecisionKind identifies which AI decision point produced a DecisionRecord.
type DecisionKind string

// Recognized decision kinds.
const (
	DecisionClassification DecisionKind = "classification"
	DecisionFixGeneration  DecisionKind = "fix_generation"
	DecisionRiskAssessment DecisionKind = "risk_assessment"
	DecisionFileSelection  DecisionKind = "file_selection"
	DecisionSafetyGate     DecisionKind = "safety_gate"
)

// Alternative is a rejected option considered during a decision.
type Alternative struct {
	Option           string  `json:"option"`
	Score            float64 `json:"score"`
	RejectionReason  string  `json:"rejection_reason"`
}

// DecisionRecord is an immutable audit of one AI or gate decision.
//
//nolint:govet // logical field grouping preferred over memory layout
type DecisionRecord struct {
	ID            string        `json:"id"`
	FailureID     string        `json:"failure_id"`
	Kind          DecisionKind  `json:"kind"`
	Chosen        string        `json:"chosen"`
	Alternatives  []Alternative `json:"alternatives"`
	ContextDigest string        `json:"context_digest"`
	Confidence    int           `json:"confidence"`
	CreatedAt     time.Time     `json:"created_at"`
}
