package domain

import "time"

// ApprovalStatus is the lifecycle state of an ApprovalRequest.
type ApprovalStatus string

// Recognized approval statuses.
const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
	ApprovalExpired  ApprovalStatus = "expired"
)

// ApprovalRequest is created when SafetyGate denies auto-apply and escalates to a human.
//
//nolint:govet // logical field grouping preferred over memory layout
type ApprovalRequest struct {
	ID                string         `json:"request_id"`
	FailureID         string         `json:"failure_id"`
	RemediationID     string         `json:"remediation_id"`
	Repository        string         `json:"repository"`
	PRNumber          int            `json:"pr_number"`
	RequiredReviewers []string       `json:"required_reviewers"`
	EnvironmentName   string         `json:"environment_name"`
	DeploymentID      int64          `json:"deployment_id"`
	Status            ApprovalStatus `json:"status"`
	CreatedAt         time.Time      `json:"created_at"`
	ExpiresAt         time.Time      `json:"expires_at"`
	ResolvedAt        *time.Time     `json:"resolved_at,omitempty"`
	ResolvedBy        string         `json:"resolved_by,omitempty"`
}
