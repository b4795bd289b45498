package domain

import "time"

// SnapshotStatus is the lifecycle state of a Snapshot.
type SnapshotStatus string

// Recognized snapshot statuses.
const (
	SnapshotActive     SnapshotStatus = "active"
	SnapshotRolledBack SnapshotStatus = "rolled_back"
	SnapshotExpired    SnapshotStatus = "expired"
)

// SnapshotFile is one file's pre-edit bytes and content hash.
type SnapshotFile struct {
	Path         string `json:"path"`
	ContentHash  string `json:"content_hash"`
	ContentBytes []byte `json:"content_bytes"`
}

// Snapshot is a pre-edit capture of the files the Executor is about to modify.
//
//nolint:govet // logical field grouping preferred over memory layout
type Snapshot struct {
	ID            string         `json:"snapshot_id"`
	Repository    string         `json:"repository"`
	RemediationID string         `json:"remediation_id"`
	Branch        string         `json:"branch"`
	BaseCommitSHA string         `json:"base_commit_sha"`
	Files         []SnapshotFile `json:"files"`
	CreatedAt     time.Time      `json:"created_at"`
	ExpiresAt     time.Time      `json:"expires_at"`
	Status        SnapshotStatus `json:"status"`
}

// HealthCheckItem is one named rule evaluated by a HealthCheck.
type HealthCheckItem struct {
	Name    string `json:"name"`
	Passed  bool   `json:"passed"`
	Message string `json:"message"`
}

// HealthCheck is a scheduled post-remediation verification.
//
//nolint:govet // logical field grouping preferred over memory layout
type HealthCheck struct {
	ID               string            `json:"check_id"`
	RemediationID    string            `json:"remediation_id"`
	SnapshotID       string            `json:"snapshot_id"`
	ScheduledAt      time.Time         `json:"scheduled_at"`
	ExecutedAt       *time.Time        `json:"executed_at,omitempty"`
	Passed           *bool             `json:"passed,omitempty"`
	Checks           []HealthCheckItem `json:"checks"`
	TriggeredRollback bool             `json:"triggered_rollback"`
}

// RollbackFileOutcome records whether one file's rollback write succeeded.
type RollbackFileOutcome struct {
	Path      string `json:"path"`
	Succeeded bool   `json:"succeeded"`
	Reason    string `json:"reason,omitempty"`
}
