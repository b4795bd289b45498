// Package store defines the persistence collaborator the remediation control loop
// depends on. sqlite implements it against modernc.org/sqlite for production use;
// memstore implements it in memory for tests, grounded on the teacher's
// pkg/persistence split between a durable and a substrate-facing store boundary.
package store

import (
	"context"
	"time"

	"github.com/ci-remediator/orchestrator/pkg/remediation/domain"
)

// Store is the durable persistence collaborator over every entity named in §3.
// All methods are safe for concurrent use.
type Store interface {
	SaveFailure(ctx context.Context, f *domain.Failure) error
	GetFailure(ctx context.Context, id string) (*domain.Failure, error)
	FindFailureByKey(ctx context.Context, key string) (*domain.Failure, error)
	ListFailures(ctx context.Context, repository string, statuses []domain.FailureStatus, limit int) ([]domain.Failure, error)

	SaveAnalysis(ctx context.Context, a *domain.Analysis) error
	GetAnalysis(ctx context.Context, failureID string) (*domain.Analysis, error)

	SaveCircuitState(ctx context.Context, s *domain.CircuitState) error
	GetCircuitState(ctx context.Context, signature string) (*domain.CircuitState, error)
	ListOpenCircuits(ctx context.Context) ([]domain.CircuitState, error)

	SavePattern(ctx context.Context, p *domain.Pattern) error
	ListPatterns(ctx context.Context, repository string, family domain.EmbeddingFamily) ([]domain.Pattern, error)

	SavePersonalityProfile(ctx context.Context, p *domain.PersonalityProfile) error
	GetPersonalityProfile(ctx context.Context, repository string) (*domain.PersonalityProfile, error)

	SaveSnapshot(ctx context.Context, s *domain.Snapshot) error
	GetSnapshot(ctx context.Context, id string) (*domain.Snapshot, error)
	GetSnapshotByRemediationID(ctx context.Context, remediationID string) (*domain.Snapshot, error)
	ListExpiredSnapshots(ctx context.Context, before time.Time) ([]domain.Snapshot, error)
	UpdateSnapshotStatus(ctx context.Context, id string, status domain.SnapshotStatus) error

	SaveHealthCheck(ctx context.Context, h *domain.HealthCheck) error
	ListDueHealthChecks(ctx context.Context, before time.Time) ([]domain.HealthCheck, error)

	SaveApprovalRequest(ctx context.Context, a *domain.ApprovalRequest) error
	GetApprovalRequest(ctx context.Context, id string) (*domain.ApprovalRequest, error)
	ListPendingApprovals(ctx context.Context, repository string) ([]domain.ApprovalRequest, error)
	ResolveApproval(ctx context.Context, id string, status domain.ApprovalStatus, resolvedBy string, at time.Time) error

	SaveDecisionRecord(ctx context.Context, d *domain.DecisionRecord) error
	ListDecisionsForFailure(ctx context.Context, failureID string) ([]domain.DecisionRecord, error)

	AppendAuditEntry(ctx context.Context, e *domain.AuditEntry) error
	QueryAuditLog(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEntry, error)

	Close() error
}
