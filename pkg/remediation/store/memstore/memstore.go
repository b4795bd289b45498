// Package memstore is an in-memory store.Store for tests, grounded on the fake-collaborator
// pattern the teacher pack tests use throughout (e.g. llmimpl client tests substituting a
// fake HTTP transport rather than hitting a real provider).
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ci-remediator/orchestrator/pkg/remediation/domain"
	remerrors "github.com/ci-remediator/orchestrator/pkg/remediation/errors"
	"github.com/ci-remediator/orchestrator/pkg/remediation/store"
)

// Store is a goroutine-safe in-memory store.Store implementation for unit tests.
type Store struct {
	mu sync.Mutex

	failures     map[string]domain.Failure
	failureByKey map[string]string
	analyses     map[string]domain.Analysis
	circuits     map[string]domain.CircuitState
	patterns     map[string]domain.Pattern
	profiles     map[string]domain.PersonalityProfile
	snapshots    map[string]domain.Snapshot
	healthChecks map[string]domain.HealthCheck
	approvals    map[string]domain.ApprovalRequest
	decisions    []domain.DecisionRecord
	audit        []domain.AuditEntry
	nextAuditID  int64
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		failures:     map[string]domain.Failure{},
		failureByKey: map[string]string{},
		analyses:     map[string]domain.Analysis{},
		circuits:     map[string]domain.CircuitState{},
		patterns:     map[string]domain.Pattern{},
		profiles:     map[string]domain.PersonalityProfile{},
		snapshots:    map[string]domain.Snapshot{},
		healthChecks: map[string]domain.HealthCheck{},
		approvals:    map[string]domain.ApprovalRequest{},
	}
}

// Close is a no-op; memstore holds nothing that needs releasing.
func (s *Store) Close() error { return nil }

var _ store.Store = (*Store)(nil)

func (s *Store) SaveFailure(_ context.Context, f *domain.Failure) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[f.ID] = *f
	s.failureByKey[f.Key()] = f.ID
	return nil
}

func (s *Store) GetFailure(_ context.Context, id string) (*domain.Failure, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.failures[id]
	if !ok {
		return nil, remerrors.ErrNotFound
	}
	return &f, nil
}

func (s *Store) FindFailureByKey(_ context.Context, key string) (*domain.Failure, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.failureByKey[key]
	if !ok {
		return nil, remerrors.ErrNotFound
	}
	f := s.failures[id]
	return &f, nil
}

func (s *Store) ListFailures(_ context.Context, repository string, statuses []domain.FailureStatus, limit int) ([]domain.Failure, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	allowed := map[domain.FailureStatus]bool{}
	for _, st := range statuses {
		allowed[st] = true
	}

	var out []domain.Failure
	for _, f := range s.failures {
		if f.Repository != repository {
			continue
		}
		if len(allowed) > 0 && !allowed[f.Status] {
			continue
		}
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DetectedAt.After(out[j].DetectedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) SaveAnalysis(_ context.Context, a *domain.Analysis) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.analyses[a.FailureID] = *a
	return nil
}

func (s *Store) GetAnalysis(_ context.Context, failureID string) (*domain.Analysis, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.analyses[failureID]
	if !ok {
		return nil, remerrors.ErrNotFound
	}
	return &a, nil
}

func (s *Store) SaveCircuitState(_ context.Context, c *domain.CircuitState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.circuits[c.Signature] = *c
	return nil
}

func (s *Store) GetCircuitState(_ context.Context, signature string) (*domain.CircuitState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.circuits[signature]
	if !ok {
		return nil, remerrors.ErrNotFound
	}
	return &c, nil
}

func (s *Store) ListOpenCircuits(_ context.Context) ([]domain.CircuitState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.CircuitState
	for _, c := range s.circuits {
		if c.State != domain.CircuitClosed {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *Store) SavePattern(_ context.Context, p *domain.Pattern) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.patterns[p.ID]; exists {
		return nil
	}
	s.patterns[p.ID] = *p
	return nil
}

func (s *Store) ListPatterns(_ context.Context, repository string, family domain.EmbeddingFamily) ([]domain.Pattern, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Pattern
	for _, p := range s.patterns {
		if p.Repository == repository && p.EmbeddingFamily == family {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *Store) SavePersonalityProfile(_ context.Context, p *domain.PersonalityProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.Repository] = *p
	return nil
}

func (s *Store) GetPersonalityProfile(_ context.Context, repository string) (*domain.PersonalityProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[repository]
	if !ok {
		return nil, remerrors.ErrNotFound
	}
	return &p, nil
}

func (s *Store) SaveSnapshot(_ context.Context, snap *domain.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[snap.ID] = *snap
	return nil
}

func (s *Store) GetSnapshot(_ context.Context, id string) (*domain.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.snapshots[id]
	if !ok {
		return nil, remerrors.ErrNotFound
	}
	return &snap, nil
}

func (s *Store) GetSnapshotByRemediationID(_ context.Context, remediationID string) (*domain.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, snap := range s.snapshots {
		if snap.RemediationID == remediationID {
			return &snap, nil
		}
	}
	return nil, remerrors.ErrNotFound
}

func (s *Store) ListExpiredSnapshots(_ context.Context, before time.Time) ([]domain.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Snapshot
	for _, snap := range s.snapshots {
		if snap.Status == domain.SnapshotActive && snap.ExpiresAt.Before(before) {
			out = append(out, snap)
		}
	}
	return out, nil
}

func (s *Store) UpdateSnapshotStatus(_ context.Context, id string, status domain.SnapshotStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.snapshots[id]
	if !ok {
		return remerrors.ErrNotFound
	}
	snap.Status = status
	s.snapshots[id] = snap
	return nil
}

func (s *Store) SaveHealthCheck(_ context.Context, h *domain.HealthCheck) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.healthChecks[h.ID] = *h
	return nil
}

func (s *Store) ListDueHealthChecks(_ context.Context, before time.Time) ([]domain.HealthCheck, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.HealthCheck
	for _, h := range s.healthChecks {
		if h.ExecutedAt == nil && h.ScheduledAt.Before(before) {
			out = append(out, h)
		}
	}
	return out, nil
}

func (s *Store) SaveApprovalRequest(_ context.Context, a *domain.ApprovalRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.approvals[a.ID] = *a
	return nil
}

func (s *Store) GetApprovalRequest(_ context.Context, id string) (*domain.ApprovalRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.approvals[id]
	if !ok {
		return nil, remerrors.ErrNotFound
	}
	return &a, nil
}

func (s *Store) ListPendingApprovals(_ context.Context, repository string) ([]domain.ApprovalRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.ApprovalRequest
	for _, a := range s.approvals {
		if a.Repository == repository && a.Status == domain.ApprovalPending {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *Store) ResolveApproval(_ context.Context, id string, status domain.ApprovalStatus, resolvedBy string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.approvals[id]
	if !ok {
		return remerrors.ErrNotFound
	}
	a.Status = status
	a.ResolvedBy = resolvedBy
	a.ResolvedAt = &at
	s.approvals[id] = a
	return nil
}

func (s *Store) SaveDecisionRecord(_ context.Context, d *domain.DecisionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decisions = append(s.decisions, *d)
	return nil
}

func (s *Store) ListDecisionsForFailure(_ context.Context, failureID string) ([]domain.DecisionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.DecisionRecord
	for _, d := range s.decisions {
		if d.FailureID == failureID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *Store) AppendAuditEntry(_ context.Context, e *domain.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextAuditID++
	e.ID = s.nextAuditID
	s.audit = append(s.audit, *e)
	return nil
}

func (s *Store) QueryAuditLog(_ context.Context, filter domain.AuditFilter) ([]domain.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.AuditEntry
	for i := len(s.audit) - 1; i >= 0; i-- {
		e := s.audit[i]
		if filter.Repository != "" {
			if repo, _ := e.Details["repository"].(string); repo != filter.Repository {
				continue
			}
		}
		if filter.FailureID != "" && e.FailureID != filter.FailureID {
			continue
		}
		if filter.ActionKind != "" && e.ActionKind != filter.ActionKind {
			continue
		}
		if !filter.Since.IsZero() && e.Timestamp.Before(filter.Since) {
			continue
		}
		if !filter.Until.IsZero() && e.Timestamp.After(filter.Until) {
			continue
		}
		out = append(out, e)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}
