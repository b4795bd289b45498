// Package explainability is the read/write surface over the decision and audit ledgers:
// every AI decision point and gate outcome is recorded as a DecisionRecord in Store and
// mirrored to a JSONL AuditEntry via eventlog.Writer, so remediation history survives a
// database rebuild (§4.9's requirement that every automated action be explainable after
// the fact).
package explainability

import (
	"context"
	"fmt"

	"github.com/ci-remediator/orchestrator/pkg/eventlog"
	"github.com/ci-remediator/orchestrator/pkg/remediation/domain"
	"github.com/ci-remediator/orchestrator/pkg/remediation/store"
	"github.com/ci-remediator/orchestrator/pkg/remediation/substrate"
)

// Ledger records DecisionRecords and AuditEntries, and answers audit queries.
type Ledger struct {
	store  store.Store
	events *eventlog.Writer
	clock  substrate.Clock
}

// New constructs a Ledger. events may be nil to disable the JSONL mirror (e.g. in tests
// that only care about the Store side).
func New(s store.Store, events *eventlog.Writer, clock substrate.Clock) *Ledger {
	return &Ledger{store: s, events: events, clock: clock}
}

// RecordDecision persists a DecisionRecord to Store and mirrors it to the audit trail.
func (l *Ledger) RecordDecision(ctx context.Context, d domain.DecisionRecord) error {
	if err := l.store.SaveDecisionRecord(ctx, &d); err != nil {
		return fmt.Errorf("explainability: save decision: %w", err)
	}
	return l.audit(ctx, domain.AuditEntry{
		Timestamp:  l.clock.Now(),
		Actor:      string(d.Kind),
		ActionKind: "decision_recorded",
		FailureID:  d.FailureID,
		Outcome:    domain.AuditSuccess,
		Details: map[string]interface{}{
			"decision_id": d.ID,
			"chosen":      d.Chosen,
			"confidence":  d.Confidence,
		},
	})
}

// RecordAction appends an arbitrary control-loop action (a gate verdict, an executor
// step, a rollback) to the audit trail without an associated DecisionRecord.
func (l *Ledger) RecordAction(ctx context.Context, actor, actionKind, failureID string, outcome domain.AuditOutcome, details map[string]interface{}) error {
	return l.audit(ctx, domain.AuditEntry{
		Timestamp:  l.clock.Now(),
		Actor:      actor,
		ActionKind: actionKind,
		FailureID:  failureID,
		Outcome:    outcome,
		Details:    details,
	})
}

func (l *Ledger) audit(ctx context.Context, e domain.AuditEntry) error {
	if err := l.store.AppendAuditEntry(ctx, &e); err != nil {
		return fmt.Errorf("explainability: append audit entry: %w", err)
	}
	if l.events != nil {
		if err := l.events.WriteEntry(&e); err != nil {
			return fmt.Errorf("explainability: mirror to eventlog: %w", err)
		}
	}
	return nil
}

// DecisionsFor returns every DecisionRecord attached to a failure, in the order they were
// made — the full "why did the system do this" trail for one remediation.
func (l *Ledger) DecisionsFor(ctx context.Context, failureID string) ([]domain.DecisionRecord, error) {
	records, err := l.store.ListDecisionsForFailure(ctx, failureID)
	if err != nil {
		return nil, fmt.Errorf("explainability: list decisions: %w", err)
	}
	return records, nil
}

// Query runs an audit-trail search over the given filter.
func (l *Ledger) Query(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEntry, error) {
	entries, err := l.store.QueryAuditLog(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("explainability: query audit log: %w", err)
	}
	return entries, nil
}
