package orchestrator

import (
	"context"
	"fmt"

	"github.com/ci-remediator/orchestrator/pkg/remediation/domain"
	"github.com/ci-remediator/orchestrator/pkg/remediation/executor"
	"github.com/ci-remediator/orchestrator/pkg/remediation/substrate"
)

// sweepApprovals polls every pending ApprovalRequest across managed repositories and
// carries approved/rejected/expired ones to their next state, per the "gated -> (approval)
// pr_open" and "gated -> failed" transitions of §4.9.
func (o *Orchestrator) sweepApprovals(ctx context.Context) {
	for _, repo := range o.cfg.Repositories {
		pending, err := o.store.ListPendingApprovals(ctx, repo)
		if err != nil {
			o.logger.Warn("orchestrator: list pending approvals repository=%s err=%v", repo, err)
			continue
		}
		for _, req := range pending {
			req := req
			o.resolveApproval(ctx, req)
		}
	}
}

func (o *Orchestrator) resolveApproval(ctx context.Context, req domain.ApprovalRequest) {
	outcome, err := o.approval.Poll(ctx, req)
	if err != nil && outcome == "" {
		o.logger.Warn("orchestrator: approval poll error request=%s err=%v", req.ID, err)
		return
	}

	failure, ferr := o.store.GetFailure(ctx, req.FailureID)
	if ferr != nil {
		o.logger.Warn("orchestrator: approval resolution: load failure=%s err=%v", req.FailureID, ferr)
		return
	}

	switch outcome {
	case approvalOutcomeApproved:
		_ = o.finalizeApprovedRemediation(ctx, *failure, req)
	case approvalOutcomeRejected:
		_ = o.fail(ctx, *failure, "remediation rejected by reviewer")
	case approvalOutcomeExpired:
		_ = o.fail(ctx, *failure, "approval request expired")
	default:
		// still pending, nothing to do
	}
}

// finalizeApprovedRemediation schedules the health check for a remediation whose fix PR
// was already opened by requestApproval; the branch was cut at request time so the
// approved fix is exactly what a human reviewed.
func (o *Orchestrator) finalizeApprovedRemediation(ctx context.Context, failure domain.Failure, req domain.ApprovalRequest) error {
	snap, err := o.store.GetSnapshotByRemediationID(ctx, req.RemediationID)
	if err != nil {
		return o.fail(ctx, failure, fmt.Sprintf("post-approval snapshot lookup failed: %v", err))
	}
	if _, err := executor.ScheduleHealthCheck(ctx, o.store, o.clock, req.RemediationID, snap.ID, o.cfg.HealthCheckDelayMinutes); err != nil {
		return fmt.Errorf("orchestrator: schedule post-approval health check: %w", err)
	}
	o.sendNotification(ctx, failure.Repository, substrate.NotifyRemediationResult, map[string]any{
		"failure_id": failure.ID, "approved": true,
	})
	return o.ledger.RecordAction(ctx, "approval", "approved_pending_health_check", failure.ID, domain.AuditSuccess, nil)
}

// approval outcome aliases kept local so this file doesn't need to import the approval
// package's Outcome type name into every switch arm above.
const (
	approvalOutcomeApproved = "approved"
	approvalOutcomeRejected = "rejected"
	approvalOutcomeExpired  = "expired"
)

// sweepHealthChecks evaluates every HealthCheck whose ScheduledAt has passed, rolling
// back the remediation on failure and marking the Failure remediated on success.
func (o *Orchestrator) sweepHealthChecks(ctx context.Context) {
	due, err := o.store.ListDueHealthChecks(ctx, o.clock.Now())
	if err != nil {
		o.logger.Warn("orchestrator: list due health checks err=%v", err)
		return
	}
	for _, hc := range due {
		hc := hc
		o.evaluateOne(ctx, hc)
	}
}

func (o *Orchestrator) evaluateOne(ctx context.Context, hc domain.HealthCheck) {
	snap, err := o.store.GetSnapshot(ctx, hc.SnapshotID)
	if err != nil {
		o.logger.Warn("orchestrator: health check snapshot lookup failed check=%s err=%v", hc.ID, err)
		return
	}

	items := executor.EvaluateHealthCheck(ctx, o.vcs, snap.Repository, snap.Branch)
	passed := executor.Passed(items)
	now := o.clock.Now()
	hc.ExecutedAt = &now
	hc.Checks = items
	hc.Passed = &passed

	failure, ferr := o.failureForSnapshot(ctx, *snap)
	if ferr != nil {
		o.logger.Warn("orchestrator: health check failure lookup failed check=%s err=%v", hc.ID, ferr)
	}

	if passed {
		if ferr == nil {
			o.markRemediated(ctx, *failure)
			if o.exporter != nil {
				o.exporter.RemediationsSucceededTotal.WithLabelValues(failure.Repository).Inc()
			}
		}
		if err := o.store.SaveHealthCheck(ctx, &hc); err != nil {
			o.logger.Warn("orchestrator: persist passed health check err=%v", err)
		}
		return
	}

	hc.TriggeredRollback = true
	if err := o.store.SaveHealthCheck(ctx, &hc); err != nil {
		o.logger.Warn("orchestrator: persist failed health check err=%v", err)
	}

	exec := o.executorFor(false)
	rollbackResult, err := exec.Rollback(ctx, o.notifier, *snap, "post-remediation health check failed")
	if err != nil {
		o.logger.Error("orchestrator: rollback failed snapshot=%s err=%v", snap.ID, err)
	}
	if o.exporter != nil {
		o.exporter.RollbacksTotal.WithLabelValues(snap.Repository).Inc()
	}

	if ferr == nil {
		if brErr := o.breaker.RecordFailure(ctx, failure.Repository, failure.Branch, failure.FailureReason); brErr != nil {
			o.logger.Warn("orchestrator: circuit failure recording failed repository=%s err=%v", failure.Repository, brErr)
		}
		_ = o.fail(ctx, *failure, fmt.Sprintf("health check failed, rolled back (partial=%t)", rollbackResult.Partial))
	}
}

// failureForSnapshot resolves the Failure a Snapshot's remediation belongs to. Snapshots
// don't carry a failure_id directly (they're keyed by remediation and capture the
// original failing branch, not the fix branch), so this walks the pr_open failures for
// the snapshot's repository and matches on that branch. Per-repository serialization in
// pollOnce keeps at most one failure per (repository, branch) in flight at a time, so the
// match is unambiguous in practice.
func (o *Orchestrator) failureForSnapshot(ctx context.Context, snap domain.Snapshot) (*domain.Failure, error) {
	candidates, err := o.store.ListFailures(ctx, snap.Repository, []domain.FailureStatus{domain.FailurePROpen}, 0)
	if err != nil {
		return nil, err
	}
	for i := range candidates {
		if candidates[i].Branch == snap.Branch {
			return &candidates[i], nil
		}
	}
	return nil, fmt.Errorf("no pr_open failure found for repository=%s branch=%s", snap.Repository, snap.Branch)
}

func (o *Orchestrator) markRemediated(ctx context.Context, failure domain.Failure) {
	failure.Status = domain.FailureRemediated
	failure.UpdatedAt = o.clock.Now()
	if err := o.store.SaveFailure(ctx, &failure); err != nil {
		o.logger.Warn("orchestrator: persist remediated status failure=%s err=%v", failure.ID, err)
		return
	}
	analysis, err := o.store.GetAnalysis(ctx, failure.ID)
	if err == nil {
		o.recordPattern(ctx, failure, *analysis)
	}
	_ = o.ledger.RecordAction(ctx, "orchestrator", "remediated", failure.ID, domain.AuditSuccess, nil)
}

func (o *Orchestrator) recordPattern(ctx context.Context, failure domain.Failure, analysis domain.Analysis) {
	p := domain.Pattern{
		ID:               failure.ID,
		Repository:       failure.Repository,
		Branch:           failure.Branch,
		Category:         analysis.Category,
		ProposedFix:      analysis.ProposedFix,
		FilesModified:    analysis.FilesToModify,
		FixSuccessful:    true,
		ResolutionTimeMS: o.clock.Now().Sub(failure.DetectedAt).Milliseconds(),
		CreatedAt:        o.clock.Now(),
	}
	if err := o.memory.Store(ctx, p, failure.FailureReason); err != nil {
		o.logger.Warn("orchestrator: pattern memory write failed failure=%s err=%v", failure.ID, err)
	}
}
