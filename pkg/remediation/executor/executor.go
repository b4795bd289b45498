package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/ci-remediator/orchestrator/pkg/github"
	"github.com/ci-remediator/orchestrator/pkg/logx"
	"github.com/ci-remediator/orchestrator/pkg/remediation/domain"
	"github.com/ci-remediator/orchestrator/pkg/remediation/store"
	"github.com/ci-remediator/orchestrator/pkg/remediation/substrate"
)

// Outcome is what Apply produced: the new fix branch, PR, and snapshot it can be rolled
// back to.
type Outcome struct {
	Snapshot domain.Snapshot
	Branch   string
	PR       *substrate.PullRequest
}

// Executor applies a gated Analysis's FixOperations to a fresh branch cut from the
// failing branch's current SHA (never the default branch, per §4.7), snapshotting every
// touched file first so a failed health check has something exact to restore.
type Executor struct {
	vcs           substrate.VcsClient
	store         store.Store
	clock         substrate.Clock
	logger        *logx.Logger
	dryRun        bool
	dryRunSummary *DryRunSummary
}

// New constructs an Executor. When dryRun is true, every state-changing VcsClient call is
// intercepted and logged instead of executed, and Apply's returned PR is a simulated
// placeholder.
func New(vcs substrate.VcsClient, s store.Store, clock substrate.Clock, logger *logx.Logger, dryRun bool) *Executor {
	e := &Executor{vcs: vcs, store: s, clock: clock, logger: logger, dryRun: dryRun}
	if dryRun {
		e.dryRunSummary = &DryRunSummary{}
		e.vcs = newDryRunVcsClient(vcs, e.dryRunSummary, logger)
	}
	return e
}

// DryRunSummary returns the accumulated intercepted-call log, or nil if this Executor
// isn't running in dry-run mode.
func (e *Executor) DryRunSummary() *DryRunSummary { return e.dryRunSummary }

// Apply snapshots every file analysis.FilesToModify touches, cuts a fix branch from
// failure.Branch's current SHA, commits the FixOperations, and opens a PR based on the
// failing branch (never the default branch — the fix must land where CI is red).
func (e *Executor) Apply(ctx context.Context, failure domain.Failure, analysis domain.Analysis, remediationID string, retentionDays int) (Outcome, error) {
	retention := SnapshotRetention
	if retentionDays > 0 {
		retention = daysToDuration(retentionDays)
	}

	snap, err := captureSnapshot(ctx, e.vcs, e.clock, failure.Repository, failure.Branch, remediationID, analysis.FilesToModify, retention)
	if err != nil {
		return Outcome{}, err
	}
	if err := persistSnapshot(ctx, e.store, snap); err != nil {
		return Outcome{}, err
	}

	fixBranch := github.FixBranchName(remediationID)
	if err := e.vcs.CreateBranchFromSHA(ctx, failure.Repository, fixBranch, snap.BaseCommitSHA); err != nil {
		return Outcome{}, fmt.Errorf("executor: create fix branch: %w", err)
	}

	edits := make([]substrate.FileEdit, 0, len(analysis.FixOperations))
	for _, op := range analysis.FixOperations {
		edit := substrate.FileEdit{Path: op.Path}
		switch op.Action {
		case "delete":
			edit.Delete = true
		default:
			edit.Content = []byte(op.Content)
		}
		edits = append(edits, edit)
	}

	commitMsg := fmt.Sprintf("fix: %s", truncateMessage(analysis.ProposedFix, 72))
	if err := e.vcs.CommitFiles(ctx, failure.Repository, fixBranch, commitMsg, edits); err != nil {
		return Outcome{}, fmt.Errorf("executor: commit fix: %w", err)
	}

	pr, err := e.vcs.GetOrCreatePR(ctx, failure.Repository, substrate.PRCreateOptions{
		Title:  fmt.Sprintf("Auto-remediation: %s", truncateMessage(analysis.ProposedFix, 60)),
		Body:   analysis.Reasoning,
		Head:   fixBranch,
		Base:   failure.Branch,
		Labels: []string{github.RemediationLabel},
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("executor: open PR: %w", err)
	}

	e.logger.Info("executor: applied fix repository=%s branch=%s pr=%d dry_run=%t", failure.Repository, fixBranch, pr.Number, e.dryRun)
	return Outcome{Snapshot: snap, Branch: fixBranch, PR: pr}, nil
}

// Rollback restores snap and records the outcome, per RollbackResult's
// per-file tracking.
func (e *Executor) Rollback(ctx context.Context, notifier substrate.Notifier, snap domain.Snapshot, reason string) (RollbackResult, error) {
	return Rollback(ctx, e.vcs, e.store, notifier, e.clock, snap, reason)
}

func truncateMessage(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func daysToDuration(days int) time.Duration {
	return time.Duration(days) * 24 * time.Hour
}
