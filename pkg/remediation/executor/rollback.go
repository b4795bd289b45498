package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/ci-remediator/orchestrator/pkg/remediation/domain"
	"github.com/ci-remediator/orchestrator/pkg/remediation/store"
	"github.com/ci-remediator/orchestrator/pkg/remediation/substrate"
)

// RollbackResult is the per-file outcome of restoring a Snapshot.
type RollbackResult struct {
	SnapshotID string
	Outcomes   []domain.RollbackFileOutcome
	Partial    bool
}

// Rollback restores every file captured in snap to its pre-edit bytes in a single new
// commit on snap.Branch, verifies each write by re-reading it back, and flags the result
// partial if any file's post-rollback hash doesn't match the captured one — the case a
// concurrent unrelated commit touched the same file during the remediation window.
func Rollback(ctx context.Context, vcs substrate.VcsClient, s store.Store, notifier substrate.Notifier, clock substrate.Clock, snap domain.Snapshot, reason string) (RollbackResult, error) {
	emptyHash := contentHash(nil)

	edits := make([]substrate.FileEdit, 0, len(snap.Files))
	for _, f := range snap.Files {
		if f.ContentHash == emptyHash {
			edits = append(edits, substrate.FileEdit{Path: f.Path, Delete: true})
			continue
		}
		edits = append(edits, substrate.FileEdit{Path: f.Path, Content: f.ContentBytes})
	}

	commitMsg := fmt.Sprintf("revert: rollback remediation %s (%s)", snap.RemediationID, reason)
	if err := vcs.CommitFiles(ctx, snap.Repository, snap.Branch, commitMsg, edits); err != nil {
		return RollbackResult{}, fmt.Errorf("executor: rollback commit: %w", err)
	}

	headSHA, err := vcs.GetHeadSHA(ctx, snap.Repository, snap.Branch)
	if err != nil {
		return RollbackResult{}, fmt.Errorf("executor: rollback verify head: %w", err)
	}

	result := RollbackResult{SnapshotID: snap.ID}
	for _, f := range snap.Files {
		outcome := domain.RollbackFileOutcome{Path: f.Path}
		if f.ContentHash == emptyHash {
			// The file didn't exist before the fix; a successful delete leaves nothing to
			// re-read, so a GetFile error here is the expected outcome.
			if _, err := vcs.GetFile(ctx, snap.Repository, headSHA, f.Path); err != nil {
				outcome.Succeeded = true
			} else {
				outcome.Succeeded = false
				outcome.Reason = "file still present after delete"
				result.Partial = true
			}
			result.Outcomes = append(result.Outcomes, outcome)
			continue
		}

		content, err := vcs.GetFile(ctx, snap.Repository, headSHA, f.Path)
		if err != nil {
			outcome.Succeeded = false
			outcome.Reason = fmt.Sprintf("re-read failed: %v", err)
			result.Partial = true
			result.Outcomes = append(result.Outcomes, outcome)
			continue
		}
		if contentHash(content) != f.ContentHash {
			outcome.Succeeded = false
			outcome.Reason = "hash mismatch after rollback write"
			result.Partial = true
			result.Outcomes = append(result.Outcomes, outcome)
			continue
		}
		outcome.Succeeded = true
		result.Outcomes = append(result.Outcomes, outcome)
	}

	status := domain.SnapshotRolledBack
	if err := s.UpdateSnapshotStatus(ctx, snap.ID, status); err != nil {
		return result, fmt.Errorf("executor: mark snapshot rolled back: %w", err)
	}

	if err := s.AppendAuditEntry(ctx, &domain.AuditEntry{
		Timestamp:  clock.Now(),
		Actor:      "executor",
		ActionKind: "rollback",
		Outcome:    outcomeFor(result.Partial),
		Details: map[string]interface{}{
			"snapshot_id": snap.ID,
			"repository":  snap.Repository,
			"branch":      snap.Branch,
			"reason":      reason,
			"partial":     result.Partial,
		},
	}); err != nil {
		return result, fmt.Errorf("executor: audit rollback: %w", err)
	}

	if result.Partial && notifier != nil {
		_ = notifier.Send(ctx, snap.Repository, substrate.NotifyCritical, map[string]any{
			"kind":        "partial_rollback",
			"snapshot_id": snap.ID,
			"repository":  snap.Repository,
			"branch":      snap.Branch,
			"outcomes":    result.Outcomes,
			"at":          clock.Now().Format(time.RFC3339),
		})
	}

	return result, nil
}

func outcomeFor(partial bool) domain.AuditOutcome {
	if partial {
		return domain.AuditFailure
	}
	return domain.AuditSuccess
}
