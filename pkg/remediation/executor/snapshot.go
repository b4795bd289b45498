// Package executor applies a gated Analysis's FixOperations to a branch, snapshotting
// every touched file first so a failed health check can be rolled back byte-for-byte
// (§4.7). Every outbound VcsClient call is a candidate for dry-run interception.
package executor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ci-remediator/orchestrator/pkg/remediation/domain"
	remerrors "github.com/ci-remediator/orchestrator/pkg/remediation/errors"
	"github.com/ci-remediator/orchestrator/pkg/remediation/store"
	"github.com/ci-remediator/orchestrator/pkg/remediation/substrate"
)

// SnapshotRetention is the default lifetime of a Snapshot before the cleanup job may
// expire it, overridable per-Config via config.Config.SnapshotRetentionDays.
const SnapshotRetention = 7 * 24 * time.Hour

func contentHash(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// captureSnapshot reads every path a fix operation touches from the failing branch's
// current tip before any edit is applied. A missing file (the fix creates it) is
// captured as a zero-byte entry so rollback can distinguish "restore empty" from
// "restore absent" — restoring means deleting the file the fix created.
func captureSnapshot(ctx context.Context, vcs substrate.VcsClient, clock substrate.Clock, repository, branch, remediationID string, paths []string, retention time.Duration) (domain.Snapshot, error) {
	headSHA, err := vcs.GetHeadSHA(ctx, repository, branch)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("%w: read head sha: %v", remerrors.ErrSnapshotFailed, err)
	}

	now := clock.Now()
	snap := domain.Snapshot{
		ID:            uuid.NewString(),
		Repository:    repository,
		RemediationID: remediationID,
		Branch:        branch,
		BaseCommitSHA: headSHA,
		CreatedAt:     now,
		ExpiresAt:     now.Add(retention),
		Status:        domain.SnapshotActive,
	}

	seen := make(map[string]bool, len(paths))
	for _, p := range paths {
		if seen[p] {
			continue
		}
		seen[p] = true

		content, err := vcs.GetFile(ctx, repository, headSHA, p)
		if err != nil {
			// A file the fix is going to create doesn't exist yet; capture it as empty
			// so rollback deletes it rather than restoring nonexistent bytes.
			content = nil
		}
		snap.Files = append(snap.Files, domain.SnapshotFile{
			Path:         p,
			ContentHash:  contentHash(content),
			ContentBytes: content,
		})
	}

	return snap, nil
}

func persistSnapshot(ctx context.Context, s store.Store, snap domain.Snapshot) error {
	if err := s.SaveSnapshot(ctx, &snap); err != nil {
		return fmt.Errorf("%w: persist: %v", remerrors.ErrSnapshotFailed, err)
	}
	return nil
}
