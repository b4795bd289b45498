package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ci-remediator/orchestrator/pkg/remediation/domain"
	"github.com/ci-remediator/orchestrator/pkg/remediation/store"
	"github.com/ci-remediator/orchestrator/pkg/remediation/substrate"
)

// HealthCheckDelayDefaultMinutes is the default interval, in minutes, between a remediation landing and its
// scheduled verification, overridable via config.Config.HealthCheckDelayMinutes.
const HealthCheckDelayDefaultMinutes = 5

// ScheduleHealthCheck persists a pending HealthCheck for t+delay, to be picked up by the
// scheduler's periodic sweep (§4.7, §4.9).
func ScheduleHealthCheck(ctx context.Context, s store.Store, clock substrate.Clock, remediationID, snapshotID string, delayMinutes int) (domain.HealthCheck, error) {
	if delayMinutes <= 0 {
		delayMinutes = HealthCheckDelayDefaultMinutes
	}
	hc := domain.HealthCheck{
		ID:            uuid.NewString(),
		RemediationID: remediationID,
		SnapshotID:    snapshotID,
		ScheduledAt:   clock.Now().Add(time.Duration(delayMinutes) * time.Minute),
	}
	if err := s.SaveHealthCheck(ctx, &hc); err != nil {
		return domain.HealthCheck{}, fmt.Errorf("executor: schedule health check: %w", err)
	}
	return hc, nil
}

// EvaluateHealthCheck re-verifies the given branch (the orchestrator passes the snapshot's
// branch, the failing branch the fix PR targets) by checking whether a completed run at
// its current head succeeded. It never runs the CI itself; it polls the same
// ListFailedRuns/logs surface the Poller uses, looking for that branch's head commit.
func EvaluateHealthCheck(ctx context.Context, vcs substrate.VcsClient, repository, branch string) []domain.HealthCheckItem {
	var items []domain.HealthCheckItem

	sha, err := vcs.GetHeadSHA(ctx, repository, branch)
	if err != nil {
		items = append(items, domain.HealthCheckItem{
			Name: "branch_reachable", Passed: false,
			Message: fmt.Sprintf("could not resolve head of %s: %v", branch, err),
		})
		return items
	}
	items = append(items, domain.HealthCheckItem{
		Name: "branch_reachable", Passed: true,
		Message: fmt.Sprintf("branch %s resolves to %s", branch, sha),
	})

	runs, err := vcs.ListFailedRuns(ctx, repository, "completed")
	if err != nil {
		items = append(items, domain.HealthCheckItem{
			Name: "ci_run_status", Passed: false,
			Message: fmt.Sprintf("could not list runs: %v", err),
		})
		return items
	}
	found := false
	for _, r := range runs {
		if r.Branch != branch || r.CommitSHA != sha {
			continue
		}
		passed := r.Conclusion == "success"
		items = append(items, domain.HealthCheckItem{
			Name: "ci_run_status", Passed: passed,
			Message: fmt.Sprintf("run %d concluded %q", r.ID, r.Conclusion),
		})
		found = true
		break
	}
	if !found {
		items = append(items, domain.HealthCheckItem{
			Name: "ci_run_status", Passed: false,
			Message: "no completed run found yet for the remediation commit",
		})
	}

	status, err := vcs.WorkflowStatusForRef(ctx, repository, sha)
	if err != nil {
		items = append(items, domain.HealthCheckItem{
			Name: "correlated_workflows", Passed: false,
			Message: fmt.Sprintf("could not check correlated workflows: %v", err),
		})
		return items
	}
	items = append(items, domain.HealthCheckItem{
		Name:    "correlated_workflows",
		Passed:  status.Failed == 0,
		Message: fmt.Sprintf("%d/%d workflow runs failing at %s: %v", status.Failed, status.TotalRuns, sha, status.FailedRuns),
	})
	return items
}

// Passed reports whether every check in items succeeded.
func Passed(items []domain.HealthCheckItem) bool {
	for _, i := range items {
		if !i.Passed {
			return false
		}
	}
	return len(items) > 0
}
