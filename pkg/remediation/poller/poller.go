// Package poller periodically scans each managed repository for failed CI runs, dedupes
// against already-tracked Failures, and hands new ones to the control loop (§4.1).
package poller

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ci-remediator/orchestrator/pkg/logx"
	"github.com/ci-remediator/orchestrator/pkg/remediation/backoff"
	"github.com/ci-remediator/orchestrator/pkg/remediation/domain"
	remerrors "github.com/ci-remediator/orchestrator/pkg/remediation/errors"
	"github.com/ci-remediator/orchestrator/pkg/remediation/store"
	"github.com/ci-remediator/orchestrator/pkg/remediation/substrate"
)

// LogTailBytes is how much of a run's captured logs are retained; older lines are
// dropped, mirroring the teacher's log truncation for large tool output.
const LogTailBytes = 256 * 1024

// DefaultIntervalMinutes is the polling cadence when config.Config.PollingIntervalMinutes
// is unset.
const DefaultIntervalMinutes = 5

// JitterFraction bounds how far a repository's tick can drift from the nominal interval,
// so many repositories polled on the same schedule don't all hit the VCS API at once.
const JitterFraction = 0.10

// Poller scans repositories for new failed runs.
type Poller struct {
	vcs    substrate.VcsClient
	store  store.Store
	clock  substrate.Clock
	logger *logx.Logger
}

// New constructs a Poller.
func New(vcs substrate.VcsClient, s store.Store, clock substrate.Clock, logger *logx.Logger) *Poller {
	return &Poller{vcs: vcs, store: s, clock: clock, logger: logger}
}

// Poll fetches failed_run-status workflow runs for repository, skips ones already
// tracked (dedup on (repository, run_id) via Failure.Key), and persists+returns the new
// ones as domain.Failure records in the FailureDetected state. Rate-limit errors are
// retried with backoff.PollerPolicy inside a single call; other errors are returned as-is
// for the caller's own retry/backoff loop across ticks.
func (p *Poller) Poll(ctx context.Context, repository string) ([]domain.Failure, error) {
	runs, err := p.listWithBackoff(ctx, repository)
	if err != nil {
		return nil, err
	}

	var fresh []domain.Failure
	for _, run := range runs {
		candidate := domain.Failure{Repository: repository, RunID: run.ID}
		if _, err := p.store.FindFailureByKey(ctx, candidate.Key()); err == nil {
			continue // already tracked
		} else if !errors.Is(err, remerrors.ErrNotFound) {
			return fresh, fmt.Errorf("poller: dedup check: %w", err)
		}

		logs, err := p.vcs.GetRunLogs(ctx, repository, run.ID)
		if err != nil {
			p.logger.Warn("poller: failed to fetch logs repository=%s run=%d err=%v", repository, run.ID, err)
		}

		now := p.clock.Now()
		f := domain.Failure{
			ID:            uuid.NewString(),
			Repository:    repository,
			Branch:        run.Branch,
			Workflow:      run.Workflow,
			RunID:         run.ID,
			CommitHash:    run.CommitSHA,
			Status:        domain.FailureDetected,
			CapturedLogs:  truncateTail(logs, LogTailBytes),
			FailureReason: extractFailureReason(logs),
			DetectedAt:    now,
			UpdatedAt:     now,
		}
		if err := p.store.SaveFailure(ctx, &f); err != nil {
			return fresh, fmt.Errorf("poller: persist failure: %w", err)
		}
		fresh = append(fresh, f)
	}
	return fresh, nil
}

func (p *Poller) listWithBackoff(ctx context.Context, repository string) ([]substrate.WorkflowRun, error) {
	for attempt := 0; ; attempt++ {
		runs, err := p.vcs.ListFailedRuns(ctx, repository, "failed")
		if err == nil {
			return runs, nil
		}
		if !errors.Is(err, remerrors.ErrRateLimited) {
			return nil, fmt.Errorf("poller: list failed runs: %w", err)
		}
		delay := backoff.PollerPolicy.Delay(attempt)
		p.logger.Warn("poller: rate limited repository=%s attempt=%d delay=%s", repository, attempt, delay)
		if err := p.clock.Sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

func truncateTail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

var (
	errorLineRe = regexp.MustCompile(`(?i)^.*\b(error|failed|failure|panic|exception)\b.*$`)
)

// maxFallbackLines bounds the fallback tail per §4.1's "last 40 log lines joined".
const maxFallbackLines = 40

// extractFailureReason applies spec.md's heuristic: the first non-empty line matching a
// common error keyword, falling back to the last 40 non-empty log lines joined, and
// finally a generic message when logs are entirely empty (log fetch failed or the run
// produced no output).
func extractFailureReason(logs string) string {
	lines := strings.Split(logs, "\n")
	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if errorLineRe.MatchString(line) {
			return line
		}
	}

	var tail []string
	for _, raw := range lines {
		if line := strings.TrimSpace(raw); line != "" {
			tail = append(tail, line)
		}
	}
	if len(tail) == 0 {
		return "no failure detail available"
	}
	if len(tail) > maxFallbackLines {
		tail = tail[len(tail)-maxFallbackLines:]
	}
	return strings.Join(tail, "\n")
}

// TickInterval resolves the configured polling interval with ±JitterFraction jitter
// applied by the caller's scheduler, per §4.1.
func TickInterval(minutes int) time.Duration {
	if minutes <= 0 {
		minutes = DefaultIntervalMinutes
	}
	return time.Duration(minutes) * time.Minute
}
