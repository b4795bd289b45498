// Package approval implements the human-in-the-loop checkpoint SafetyGate escalates to:
// reviewer selection by risk score, a review-gated deployment as the approval surface,
// and lifecycle polling until approved, rejected, or expired (§4.8).
package approval

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ci-remediator/orchestrator/pkg/remediation/domain"
	remerrors "github.com/ci-remediator/orchestrator/pkg/remediation/errors"
	"github.com/ci-remediator/orchestrator/pkg/remediation/store"
	"github.com/ci-remediator/orchestrator/pkg/remediation/substrate"
)

// Risk score thresholds that widen the required reviewer set, per §4.8.
const (
	SeniorPairThreshold = 8 // risk_score >= 8: two senior reviewers required
	SeniorSoloThreshold = 5 // risk_score >= 5: one senior reviewer required
)

// EnvironmentName is the review-gated deployment environment the approval checkpoint
// polls for its resolution signal.
const EnvironmentName = "remediation-approval"

// ReviewerPool names the people eligible to approve a repository's remediations. Senior
// is checked first for high-risk fixes; Any is the fallback pool for low-risk fixes and
// pads out Senior when the roster is short.
type ReviewerPool struct {
	Senior []string
	Any    []string
}

// SelectReviewers returns the reviewers an ApprovalRequest for a fix of the given risk
// score must require: two seniors at risk >= 8, one senior at risk >= 5, otherwise any
// single team member. If the pool doesn't have enough seniors, it pads with Any members
// rather than failing closed on an understaffed roster.
func SelectReviewers(pool ReviewerPool, riskScore int) []string {
	switch {
	case riskScore >= SeniorPairThreshold:
		return padTo(pool.Senior, pool.Any, 2)
	case riskScore >= SeniorSoloThreshold:
		return padTo(pool.Senior, pool.Any, 1)
	default:
		return padTo(pool.Any, pool.Senior, 1)
	}
}

func padTo(primary, fallback []string, n int) []string {
	out := append([]string{}, primary...)
	if len(out) > n {
		out = out[:n]
	}
	for _, f := range fallback {
		if len(out) >= n {
			break
		}
		out = append(out, f)
	}
	return out
}

// Gate is the approval checkpoint service.
type Gate struct {
	vcs   substrate.VcsClient
	store store.Store
	clock substrate.Clock
}

// New constructs a Gate.
func New(vcs substrate.VcsClient, s store.Store, clock substrate.Clock) *Gate {
	return &Gate{vcs: vcs, store: s, clock: clock}
}

// Request opens an ApprovalRequest for a gated remediation: it creates a review-gated
// deployment against the fix PR's head SHA (the native approval surface), posts a
// summary comment on the PR, and persists the request with an expiry timeoutHours out.
func (g *Gate) Request(ctx context.Context, failure domain.Failure, analysis domain.Analysis, remediationID string, pr *substrate.PullRequest, pool ReviewerPool, timeoutHours int) (domain.ApprovalRequest, error) {
	reviewers := SelectReviewers(pool, analysis.RiskScore)

	dep, err := g.vcs.CreateDeployment(ctx, failure.Repository, pr.HeadSHA, EnvironmentName)
	if err != nil {
		return domain.ApprovalRequest{}, fmt.Errorf("approval: create gated deployment: %w", err)
	}

	body := fmt.Sprintf("Automated remediation requires approval (risk_score=%d, category=%s).\nRequired reviewers: %v\nApprove via the %q deployment environment.",
		analysis.RiskScore, analysis.Category, reviewers, EnvironmentName)
	if err := g.vcs.CommentOnPR(ctx, failure.Repository, pr.Number, body); err != nil {
		return domain.ApprovalRequest{}, fmt.Errorf("approval: comment on PR: %w", err)
	}

	now := g.clock.Now()
	req := domain.ApprovalRequest{
		ID:                uuid.NewString(),
		FailureID:         failure.ID,
		RemediationID:     remediationID,
		Repository:        failure.Repository,
		PRNumber:          pr.Number,
		RequiredReviewers: reviewers,
		EnvironmentName:   EnvironmentName,
		DeploymentID:      dep.ID,
		Status:            domain.ApprovalPending,
		CreatedAt:         now,
		ExpiresAt:         now.Add(time.Duration(timeoutHours) * time.Hour),
	}
	if err := g.store.SaveApprovalRequest(ctx, &req); err != nil {
		return domain.ApprovalRequest{}, fmt.Errorf("approval: persist request: %w", err)
	}

	return req, nil
}

// Outcome is the terminal resolution of an ApprovalRequest.
type Outcome string

// Recognized outcomes.
const (
	OutcomeApproved Outcome = "approved"
	OutcomeRejected Outcome = "rejected"
	OutcomeExpired  Outcome = "expired"
)

// Poll checks a single ApprovalRequest against its deployment's approval state and
// resolves it if the state has changed or the expiry has passed. It returns
// (Outcome(""), nil) when the request is still pending and unexpired.
func (g *Gate) Poll(ctx context.Context, req domain.ApprovalRequest) (Outcome, error) {
	if req.Status != domain.ApprovalPending {
		return outcomeFromStatus(req.Status), nil
	}

	now := g.clock.Now()
	if now.After(req.ExpiresAt) {
		if err := g.store.ResolveApproval(ctx, req.ID, domain.ApprovalExpired, "", now); err != nil {
			return "", fmt.Errorf("approval: resolve expired: %w", err)
		}
		return OutcomeExpired, remerrors.ErrApprovalTimeout
	}

	dep, err := g.vcs.GetDeploymentStatus(ctx, req.Repository, req.DeploymentID)
	if err != nil {
		return "", fmt.Errorf("approval: poll deployment: %w", err)
	}

	switch dep.State {
	case "approved":
		if err := g.store.ResolveApproval(ctx, req.ID, domain.ApprovalApproved, "", now); err != nil {
			return "", fmt.Errorf("approval: resolve approved: %w", err)
		}
		return OutcomeApproved, nil
	case "rejected":
		if err := g.store.ResolveApproval(ctx, req.ID, domain.ApprovalRejected, "", now); err != nil {
			return "", fmt.Errorf("approval: resolve rejected: %w", err)
		}
		return OutcomeRejected, remerrors.ErrApprovalRejected
	default:
		return "", nil
	}
}

func outcomeFromStatus(s domain.ApprovalStatus) Outcome {
	switch s {
	case domain.ApprovalApproved:
		return OutcomeApproved
	case domain.ApprovalRejected:
		return OutcomeRejected
	case domain.ApprovalExpired:
		return OutcomeExpired
	default:
		return ""
	}
}
