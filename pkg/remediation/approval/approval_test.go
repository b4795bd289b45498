package approval

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ci-remediator/orchestrator/internal/testkit"
	"github.com/ci-remediator/orchestrator/pkg/remediation/domain"
	remerrors "github.com/ci-remediator/orchestrator/pkg/remediation/errors"
	"github.com/ci-remediator/orchestrator/pkg/remediation/store/memstore"
	"github.com/ci-remediator/orchestrator/pkg/remediation/substrate"
)

var testPool = ReviewerPool{Senior: []string{"alice", "bob"}, Any: []string{"carol", "dave"}}

func TestSelectReviewers_ScalesWithRiskScore(t *testing.T) {
	assert.Equal(t, []string{"alice", "bob"}, SelectReviewers(testPool, 9))
	assert.Equal(t, []string{"alice"}, SelectReviewers(testPool, 5))
	assert.Equal(t, []string{"carol"}, SelectReviewers(testPool, 2))
}

func TestSelectReviewers_PadsShortSeniorRoster(t *testing.T) {
	pool := ReviewerPool{Senior: []string{"alice"}, Any: []string{"carol", "dave"}}
	assert.Equal(t, []string{"alice", "carol"}, SelectReviewers(pool, 9))
}

func TestGate_RequestCreatesDeploymentAndPersists(t *testing.T) {
	vcs := testkit.NewFakeVcsClient("main")
	s := memstore.New()
	clk := testkit.NewManualClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	g := New(vcs, s, clk)

	failure := domain.Failure{ID: "f1", Repository: "acme/widgets"}
	analysis := domain.Analysis{RiskScore: 9, Category: "security"}
	pr := &substrate.PullRequest{Number: 42, HeadSHA: "abc123"}

	req, err := g.Request(context.Background(), failure, analysis, "rem-1", pr, testPool, 24)
	require.NoError(t, err)
	assert.Equal(t, domain.ApprovalPending, req.Status)
	assert.Equal(t, []string{"alice", "bob"}, req.RequiredReviewers)
	assert.Equal(t, clk.Now().Add(24*time.Hour), req.ExpiresAt)
	assert.NotZero(t, req.DeploymentID)

	saved, err := s.GetApprovalRequest(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, req.ID, saved.ID)
}

func TestGate_PollResolvesOnApproval(t *testing.T) {
	vcs := testkit.NewFakeVcsClient("main")
	s := memstore.New()
	clk := testkit.NewManualClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	g := New(vcs, s, clk)

	failure := domain.Failure{ID: "f2", Repository: "acme/widgets"}
	analysis := domain.Analysis{RiskScore: 3}
	pr := &substrate.PullRequest{Number: 7, HeadSHA: "sha7"}
	req, err := g.Request(context.Background(), failure, analysis, "rem-1", pr, testPool, 24)
	require.NoError(t, err)

	vcs.Deployments[req.DeploymentID].State = "approved"

	outcome, err := g.Poll(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApproved, outcome)

	saved, err := s.GetApprovalRequest(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ApprovalApproved, saved.Status)
}

func TestGate_PollExpiresPastDeadline(t *testing.T) {
	vcs := testkit.NewFakeVcsClient("main")
	s := memstore.New()
	clk := testkit.NewManualClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	g := New(vcs, s, clk)

	failure := domain.Failure{ID: "f3", Repository: "acme/widgets"}
	analysis := domain.Analysis{RiskScore: 3}
	pr := &substrate.PullRequest{Number: 8, HeadSHA: "sha8"}
	req, err := g.Request(context.Background(), failure, analysis, "rem-1", pr, testPool, 1)
	require.NoError(t, err)

	clk.Advance(2 * time.Hour)

	outcome, err := g.Poll(context.Background(), req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, remerrors.ErrApprovalTimeout))
	assert.Equal(t, OutcomeExpired, outcome)
}

func TestGate_PollResolvesOnRejection(t *testing.T) {
	vcs := testkit.NewFakeVcsClient("main")
	s := memstore.New()
	clk := testkit.NewManualClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	g := New(vcs, s, clk)

	failure := domain.Failure{ID: "f4", Repository: "acme/widgets"}
	analysis := domain.Analysis{RiskScore: 3}
	pr := &substrate.PullRequest{Number: 9, HeadSHA: "sha9"}
	req, err := g.Request(context.Background(), failure, analysis, "rem-1", pr, testPool, 24)
	require.NoError(t, err)

	vcs.Deployments[req.DeploymentID].State = "rejected"

	outcome, err := g.Poll(context.Background(), req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, remerrors.ErrApprovalRejected))
	assert.Equal(t, OutcomeRejected, outcome)
}
