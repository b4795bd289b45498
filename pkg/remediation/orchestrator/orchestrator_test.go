package orchestrator

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ci-remediator/orchestrator/internal/testkit"
	"github.com/ci-remediator/orchestrator/pkg/agent/llm"
	"github.com/ci-remediator/orchestrator/pkg/config"
	"github.com/ci-remediator/orchestrator/pkg/logx"
	"github.com/ci-remediator/orchestrator/pkg/remediation/domain"
	"github.com/ci-remediator/orchestrator/pkg/remediation/patternmemory"
	"github.com/ci-remediator/orchestrator/pkg/remediation/personality"
	"github.com/ci-remediator/orchestrator/pkg/remediation/store/memstore"
	"github.com/ci-remediator/orchestrator/pkg/remediation/substrate"
)

const testRepo = "acme/widgets"

func testConfig() *config.Config {
	return &config.Config{
		SchemaVersion:               "1.0",
		Repositories:                []string{testRepo},
		RiskThreshold:               5,
		ApprovalTimeoutHours:        24,
		CircuitFailureThreshold:     3,
		PollingIntervalMinutes:      5,
		HealthCheckDelayMinutes:     5,
		SnapshotRetentionDays:       7,
		DefaultApplicationCodeGlobs: []string{"src/**"},
		Reviewers:                   config.ReviewerRoster{Senior: []string{"alice"}, Any: []string{"bob"}},
	}
}

func analysisJSON(errorType, category string, riskScore int) string {
	return fmt.Sprintf(`{
		"error_type": %q,
		"category": %q,
		"risk_score": %d,
		"confidence": 80,
		"effort": "small",
		"proposed_fix": "bump the flaky retry count",
		"files_to_modify": [".github/workflows/ci.yml"],
		"fix_operations": [{"path": ".github/workflows/ci.yml", "action": "update", "content": "retries: 3"}],
		"reasoning": "the failure is a flaky network timeout in CI infra",
		"affected_components": ["ci"]
	}`, errorType, category, riskScore)
}

type harness struct {
	o        *Orchestrator
	vcs      *testkit.FakeVcsClient
	store    *memstore.Store
	clock    *testkit.ManualClock
	notifier *testkit.FakeNotifier
	model    *testkit.FakeModelClient
}

func newHarness(t *testing.T, cfg *config.Config, resp string) *harness {
	t.Helper()
	vcs := testkit.NewFakeVcsClient("main")
	vcs.SeedBranch(testRepo, "main", "sha0", map[string][]byte{".github/workflows/ci.yml": []byte("retries: 1")})
	s := memstore.New()
	clk := testkit.NewManualClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	notifier := &testkit.FakeNotifier{}
	model := testkit.NewFakeModelClient(llm.CompletionResponse{Content: resp})
	logger := logx.NewLogger("orchestrator-test")
	memory := patternmemory.New(s, nil)
	profiler := personality.New(s, clk)

	o := New(cfg, vcs, s, clk, notifier, logger, memory, profiler, model, nil, nil, 4)
	return &harness{o: o, vcs: vcs, store: s, clock: clk, notifier: notifier, model: model}
}

func newFailure(id string) domain.Failure {
	return domain.Failure{
		ID:            id,
		Repository:    testRepo,
		Branch:        "main",
		Workflow:      "ci",
		RunID:         1,
		CommitHash:    "sha0",
		Status:        domain.FailureDetected,
		FailureReason: "network timeout connecting to registry",
		DetectedAt:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		UpdatedAt:     time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestProcessFailure_AutoApplyHappyPath(t *testing.T) {
	h := newHarness(t, testConfig(), analysisJSON("devops", "flaky_test", 2))
	failure := newFailure("f1")

	err := h.o.ProcessFailure(context.Background(), failure)
	require.NoError(t, err)

	saved, err := h.store.GetFailure(context.Background(), "f1")
	require.NoError(t, err)
	assert.Equal(t, domain.FailurePROpen, saved.Status)

	due, err := h.store.ListDueHealthChecks(context.Background(), h.clock.Now().Add(10*time.Minute))
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.NotEmpty(t, due[0].RemediationID)

	assert.Contains(t, h.vcs.Calls, "CreateBranchFromSHA")
	assert.Contains(t, h.vcs.Calls, "GetOrCreatePR")
}

func TestProcessFailure_DeveloperErrorNotifiesInsteadOfApplying(t *testing.T) {
	h := newHarness(t, testConfig(), analysisJSON("developer", "logic_bug", 2))
	failure := newFailure("f2")

	err := h.o.ProcessFailure(context.Background(), failure)
	require.NoError(t, err)

	saved, err := h.store.GetFailure(context.Background(), "f2")
	require.NoError(t, err)
	assert.Equal(t, domain.FailureDeveloperNotified, saved.Status)
	assert.NotContains(t, h.vcs.Calls, "CreateBranchFromSHA")

	require.Len(t, h.notifier.Sent, 1)
	assert.Equal(t, substrate.NotifyEscalation, h.notifier.Sent[0].Kind)
}

func TestProcessFailure_HighRiskRequiresApproval(t *testing.T) {
	h := newHarness(t, testConfig(), analysisJSON("devops", "dependency_break", 9))
	failure := newFailure("f3")

	err := h.o.ProcessFailure(context.Background(), failure)
	require.NoError(t, err)

	saved, err := h.store.GetFailure(context.Background(), "f3")
	require.NoError(t, err)
	assert.Equal(t, domain.FailurePROpen, saved.Status)

	pending, err := h.store.ListPendingApprovals(context.Background(), testRepo)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, []string{"alice", "bob"}, pending[0].RequiredReviewers)
	assert.Equal(t, "f3", pending[0].FailureID)

	found := false
	for _, sent := range h.notifier.Sent {
		if sent.Kind == substrate.NotifyApprovalRequest {
			found = true
		}
	}
	assert.True(t, found, "expected an approval-request notification")
}

func TestProcessFailure_BlockedByOpenCircuit(t *testing.T) {
	h := newHarness(t, testConfig(), analysisJSON("devops", "flaky_test", 2))
	ctx := context.Background()

	// Trip the breaker for this (repository, branch, reason) signature before the failure
	// is ever classified, mirroring three consecutive prior remediation failures.
	for i := 0; i < 3; i++ {
		require.NoError(t, h.o.breaker.RecordFailure(ctx, testRepo, "main", "network timeout connecting to registry"))
	}

	failure := newFailure("f4")
	err := h.o.ProcessFailure(ctx, failure)
	require.NoError(t, err)

	saved, err := h.store.GetFailure(ctx, "f4")
	require.NoError(t, err)
	assert.Equal(t, domain.FailureFailed, saved.Status)
	assert.NotContains(t, h.vcs.Calls, "CreateBranchFromSHA")
	assert.Empty(t, h.model.Calls, "circuit pre-check must short-circuit before any LLM call")
}

func TestSweepApprovals_ApprovedRequestSchedulesHealthCheck(t *testing.T) {
	h := newHarness(t, testConfig(), analysisJSON("devops", "dependency_break", 9))
	ctx := context.Background()
	failure := newFailure("f5")

	require.NoError(t, h.o.ProcessFailure(ctx, failure))

	pending, err := h.store.ListPendingApprovals(ctx, testRepo)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	req := pending[0]

	h.vcs.Deployments[req.DeploymentID].State = "approved"
	h.o.sweepApprovals(ctx)

	due, err := h.store.ListDueHealthChecks(ctx, h.clock.Now().Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, due, 1)

	saved, err := h.store.GetApprovalRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ApprovalApproved, saved.Status)
}

func TestSweepApprovals_RejectedRequestFailsTheFailure(t *testing.T) {
	h := newHarness(t, testConfig(), analysisJSON("devops", "dependency_break", 9))
	ctx := context.Background()
	failure := newFailure("f6")

	require.NoError(t, h.o.ProcessFailure(ctx, failure))

	pending, err := h.store.ListPendingApprovals(ctx, testRepo)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	req := pending[0]

	h.vcs.Deployments[req.DeploymentID].State = "rejected"
	h.o.sweepApprovals(ctx)

	saved, err := h.store.GetFailure(ctx, "f6")
	require.NoError(t, err)
	assert.Equal(t, domain.FailureFailed, saved.Status)
	assert.Equal(t, "remediation rejected by reviewer", saved.TerminalReason)
}

func TestSweepHealthChecks_PassingCheckMarksRemediated(t *testing.T) {
	h := newHarness(t, testConfig(), analysisJSON("devops", "flaky_test", 2))
	ctx := context.Background()
	failure := newFailure("f7")

	require.NoError(t, h.o.ProcessFailure(ctx, failure))

	due, err := h.store.ListDueHealthChecks(ctx, h.clock.Now().Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, due, 1)

	// Seed a successful CI run at the head of the snapshot's branch (the failing branch
	// the fix PR targets) so EvaluateHealthCheck passes.
	snap, err := h.store.GetSnapshot(ctx, due[0].SnapshotID)
	require.NoError(t, err)
	branch := snap.Branch

	sha, err := h.vcs.GetHeadSHA(ctx, testRepo, branch)
	require.NoError(t, err)
	h.vcs.SeedRun(testRepo, substrate.WorkflowRun{ID: 100, Branch: branch, CommitSHA: sha, Status: "completed", Conclusion: "success"})

	h.clock.Advance(10 * time.Minute)
	h.o.sweepHealthChecks(ctx)

	saved, err := h.store.GetFailure(ctx, "f7")
	require.NoError(t, err)
	assert.Equal(t, domain.FailureRemediated, saved.Status)

	patterns, err := h.store.ListPatterns(ctx, testRepo, domain.EmbeddingFamilyHashed)
	require.NoError(t, err)
	assert.Len(t, patterns, 1)
}

func TestSweepHealthChecks_FailingCheckRollsBackAndFails(t *testing.T) {
	h := newHarness(t, testConfig(), analysisJSON("devops", "flaky_test", 2))
	ctx := context.Background()
	failure := newFailure("f8")

	require.NoError(t, h.o.ProcessFailure(ctx, failure))

	due, err := h.store.ListDueHealthChecks(ctx, h.clock.Now().Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, due, 1)

	// No matching successful run is ever seeded, so EvaluateHealthCheck reports failure.
	h.clock.Advance(10 * time.Minute)
	h.o.sweepHealthChecks(ctx)

	saved, err := h.store.GetFailure(ctx, "f8")
	require.NoError(t, err)
	assert.Equal(t, domain.FailureFailed, saved.Status)
	assert.Contains(t, saved.TerminalReason, "health check failed")
}
