package executor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ci-remediator/orchestrator/internal/testkit"
	"github.com/ci-remediator/orchestrator/pkg/logx"
	"github.com/ci-remediator/orchestrator/pkg/remediation/domain"
	"github.com/ci-remediator/orchestrator/pkg/remediation/store/memstore"
)

func seededVcs() *testkit.FakeVcsClient {
	vcs := testkit.NewFakeVcsClient("main")
	vcs.SeedBranch("acme/widgets", "main", "sha0", map[string][]byte{
		"go.mod": []byte("module acme.example/widgets\n\ngo 1.22\n"),
	})
	return vcs
}

func TestExecutor_ApplyCreatesBranchCommitAndPR(t *testing.T) {
	vcs := seededVcs()
	s := memstore.New()
	clk := testkit.NewManualClock(time.Now())
	logger := logx.NewLogger("executor-test")
	e := New(vcs, s, clk, logger, false)

	failure := domain.Failure{ID: "f1", Repository: "acme/widgets", Branch: "main"}
	analysis := domain.Analysis{
		FilesToModify: []string{"go.mod"},
		ProposedFix:   "pin the dependency",
		Reasoning:     "resolver picked a bad version",
		FixOperations: []domain.FixOperation{
			{Path: "go.mod", Action: "update", Content: "module acme.example/widgets\n\ngo 1.22.1\n"},
		},
	}

	outcome, err := e.Apply(context.Background(), failure, analysis, "rem-1", 0)
	require.NoError(t, err)
	assert.Equal(t, "remediate/rem-1", outcome.Branch)
	assert.NotNil(t, outcome.PR)
	assert.Equal(t, "main", outcome.PR.BaseBranch)
	assert.Equal(t, "sha0", outcome.Snapshot.BaseCommitSHA)
	require.Len(t, outcome.Snapshot.Files, 1)
	assert.Equal(t, "go.mod", outcome.Snapshot.Files[0].Path)

	saved, err := s.GetSnapshot(context.Background(), outcome.Snapshot.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SnapshotActive, saved.Status)

	newContent, err := vcs.GetFile(context.Background(), "acme/widgets", outcome.Branch, "go.mod")
	require.NoError(t, err)
	assert.Contains(t, string(newContent), "1.22.1")
}

func TestExecutor_DryRunNeverMutatesRepository(t *testing.T) {
	vcs := seededVcs()
	s := memstore.New()
	clk := testkit.NewManualClock(time.Now())
	logger := logx.NewLogger("executor-test")
	e := New(vcs, s, clk, logger, true)

	failure := domain.Failure{ID: "f2", Repository: "acme/widgets", Branch: "main"}
	analysis := domain.Analysis{
		FilesToModify: []string{"go.mod"},
		ProposedFix:   "pin the dependency",
		FixOperations: []domain.FixOperation{{Path: "go.mod", Action: "update", Content: "changed"}},
	}

	outcome, err := e.Apply(context.Background(), failure, analysis, "rem-2", 0)
	require.NoError(t, err)
	assert.Equal(t, "simulated", outcome.PR.State)

	// The underlying (non-wrapped) fake never saw a CreateBranchFromSHA/CommitFiles call.
	for _, call := range vcs.Calls {
		assert.NotEqual(t, "CreateBranchFromSHA", call)
		assert.NotEqual(t, "CommitFiles", call)
	}

	summary := e.DryRunSummary()
	require.NotNil(t, summary)
	assert.NotEmpty(t, summary.Entries)
}

func TestRollback_RestoresCapturedBytesAndFlagsMismatch(t *testing.T) {
	vcs := seededVcs()
	vcs.SeedBranch("acme/widgets", "main", "sha0", map[string][]byte{
		"go.mod": []byte("original content"),
	})
	s := memstore.New()
	clk := testkit.NewManualClock(time.Now())
	notifier := &testkit.FakeNotifier{}

	snap := domain.Snapshot{
		ID:            "snap-1",
		Repository:    "acme/widgets",
		RemediationID: "rem-3",
		Branch:        "main",
		BaseCommitSHA: "sha0",
		Files: []domain.SnapshotFile{
			{Path: "go.mod", ContentHash: contentHash([]byte("original content")), ContentBytes: []byte("original content")},
		},
		Status: domain.SnapshotActive,
	}
	require.NoError(t, s.SaveSnapshot(context.Background(), &snap))

	result, err := Rollback(context.Background(), vcs, s, notifier, clk, snap, "health check failed")
	require.NoError(t, err)
	assert.False(t, result.Partial)
	require.Len(t, result.Outcomes, 1)
	assert.True(t, result.Outcomes[0].Succeeded)

	saved, err := s.GetSnapshot(context.Background(), snap.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SnapshotRolledBack, saved.Status)
	assert.Empty(t, notifier.Sent) // clean rollback, no critical alert
}

func TestScheduleHealthCheck_DefaultsDelay(t *testing.T) {
	s := memstore.New()
	clk := testkit.NewManualClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	hc, err := ScheduleHealthCheck(context.Background(), s, clk, "rem-4", "snap-4", 0)
	require.NoError(t, err)
	assert.Equal(t, clk.Now().Add(HealthCheckDelayDefaultMinutes*time.Minute), hc.ScheduledAt)
}
