package poller

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ci-remediator/orchestrator/internal/testkit"
	"github.com/ci-remediator/orchestrator/pkg/logx"
	"github.com/ci-remediator/orchestrator/pkg/remediation/store/memstore"
	"github.com/ci-remediator/orchestrator/pkg/remediation/substrate"
)

func TestPoll_ReturnsNewFailuresAndDedupes(t *testing.T) {
	vcs := testkit.NewFakeVcsClient("main")
	vcs.SeedRun("acme/widgets", substrate.WorkflowRun{
		ID: 1, Repository: "acme/widgets", Branch: "main", Workflow: "ci",
		CommitSHA: "sha1", Status: "failed", Conclusion: "failure",
	})
	vcs.Logs[1] = "running tests\nsome setup\nError: undefined variable 'x' at line 42\n"

	s := memstore.New()
	clk := testkit.NewManualClock(time.Now())
	logger := logx.NewLogger("poller-test")
	p := New(vcs, s, clk, logger)

	failures, err := p.Poll(context.Background(), "acme/widgets")
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Contains(t, failures[0].FailureReason, "undefined variable")

	// Second poll sees the same run and must not duplicate it.
	failures, err = p.Poll(context.Background(), "acme/widgets")
	require.NoError(t, err)
	assert.Empty(t, failures)
}

func TestExtractFailureReason_PrefersErrorLine(t *testing.T) {
	logs := "step 1 ok\nstep 2 ok\nFAILED: assertion mismatch\ncleanup done\n"
	assert.Equal(t, "FAILED: assertion mismatch", extractFailureReason(logs))
}

func TestExtractFailureReason_FallsBackToJoinedTail(t *testing.T) {
	logs := "step 1 ok\nstep 2 ok\nexit status 1\n"
	assert.Equal(t, "step 1 ok\nstep 2 ok\nexit status 1", extractFailureReason(logs))
}

func TestExtractFailureReason_FallbackCapsAtFortyLines(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 50; i++ {
		fmt.Fprintf(&b, "line %d\n", i)
	}
	reason := extractFailureReason(b.String())
	lines := strings.Split(reason, "\n")
	require.Len(t, lines, 40)
	assert.Equal(t, "line 10", lines[0])
	assert.Equal(t, "line 49", lines[39])
}

func TestExtractFailureReason_PrefersFirstErrorLineNotLast(t *testing.T) {
	logs := "error: first problem\nstep ok\nerror: second problem\n"
	assert.Equal(t, "error: first problem", extractFailureReason(logs))
}

func TestExtractFailureReason_EmptyLogsYieldsGenericMessage(t *testing.T) {
	assert.Equal(t, "no failure detail available", extractFailureReason(""))
}

func TestTruncateTail_KeepsOnlyTheTail(t *testing.T) {
	assert.Equal(t, "cd", truncateTail("abcd", 2))
	assert.Equal(t, "abcd", truncateTail("abcd", 10))
}
