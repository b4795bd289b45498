package classifier

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ci-remediator/orchestrator/pkg/agent/llm"
	"github.com/ci-remediator/orchestrator/internal/testkit"
	"github.com/ci-remediator/orchestrator/pkg/remediation/domain"
	remerrors "github.com/ci-remediator/orchestrator/pkg/remediation/errors"
	"github.com/ci-remediator/orchestrator/pkg/remediation/patternmemory"
	"github.com/ci-remediator/orchestrator/pkg/remediation/personality"
	"github.com/ci-remediator/orchestrator/pkg/remediation/store/memstore"
)

const validResponse = `{
  "error_type": "devops",
  "category": "dependency",
  "risk_score": 3,
  "confidence": 70,
  "effort": "low",
  "proposed_fix": "pin the transitive dependency",
  "files_to_modify": ["go.mod"],
  "fix_operations": [{"path": "go.mod", "action": "update", "content": "", "rationale": "pin version"}],
  "reasoning": "the resolver picked an incompatible version",
  "affected_components": ["build"]
}`

type fakeModel struct {
	responses []llm.CompletionResponse
	errs      []error
	calls     int
}

func (f *fakeModel) Complete(_ context.Context, _ llm.CompletionRequest) (llm.CompletionResponse, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return llm.CompletionResponse{}, f.errs[i]
	}
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	return f.responses[len(f.responses)-1], nil
}

func (f *fakeModel) Stream(_ context.Context, _ llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
	ch := make(chan llm.StreamChunk)
	close(ch)
	return ch, nil
}

func (f *fakeModel) GetModelName() string { return "fake-model" }

func newClassifierFixture(t *testing.T, model *fakeModel) *Classifier {
	t.Helper()
	s := memstore.New()
	clk := testkit.NewManualClock(time.Now())
	mem := patternmemory.New(s, nil)
	prof := personality.New(s, clk)
	return New(model, mem, prof)
}

func TestClassify_SuccessOnFirstAttempt(t *testing.T) {
	model := &fakeModel{responses: []llm.CompletionResponse{{Content: validResponse}}}
	c := newClassifierFixture(t, model)

	failure := domain.Failure{
		ID:            "f1",
		Repository:    "acme/widgets",
		Branch:        "main",
		FailureReason: "go: module resolution failed",
		DetectedAt:    time.Now(),
	}

	result, err := c.Classify(context.Background(), failure)
	require.NoError(t, err)
	assert.Equal(t, domain.ErrorTypeDevOps, result.Analysis.ErrorType)
	assert.Equal(t, "dependency", result.Analysis.Category)
	assert.Equal(t, 1, model.calls)
	assert.Equal(t, domain.DecisionClassification, result.Decision.Kind)
	assert.NotEmpty(t, result.Decision.ContextDigest)
}

func TestClassify_RetriesTransientErrorThenSucceeds(t *testing.T) {
	model := &fakeModel{
		errs:      []error{remerrors.Wrap("complete", remerrors.ErrUpstreamTimeout), nil},
		responses: []llm.CompletionResponse{{}, {Content: validResponse}},
	}
	c := newClassifierFixture(t, model)

	failure := domain.Failure{ID: "f2", Repository: "acme/widgets", Branch: "main", FailureReason: "timeout"}
	result, err := c.Classify(context.Background(), failure)
	require.NoError(t, err)
	assert.Equal(t, 2, model.calls)
	assert.Equal(t, "dependency", result.Analysis.Category)
}

func TestClassify_AuthErrorNeverRetried(t *testing.T) {
	model := &fakeModel{errs: []error{remerrors.Wrap("complete", remerrors.ErrAuth)}}
	c := newClassifierFixture(t, model)

	failure := domain.Failure{ID: "f3", Repository: "acme/widgets", Branch: "main"}
	_, err := c.Classify(context.Background(), failure)
	require.Error(t, err)
	assert.True(t, errors.Is(err, remerrors.ErrAuth))
	assert.Equal(t, 1, model.calls)
}

func TestClassify_ExhaustsRetriesOnPersistentTimeout(t *testing.T) {
	model := &fakeModel{errs: []error{
		remerrors.Wrap("complete", remerrors.ErrUpstreamTimeout),
		remerrors.Wrap("complete", remerrors.ErrUpstreamTimeout),
		remerrors.Wrap("complete", remerrors.ErrUpstreamTimeout),
		remerrors.Wrap("complete", remerrors.ErrUpstreamTimeout),
	}}
	c := newClassifierFixture(t, model)

	failure := domain.Failure{ID: "f4", Repository: "acme/widgets", Branch: "main"}
	_, err := c.Classify(context.Background(), failure)
	require.Error(t, err)
	assert.Equal(t, 4, model.calls) // initial + 3 retries
}

func TestClassify_MalformedResponseNeverRetried(t *testing.T) {
	model := &fakeModel{responses: []llm.CompletionResponse{{Content: "not json at all and no fields"}}}
	c := newClassifierFixture(t, model)

	failure := domain.Failure{ID: "f5", Repository: "acme/widgets", Branch: "main"}
	_, err := c.Classify(context.Background(), failure)
	require.Error(t, err)
	assert.True(t, errors.Is(err, remerrors.ErrParseMalformed))
	assert.Equal(t, 1, model.calls)
}

func TestApplyBoundedAdjustment_ClampsToTwentyPoints(t *testing.T) {
	assert.Equal(t, 50, applyBoundedAdjustment(50, 0))
	assert.Equal(t, 40, applyBoundedAdjustment(50, -0.1))
	assert.Equal(t, 30, applyBoundedAdjustment(50, -0.5)) // clamped to -20 points
	assert.Equal(t, 70, applyBoundedAdjustment(50, 0.5))  // clamped to +20 points
	assert.Equal(t, 0, applyBoundedAdjustment(5, -0.5))   // floor at 0
	assert.Equal(t, 100, applyBoundedAdjustment(95, 0.5)) // ceiling at 100
}
