package circuitbreaker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ci-remediator/orchestrator/internal/testkit"
	"github.com/ci-remediator/orchestrator/pkg/remediation/domain"
	"github.com/ci-remediator/orchestrator/pkg/remediation/store/memstore"
)

func TestNormalizeReason_StripsVariance(t *testing.T) {
	a := NormalizeReason("panic at /home/runner/work/repo/main.go:42:7 on 2024-01-05 14:33:02")
	b := NormalizeReason("panic at /home/runner/work/repo/main.go:99:1 on 2024-03-19 08:01:59")
	assert.Equal(t, a, b)
}

func TestSignature_StableAcrossVariableDetail(t *testing.T) {
	s1 := Signature("org/repo", "main", "timeout connecting to 10.0.0.1:5432 at /tmp/build-8231/out.log")
	s2 := Signature("org/repo", "main", "timeout connecting to 10.0.0.1:5432 at /tmp/build-9911/out.log")
	assert.Equal(t, s1, s2)
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	clk := testkit.NewManualClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	b := New(s, clk, nil)

	for i := 0; i < FailureThreshold-1; i++ {
		require.NoError(t, b.RecordFailure(ctx, "org/repo", "main", "boom"))
		d, err := b.Check(ctx, "org/repo", "main", "boom")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Equal(t, domain.CircuitClosed, d.State)
	}

	require.NoError(t, b.RecordFailure(ctx, "org/repo", "main", "boom"))
	d, err := b.Check(ctx, "org/repo", "main", "boom")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, domain.CircuitOpen, d.State)
}

func TestBreaker_AutoResetsToHalfOpenThenClosesOnSuccess(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	clk := testkit.NewManualClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	b := New(s, clk, nil)

	for i := 0; i < FailureThreshold; i++ {
		require.NoError(t, b.RecordFailure(ctx, "org/repo", "main", "boom"))
	}
	d, err := b.Check(ctx, "org/repo", "main", "boom")
	require.NoError(t, err)
	require.False(t, d.Allowed)

	clk.Advance(AutoResetWindow + time.Minute)

	d, err = b.Check(ctx, "org/repo", "main", "boom")
	require.NoError(t, err)
	require.True(t, d.Allowed)
	assert.Equal(t, domain.CircuitHalfOpen, d.State)

	require.NoError(t, b.RecordSuccess(ctx, "org/repo", "main", "boom"))

	cs, err := s.GetCircuitState(ctx, Signature("org/repo", "main", "boom"))
	require.NoError(t, err)
	require.NotNil(t, cs)
	assert.Equal(t, domain.CircuitClosed, cs.State)
	assert.Equal(t, 0, cs.FailureCount)

	// A single subsequent failure must start counting from zero again, not reopen
	// immediately — the bug this edge exists to prevent.
	require.NoError(t, b.RecordFailure(ctx, "org/repo", "main", "boom"))
	d, err = b.Check(ctx, "org/repo", "main", "boom")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, domain.CircuitClosed, d.State)
}

func TestBreaker_HalfOpenFailureReopensAndExtendsWindow(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	clk := testkit.NewManualClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	b := New(s, clk, nil)

	for i := 0; i < FailureThreshold; i++ {
		require.NoError(t, b.RecordFailure(ctx, "org/repo", "main", "boom"))
	}
	clk.Advance(AutoResetWindow + time.Minute)
	_, err := b.Check(ctx, "org/repo", "main", "boom")
	require.NoError(t, err)

	require.NoError(t, b.RecordFailure(ctx, "org/repo", "main", "boom"))
	d, err := b.Check(ctx, "org/repo", "main", "boom")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, domain.CircuitOpen, d.State)
}

func TestBreaker_ManualReset(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	clk := testkit.NewManualClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	b := New(s, clk, nil)

	for i := 0; i < FailureThreshold; i++ {
		require.NoError(t, b.RecordFailure(ctx, "org/repo", "main", "boom"))
	}
	sig := Signature("org/repo", "main", "boom")
	require.NoError(t, b.Reset(ctx, sig, "operator@example.com"))

	d, err := b.Check(ctx, "org/repo", "main", "boom")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, domain.CircuitClosed, d.State)
}

func TestBreaker_ListOpen(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	clk := testkit.NewManualClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	b := New(s, clk, nil)

	for i := 0; i < FailureThreshold; i++ {
		require.NoError(t, b.RecordFailure(ctx, "org/repo", "main", "boom"))
	}
	open, err := b.ListOpen(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, domain.CircuitOpen, open[0].State)
}
