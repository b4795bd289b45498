// Package scheduler runs the control loop's three background maintenance jobs (§5):
// daily snapshot cleanup, a 15-minute metric-threshold evaluator, and a weekly health
// report sent Monday at 09:00. Generalized from the Orchestrator's sweepLoop ticker
// pattern (pkg/remediation/orchestrator), but driven by substrate.Clock.After instead of
// time.Ticker so tests can step every job deterministically with testkit.ManualClock, and
// supervised with golang.org/x/sync/errgroup like the Orchestrator's own Run.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ci-remediator/orchestrator/pkg/config"
	"github.com/ci-remediator/orchestrator/pkg/logx"
	"github.com/ci-remediator/orchestrator/pkg/metrics"
	"github.com/ci-remediator/orchestrator/pkg/remediation/domain"
	"github.com/ci-remediator/orchestrator/pkg/remediation/personality"
	"github.com/ci-remediator/orchestrator/pkg/remediation/store"
	"github.com/ci-remediator/orchestrator/pkg/remediation/substrate"
)

// MetricThresholdInterval is how often open circuits are re-checked against the
// notification threshold.
const MetricThresholdInterval = 15 * time.Minute

// SnapshotCleanupInterval is how often expired snapshots are swept.
const SnapshotCleanupInterval = 24 * time.Hour

// WeeklyReportWeekday and WeeklyReportHour set when the weekly health report fires:
// the first Monday 09:00 (in the clock's own location) at or after start.
const (
	WeeklyReportWeekday = time.Monday
	WeeklyReportHour    = 9
)

// Scheduler owns the three background jobs. It holds no state the control loop's request
// path depends on, so its jobs can fail and be restarted independently of Orchestrator.Run.
type Scheduler struct {
	cfg      *config.Config
	store    store.Store
	clock    substrate.Clock
	notifier substrate.Notifier
	profiler *personality.Profiler
	metrics  *metrics.QueryService // optional: nil makes metric-threshold evaluation read open circuits from the store
	exporter *metrics.Exporter     // optional: nil skips gauge updates
	logger   *logx.Logger
}

// New constructs a Scheduler. queryService may be nil when no Prometheus server is
// configured, in which case the metric-threshold job falls back to Store.ListOpenCircuits.
// exporter may be nil to skip republishing the CircuitsOpen and PatternsTotal gauges.
func New(cfg *config.Config, s store.Store, clock substrate.Clock, notifier substrate.Notifier, profiler *personality.Profiler, queryService *metrics.QueryService, exporter *metrics.Exporter, logger *logx.Logger) *Scheduler {
	return &Scheduler{cfg: cfg, store: s, clock: clock, notifier: notifier, profiler: profiler, metrics: queryService, exporter: exporter, logger: logger}
}

// Run starts all three jobs and blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	eg, groupCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		s.loop(groupCtx, SnapshotCleanupInterval, s.cleanupExpiredSnapshots)
		return nil
	})
	eg.Go(func() error {
		s.loop(groupCtx, MetricThresholdInterval, s.evaluateMetricThresholds)
		return nil
	})
	eg.Go(func() error {
		s.weeklyReportLoop(groupCtx)
		return nil
	})

	_ = eg.Wait()
	return ctx.Err()
}

// loop runs fn once every interval (relative to s.clock, so tests can drive it via
// testkit.ManualClock.Advance), stopping when ctx is done.
func (s *Scheduler) loop(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.clock.After(interval):
			fn(ctx)
		}
	}
}

func (s *Scheduler) weeklyReportLoop(ctx context.Context) {
	for {
		wait := untilNextWeeklyReport(s.clock.Now())
		select {
		case <-ctx.Done():
			return
		case <-s.clock.After(wait):
			s.sendWeeklyReport(ctx)
		}
	}
}

// untilNextWeeklyReport returns the duration from now until the next
// WeeklyReportWeekday at WeeklyReportHour:00, strictly in the future.
func untilNextWeeklyReport(now time.Time) time.Duration {
	next := time.Date(now.Year(), now.Month(), now.Day(), WeeklyReportHour, 0, 0, 0, now.Location())
	for next.Weekday() != WeeklyReportWeekday || !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next.Sub(now)
}

// cleanupExpiredSnapshots implements §5's daily job: mark every Snapshot whose retention
// window has elapsed as expired, so old file contents stop counting toward storage and
// Rollback no longer considers them viable restore points.
func (s *Scheduler) cleanupExpiredSnapshots(ctx context.Context) {
	expired, err := s.store.ListExpiredSnapshots(ctx, s.clock.Now())
	if err != nil {
		s.logger.Warn("scheduler: list expired snapshots: %v", err)
		return
	}
	for _, snap := range expired {
		if err := s.store.UpdateSnapshotStatus(ctx, snap.ID, domain.SnapshotExpired); err != nil {
			s.logger.Warn("scheduler: expire snapshot=%s err=%v", snap.ID, err)
			continue
		}
		s.logger.Info("scheduler: expired snapshot=%s repository=%s remediation=%s", snap.ID, snap.Repository, snap.RemediationID)
	}
}

// evaluateMetricThresholds implements §5's 15-minute job: re-check every currently open
// circuit and re-notify if it has stayed open past CircuitAutoReset, so a stuck circuit
// doesn't silently go unnoticed between the original open-circuit alert and a human
// eventually looking at the dashboard. CircuitState carries no repository field (the
// breaker signature is an opaque hash, per circuitbreaker.Signature), so the signature
// itself is the notification's channel label.
func (s *Scheduler) evaluateMetricThresholds(ctx context.Context) {
	signatures, err := s.openCircuitSignatures(ctx)
	if err != nil {
		s.logger.Warn("scheduler: metric threshold evaluation: %v", err)
		return
	}
	for _, sig := range signatures {
		state, err := s.store.GetCircuitState(ctx, sig)
		if err != nil {
			s.logger.Warn("scheduler: get circuit state signature=%s err=%v", sig, err)
			continue
		}
		if state.OpenedAt == nil {
			continue
		}
		if s.exporter != nil {
			s.exporter.SetCircuitOpen(sig, true)
		}
		if s.clock.Now().Sub(*state.OpenedAt) < s.cfg.CircuitAutoReset() {
			continue
		}
		if err := s.notifier.Send(ctx, sig, substrate.NotifyCritical, map[string]any{
			"signature":  sig,
			"state":      string(state.State),
			"opened_at":  state.OpenedAt,
			"stuck_open": true,
		}); err != nil {
			s.logger.Warn("scheduler: notify stuck circuit signature=%s err=%v", sig, err)
		}
	}
	s.refreshPatternsTotal(ctx)
}

// refreshPatternsTotal republishes the dashboard's PatternsTotal gauge by summing
// ListPatterns across every managed repository and both embedding families, piggybacking
// on the same 15-minute tick as the circuit check rather than adding a fourth job.
func (s *Scheduler) refreshPatternsTotal(ctx context.Context) {
	if s.exporter == nil {
		return
	}
	total := 0
	for _, repo := range s.cfg.Repositories {
		for _, family := range []domain.EmbeddingFamily{domain.EmbeddingFamilyRemote, domain.EmbeddingFamilyHashed} {
			patterns, err := s.store.ListPatterns(ctx, repo, family)
			if err != nil {
				s.logger.Warn("scheduler: list patterns repository=%s family=%s err=%v", repo, family, err)
				continue
			}
			total += len(patterns)
		}
	}
	s.exporter.PatternsTotal.Set(float64(total))
}

// openCircuitSignatures prefers the Prometheus-backed QueryService (matching §6's
// dashboard data source) and falls back to a direct Store read when no Prometheus server
// is configured.
func (s *Scheduler) openCircuitSignatures(ctx context.Context) ([]string, error) {
	if s.metrics != nil {
		sigs, err := s.metrics.GetOpenCircuitSignatures(ctx)
		if err == nil {
			return sigs, nil
		}
		s.logger.Warn("scheduler: prometheus query failed, falling back to store: %v", err)
	}
	states, err := s.store.ListOpenCircuits(ctx)
	if err != nil {
		return nil, fmt.Errorf("scheduler: list open circuits: %w", err)
	}
	sigs := make([]string, len(states))
	for i, st := range states {
		sigs[i] = st.Signature
	}
	return sigs, nil
}

// sendWeeklyReport implements §5's weekly job: for every managed repository, summarize
// the trailing week's remediation outcomes via the PersonalityProfiler (or the
// Prometheus-backed snapshot, when available) and notify.
func (s *Scheduler) sendWeeklyReport(ctx context.Context) {
	for _, repo := range s.cfg.Repositories {
		profile, err := s.profiler.Get(ctx, repo)
		if err != nil {
			s.logger.Warn("scheduler: weekly report profile repository=%s err=%v", repo, err)
			continue
		}
		payload := map[string]any{
			"repository":             repo,
			"total_failures":         profile.TotalFailures,
			"success_rate":           profile.SuccessRate,
			"flaky_rate":             profile.FlakyRate,
			"avg_resolution_minutes": profile.AvgResolutionMinutes,
		}
		if s.metrics != nil {
			if snap, err := s.metrics.GetRepositorySnapshot(ctx, repo); err == nil {
				payload["remediations_opened"] = snap.RemediationsOpened
				payload["remediations_succeeded"] = snap.RemediationsSucceeded
				payload["rollbacks"] = snap.Rollbacks
			}
		}
		if err := s.notifier.Send(ctx, repo, substrate.NotifyWeeklyReport, payload); err != nil {
			s.logger.Warn("scheduler: send weekly report repository=%s err=%v", repo, err)
		}
	}
}
