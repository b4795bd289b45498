// Package orchestrator is the control loop's central wiring point: it drives each
// Failure through the detected -> analyzed -> gated -> ... state machine (§4.9),
// composing Poller, Classifier, SafetyGate, Executor, the approval Gate, and
// PatternMemory/PersonalityProfiler learning writes, with per-repository polling and a
// bounded worker pool, generalized from the teacher's pkg/dispatch supervisor/shutdown
// pattern. Supervisory goroutines are managed with golang.org/x/sync/errgroup rather than
// a hand-rolled sync.WaitGroup, and concurrent default-branch lookups for the same
// repository collapse through golang.org/x/sync/singleflight.
package orchestrator

import (
	"context"
	"fmt"
	"math/rand"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/ci-remediator/orchestrator/pkg/config"
	"github.com/ci-remediator/orchestrator/pkg/eventlog"
	"github.com/ci-remediator/orchestrator/pkg/logx"
	"github.com/ci-remediator/orchestrator/pkg/metrics"
	"github.com/ci-remediator/orchestrator/pkg/remediation/approval"
	"github.com/ci-remediator/orchestrator/pkg/remediation/circuitbreaker"
	"github.com/ci-remediator/orchestrator/pkg/remediation/classifier"
	"github.com/ci-remediator/orchestrator/pkg/remediation/domain"
	"github.com/ci-remediator/orchestrator/pkg/remediation/executor"
	"github.com/ci-remediator/orchestrator/pkg/remediation/explainability"
	"github.com/ci-remediator/orchestrator/pkg/remediation/patternmemory"
	"github.com/ci-remediator/orchestrator/pkg/remediation/personality"
	"github.com/ci-remediator/orchestrator/pkg/remediation/poller"
	"github.com/ci-remediator/orchestrator/pkg/remediation/safetygate"
	"github.com/ci-remediator/orchestrator/pkg/remediation/store"
	"github.com/ci-remediator/orchestrator/pkg/remediation/substrate"
)

// ApprovalSweepInterval is how often pending approvals are polled for resolution.
const ApprovalSweepInterval = time.Minute

// HealthCheckSweepInterval is how often due health checks are evaluated.
const HealthCheckSweepInterval = time.Minute

// VCSCallTimeout bounds the default-branch lookup and NotifierCallTimeout bounds each
// notification send. StoreCallTimeout is not applied to any store call. The model call
// deadline is classifier.CallTimeout.
const (
	VCSCallTimeout      = 20 * time.Second
	NotifierCallTimeout = 10 * time.Second
	StoreCallTimeout    = 5 * time.Second
)

// Orchestrator ties every remediation decision service together and drives Failures
// through the control loop's state machine.
type Orchestrator struct {
	cfg *config.Config

	vcs      substrate.VcsClient
	store    store.Store
	clock    substrate.Clock
	notifier substrate.Notifier
	logger   *logx.Logger

	poller     *poller.Poller
	classifier *classifier.Classifier
	gate       *safetygate.Gate
	approval   *approval.Gate
	ledger     *explainability.Ledger
	breaker    *circuitbreaker.Breaker
	memory     *patternmemory.Memory
	profiler   *personality.Profiler
	exporter   *metrics.Exporter // optional: nil disables Prometheus counter/histogram updates

	sem chan struct{} // bounded worker pool

	mu       sync.Mutex
	locks    map[string]*sync.Mutex // per-(repository) serialization
	branches map[string]string      // repository -> cached default branch
	branchSF singleflight.Group     // collapses concurrent default-branch lookups per repository

	eg       *errgroup.Group // set by Run; supervises pollLoop/sweepLoop and per-failure workers
	shutdown chan struct{}
}

// New wires an Orchestrator from its collaborators. workerPoolSize <= 0 defaults to
// max(2*NumCPU, 8). events may be nil to disable the JSONL audit mirror (e.g. in tests
// that only care about the Store side of the decision ledger). exporter may be nil to
// skip Prometheus instrumentation entirely.
func New(cfg *config.Config, vcs substrate.VcsClient, s store.Store, clock substrate.Clock, notifier substrate.Notifier, logger *logx.Logger, memory *patternmemory.Memory, profiler *personality.Profiler, model substrate.ModelClient, events *eventlog.Writer, exporter *metrics.Exporter, workerPoolSize int) *Orchestrator {
	if workerPoolSize <= 0 {
		workerPoolSize = 2 * runtime.NumCPU()
		if workerPoolSize < 8 {
			workerPoolSize = 8
		}
	}

	breaker := circuitbreaker.New(s, clock, logger)
	return &Orchestrator{
		cfg:        cfg,
		vcs:        vcs,
		store:      s,
		clock:      clock,
		notifier:   notifier,
		logger:     logger,
		poller:     poller.New(vcs, s, clock, logger),
		classifier: classifier.New(model, memory, profiler),
		gate:       safetygate.New(breaker),
		approval:   approval.New(vcs, s, clock),
		ledger:     explainability.New(s, events, clock),
		breaker:    breaker,
		memory:     memory,
		profiler:   profiler,
		exporter:   exporter,
		sem:        make(chan struct{}, workerPoolSize),
		locks:      make(map[string]*sync.Mutex),
		branches:   make(map[string]string),
		shutdown:   make(chan struct{}),
	}
}

func (o *Orchestrator) lockFor(repository string) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()
	l, ok := o.locks[repository]
	if !ok {
		l = &sync.Mutex{}
		o.locks[repository] = l
	}
	return l
}

func (o *Orchestrator) defaultBranch(ctx context.Context, repository string) (string, error) {
	o.mu.Lock()
	if b, ok := o.branches[repository]; ok {
		o.mu.Unlock()
		return b, nil
	}
	o.mu.Unlock()

	// Two failures for the same repository landing in the worker pool at once would
	// otherwise both hit the VCS API for a value only one of them needs to fetch.
	v, err, _ := o.branchSF.Do(repository, func() (interface{}, error) {
		callCtx, cancel := context.WithTimeout(ctx, VCSCallTimeout)
		defer cancel()
		b, err := o.vcs.DefaultBranch(callCtx, repository)
		if err != nil {
			return "", fmt.Errorf("orchestrator: resolve default branch: %w", err)
		}
		o.mu.Lock()
		o.branches[repository] = b
		o.mu.Unlock()
		return b, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil //nolint:forcetypeassert // branchSF.Do's fn always returns a string
}

// Run starts the polling loop for every configured repository plus the approval and
// health-check sweeps, blocking until ctx is cancelled and every worker has drained.
func (o *Orchestrator) Run(ctx context.Context) error {
	eg, groupCtx := errgroup.WithContext(ctx)
	o.eg = eg

	for _, repo := range o.cfg.Repositories {
		repo := repo
		eg.Go(func() error {
			o.pollLoop(groupCtx, repo)
			return nil
		})
	}

	eg.Go(func() error {
		o.sweepLoop(groupCtx, ApprovalSweepInterval, o.sweepApprovals)
		return nil
	})

	eg.Go(func() error {
		o.sweepLoop(groupCtx, HealthCheckSweepInterval, o.sweepHealthChecks)
		return nil
	})

	<-ctx.Done()
	close(o.shutdown)
	_ = eg.Wait()
	return ctx.Err()
}

func (o *Orchestrator) pollLoop(ctx context.Context, repository string) {
	interval := poller.TickInterval(o.cfg.PollingIntervalMinutes)
	jitter := time.Duration(rand.Int63n(int64(float64(interval) * poller.JitterFraction * 2))) - time.Duration(float64(interval)*poller.JitterFraction) //nolint:gosec // scheduling jitter only
	timer := time.NewTimer(interval + jitter)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-o.shutdown:
			return
		case <-timer.C:
			o.pollOnce(ctx, repository)
			timer.Reset(interval)
		}
	}
}

func (o *Orchestrator) pollOnce(ctx context.Context, repository string) {
	failures, err := o.poller.Poll(ctx, repository)
	if err != nil {
		o.logger.Warn("orchestrator: poll failed repository=%s err=%v", repository, err)
		return
	}
	if o.exporter != nil && len(failures) > 0 {
		o.exporter.FailuresDetectedTotal.WithLabelValues(repository).Add(float64(len(failures)))
	}
	for _, f := range failures {
		f := f
		select {
		case o.sem <- struct{}{}:
		case <-ctx.Done():
			return
		}
		o.eg.Go(func() error {
			defer func() { <-o.sem }()
			lock := o.lockFor(f.Repository)
			lock.Lock()
			defer lock.Unlock()
			if err := o.ProcessFailure(ctx, f); err != nil {
				o.logger.Error("orchestrator: process failure=%s repository=%s err=%v", f.ID, f.Repository, err)
			}
			return nil
		})
	}
}

func (o *Orchestrator) sweepLoop(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-o.shutdown:
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}

// ProcessFailure drives one Failure through classification, gating, and (if permitted)
// fix application, per §4.9's state machine. Callers must hold the per-repository lock.
func (o *Orchestrator) ProcessFailure(ctx context.Context, failure domain.Failure) error {
	// Cheap circuit pre-check ahead of classification: §8/S4 requires that no LLM call is
	// made once the circuit is open for this signature. safetygate.Gate.Evaluate repeats
	// this exact check as its own gate 1, but only after classification, which is too late
	// to prevent the LLM call itself.
	decision, err := o.breaker.Check(ctx, failure.Repository, failure.Branch, failure.FailureReason)
	if err != nil {
		return o.fail(ctx, failure, fmt.Sprintf("circuit pre-check error: %v", err))
	}
	if !decision.Allowed {
		return o.fail(ctx, failure, "blocked by safety gate")
	}

	classifyStart := o.clock.Now()
	result, err := o.classifier.Classify(ctx, failure)
	if o.exporter != nil {
		o.exporter.LLMLatencyMS.WithLabelValues(o.cfg.Substrate.LLMProvider).Observe(float64(o.clock.Now().Sub(classifyStart).Milliseconds()))
	}
	if err != nil {
		return o.fail(ctx, failure, fmt.Sprintf("classification error: %v", err))
	}

	if err := o.store.SaveAnalysis(ctx, &result.Analysis); err != nil {
		return fmt.Errorf("orchestrator: persist analysis: %w", err)
	}
	if err := o.ledger.RecordDecision(ctx, result.Decision); err != nil {
		return fmt.Errorf("orchestrator: record classification decision: %w", err)
	}
	failure.Status = domain.FailureAnalyzed
	failure.UpdatedAt = o.clock.Now()
	if err := o.store.SaveFailure(ctx, &failure); err != nil {
		return fmt.Errorf("orchestrator: persist analyzed status: %w", err)
	}

	policy, dryRun, approvalTimeout, riskThreshold := o.resolvePolicy(ctx, failure.Repository)
	gateResult, err := o.gate.Evaluate(ctx, safetygate.Input{
		Failure:  failure,
		Analysis: result.Analysis,
		Policy:   policy,
		DryRun:   dryRun,
	})
	if err != nil {
		return o.fail(ctx, failure, fmt.Sprintf("gate evaluation error: %v", err))
	}
	_ = o.recordGateDecision(ctx, failure, gateResult)

	failure.Status = domain.FailureGated
	failure.UpdatedAt = o.clock.Now()
	if err := o.store.SaveFailure(ctx, &failure); err != nil {
		return fmt.Errorf("orchestrator: persist gated status: %w", err)
	}

	if result.Analysis.ErrorType == domain.ErrorTypeDeveloper {
		return o.notifyDeveloper(ctx, failure, result.Analysis)
	}

	switch gateResult.Verdict {
	case safetygate.VerdictBlock:
		return o.fail(ctx, failure, "blocked by safety gate")
	case safetygate.VerdictRequireApproval:
		return o.requestApproval(ctx, failure, result.Analysis, riskThreshold, approvalTimeout)
	default: // auto_apply or auto_apply_simulated
		dry := gateResult.Verdict == safetygate.VerdictAutoApplySimulated
		return o.applyAndVerify(ctx, failure, result.Analysis, dry)
	}
}

func (o *Orchestrator) resolvePolicy(ctx context.Context, repository string) (safetygate.RepoPolicy, bool, time.Duration, int) {
	riskThreshold, dryRun, approvalTimeout, circuitThresh := o.cfg.ForRepository(repository)
	_ = circuitThresh // unused: CircuitBreaker trips at its fixed FailureThreshold and does not read this value
	branch, err := o.defaultBranch(ctx, repository)
	if err != nil {
		o.logger.Warn("orchestrator: default branch lookup failed repository=%s err=%v", repository, err)
	}
	return safetygate.RepoPolicy{
		Protected:            o.cfg.IsProtected(repository),
		RiskThreshold:        riskThreshold,
		ApplicationCodeGlobs: o.cfg.ApplicationCodeGlobs(repository),
		DefaultBranch:        branch,
	}, dryRun, approvalTimeout, riskThreshold
}

func (o *Orchestrator) recordGateDecision(ctx context.Context, failure domain.Failure, result safetygate.Result) error {
	details := map[string]interface{}{"verdict": string(result.Verdict), "blast_radius": result.BlastRadius.Score}
	for _, g := range result.GateOutcomes {
		details[g.Gate] = map[string]interface{}{"passed": g.Passed, "reason": g.Reason}
	}
	outcome := domain.AuditSuccess
	if result.Verdict == safetygate.VerdictBlock {
		outcome = domain.AuditFailure
	}
	return o.ledger.RecordAction(ctx, "safetygate", "gate_verdict", failure.ID, outcome, details)
}

func (o *Orchestrator) notifyDeveloper(ctx context.Context, failure domain.Failure, analysis domain.Analysis) error {
	failure.Status = domain.FailureDeveloperNotified
	failure.TerminalReason = "classified as developer-owned error"
	failure.UpdatedAt = o.clock.Now()
	if err := o.store.SaveFailure(ctx, &failure); err != nil {
		return fmt.Errorf("orchestrator: persist developer_notified: %w", err)
	}
	o.sendNotification(ctx, failure.Repository, substrate.NotifyEscalation, map[string]any{
		"failure_id": failure.ID, "category": analysis.Category, "reasoning": analysis.Reasoning,
	})
	return o.ledger.RecordAction(ctx, "orchestrator", "developer_notified", failure.ID, domain.AuditSuccess, nil)
}

func (o *Orchestrator) fail(ctx context.Context, failure domain.Failure, reason string) error {
	failure.Status = domain.FailureFailed
	failure.TerminalReason = reason
	failure.UpdatedAt = o.clock.Now()
	if err := o.store.SaveFailure(ctx, &failure); err != nil {
		return fmt.Errorf("orchestrator: persist failed status: %w", err)
	}
	o.sendNotification(ctx, failure.Repository, substrate.NotifyCritical, map[string]any{
		"failure_id": failure.ID, "reason": reason,
	})
	return o.ledger.RecordAction(ctx, "orchestrator", "failure_terminal", failure.ID, domain.AuditFailure, map[string]interface{}{"reason": reason})
}

func (o *Orchestrator) requestApproval(ctx context.Context, failure domain.Failure, analysis domain.Analysis, riskThreshold int, timeout time.Duration) error {
	_ = riskThreshold
	remediationID := uuid.NewString()
	exec := o.executorFor(false) // approval PRs are never dry-run: the PR must be real for a human to review
	outcome, err := exec.Apply(ctx, failure, analysis, remediationID, o.cfg.SnapshotRetentionDays)
	if err != nil {
		return o.fail(ctx, failure, fmt.Sprintf("fix application error: %v", err))
	}

	req, err := o.approval.Request(ctx, failure, analysis, remediationID, outcome.PR, o.reviewerPool(failure.Repository), int(timeout.Hours()))
	if err != nil {
		return o.fail(ctx, failure, fmt.Sprintf("approval request error: %v", err))
	}
	if o.exporter != nil {
		o.exporter.RemediationsOpenedTotal.WithLabelValues(failure.Repository).Inc()
	}

	failure.Status = domain.FailurePROpen
	failure.UpdatedAt = o.clock.Now()
	if err := o.store.SaveFailure(ctx, &failure); err != nil {
		return fmt.Errorf("orchestrator: persist pr_open status: %w", err)
	}
	o.sendNotification(ctx, failure.Repository, substrate.NotifyApprovalRequest, map[string]any{
		"failure_id": failure.ID, "request_id": req.ID, "reviewers": req.RequiredReviewers, "pr": outcome.PR.URL,
	})
	return o.ledger.RecordAction(ctx, "approval", "approval_requested", failure.ID, domain.AuditSuccess, map[string]interface{}{"request_id": req.ID})
}

func (o *Orchestrator) reviewerPool(repository string) approval.ReviewerPool {
	roster := o.cfg.ReviewersFor(repository)
	return approval.ReviewerPool{Senior: roster.Senior, Any: roster.Any}
}

func (o *Orchestrator) executorFor(dryRun bool) *executor.Executor {
	return executor.New(o.vcs, o.store, o.clock, o.logger, dryRun)
}

// applyAndVerify cuts the fix branch, opens the PR, schedules a post-remediation health
// check, and marks the Failure pr_open. sweepHealthChecks later marks it remediated or
// rolls it back once the delay elapses.
func (o *Orchestrator) applyAndVerify(ctx context.Context, failure domain.Failure, analysis domain.Analysis, dryRun bool) error {
	exec := o.executorFor(dryRun)
	remediationID := uuid.NewString()
	outcome, err := exec.Apply(ctx, failure, analysis, remediationID, o.cfg.SnapshotRetentionDays)
	if err != nil {
		return o.fail(ctx, failure, fmt.Sprintf("fix application error: %v", err))
	}

	failure.Status = domain.FailurePROpen
	failure.UpdatedAt = o.clock.Now()
	if err := o.store.SaveFailure(ctx, &failure); err != nil {
		return fmt.Errorf("orchestrator: persist pr_open status: %w", err)
	}

	if _, err := executor.ScheduleHealthCheck(ctx, o.store, o.clock, remediationID, outcome.Snapshot.ID, o.cfg.HealthCheckDelayMinutes); err != nil {
		return fmt.Errorf("orchestrator: schedule health check: %w", err)
	}
	if o.exporter != nil {
		o.exporter.RemediationsOpenedTotal.WithLabelValues(failure.Repository).Inc()
	}

	if err := o.breaker.RecordSuccess(ctx, failure.Repository, failure.Branch, failure.FailureReason); err != nil {
		o.logger.Warn("orchestrator: circuit success recording failed repository=%s err=%v", failure.Repository, err)
	}

	o.sendNotification(ctx, failure.Repository, substrate.NotifyRemediationResult, map[string]any{
		"failure_id": failure.ID, "pr": outcome.PR.URL, "dry_run": dryRun,
	})
	return o.ledger.RecordAction(ctx, "executor", "fix_applied", failure.ID, domain.AuditSuccess, map[string]interface{}{
		"remediation_id": remediationID, "branch": outcome.Branch, "pr": outcome.PR.URL,
	})
}

func (o *Orchestrator) sendNotification(ctx context.Context, channel string, kind substrate.NotificationKind, payload map[string]any) {
	if o.notifier == nil {
		return
	}
	callCtx, cancel := context.WithTimeout(ctx, NotifierCallTimeout)
	defer cancel()
	if err := o.notifier.Send(callCtx, channel, kind, payload); err != nil {
		o.logger.Warn("orchestrator: notify failed channel=%s kind=%s err=%v", channel, kind, err)
	}
}
