// Package safetygate composes CircuitBreaker, protected-repo policy, application-code
// detection, risk threshold, and BlastRadius into a single allow/deny Verdict (§4.3).
package safetygate

import (
	"context"
	"path"

	"github.com/ci-remediator/orchestrator/pkg/remediation/blastradius"
	"github.com/ci-remediator/orchestrator/pkg/remediation/circuitbreaker"
	"github.com/ci-remediator/orchestrator/pkg/remediation/domain"
)

// Verdict is SafetyGate's terminal decision for one Failure/Analysis pair.
type Verdict string

// Recognized verdicts. AutoApplySimulated is AutoApply under global dry-run: every
// downstream side effect is intercepted rather than actually skipped.
const (
	VerdictAutoApply          Verdict = "auto_apply"
	VerdictAutoApplySimulated Verdict = "auto_apply_simulated"
	VerdictRequireApproval    Verdict = "require_approval"
	VerdictBlock              Verdict = "block"
)

// GateOutcome records one gate's pass/fail decision for the DecisionRecord.
type GateOutcome struct {
	Gate   string
	Passed bool
	Reason string
}

// Result is SafetyGate's full output: the verdict plus every gate's outcome, in order.
type Result struct {
	Verdict      Verdict
	BlastRadius  blastradius.Result
	GateOutcomes []GateOutcome
}

// RepoPolicy is the per-repository configuration SafetyGate consults.
type RepoPolicy struct {
	Protected              bool
	RiskThreshold          int // default 5
	ApplicationCodeGlobs   []string
	DefaultBranch          string
}

// Input is what SafetyGate needs to evaluate one Failure/Analysis pair.
type Input struct {
	Failure  domain.Failure
	Analysis domain.Analysis
	Policy   RepoPolicy
	DryRun   bool
}

// Gate composes the CircuitBreaker and BlastRadius collaborators into the ordered gate
// chain from §4.3.
type Gate struct {
	breaker *circuitbreaker.Breaker
}

// New constructs a Gate backed by breaker for the circuit check.
func New(breaker *circuitbreaker.Breaker) *Gate {
	return &Gate{breaker: breaker}
}

func matchesAnyGlob(globs []string, file string) bool {
	for _, g := range globs {
		if ok, _ := path.Match(g, file); ok {
			return true
		}
		if ok, _ := path.Match(g, path.Base(file)); ok {
			return true
		}
		// A pattern matching a leading directory covers every file beneath it.
		for dir := path.Dir(file); dir != "." && dir != "/"; dir = path.Dir(dir) {
			if ok, _ := path.Match(g, dir); ok {
				return true
			}
		}
	}
	return false
}

func intersectsApplicationCode(globs, files []string) bool {
	for _, f := range files {
		if matchesAnyGlob(globs, f) {
			return true
		}
	}
	return false
}

// Evaluate runs the six gates in order, short-circuiting on Block. Every gate's outcome
// is recorded regardless of whether it changed the running verdict, so the
// DecisionRecord carries the full trace.
func (g *Gate) Evaluate(ctx context.Context, in Input) (Result, error) {
	var outcomes []GateOutcome
	verdict := VerdictAutoApply

	// 1. Circuit check.
	decision, err := g.breaker.Check(ctx, in.Failure.Repository, in.Failure.Branch, in.Failure.FailureReason)
	if err != nil {
		return Result{}, err
	}
	if !decision.Allowed {
		outcomes = append(outcomes, GateOutcome{Gate: "circuit_check", Passed: false, Reason: "circuit_open"})
		return Result{Verdict: VerdictBlock, GateOutcomes: outcomes}, nil
	}
	outcomes = append(outcomes, GateOutcome{Gate: "circuit_check", Passed: true, Reason: string(decision.State)})

	// 2. Protected repository.
	if in.Policy.Protected {
		verdict = escalate(verdict, VerdictRequireApproval)
		outcomes = append(outcomes, GateOutcome{Gate: "protected_repository", Passed: false, Reason: "repository flagged protected"})
	} else {
		outcomes = append(outcomes, GateOutcome{Gate: "protected_repository", Passed: true})
	}

	// 3. Application code.
	if intersectsApplicationCode(in.Policy.ApplicationCodeGlobs, in.Analysis.FilesToModify) {
		verdict = escalate(verdict, VerdictRequireApproval)
		outcomes = append(outcomes, GateOutcome{Gate: "application_code", Passed: false, Reason: "edit set touches application source"})
	} else {
		outcomes = append(outcomes, GateOutcome{Gate: "application_code", Passed: true})
	}

	// 4. Risk threshold.
	threshold := in.Policy.RiskThreshold
	if threshold == 0 {
		threshold = 5
	}
	if in.Analysis.RiskScore >= threshold {
		verdict = escalate(verdict, VerdictRequireApproval)
		outcomes = append(outcomes, GateOutcome{Gate: "risk_threshold", Passed: false, Reason: "risk_score at or above threshold"})
	} else {
		outcomes = append(outcomes, GateOutcome{Gate: "risk_threshold", Passed: true})
	}

	// 5. Blast radius.
	br := blastradius.Score(blastradius.Input{
		Repository:      in.Failure.Repository,
		Branch:          in.Failure.Branch,
		DefaultBranch:   in.Policy.DefaultBranch,
		FilesToModify:   in.Analysis.FilesToModify,
		FailureCategory: in.Analysis.Category,
	})
	switch {
	case br.Score >= 10:
		outcomes = append(outcomes, GateOutcome{Gate: "blast_radius", Passed: false, Reason: "blast radius at maximum severity"})
		return Result{Verdict: VerdictBlock, BlastRadius: br, GateOutcomes: outcomes}, nil
	case br.Score >= 8:
		verdict = escalate(verdict, VerdictRequireApproval)
		outcomes = append(outcomes, GateOutcome{Gate: "blast_radius", Passed: false, Reason: "blast radius high"})
	default:
		outcomes = append(outcomes, GateOutcome{Gate: "blast_radius", Passed: true})
	}

	// 6. Dry-run mode.
	if in.DryRun && verdict == VerdictAutoApply {
		verdict = VerdictAutoApplySimulated
		outcomes = append(outcomes, GateOutcome{Gate: "dry_run", Passed: true, Reason: "global dry-run active"})
	} else {
		outcomes = append(outcomes, GateOutcome{Gate: "dry_run", Passed: !in.DryRun})
	}

	return Result{Verdict: verdict, BlastRadius: br, GateOutcomes: outcomes}, nil
}

// escalate never downgrades a verdict already at or above requested severity.
func escalate(current, requested Verdict) Verdict {
	if severity(requested) > severity(current) {
		return requested
	}
	return current
}

func severity(v Verdict) int {
	switch v {
	case VerdictBlock:
		return 3
	case VerdictRequireApproval:
		return 2
	case VerdictAutoApplySimulated:
		return 1
	default:
		return 0
	}
}
