// Package classifier transforms a Failure into an Analysis by assembling a prompt from
// failure facts, PatternMemory recall, and a PersonalityProfiler snapshot, then decoding
// the model's response through a multi-strategy parser (§4.2).
package classifier

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/ci-remediator/orchestrator/pkg/agent/llm"
	"github.com/ci-remediator/orchestrator/pkg/remediation/backoff"
	"github.com/ci-remediator/orchestrator/pkg/remediation/domain"
	remerrors "github.com/ci-remediator/orchestrator/pkg/remediation/errors"
	"github.com/ci-remediator/orchestrator/pkg/remediation/patternmemory"
	"github.com/ci-remediator/orchestrator/pkg/remediation/personality"
	"github.com/ci-remediator/orchestrator/pkg/remediation/substrate"
)

// SimilarPatternCount is k in the top-k PatternMemory recall, per §4.2.
const SimilarPatternCount = 3

// ConfidenceAdjustBound is the maximum absolute number of percentage points the
// PersonalityProfiler hint may move the model's reported confidence.
const ConfidenceAdjustBound = 20

// CallTimeout is the per-call deadline for the ModelClient, per §5.
const CallTimeout = 30 * time.Second

// Classifier is the LLM-driven categorization + fix proposal service.
type Classifier struct {
	model    substrate.ModelClient
	memory   *patternmemory.Memory
	profiler *personality.Profiler
}

// New constructs a Classifier over its three collaborators.
func New(model substrate.ModelClient, memory *patternmemory.Memory, profiler *personality.Profiler) *Classifier {
	return &Classifier{model: model, memory: memory, profiler: profiler}
}

// Result bundles the produced Analysis with the DecisionRecord evidence the Orchestrator
// persists alongside it.
type Result struct {
	Analysis domain.Analysis
	Decision domain.DecisionRecord
}

// Classify runs the full pipeline for one Failure, retrying transient upstream errors up
// to backoff.ClassifierPolicy.MaxRetries times.
func (c *Classifier) Classify(ctx context.Context, failure domain.Failure) (Result, error) {
	// The failure's category isn't known until after classification, so recall uses an
	// empty category, which never matches a stored pattern's category and therefore
	// always applies patternmemory.CrossCategoryThreshold (the stricter bound).
	similar, err := c.memory.Similar(ctx, failure.FailureReason, "", failure.Repository, SimilarPatternCount)
	if err != nil {
		return Result{}, fmt.Errorf("classifier: pattern recall: %w", err)
	}

	profile, err := c.profiler.Get(ctx, failure.Repository)
	if err != nil {
		return Result{}, fmt.Errorf("classifier: personality snapshot: %w", err)
	}

	prompt := Assemble(AssembleParams{Failure: failure, Similar: similar, Profile: profile})

	var raw *rawAnalysis
	var latency time.Duration
	for attempt := 0; ; attempt++ {
		raw, latency, err = c.callOnce(ctx, prompt)
		if err == nil {
			break
		}
		if attempt >= backoff.ClassifierPolicy.MaxRetries || !isRetryable(err) {
			return Result{}, err
		}
		delay := backoff.ClassifierPolicy.Delay(attempt)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
	}

	adjustment, err := c.profiler.ConfidenceAdjustment(ctx, failure.Repository, raw.Category)
	if err != nil {
		return Result{}, fmt.Errorf("classifier: confidence adjustment: %w", err)
	}
	adjustedConfidence := applyBoundedAdjustment(raw.Confidence, adjustment)

	analysis := domain.Analysis{
		FailureID:          failure.ID,
		ErrorType:          domain.ErrorType(raw.ErrorType),
		Category:           raw.Category,
		RiskScore:          raw.RiskScore,
		Confidence:         adjustedConfidence,
		Effort:             domain.Effort(raw.Effort),
		ProposedFix:        raw.ProposedFix,
		FilesToModify:      raw.FilesToModify,
		FixOperations:      raw.FixOperations,
		Reasoning:          raw.Reasoning,
		AffectedComponents: raw.AffectedComponents,
		ResponseLatencyMS:  latency.Milliseconds(),
		CreatedAt:          time.Now().UTC(),
	}

	decision := domain.DecisionRecord{
		FailureID:     failure.ID,
		Kind:          domain.DecisionClassification,
		Chosen:        fmt.Sprintf("error_type=%s category=%s risk=%d", analysis.ErrorType, analysis.Category, analysis.RiskScore),
		ContextDigest: contextDigest(prompt),
		Confidence:    adjustedConfidence,
		CreatedAt:     analysis.CreatedAt,
	}

	return Result{Analysis: analysis, Decision: decision}, nil
}

func (c *Classifier) callOnce(ctx context.Context, prompt string) (*rawAnalysis, time.Duration, error) {
	callCtx, cancel := context.WithTimeout(ctx, CallTimeout)
	defer cancel()

	start := time.Now()
	resp, err := c.model.Complete(callCtx, buildRequest(prompt))
	latency := time.Since(start)
	if err != nil {
		return nil, latency, classifyUpstreamError(err)
	}

	raw, err := Parse(resp.Content)
	if err != nil {
		return nil, latency, err
	}
	return raw, latency, nil
}

func classifyUpstreamError(err error) error {
	return remerrors.Wrap("classifier.complete", err)
}

func isRetryable(err error) bool {
	var r remerrors.Retryable
	if errors.As(err, &r) {
		return r.IsRetryable()
	}
	return false
}

func buildRequest(prompt string) llm.CompletionRequest {
	return llm.CompletionRequest{
		Messages: []llm.CompletionMessage{
			{Role: llm.RoleUser, Content: prompt},
		},
		MaxTokens:   4096,
		Temperature: 0,
	}
}

// contextDigest fingerprints the assembled prompt so a DecisionRecord can be tied back
// to the exact context the model saw without storing the full prompt text in the ledger.
func contextDigest(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return hex.EncodeToString(sum[:])
}

// applyBoundedAdjustment converts the Profiler's fractional adjustment hint (e.g. -0.1
// for a 10-point penalty) into whole percentage points, clamps it to
// ±ConfidenceAdjustBound, and applies it to the model's reported confidence.
func applyBoundedAdjustment(confidence int, adjustment float64) int {
	points := adjustment * 100
	if points > ConfidenceAdjustBound {
		points = ConfidenceAdjustBound
	}
	if points < -ConfidenceAdjustBound {
		points = -ConfidenceAdjustBound
	}
	result := confidence + int(points)
	if result < 0 {
		result = 0
	}
	if result > 100 {
		result = 100
	}
	return result
}
