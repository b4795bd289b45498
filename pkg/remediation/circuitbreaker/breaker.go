// Package circuitbreaker generalizes the teacher's single-instance breaker
// (pkg/agent/middleware/resilience/circuit) into a per-signature, persisted breaker
// keyed on normalized (repository, branch, error_pattern), per §4.4.
package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ci-remediator/orchestrator/pkg/logx"
	"github.com/ci-remediator/orchestrator/pkg/remediation/domain"
	remerrors "github.com/ci-remediator/orchestrator/pkg/remediation/errors"
	"github.com/ci-remediator/orchestrator/pkg/remediation/store"
	"github.com/ci-remediator/orchestrator/pkg/remediation/substrate"
)

// FailureThreshold is the number of consecutive CLOSED-state failures that trips the
// breaker open. Fixed at 3 per §4.4; not currently configurable.
const FailureThreshold = 3

// AutoResetWindow is how long an OPEN circuit stays open before allowing a HALF_OPEN
// probe.
const AutoResetWindow = 24 * time.Hour

// Decision is the outcome of a Breaker.Check call.
type Decision struct {
	Allowed   bool
	Signature string
	State     domain.CircuitStateValue
	Reason    string
}

// Breaker is the per-signature circuit breaker gating remediation attempts against
// repeatedly-failing signatures.
type Breaker struct {
	store  store.Store
	clock  substrate.Clock
	logger *logx.Logger

	mu     sync.Mutex
	locks  map[string]*sync.Mutex
}

// New constructs a Breaker backed by s for persistence and clk for time.
func New(s store.Store, clk substrate.Clock, logger *logx.Logger) *Breaker {
	return &Breaker{
		store:  s,
		clock:  clk,
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
	}
}

func (b *Breaker) lockFor(signature string) *sync.Mutex {
	b.mu.Lock()
	defer b.mu.Unlock()
	l, ok := b.locks[signature]
	if !ok {
		l = &sync.Mutex{}
		b.locks[signature] = l
	}
	return l
}

// Check evaluates whether a remediation attempt for (repository, branch, reason) is
// allowed right now, transitioning OPEN->HALF_OPEN if auto_reset_at has elapsed. The
// decision and any resulting persistence happen under the per-signature lock, per §5's
// shared-resource policy.
func (b *Breaker) Check(ctx context.Context, repository, branch, reason string) (Decision, error) {
	signature := Signature(repository, branch, reason)
	lock := b.lockFor(signature)
	lock.Lock()
	defer lock.Unlock()

	cs, err := b.store.GetCircuitState(ctx, signature)
	if err != nil && !errors.Is(err, remerrors.ErrNotFound) {
		return Decision{}, fmt.Errorf("circuitbreaker: load state: %w", err)
	}
	now := b.clock.Now()

	if cs == nil {
		cs = &domain.CircuitState{Signature: signature, State: domain.CircuitClosed}
	}

	switch cs.State {
	case domain.CircuitClosed:
		return Decision{Allowed: true, Signature: signature, State: cs.State, Reason: "circuit closed"}, nil

	case domain.CircuitOpen:
		if cs.AutoResetAt != nil && !now.Before(*cs.AutoResetAt) {
			cs.State = domain.CircuitHalfOpen
			cs.History = append(cs.History, domain.CircuitTransition{
				From: domain.CircuitOpen, To: domain.CircuitHalfOpen,
				Reason: "auto_reset_at elapsed", At: now, Actor: "circuitbreaker",
			})
			if err := b.store.SaveCircuitState(ctx, cs); err != nil {
				return Decision{}, fmt.Errorf("circuitbreaker: persist half-open transition: %w", err)
			}
			return Decision{Allowed: true, Signature: signature, State: cs.State, Reason: "half-open probe"}, nil
		}
		return Decision{Allowed: false, Signature: signature, State: cs.State, Reason: "circuit open until auto reset"}, nil

	case domain.CircuitHalfOpen:
		return Decision{Allowed: true, Signature: signature, State: cs.State, Reason: "half-open probe already admitted"}, nil

	default:
		return Decision{Allowed: false, Signature: signature, State: cs.State, Reason: "unknown state"}, nil
	}
}

// RecordSuccess reports a successful remediation for the signature. From HALF_OPEN this
// is the mandatory close-and-clear edge the teacher pack flags as historically
// bug-prone: it must both transition to CLOSED and reset failure_count to zero, or the
// next single failure would immediately reopen the breaker instead of starting a fresh
// count.
func (b *Breaker) RecordSuccess(ctx context.Context, repository, branch, reason string) error {
	signature := Signature(repository, branch, reason)
	lock := b.lockFor(signature)
	lock.Lock()
	defer lock.Unlock()

	cs, err := b.store.GetCircuitState(ctx, signature)
	if err != nil {
		if errors.Is(err, remerrors.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("circuitbreaker: load state: %w", err)
	}
	now := b.clock.Now()

	if cs.State == domain.CircuitHalfOpen || cs.State == domain.CircuitOpen {
		from := cs.State
		cs.State = domain.CircuitClosed
		cs.FailureCount = 0
		cs.OpenedAt = nil
		cs.AutoResetAt = nil
		cs.History = append(cs.History, domain.CircuitTransition{
			From: from, To: domain.CircuitClosed,
			Reason: "success cleared breaker", At: now, Actor: "circuitbreaker",
		})
		if b.logger != nil {
			b.logger.Info("circuit closed after successful probe: signature=%s", signature)
		}
	} else {
		cs.FailureCount = 0
	}
	return b.store.SaveCircuitState(ctx, cs)
}

// RecordFailure reports a failed remediation attempt for the signature, advancing the
// FSM: CLOSED accumulates toward FailureThreshold then opens; HALF_OPEN reopens
// immediately and extends the reset window.
func (b *Breaker) RecordFailure(ctx context.Context, repository, branch, reason string) error {
	signature := Signature(repository, branch, reason)
	lock := b.lockFor(signature)
	lock.Lock()
	defer lock.Unlock()

	cs, err := b.store.GetCircuitState(ctx, signature)
	if err != nil && !errors.Is(err, remerrors.ErrNotFound) {
		return fmt.Errorf("circuitbreaker: load state: %w", err)
	}
	now := b.clock.Now()
	if cs == nil {
		cs = &domain.CircuitState{Signature: signature, State: domain.CircuitClosed}
	}
	cs.LastFailureAt = now

	switch cs.State {
	case domain.CircuitHalfOpen:
		autoReset := now.Add(AutoResetWindow)
		cs.State = domain.CircuitOpen
		cs.OpenedAt = &now
		cs.AutoResetAt = &autoReset
		cs.History = append(cs.History, domain.CircuitTransition{
			From: domain.CircuitHalfOpen, To: domain.CircuitOpen,
			Reason: "probe failed", At: now, Actor: "circuitbreaker",
		})

	case domain.CircuitClosed:
		cs.FailureCount++
		if cs.FailureCount >= FailureThreshold {
			autoReset := now.Add(AutoResetWindow)
			cs.State = domain.CircuitOpen
			cs.OpenedAt = &now
			cs.AutoResetAt = &autoReset
			cs.History = append(cs.History, domain.CircuitTransition{
				From: domain.CircuitClosed, To: domain.CircuitOpen,
				Reason: fmt.Sprintf("reached failure threshold %d", FailureThreshold),
				At: now, Actor: "circuitbreaker",
			})
			if b.logger != nil {
				b.logger.Warn("circuit opened: signature=%s failures=%d", signature, cs.FailureCount)
			}
		}

	case domain.CircuitOpen:
		// Already open; a failure here (e.g. a stale in-flight attempt) just refreshes the timestamp.
	}

	return b.store.SaveCircuitState(ctx, cs)
}

// Reset manually forces a signature's circuit back to CLOSED, e.g. from an operator
// action surfaced through the dashboard.
func (b *Breaker) Reset(ctx context.Context, signature, actor string) error {
	lock := b.lockFor(signature)
	lock.Lock()
	defer lock.Unlock()

	cs, err := b.store.GetCircuitState(ctx, signature)
	if err != nil {
		if errors.Is(err, remerrors.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("circuitbreaker: load state: %w", err)
	}
	from := cs.State
	cs.State = domain.CircuitClosed
	cs.FailureCount = 0
	cs.OpenedAt = nil
	cs.AutoResetAt = nil
	cs.History = append(cs.History, domain.CircuitTransition{
		From: from, To: domain.CircuitClosed,
		Reason: "manual reset", At: b.clock.Now(), Actor: actor,
	})
	return b.store.SaveCircuitState(ctx, cs)
}

// ListOpen returns every currently-OPEN or HALF_OPEN circuit, for the dashboard and the
// metric-threshold evaluator.
func (b *Breaker) ListOpen(ctx context.Context) ([]domain.CircuitState, error) {
	return b.store.ListOpenCircuits(ctx)
}
