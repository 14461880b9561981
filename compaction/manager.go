package compaction

import (
	"context"
	"sync"

	"github.com/ctxpg/ctxpg/types"
)

// Manager combines the decision policy with the compaction executor and is
// the public surface the run orchestrator talks to.
//
// ShouldCompact is pure and may be called any number of times. Compact
// always executes (it does not re-check the policy) and is serialized per
// conversation thread: a second Compact call for the same thread waits for
// the first to finish, and TryCompact rejects instead. Distinct threads
// compact concurrently without interference.
type Manager struct {
	policy    Policy
	evaluator Evaluator
	compactor *Compactor

	mu    sync.Mutex
	locks map[string]*threadLock
}

// threadLock is a per-thread mutex with a reference count. The count covers
// holders and waiters; the map entry is removed when it drops to zero, so
// the lock table stays bounded by the number of in-flight compactions rather
// than the number of thread IDs ever seen.
type threadLock struct {
	mu   sync.Mutex
	refs int
}

// NewManager creates a Manager for the given invoker and policy.
//
// A nil policy means DefaultPolicy. Zero-valued numeric fields are filled
// with defaults before validation; an invalid policy (misordered or
// out-of-range thresholds) rejects construction with ErrInvalidPolicy.
func NewManager(invoker types.Invoker, policy *Policy) (*Manager, error) {
	var p Policy
	if policy == nil {
		p = *DefaultPolicy()
	} else {
		p = *policy
		p.ApplyDefaults()
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}

	// The evaluator strategy is selected once here: either the caller's
	// override or the built-in threshold policy, never both.
	evaluator := p.Evaluator
	if evaluator == nil {
		evaluator = &builtinEvaluator{growthRatePrediction: p.EnableGrowthRatePrediction}
	}

	summarizer := NewSummarizer(invoker)

	return &Manager{
		policy:    p,
		evaluator: evaluator,
		compactor: NewCompactor(summarizer, p.KeepMessageCount, p.KeepToolResultCount, p.EnableErrorFallback),
		locks:     make(map[string]*threadLock),
	}, nil
}

// Policy returns the fully merged policy in effect, with all fields
// populated.
func (m *Manager) Policy() Policy {
	return m.policy
}

// ShouldCompact evaluates the decision policy against the history.
// Pure: no side effects, no state mutation.
func (m *Manager) ShouldCompact(history []*types.Message) Decision {
	if !m.policy.Enabled {
		return Decision{Trigger: false, Reason: ReasonNone}
	}
	return m.evaluator.Evaluate(m.policy.Budget(), history)
}

// Compact performs compaction for the given thread, waiting for any
// in-flight compaction of the same thread to finish first. The optional
// reason records what triggered the compaction; it defaults to
// ReasonTokenThreshold when omitted.
func (m *Manager) Compact(ctx context.Context, threadID string, history []*types.Message, reason ...Reason) (*Result, error) {
	lock := m.lockFor(threadID)
	lock.mu.Lock()
	defer func() {
		lock.mu.Unlock()
		m.releaseLock(threadID, lock)
	}()

	result, err := m.compactor.Compact(ctx, history, compactReason(reason))
	if err != nil {
		return nil, NewError("Compact", err).WithThread(threadID)
	}
	return result, nil
}

// TryCompact is like Compact but rejects with ErrCompactionInProgress when
// a compaction for the same thread is already in flight.
func (m *Manager) TryCompact(ctx context.Context, threadID string, history []*types.Message, reason ...Reason) (*Result, error) {
	lock := m.lockFor(threadID)
	if !lock.mu.TryLock() {
		m.releaseLock(threadID, lock)
		return nil, NewError("TryCompact", ErrCompactionInProgress).WithThread(threadID)
	}
	defer func() {
		lock.mu.Unlock()
		m.releaseLock(threadID, lock)
	}()

	result, err := m.compactor.Compact(ctx, history, compactReason(reason))
	if err != nil {
		return nil, NewError("TryCompact", err).WithThread(threadID)
	}
	return result, nil
}

// Stats reports budget utilization for a history.
func (m *Manager) Stats(history []*types.Message) Stats {
	current := EstimateHistory(history)
	return Stats{
		CurrentTokens:  current,
		MaxTokens:      m.policy.MaxTokens,
		UtilizationPct: m.policy.Budget().UsageRatio(current) * 100,
		MessageCount:   len(history),
		ShouldCompact:  m.ShouldCompact(history).Trigger,
	}
}

// Stats contains budget utilization for a thread's history.
type Stats struct {
	CurrentTokens  int
	MaxTokens      int
	UtilizationPct float64
	MessageCount   int
	ShouldCompact  bool
}

// lockFor returns the thread's lock entry with the reference count bumped.
// Every lockFor must be paired with a releaseLock.
func (m *Manager) lockFor(threadID string) *threadLock {
	m.mu.Lock()
	defer m.mu.Unlock()

	lock, ok := m.locks[threadID]
	if !ok {
		lock = &threadLock{}
		m.locks[threadID] = lock
	}
	lock.refs++
	return lock
}

func (m *Manager) releaseLock(threadID string, lock *threadLock) {
	m.mu.Lock()
	defer m.mu.Unlock()

	lock.refs--
	if lock.refs == 0 {
		delete(m.locks, threadID)
	}
}

func compactReason(reason []Reason) Reason {
	if len(reason) > 0 {
		return reason[0]
	}
	return ReasonTokenThreshold
}
