package compaction

import (
	"github.com/ctxpg/ctxpg/types"
)

// Reason explains why a compaction decision triggered.
type Reason string

const (
	// ReasonTokenThreshold indicates usage crossed the token threshold.
	ReasonTokenThreshold Reason = "token_threshold"

	// ReasonHardCap indicates usage crossed the hard-cap ceiling.
	ReasonHardCap Reason = "hard_cap"

	// ReasonGrowthRate indicates predicted usage after the next message
	// would cross the token threshold.
	ReasonGrowthRate Reason = "growth_rate"

	// ReasonNone indicates no compaction is needed.
	ReasonNone Reason = "none"
)

// Decision is the result of evaluating the compaction policy.
// Reason is meaningful only when Trigger is true.
type Decision struct {
	Trigger bool   `json:"trigger"`
	Reason  Reason `json:"reason"`
}

// Budget describes the token budget a decision is made against.
type Budget struct {
	// MaxTokens is the context window ceiling for the conversation.
	MaxTokens int

	// TokenThreshold is the usage ratio that triggers compaction.
	TokenThreshold float64

	// HardCapThreshold is the mandatory-compaction ceiling ratio.
	HardCapThreshold float64
}

// UsageRatio returns tokens/MaxTokens, or 0 for a non-positive budget.
func (b Budget) UsageRatio(tokens int) float64 {
	if b.MaxTokens <= 0 {
		return 0
	}
	return float64(tokens) / float64(b.MaxTokens)
}

// Evaluator decides whether compaction must run.
//
// The built-in evaluator implements the threshold policy below. A custom
// Evaluator installed via Policy.Evaluator fully replaces it: the selection
// happens once at configuration time, and exactly one of the two is
// consulted per call.
type Evaluator interface {
	Evaluate(budget Budget, history []*types.Message) Decision
}

// EvaluatorFunc adapts a function to the Evaluator interface.
type EvaluatorFunc func(budget Budget, history []*types.Message) Decision

// Evaluate calls f.
func (f EvaluatorFunc) Evaluate(budget Budget, history []*types.Message) Decision {
	return f(budget, history)
}

// builtinEvaluator implements the threshold decision policy, checked in
// strict order: hard cap, token threshold, then growth-rate prediction.
type builtinEvaluator struct {
	growthRatePrediction bool
}

func (e *builtinEvaluator) Evaluate(budget Budget, history []*types.Message) Decision {
	current := EstimateHistory(history)
	ratio := budget.UsageRatio(current)

	// Hard cap wins over the token threshold even when the threshold is
	// numerically higher.
	if ratio >= budget.HardCapThreshold {
		return Decision{Trigger: true, Reason: ReasonHardCap}
	}

	if ratio >= budget.TokenThreshold {
		return Decision{Trigger: true, Reason: ReasonTokenThreshold}
	}

	// Growth-rate prediction uses the single most recent message as the
	// growth sample: one disproportionately large trailing message alone
	// can trigger compaction preemptively.
	if e.growthRatePrediction && len(history) > 0 {
		predicted := current + EstimateMessage(history[len(history)-1])
		if budget.UsageRatio(predicted) >= budget.TokenThreshold {
			return Decision{Trigger: true, Reason: ReasonGrowthRate}
		}
	}

	return Decision{Trigger: false, Reason: ReasonNone}
}
