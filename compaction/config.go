package compaction

import (
	"fmt"
)

// Default configuration values.
const (
	DefaultTokenThreshold      = 0.8    // trigger at 80% context usage
	DefaultHardCapThreshold    = 0.95   // mandatory compaction at 95% usage
	DefaultMaxTokens           = 200000 // Claude Sonnet context window
	DefaultKeepMessageCount    = 10     // always keep the last 10 messages verbatim
	DefaultKeepToolResultCount = 2      // re-admit the last 2 tool results into the tail
	DefaultSummarizerModel     = "claude-3-5-haiku-20241022"
	DefaultSummarizerMaxTokens = 4096
)

// Policy holds the compaction decision configuration.
//
// Construct a Policy by starting from DefaultPolicy and overriding fields, or
// build one directly and let ApplyDefaults fill zero-valued numeric fields.
// Boolean fields are always taken as written; DefaultPolicy sets Enabled and
// EnableErrorFallback to true.
type Policy struct {
	// Enabled turns the built-in decision policy on or off. When false,
	// ShouldCompact never triggers, regardless of usage or any custom
	// evaluator.
	Enabled bool

	// TokenThreshold is the context usage ratio (0.0-1.0) that triggers
	// compaction. Default: 0.8
	TokenThreshold float64

	// HardCapThreshold is the absolute ceiling ratio beyond which compaction
	// is mandatory. It takes precedence over TokenThreshold even when
	// TokenThreshold is numerically higher. Default: 0.95
	HardCapThreshold float64

	// EnableGrowthRatePrediction triggers compaction preemptively when the
	// current usage plus the size of the most recent message would cross
	// TokenThreshold. Default: false
	EnableGrowthRatePrediction bool

	// EnableErrorFallback falls back to mechanical truncation when
	// summarization fails, instead of propagating the failure. Default: true
	EnableErrorFallback bool

	// MaxTokens is the context window ceiling for the conversation.
	// Default: 200000
	MaxTokens int

	// KeepMessageCount is the number of most-recent messages preserved
	// verbatim across compaction. Default: 10
	KeepMessageCount int

	// KeepToolResultCount is the number of most-recent tool-result messages
	// additionally preserved even when older than the keep window, so a tool
	// call is never separated from its result. Default: 2
	KeepToolResultCount int

	// SummarizerModel is the model used for summarization. Using a
	// faster/cheaper model is recommended. Default: "claude-3-5-haiku-20241022"
	SummarizerModel string

	// SummarizerMaxTokens is the response budget for summarization.
	// Default: 4096
	SummarizerMaxTokens int

	// Evaluator, when set, fully replaces the built-in decision policy.
	// It receives the budget and history and its result is returned
	// verbatim; no built-in checks run. The Enabled switch still applies.
	Evaluator Evaluator
}

// DefaultPolicy returns a Policy with all defaults populated.
func DefaultPolicy() *Policy {
	return &Policy{
		Enabled:             true,
		TokenThreshold:      DefaultTokenThreshold,
		HardCapThreshold:    DefaultHardCapThreshold,
		EnableErrorFallback: true,
		MaxTokens:           DefaultMaxTokens,
		KeepMessageCount:    DefaultKeepMessageCount,
		KeepToolResultCount: DefaultKeepToolResultCount,
		SummarizerModel:     DefaultSummarizerModel,
		SummarizerMaxTokens: DefaultSummarizerMaxTokens,
	}
}

// ApplyDefaults fills zero-valued numeric and string fields with defaults.
// Boolean fields and KeepToolResultCount (where zero is meaningful) are left
// as written.
func (p *Policy) ApplyDefaults() {
	if p.TokenThreshold == 0 {
		p.TokenThreshold = DefaultTokenThreshold
	}
	if p.HardCapThreshold == 0 {
		p.HardCapThreshold = DefaultHardCapThreshold
	}
	if p.MaxTokens == 0 {
		p.MaxTokens = DefaultMaxTokens
	}
	if p.KeepMessageCount == 0 {
		p.KeepMessageCount = DefaultKeepMessageCount
	}
	if p.SummarizerModel == "" {
		p.SummarizerModel = DefaultSummarizerModel
	}
	if p.SummarizerMaxTokens == 0 {
		p.SummarizerMaxTokens = DefaultSummarizerMaxTokens
	}
}

// Validate validates the policy and returns an error if invalid.
// Threshold ordering is an invariant: 0 < TokenThreshold <= HardCapThreshold <= 1.0.
func (p *Policy) Validate() error {
	if p.TokenThreshold <= 0 || p.TokenThreshold > 1.0 {
		return fmt.Errorf("%w: token_threshold must be in (0, 1], got %f", ErrInvalidPolicy, p.TokenThreshold)
	}

	if p.HardCapThreshold <= 0 || p.HardCapThreshold > 1.0 {
		return fmt.Errorf("%w: hard_cap_threshold must be in (0, 1], got %f", ErrInvalidPolicy, p.HardCapThreshold)
	}

	if p.TokenThreshold > p.HardCapThreshold {
		return fmt.Errorf("%w: token_threshold (%f) must not exceed hard_cap_threshold (%f)",
			ErrInvalidPolicy, p.TokenThreshold, p.HardCapThreshold)
	}

	if p.MaxTokens <= 0 {
		return fmt.Errorf("%w: max_tokens must be positive, got %d", ErrInvalidPolicy, p.MaxTokens)
	}

	if p.KeepMessageCount < 0 {
		return fmt.Errorf("%w: keep_message_count must be non-negative, got %d", ErrInvalidPolicy, p.KeepMessageCount)
	}

	if p.KeepToolResultCount < 0 {
		return fmt.Errorf("%w: keep_tool_result_count must be non-negative, got %d", ErrInvalidPolicy, p.KeepToolResultCount)
	}

	if p.SummarizerModel == "" {
		return fmt.Errorf("%w: summarizer_model is required", ErrInvalidPolicy)
	}

	if p.SummarizerMaxTokens <= 0 {
		return fmt.Errorf("%w: summarizer_max_tokens must be positive, got %d", ErrInvalidPolicy, p.SummarizerMaxTokens)
	}

	return nil
}

// Budget returns the token budget derived from the policy.
func (p *Policy) Budget() Budget {
	return Budget{
		MaxTokens:        p.MaxTokens,
		TokenThreshold:   p.TokenThreshold,
		HardCapThreshold: p.HardCapThreshold,
	}
}

// TriggerTokens returns the absolute token count that crosses TokenThreshold.
func (p *Policy) TriggerTokens() int {
	return int(float64(p.MaxTokens) * p.TokenThreshold)
}
