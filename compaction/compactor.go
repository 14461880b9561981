package compaction

import (
	"context"
	"fmt"
	"time"

	"github.com/ctxpg/ctxpg/types"
)

// Result describes a completed compaction.
type Result struct {
	// Reason is the trigger that led to this compaction.
	Reason Reason

	// MessagesBefore and MessagesAfter are the history lengths around the
	// compaction. MessagesAfter == MessagesBefore for a no-op.
	MessagesBefore int
	MessagesAfter  int

	// SummaryMessage is the synthetic message that replaced the summarized
	// span. Nil for a no-op compaction.
	SummaryMessage *types.Message

	// Messages is the surviving message sequence, in order.
	Messages []*types.Message

	// TokensBefore and TokensAfter are estimated token counts.
	TokensBefore int
	TokensAfter  int

	// Fallback is true when summarization failed and mechanical truncation
	// was used instead.
	Fallback bool

	Duration time.Duration
}

// NoOp returns true when the compaction left the history unchanged.
func (r *Result) NoOp() bool {
	return r.MessagesAfter == r.MessagesBefore
}

// Compactor executes compaction: it partitions the history around the keep
// window, summarizes the older span, and assembles the shortened sequence.
type Compactor struct {
	summarizer          *Summarizer
	keepMessageCount    int
	keepToolResultCount int
	errorFallback       bool
}

// NewCompactor creates a Compactor.
func NewCompactor(summarizer *Summarizer, keepMessageCount, keepToolResultCount int, errorFallback bool) *Compactor {
	return &Compactor{
		summarizer:          summarizer,
		keepMessageCount:    keepMessageCount,
		keepToolResultCount: keepToolResultCount,
		errorFallback:       errorFallback,
	}
}

// Compact performs compaction on the given history and returns the result.
//
// Compaction is all-or-nothing: the input slice is never modified, and on
// any error (including cancellation mid-summarization without fallback) the
// caller's history remains valid and unchanged.
func (c *Compactor) Compact(ctx context.Context, history []*types.Message, reason Reason) (*Result, error) {
	start := time.Now()
	n := len(history)
	tokensBefore := EstimateHistory(history)

	head, tail := c.partition(history)

	if len(head) == 0 {
		// Nothing outside the keep window: a valid no-op, not an error.
		return &Result{
			Reason:         reason,
			MessagesBefore: n,
			MessagesAfter:  n,
			Messages:       history,
			TokensBefore:   tokensBefore,
			TokensAfter:    tokensBefore,
			Duration:       time.Since(start),
		}, nil
	}

	var summary *types.Message
	fallback := false

	text, err := c.summarizer.Summarize(ctx, head)
	switch {
	case err == nil:
		summary = types.NewSummaryMessage(text)
	case ctx.Err() != nil:
		// Cancelled mid-compaction: leave the original history intact
		// rather than degrading to a truncation nobody asked for.
		return nil, fmt.Errorf("compaction cancelled: %w", ctx.Err())
	case c.errorFallback:
		summary = types.NewSummaryMessage(truncationMarker(len(head)))
		fallback = true
	default:
		return nil, err
	}

	messages := make([]*types.Message, 0, len(tail)+1)
	messages = append(messages, summary)
	messages = append(messages, tail...)

	return &Result{
		Reason:         reason,
		MessagesBefore: n,
		MessagesAfter:  len(messages),
		SummaryMessage: summary,
		Messages:       messages,
		TokensBefore:   tokensBefore,
		TokensAfter:    EstimateHistory(messages),
		Fallback:       fallback,
		Duration:       time.Since(start),
	}, nil
}

// partition splits the history into the span to summarize and the verbatim
// tail. Tool-result messages among the most recent keepToolResultCount tool
// results are re-admitted from the head into the tail, preserving original
// relative order, so a tool call is never separated from its result across
// the summarization boundary.
func (c *Compactor) partition(history []*types.Message) (head, tail []*types.Message) {
	n := len(history)
	k := c.keepMessageCount
	if n <= k {
		return nil, history
	}

	split := n - k

	// Indexes in [0, split) holding tool results to pull into the tail,
	// newest first until the quota is met.
	readmit := make(map[int]bool)
	remaining := c.keepToolResultCount
	for i := split - 1; i >= 0 && remaining > 0; i-- {
		if history[i].HasToolResult() {
			readmit[i] = true
			remaining--
		}
	}

	head = make([]*types.Message, 0, split)
	tail = make([]*types.Message, 0, k+len(readmit))
	for i := 0; i < split; i++ {
		if readmit[i] {
			tail = append(tail, history[i])
		} else {
			head = append(head, history[i])
		}
	}
	tail = append(tail, history[split:]...)

	return head, tail
}

// truncationMarker is the placeholder summary used by the mechanical
// fallback when summarization fails.
func truncationMarker(dropped int) string {
	return fmt.Sprintf("[Conversation context truncated: %d earlier messages were removed because summarization was unavailable.]", dropped)
}
