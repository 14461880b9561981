package hooks

import (
	"context"
	"log"

	"github.com/ctxpg/ctxpg/checkpoint"
	"github.com/ctxpg/ctxpg/compaction"
	"github.com/ctxpg/ctxpg/types"
)

// LoggingHooks provides built-in logging hooks for observability.
type LoggingHooks struct {
	logger *log.Logger
}

// NewLoggingHooks creates logging hooks with the provided logger.
func NewLoggingHooks(logger *log.Logger) *LoggingHooks {
	return &LoggingHooks{logger: logger}
}

// DefaultLoggingHooks creates logging hooks with the default logger.
func DefaultLoggingHooks() *LoggingHooks {
	return &LoggingHooks{logger: log.Default()}
}

// Register attaches all logging hooks to the registry.
func (h *LoggingHooks) Register(r *Registry) {
	r.OnBeforeCompaction(h.BeforeCompaction)
	r.OnAfterCompaction(h.AfterCompaction)
	r.OnAfterCheckpoint(h.AfterCheckpoint)
	r.OnAfterStep(h.AfterStep)
}

// BeforeCompaction logs the compaction trigger.
func (h *LoggingHooks) BeforeCompaction(ctx context.Context, threadID string, decision compaction.Decision) error {
	h.logger.Printf("[ctxpg] Starting compaction for thread %s (reason: %s)", threadID, decision.Reason)
	return nil
}

// AfterCompaction logs the compaction outcome.
func (h *LoggingHooks) AfterCompaction(ctx context.Context, threadID string, result *compaction.Result) error {
	if result.NoOp() {
		h.logger.Printf("[ctxpg] Compaction for thread %s was a no-op (%d messages)", threadID, result.MessagesBefore)
		return nil
	}

	reduction := float64(0)
	if result.TokensBefore > 0 {
		reduction = float64(result.TokensBefore-result.TokensAfter) / float64(result.TokensBefore) * 100
	}

	h.logger.Printf("[ctxpg] Compaction complete for thread %s: %d -> %d messages, ~%d -> ~%d tokens (%.1f%% reduction, fallback=%t)",
		threadID, result.MessagesBefore, result.MessagesAfter, result.TokensBefore, result.TokensAfter, reduction, result.Fallback)
	return nil
}

// AfterCheckpoint logs the acknowledged save.
func (h *LoggingHooks) AfterCheckpoint(ctx context.Context, cp *checkpoint.Checkpoint) error {
	h.logger.Printf("[ctxpg] Checkpoint saved: thread %s step %d (%d messages)", cp.ThreadID, cp.Step, len(cp.History))
	return nil
}

// AfterStep logs step completion.
func (h *LoggingHooks) AfterStep(ctx context.Context, threadID string, step int, resp *types.Response) error {
	h.logger.Printf("[ctxpg] Step %d complete for thread %s: stop_reason=%s, tokens=%d",
		step, threadID, resp.StopReason, resp.Usage.Total())
	return nil
}

// MetricsHooks forwards compaction and checkpoint metrics to a collector
// callback. A nil OnMetric disables emission.
type MetricsHooks struct {
	OnMetric func(name string, value float64, tags map[string]string)
}

// NewMetricsHooks creates metrics collection hooks.
func NewMetricsHooks(onMetric func(string, float64, map[string]string)) *MetricsHooks {
	return &MetricsHooks{OnMetric: onMetric}
}

// Register attaches all metrics hooks to the registry.
func (h *MetricsHooks) Register(r *Registry) {
	r.OnAfterCompaction(h.AfterCompaction)
	r.OnAfterStep(h.AfterStep)
}

// AfterCompaction records compaction metrics.
func (h *MetricsHooks) AfterCompaction(ctx context.Context, threadID string, result *compaction.Result) error {
	if h.OnMetric == nil {
		return nil
	}

	tags := map[string]string{"reason": string(result.Reason)}

	h.OnMetric("ctxpg.compaction.tokens_before", float64(result.TokensBefore), tags)
	h.OnMetric("ctxpg.compaction.tokens_after", float64(result.TokensAfter), tags)
	h.OnMetric("ctxpg.compaction.messages_removed", float64(result.MessagesBefore-result.MessagesAfter), tags)
	if result.Fallback {
		h.OnMetric("ctxpg.compaction.fallback", 1, tags)
	}
	return nil
}

// AfterStep records per-step token usage.
func (h *MetricsHooks) AfterStep(ctx context.Context, threadID string, step int, resp *types.Response) error {
	if h.OnMetric == nil {
		return nil
	}

	h.OnMetric("ctxpg.step.input_tokens", float64(resp.Usage.InputTokens), nil)
	h.OnMetric("ctxpg.step.output_tokens", float64(resp.Usage.OutputTokens), nil)
	return nil
}
