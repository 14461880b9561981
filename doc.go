// Package ctxpg keeps long-running conversational agents inside a fixed
// token budget without losing recoverability across process restarts.
//
// The module has two load-bearing parts:
//
//   - compaction: a multi-signal decision policy (token threshold, hard
//     cap, growth-rate prediction, pluggable override) plus a lossy
//     summarization step that preserves the most recent messages and keeps
//     tool calls paired with their results.
//   - checkpoint: durable, thread-scoped snapshots keyed by
//     (threadID, step), idempotent to retry and monotonic in their
//     latest pointer, so an interrupted run resumes without replaying the
//     conversation or re-billing token usage.
//
// The root package ties them together in Runner, a minimal step-loop
// orchestrator: evaluate the policy before each model invocation, compact
// when triggered, invoke the model, append the response, and checkpoint at
// the configured cadence (every step, or only when the caller flushes).
//
// Model invocation is consumed as a capability (types.Invoker); an
// Anthropic-backed implementation ships in the compaction package. Tool
// semantics and network transport are out of scope.
package ctxpg
