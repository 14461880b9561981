// Package compaction keeps a growing conversation transcript within a fixed
// token budget.
//
// The package combines three pieces:
//
//   - a pure, deterministic token estimator used before every step
//   - a decision policy (token threshold, hard cap, optional growth-rate
//     prediction, pluggable evaluator override) that says when compaction
//     must run
//   - a compaction executor that collapses older messages into a single
//     model-generated summary while keeping the most recent messages, and
//     the most recent tool results, verbatim
//
// Manager ties them together and serializes compaction per conversation
// thread. Compaction is lossy but all-or-nothing: on failure, and on
// cancellation, the caller's history is left valid and unmodified; with the
// error fallback enabled a failed summarization degrades to mechanical
// truncation with a placeholder marker rather than blocking the
// conversation.
package compaction
