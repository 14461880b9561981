package ctxpg

import "errors"

// Sentinel errors for runner configuration and operation.
var (
	// ErrInvalidConfig indicates invalid runner configuration.
	ErrInvalidConfig = errors.New("invalid runner configuration")

	// ErrCheckpointFailed indicates a checkpoint write failed. The write is
	// surfaced to the caller so the orchestrator can decide whether to
	// retry; it is never silently dropped.
	ErrCheckpointFailed = errors.New("checkpoint write failed")
)
