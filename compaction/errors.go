package compaction

import (
	"errors"
	"fmt"
)

// Sentinel errors for compaction operations.
var (
	// ErrInvalidPolicy indicates invalid compaction policy configuration,
	// such as out-of-range or misordered thresholds. Policy validation
	// failures are fatal: the manager refuses construction.
	ErrInvalidPolicy = errors.New("invalid compaction policy")

	// ErrNoMessagesToCompact indicates there are no messages eligible for compaction.
	ErrNoMessagesToCompact = errors.New("no messages to compact")

	// ErrCompactionInProgress indicates compaction is already running for this thread.
	ErrCompactionInProgress = errors.New("compaction already in progress")

	// ErrSummarizationFailed indicates the model invocation failed during compaction.
	ErrSummarizationFailed = errors.New("summarization failed")

	// ErrTokenCountingFailed indicates the token counting API call failed.
	ErrTokenCountingFailed = errors.New("token counting failed")
)

// Error provides structured error context for compaction operations.
type Error struct {
	// Op is the operation that failed (e.g., "Compact", "Summarize").
	Op string

	// ThreadID is the conversation thread if applicable.
	ThreadID string

	// Err is the underlying error.
	Err error

	// Context holds additional key-value pairs for debugging.
	Context map[string]any
}

// Error returns a formatted error message.
func (e *Error) Error() string {
	msg := fmt.Sprintf("compaction %s failed", e.Op)
	if e.ThreadID != "" {
		msg += fmt.Sprintf(" for thread %s", e.ThreadID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new Error with the given operation and underlying error.
func NewError(op string, err error) *Error {
	return &Error{
		Op:      op,
		Err:     err,
		Context: make(map[string]any),
	}
}

// WithThread sets the thread ID on the error and returns it for chaining.
func (e *Error) WithThread(threadID string) *Error {
	e.ThreadID = threadID
	return e
}

// WithContext adds a key-value pair to the error context and returns it for chaining.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}
