// Package checkpoint provides durable, thread-scoped snapshots of a
// conversation so an interrupted run can resume without replaying the whole
// transcript.
//
// A checkpoint is addressed by (threadID, step). Steps are monotonically
// increasing per thread; checkpoints are never mutated once stored and are
// superseded, not deleted, by later steps. Every Save is idempotent to
// retry: saving the same (threadID, step) twice never creates a duplicate
// or inconsistent state, and an out-of-order save never moves the latest
// pointer backward.
//
// Retention defaults to keep-everything. Prune is an explicit operator
// hook; no store evicts on its own.
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ctxpg/ctxpg/types"
)

// Sentinel errors for checkpoint operations.
var (
	// ErrNotFound indicates no checkpoint exists for the requested key.
	// A normal, non-fatal result.
	ErrNotFound = errors.New("checkpoint not found")

	// ErrInvalidCheckpoint indicates a checkpoint missing required fields.
	ErrInvalidCheckpoint = errors.New("invalid checkpoint")
)

// Checkpoint is a point-in-time snapshot of a conversation thread.
type Checkpoint struct {
	ID       uuid.UUID `json:"id"`
	ThreadID string    `json:"thread_id"`

	// Step is the orchestrator's step counter, monotonically increasing
	// per thread.
	Step int `json:"step"`

	// History is the full ordered message sequence at snapshot time.
	History []*types.Message `json:"history"`

	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// New creates a checkpoint for the given thread, step, and history.
func New(threadID string, step int, history []*types.Message) *Checkpoint {
	return &Checkpoint{
		ID:        uuid.New(),
		ThreadID:  threadID,
		Step:      step,
		History:   history,
		CreatedAt: time.Now(),
	}
}

// Validate checks the checkpoint's required fields.
func (c *Checkpoint) Validate() error {
	if c.ThreadID == "" {
		return fmt.Errorf("%w: thread_id is required", ErrInvalidCheckpoint)
	}
	if c.Step < 0 {
		return fmt.Errorf("%w: step must be non-negative, got %d", ErrInvalidCheckpoint, c.Step)
	}
	return nil
}

// Store is the durable keyed store of checkpoints.
//
// Implementations must support concurrent Save/Load for different thread
// identifiers without interference and must serialize writes for the same
// thread identifier. Write failures surface as errors; they are never
// silently dropped.
type Store interface {
	// Save durably records the checkpoint and returns once the write is
	// acknowledged. Saving an already-recorded (threadID, step) is a
	// success no-op. The latest pointer for the thread moves to this step
	// if and only if the step exceeds the currently recorded latest.
	Save(ctx context.Context, cp *Checkpoint) error

	// Load returns the checkpoint for (threadID, step), or ErrNotFound.
	Load(ctx context.Context, threadID string, step int) (*Checkpoint, error)

	// LoadLatest returns the checkpoint with the highest step for the
	// thread, or ErrNotFound.
	LoadLatest(ctx context.Context, threadID string) (*Checkpoint, error)

	// List returns all checkpoints for the thread ordered by ascending step.
	List(ctx context.Context, threadID string) ([]*Checkpoint, error)

	// Prune removes all but the keepLast highest-step checkpoints of the
	// thread. Explicit operator hook; stores never prune on their own.
	Prune(ctx context.Context, threadID string, keepLast int) error
}
