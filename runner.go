package ctxpg

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ctxpg/ctxpg/checkpoint"
	"github.com/ctxpg/ctxpg/compaction"
	"github.com/ctxpg/ctxpg/hooks"
	"github.com/ctxpg/ctxpg/types"
)

// Thread is a single persistent conversation, identified by a stable ID
// across restarts. A Thread is owned by one logical flow at a time;
// concurrent threads share nothing but the checkpoint store.
type Thread struct {
	ID string

	// History is the ordered message sequence. It is replaced, never
	// mutated in place, by compaction.
	History []*types.Message

	// Step counts completed orchestrator steps. It is also the step index
	// of the next checkpoint.
	Step int

	// Usage accumulates token usage across steps.
	Usage types.Usage
}

// Append adds messages to the thread history.
func (t *Thread) Append(messages ...*types.Message) {
	for _, msg := range messages {
		msg.ThreadID = t.ID
	}
	t.History = append(t.History, messages...)
}

// RunnerConfig holds the configuration for a Runner.
type RunnerConfig struct {
	// Invoker is the model-invocation capability (required).
	Invoker types.Invoker

	// Manager is the compaction manager (required).
	Manager *compaction.Manager

	// Checkpoints is the checkpoint store. Nil disables checkpointing.
	Checkpoints checkpoint.Store

	// Hooks is the observation registry. Nil means no hooks.
	Hooks *hooks.Registry

	// SystemPrompt is sent as the instruction on every model invocation.
	SystemPrompt string

	// CheckpointEachStep selects the checkpointing cadence: a checkpoint
	// after every step when true, or only on explicit Checkpoint calls
	// (end-of-stream cadence) when false.
	CheckpointEachStep bool
}

// Validate validates the configuration.
func (c *RunnerConfig) Validate() error {
	if c.Invoker == nil {
		return fmt.Errorf("%w: Invoker is required", ErrInvalidConfig)
	}
	if c.Manager == nil {
		return fmt.Errorf("%w: Manager is required", ErrInvalidConfig)
	}
	return nil
}

// Runner drives the step loop for conversation threads: policy evaluation
// and compaction before each model invocation, checkpointing after.
type Runner struct {
	invoker            types.Invoker
	manager            *compaction.Manager
	checkpoints        checkpoint.Store
	hooks              *hooks.Registry
	systemPrompt       string
	checkpointEachStep bool
}

// NewRunner creates a Runner from the given configuration.
func NewRunner(cfg RunnerConfig) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	h := cfg.Hooks
	if h == nil {
		h = hooks.NewRegistry()
	}

	return &Runner{
		invoker:            cfg.Invoker,
		manager:            cfg.Manager,
		checkpoints:        cfg.Checkpoints,
		hooks:              h,
		systemPrompt:       cfg.SystemPrompt,
		checkpointEachStep: cfg.CheckpointEachStep,
	}, nil
}

// NewThread creates a fresh thread. An empty id gets a generated one.
func (r *Runner) NewThread(id string) *Thread {
	if id == "" {
		id = uuid.New().String()
	}
	return &Thread{ID: id}
}

// Resume rebuilds a thread from its latest checkpoint.
// Returns checkpoint.ErrNotFound when the thread has never been saved.
func (r *Runner) Resume(ctx context.Context, threadID string) (*Thread, error) {
	if r.checkpoints == nil {
		return nil, fmt.Errorf("%w: no checkpoint store configured", ErrInvalidConfig)
	}

	cp, err := r.checkpoints.LoadLatest(ctx, threadID)
	if err != nil {
		return nil, err
	}

	return &Thread{
		ID:      cp.ThreadID,
		History: cp.History,
		Step:    cp.Step + 1,
	}, nil
}

// Step executes one iteration of the loop: evaluate the compaction policy,
// compact if triggered, invoke the model with the (possibly shortened)
// history, append the response, and checkpoint per the configured cadence.
//
// Compaction strictly precedes the model invocation: the shortened history
// is fully assembled (including the fallback path) before it is handed to
// the invoker. A compaction failure aborts the step with the thread's
// history unchanged.
func (r *Runner) Step(ctx context.Context, thread *Thread, prompt string) (*types.Response, error) {
	thread.Append(types.NewTextMessage(types.RoleUser, prompt))

	if decision := r.manager.ShouldCompact(thread.History); decision.Trigger {
		if err := r.compactThread(ctx, thread, decision); err != nil {
			return nil, err
		}
	}

	resp, err := r.invoker.Invoke(ctx, thread.History, r.systemPrompt)
	if err != nil {
		return nil, fmt.Errorf("model invocation failed for thread %s: %w", thread.ID, err)
	}

	reply := types.NewTextMessage(types.RoleAssistant, resp.Text)
	reply.Usage = resp.Usage
	thread.Append(reply)
	thread.Usage = thread.Usage.Add(resp.Usage)

	step := thread.Step
	thread.Step++

	if err := r.hooks.RunAfterStep(ctx, thread.ID, step, resp); err != nil {
		return resp, err
	}

	if r.checkpointEachStep {
		if err := r.saveCheckpoint(ctx, thread.ID, step, thread.History); err != nil {
			return resp, err
		}
	}

	return resp, nil
}

// Checkpoint saves a snapshot of the thread at its current step. Used for
// the end-of-stream cadence, and available for explicit saves at any time.
func (r *Runner) Checkpoint(ctx context.Context, thread *Thread) error {
	if thread.Step == 0 {
		// Nothing completed yet; a snapshot would be empty.
		return nil
	}
	return r.saveCheckpoint(ctx, thread.ID, thread.Step-1, thread.History)
}

func (r *Runner) compactThread(ctx context.Context, thread *Thread, decision compaction.Decision) error {
	if err := r.hooks.RunBeforeCompaction(ctx, thread.ID, decision); err != nil {
		return err
	}

	result, err := r.manager.Compact(ctx, thread.ID, thread.History, decision.Reason)
	if err != nil {
		return err
	}

	thread.History = result.Messages

	return r.hooks.RunAfterCompaction(ctx, thread.ID, result)
}

func (r *Runner) saveCheckpoint(ctx context.Context, threadID string, step int, history []*types.Message) error {
	if r.checkpoints == nil {
		return nil
	}

	cp := checkpoint.New(threadID, step, history)
	if err := r.checkpoints.Save(ctx, cp); err != nil {
		return fmt.Errorf("%w: thread %s step %d: %v", ErrCheckpointFailed, threadID, step, err)
	}

	return r.hooks.RunAfterCheckpoint(ctx, cp)
}
