// Package hooks provides observation points around compaction and
// checkpointing. Hooks run synchronously in registration order; an error
// from a Before hook aborts the operation, errors from After hooks are
// returned but the operation has already happened.
package hooks

import (
	"context"
	"sync"

	"github.com/ctxpg/ctxpg/checkpoint"
	"github.com/ctxpg/ctxpg/compaction"
	"github.com/ctxpg/ctxpg/types"
)

// BeforeCompactionHook is called before context compaction runs.
type BeforeCompactionHook func(ctx context.Context, threadID string, decision compaction.Decision) error

// AfterCompactionHook is called after context compaction completes.
type AfterCompactionHook func(ctx context.Context, threadID string, result *compaction.Result) error

// AfterCheckpointHook is called after a checkpoint save is acknowledged.
type AfterCheckpointHook func(ctx context.Context, cp *checkpoint.Checkpoint) error

// AfterStepHook is called after each completed step of the run loop.
type AfterStepHook func(ctx context.Context, threadID string, step int, resp *types.Response) error

// Registry holds all registered hooks.
type Registry struct {
	mu               sync.RWMutex
	beforeCompaction []BeforeCompactionHook
	afterCompaction  []AfterCompactionHook
	afterCheckpoint  []AfterCheckpointHook
	afterStep        []AfterStepHook
}

// NewRegistry creates an empty hook registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// OnBeforeCompaction registers a hook to run before compaction.
func (r *Registry) OnBeforeCompaction(hook BeforeCompactionHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.beforeCompaction = append(r.beforeCompaction, hook)
}

// OnAfterCompaction registers a hook to run after compaction.
func (r *Registry) OnAfterCompaction(hook AfterCompactionHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.afterCompaction = append(r.afterCompaction, hook)
}

// OnAfterCheckpoint registers a hook to run after a checkpoint save.
func (r *Registry) OnAfterCheckpoint(hook AfterCheckpointHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.afterCheckpoint = append(r.afterCheckpoint, hook)
}

// OnAfterStep registers a hook to run after each step.
func (r *Registry) OnAfterStep(hook AfterStepHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.afterStep = append(r.afterStep, hook)
}

// RunBeforeCompaction runs all before-compaction hooks in order, stopping
// at the first error.
func (r *Registry) RunBeforeCompaction(ctx context.Context, threadID string, decision compaction.Decision) error {
	r.mu.RLock()
	hooks := r.beforeCompaction
	r.mu.RUnlock()

	for _, hook := range hooks {
		if err := hook(ctx, threadID, decision); err != nil {
			return err
		}
	}
	return nil
}

// RunAfterCompaction runs all after-compaction hooks in order.
func (r *Registry) RunAfterCompaction(ctx context.Context, threadID string, result *compaction.Result) error {
	r.mu.RLock()
	hooks := r.afterCompaction
	r.mu.RUnlock()

	for _, hook := range hooks {
		if err := hook(ctx, threadID, result); err != nil {
			return err
		}
	}
	return nil
}

// RunAfterCheckpoint runs all after-checkpoint hooks in order.
func (r *Registry) RunAfterCheckpoint(ctx context.Context, cp *checkpoint.Checkpoint) error {
	r.mu.RLock()
	hooks := r.afterCheckpoint
	r.mu.RUnlock()

	for _, hook := range hooks {
		if err := hook(ctx, cp); err != nil {
			return err
		}
	}
	return nil
}

// RunAfterStep runs all after-step hooks in order.
func (r *Registry) RunAfterStep(ctx context.Context, threadID string, step int, resp *types.Response) error {
	r.mu.RLock()
	hooks := r.afterStep
	r.mu.RUnlock()

	for _, hook := range hooks {
		if err := hook(ctx, threadID, step, resp); err != nil {
			return err
		}
	}
	return nil
}
