package checkpoint

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory Store for tests and single-process runs.
// Safe for concurrent use; threads are fully independent.
type MemoryStore struct {
	mu      sync.RWMutex
	threads map[string]map[int]*Checkpoint
	latest  map[string]int
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		threads: make(map[string]map[int]*Checkpoint),
		latest:  make(map[string]int),
	}
}

// Save records the checkpoint. A duplicate (threadID, step) is a success
// no-op; the first write wins and the stored snapshot stays immutable.
func (s *MemoryStore) Save(ctx context.Context, cp *Checkpoint) error {
	if err := cp.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	steps, ok := s.threads[cp.ThreadID]
	if !ok {
		steps = make(map[int]*Checkpoint)
		s.threads[cp.ThreadID] = steps
	}

	if _, exists := steps[cp.Step]; exists {
		// Idempotent retry.
		return nil
	}

	steps[cp.Step] = snapshot(cp)

	if latest, ok := s.latest[cp.ThreadID]; !ok || cp.Step > latest {
		s.latest[cp.ThreadID] = cp.Step
	}

	return nil
}

// Load returns the checkpoint for (threadID, step).
func (s *MemoryStore) Load(ctx context.Context, threadID string, step int) (*Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp, ok := s.threads[threadID][step]
	if !ok {
		return nil, ErrNotFound
	}
	return snapshot(cp), nil
}

// LoadLatest returns the checkpoint with the highest step for the thread.
func (s *MemoryStore) LoadLatest(ctx context.Context, threadID string) (*Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	latest, ok := s.latest[threadID]
	if !ok {
		return nil, ErrNotFound
	}
	return snapshot(s.threads[threadID][latest]), nil
}

// List returns all checkpoints for the thread ordered by ascending step.
func (s *MemoryStore) List(ctx context.Context, threadID string) ([]*Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	steps, ok := s.threads[threadID]
	if !ok {
		return nil, nil
	}

	result := make([]*Checkpoint, 0, len(steps))
	for _, cp := range steps {
		result = append(result, snapshot(cp))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Step < result[j].Step })

	return result, nil
}

// Prune removes all but the keepLast highest-step checkpoints of the thread.
func (s *MemoryStore) Prune(ctx context.Context, threadID string, keepLast int) error {
	if keepLast < 0 {
		keepLast = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	steps, ok := s.threads[threadID]
	if !ok {
		return nil
	}

	order := make([]int, 0, len(steps))
	for step := range steps {
		order = append(order, step)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(order)))

	for i, step := range order {
		if i >= keepLast {
			delete(steps, step)
		}
	}

	// Keep the latest pointer consistent with what survived the prune.
	if len(steps) == 0 {
		delete(s.threads, threadID)
		delete(s.latest, threadID)
	} else {
		s.latest[threadID] = order[0]
	}

	return nil
}

// snapshot copies a checkpoint so callers and the store cannot mutate each
// other's view. Messages themselves are immutable by convention; the slice
// and metadata map are defensively copied.
func snapshot(cp *Checkpoint) *Checkpoint {
	out := *cp
	out.History = append(out.History[:0:0], cp.History...)
	if cp.Metadata != nil {
		out.Metadata = make(map[string]any, len(cp.Metadata))
		for k, v := range cp.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}
