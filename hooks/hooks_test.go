package hooks

import (
	"bytes"
	"context"
	"errors"
	"log"
	"strings"
	"testing"

	"github.com/ctxpg/ctxpg/checkpoint"
	"github.com/ctxpg/ctxpg/compaction"
	"github.com/ctxpg/ctxpg/types"
)

func TestRegistryRunsHooksInOrder(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	var order []string
	r.OnBeforeCompaction(func(ctx context.Context, threadID string, decision compaction.Decision) error {
		order = append(order, "first")
		return nil
	})
	r.OnBeforeCompaction(func(ctx context.Context, threadID string, decision compaction.Decision) error {
		order = append(order, "second")
		return nil
	})

	decision := compaction.Decision{Trigger: true, Reason: compaction.ReasonTokenThreshold}
	if err := r.RunBeforeCompaction(ctx, "thread-1", decision); err != nil {
		t.Fatalf("RunBeforeCompaction failed: %v", err)
	}
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("hooks ran out of order: %v", order)
	}
}

func TestRegistryStopsAtFirstError(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	hookErr := errors.New("abort")
	var reached bool
	r.OnBeforeCompaction(func(ctx context.Context, threadID string, decision compaction.Decision) error {
		return hookErr
	})
	r.OnBeforeCompaction(func(ctx context.Context, threadID string, decision compaction.Decision) error {
		reached = true
		return nil
	})

	err := r.RunBeforeCompaction(ctx, "thread-1", compaction.Decision{})
	if !errors.Is(err, hookErr) {
		t.Fatalf("RunBeforeCompaction = %v, want hook error", err)
	}
	if reached {
		t.Error("hooks after a failing hook must not run")
	}
}

func TestRegistryEmptyIsNoOp(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	if err := r.RunBeforeCompaction(ctx, "thread-1", compaction.Decision{}); err != nil {
		t.Errorf("RunBeforeCompaction = %v", err)
	}
	if err := r.RunAfterCompaction(ctx, "thread-1", &compaction.Result{}); err != nil {
		t.Errorf("RunAfterCompaction = %v", err)
	}
	if err := r.RunAfterCheckpoint(ctx, checkpoint.New("thread-1", 0, nil)); err != nil {
		t.Errorf("RunAfterCheckpoint = %v", err)
	}
	if err := r.RunAfterStep(ctx, "thread-1", 0, &types.Response{}); err != nil {
		t.Errorf("RunAfterStep = %v", err)
	}
}

func TestLoggingHooks(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New(&buf, "", 0)

	r := NewRegistry()
	NewLoggingHooks(logger).Register(r)

	ctx := context.Background()
	decision := compaction.Decision{Trigger: true, Reason: compaction.ReasonHardCap}
	if err := r.RunBeforeCompaction(ctx, "thread-1", decision); err != nil {
		t.Fatalf("RunBeforeCompaction failed: %v", err)
	}

	result := &compaction.Result{
		Reason:         compaction.ReasonHardCap,
		MessagesBefore: 10,
		MessagesAfter:  4,
		TokensBefore:   1000,
		TokensAfter:    400,
	}
	if err := r.RunAfterCompaction(ctx, "thread-1", result); err != nil {
		t.Fatalf("RunAfterCompaction failed: %v", err)
	}

	cp := checkpoint.New("thread-1", 3, []*types.Message{types.NewTextMessage(types.RoleUser, "hi")})
	if err := r.RunAfterCheckpoint(ctx, cp); err != nil {
		t.Fatalf("RunAfterCheckpoint failed: %v", err)
	}

	out := buf.String()
	for _, want := range []string{
		"Starting compaction for thread thread-1 (reason: hard_cap)",
		"10 -> 4 messages",
		"60.0% reduction",
		"Checkpoint saved: thread thread-1 step 3 (1 messages)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
}

func TestLoggingHooksNoOpCompaction(t *testing.T) {
	var buf bytes.Buffer
	h := NewLoggingHooks(log.New(&buf, "", 0))

	result := &compaction.Result{MessagesBefore: 5, MessagesAfter: 5}
	if err := h.AfterCompaction(context.Background(), "thread-1", result); err != nil {
		t.Fatalf("AfterCompaction failed: %v", err)
	}
	if !strings.Contains(buf.String(), "no-op") {
		t.Errorf("no-op compaction not logged as such:\n%s", buf.String())
	}
}

func TestMetricsHooksNilCallback(t *testing.T) {
	r := NewRegistry()
	(&MetricsHooks{}).Register(r)

	ctx := context.Background()
	result := &compaction.Result{Reason: compaction.ReasonHardCap, MessagesBefore: 4, MessagesAfter: 2}
	if err := r.RunAfterCompaction(ctx, "thread-1", result); err != nil {
		t.Errorf("RunAfterCompaction = %v", err)
	}
	if err := r.RunAfterStep(ctx, "thread-1", 0, &types.Response{}); err != nil {
		t.Errorf("RunAfterStep = %v", err)
	}
}

func TestMetricsHooks(t *testing.T) {
	type metric struct {
		name  string
		value float64
		tags  map[string]string
	}
	var recorded []metric

	r := NewRegistry()
	NewMetricsHooks(func(name string, value float64, tags map[string]string) {
		recorded = append(recorded, metric{name, value, tags})
	}).Register(r)

	ctx := context.Background()
	result := &compaction.Result{
		Reason:         compaction.ReasonTokenThreshold,
		MessagesBefore: 8,
		MessagesAfter:  3,
		TokensBefore:   900,
		TokensAfter:    300,
		Fallback:       true,
	}
	if err := r.RunAfterCompaction(ctx, "thread-1", result); err != nil {
		t.Fatalf("RunAfterCompaction failed: %v", err)
	}
	if err := r.RunAfterStep(ctx, "thread-1", 0, &types.Response{Usage: types.Usage{InputTokens: 40, OutputTokens: 10}}); err != nil {
		t.Fatalf("RunAfterStep failed: %v", err)
	}

	want := map[string]float64{
		"ctxpg.compaction.tokens_before":    900,
		"ctxpg.compaction.tokens_after":     300,
		"ctxpg.compaction.messages_removed": 5,
		"ctxpg.compaction.fallback":         1,
		"ctxpg.step.input_tokens":           40,
		"ctxpg.step.output_tokens":          10,
	}
	got := make(map[string]float64, len(recorded))
	for _, m := range recorded {
		got[m.name] = m.value
	}
	for name, value := range want {
		if got[name] != value {
			t.Errorf("%s = %f, want %f", name, got[name], value)
		}
	}

	for _, m := range recorded {
		if strings.HasPrefix(m.name, "ctxpg.compaction.") && m.tags["reason"] != "token_threshold" {
			t.Errorf("%s missing reason tag: %v", m.name, m.tags)
		}
	}
}
