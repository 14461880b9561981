package compaction

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ctxpg/ctxpg/types"
)

// fakeInvoker is a test stand-in for the model-invocation capability.
type fakeInvoker struct {
	mu         sync.Mutex
	calls      int
	inFlight   int
	maxFlight  int
	delay      time.Duration
	failWith   error
	summary    string
	lastPrompt string
}

func (f *fakeInvoker) Invoke(ctx context.Context, messages []*types.Message, instruction string) (*types.Response, error) {
	f.mu.Lock()
	f.calls++
	f.inFlight++
	if f.inFlight > f.maxFlight {
		f.maxFlight = f.inFlight
	}
	if len(messages) > 0 {
		f.lastPrompt = messages[0].Text()
	}
	delay := f.delay
	failWith := f.failWith
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			f.done()
			return nil, ctx.Err()
		}
	}
	f.done()

	if failWith != nil {
		return nil, failWith
	}

	text := f.summary
	if text == "" {
		text = "summary of earlier conversation"
	}
	return &types.Response{Text: text, Usage: types.Usage{InputTokens: 100, OutputTokens: 20}}, nil
}

func (f *fakeInvoker) done() {
	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()
}

func conversation(n int) []*types.Message {
	history := make([]*types.Message, n)
	for i := range history {
		role := types.RoleUser
		if i%2 == 1 {
			role = types.RoleAssistant
		}
		history[i] = types.NewTextMessage(role, fmt.Sprintf("message number %d with some content", i))
	}
	return history
}

func newTestCompactor(invoker types.Invoker, keep, keepToolResults int, fallback bool) *Compactor {
	return NewCompactor(NewSummarizer(invoker), keep, keepToolResults, fallback)
}

func TestCompactKeepsTailVerbatim(t *testing.T) {
	invoker := &fakeInvoker{}
	c := newTestCompactor(invoker, 2, 0, true)

	history := conversation(5)
	result, err := c.Compact(context.Background(), history, ReasonTokenThreshold)
	if err != nil {
		t.Fatalf("Compact failed: %v", err)
	}

	if result.MessagesBefore != 5 {
		t.Errorf("MessagesBefore = %d, want 5", result.MessagesBefore)
	}
	if result.MessagesAfter >= 5 {
		t.Errorf("MessagesAfter = %d, want < 5", result.MessagesAfter)
	}
	if result.MessagesAfter != 3 { // summary + 2 kept
		t.Errorf("MessagesAfter = %d, want 3", result.MessagesAfter)
	}

	// The last 2 original messages survive unchanged at the tail.
	tail := result.Messages[len(result.Messages)-2:]
	if tail[0] != history[3] || tail[1] != history[4] {
		t.Error("keep window messages were not preserved verbatim at the tail")
	}

	if result.SummaryMessage == nil || !result.SummaryMessage.IsSummary {
		t.Error("expected a summary message flagged IsSummary")
	}
	if result.Messages[0] != result.SummaryMessage {
		t.Error("summary message must lead the surviving sequence")
	}
	if result.Reason != ReasonTokenThreshold {
		t.Errorf("Reason = %s, want %s", result.Reason, ReasonTokenThreshold)
	}
}

func TestCompactNoOpWithinKeepWindow(t *testing.T) {
	invoker := &fakeInvoker{}
	c := newTestCompactor(invoker, 10, 0, true)

	history := conversation(5)
	result, err := c.Compact(context.Background(), history, ReasonHardCap)
	if err != nil {
		t.Fatalf("Compact failed: %v", err)
	}

	if !result.NoOp() {
		t.Errorf("expected no-op, got %d -> %d messages", result.MessagesBefore, result.MessagesAfter)
	}
	if invoker.calls != 0 {
		t.Errorf("no-op compaction must not invoke the model, got %d calls", invoker.calls)
	}
	if result.SummaryMessage != nil {
		t.Error("no-op compaction must not produce a summary message")
	}
}

func TestCompactReadmitsRecentToolResults(t *testing.T) {
	history := conversation(8)
	// Put tool results at positions 1 and 3, both outside a keep window of 2.
	for _, i := range []int{1, 3} {
		history[i] = &types.Message{
			Role: types.RoleUser,
			Content: []types.ContentBlock{
				{Type: types.ContentTypeToolResult, ToolResultForUseID: fmt.Sprintf("tool_%d", i), ToolContent: "ok"},
			},
		}
	}

	invoker := &fakeInvoker{}
	c := newTestCompactor(invoker, 2, 1, true)

	result, err := c.Compact(context.Background(), history, ReasonTokenThreshold)
	if err != nil {
		t.Fatalf("Compact failed: %v", err)
	}

	// summary + re-admitted tool result (index 3) + 2 tail messages
	if result.MessagesAfter != 4 {
		t.Fatalf("MessagesAfter = %d, want 4", result.MessagesAfter)
	}
	if result.Messages[1] != history[3] {
		t.Error("most recent tool result was not re-admitted into the tail")
	}
	if result.Messages[2] != history[6] || result.Messages[3] != history[7] {
		t.Error("re-admission must preserve original relative order")
	}

	// The older tool result (index 1) exceeded the quota and was summarized.
	for _, msg := range result.Messages[1:] {
		if msg == history[1] {
			t.Error("tool result beyond the quota must not be re-admitted")
		}
	}
}

func TestCompactIdempotentOnOwnOutput(t *testing.T) {
	invoker := &fakeInvoker{}
	c := newTestCompactor(invoker, 3, 0, true)

	history := conversation(10)
	first, err := c.Compact(context.Background(), history, ReasonTokenThreshold)
	if err != nil {
		t.Fatalf("first Compact failed: %v", err)
	}

	second, err := c.Compact(context.Background(), first.Messages, ReasonTokenThreshold)
	if err != nil {
		t.Fatalf("second Compact failed: %v", err)
	}

	// Re-running never reduces the already-summarized tail below the keep window.
	if second.MessagesAfter < 3 {
		t.Errorf("second compaction went below keep window: %d messages", second.MessagesAfter)
	}
	tail := second.Messages[len(second.Messages)-3:]
	firstTail := first.Messages[len(first.Messages)-3:]
	for i := range tail {
		if tail[i] != firstTail[i] {
			t.Errorf("tail message %d changed across re-compaction", i)
		}
	}
}

func TestCompactFallbackOnSummarizationFailure(t *testing.T) {
	invoker := &fakeInvoker{failWith: errors.New("api unavailable")}
	c := newTestCompactor(invoker, 2, 0, true)

	history := conversation(6)
	result, err := c.Compact(context.Background(), history, ReasonHardCap)
	if err != nil {
		t.Fatalf("Compact with fallback enabled must not fail: %v", err)
	}

	if !result.Fallback {
		t.Error("expected fallback truncation")
	}
	if result.SummaryMessage == nil || !result.SummaryMessage.IsSummary {
		t.Error("fallback must leave a placeholder summary marker")
	}
	if result.MessagesAfter != 3 {
		t.Errorf("MessagesAfter = %d, want 3", result.MessagesAfter)
	}
}

func TestCompactPropagatesFailureWithoutFallback(t *testing.T) {
	invoker := &fakeInvoker{failWith: errors.New("api unavailable")}
	c := newTestCompactor(invoker, 2, 0, false)

	history := conversation(6)
	_, err := c.Compact(context.Background(), history, ReasonTokenThreshold)
	if err == nil {
		t.Fatal("expected error with fallback disabled")
	}
	if !errors.Is(err, ErrSummarizationFailed) {
		t.Errorf("error must wrap ErrSummarizationFailed, got %v", err)
	}

	// The input history is untouched.
	if len(history) != 6 {
		t.Error("failed compaction must leave the original history intact")
	}
}

func TestCompactCancellationLeavesHistoryIntact(t *testing.T) {
	invoker := &fakeInvoker{delay: 200 * time.Millisecond}
	c := newTestCompactor(invoker, 2, 0, true)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	history := conversation(6)
	_, err := c.Compact(ctx, history, ReasonTokenThreshold)
	if err == nil {
		t.Fatal("expected error on cancellation")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error must wrap context.Canceled, got %v", err)
	}
	if len(history) != 6 {
		t.Error("cancelled compaction must leave the original history intact")
	}
}

func TestCompactDoesNotMutateInput(t *testing.T) {
	invoker := &fakeInvoker{}
	c := newTestCompactor(invoker, 2, 0, true)

	history := conversation(5)
	snapshot := append([]*types.Message(nil), history...)

	if _, err := c.Compact(context.Background(), history, ReasonTokenThreshold); err != nil {
		t.Fatalf("Compact failed: %v", err)
	}

	for i := range snapshot {
		if history[i] != snapshot[i] {
			t.Fatalf("input history slice mutated at index %d", i)
		}
	}
}
