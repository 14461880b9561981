package types

import "context"

// Invoker is the model-invocation capability consumed by the compaction
// engine and the runner. Implementations turn a message list (plus an
// optional instruction that callers use as the system prompt) into text and
// token usage counts.
//
// An Anthropic-backed implementation lives in the compaction package; tests
// and embedders are free to supply their own.
type Invoker interface {
	Invoke(ctx context.Context, messages []*Message, instruction string) (*Response, error)
}

// InvokerFunc adapts a function to the Invoker interface.
type InvokerFunc func(ctx context.Context, messages []*Message, instruction string) (*Response, error)

// Invoke calls f.
func (f InvokerFunc) Invoke(ctx context.Context, messages []*Message, instruction string) (*Response, error) {
	return f(ctx, messages, instruction)
}
