package compaction

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/ctxpg/ctxpg/types"
)

// Summarizer collapses a span of messages into summary text using a model
// invocation capability.
type Summarizer struct {
	invoker types.Invoker
}

// NewSummarizer creates a Summarizer backed by the given invoker.
func NewSummarizer(invoker types.Invoker) *Summarizer {
	return &Summarizer{invoker: invoker}
}

// Summarize generates summary text for the given messages.
// The invoker failure is the only error channel: any failure is reported as
// ErrSummarizationFailed and the input messages are left untouched.
func (s *Summarizer) Summarize(ctx context.Context, messages []*types.Message) (string, error) {
	if len(messages) == 0 {
		return "", ErrNoMessagesToCompact
	}

	prompt := BuildSummarizationPrompt(FormatTranscript(messages))
	request := []*types.Message{types.NewTextMessage(types.RoleUser, prompt)}

	resp, err := s.invoker.Invoke(ctx, request, SummarizationSystemPrompt)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSummarizationFailed, err)
	}

	if strings.TrimSpace(resp.Text) == "" {
		return "", fmt.Errorf("%w: empty response from model", ErrSummarizationFailed)
	}

	return resp.Text, nil
}

// AnthropicInvoker implements types.Invoker on the Anthropic streaming
// Messages API.
type AnthropicInvoker struct {
	client    *anthropic.Client
	model     string
	maxTokens int64
}

// NewAnthropicInvoker creates an invoker for the given client and model.
func NewAnthropicInvoker(client *anthropic.Client, model string, maxTokens int64) *AnthropicInvoker {
	return &AnthropicInvoker{
		client:    client,
		model:     model,
		maxTokens: maxTokens,
	}
}

// Invoke sends the messages to the model and returns the accumulated text
// response and token usage. The instruction, when non-empty, is sent as the
// system prompt.
func (a *AnthropicInvoker) Invoke(ctx context.Context, messages []*types.Message, instruction string) (*types.Response, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: a.maxTokens,
		Messages:  toAnthropicMessages(messages),
	}
	if instruction != "" {
		params.System = []anthropic.TextBlockParam{{Text: instruction}}
	}

	stream := a.client.Messages.NewStreaming(ctx, params)

	message := anthropic.Message{}
	for stream.Next() {
		event := stream.Current()
		if err := message.Accumulate(event); err != nil {
			return nil, fmt.Errorf("accumulate stream: %w", err)
		}
	}
	if err := stream.Err(); err != nil {
		return nil, err
	}

	var text strings.Builder
	for _, block := range message.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			text.WriteString(tb.Text)
		}
	}

	return &types.Response{
		Text:       text.String(),
		StopReason: string(message.StopReason),
		Usage: types.Usage{
			InputTokens:  int(message.Usage.InputTokens),
			OutputTokens: int(message.Usage.OutputTokens),
		},
	}, nil
}

// toAnthropicMessages converts messages to API params. Tool activity is
// flattened to annotated text: this invoker serves summarization and plain
// model turns, not tool execution, so preserving tool_use/tool_result block
// pairing at the API level is not required.
func toAnthropicMessages(messages []*types.Message) []anthropic.MessageParam {
	result := make([]anthropic.MessageParam, 0, len(messages))

	for _, msg := range messages {
		if msg.Role == types.RoleSystem {
			continue
		}

		role := anthropic.MessageParamRoleUser
		if msg.Role == types.RoleAssistant {
			role = anthropic.MessageParamRoleAssistant
		}

		content := make([]anthropic.ContentBlockParamUnion, 0, len(msg.Content))
		for _, block := range msg.Content {
			switch block.Type {
			case types.ContentTypeText, types.ContentTypeThinking:
				if block.Text != "" {
					content = append(content, anthropic.NewTextBlock(block.Text))
				}
			case types.ContentTypeToolUse:
				content = append(content, anthropic.NewTextBlock(
					fmt.Sprintf("[Tool: %s, Input: %s]", block.ToolName, string(block.ToolInput))))
			case types.ContentTypeToolResult:
				content = append(content, anthropic.NewTextBlock(
					fmt.Sprintf("[Tool Result for %s: %s]", block.ToolResultForUseID, block.ToolContent)))
			}
		}

		if len(content) > 0 {
			result = append(result, anthropic.MessageParam{
				Role:    role,
				Content: content,
			})
		}
	}

	return result
}
