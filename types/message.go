package types

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role represents the message role.
type Role string

const (
	// RoleUser represents a user message.
	RoleUser Role = "user"

	// RoleAssistant represents an assistant message.
	RoleAssistant Role = "assistant"

	// RoleTool represents a tool result message.
	RoleTool Role = "tool"

	// RoleSystem represents a system message.
	RoleSystem Role = "system"
)

// ContentType represents the type of content block.
type ContentType string

const (
	// ContentTypeText represents text content.
	ContentTypeText ContentType = "text"

	// ContentTypeToolUse represents a tool use block.
	ContentTypeToolUse ContentType = "tool_use"

	// ContentTypeToolResult represents a tool result block.
	ContentTypeToolResult ContentType = "tool_result"

	// ContentTypeThinking represents a thinking block.
	ContentTypeThinking ContentType = "thinking"
)

// ContentBlock represents a piece of content in a message.
// Different fields are populated based on the Type.
type ContentBlock struct {
	Type ContentType `json:"type"`

	// Text content (for ContentTypeText, ContentTypeThinking)
	Text string `json:"text,omitempty"`

	// Tool use fields (for ContentTypeToolUse)
	ToolUseID string          `json:"tool_use_id,omitempty"`
	ToolName  string          `json:"tool_name,omitempty"`
	ToolInput json.RawMessage `json:"tool_input,omitempty"`

	// Tool result fields (for ContentTypeToolResult)
	ToolResultForUseID string `json:"tool_result_for_use_id,omitempty"`
	ToolContent        string `json:"tool_content,omitempty"`
	IsError            bool   `json:"is_error,omitempty"`
}

// Message represents a single conversation turn.
//
// Messages are immutable once appended to a thread's history. Compaction
// never mutates a message in place; it replaces the history slice with a
// new one.
type Message struct {
	ID       uuid.UUID      `json:"id"`
	ThreadID string         `json:"thread_id,omitempty"`
	Role     Role           `json:"role"`
	Content  []ContentBlock `json:"content"`
	Usage    Usage          `json:"usage"`

	// IsSummary marks a synthetic message produced by compaction.
	IsSummary bool `json:"is_summary,omitempty"`

	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// NewTextMessage creates a message with a single text content block.
func NewTextMessage(role Role, text string) *Message {
	return &Message{
		ID:        uuid.New(),
		Role:      role,
		Content:   []ContentBlock{{Type: ContentTypeText, Text: text}},
		CreatedAt: time.Now(),
	}
}

// NewSummaryMessage creates a synthetic summary message produced by compaction.
// Summaries carry the user role so they re-enter the conversation as context
// on the next model invocation.
func NewSummaryMessage(text string) *Message {
	msg := NewTextMessage(RoleUser, text)
	msg.IsSummary = true
	return msg
}

// Text returns the concatenated text content of the message.
func (m *Message) Text() string {
	var sb strings.Builder
	for _, block := range m.Content {
		if block.Type == ContentTypeText || block.Type == ContentTypeThinking {
			if sb.Len() > 0 && block.Text != "" {
				sb.WriteString("\n")
			}
			sb.WriteString(block.Text)
		}
	}
	return sb.String()
}

// HasToolUse returns true if the message contains a tool_use content block.
func (m *Message) HasToolUse() bool {
	for _, block := range m.Content {
		if block.Type == ContentTypeToolUse {
			return true
		}
	}
	return false
}

// HasToolResult returns true if the message contains a tool_result content block.
func (m *Message) HasToolResult() bool {
	for _, block := range m.Content {
		if block.Type == ContentTypeToolResult {
			return true
		}
	}
	return false
}

// Usage contains token usage statistics reported by the model.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Add combines two Usage values.
func (u Usage) Add(other Usage) Usage {
	return Usage{
		InputTokens:  u.InputTokens + other.InputTokens,
		OutputTokens: u.OutputTokens + other.OutputTokens,
	}
}

// Total returns the total number of tokens (input + output).
func (u Usage) Total() int {
	return u.InputTokens + u.OutputTokens
}

// Response is the result of a model invocation.
type Response struct {
	// Text is the text produced by the model.
	Text string

	// StopReason indicates why the model stopped, when the provider reports one.
	StopReason string

	// Usage contains token statistics for the invocation.
	Usage Usage
}
