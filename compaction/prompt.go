package compaction

import (
	"fmt"
	"strings"

	"github.com/ctxpg/ctxpg/types"
)

// SummarizationSystemPrompt instructs the model to collapse older
// conversation turns into a structured summary that preserves the context
// needed to continue the thread.
const SummarizationSystemPrompt = `You are a conversation summarizer for a long-running AI agent. Older messages of a conversation will be replaced by your summary, so it must preserve everything required to continue the conversation seamlessly.

Produce a structured summary with the following sections. Write "None" for a section with no relevant content.

1. **Request and Intent** - the user's goal, constraints, and requirements.
2. **Key Facts and Decisions** - technical concepts, decisions made, and their reasoning.
3. **Actions Taken** - tools invoked, their inputs, and notable outputs or errors.
4. **Open Items** - pending tasks, follow-ups, and unresolved questions.
5. **Current State** - what was in progress when the summarized span ended.
6. **Next Step** - the immediate action the agent should take on resume.

Guidelines:
- Be concise but complete. Keep specific identifiers, file names, and error messages.
- Preserve exact user quotes when they convey intent.
- Do not invent information that is not in the conversation.`

// BuildSummarizationPrompt wraps a formatted transcript into the user
// message for a summarization request.
func BuildSummarizationPrompt(transcript string) string {
	return `Summarize the following conversation according to your instructions.

<conversation>
` + transcript + `
</conversation>

The summary will replace these messages; it must allow the conversation to continue with full context.`
}

// FormatTranscript renders messages as readable text for summarization.
// Tool activity is inlined as bracketed annotations so the summarizer sees
// what the agent did, not just what was said.
func FormatTranscript(messages []*types.Message) string {
	var sb strings.Builder
	for i, msg := range messages {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(roleLabel(msg.Role))
		sb.WriteString(":\n")
		sb.WriteString(formatMessageContent(msg))
	}
	return sb.String()
}

const toolResultPreviewLimit = 500

func formatMessageContent(msg *types.Message) string {
	var parts []string

	for _, block := range msg.Content {
		switch block.Type {
		case types.ContentTypeText:
			if block.Text != "" {
				parts = append(parts, block.Text)
			}
		case types.ContentTypeThinking:
			if block.Text != "" {
				parts = append(parts, fmt.Sprintf("[Thinking: %s]", block.Text))
			}
		case types.ContentTypeToolUse:
			parts = append(parts, fmt.Sprintf("[Tool: %s, Input: %s]", block.ToolName, string(block.ToolInput)))
		case types.ContentTypeToolResult:
			result := block.ToolContent
			if len(result) > toolResultPreviewLimit {
				result = result[:toolResultPreviewLimit-3] + "..."
			}
			if block.IsError {
				parts = append(parts, fmt.Sprintf("[Tool Error for %s: %s]", block.ToolResultForUseID, result))
			} else {
				parts = append(parts, fmt.Sprintf("[Tool Result for %s: %s]", block.ToolResultForUseID, result))
			}
		}
	}

	return strings.Join(parts, "\n")
}

func roleLabel(role types.Role) string {
	switch role {
	case types.RoleAssistant:
		return "Assistant"
	case types.RoleSystem:
		return "System"
	case types.RoleTool:
		return "Tool"
	default:
		return "User"
	}
}
