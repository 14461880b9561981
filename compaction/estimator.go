package compaction

import (
	"github.com/ctxpg/ctxpg/types"
)

// Estimation constants. The values are approximations tuned for English
// text against Claude's tokenizer; callers should rely on relative ordering
// rather than exact counts.
const (
	// charsPerToken is the assumed character-to-token ratio.
	charsPerToken = 4

	// messageOverheadTokens accounts for role and formatting overhead not
	// present in the raw content.
	messageOverheadTokens = 4

	// toolBlockOverheadTokens accounts for tool IDs and structure framing.
	toolBlockOverheadTokens = 10
)

// EstimateText estimates the token count of a text string.
// Deterministic and monotonic in content length; any non-empty string counts
// as at least one token.
func EstimateText(text string) int {
	if len(text) == 0 {
		return 0
	}
	tokens := (len(text) + charsPerToken - 1) / charsPerToken
	if tokens < 1 {
		tokens = 1
	}
	return tokens
}

// EstimateMessage estimates the token count of a single message, including
// the fixed per-message overhead.
func EstimateMessage(msg *types.Message) int {
	if msg == nil {
		return 0
	}

	total := messageOverheadTokens

	for _, block := range msg.Content {
		switch block.Type {
		case types.ContentTypeText, types.ContentTypeThinking:
			total += EstimateText(block.Text)
		case types.ContentTypeToolUse:
			total += toolBlockOverheadTokens
			total += EstimateText(block.ToolName)
			total += EstimateText(string(block.ToolInput))
		case types.ContentTypeToolResult:
			total += toolBlockOverheadTokens
			total += EstimateText(block.ToolContent)
		default:
			if block.Text != "" {
				total += EstimateText(block.Text)
			}
		}
	}

	return total
}

// EstimateHistory estimates the total token count of a message sequence.
func EstimateHistory(messages []*types.Message) int {
	total := 0
	for _, msg := range messages {
		total += EstimateMessage(msg)
	}
	return total
}
