package compaction

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/ctxpg/ctxpg/types"
)

// TokenCounter provides token counting for messages using the Claude
// counting API with the pure estimator as fallback.
//
// Policy decisions always use the pure estimator so they stay reproducible;
// the counter serves reporting and diagnostics where accuracy matters more
// than determinism.
type TokenCounter struct {
	client   *anthropic.Client
	model    string
	useAPI   bool
	fallback bool // set once the API has failed
}

// TokenCountResult contains the result of a token count operation.
type TokenCountResult struct {
	// TotalTokens is the total token count for all messages.
	TotalTokens int

	// UsedAPI indicates whether the counting API was used (true) or the
	// character-based estimator (false).
	UsedAPI bool

	// PerMessage contains per-message counts. Only populated when the
	// estimator was used; the API reports only a total.
	PerMessage []int
}

// NewTokenCounter creates a TokenCounter. If useAPI is false or client is
// nil, only the estimator is used.
func NewTokenCounter(client *anthropic.Client, model string, useAPI bool) *TokenCounter {
	return &TokenCounter{
		client: client,
		model:  model,
		useAPI: useAPI,
	}
}

// CountTokens counts the tokens in the given messages, preferring the
// counting API and falling back to the estimator on failure.
func (tc *TokenCounter) CountTokens(ctx context.Context, messages []*types.Message) (*TokenCountResult, error) {
	if tc.useAPI && tc.client != nil && !tc.fallback {
		result, err := tc.countWithAPI(ctx, messages)
		if err == nil {
			return result, nil
		}
		tc.fallback = true
	}

	return tc.countWithEstimator(messages), nil
}

func (tc *TokenCounter) countWithAPI(ctx context.Context, messages []*types.Message) (*TokenCountResult, error) {
	if len(messages) == 0 {
		return &TokenCountResult{TotalTokens: 0, UsedAPI: true}, nil
	}

	params := toAnthropicMessages(messages)
	if len(params) == 0 {
		return &TokenCountResult{TotalTokens: 0, UsedAPI: true}, nil
	}

	result, err := tc.client.Messages.CountTokens(ctx, anthropic.MessageCountTokensParams{
		Model:    anthropic.Model(tc.model),
		Messages: params,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenCountingFailed, err)
	}

	return &TokenCountResult{
		TotalTokens: int(result.InputTokens),
		UsedAPI:     true,
	}, nil
}

func (tc *TokenCounter) countWithEstimator(messages []*types.Message) *TokenCountResult {
	perMessage := make([]int, len(messages))
	total := 0

	for i, msg := range messages {
		tokens := EstimateMessage(msg)
		perMessage[i] = tokens
		total += tokens
	}

	return &TokenCountResult{
		TotalTokens: total,
		UsedAPI:     false,
		PerMessage:  perMessage,
	}
}
