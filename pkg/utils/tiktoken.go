// Package utils provides token counting, short identifiers, and small
// helpers shared across the agent pipeline.
package utils

import (
	"fmt"
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

// TokenCounter counts tokens for prompt budgeting and diff clamping.
type TokenCounter struct {
	codec tokenizer.Codec
}

// NewTokenCounter builds a counter for the given model. Groq-hosted
// Llama/Mixtral/Gemma models, Claude, and Gemini all tokenize close enough to
// GPT-4's cl100k encoding that one codec serves every provider here.
func NewTokenCounter(model string) (*TokenCounter, error) {
	codec, err := tokenizer.ForModel(tokenizer.GPT4)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokenizer codec for model %s: %w", model, err)
	}
	return &TokenCounter{codec: codec}, nil
}

// CountTokens returns the token count for text. When the codec is missing or
// errors, it estimates at four characters per token rather than failing.
func (tc *TokenCounter) CountTokens(text string) int {
	if tc.codec == nil {
		return len(text) / 4
	}
	count, err := tc.codec.Count(text)
	if err != nil {
		return len(text) / 4
	}
	return count
}

// ValidateTokenLimit reports whether text fits within limit tokens.
func (tc *TokenCounter) ValidateTokenLimit(text string, limit int) bool {
	return tc.CountTokens(text) <= limit
}

// TruncateToTokenLimit clamps text to roughly limit tokens. Truncation is
// proportional by characters with a 10% margin, not token-exact.
func (tc *TokenCounter) TruncateToTokenLimit(text string, limit int) string {
	total := tc.CountTokens(text)
	if total <= limit {
		return text
	}

	charLimit := int(float64(len(text)) * float64(limit) / float64(total) * 0.9)
	if charLimit >= len(text) {
		return text
	}
	return text[:charLimit] + "..."
}

//nolint:gochecknoglobals // Shared codec for one-off counts
var (
	sharedCounter     *TokenCounter
	sharedCounterOnce sync.Once
)

// CountTokensSimple counts tokens with a lazily built shared codec, for call
// sites that do not hold a TokenCounter.
func CountTokensSimple(text string) int {
	sharedCounterOnce.Do(func() {
		sharedCounter, _ = NewTokenCounter("gpt-4")
	})
	if sharedCounter == nil {
		return len(text) / 4
	}
	return sharedCounter.CountTokens(text)
}
