package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTokenCounterAcceptsAnyModel(t *testing.T) {
	// Every provider model maps onto the same cl100k codec.
	for _, model := range []string{
		"llama-3.3-70b-versatile",
		"claude-sonnet-4-20250514",
		"gemini-2.0-flash",
		"some-future-model",
	} {
		counter, err := NewTokenCounter(model)
		require.NoError(t, err, model)
		require.NotNil(t, counter, model)
	}
}

func TestCountTokens(t *testing.T) {
	counter, err := NewTokenCounter("llama-3.3-70b-versatile")
	require.NoError(t, err)

	assert.Zero(t, counter.CountTokens(""))
	assert.InDelta(t, 2, counter.CountTokens("Hello world"), 1)

	// ~100 repeated words land near 100 tokens
	many := counter.CountTokens(strings.Repeat("word ", 100))
	assert.Greater(t, many, 90)
	assert.Less(t, many, 110)
}

func TestCountTokensFallbackWithoutCodec(t *testing.T) {
	bare := &TokenCounter{}
	assert.Equal(t, len("abcdefgh")/4, bare.CountTokens("abcdefgh"))
}

func TestCountTokensSimple(t *testing.T) {
	tokens := CountTokensSimple("Hello world")
	assert.GreaterOrEqual(t, tokens, 2)
	assert.LessOrEqual(t, tokens, 3)
}

func TestValidateTokenLimit(t *testing.T) {
	counter, err := NewTokenCounter("llama-3.3-70b-versatile")
	require.NoError(t, err)

	assert.True(t, counter.ValidateTokenLimit("short", 10))
	assert.True(t, counter.ValidateTokenLimit("", 0))
	assert.False(t, counter.ValidateTokenLimit(
		"a very long sentence that definitely exceeds a small token limit", 5))
}

func TestTruncateToTokenLimit(t *testing.T) {
	counter, err := NewTokenCounter("llama-3.3-70b-versatile")
	require.NoError(t, err)

	short := "diff --git a/main.go b/main.go"
	assert.Equal(t, short, counter.TruncateToTokenLimit(short, 100))

	long := strings.Repeat("This is a sentence. ", 50)
	truncated := counter.TruncateToTokenLimit(long, 10)
	require.Less(t, len(truncated), len(long))
	assert.True(t, strings.HasSuffix(truncated, "..."))
	// Approximate clamp: allow some slack over the target
	assert.LessOrEqual(t, counter.CountTokens(truncated), 15)
}
