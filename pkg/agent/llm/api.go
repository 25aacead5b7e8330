// Package llm defines the provider-neutral completion API every agent talks
// to, plus the middleware chaining that wraps provider clients.
package llm

import (
	"context"
	"fmt"
	"io"
)

// CompletionRole is the speaker of a conversation message.
type CompletionRole string

const (
	// RoleSystem carries instructions and context for the model.
	RoleSystem CompletionRole = "system"
	// RoleUser is the human (or agent-authored prompt) side.
	RoleUser CompletionRole = "user"
	// RoleAssistant is the model side.
	RoleAssistant CompletionRole = "assistant"
)

const (
	// DefaultMaxTokens is the response budget applied when callers do not narrow it.
	DefaultMaxTokens = 4096

	// TemperatureDefault is the default temperature for planning, reviews, and judgment tasks.
	// Allows some exploration and creativity while staying focused.
	TemperatureDefault = 0.3

	// TemperatureDeterministic is the temperature for artifact generation and deterministic tasks.
	// Uses slight randomness (0.2) to avoid getting stuck in loops while maintaining consistency.
	TemperatureDeterministic = 0.2

	// TemperatureExploratory balances creativity and consistency for open-ended
	// analysis such as build failure prediction.
	TemperatureExploratory = 0.7
)

// ResponseFormat selects the output encoding the model is asked to produce.
type ResponseFormat string

const (
	// FormatText requests free-form text (the provider default).
	FormatText ResponseFormat = "text"
	// FormatJSON requests a single JSON object (providers that support
	// structured output enforce it; others get a prompt-level hint).
	FormatJSON ResponseFormat = "json_object"
)

// CompletionMessage represents a message in a completion request.
type CompletionMessage struct {
	Content string
	Role    CompletionRole
}

// CompletionRequest represents a request to generate a completion.
//
//nolint:govet // fieldalignment: value semantics preferred over pointer indirection
type CompletionRequest struct {
	Messages       []CompletionMessage
	ResponseFormat ResponseFormat // Empty means FormatText
	MaxTokens      int
	Temperature    float32
}

// Usage reports token consumption as counted by the provider.
// Zero values mean the provider did not report usage.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// CompletionResponse represents a response from a completion request.
//
//nolint:govet // fieldalignment: value semantics preferred over pointer indirection
type CompletionResponse struct {
	Content    string // Main response text
	StopReason string // Why the response stopped: "stop", "length", "end_turn", etc.
	Usage      Usage  // Provider-reported token counts, when available
}

// StreamChunk represents a chunk of streamed completion response.
type StreamChunk struct {
	Error   error
	Content string
	Done    bool
}

// LLMClient defines the interface for language model interactions.
type LLMClient interface { //nolint:revive // Keep name for backward compatibility
	// Complete generates a completion synchronously.
	Complete(ctx context.Context, in CompletionRequest) (CompletionResponse, error)

	// Stream generates a completion as a stream of chunks.
	Stream(ctx context.Context, in CompletionRequest) (<-chan StreamChunk, error)

	// GetModelName returns the model name for this LLM client.
	GetModelName() string
}

// NewCompletionRequest creates a new completion request with default values.
func NewCompletionRequest(messages []CompletionMessage) CompletionRequest {
	return CompletionRequest{
		Messages:    messages,
		MaxTokens:   DefaultMaxTokens,
		Temperature: TemperatureDefault, // Default: 0.3 for planning/reviews
	}
}

// NewSystemMessage creates a new system message.
func NewSystemMessage(content string) CompletionMessage {
	return CompletionMessage{
		Role:    RoleSystem,
		Content: content,
	}
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) CompletionMessage {
	return CompletionMessage{
		Role:    RoleUser,
		Content: content,
	}
}

// NewAssistantMessage creates a new assistant message.
func NewAssistantMessage(content string) CompletionMessage {
	return CompletionMessage{
		Role:    RoleAssistant,
		Content: content,
	}
}

// LLMConfig represents configuration for an LLM client.
type LLMConfig struct { //nolint:revive // Keep name for backward compatibility
	APIKey      string
	ModelName   string
	BaseURL     string // Optional endpoint override (OpenAI-compatible providers)
	MaxTokens   int
	Temperature float32
}

// Validate validates the LLM configuration.
func (c *LLMConfig) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("API key cannot be empty")
	}
	if c.ModelName == "" {
		return fmt.Errorf("model name cannot be empty")
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("max tokens must be positive")
	}
	if c.Temperature < 0.0 || c.Temperature > 2.0 {
		return fmt.Errorf("temperature must be between 0.0 and 2.0")
	}
	return nil
}

// StreamToReader adapts a chunk stream to an io.Reader. A chunk error closes
// the reader with that error after any content already delivered.
func StreamToReader(stream <-chan StreamChunk) io.Reader {
	pr, pw := io.Pipe()

	go func() {
		defer pw.Close() //nolint:errcheck // Double close after CloseWithError is a no-op
		for chunk := range stream {
			if chunk.Error != nil {
				pw.CloseWithError(chunk.Error)
				return
			}
			if _, err := pw.Write([]byte(chunk.Content)); err != nil {
				pw.CloseWithError(err)
				return
			}
			if chunk.Done {
				return
			}
		}
	}()

	return pr
}
