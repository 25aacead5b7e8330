// Package groq provides the Groq client implementation for the LLM interface.
//
// Groq exposes an OpenAI-compatible chat completions surface, so this client
// drives the official OpenAI Go SDK with the base URL pointed at the Groq
// endpoint. Without a base URL override the same client serves api.openai.com.
package groq

import (
	"context"
	"errors"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"devopsteam/pkg/agent/llm"
	"devopsteam/pkg/agent/llmerrors"
	"devopsteam/pkg/config"
)

// Client wraps the official OpenAI Go client to implement llm.LLMClient interface.
type Client struct {
	client openai.Client
	model  string
}

// NewClient creates a new Groq client (raw client, middleware applied at higher level).
// An empty baseURL talks to api.openai.com, which lets the same implementation
// serve plain OpenAI models.
func NewClient(apiKey, model, baseURL string) llm.LLMClient {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &Client{
		client: openai.NewClient(opts...),
		model:  model,
	}
}

// buildParams converts a completion request into chat completion parameters.
func (c *Client) buildParams(in *llm.CompletionRequest) openai.ChatCompletionNewParams {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(in.Messages))
	for i := range in.Messages {
		msg := &in.Messages[i]
		switch msg.Role {
		case llm.RoleSystem:
			messages = append(messages, openai.SystemMessage(msg.Content))
		case llm.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(msg.Content))
		case llm.RoleUser:
			messages = append(messages, openai.UserMessage(msg.Content))
		default:
			// Unknown roles degrade to user messages rather than failing the call
			messages = append(messages, openai.UserMessage(msg.Content))
		}
	}

	// Cap MaxTokens to model's actual limit to prevent API errors
	maxTokens := in.MaxTokens
	if modelInfo, exists := config.KnownModels[c.model]; exists && modelInfo.MaxOutputTokens > 0 {
		if maxTokens > modelInfo.MaxOutputTokens {
			maxTokens = modelInfo.MaxOutputTokens
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   openai.Int(int64(maxTokens)),
		Temperature: openai.Float(float64(in.Temperature)),
	}

	// JSON mode: ask the endpoint to emit a single JSON object. Groq enforces
	// this server-side the same way OpenAI does.
	if in.ResponseFormat == llm.FormatJSON {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}

	return params
}

// Complete implements the llm.LLMClient interface.
//
//nolint:gocritic // CompletionRequest passed by value matches interface
func (c *Client) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	params := c.buildParams(&in)

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return llm.CompletionResponse{}, classifyError(err)
	}

	if resp == nil || len(resp.Choices) == 0 {
		// Empty response is a specific type of retryable error
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "received empty chat completion response")
	}

	choice := resp.Choices[0]
	if choice.Message.Content == "" {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "chat completion returned no content")
	}

	return llm.CompletionResponse{
		Content:    choice.Message.Content,
		StopReason: string(choice.FinishReason),
		Usage: llm.Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
		},
	}, nil
}

// Stream implements the llm.LLMClient interface.
//
//nolint:gocritic // CompletionRequest passed by value matches interface
func (c *Client) Stream(ctx context.Context, in llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
	params := c.buildParams(&in)
	stream := c.client.Chat.Completions.NewStreaming(ctx, params)

	ch := make(chan llm.StreamChunk)

	go func() {
		defer close(ch)
		defer func() {
			if err := stream.Close(); err != nil {
				// Cleanup path in a streaming context; nothing useful to do
				_ = err
			}
		}()

		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
				continue
			}
			select {
			case ch <- llm.StreamChunk{Content: chunk.Choices[0].Delta.Content}:
			case <-ctx.Done():
				ch <- llm.StreamChunk{Error: ctx.Err()}
				return
			}
		}

		if err := stream.Err(); err != nil {
			ch <- llm.StreamChunk{Error: classifyError(err)}
			return
		}

		ch <- llm.StreamChunk{Done: true}
	}()

	return ch, nil
}

// GetModelName returns the model name for this client.
func (c *Client) GetModelName() string {
	return c.model
}

// classifyError maps OpenAI SDK errors to our structured error types.
// The official SDK carries real HTTP status codes, so no string parsing is
// needed for API errors; network failures fall back to text heuristics.
func classifyError(err error) *llmerrors.Error {
	if err == nil {
		return nil
	}

	// Check for context-related errors first
	if errors.Is(err, context.DeadlineExceeded) {
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeTransient, err, "request timeout")
	}
	if errors.Is(err, context.Canceled) {
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeTransient, err, "request canceled")
	}

	var apierr *openai.Error
	if errors.As(err, &apierr) {
		switch {
		case apierr.StatusCode == 401 || apierr.StatusCode == 403:
			return llmerrors.NewErrorWithStatus(llmerrors.ErrorTypeAuth, apierr.StatusCode, "authentication failed - check API key")
		case apierr.StatusCode == 429:
			return llmerrors.NewErrorWithStatus(llmerrors.ErrorTypeRateLimit, apierr.StatusCode, "rate limit exceeded")
		case apierr.StatusCode == 400 || apierr.StatusCode == 413 || apierr.StatusCode == 422:
			return llmerrors.NewErrorWithStatus(llmerrors.ErrorTypeBadPrompt, apierr.StatusCode, "bad request - check prompt format and parameters")
		case apierr.StatusCode >= 500:
			return llmerrors.NewErrorWithStatus(llmerrors.ErrorTypeTransient, apierr.StatusCode, "server error")
		}
	}

	// Check for common network and connection errors
	errStr := err.Error()
	lower := strings.ToLower(errStr)
	if strings.Contains(lower, "timeout") ||
		strings.Contains(lower, "connection") ||
		strings.Contains(lower, "network") ||
		strings.Contains(lower, "temporary") ||
		strings.Contains(errStr, "EOF") ||
		strings.Contains(lower, "reset") {
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeTransient, err, "network or connection error")
	}

	// Check for rate limiting text patterns
	if strings.Contains(lower, "rate") ||
		strings.Contains(lower, "quota") {
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeRateLimit, err, "rate limiting detected")
	}

	// Default to unknown error type
	return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeUnknown, err, "unclassified error")
}
