// Package anthropic implements llm.LLMClient on the Anthropic Messages API.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"devopsteam/pkg/agent/llm"
	"devopsteam/pkg/agent/llmerrors"
	"devopsteam/pkg/config"
)

// ClaudeClient adapts the Anthropic SDK to llm.LLMClient. Middleware is
// applied by the factory, not here.
type ClaudeClient struct {
	client anthropic.Client
	model  anthropic.Model
}

// NewClaudeClient creates a client on the default Claude model.
func NewClaudeClient(apiKey string) llm.LLMClient {
	return NewClaudeClientWithModel(apiKey, config.ModelClaude4)
}

// NewClaudeClientWithModel creates a client pinned to the given model.
func NewClaudeClientWithModel(apiKey, model string) llm.LLMClient {
	return &ClaudeClient{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  anthropic.Model(model),
	}
}

// normalizeMessages reshapes a conversation for the Messages API, which takes
// the system prompt as a separate parameter and requires strict user/assistant
// alternation starting and ending on user.
func normalizeMessages(messages []llm.CompletionMessage) (string, []llm.CompletionMessage, error) {
	if len(messages) == 0 {
		return "", nil, fmt.Errorf("message list cannot be empty")
	}

	// Peel system messages off into the system parameter; everything else
	// that is not an assistant turn collapses into user turns.
	var systemParts []string
	var merged []llm.CompletionMessage
	var pendingUser []string

	flushUser := func() {
		if len(pendingUser) == 0 {
			return
		}
		merged = append(merged, llm.CompletionMessage{
			Role:    llm.RoleUser,
			Content: strings.Join(pendingUser, "\n\n"),
		})
		pendingUser = nil
	}

	for i := range messages {
		switch messages[i].Role {
		case llm.RoleSystem:
			systemParts = append(systemParts, messages[i].Content)
		case llm.RoleAssistant:
			flushUser()
			merged = append(merged, messages[i])
		default:
			pendingUser = append(pendingUser, messages[i].Content)
		}
	}
	flushUser()

	if len(merged) == 0 {
		return "", nil, fmt.Errorf("must have at least one non-system message")
	}
	if merged[0].Role != llm.RoleUser {
		return "", nil, fmt.Errorf("first message must be user role, got: %s", merged[0].Role)
	}
	if merged[len(merged)-1].Role != llm.RoleUser {
		return "", nil, fmt.Errorf("last message must be user role, got: %s", merged[len(merged)-1].Role)
	}
	for i := 1; i < len(merged); i++ {
		if merged[i].Role == merged[i-1].Role {
			return "", nil, fmt.Errorf("alternation violation at index %d: consecutive %s messages", i, merged[i].Role)
		}
	}

	return strings.Join(systemParts, "\n\n"), merged, nil
}

// Complete implements llm.LLMClient.
//
//nolint:gocritic // CompletionRequest passed by value matches interface
func (c *ClaudeClient) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	systemPrompt, conversation, err := normalizeMessages(in.Messages)
	if err != nil {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeBadPrompt,
			fmt.Sprintf("message alternation error: %v", err))
	}

	turns := make([]anthropic.MessageParam, 0, len(conversation))
	for i := range conversation {
		turns = append(turns, anthropic.MessageParam{
			Role:    anthropic.MessageParamRole(conversation[i].Role),
			Content: []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(conversation[i].Content)},
		})
	}

	params := anthropic.MessageNewParams{
		Model:       c.model,
		Messages:    turns,
		MaxTokens:   int64(in.MaxTokens),
		Temperature: anthropic.Float(float64(in.Temperature)),
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemPrompt, Type: "text"}}
	}
	// No native JSON mode on this API; steer via the system parameter.
	if in.ResponseFormat == llm.FormatJSON {
		params.System = append(params.System, anthropic.TextBlockParam{
			Text: "Respond with a single valid JSON object and nothing else.",
			Type: "text",
		})
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return llm.CompletionResponse{}, classifyError(err)
	}
	if resp == nil || len(resp.Content) == 0 {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse,
			"received empty or nil response from Claude API")
	}

	var text strings.Builder
	for i := range resp.Content {
		if resp.Content[i].Type == "text" {
			text.WriteString(resp.Content[i].AsText().Text)
		}
	}

	return llm.CompletionResponse{
		Content:    text.String(),
		StopReason: string(resp.StopReason),
		Usage: llm.Usage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
		},
	}, nil
}

// Stream implements llm.LLMClient as a single-shot stream backed by Complete.
//
//nolint:gocritic // CompletionRequest passed by value matches interface
func (c *ClaudeClient) Stream(ctx context.Context, in llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
	ch := make(chan llm.StreamChunk, 2)
	go func() {
		defer close(ch)
		resp, err := c.Complete(ctx, in)
		if err != nil {
			ch <- llm.StreamChunk{Error: err}
			return
		}
		ch <- llm.StreamChunk{Content: resp.Content}
		ch <- llm.StreamChunk{Done: true}
	}()
	return ch, nil
}

// GetModelName implements llm.LLMClient.
func (c *ClaudeClient) GetModelName() string {
	return string(c.model)
}

// statusPattern matches 4xx/5xx codes the SDK embeds in error strings.
var statusPattern = regexp.MustCompile(`\b([45]\d{2})\b`)

// keyword buckets, checked in order after status codes
var errorKeywords = []struct {
	errType llmerrors.ErrorType
	message string
	words   []string
}{
	{llmerrors.ErrorTypeTransient, "network or connection error",
		[]string{"timeout", "connection", "network", "temporary", "eof", "reset"}},
	{llmerrors.ErrorTypeRateLimit, "rate limiting detected",
		[]string{"rate", "quota", "limit"}},
	{llmerrors.ErrorTypeAuth, "authentication error",
		[]string{"auth", "key", "unauthorized"}},
	{llmerrors.ErrorTypeBadPrompt, "prompt or request error",
		[]string{"invalid", "malformed", "too large", "token"}},
}

// classifyError maps SDK failures onto retry policy buckets: context errors
// and network noise are transient, then HTTP status, then message keywords.
func classifyError(err error) *llmerrors.Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeTransient, err, "request timeout")
	}
	if errors.Is(err, context.Canceled) {
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeTransient, err, "request canceled")
	}

	errStr := err.Error()
	if m := statusPattern.FindString(errStr); m != "" {
		status, _ := strconv.Atoi(m)
		switch status {
		case 400:
			return llmerrors.NewErrorWithStatus(llmerrors.ErrorTypeBadPrompt, status, "bad request - check prompt format and parameters")
		case 401, 403:
			return llmerrors.NewErrorWithStatus(llmerrors.ErrorTypeAuth, status, "authentication failed - check API key")
		case 429:
			return llmerrors.NewErrorWithStatus(llmerrors.ErrorTypeRateLimit, status, "rate limit exceeded")
		case 500, 502, 503, 504:
			return llmerrors.NewErrorWithStatus(llmerrors.ErrorTypeTransient, status, "server error")
		}
	}

	lower := strings.ToLower(errStr)
	for _, bucket := range errorKeywords {
		for _, word := range bucket.words {
			if strings.Contains(lower, word) {
				return llmerrors.NewErrorWithCause(bucket.errType, err, bucket.message)
			}
		}
	}
	return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeUnknown, err, "unclassified error")
}
