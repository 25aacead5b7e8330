// Package ollama implements llm.LLMClient against a local Ollama server,
// used for fully offline runs.
package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"

	"devopsteam/pkg/agent/llm"
	"devopsteam/pkg/agent/llmerrors"
)

// DefaultHostURL is the standard local Ollama server address.
const DefaultHostURL = "http://localhost:11434"

// Client adapts the Ollama chat API to llm.LLMClient.
type Client struct {
	client  *api.Client
	model   string
	hostURL string
}

// NewOllamaClientWithModel creates a client for the given server URL and
// model. An unparseable URL falls back to the default local address.
func NewOllamaClientWithModel(hostURL, model string) llm.LLMClient {
	parsed, err := url.Parse(hostURL)
	if err != nil {
		parsed, _ = url.Parse(DefaultHostURL)
	}
	return &Client{
		client:  api.NewClient(parsed, http.DefaultClient),
		model:   model,
		hostURL: hostURL,
	}
}

func (o *Client) chatRequest(in *llm.CompletionRequest, stream bool) (*api.ChatRequest, error) {
	if len(in.Messages) == 0 {
		return nil, llmerrors.NewError(llmerrors.ErrorTypeBadPrompt, "message list cannot be empty")
	}

	msgs := make([]api.Message, 0, len(in.Messages))
	for i := range in.Messages {
		msgs = append(msgs, api.Message{
			Role:    string(in.Messages[i].Role),
			Content: in.Messages[i].Content,
		})
	}

	req := &api.ChatRequest{
		Model:    o.model,
		Messages: msgs,
		Stream:   &stream,
		Options: map[string]any{
			"temperature": in.Temperature,
			"num_predict": in.MaxTokens,
		},
	}
	if in.ResponseFormat == llm.FormatJSON {
		// JSON mode maps to Ollama's format parameter
		req.Format = []byte(`"json"`)
	}
	return req, nil
}

// Complete implements llm.LLMClient.
//
//nolint:gocritic // CompletionRequest size acceptable for interface consistency
func (o *Client) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	req, err := o.chatRequest(&in, false)
	if err != nil {
		return llm.CompletionResponse{}, err
	}

	var last api.ChatResponse
	err = o.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		last = resp
		return nil
	})
	if err != nil {
		return llm.CompletionResponse{}, classifyError(err)
	}
	if last.Message.Content == "" {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "received empty response from Ollama")
	}

	return llm.CompletionResponse{
		Content:    last.Message.Content,
		StopReason: stopReason(&last),
		Usage: llm.Usage{
			PromptTokens:     last.PromptEvalCount,
			CompletionTokens: last.EvalCount,
		},
	}, nil
}

// Stream implements llm.LLMClient using Ollama's native streaming callback.
//
//nolint:gocritic // CompletionRequest size acceptable for interface consistency
func (o *Client) Stream(ctx context.Context, in llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
	req, err := o.chatRequest(&in, true)
	if err != nil {
		return nil, err
	}

	ch := make(chan llm.StreamChunk)
	go func() {
		defer close(ch)

		err := o.client.Chat(ctx, req, func(resp api.ChatResponse) error {
			if resp.Message.Content == "" {
				return nil
			}
			select {
			case ch <- llm.StreamChunk{Content: resp.Message.Content}:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		if err != nil {
			ch <- llm.StreamChunk{Error: classifyError(err)}
			return
		}
		ch <- llm.StreamChunk{Done: true}
	}()
	return ch, nil
}

// GetModelName implements llm.LLMClient.
func (o *Client) GetModelName() string {
	return o.model
}

// stopReason maps Ollama's done_reason onto the shared vocabulary.
func stopReason(resp *api.ChatResponse) string {
	if !resp.Done {
		return "incomplete"
	}
	switch resp.DoneReason {
	case "stop", "":
		return "end_turn"
	case "length":
		return "max_tokens"
	default:
		return resp.DoneReason
	}
}

// classifyError buckets local-server failures. A refused connection just
// means the daemon is not running, which is transient from our side.
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	errStr := err.Error()
	switch {
	case strings.Contains(errStr, "connection refused"):
		return llmerrors.NewError(llmerrors.ErrorTypeTransient, fmt.Sprintf("Ollama server not reachable: %v", err))
	case strings.Contains(errStr, "model") && strings.Contains(errStr, "not found"):
		return llmerrors.NewError(llmerrors.ErrorTypeBadPrompt, fmt.Sprintf("Ollama model not found: %v", err))
	case strings.Contains(errStr, "context canceled"), strings.Contains(errStr, "timeout"):
		return llmerrors.NewError(llmerrors.ErrorTypeTransient, fmt.Sprintf("request failed: %v", err))
	default:
		return llmerrors.NewError(llmerrors.ErrorTypeUnknown, fmt.Sprintf("Ollama API error: %v", err))
	}
}
