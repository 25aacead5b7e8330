package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tagResponse builds a middleware that wraps the response content in tag
// markers, so ordering through the chain is visible in the final string.
func tagResponse(tag string) Middleware {
	return func(next LLMClient) LLMClient {
		return WrapClient(
			func(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
				resp, err := next.Complete(ctx, req)
				if err != nil {
					return resp, err
				}
				resp.Content = fmt.Sprintf("%s(%s)", tag, resp.Content)
				return resp, nil
			},
			func(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error) {
				return next.Stream(ctx, req)
			},
			next.GetModelName,
		)
	}
}

func TestChainAppliesFirstMiddlewareOutermost(t *testing.T) {
	base := &stubClient{content: "reply"}

	// Chain(base, a, b): a wraps b wraps base, so a's tag lands outermost.
	client := Chain(base, tagResponse("a"), tagResponse("b"))

	resp, err := client.Complete(context.Background(), NewCompletionRequest(nil))
	require.NoError(t, err)
	assert.Equal(t, "a(b(reply))", resp.Content)
}

func TestChainWithoutMiddlewareReturnsBase(t *testing.T) {
	base := &stubClient{content: "reply"}
	assert.Equal(t, LLMClient(base), Chain(base))
}

func TestChainMiddlewareCanRewriteRequest(t *testing.T) {
	var seen CompletionRequest
	base := &stubClient{onComplete: func(req CompletionRequest) { seen = req }}

	deterministic := func(next LLMClient) LLMClient {
		return WrapClient(
			func(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
				req.Temperature = TemperatureDeterministic
				return next.Complete(ctx, req)
			},
			next.Stream,
			next.GetModelName,
		)
	}

	req := NewCompletionRequest([]CompletionMessage{NewUserMessage("generate a workflow")})
	_, err := Chain(base, deterministic).Complete(context.Background(), req)
	require.NoError(t, err)

	// The base client sees the rewritten temperature, not the caller's.
	assert.InDelta(t, TemperatureDeterministic, seen.Temperature, 0.001)
	require.Len(t, seen.Messages, 1)
	assert.Equal(t, "generate a workflow", seen.Messages[0].Content)
}

func TestChainMiddlewareCanShortCircuit(t *testing.T) {
	base := &stubClient{content: "from provider"}

	gate := func(next LLMClient) LLMClient {
		return WrapClient(
			func(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
				if len(req.Messages) == 0 {
					return CompletionResponse{Content: "nothing to ask"}, nil
				}
				return next.Complete(ctx, req)
			},
			next.Stream,
			next.GetModelName,
		)
	}
	client := Chain(base, gate)

	resp, err := client.Complete(context.Background(), CompletionRequest{})
	require.NoError(t, err)
	assert.Equal(t, "nothing to ask", resp.Content)
	assert.Zero(t, base.calls, "empty requests must not reach the provider")

	resp, err = client.Complete(context.Background(),
		NewCompletionRequest([]CompletionMessage{NewUserMessage("hi")}))
	require.NoError(t, err)
	assert.Equal(t, "from provider", resp.Content)
	assert.Equal(t, 1, base.calls)
}

func TestChainPropagatesErrors(t *testing.T) {
	cause := errors.New("provider down")
	base := &stubClient{err: cause}

	wrap := func(next LLMClient) LLMClient {
		return WrapClient(
			func(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
				resp, err := next.Complete(ctx, req)
				if err != nil {
					return resp, fmt.Errorf("completion failed: %w", err)
				}
				return resp, nil
			},
			next.Stream,
			next.GetModelName,
		)
	}

	_, err := Chain(base, wrap).Complete(context.Background(), NewCompletionRequest(nil))
	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
	assert.EqualError(t, err, "completion failed: provider down")
}

func TestWrapClientDelegates(t *testing.T) {
	client := WrapClient(
		func(context.Context, CompletionRequest) (CompletionResponse, error) {
			return CompletionResponse{Content: "done"}, nil
		},
		func(context.Context, CompletionRequest) (<-chan StreamChunk, error) {
			ch := make(chan StreamChunk)
			close(ch)
			return ch, nil
		},
		func() string { return "llama-3.3-70b-versatile" },
	)

	resp, err := client.Complete(context.Background(), NewCompletionRequest(nil))
	require.NoError(t, err)
	assert.Equal(t, "done", resp.Content)

	stream, err := client.Stream(context.Background(), NewCompletionRequest(nil))
	require.NoError(t, err)
	_, open := <-stream
	assert.False(t, open)

	assert.Equal(t, "llama-3.3-70b-versatile", client.GetModelName())
}

func TestChainModelNameReachesBase(t *testing.T) {
	base := &stubClient{model: "qwen/qwen3-32b"}
	client := Chain(base, tagResponse("metrics"), tagResponse("retry"))
	assert.Equal(t, "qwen/qwen3-32b", client.GetModelName())
}
