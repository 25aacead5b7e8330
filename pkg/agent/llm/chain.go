package llm

import "context"

// Middleware wraps an LLMClient with additional behavior. The factory
// composes metrics, rate limiting, retries, and circuit breaking this way.
type Middleware func(next LLMClient) LLMClient

// clientFunc lets plain functions satisfy LLMClient.
type clientFunc struct {
	complete     func(context.Context, CompletionRequest) (CompletionResponse, error)
	stream       func(context.Context, CompletionRequest) (<-chan StreamChunk, error)
	getModelName func() string
}

func (f clientFunc) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	return f.complete(ctx, req)
}

func (f clientFunc) Stream(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error) {
	return f.stream(ctx, req)
}

func (f clientFunc) GetModelName() string {
	return f.getModelName()
}

// WrapClient builds an LLMClient from function implementations, the usual
// way a middleware wraps its next client.
func WrapClient(
	complete func(context.Context, CompletionRequest) (CompletionResponse, error),
	stream func(context.Context, CompletionRequest) (<-chan StreamChunk, error),
	getModelName func() string,
) LLMClient {
	return clientFunc{complete: complete, stream: stream, getModelName: getModelName}
}

// Chain composes middlewares around a base client, first middleware
// outermost: Chain(client, a, b) produces a -> b -> client, so a sees every
// request first and can rewrite or short-circuit it.
func Chain(base LLMClient, middlewares ...Middleware) LLMClient {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}
