// Package circuit provides circuit breaker middleware for LLM clients.
package circuit

import (
	"context"

	"devopsteam/pkg/agent/llm"
)

// Middleware wraps a client so requests are refused outright while the
// provider's breaker is open, giving the provider time to recover. Complete
// results and stream establishment feed the breaker; individual stream
// chunks do not.
func Middleware(breaker Breaker) llm.Middleware {
	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				if !breaker.Allow() {
					return llm.CompletionResponse{}, &Error{State: breaker.GetState()}
				}
				resp, err := next.Complete(ctx, req)
				breaker.Record(err == nil)
				return resp, err //nolint:wrapcheck // provider errors pass through unchanged
			},
			func(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
				if !breaker.Allow() {
					return nil, &Error{State: breaker.GetState()}
				}
				ch, err := next.Stream(ctx, req)
				breaker.Record(err == nil)
				return ch, err //nolint:wrapcheck // provider errors pass through unchanged
			},
			next.GetModelName,
		)
	}
}
