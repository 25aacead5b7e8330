// Package retry provides retry middleware for LLM clients.
package retry

import (
	"context"
	"fmt"
	"time"

	"devopsteam/pkg/agent/llm"
	"devopsteam/pkg/agent/llmerrors"
)

// attempt runs op under the policy's backoff schedule. Classified errors
// carry their own attempt budgets; anything non-retryable breaks out
// immediately. A retryable error that survives its whole budget comes back
// as ServiceUnavailable so degradable pipeline stages can skip instead of
// stalling the run.
func attempt[T any](
	ctx context.Context,
	policy *Policy,
	op func(context.Context) (T, error),
) (T, error) {
	var zero T
	var lastErr error
	budget := policy.Config.MaxAttempts

	for n := 1; ; n++ {
		if n > 1 {
			if delay := policy.DelayFor(lastErr, n); delay > 0 {
				select {
				case <-ctx.Done():
					return zero, fmt.Errorf("retry cancelled: %w", ctx.Err())
				case <-time.After(delay):
				}
			}
		}

		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !policy.ShouldRetry(err) {
			return zero, lastErr
		}
		budget = policy.BudgetFor(err)
		if n >= budget {
			break
		}
	}

	return zero, llmerrors.NewServiceUnavailableError(lastErr, budget)
}

// Middleware wraps a client with exponential backoff driven by the error
// classification in llmerrors.
func Middleware(policy *Policy) llm.Middleware {
	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				return attempt(ctx, policy, func(ctx context.Context) (llm.CompletionResponse, error) {
					return next.Complete(ctx, req)
				})
			},
			func(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
				return attempt(ctx, policy, func(ctx context.Context) (<-chan llm.StreamChunk, error) {
					return next.Stream(ctx, req)
				})
			},
			next.GetModelName,
		)
	}
}
