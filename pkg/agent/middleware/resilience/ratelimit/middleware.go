// Package ratelimit provides rate limiting middleware for LLM clients.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"devopsteam/pkg/agent/llm"
	"devopsteam/pkg/config"
	"devopsteam/pkg/limiter"
	"devopsteam/pkg/metrics"
	"devopsteam/pkg/utils"
)

// TokenEstimator estimates the number of tokens needed for a request.
type TokenEstimator interface {
	// EstimatePrompt estimates the number of prompt tokens for a request.
	EstimatePrompt(req llm.CompletionRequest) int
}

// DefaultTokenEstimator provides token estimation using TikToken.
type DefaultTokenEstimator struct{}

// NewDefaultTokenEstimator creates a new default token estimator.
func NewDefaultTokenEstimator() TokenEstimator {
	return &DefaultTokenEstimator{}
}

// EstimatePrompt estimates prompt tokens using TikToken-based counting.
//
//nolint:gocritic // 80 bytes is reasonable for token estimation
func (e *DefaultTokenEstimator) EstimatePrompt(req llm.CompletionRequest) int {
	var promptText string
	for i := range req.Messages {
		promptText += req.Messages[i].Content + "\n"
	}
	return utils.CountTokensSimple(promptText)
}

// Middleware returns a middleware function that wraps an LLM client with rate
// limiting. Before each call it reserves estimated budget, then blocks on the
// provider's token bucket, recording throttle and queue-wait metrics.
func Middleware(lim *limiter.Limiter, estimator TokenEstimator, recorder metrics.Recorder) llm.Middleware {
	if estimator == nil {
		estimator = NewDefaultTokenEstimator()
	}

	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			// Complete implementation with rate limiting
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				model := next.GetModelName()

				release, err := reserve(ctx, lim, estimator, recorder, model, req)
				if err != nil {
					return llm.CompletionResponse{}, err
				}
				defer release()

				return next.Complete(ctx, req) //nolint:wrapcheck // Middleware should pass through errors unchanged
			},
			// Stream implementation with rate limiting
			func(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
				model := next.GetModelName()

				release, err := reserve(ctx, lim, estimator, recorder, model, req)
				if err != nil {
					return nil, err
				}

				ch, err := next.Stream(ctx, req)
				if err != nil {
					release()
					return nil, err //nolint:wrapcheck // Middleware should pass through errors unchanged
				}

				// Hold the concurrency slot until the stream drains
				out := make(chan llm.StreamChunk)
				go func() {
					defer release()
					defer close(out)
					for chunk := range ch {
						select {
						case out <- chunk:
						case <-ctx.Done():
							return
						}
					}
				}()
				return out, nil
			},
			// Delegate GetModelName to the next client
			func() string {
				return next.GetModelName()
			},
		)
	}
}

// reserve runs the budget check and the blocking token reservation for one
// request. On success the returned func releases the concurrency slot.
func reserve(ctx context.Context, lim *limiter.Limiter, estimator TokenEstimator,
	recorder metrics.Recorder, model string, req llm.CompletionRequest) (func(), error) {
	promptTokens := estimator.EstimatePrompt(req)
	maxOutput := req.MaxTokens
	if maxOutput == 0 {
		maxOutput = llm.DefaultMaxTokens
	}

	// Budget first: it is cheap and failing fast avoids burning bucket tokens
	estCost, err := config.CalculateCost(model, promptTokens, maxOutput)
	if err == nil && estCost > 0 {
		if budgetErr := lim.ReserveBudget(model, estCost); budgetErr != nil {
			recorder.IncThrottle(model, "budget")
			return nil, fmt.Errorf("budget reservation for %s: %w", model, budgetErr)
		}
	}

	// Block until the provider bucket has room, and record how long that took
	waitStart := time.Now()
	release, err := lim.Reserve(ctx, model, promptTokens+maxOutput)
	recorder.ObserveQueueWait(model, time.Since(waitStart))
	if err != nil {
		recorder.IncThrottle(model, "rate_limit")
		return nil, err //nolint:wrapcheck // Middleware should pass through errors unchanged
	}

	return release, nil
}
