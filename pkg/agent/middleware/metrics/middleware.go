// Package metrics provides metrics middleware for LLM clients.
package metrics

import (
	"context"
	"errors"
	"time"

	"devopsteam/pkg/agent/llm"
	"devopsteam/pkg/agent/llmerrors"
	"devopsteam/pkg/agent/middleware/resilience/circuit"
	"devopsteam/pkg/config"
	"devopsteam/pkg/logx"
	coremetrics "devopsteam/pkg/metrics"
	"devopsteam/pkg/utils"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

// UsageExtractor pulls token counts out of a request/response pair.
type UsageExtractor func(req llm.CompletionRequest, resp llm.CompletionResponse) (promptTokens, completionTokens int)

// DefaultUsageExtractor prefers the usage block reported by the API and falls
// back to TikToken estimates when the provider omitted it.
func DefaultUsageExtractor(req llm.CompletionRequest, resp llm.CompletionResponse) (promptTokens, completionTokens int) {
	if resp.Usage.PromptTokens > 0 || resp.Usage.CompletionTokens > 0 {
		return resp.Usage.PromptTokens, resp.Usage.CompletionTokens
	}

	var promptText string
	for i := range req.Messages {
		promptText += req.Messages[i].Content + "\n"
	}
	return utils.CountTokensSimple(promptText), utils.CountTokensSimple(resp.Content)
}

// nopLabels labels requests that run outside any tracked run.
type nopLabels struct{}

func (nopLabels) GetRunID() string { return "" }
func (nopLabels) GetAgent() string { return "" }
func (nopLabels) GetTask() string  { return "" }

// Middleware records latency, token usage, cost, and error types for every
// request, labeled with the run, agent, and task it belongs to.
func Middleware(recorder coremetrics.Recorder, usageExtractor UsageExtractor, labels coremetrics.LabelProvider, logger *logx.Logger) llm.Middleware {
	if usageExtractor == nil {
		usageExtractor = DefaultUsageExtractor
	}
	if labels == nil {
		labels = nopLabels{}
	}

	observe := func(model string, promptTokens, completionTokens int, cost float64, err error, duration time.Duration) {
		errorType := ""
		if err != nil {
			errorType = getErrorType(err)
		}
		recorder.ObserveRequest(
			model, labels.GetRunID(), labels.GetAgent(), labels.GetTask(),
			promptTokens, completionTokens, cost,
			err == nil, errorType, duration,
		)
	}

	status := func(err error) string {
		if err != nil {
			return statusError
		}
		return statusSuccess
	}

	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				start := time.Now()
				model := next.GetModelName()

				resp, err := next.Complete(ctx, req)
				duration := time.Since(start)

				var promptTokens, completionTokens int
				var cost float64
				if err == nil {
					promptTokens, completionTokens = usageExtractor(req, resp)
					cost, _ = config.CalculateCost(model, promptTokens, completionTokens)
				}
				observe(model, promptTokens, completionTokens, cost, err, duration)

				if logger != nil {
					logger.Info("🎯 LLM Request: model=%s run=%s agent=%s task=%s tokens=%d+%d=%d cost=$%.4f status=%s duration=%dms",
						model, labels.GetRunID(), labels.GetAgent(), labels.GetTask(),
						promptTokens, completionTokens, promptTokens+completionTokens,
						cost, status(err), duration.Milliseconds())
				}

				return resp, err //nolint:wrapcheck // Middleware should pass through errors unchanged
			},
			func(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
				start := time.Now()
				model := next.GetModelName()

				ch, err := next.Stream(ctx, req)
				duration := time.Since(start)

				// Streams only record setup time and outcome; counting tokens
				// would require consuming the whole stream here.
				observe(model, 0, 0, 0, err, duration)

				if logger != nil {
					logger.Info("🎯 LLM Stream: model=%s run=%s agent=%s task=%s tokens=streaming status=%s duration=%dms",
						model, labels.GetRunID(), labels.GetAgent(), labels.GetTask(),
						status(err), duration.Milliseconds())
				}

				return ch, err //nolint:wrapcheck // Middleware should pass through errors unchanged
			},
			next.GetModelName,
		)
	}
}

// getErrorType classifies errors for the error_type metric label.
func getErrorType(err error) string {
	var circuitErr *circuit.Error
	if errors.As(err, &circuitErr) {
		return "circuit_breaker"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	var llmErr *llmerrors.Error
	if errors.As(err, &llmErr) {
		return llmErr.Type.String()
	}
	return "unknown"
}
