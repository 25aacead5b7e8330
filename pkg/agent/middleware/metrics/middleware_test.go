package metrics

import (
	"context"
	"testing"
	"time"

	"devopsteam/pkg/agent/llm"
	"devopsteam/pkg/agent/llmerrors"
	"devopsteam/pkg/agent/middleware/resilience/circuit"
	"devopsteam/pkg/config"
)

type recordedRequest struct {
	model            string
	runID            string
	agent            string
	task             string
	promptTokens     int
	completionTokens int
	cost             float64
	success          bool
	errorType        string
}

type captureRecorder struct {
	requests []recordedRequest
}

func (c *captureRecorder) ObserveRequest(model, runID, agent, task string,
	promptTokens, completionTokens int, cost float64, success bool, errorType string, _ time.Duration) {
	c.requests = append(c.requests, recordedRequest{
		model: model, runID: runID, agent: agent, task: task,
		promptTokens: promptTokens, completionTokens: completionTokens,
		cost: cost, success: success, errorType: errorType,
	})
}

func (c *captureRecorder) IncThrottle(_, _ string)                    {}
func (c *captureRecorder) ObserveQueueWait(_ string, _ time.Duration) {}

type fixedLabels struct{}

func (fixedLabels) GetRunID() string { return "run-42" }
func (fixedLabels) GetAgent() string { return "predictor" }
func (fixedLabels) GetTask() string  { return "predict" }

func TestMiddlewareRecordsSuccess(t *testing.T) {
	recorder := &captureRecorder{}

	inner := llm.WrapClient(
		func(_ context.Context, _ llm.CompletionRequest) (llm.CompletionResponse, error) {
			return llm.CompletionResponse{
				Content: "prediction: pass",
				Usage:   llm.Usage{PromptTokens: 120, CompletionTokens: 30},
			}, nil
		},
		nil,
		func() string { return config.ModelLlama38B },
	)

	client := Middleware(recorder, nil, fixedLabels{}, nil)(inner)

	req := llm.CompletionRequest{Messages: []llm.CompletionMessage{{Role: llm.RoleUser, Content: "analyze"}}}
	if _, err := client.Complete(context.Background(), req); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	if len(recorder.requests) != 1 {
		t.Fatalf("Recorded %d requests, want 1", len(recorder.requests))
	}
	got := recorder.requests[0]

	if got.model != config.ModelLlama38B {
		t.Errorf("model = %q, want %q", got.model, config.ModelLlama38B)
	}
	if got.runID != "run-42" || got.agent != "predictor" || got.task != "predict" {
		t.Errorf("labels = %s/%s/%s, want run-42/predictor/predict", got.runID, got.agent, got.task)
	}
	// API-reported usage wins over tokenizer estimates
	if got.promptTokens != 120 || got.completionTokens != 30 {
		t.Errorf("tokens = %d+%d, want 120+30", got.promptTokens, got.completionTokens)
	}
	if got.cost <= 0 {
		t.Errorf("cost = %f, want > 0 for a priced model", got.cost)
	}
	if !got.success || got.errorType != "" {
		t.Errorf("success = %v errorType = %q, want success with no error type", got.success, got.errorType)
	}
}

func TestMiddlewareRecordsFailure(t *testing.T) {
	recorder := &captureRecorder{}

	inner := llm.WrapClient(
		func(_ context.Context, _ llm.CompletionRequest) (llm.CompletionResponse, error) {
			return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeRateLimit, "429 too many requests")
		},
		nil,
		func() string { return config.ModelLlama38B },
	)

	client := Middleware(recorder, nil, fixedLabels{}, nil)(inner)

	req := llm.CompletionRequest{Messages: []llm.CompletionMessage{{Role: llm.RoleUser, Content: "analyze"}}}
	if _, err := client.Complete(context.Background(), req); err == nil {
		t.Fatal("Expected error from inner client")
	}

	got := recorder.requests[0]
	if got.success {
		t.Error("Expected success=false")
	}
	if got.errorType != "rate_limit" {
		t.Errorf("errorType = %q, want rate_limit", got.errorType)
	}
	if got.promptTokens != 0 || got.completionTokens != 0 || got.cost != 0 {
		t.Errorf("Expected no tokens or cost on failure, got %d+%d $%f",
			got.promptTokens, got.completionTokens, got.cost)
	}
}

func TestDefaultUsageExtractorPrefersAPIUsage(t *testing.T) {
	req := llm.CompletionRequest{Messages: []llm.CompletionMessage{{Role: llm.RoleUser, Content: "hello world"}}}

	resp := llm.CompletionResponse{Content: "hi", Usage: llm.Usage{PromptTokens: 7, CompletionTokens: 3}}
	p, c := DefaultUsageExtractor(req, resp)
	if p != 7 || c != 3 {
		t.Errorf("tokens = %d+%d, want API-reported 7+3", p, c)
	}
}

func TestDefaultUsageExtractorFallsBackToEstimates(t *testing.T) {
	req := llm.CompletionRequest{Messages: []llm.CompletionMessage{{Role: llm.RoleUser, Content: "hello world"}}}

	resp := llm.CompletionResponse{Content: "a longer response with several words"}
	p, c := DefaultUsageExtractor(req, resp)
	if p <= 0 || c <= 0 {
		t.Errorf("tokens = %d+%d, want positive estimates when the API omits usage", p, c)
	}
}

func TestGetErrorType(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"circuit open", &circuit.Error{State: circuit.Open}, "circuit_breaker"},
		{"deadline", context.DeadlineExceeded, "timeout"},
		{"canceled", context.Canceled, "canceled"},
		{"classified", llmerrors.NewError(llmerrors.ErrorTypeAuth, "bad key"), "auth"},
		{"plain", context.Background().Err(), ""},
	}
	for _, tc := range cases {
		if tc.name == "plain" {
			// context.Background().Err() is nil
			if got := getErrorType(tc.err); got != "" {
				t.Errorf("%s: got %q, want empty", tc.name, got)
			}
			continue
		}
		if got := getErrorType(tc.err); got != tc.want {
			t.Errorf("%s: got %q, want %q", tc.name, got, tc.want)
		}
	}
}
