// Package metrics provides services for querying and aggregating metrics data.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

// RunMetrics is the aggregated token and cost view of one run, read back
// from Prometheus for the -cost command.
type RunMetrics struct {
	RunID            string  `json:"run_id"`
	PromptTokens     int64   `json:"prompt_tokens"`
	CompletionTokens int64   `json:"completion_tokens"`
	TotalTokens      int64   `json:"total_tokens"`
	TotalCost        float64 `json:"total_cost_usd"`
}

// QueryService reads run metrics from a Prometheus server that scrapes the
// pushed devteam_llm_* series.
type QueryService struct {
	client   api.Client
	queryAPI v1.API
}

// NewQueryService creates a query service against the given Prometheus URL.
func NewQueryService(prometheusURL string) (*QueryService, error) {
	client, err := api.NewClient(api.Config{Address: prometheusURL})
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus client: %w", err)
	}
	return &QueryService{client: client, queryAPI: v1.NewAPI(client)}, nil
}

// scalar runs an instant query and returns the first sample value, or zero
// when the series does not exist (a run with no recorded traffic).
func (q *QueryService) scalar(ctx context.Context, query string) (float64, error) {
	result, _, err := q.queryAPI.Query(ctx, query, time.Now())
	if err != nil {
		return 0, err
	}
	if vector, ok := result.(model.Vector); ok && len(vector) > 0 {
		return float64(vector[0].Value), nil
	}
	return 0, nil
}

// collect fills a RunMetrics from the token and cost series matching the
// given label selector body (everything inside the braces).
func (q *QueryService) collect(ctx context.Context, runID, selector string) (*RunMetrics, error) {
	m := &RunMetrics{RunID: runID}

	prompt, err := q.scalar(ctx, fmt.Sprintf(`sum(devteam_llm_tokens_total{%s, type="prompt"})`, selector))
	if err != nil {
		return nil, fmt.Errorf("failed to query prompt tokens: %w", err)
	}
	completion, err := q.scalar(ctx, fmt.Sprintf(`sum(devteam_llm_tokens_total{%s, type="completion"})`, selector))
	if err != nil {
		return nil, fmt.Errorf("failed to query completion tokens: %w", err)
	}
	cost, err := q.scalar(ctx, fmt.Sprintf(`sum(devteam_llm_costs_total{%s})`, selector))
	if err != nil {
		return nil, fmt.Errorf("failed to query total cost: %w", err)
	}

	m.PromptTokens = int64(prompt)
	m.CompletionTokens = int64(completion)
	m.TotalTokens = m.PromptTokens + m.CompletionTokens
	m.TotalCost = cost
	return m, nil
}

// GetRunMetrics returns token and cost totals for a run, summed across all
// agents and models.
func (q *QueryService) GetRunMetrics(ctx context.Context, runID string) (*RunMetrics, error) {
	return q.collect(ctx, runID, fmt.Sprintf(`run_id=%q`, runID))
}

// GetRunMetricsByModel breaks the run's totals down per model, showing which
// models carried the run and what each one cost.
func (q *QueryService) GetRunMetricsByModel(ctx context.Context, runID string) (map[string]*RunMetrics, error) {
	modelsResult, _, err := q.queryAPI.Query(ctx,
		fmt.Sprintf(`group by (model) (devteam_llm_tokens_total{run_id=%q})`, runID), time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to query models: %w", err)
	}

	byModel := make(map[string]*RunMetrics)
	vector, ok := modelsResult.(model.Vector)
	if !ok {
		return byModel, nil
	}

	for _, sample := range vector {
		name, ok := sample.Metric["model"]
		if !ok {
			continue
		}
		selector := fmt.Sprintf(`run_id=%q, model=%q`, runID, string(name))
		m, err := q.collect(ctx, runID, selector)
		if err != nil {
			return nil, fmt.Errorf("model %s: %w", name, err)
		}
		byModel[string(name)] = m
	}
	return byModel, nil
}
