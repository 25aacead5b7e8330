// Package predictor implements the build predictor agent: it collects build
// signals from the project and asks an LLM whether the next build might fail.
package predictor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"devopsteam/pkg/agent/llm"
	"devopsteam/pkg/config"
	"devopsteam/pkg/dockerfile"
	"devopsteam/pkg/logx"
	"devopsteam/pkg/pipeline"
	"devopsteam/pkg/templates"
)

// SystemPrompt frames the prediction task for the model.
const SystemPrompt = "You are a build failure prediction assistant. Analyze the build data and predict if the build might fail."

// MaxPredictionTokens bounds the prediction response.
const MaxPredictionTokens = 1024

// BuildData holds the signals the predictor reasons about. Field names are
// part of the prompt contract.
type BuildData struct {
	DockerfileExists    bool   `json:"dockerfile_exists"`
	CIPipelineExists    bool   `json:"ci_pipeline_exists"`
	LastBuildStatus     string `json:"last_build_status"`
	PythonVersion       string `json:"python_version"`
	DependenciesUpdated bool   `json:"dependencies_updated"`
}

// Collect gathers build signals from the project directory. lastBuildStatus
// is the status line reported by the build status agent, empty if unknown.
func Collect(cfg config.Config, projectDir, lastBuildStatus string) BuildData {
	return BuildData{
		DockerfileExists:    dockerfile.Exists(projectDir, cfg.Docker),
		CIPipelineExists:    pipeline.Exists(projectDir, cfg.Workflow),
		LastBuildStatus:     lastBuildStatus,
		PythonVersion:       cfg.Workflow.PythonVersion,
		DependenciesUpdated: false, // No dependency tracking yet
	}
}

// Agent predicts build failures from collected build data.
type Agent struct {
	client   llm.LLMClient
	renderer *templates.Renderer
	logger   *logx.Logger
}

// NewAgent creates a build predictor agent.
func NewAgent(client llm.LLMClient) (*Agent, error) {
	renderer, err := templates.NewRenderer()
	if err != nil {
		return nil, fmt.Errorf("failed to create template renderer: %w", err)
	}

	return &Agent{
		client:   client,
		renderer: renderer,
		logger:   logx.NewLogger("predictor"),
	}, nil
}

// Predict asks the model whether the build might fail given the build data.
// The prediction is free-form text from the model.
func (a *Agent) Predict(ctx context.Context, data BuildData) (string, error) {
	encoded, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("failed to encode build data: %w", err)
	}

	prompt, err := a.renderer.Render(templates.PredictorPrompt, &templates.Data{
		BuildData: string(encoded),
	})
	if err != nil {
		return "", fmt.Errorf("failed to render predictor prompt: %w", err)
	}

	resp, err := a.client.Complete(ctx, llm.CompletionRequest{
		Messages: []llm.CompletionMessage{
			llm.NewSystemMessage(SystemPrompt),
			llm.NewUserMessage(prompt),
		},
		MaxTokens:   MaxPredictionTokens,
		Temperature: llm.TemperatureExploratory,
	})
	if err != nil {
		return "", fmt.Errorf("prediction request failed: %w", err)
	}

	prediction := strings.TrimSpace(resp.Content)
	if prediction == "" {
		return "", fmt.Errorf("model returned an empty prediction")
	}

	a.logger.Debug("Prediction (%d prompt / %d completion tokens)",
		resp.Usage.PromptTokens, resp.Usage.CompletionTokens)

	return prediction, nil
}
