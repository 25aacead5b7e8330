// Package pipeline implements the GitHub Actions agent: it generates the CI/CD
// workflow for a project, optionally refining the scaffold through an LLM.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"devopsteam/pkg/agent/llm"
	"devopsteam/pkg/config"
	"devopsteam/pkg/logx"
	"devopsteam/pkg/templates"
	"devopsteam/pkg/utils"
)

// WorkflowsDir is the directory workflows are written to, relative to the
// project root.
const WorkflowsDir = ".github/workflows"

// Artifact is a generated workflow plus the refinement notes, when an LLM
// pass ran.
type Artifact struct {
	Content string
	Notes   string
	Refined bool
}

// Agent generates the GitHub Actions workflow.
type Agent struct {
	cfg      config.Config
	client   llm.LLMClient // nil means scaffold-only generation
	renderer *templates.Renderer
	logger   *logx.Logger
}

// NewAgent creates a pipeline agent. The client may be nil, in which case
// Generate returns the rendered scaffold without an LLM refinement pass.
func NewAgent(cfg config.Config, client llm.LLMClient) (*Agent, error) {
	renderer, err := templates.NewRenderer()
	if err != nil {
		return nil, fmt.Errorf("failed to create template renderer: %w", err)
	}

	return &Agent{
		cfg:      cfg,
		client:   client,
		renderer: renderer,
		logger:   logx.NewLogger("pipeline"),
	}, nil
}

// Generate produces the workflow content. The scaffold is always rendered and
// validated first; when an LLM client is available it gets one refinement pass,
// and any refinement failure falls back to the valid scaffold.
func (a *Agent) Generate(ctx context.Context) (*Artifact, error) {
	scaffold, err := a.renderer.Render(templates.WorkflowScaffold, &templates.Data{
		WorkflowName:  a.cfg.Workflow.Name,
		PythonVersion: a.cfg.Workflow.PythonVersion,
		TargetBranch:  a.cfg.Workflow.TargetBranch,
		RunTests:      a.cfg.Workflow.RunTests,
		ImageTag:      a.cfg.Docker.ImageTag,
		ExposePort:    a.cfg.Docker.Port,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render workflow scaffold: %w", err)
	}

	if err := ValidateWorkflowYAML(scaffold); err != nil {
		return nil, fmt.Errorf("workflow scaffold is not valid YAML: %w", err)
	}

	if a.client == nil {
		return &Artifact{Content: scaffold}, nil
	}

	refined, notes, err := a.refine(ctx, scaffold)
	if err != nil {
		a.logger.Warn("Workflow refinement failed, keeping scaffold: %v", err)
		return &Artifact{Content: scaffold}, nil
	}

	return &Artifact{Content: refined, Notes: notes, Refined: true}, nil
}

// refine runs one LLM improvement pass over the scaffold. The refined output
// must itself be valid YAML or the pass is rejected.
func (a *Agent) refine(ctx context.Context, draft string) (content, notes string, err error) {
	prompt, err := a.renderer.Render(templates.WorkflowRefine, &templates.Data{Draft: draft})
	if err != nil {
		return "", "", fmt.Errorf("failed to render refinement prompt: %w", err)
	}

	resp, err := a.client.Complete(ctx, llm.CompletionRequest{
		Messages: []llm.CompletionMessage{
			llm.NewSystemMessage("You are a CI/CD assistant that improves GitHub Actions workflows."),
			llm.NewUserMessage(prompt),
		},
		ResponseFormat: llm.FormatJSON,
		MaxTokens:      llm.DefaultMaxTokens,
		Temperature:    llm.TemperatureDeterministic,
	})
	if err != nil {
		return "", "", err
	}

	var refinement struct {
		Content string `json:"content"`
		Notes   string `json:"notes"`
	}
	if err := utils.DecodeModelJSON(resp.Content, &refinement); err != nil {
		return "", "", err
	}
	if strings.TrimSpace(refinement.Content) == "" {
		return "", "", fmt.Errorf("refinement returned empty workflow")
	}

	if err := ValidateWorkflowYAML(refinement.Content); err != nil {
		return "", "", fmt.Errorf("refined workflow is not valid YAML: %w", err)
	}

	return refinement.Content, refinement.Notes, nil
}

// ValidateWorkflowYAML checks that the content parses as a YAML mapping with
// the keys a GitHub Actions workflow needs.
func ValidateWorkflowYAML(content string) error {
	var doc map[string]any
	if err := yaml.Unmarshal([]byte(content), &doc); err != nil {
		return fmt.Errorf("yaml parse error: %w", err)
	}

	if len(doc) == 0 {
		return fmt.Errorf("workflow is empty")
	}
	// yaml.v3 parses the bare `on:` trigger key as the boolean true, which
	// stringifies to "true" when decoded into a string-keyed map.
	_, hasOn := doc["on"]
	_, hasTrue := doc["true"]
	if !hasOn && !hasTrue {
		return fmt.Errorf("workflow has no trigger (on) section")
	}
	if _, ok := doc["jobs"]; !ok {
		return fmt.Errorf("workflow has no jobs section")
	}

	return nil
}

// WorkflowFilename returns the workflow filename: the configured file when
// set, otherwise derived from the workflow name.
func WorkflowFilename(cfg *config.WorkflowConfig) string {
	if cfg.File != "" {
		return cfg.File
	}
	name := strings.ToLower(utils.SanitizeIdentifier(cfg.Name))
	if name == "" {
		return config.DefaultWorkflowFile
	}
	return name + ".yml"
}

// Write stores the workflow under .github/workflows in the project directory
// and returns the written path.
func (a *Agent) Write(projectDir string, artifact *Artifact) (string, error) {
	dir := filepath.Join(projectDir, WorkflowsDir)
	if err := utils.EnsureDir(dir); err != nil {
		return "", fmt.Errorf("failed to create workflows directory: %w", err)
	}

	path := filepath.Join(dir, WorkflowFilename(a.cfg.Workflow))
	if err := os.WriteFile(path, []byte(artifact.Content), 0644); err != nil {
		return "", fmt.Errorf("failed to write workflow: %w", err)
	}

	a.logger.Info("Workflow written to %s", path)
	return path, nil
}

// Exists reports whether the workflow file is already present in the project.
func Exists(projectDir string, cfg *config.WorkflowConfig) bool {
	return utils.FileExists(filepath.Join(projectDir, WorkflowsDir, WorkflowFilename(cfg)))
}
