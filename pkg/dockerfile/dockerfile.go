// Package dockerfile implements the Dockerfile agent: it generates a
// Dockerfile for the project's static site, optionally refining the scaffold
// through an LLM.
package dockerfile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"devopsteam/pkg/agent/llm"
	"devopsteam/pkg/config"
	"devopsteam/pkg/logx"
	"devopsteam/pkg/templates"
	"devopsteam/pkg/utils"
)

// Artifact is a generated Dockerfile plus the refinement notes, when an LLM
// pass ran.
type Artifact struct {
	Content string
	Notes   string
	Refined bool
}

// Agent generates the project Dockerfile.
type Agent struct {
	cfg      config.Config
	client   llm.LLMClient // nil means scaffold-only generation
	renderer *templates.Renderer
	logger   *logx.Logger
}

// NewAgent creates a Dockerfile agent. The client may be nil, in which case
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
		logger:   logx.NewLogger("dockerfile"),
	}, nil
}

// Generate produces the Dockerfile content. The scaffold is always rendered
// and validated first; when an LLM client is available it gets one refinement
// pass, and any refinement failure falls back to the valid scaffold.
func (a *Agent) Generate(ctx context.Context) (*Artifact, error) {
	scaffold, err := a.renderer.Render(templates.DockerfileScaffold, &templates.Data{
		BaseImage:  a.cfg.Docker.BaseImage,
		WorkDir:    a.cfg.Docker.AppDir,
		CopySource: a.cfg.Docker.HTMLDir,
		ExposePort: a.cfg.Docker.Port,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render Dockerfile scaffold: %w", err)
	}

	if err := Validate(scaffold, a.cfg.Docker.BaseImage); err != nil {
		return nil, fmt.Errorf("Dockerfile scaffold is invalid: %w", err)
	}

	if a.client == nil {
		return &Artifact{Content: scaffold}, nil
	}

	refined, notes, err := a.refine(ctx, scaffold)
	if err != nil {
		a.logger.Warn("Dockerfile refinement failed, keeping scaffold: %v", err)
		return &Artifact{Content: scaffold}, nil
	}

	return &Artifact{Content: refined, Notes: notes, Refined: true}, nil
}

// refine runs one LLM improvement pass over the scaffold. The refined output
// must keep the configured base image or the pass is rejected.
func (a *Agent) refine(ctx context.Context, draft string) (content, notes string, err error) {
	prompt, err := a.renderer.Render(templates.DockerfileRefine, &templates.Data{
		Draft:     draft,
		BaseImage: a.cfg.Docker.BaseImage,
	})
	if err != nil {
		return "", "", fmt.Errorf("failed to render refinement prompt: %w", err)
	}

	resp, err := a.client.Complete(ctx, llm.CompletionRequest{
		Messages: []llm.CompletionMessage{
			llm.NewSystemMessage("You are a containerization assistant that improves Dockerfiles."),
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

	if err := Validate(refinement.Content, a.cfg.Docker.BaseImage); err != nil {
		return "", "", fmt.Errorf("refined Dockerfile is invalid: %w", err)
	}

	return refinement.Content, refinement.Notes, nil
}

// Validate checks that the content is a plausible Dockerfile: non-empty, and
// its first instruction is FROM the expected base image (comments and ARG
// lines before FROM are allowed, as Docker itself permits them).
func Validate(content, baseImage string) error {
	var firstInstruction string
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		if strings.HasPrefix(strings.ToUpper(trimmed), "ARG ") {
			continue
		}
		firstInstruction = trimmed
		break
	}

	if firstInstruction == "" {
		return fmt.Errorf("Dockerfile is empty")
	}
	if !strings.HasPrefix(strings.ToUpper(firstInstruction), "FROM ") {
		return fmt.Errorf("first instruction must be FROM, got %q", firstInstruction)
	}
	if baseImage != "" && !strings.Contains(firstInstruction, baseImage) {
		return fmt.Errorf("FROM instruction %q does not use base image %s", firstInstruction, baseImage)
	}

	return nil
}

// Write stores the Dockerfile in the project directory and returns the
// written path.
func (a *Agent) Write(projectDir string, artifact *Artifact) (string, error) {
	path := filepath.Join(projectDir, a.cfg.Docker.Dockerfile)
	if dir := filepath.Dir(path); dir != projectDir {
		if err := utils.EnsureDir(dir); err != nil {
			return "", fmt.Errorf("failed to create Dockerfile directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(artifact.Content), 0644); err != nil {
		return "", fmt.Errorf("failed to write Dockerfile: %w", err)
	}

	a.logger.Info("Dockerfile written to %s", path)
	return path, nil
}

// Exists reports whether the Dockerfile is already present in the project.
func Exists(projectDir string, cfg *config.DockerConfig) bool {
	return utils.FileExists(filepath.Join(projectDir, cfg.Dockerfile))
}
