// Package buildstatus implements the build status agent: it builds the
// project's Docker image and reports whether the tagged image exists locally.
package buildstatus

import (
	"context"
	"fmt"

	"devopsteam/pkg/config"
	"devopsteam/pkg/docker"
	"devopsteam/pkg/logx"
)

// Agent builds the Docker image and checks its existence.
type Agent struct {
	cfg    config.Config
	engine *docker.Client
	logger *logx.Logger
}

// NewAgent creates a build status agent backed by the local container engine.
func NewAgent(cfg config.Config) *Agent {
	return &Agent{
		cfg:    cfg,
		engine: docker.NewClient(),
		logger: logx.NewLogger("buildstatus"),
	}
}

// EngineAvailable reports whether a container engine is usable. Build and
// Check fail with a clear error when it is not, so callers can skip the stage.
func (a *Agent) EngineAvailable() bool {
	return a.engine.Available()
}

// Build runs a docker build of the project directory tagged with the
// configured image tag. A failed build is returned as a result with the
// build output, not as an error.
func (a *Agent) Build(ctx context.Context, projectDir string) (*docker.BuildResult, error) {
	tag := a.cfg.Docker.ImageTag
	a.logger.Info("Building image %s from %s", tag, projectDir)

	result, err := a.engine.Build(ctx, tag, projectDir)
	if err != nil {
		return nil, fmt.Errorf("failed to run docker build: %w", err)
	}

	if result.Succeeded() {
		a.logger.Info("Image %s built in %s", tag, result.Duration)
	} else {
		a.logger.Warn("Build of %s failed with exit code %d", tag, result.ExitCode)
	}

	return result, nil
}

// Check reports whether the configured image tag exists locally. The returned
// string is the status message posted by the orchestrator.
func (a *Agent) Check(ctx context.Context) (string, error) {
	tag := a.cfg.Docker.ImageTag

	exists, err := a.engine.Inspect(ctx, tag)
	if err != nil {
		return "", fmt.Errorf("failed to inspect image %s: %w", tag, err)
	}

	return StatusMessage(tag, exists), nil
}

// StatusMessage formats the build status line for an image tag.
func StatusMessage(tag string, exists bool) string {
	if exists {
		return fmt.Sprintf("Docker image '%s' exists.", tag)
	}
	return fmt.Sprintf("Docker image '%s' does not exist.", tag)
}
