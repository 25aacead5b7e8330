// Package docker wraps the local container engine CLI for image builds and
// existence checks. All invocations are argv-style (no shell interpolation).
package docker

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"

	"devopsteam/pkg/logx"
)

// availableProbeTimeout bounds the daemon liveness check.
const availableProbeTimeout = 5 * time.Second

// Client runs docker (or podman) commands against the local engine.
type Client struct {
	logger    *logx.Logger
	dockerCmd string
}

// BuildResult captures the outcome of an image build.
type BuildResult struct {
	Output   string        // Combined stdout+stderr from the build
	ExitCode int           // 0 on success
	Duration time.Duration // Wall-clock build time
}

// Succeeded reports whether the build exited cleanly.
func (r *BuildResult) Succeeded() bool {
	return r.ExitCode == 0
}

// NewClient creates a docker client, preferring docker and falling back to
// podman when only podman is installed.
func NewClient() *Client {
	dockerCmd := "docker"
	if _, err := exec.LookPath("podman"); err == nil {
		if _, err := exec.LookPath("docker"); err != nil {
			dockerCmd = "podman"
		}
	}

	return &Client{
		logger:    logx.NewLogger("docker"),
		dockerCmd: dockerCmd,
	}
}

// Command returns the engine binary this client invokes (docker or podman).
func (c *Client) Command() string {
	return c.dockerCmd
}

// Available checks that the engine binary is on PATH and the daemon answers.
func (c *Client) Available() bool {
	if _, err := exec.LookPath(c.dockerCmd); err != nil {
		c.logger.Debug("Docker command not found: %v", err)
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), availableProbeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.dockerCmd, "ps", "-q")
	if err := cmd.Run(); err != nil {
		c.logger.Debug("Docker daemon not available: %v", err)
		return false
	}

	return true
}

// Build runs `docker build -t <tag> <dir>` and captures the combined output.
// A non-zero exit code is reported in the result, not as an error: build
// failures are an expected outcome the caller records and continues from.
// The error return is reserved for the engine being unreachable.
func (c *Client) Build(ctx context.Context, tag, dir string) (*BuildResult, error) {
	start := time.Now()

	cmd := exec.CommandContext(ctx, c.dockerCmd, "build", "-t", tag, dir)
	configureProcessGroup(cmd)

	c.logger.Debug("Executing: %s %s", c.dockerCmd, strings.Join(cmd.Args[1:], " "))
	output, err := cmd.CombinedOutput()

	result := &BuildResult{
		Output:   string(output),
		Duration: time.Since(start),
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			c.logger.Debug("Build of %s exited with code %d", tag, result.ExitCode)
			return result, nil
		}
		// Binary missing, context cancelled, or the daemon dropped the
		// connection: there is no build outcome to report.
		return nil, logx.Wrap(err, "docker build failed to run")
	}

	return result, nil
}

// Inspect reports whether an image with the given tag exists locally.
// The error return is reserved for the engine being unreachable.
func (c *Client) Inspect(ctx context.Context, tag string) (bool, error) {
	cmd := exec.CommandContext(ctx, c.dockerCmd, "inspect", tag)

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// Non-zero exit means the image is not in the local store.
			return false, nil
		}
		return false, logx.Wrap(err, "docker inspect failed to run")
	}

	return true, nil
}

// RemoveImage deletes a local image by tag. Missing images are not an error.
func (c *Client) RemoveImage(ctx context.Context, tag string) error {
	cmd := exec.CommandContext(ctx, c.dockerCmd, "rmi", "-f", tag)
	output, err := cmd.CombinedOutput()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			c.logger.Debug("rmi %s exited with code %d: %s", tag, exitErr.ExitCode(), string(output))
			return nil
		}
		return logx.Wrap(err, "docker rmi failed to run")
	}
	return nil
}
