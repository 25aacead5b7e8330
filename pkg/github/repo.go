package github

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
)

// Repository holds the repository metadata the tool cares about.
type Repository struct {
	Name          string `json:"name"`
	FullName      string `json:"full_name"`
	DefaultBranch string `json:"default_branch"`
	Private       bool   `json:"private"`
	Archived      bool   `json:"archived"`
}

// GetRepository retrieves repository information.
func (c *Client) GetRepository(ctx context.Context) (*Repository, error) {
	endpoint := fmt.Sprintf("/repos/%s", c.RepoPath())
	output, err := c.APIGet(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to get repository: %w", err)
	}

	var repo Repository
	if err := json.Unmarshal(output, &repo); err != nil {
		return nil, fmt.Errorf("failed to parse repository: %w", err)
	}

	return &repo, nil
}

// RepoExists checks if the repository exists and is accessible.
func (c *Client) RepoExists(ctx context.Context) bool {
	args := []string{"repo", "view", c.RepoPath(), "--json", "name"}
	_, err := c.run(ctx, args...)
	return err == nil
}

// ResolveClient builds a client for the given "owner/repo" override, or by
// reading the origin remote of the git checkout in projectDir when the
// override is empty.
func ResolveClient(ctx context.Context, projectDir, repoOverride string) (*Client, error) {
	if repoOverride != "" {
		parts := strings.Split(repoOverride, "/")
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("repository must be in owner/repo form, got %q", repoOverride)
		}
		return NewClient(parts[0], parts[1]), nil
	}

	remoteURL, err := originRemoteURL(ctx, projectDir)
	if err != nil {
		return nil, err
	}

	client, err := NewClientFromRemote(remoteURL)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve repository from remote %q: %w", remoteURL, err)
	}
	return client, nil
}

// CurrentBranch reads the checked-out branch of the git checkout in projectDir.
func CurrentBranch(ctx context.Context, projectDir string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", "rev-parse", "--abbrev-ref", "HEAD")
	cmd.Dir = projectDir
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("failed to read current branch (is %s a git checkout?): %w\nOutput: %s",
			projectDir, err, strings.TrimSpace(string(output)))
	}
	return strings.TrimSpace(string(output)), nil
}

// originRemoteURL reads the origin remote URL of the git checkout.
func originRemoteURL(ctx context.Context, projectDir string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", "remote", "get-url", "origin")
	cmd.Dir = projectDir
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("failed to read origin remote (is %s a git checkout?): %w\nOutput: %s",
			projectDir, err, strings.TrimSpace(string(output)))
	}
	return strings.TrimSpace(string(output)), nil
}
