package github

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// PullRequest represents a GitHub pull request.
// Field names match gh CLI --json output (GraphQL field names).
//
//nolint:govet // Logical grouping preferred over memory optimization
type PullRequest struct {
	Number      int    `json:"number"`
	URL         string `json:"url"`
	Title       string `json:"title"`
	State       string `json:"state"`       // OPEN, CLOSED, MERGED
	HeadRefName string `json:"headRefName"` // Branch name (gh CLI)
	HeadRefOid  string `json:"headRefOid"`  // Commit SHA (gh CLI)
	BaseRefName string `json:"baseRefName"` // Target branch name (gh CLI)
	Closed      bool   `json:"closed"`      // Whether PR is closed
	MergedAt    string `json:"mergedAt"`    // Non-empty if merged
}

// IsMerged returns true if the PR has been merged.
func (pr *PullRequest) IsMerged() bool {
	return pr.MergedAt != ""
}

// PRFile represents one file changed in a pull request, as returned by the
// pulls/{n}/files REST endpoint. Patch carries the unified diff for the file
// (absent for binary files).
//
//nolint:govet // fieldalignment: API response struct, field order matches API
type PRFile struct {
	Filename  string `json:"filename"`
	Status    string `json:"status"` // added, modified, removed, renamed
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
	Patch     string `json:"patch"`
	SHA       string `json:"sha"` // Blob SHA of the file's head version
}

// IssueComment represents a conversation comment on a pull request.
//
//nolint:govet // fieldalignment: API response struct, field order matches API
type IssueComment struct {
	ID        int64     `json:"id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
	User      struct {
		Login string `json:"login"`
	} `json:"user"`
}

// GetPR retrieves a pull request by number.
func (c *Client) GetPR(ctx context.Context, prNumber int) (*PullRequest, error) {
	args := []string{
		"pr", "view", strconv.Itoa(prNumber),
		"--repo", c.RepoPath(),
		"--json", "number,url,title,state,headRefName,headRefOid,baseRefName,closed,mergedAt",
	}

	var pr PullRequest
	if err := c.runJSON(ctx, &pr, args...); err != nil {
		return nil, fmt.Errorf("failed to get PR #%d: %w", prNumber, err)
	}

	return &pr, nil
}

// ListPRsForBranch lists open pull requests for a specific head branch.
func (c *Client) ListPRsForBranch(ctx context.Context, branch string) ([]PullRequest, error) {
	args := []string{
		"pr", "list",
		"--repo", c.RepoPath(),
		"--head", branch,
		"--json", "number,url,title,state,headRefName,headRefOid,baseRefName,closed,mergedAt",
	}

	var prs []PullRequest
	if err := c.runJSON(ctx, &prs, args...); err != nil {
		return nil, fmt.Errorf("failed to list PRs for branch %s: %w", branch, err)
	}

	return prs, nil
}

// ListPRFiles retrieves the files changed in a pull request, with their
// unified diffs.
func (c *Client) ListPRFiles(ctx context.Context, prNumber int) ([]PRFile, error) {
	endpoint := fmt.Sprintf("/repos/%s/pulls/%d/files?per_page=100", c.RepoPath(), prNumber)
	output, err := c.APIGet(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to list files for PR #%d: %w", prNumber, err)
	}

	var files []PRFile
	if err := json.Unmarshal(output, &files); err != nil {
		return nil, fmt.Errorf("failed to parse PR files: %w\nOutput: %s", err, string(output))
	}

	return files, nil
}

// GetFileContent fetches the raw content of a file at a specific ref.
// The raw media type avoids the base64 round-trip of the default response.
func (c *Client) GetFileContent(ctx context.Context, path, ref string) (string, error) {
	endpoint := fmt.Sprintf("/repos/%s/contents/%s", c.RepoPath(), path)
	if ref != "" {
		endpoint += "?ref=" + ref
	}

	args := []string{"api", "-H", "Accept: application/vnd.github.raw+json", endpoint}
	output, err := c.run(ctx, args...)
	if err != nil {
		return "", fmt.Errorf("failed to fetch content of %s@%s: %w", path, ref, err)
	}

	return string(output), nil
}

// CreateIssueComment posts a conversation comment on a pull request.
// PR conversation comments live on the issues endpoint.
func (c *Client) CreateIssueComment(ctx context.Context, prNumber int, body string) error {
	endpoint := fmt.Sprintf("/repos/%s/issues/%d/comments", c.RepoPath(), prNumber)
	if _, err := c.APIPost(ctx, endpoint, map[string]interface{}{"body": body}); err != nil {
		return fmt.Errorf("failed to comment on PR #%d: %w", prNumber, err)
	}
	return nil
}

// ListIssueComments retrieves the conversation comments on a pull request.
func (c *Client) ListIssueComments(ctx context.Context, prNumber int) ([]IssueComment, error) {
	endpoint := fmt.Sprintf("/repos/%s/issues/%d/comments", c.RepoPath(), prNumber)
	output, err := c.APIGet(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to get comments on PR #%d: %w", prNumber, err)
	}

	var comments []IssueComment
	if err := json.Unmarshal(output, &comments); err != nil {
		return nil, fmt.Errorf("failed to parse comments: %w", err)
	}

	return comments, nil
}
