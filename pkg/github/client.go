// Package github provides the GitHub operations the agents need, implemented
// over the gh CLI. All operations run on the host since they are pure API calls;
// gh authenticates via GH_TOKEN/GITHUB_TOKEN.
package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"devopsteam/pkg/logx"
)

// DefaultTimeout bounds a single gh invocation.
const DefaultTimeout = 30 * time.Second

// Sentinel errors for the failure modes callers branch on.
var (
	// ErrNoPR indicates the referenced pull request does not exist.
	ErrNoPR = errors.New("pull request not found")
	// ErrAuth indicates gh is not authenticated or the token lacks access.
	ErrAuth = errors.New("github authentication failed")
)

// GitHubClient defines the GitHub operations used by the review and chat
// agents and the status command. The interface enables fakes in tests.
//
//nolint:revive // Name kept despite package stutter; "Client" is the implementation
type GitHubClient interface {
	// PR operations
	GetPR(ctx context.Context, prNumber int) (*PullRequest, error)
	ListPRFiles(ctx context.Context, prNumber int) ([]PRFile, error)
	GetFileContent(ctx context.Context, path, ref string) (string, error)

	// Issue-comment operations (PR conversation comments)
	CreateIssueComment(ctx context.Context, prNumber int, body string) error
	ListIssueComments(ctx context.Context, prNumber int) ([]IssueComment, error)

	// Workflow/Actions operations
	GetPRWorkflowStatus(ctx context.Context, prNumber int) (*WorkflowStatus, error)

	// Configuration
	RepoPath() string
}

// Client provides GitHub API operations via the gh CLI.
// Client implements the GitHubClient interface.
//
//nolint:govet // Logical grouping preferred over memory optimization
type Client struct {
	owner   string
	repo    string
	logger  *logx.Logger
	timeout time.Duration
}

// NewClient creates a new GitHub client for the specified repository.
func NewClient(owner, repo string) *Client {
	return &Client{
		owner:   owner,
		repo:    repo,
		logger:  logx.NewLogger("github"),
		timeout: DefaultTimeout,
	}
}

// NewClientFromRemote creates a GitHub client by parsing a git remote URL.
func NewClientFromRemote(remoteURL string) (*Client, error) {
	owner, repo, err := ParseGitHubURL(remoteURL)
	if err != nil {
		return nil, err
	}
	return NewClient(owner, repo), nil
}

// WithTimeout returns a new client with the specified timeout.
func (c *Client) WithTimeout(timeout time.Duration) *Client {
	return &Client{
		owner:   c.owner,
		repo:    c.repo,
		logger:  c.logger,
		timeout: timeout,
	}
}

// Owner returns the repository owner.
func (c *Client) Owner() string {
	return c.owner
}

// Repo returns the repository name.
func (c *Client) Repo() string {
	return c.repo
}

// RepoPath returns the owner/repo path.
func (c *Client) RepoPath() string {
	return fmt.Sprintf("%s/%s", c.owner, c.repo)
}

// API executes a GitHub API call and returns the raw response.
func (c *Client) API(ctx context.Context, method, endpoint string, fields map[string]interface{}) ([]byte, error) {
	args := []string{"api", "-X", method, endpoint}

	for key, value := range fields {
		switch v := value.(type) {
		case bool:
			args = append(args, "-f", fmt.Sprintf("%s=%t", key, v))
		case string:
			args = append(args, "-f", fmt.Sprintf("%s=%s", key, v))
		case int, int64:
			args = append(args, "-f", fmt.Sprintf("%s=%d", key, v))
		default:
			args = append(args, "-f", fmt.Sprintf("%s=%v", key, v))
		}
	}

	return c.run(ctx, args...)
}

// APIGet executes a GET request to the GitHub API.
func (c *Client) APIGet(ctx context.Context, endpoint string) ([]byte, error) {
	return c.API(ctx, "GET", endpoint, nil)
}

// APIPost executes a POST request to the GitHub API.
func (c *Client) APIPost(ctx context.Context, endpoint string, fields map[string]interface{}) ([]byte, error) {
	return c.API(ctx, "POST", endpoint, fields)
}

// run executes a gh command and returns the output.
func (c *Client) run(ctx context.Context, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	c.logger.Debug("Executing: gh %s", strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, "gh", args...)
	output, err := cmd.CombinedOutput()

	if err != nil {
		c.logger.Debug("Command failed: %v, output: %s", err, string(output))
		return nil, classifyRunError(err, output)
	}

	return output, nil
}

// runJSON executes a gh command and unmarshals the JSON response.
func (c *Client) runJSON(ctx context.Context, result interface{}, args ...string) error {
	output, err := c.run(ctx, args...)
	if err != nil {
		return err
	}

	if len(output) == 0 {
		return nil // Empty response is valid for some operations
	}

	if err := json.Unmarshal(output, result); err != nil {
		return fmt.Errorf("failed to parse JSON response: %w\nOutput: %s", err, string(output))
	}

	return nil
}

// classifyRunError maps gh CLI failures to the sentinel errors callers
// branch on. gh writes HTTP status info to the combined output.
func classifyRunError(err error, output []byte) error {
	lower := strings.ToLower(string(output))

	switch {
	case strings.Contains(lower, "could not resolve to a pullrequest"),
		strings.Contains(lower, "no pull requests found"),
		strings.Contains(lower, "not found (http 404)"):
		return fmt.Errorf("%w: %s", ErrNoPR, strings.TrimSpace(string(output)))
	case strings.Contains(lower, "http 401"),
		strings.Contains(lower, "http 403"),
		strings.Contains(lower, "gh auth login"),
		strings.Contains(lower, "bad credentials"):
		return fmt.Errorf("%w: %s", ErrAuth, strings.TrimSpace(string(output)))
	default:
		return fmt.Errorf("gh command failed: %w\nOutput: %s", err, string(output))
	}
}

// ParseGitHubURL extracts owner and repo from an SSH
// (git@github.com:owner/repo.git) or HTTPS (https://github.com/owner/repo)
// remote URL.
func ParseGitHubURL(url string) (owner, repo string, err error) {
	var path string
	switch {
	case strings.HasPrefix(url, "git@github.com:"):
		path = strings.TrimPrefix(url, "git@github.com:")
	case strings.HasPrefix(url, "https://github.com/"):
		path = strings.TrimPrefix(url, "https://github.com/")
	default:
		return "", "", fmt.Errorf("unsupported Git URL format: %s", url)
	}

	parts := strings.Split(strings.TrimSuffix(path, ".git"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GitHub URL format: %s", url)
	}
	return parts[0], parts[1], nil
}

// CheckAuth verifies that gh CLI is authenticated.
func CheckAuth(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, "gh", "auth", "status")
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", ErrAuth, strings.TrimSpace(string(output)))
	}
	return nil
}
