package github

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	// WorkflowStateSuccess represents a successful workflow state.
	WorkflowStateSuccess = "success"
	// WorkflowStateFailure represents a failed workflow state.
	WorkflowStateFailure = "failure"
	// WorkflowStatePending represents a pending workflow state.
	WorkflowStatePending = "pending"
)

// WorkflowRun represents a GitHub Actions workflow run.
//
//nolint:govet // Logical grouping preferred over memory optimization
type WorkflowRun struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	HeadBranch string `json:"head_branch"`
	HeadSHA    string `json:"head_sha"`
	Status     string `json:"status"`     // queued, in_progress, completed
	Conclusion string `json:"conclusion"` // success, failure, cancelled, skipped, etc.
	URL        string `json:"html_url"`
	RunNumber  int    `json:"run_number"`
	Event      string `json:"event"`
}

// workflowRunsResponse is the API envelope for listing workflow runs.
type workflowRunsResponse struct {
	TotalCount   int           `json:"total_count"`
	WorkflowRuns []WorkflowRun `json:"workflow_runs"`
}

// WorkflowStatus is the success/failure/pending rollup of all workflow runs
// for one commit.
//
//nolint:govet // Logical grouping preferred over memory optimization
type WorkflowStatus struct {
	State      string   // pending, success, failure
	TotalRuns  int      // Total number of workflow runs
	Successful int      // Number of successful runs
	Failed     int      // Number of failed runs
	Pending    int      // Number of pending/in-progress runs
	FailedRuns []string // Names of failed workflow runs
}

// Summary formats the rollup for CLI output.
func (s *WorkflowStatus) Summary() string {
	var b strings.Builder
	switch s.State {
	case WorkflowStateSuccess:
		b.WriteString("✅ all checks passing")
	case WorkflowStateFailure:
		b.WriteString("❌ checks failing")
	default:
		b.WriteString("⏳ checks pending")
	}
	fmt.Fprintf(&b, " (%d runs: %d ok, %d failed, %d pending)",
		s.TotalRuns, s.Successful, s.Failed, s.Pending)
	if len(s.FailedRuns) > 0 {
		fmt.Fprintf(&b, "\n   failed: %s", strings.Join(s.FailedRuns, ", "))
	}
	return b.String()
}

// GetWorkflowRunsForRef retrieves workflow runs for a commit SHA.
func (c *Client) GetWorkflowRunsForRef(ctx context.Context, ref string) ([]WorkflowRun, error) {
	endpoint := fmt.Sprintf("/repos/%s/actions/runs?head_sha=%s", c.RepoPath(), ref)
	output, err := c.APIGet(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to get workflow runs for ref %s: %w", ref, err)
	}

	var response workflowRunsResponse
	if err := json.Unmarshal(output, &response); err != nil {
		return nil, fmt.Errorf("failed to parse workflow runs: %w", err)
	}

	return response.WorkflowRuns, nil
}

// GetWorkflowStatus returns the rollup of all workflow runs for a commit.
func (c *Client) GetWorkflowStatus(ctx context.Context, commitSHA string) (*WorkflowStatus, error) {
	runs, err := c.GetWorkflowRunsForRef(ctx, commitSHA)
	if err != nil {
		return nil, err
	}
	return RollupWorkflowRuns(runs), nil
}

// RollupWorkflowRuns aggregates individual workflow runs into an overall
// state. No runs counts as success (no checks required).
func RollupWorkflowRuns(runs []WorkflowRun) *WorkflowStatus {
	status := &WorkflowStatus{
		TotalRuns:  len(runs),
		FailedRuns: []string{},
	}

	if len(runs) == 0 {
		status.State = WorkflowStateSuccess
		return status
	}

	//nolint:gocritic // rangeValCopy: WorkflowRun is small, copy is acceptable
	for _, run := range runs {
		switch run.Status {
		case "completed":
			switch run.Conclusion {
			case "success":
				status.Successful++
			case "failure", "timed_out", "startup_failure":
				status.Failed++
				status.FailedRuns = append(status.FailedRuns, run.Name)
			case "cancelled", "skipped":
				// Neither success nor failure
			}
		case "queued", "in_progress":
			status.Pending++
		}
	}

	if status.Pending > 0 {
		status.State = WorkflowStatePending
	} else if status.Failed > 0 {
		status.State = WorkflowStateFailure
	} else {
		status.State = WorkflowStateSuccess
	}

	return status
}

// GetPRWorkflowStatus returns the workflow rollup for a pull request's head
// commit.
func (c *Client) GetPRWorkflowStatus(ctx context.Context, prNumber int) (*WorkflowStatus, error) {
	pr, err := c.GetPR(ctx, prNumber)
	if err != nil {
		return nil, err
	}
	return c.GetWorkflowStatus(ctx, pr.HeadRefOid)
}

// IsPRWorkflowPassing checks if all workflows for a PR are passing.
func (c *Client) IsPRWorkflowPassing(ctx context.Context, prNumber int) (bool, error) {
	status, err := c.GetPRWorkflowStatus(ctx, prNumber)
	if err != nil {
		return false, err
	}
	return status.State == WorkflowStateSuccess, nil
}
