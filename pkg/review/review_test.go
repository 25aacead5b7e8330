package review

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devopsteam/pkg/agent/llm"
	"devopsteam/pkg/config"
	"devopsteam/pkg/github"
)

type stubClient struct {
	content string
	err     error
}

func (s *stubClient) Complete(_ context.Context, _ llm.CompletionRequest) (llm.CompletionResponse, error) {
	if s.err != nil {
		return llm.CompletionResponse{}, s.err
	}
	return llm.CompletionResponse{Content: s.content, StopReason: "stop"}, nil
}

func (s *stubClient) Stream(_ context.Context, _ llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
	ch := make(chan llm.StreamChunk, 1)
	ch <- llm.StreamChunk{Content: s.content, Done: true}
	close(ch)
	return ch, nil
}

func (s *stubClient) GetModelName() string { return "stub" }

// fakeGitHub is an in-memory GitHubClient for review tests.
type fakeGitHub struct {
	pr       *github.PullRequest
	files    []github.PRFile
	contents map[string]string
	comments []string
}

func (f *fakeGitHub) GetPR(_ context.Context, _ int) (*github.PullRequest, error) {
	if f.pr == nil {
		return nil, github.ErrNoPR
	}
	return f.pr, nil
}

func (f *fakeGitHub) ListPRFiles(_ context.Context, _ int) ([]github.PRFile, error) {
	return f.files, nil
}

func (f *fakeGitHub) GetFileContent(_ context.Context, path, _ string) (string, error) {
	content, ok := f.contents[path]
	if !ok {
		return "", fmt.Errorf("no content for %s", path)
	}
	return content, nil
}

func (f *fakeGitHub) CreateIssueComment(_ context.Context, _ int, body string) error {
	f.comments = append(f.comments, body)
	return nil
}

func (f *fakeGitHub) ListIssueComments(_ context.Context, _ int) ([]github.IssueComment, error) {
	return nil, nil
}

func (f *fakeGitHub) GetPRWorkflowStatus(_ context.Context, _ int) (*github.WorkflowStatus, error) {
	return &github.WorkflowStatus{State: github.WorkflowStateSuccess}, nil
}

func (f *fakeGitHub) RepoPath() string { return "acme/widgets" }

func testConfig() config.Config {
	return config.Config{
		Agents: &config.AgentsConfig{ReviewModel: config.ModelLlama38B},
		Review: &config.ReviewConfig{
			Extensions:    []string{".py"},
			MaxDiffTokens: 6000,
		},
	}
}

const reviewJSON = `{
	"issues": [{"description": "Bare except swallows errors"}],
	"suggestions": ["Add type hints"],
	"overall_quality": "Decent but needs error handling"
}`

func TestEligible(t *testing.T) {
	agent, err := NewAgent(testConfig(), &stubClient{}, &fakeGitHub{})
	require.NoError(t, err)

	assert.True(t, agent.Eligible("app/main.py"))
	assert.True(t, agent.Eligible("APP/MAIN.PY"))
	assert.False(t, agent.Eligible("README.md"))
	assert.False(t, agent.Eligible("Dockerfile"))
}

func TestFetchPullRequestFiles(t *testing.T) {
	gh := &fakeGitHub{
		files: []github.PRFile{
			{Filename: "app/main.py", Status: "modified", Patch: "@@ -1 +1 @@"},
			{Filename: "old.py", Status: "removed", Patch: "@@ -1 +0 @@"},
			{Filename: "binary.py", Status: "added"}, // no patch
			{Filename: "README.md", Status: "modified", Patch: "@@ -1 +1 @@"},
		},
	}

	agent, err := NewAgent(testConfig(), &stubClient{}, gh)
	require.NoError(t, err)

	files, err := agent.FetchPullRequestFiles(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "app/main.py", files[0].Filename)
}

func TestReviewFile(t *testing.T) {
	gh := &fakeGitHub{contents: map[string]string{"app/main.py": "print('hi')\n"}}

	agent, err := NewAgent(testConfig(), &stubClient{content: reviewJSON}, gh)
	require.NoError(t, err)

	file := &github.PRFile{Filename: "app/main.py", Status: "modified", Patch: "@@ -1 +1 @@\n+print('hi')"}
	review, err := agent.ReviewFile(context.Background(), file, "abc123")
	require.NoError(t, err)

	assert.Equal(t, "Decent but needs error handling", review.OverallQuality)
	require.Len(t, review.Issues, 1)
	assert.Equal(t, "Bare except swallows errors", review.Issues[0].Description)
	assert.Equal(t, []string{"Add type hints"}, review.Suggestions)
}

func TestFormatComment(t *testing.T) {
	review := &FileReview{
		Issues:         []Issue{{Description: "Bare except swallows errors"}},
		Suggestions:    []string{"Add type hints"},
		OverallQuality: "Decent",
	}

	comment := FormatComment("app/main.py", review)
	assert.Contains(t, comment, "### 📝 Code Review for `app/main.py`")
	assert.Contains(t, comment, "**Overall Quality**: Decent")
	assert.Contains(t, comment, "**Issues Found**:\n- Bare except swallows errors")
	assert.Contains(t, comment, "**Suggestions**:\n- Add type hints")
}

func TestFormatCommentEmptyLists(t *testing.T) {
	comment := FormatComment("app/main.py", &FileReview{OverallQuality: "Clean"})
	assert.Contains(t, comment, "**Issues Found**:\n- None")
	assert.Contains(t, comment, "**Suggestions**:\n- None")
}

func TestErrorComment(t *testing.T) {
	assert.Equal(t, "⚠️ **Code Review Error**: review request failed",
		ErrorComment("review request failed"))
}

func TestRunPostsCommentPerFile(t *testing.T) {
	gh := &fakeGitHub{
		pr: &github.PullRequest{Number: 7, HeadRefOid: "abc123"},
		files: []github.PRFile{
			{Filename: "a.py", Status: "modified", Patch: "@@ -1 +1 @@"},
			{Filename: "b.py", Status: "added", Patch: "@@ -0 +1 @@"},
		},
		contents: map[string]string{},
	}

	agent, err := NewAgent(testConfig(), &stubClient{content: reviewJSON}, gh)
	require.NoError(t, err)

	results, err := agent.Run(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Len(t, gh.comments, 2)
	assert.Contains(t, gh.comments[0], "### 📝 Code Review for `a.py`")
	assert.Contains(t, gh.comments[1], "### 📝 Code Review for `b.py`")
}

func TestRunPostsErrorCommentOnFailure(t *testing.T) {
	gh := &fakeGitHub{
		pr:    &github.PullRequest{Number: 7, HeadRefOid: "abc123"},
		files: []github.PRFile{{Filename: "a.py", Status: "modified", Patch: "@@ -1 +1 @@"}},
	}

	agent, err := NewAgent(testConfig(), &stubClient{err: fmt.Errorf("rate limited")}, gh)
	require.NoError(t, err)

	results, err := agent.Run(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Error(t, results[0].Err)
	require.Len(t, gh.comments, 1)
	assert.Contains(t, gh.comments[0], "⚠️ **Code Review Error**:")
}

func TestRunMissingPR(t *testing.T) {
	agent, err := NewAgent(testConfig(), &stubClient{}, &fakeGitHub{})
	require.NoError(t, err)

	_, err = agent.Run(context.Background(), 999)
	assert.ErrorIs(t, err, github.ErrNoPR)
}
