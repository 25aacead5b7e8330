package chat

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devopsteam/pkg/agent/llm"
	"devopsteam/pkg/github"
)

type stubClient struct {
	lastRequest llm.CompletionRequest
	content     string
	err         error
}

func (s *stubClient) Complete(_ context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	s.lastRequest = in
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

type fakeGitHub struct {
	pr       *github.PullRequest
	files    []github.PRFile
	history  []github.IssueComment
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

func (f *fakeGitHub) GetFileContent(_ context.Context, _, _ string) (string, error) {
	return "", fmt.Errorf("not implemented")
}

func (f *fakeGitHub) CreateIssueComment(_ context.Context, _ int, body string) error {
	f.comments = append(f.comments, body)
	return nil
}

func (f *fakeGitHub) ListIssueComments(_ context.Context, _ int) ([]github.IssueComment, error) {
	return f.history, nil
}

func (f *fakeGitHub) GetPRWorkflowStatus(_ context.Context, _ int) (*github.WorkflowStatus, error) {
	return &github.WorkflowStatus{State: github.WorkflowStateSuccess}, nil
}

func (f *fakeGitHub) RepoPath() string { return "acme/widgets" }

func testPR() *github.PullRequest {
	return &github.PullRequest{
		Number:      7,
		Title:       "Add login form",
		State:       "OPEN",
		HeadRefName: "feature/login",
		BaseRefName: "main",
	}
}

func TestAsk(t *testing.T) {
	client := &stubClient{content: `{"response": "The changes look solid.", "confidence": 0.85}`}
	agent, err := NewAgent(client, &fakeGitHub{})
	require.NoError(t, err)

	reply, err := agent.Ask(context.Background(), "How do the changes look?", "some context")
	require.NoError(t, err)
	assert.Equal(t, "The changes look solid.", reply.Response)
	assert.InDelta(t, 0.85, reply.Confidence, 0.001)

	assert.Equal(t, llm.FormatJSON, client.lastRequest.ResponseFormat)
	assert.Contains(t, client.lastRequest.Messages[1].Content, "How do the changes look?")
	assert.Contains(t, client.lastRequest.Messages[1].Content, "some context")
}

func TestAskFallsBackToRawContent(t *testing.T) {
	client := &stubClient{content: "Just plain text, no JSON."}
	agent, err := NewAgent(client, &fakeGitHub{})
	require.NoError(t, err)

	reply, err := agent.Ask(context.Background(), "hello", "")
	require.NoError(t, err)
	assert.Equal(t, "Just plain text, no JSON.", reply.Response)
	assert.Zero(t, reply.Confidence)
}

func TestAskClampsConfidence(t *testing.T) {
	agent, err := NewAgent(&stubClient{content: `{"response": "ok", "confidence": 1.7}`}, &fakeGitHub{})
	require.NoError(t, err)

	reply, err := agent.Ask(context.Background(), "hello", "")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, reply.Confidence, 0.001)
}

func TestBuildContext(t *testing.T) {
	gh := &fakeGitHub{
		pr: testPR(),
		files: []github.PRFile{
			{Filename: "login.py", Status: "added", Additions: 40, Deletions: 0},
		},
		history: []github.IssueComment{
			{Body: "LGTM", CreatedAt: time.Now(), User: struct {
				Login string `json:"login"`
			}{Login: "octocat"}},
		},
	}

	agent, err := NewAgent(&stubClient{}, gh)
	require.NoError(t, err)

	prContext, err := agent.BuildContext(context.Background(), 7)
	require.NoError(t, err)
	assert.Contains(t, prContext, "Pull request #7: Add login form")
	assert.Contains(t, prContext, "login.py (added, +40/-0)")
	assert.Contains(t, prContext, "octocat: LGTM")
}

func TestRunPostsComment(t *testing.T) {
	gh := &fakeGitHub{pr: testPR()}
	client := &stubClient{content: `{"response": "All good.", "confidence": 0.9}`}

	agent, err := NewAgent(client, gh)
	require.NoError(t, err)

	reply, err := agent.Run(context.Background(), 7, "")
	require.NoError(t, err)
	assert.Equal(t, "All good.", reply.Response)

	// The empty message falls back to the default review prompt.
	assert.Contains(t, client.lastRequest.Messages[1].Content, DefaultMessage)

	require.Len(t, gh.comments, 1)
	assert.Equal(t, "🤖 **AI Assistant:** All good.", gh.comments[0])
}

func TestRunMissingPR(t *testing.T) {
	agent, err := NewAgent(&stubClient{}, &fakeGitHub{})
	require.NoError(t, err)

	_, err = agent.Run(context.Background(), 999, "hello")
	assert.ErrorIs(t, err, github.ErrNoPR)
}
