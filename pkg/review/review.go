// Package review implements the code review agent: it fetches the changed
// files of a pull request, reviews each eligible file through an LLM, and
// posts the feedback as PR comments.
package review

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"devopsteam/pkg/agent/llm"
	"devopsteam/pkg/config"
	"devopsteam/pkg/github"
	"devopsteam/pkg/logx"
	"devopsteam/pkg/templates"
	"devopsteam/pkg/utils"
)

// Issue is one problem the model found in a file.
type Issue struct {
	Description string `json:"description"`
}

// FileReview is the structured feedback for one file.
type FileReview struct {
	Issues         []Issue  `json:"issues"`
	Suggestions    []string `json:"suggestions"`
	OverallQuality string   `json:"overall_quality"`
}

// FileResult pairs a reviewed file with its outcome. Err is set when the
// review of this file failed; the error comment is still posted.
type FileResult struct {
	File   string
	Review *FileReview
	Err    error
}

// Agent reviews pull request changes.
type Agent struct {
	cfg      config.Config
	client   llm.LLMClient
	gh       github.GitHubClient
	renderer *templates.Renderer
	counter  *utils.TokenCounter
	logger   *logx.Logger

	instructions string // extra review criteria appended to the system prompt
}

// NewAgent creates a review agent for the given repository client.
func NewAgent(cfg config.Config, client llm.LLMClient, gh github.GitHubClient) (*Agent, error) {
	renderer, err := templates.NewRenderer()
	if err != nil {
		return nil, fmt.Errorf("failed to create template renderer: %w", err)
	}

	counter, err := utils.NewTokenCounter(cfg.Agents.ReviewModel)
	if err != nil {
		return nil, fmt.Errorf("failed to create token counter: %w", err)
	}

	return &Agent{
		cfg:      cfg,
		client:   client,
		gh:       gh,
		renderer: renderer,
		counter:  counter,
		logger:   logx.NewLogger("review"),
	}, nil
}

// WithInstructions appends user-supplied review criteria (from
// .devteam/REVIEW.md) to the system prompt.
func (a *Agent) WithInstructions(instructions string) *Agent {
	a.instructions = instructions
	return a
}

// Eligible reports whether a file should be reviewed, based on the configured
// extensions.
func (a *Agent) Eligible(filename string) bool {
	ext := filepath.Ext(filename)
	for _, allowed := range a.cfg.Review.Extensions {
		if strings.EqualFold(ext, allowed) {
			return true
		}
	}
	return false
}

// FetchPullRequestFiles returns the PR's changed files that are eligible for
// review. Removed files and files without a diff (binaries) are skipped.
func (a *Agent) FetchPullRequestFiles(ctx context.Context, prNumber int) ([]github.PRFile, error) {
	files, err := a.gh.ListPRFiles(ctx, prNumber)
	if err != nil {
		return nil, err
	}

	eligible := []github.PRFile{}
	for _, file := range files {
		if file.Status == "removed" || file.Patch == "" {
			continue
		}
		if !a.Eligible(file.Filename) {
			continue
		}
		eligible = append(eligible, file)
	}

	a.logger.Info("PR #%d: %d of %d changed files eligible for review",
		prNumber, len(eligible), len(files))
	return eligible, nil
}

// ReviewFile reviews one changed file. headRef is the PR's head commit; the
// file content at that commit is fetched best-effort to give the model more
// context than the diff alone.
func (a *Agent) ReviewFile(ctx context.Context, file *github.PRFile, headRef string) (*FileReview, error) {
	diff := a.counter.TruncateToTokenLimit(file.Patch, a.cfg.Review.MaxDiffTokens)

	content := ""
	if fetched, err := a.gh.GetFileContent(ctx, file.Filename, headRef); err == nil {
		content = a.counter.TruncateToTokenLimit(fetched, a.cfg.Review.MaxDiffTokens)
	} else {
		a.logger.Debug("Could not fetch content of %s: %v", file.Filename, err)
	}

	prompt, err := a.renderer.Render(templates.ReviewPrompt, &templates.Data{
		FileName:    file.Filename,
		FileContent: content,
		Diff:        diff,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render review prompt: %w", err)
	}

	system := "You are a meticulous code reviewer. Be specific and actionable."
	if a.instructions != "" {
		system += a.instructions
	}

	resp, err := a.client.Complete(ctx, llm.CompletionRequest{
		Messages: []llm.CompletionMessage{
			llm.NewSystemMessage(system),
			llm.NewUserMessage(prompt),
		},
		ResponseFormat: llm.FormatJSON,
		MaxTokens:      llm.DefaultMaxTokens,
		Temperature:    llm.TemperatureDefault,
	})
	if err != nil {
		return nil, fmt.Errorf("review request failed: %w", err)
	}

	var review FileReview
	if err := utils.DecodeModelJSON(resp.Content, &review); err != nil {
		return nil, err
	}
	if review.OverallQuality == "" {
		review.OverallQuality = "No assessment provided"
	}

	return &review, nil
}

// FormatComment renders the review feedback as the PR comment body.
func FormatComment(filename string, review *FileReview) string {
	var b strings.Builder

	fmt.Fprintf(&b, "### 📝 Code Review for `%s`\n\n", filename)
	fmt.Fprintf(&b, "**Overall Quality**: %s\n\n", review.OverallQuality)

	b.WriteString("**Issues Found**:\n")
	if len(review.Issues) == 0 {
		b.WriteString("- None\n")
	}
	for _, issue := range review.Issues {
		fmt.Fprintf(&b, "- %s\n", issue.Description)
	}

	b.WriteString("\n**Suggestions**:\n")
	if len(review.Suggestions) == 0 {
		b.WriteString("- None\n")
	}
	for _, suggestion := range review.Suggestions {
		fmt.Fprintf(&b, "- %s\n", suggestion)
	}

	return b.String()
}

// ErrorComment renders the comment posted when reviewing a file failed.
func ErrorComment(msg string) string {
	return fmt.Sprintf("⚠️ **Code Review Error**: %s", msg)
}

// Run reviews all eligible files of a pull request, posting one comment per
// file. Per-file failures are posted as error comments and recorded in the
// results; only PR-level failures abort the run.
func (a *Agent) Run(ctx context.Context, prNumber int) ([]FileResult, error) {
	pr, err := a.gh.GetPR(ctx, prNumber)
	if err != nil {
		return nil, err
	}

	files, err := a.FetchPullRequestFiles(ctx, prNumber)
	if err != nil {
		return nil, err
	}

	results := make([]FileResult, 0, len(files))
	for i := range files {
		file := &files[i]

		review, reviewErr := a.ReviewFile(ctx, file, pr.HeadRefOid)

		var body string
		if reviewErr != nil {
			a.logger.Warn("Review of %s failed: %v", file.Filename, reviewErr)
			body = ErrorComment(reviewErr.Error())
		} else {
			body = FormatComment(file.Filename, review)
		}

		if err := a.gh.CreateIssueComment(ctx, prNumber, body); err != nil {
			return results, fmt.Errorf("failed to post review comment for %s: %w", file.Filename, err)
		}

		results = append(results, FileResult{File: file.Filename, Review: review, Err: reviewErr})
	}

	return results, nil
}
