// Package chat implements the pull request chat agent: it answers questions
// about a pull request and posts the reply as a PR comment.
package chat

import (
	"context"
	"fmt"
	"strings"

	"devopsteam/pkg/agent/llm"
	"devopsteam/pkg/github"
	"devopsteam/pkg/logx"
	"devopsteam/pkg/templates"
	"devopsteam/pkg/utils"
)

// DefaultMessage is used when the user asks for a chat without a message.
const DefaultMessage = "Please review the recent changes in this pull request for code quality and potential issues."

// maxContextComments bounds how much comment history goes into the prompt.
const maxContextComments = 10

// Reply is the assistant's answer with its self-reported confidence.
type Reply struct {
	Response   string  `json:"response"`
	Confidence float64 `json:"confidence"`
}

// Agent answers questions about pull requests.
type Agent struct {
	client   llm.LLMClient
	gh       github.GitHubClient
	renderer *templates.Renderer
	logger   *logx.Logger
}

// NewAgent creates a chat agent for the given repository client.
func NewAgent(client llm.LLMClient, gh github.GitHubClient) (*Agent, error) {
	renderer, err := templates.NewRenderer()
	if err != nil {
		return nil, fmt.Errorf("failed to create template renderer: %w", err)
	}

	return &Agent{
		client:   client,
		gh:       gh,
		renderer: renderer,
		logger:   logx.NewLogger("chat"),
	}, nil
}

// Ask sends the user message with PR context to the model. When the model
// does not produce the expected JSON shape, the raw text is kept as the
// response with confidence zero.
func (a *Agent) Ask(ctx context.Context, message, prContext string) (*Reply, error) {
	prompt, err := a.renderer.Render(templates.ChatPrompt, &templates.Data{
		UserMessage: message,
		Context:     prContext,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render chat prompt: %w", err)
	}

	resp, err := a.client.Complete(ctx, llm.CompletionRequest{
		Messages: []llm.CompletionMessage{
			llm.NewSystemMessage("You are an AI assistant helping developers discuss a pull request."),
			llm.NewUserMessage(prompt),
		},
		ResponseFormat: llm.FormatJSON,
		MaxTokens:      llm.DefaultMaxTokens,
		Temperature:    llm.TemperatureDefault,
	})
	if err != nil {
		return nil, fmt.Errorf("chat request failed: %w", err)
	}

	var reply Reply
	if err := utils.DecodeModelJSON(resp.Content, &reply); err != nil || reply.Response == "" {
		// Keep the raw answer rather than failing the chat.
		a.logger.Debug("Chat reply was not valid JSON, using raw content")
		return &Reply{Response: strings.TrimSpace(resp.Content), Confidence: 0}, nil
	}

	if reply.Confidence < 0 {
		reply.Confidence = 0
	}
	if reply.Confidence > 1 {
		reply.Confidence = 1
	}

	return &reply, nil
}

// BuildContext assembles PR context for the prompt: title, changed files, and
// the most recent comments.
func (a *Agent) BuildContext(ctx context.Context, prNumber int) (string, error) {
	pr, err := a.gh.GetPR(ctx, prNumber)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Pull request #%d: %s (%s -> %s, state %s)\n",
		pr.Number, pr.Title, pr.HeadRefName, pr.BaseRefName, pr.State)

	if files, err := a.gh.ListPRFiles(ctx, prNumber); err == nil && len(files) > 0 {
		b.WriteString("Changed files:\n")
		for _, file := range files {
			fmt.Fprintf(&b, "- %s (%s, +%d/-%d)\n",
				file.Filename, file.Status, file.Additions, file.Deletions)
		}
	}

	if comments, err := a.gh.ListIssueComments(ctx, prNumber); err == nil && len(comments) > 0 {
		if len(comments) > maxContextComments {
			comments = comments[len(comments)-maxContextComments:]
		}
		b.WriteString("Recent comments:\n")
		for _, comment := range comments {
			fmt.Fprintf(&b, "- %s: %s\n", comment.User.Login, comment.Body)
		}
	}

	return b.String(), nil
}

// FormatComment renders the assistant reply as the PR comment body.
func FormatComment(reply *Reply) string {
	return fmt.Sprintf("🤖 **AI Assistant:** %s", reply.Response)
}

// Run answers a message about a pull request and posts the reply as a PR
// comment. An empty message falls back to DefaultMessage.
func (a *Agent) Run(ctx context.Context, prNumber int, message string) (*Reply, error) {
	if strings.TrimSpace(message) == "" {
		message = DefaultMessage
	}

	prContext, err := a.BuildContext(ctx, prNumber)
	if err != nil {
		return nil, err
	}

	reply, err := a.Ask(ctx, message, prContext)
	if err != nil {
		return nil, err
	}

	if err := a.gh.CreateIssueComment(ctx, prNumber, FormatComment(reply)); err != nil {
		return reply, fmt.Errorf("failed to post chat reply: %w", err)
	}

	a.logger.Info("Replied on PR #%d (confidence %.2f)", prNumber, reply.Confidence)
	return reply, nil
}
