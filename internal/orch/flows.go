package orch

import (
	"context"
	"fmt"

	"devopsteam/pkg/agent"
	"devopsteam/pkg/chat"
	"devopsteam/pkg/github"
	"devopsteam/pkg/persistence"
	"devopsteam/pkg/proto"
	"devopsteam/pkg/review"
	"devopsteam/pkg/utils"
)

// resolveGitHub builds the repository client from the config override or the
// local git remote.
func (r *Runner) resolveGitHub(ctx context.Context) (*github.Client, error) {
	return github.ResolveClient(ctx, r.projectDir, r.cfg.GitHub.Repo)
}

// ReviewFlow reviews all eligible files of a pull request and posts the
// feedback as PR comments.
func (r *Runner) ReviewFlow(ctx context.Context, prNumber int) error {
	rc := r.beginRun()

	err := r.reviewPR(ctx, rc, prNumber)
	r.endRun(rc, err)
	return err
}

func (r *Runner) reviewPR(ctx context.Context, rc *runContext, prNumber int) error {
	r.stageStart(rc, proto.TaskReview, string(agent.TypeReview))
	result := proto.NewAgentResult(rc.runID, proto.TaskReview, string(agent.TypeReview))
	result.SetPayload(proto.KeyPullRequest, prNumber)

	gh, err := r.resolveGitHub(ctx)
	if err != nil {
		r.record(rc, result.Finish(proto.StatusError, err.Error()))
		return err
	}

	client, err := r.clientFor(agent.TypeReview, proto.TaskReview, rc.runID)
	if err != nil {
		r.record(rc, result.Finish(proto.StatusError, err.Error()))
		return fmt.Errorf("review needs an LLM: %w", err)
	}

	reviewAgent, err := review.NewAgent(r.cfg, client, gh)
	if err != nil {
		r.record(rc, result.Finish(proto.StatusError, err.Error()))
		return err
	}

	if instructions, err := utils.LoadUserInstructions(r.projectDir); err == nil {
		reviewAgent.WithInstructions(utils.FormatUserInstructions(instructions, "review"))
	} else {
		r.logger.Warn("User instructions unusable: %v", err)
	}

	r.say("📝 Reviewing PR #%d in %s...", prNumber, gh.RepoPath())

	results, err := reviewAgent.Run(ctx, prNumber)
	if err != nil {
		r.record(rc, result.Finish(proto.StatusError, err.Error()))
		return err
	}

	reviewed := 0
	for i := range results {
		fr := &results[i]
		if fr.Err != nil || fr.Review == nil {
			continue
		}
		reviewed++
		if rc.ops != nil {
			record := &persistence.ReviewRecord{
				Repo:            gh.RepoPath(),
				PRNumber:        prNumber,
				FilePath:        fr.File,
				OverallQuality:  fr.Review.OverallQuality,
				IssueCount:      len(fr.Review.Issues),
				SuggestionCount: len(fr.Review.Suggestions),
				CommentPosted:   true,
			}
			if err := rc.ops.SaveReviewFeedback(record); err != nil {
				r.logger.Warn("Could not persist review of %s: %v", fr.File, err)
			}
		}
	}

	r.say("✅ Review complete: %d of %d files reviewed.", reviewed, len(results))

	result.SetPayload(proto.KeyFilesReviewed, len(results))
	r.record(rc, result.Finish(proto.StatusSuccess,
		fmt.Sprintf("%d files reviewed on PR #%d", reviewed, prNumber)))
	return nil
}

// ChatFlow answers a message about a pull request and posts the reply as a
// PR comment. An empty message asks for a general review of the changes.
func (r *Runner) ChatFlow(ctx context.Context, prNumber int, message string) error {
	rc := r.beginRun()

	err := r.chatPR(ctx, rc, prNumber, message)
	r.endRun(rc, err)
	return err
}

func (r *Runner) chatPR(ctx context.Context, rc *runContext, prNumber int, message string) error {
	r.stageStart(rc, proto.TaskChat, string(agent.TypeChat))
	result := proto.NewAgentResult(rc.runID, proto.TaskChat, string(agent.TypeChat))
	result.SetPayload(proto.KeyPullRequest, prNumber)

	gh, err := r.resolveGitHub(ctx)
	if err != nil {
		r.record(rc, result.Finish(proto.StatusError, err.Error()))
		return err
	}

	client, err := r.clientFor(agent.TypeChat, proto.TaskChat, rc.runID)
	if err != nil {
		r.record(rc, result.Finish(proto.StatusError, err.Error()))
		return fmt.Errorf("chat needs an LLM: %w", err)
	}

	chatAgent, err := chat.NewAgent(client, gh)
	if err != nil {
		r.record(rc, result.Finish(proto.StatusError, err.Error()))
		return err
	}

	r.say("💬 Asking about PR #%d in %s...", prNumber, gh.RepoPath())

	reply, err := chatAgent.Run(ctx, prNumber, message)
	if err != nil {
		r.record(rc, result.Finish(proto.StatusError, err.Error()))
		return err
	}

	r.say("✅ Reply posted (confidence %.2f).", reply.Confidence)

	result.SetPayload(proto.KeyConfidence, reply.Confidence)
	rc.event(proto.NewRunEvent(rc.runID, proto.EventComment, string(agent.TypeChat)))
	r.record(rc, result.Finish(proto.StatusSuccess,
		fmt.Sprintf("chat reply posted on PR #%d", prNumber)))
	return nil
}

// StatusFlow prints the workflow rollup for a pull request's head commit.
// prNumber 0 means the open PR of the currently checked-out branch.
func (r *Runner) StatusFlow(ctx context.Context, prNumber int) error {
	gh, err := r.resolveGitHub(ctx)
	if err != nil {
		return err
	}

	if prNumber == 0 {
		branch, err := github.CurrentBranch(ctx, r.projectDir)
		if err != nil {
			return err
		}
		prs, err := gh.ListPRsForBranch(ctx, branch)
		if err != nil {
			return err
		}
		if len(prs) == 0 {
			return fmt.Errorf("no open pull request for branch %s: %w", branch, github.ErrNoPR)
		}
		prNumber = prs[0].Number
	}

	status, err := gh.GetPRWorkflowStatus(ctx, prNumber)
	if err != nil {
		return fmt.Errorf("could not get workflow status for PR #%d: %w", prNumber, err)
	}

	r.say("PR #%d in %s: %s", prNumber, gh.RepoPath(), status.Summary())
	return nil
}
