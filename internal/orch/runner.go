// Package orch coordinates the agents: the four-stage provisioning run, the
// pull request review flow, and the pull request chat flow.
package orch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"devopsteam/pkg/agent"
	"devopsteam/pkg/agent/llm"
	"devopsteam/pkg/buildstatus"
	"devopsteam/pkg/config"
	"devopsteam/pkg/dockerfile"
	"devopsteam/pkg/eventlog"
	"devopsteam/pkg/logx"
	"devopsteam/pkg/metrics"
	"devopsteam/pkg/persistence"
	"devopsteam/pkg/pipeline"
	"devopsteam/pkg/predictor"
	"devopsteam/pkg/proto"
	"devopsteam/pkg/utils"
)

// stageLabels carries the run context into the metrics middleware.
// It implements metrics.LabelProvider.
type stageLabels struct {
	runID string
	agent agent.Type
	task  proto.TaskKind
}

func (l *stageLabels) GetRunID() string { return l.runID }
func (l *stageLabels) GetAgent() string { return string(l.agent) }
func (l *stageLabels) GetTask() string  { return string(l.task) }

// Runner drives the agents against one project directory.
type Runner struct {
	cfg        config.Config
	factory    *agent.ClientFactory
	projectDir string
	out        io.Writer
	logger     *logx.Logger

	lastRunID string
}

// LastRunID returns the run ID of the most recently started run. Cost
// readback after a flow keys on it.
func (r *Runner) LastRunID() string {
	return r.lastRunID
}

// NewRunner creates a runner. Step output (the emoji progress lines) goes to
// out; diagnostics go through the structured logger.
func NewRunner(cfg config.Config, projectDir string, factory *agent.ClientFactory, out io.Writer) *Runner {
	return &Runner{
		cfg:        cfg,
		factory:    factory,
		projectDir: projectDir,
		out:        out,
		logger:     logx.NewLogger("orchestrator"),
	}
}

// say writes one progress line to the step output.
func (r *Runner) say(format string, args ...any) {
	fmt.Fprintf(r.out, format+"\n", args...)
}

// clientFor creates the middleware-wrapped LLM client for a stage. A missing
// API key is not fatal; the caller degrades the stage instead.
func (r *Runner) clientFor(agentType agent.Type, task proto.TaskKind, runID string) (llm.LLMClient, error) {
	labels := &stageLabels{runID: runID, agent: agentType, task: task}
	return r.factory.CreateClientWithContext(agentType, labels, r.logger)
}

// runContext bundles the per-run sinks: the event journal and the database.
// Either may be nil when unavailable; recording degrades to logging.
type runContext struct {
	runID  string
	events *eventlog.Writer
	ops    *persistence.DatabaseOperations
}

// beginRun opens the run sinks and records the run start.
func (r *Runner) beginRun() *runContext {
	rc := &runContext{runID: proto.GenerateRunID()}
	r.lastRunID = rc.runID

	events, err := eventlog.NewWriter(utils.LogsPath(r.projectDir))
	if err != nil {
		r.logger.Warn("Event log unavailable: %v", err)
	} else {
		rc.events = events
	}

	if persistence.IsInitialized() {
		rc.ops = persistence.Ops()
		if err := rc.ops.CreateRun(rc.runID, r.projectDir); err != nil {
			r.logger.Warn("Could not record run: %v", err)
			rc.ops = nil
		}
	}

	rc.event(proto.NewRunEvent(rc.runID, proto.EventRunStarted, "orchestrator"))
	return rc
}

// endRun records the run outcome and closes the sinks.
func (r *Runner) endRun(rc *runContext, runErr error) {
	status := persistence.RunStatusSuccess
	if runErr != nil {
		status = persistence.RunStatusError
	}

	if rc.ops != nil {
		if err := rc.ops.FinishRun(rc.runID, status); err != nil {
			r.logger.Warn("Could not finish run record: %v", err)
		}
	}

	finished := proto.NewRunEvent(rc.runID, proto.EventRunFinished, "orchestrator")
	finished.Payload = map[string]any{"status": status}
	rc.event(finished)

	if rc.events != nil {
		_ = rc.events.Close()
	}
}

// event writes one event to the journal, when available.
func (rc *runContext) event(event *proto.RunEvent) {
	if rc.events != nil {
		_ = rc.events.WriteEvent(event)
	}
}

// stageStart journals the start of a stage.
func (r *Runner) stageStart(rc *runContext, task proto.TaskKind, agentID string) {
	event := proto.NewRunEvent(rc.runID, proto.EventStageStarted, agentID)
	event.Payload = map[string]any{"task": string(task)}
	rc.event(event)
}

// record persists a finished stage result and journals it.
func (r *Runner) record(rc *runContext, result *proto.AgentResult) {
	if err := result.Validate(); err != nil {
		r.logger.Warn("Dropping invalid stage result: %v", err)
		return
	}

	if rc.ops != nil {
		if err := rc.ops.SaveStageResult(result); err != nil {
			r.logger.Warn("Could not persist %s stage: %v", result.Task, err)
		}
	}

	event := proto.NewRunEvent(rc.runID, proto.EventStageFinished, result.AgentID)
	event.Payload = map[string]any{
		"task":    string(result.Task),
		"status":  string(result.Status),
		"summary": result.Summary,
	}
	rc.event(event)
}

// Provision runs the four provisioning stages in order: workflow generation,
// Dockerfile generation, Docker build + status check, and build failure
// prediction. Artifact generation proceeds without an LLM when no API key is
// configured; the prediction stage is skipped instead.
func (r *Runner) Provision(ctx context.Context) error {
	rc := r.beginRun()

	r.say("🤖 DevOps AI Team Starting Up...")

	var runErr error
	buildStatus := ""

	if err := r.stageWorkflow(ctx, rc); err != nil {
		runErr = err
	}
	if err := r.stageDockerfile(ctx, rc); err != nil && runErr == nil {
		runErr = err
	}
	status, err := r.stageBuild(ctx, rc)
	if err != nil && runErr == nil {
		runErr = err
	}
	buildStatus = status

	if err := r.stagePredict(ctx, rc, buildStatus); err != nil && runErr == nil {
		runErr = err
	}

	r.say("\n✨ DevOps AI Team has completed their tasks!")
	r.sayUsage(rc.runID)

	r.endRun(rc, runErr)
	return runErr
}

// sayUsage prints the run's LLM usage when the in-memory recorder captured any.
func (r *Runner) sayUsage(runID string) {
	recorder, ok := r.factory.Recorder().(*metrics.MemoryRecorder)
	if !ok {
		return
	}
	totals := recorder.GetRunTotals(runID)
	if totals == nil || totals.RequestCount == 0 {
		return
	}
	r.say("💰 LLM usage: %d request(s), %d tokens, $%.4f",
		totals.RequestCount, totals.TotalTokens, totals.TotalCostUSD)
}

// stageWorkflow generates and writes the GitHub Actions workflow.
func (r *Runner) stageWorkflow(ctx context.Context, rc *runContext) error {
	r.say("\n1️⃣ GitHub Actions Agent: Creating CI/CD Pipeline...")
	r.stageStart(rc, proto.TaskWorkflow, string(agent.TypePipeline))
	result := proto.NewAgentResult(rc.runID, proto.TaskWorkflow, string(agent.TypePipeline))

	client, err := r.clientFor(agent.TypePipeline, proto.TaskWorkflow, rc.runID)
	if err != nil {
		r.logger.Warn("No LLM for workflow refinement, using scaffold: %v", err)
		client = nil
	}

	pipelineAgent, err := pipeline.NewAgent(r.cfg, client)
	if err != nil {
		r.record(rc, result.Finish(proto.StatusError, err.Error()))
		return err
	}

	artifact, err := pipelineAgent.Generate(ctx)
	if err != nil {
		r.record(rc, result.Finish(proto.StatusError, err.Error()))
		return fmt.Errorf("workflow generation failed: %w", err)
	}

	path, err := pipelineAgent.Write(r.projectDir, artifact)
	if err != nil {
		r.record(rc, result.Finish(proto.StatusError, err.Error()))
		return fmt.Errorf("workflow write failed: %w", err)
	}

	r.say("✅ CI/CD Pipeline created!")

	artifactEvent := proto.NewRunEvent(rc.runID, proto.EventArtifact, string(agent.TypePipeline))
	artifactEvent.Payload = map[string]any{proto.KeyArtifactPath: path}
	rc.event(artifactEvent)

	result.SetPayload(proto.KeyArtifactPath, path)
	if artifact.Refined {
		result.SetPayload(proto.KeyRefinementNotes, artifact.Notes)
	}
	r.record(rc, result.Finish(proto.StatusSuccess, "workflow written"))
	return nil
}

// stageDockerfile generates and writes the Dockerfile.
func (r *Runner) stageDockerfile(ctx context.Context, rc *runContext) error {
	r.say("\n2️⃣ Dockerfile Agent: Creating Dockerfile...")
	r.stageStart(rc, proto.TaskDockerfile, string(agent.TypePipeline))
	result := proto.NewAgentResult(rc.runID, proto.TaskDockerfile, string(agent.TypePipeline))

	client, err := r.clientFor(agent.TypePipeline, proto.TaskDockerfile, rc.runID)
	if err != nil {
		r.logger.Warn("No LLM for Dockerfile refinement, using scaffold: %v", err)
		client = nil
	}

	dockerfileAgent, err := dockerfile.NewAgent(r.cfg, client)
	if err != nil {
		r.record(rc, result.Finish(proto.StatusError, err.Error()))
		return err
	}

	artifact, err := dockerfileAgent.Generate(ctx)
	if err != nil {
		r.record(rc, result.Finish(proto.StatusError, err.Error()))
		return fmt.Errorf("Dockerfile generation failed: %w", err)
	}

	path, err := dockerfileAgent.Write(r.projectDir, artifact)
	if err != nil {
		r.record(rc, result.Finish(proto.StatusError, err.Error()))
		return fmt.Errorf("Dockerfile write failed: %w", err)
	}

	r.say("✅ Dockerfile created!")

	artifactEvent := proto.NewRunEvent(rc.runID, proto.EventArtifact, string(agent.TypePipeline))
	artifactEvent.Payload = map[string]any{proto.KeyArtifactPath: path}
	rc.event(artifactEvent)

	result.SetPayload(proto.KeyArtifactPath, path)
	if artifact.Refined {
		result.SetPayload(proto.KeyRefinementNotes, artifact.Notes)
	}
	r.record(rc, result.Finish(proto.StatusSuccess, "Dockerfile written"))
	return nil
}

// stageBuild builds the image and reports the build status line. A missing
// container engine skips the stage; a failed build is reported in the status,
// not as a run failure.
func (r *Runner) stageBuild(ctx context.Context, rc *runContext) (string, error) {
	r.say("\n3️⃣ Build Status Agent: Checking Docker Build...")
	r.stageStart(rc, proto.TaskBuild, "buildstatus")
	result := proto.NewAgentResult(rc.runID, proto.TaskBuild, "buildstatus")

	buildAgent := buildstatus.NewAgent(r.cfg)
	if !buildAgent.EngineAvailable() {
		status := "skipped (no container engine available)"
		r.say("📊 Build Status: %s", status)
		result.SetPayload(proto.KeyBuildStatus, status)
		r.record(rc, result.Finish(proto.StatusSkipped, "no container engine"))
		return "", nil
	}

	r.say("🔨 Building Docker image...")
	buildResult, err := buildAgent.Build(ctx, r.projectDir)
	if err != nil {
		r.record(rc, result.Finish(proto.StatusError, err.Error()))
		return "", fmt.Errorf("docker build failed to run: %w", err)
	}

	status, err := buildAgent.Check(ctx)
	if err != nil {
		r.record(rc, result.Finish(proto.StatusError, err.Error()))
		return "", fmt.Errorf("build status check failed: %w", err)
	}

	r.say("📊 Build Status: %s", status)

	result.SetPayload(proto.KeyBuildStatus, status)
	result.SetPayload(proto.KeyBuildOutput, buildResult.Output)
	if buildResult.Succeeded() {
		r.record(rc, result.Finish(proto.StatusSuccess, status))
	} else {
		r.record(rc, result.Finish(proto.StatusError,
			fmt.Sprintf("build exited with code %d", buildResult.ExitCode)))
	}
	return status, nil
}

// stagePredict asks the predictor agent whether the next build might fail.
// Without an API key the stage is skipped rather than failed.
func (r *Runner) stagePredict(ctx context.Context, rc *runContext, buildStatus string) error {
	r.say("\n4️⃣ Build Predictor Agent: Analyzing build patterns...")
	r.stageStart(rc, proto.TaskPredict, string(agent.TypePredictor))
	result := proto.NewAgentResult(rc.runID, proto.TaskPredict, string(agent.TypePredictor))

	client, err := r.clientFor(agent.TypePredictor, proto.TaskPredict, rc.runID)
	if err != nil {
		r.say("🔮 Build Prediction: skipped (no API key configured)")
		r.record(rc, result.Finish(proto.StatusSkipped, "no API key"))
		return nil
	}

	predictorAgent, err := predictor.NewAgent(client)
	if err != nil {
		r.record(rc, result.Finish(proto.StatusError, err.Error()))
		return err
	}

	data := predictor.Collect(r.cfg, r.projectDir, buildStatus)
	prediction, err := predictorAgent.Predict(ctx, data)
	if err != nil {
		r.record(rc, result.Finish(proto.StatusError, err.Error()))
		return fmt.Errorf("build prediction failed: %w", err)
	}

	r.say("🔮 Build Prediction: %s", prediction)

	result.SetPayload(proto.KeyPrediction, prediction)
	r.record(rc, result.Finish(proto.StatusSuccess, "prediction produced"))

	if rc.ops != nil {
		encoded, _ := json.Marshal(data)
		if err := rc.ops.SavePrediction(rc.runID, string(encoded), prediction); err != nil {
			r.logger.Warn("Could not persist prediction: %v", err)
		}
	}
	return nil
}
