// Package proto defines the task, result, and event types shared between the
// orchestrator and the agents.
package proto

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"devopsteam/pkg/utils"
)

// TaskKind identifies the DevOps concern an agent is responsible for.
type TaskKind string

const (
	TaskWorkflow   TaskKind = "workflow"   // GitHub Actions workflow generation
	TaskDockerfile TaskKind = "dockerfile" // Dockerfile generation
	TaskBuild      TaskKind = "build"      // Docker image build + existence check
	TaskPredict    TaskKind = "predict"    // Build failure prediction
	TaskReview     TaskKind = "review"     // Pull request code review
	TaskChat       TaskKind = "chat"       // Pull request chat assistant
)

// ValidateTaskKind validates a string as a task kind.
func ValidateTaskKind(s string) (TaskKind, bool) {
	switch TaskKind(s) {
	case TaskWorkflow, TaskDockerfile, TaskBuild, TaskPredict, TaskReview, TaskChat:
		return TaskKind(s), true
	default:
		return "", false
	}
}

// Status represents the outcome of an agent stage.
type Status string

const (
	// StatusSuccess indicates the stage completed and produced its result.
	StatusSuccess Status = "success"

	// StatusError indicates the stage failed; Summary carries the reason.
	StatusError Status = "error"

	// StatusSkipped indicates the stage did not run (e.g. no API key configured).
	StatusSkipped Status = "skipped"
)

// Common payload keys used in agent results.
const (
	KeyArtifactPath    = "artifact_path"
	KeyBuildStatus     = "build_status"
	KeyBuildOutput     = "build_output"
	KeyPrediction      = "prediction"
	KeyConfidence      = "confidence"
	KeyRefinementNotes = "refinement_notes"
	KeyPullRequest     = "pull_request"
	KeyFilesReviewed   = "files_reviewed"
)

// AgentResult is the outcome of one agent stage. Results are forwarded to
// later stages as context and persisted per run.
type AgentResult struct {
	ID         string         `json:"id"`
	RunID      string         `json:"run_id"`
	Task       TaskKind       `json:"task"`
	AgentID    string         `json:"agent_id"`
	Status     Status         `json:"status"`
	Summary    string         `json:"summary,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
}

// NewAgentResult creates a result shell for a stage that is starting now.
func NewAgentResult(runID string, task TaskKind, agentID string) *AgentResult {
	return &AgentResult{
		ID:        uuid.New().String(),
		RunID:     runID,
		Task:      task,
		AgentID:   agentID,
		Status:    StatusSuccess,
		Payload:   make(map[string]any),
		StartedAt: time.Now().UTC(),
	}
}

// SetPayload stores a payload value, allocating the map if needed.
func (r *AgentResult) SetPayload(key string, value any) {
	if r.Payload == nil {
		r.Payload = make(map[string]any)
	}
	r.Payload[key] = value
}

// GetPayload returns a payload value and whether it was present.
func (r *AgentResult) GetPayload(key string) (any, bool) {
	if r.Payload == nil {
		return nil, false
	}
	val, exists := r.Payload[key]
	return val, exists
}

// GetPayloadString returns a payload value as a string, or "" when absent or
// not a string.
func (r *AgentResult) GetPayloadString(key string) string {
	return utils.GetMapFieldOr(r.Payload, key, "")
}

// Finish marks the result complete with the given status and summary.
func (r *AgentResult) Finish(status Status, summary string) *AgentResult {
	r.Status = status
	r.Summary = summary
	r.FinishedAt = time.Now().UTC()
	return r
}

// Duration returns how long the stage ran, or 0 if it has not finished.
func (r *AgentResult) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Validate checks the result has all required fields.
func (r *AgentResult) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("result ID is required")
	}
	if r.RunID == "" {
		return fmt.Errorf("run ID is required")
	}
	if _, valid := ValidateTaskKind(string(r.Task)); !valid {
		return fmt.Errorf("invalid task kind: %s", r.Task)
	}
	if r.AgentID == "" {
		return fmt.Errorf("agent ID is required")
	}
	return nil
}

// EventType classifies run events written to the event log.
type EventType string

const (
	EventRunStarted    EventType = "run_started"
	EventRunFinished   EventType = "run_finished"
	EventStageStarted  EventType = "stage_started"
	EventStageFinished EventType = "stage_finished"
	EventArtifact      EventType = "artifact_written"
	EventComment       EventType = "comment_posted"
)

// RunEvent is a single event-log record for a run.
type RunEvent struct {
	ID        string         `json:"id"`
	RunID     string         `json:"run_id"`
	Type      EventType      `json:"type"`
	AgentID   string         `json:"agent_id,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// NewRunEvent creates an event stamped with the current time.
func NewRunEvent(runID string, eventType EventType, agentID string) *RunEvent {
	return &RunEvent{
		ID:        uuid.New().String(),
		RunID:     runID,
		Type:      eventType,
		AgentID:   agentID,
		Timestamp: time.Now().UTC(),
		Payload:   make(map[string]any),
	}
}

// SetPayload stores a payload value, allocating the map if needed.
func (e *RunEvent) SetPayload(key string, value any) {
	if e.Payload == nil {
		e.Payload = make(map[string]any)
	}
	e.Payload[key] = value
}

// ToJSON serializes the event for the JSONL event log.
func (e *RunEvent) ToJSON() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal run event: %w", err)
	}
	return data, nil
}

// EventFromJSON parses a single event-log line.
func EventFromJSON(data []byte) (*RunEvent, error) {
	var event RunEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run event: %w", err)
	}
	return &event, nil
}

// GenerateRunID generates a new UUID for a run.
func GenerateRunID() string {
	return uuid.New().String()
}
