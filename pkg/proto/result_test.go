package proto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAgentResult(t *testing.T) {
	runID := GenerateRunID()
	result := NewAgentResult(runID, TaskWorkflow, "pipeline")

	require.NotEmpty(t, result.ID)
	assert.Equal(t, runID, result.RunID)
	assert.Equal(t, TaskWorkflow, result.Task)
	assert.Equal(t, "pipeline", result.AgentID)
	assert.Equal(t, StatusSuccess, result.Status)
	assert.False(t, result.StartedAt.IsZero())
	assert.NoError(t, result.Validate())
}

func TestAgentResultPayload(t *testing.T) {
	result := NewAgentResult(GenerateRunID(), TaskBuild, "buildstatus")

	result.SetPayload(KeyBuildStatus, "Docker image 'myapp:latest' exists.")
	val, ok := result.GetPayload(KeyBuildStatus)
	require.True(t, ok)
	assert.Equal(t, "Docker image 'myapp:latest' exists.", val)

	assert.Equal(t, "Docker image 'myapp:latest' exists.", result.GetPayloadString(KeyBuildStatus))
	assert.Empty(t, result.GetPayloadString("missing"))

	// Non-string payload values stringify to empty
	result.SetPayload(KeyConfidence, 0.9)
	assert.Empty(t, result.GetPayloadString(KeyConfidence))
}

func TestAgentResultFinish(t *testing.T) {
	result := NewAgentResult(GenerateRunID(), TaskPredict, "predictor")
	result.Finish(StatusError, "api unavailable")

	assert.Equal(t, StatusError, result.Status)
	assert.Equal(t, "api unavailable", result.Summary)
	assert.False(t, result.FinishedAt.IsZero())
	assert.GreaterOrEqual(t, result.Duration().Nanoseconds(), int64(0))
}

func TestAgentResultValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*AgentResult)
		wantErr string
	}{
		{
			name:    "missing id",
			mutate:  func(r *AgentResult) { r.ID = "" },
			wantErr: "result ID is required",
		},
		{
			name:    "missing run id",
			mutate:  func(r *AgentResult) { r.RunID = "" },
			wantErr: "run ID is required",
		},
		{
			name:    "invalid task kind",
			mutate:  func(r *AgentResult) { r.Task = "deploy" },
			wantErr: "invalid task kind",
		},
		{
			name:    "missing agent id",
			mutate:  func(r *AgentResult) { r.AgentID = "" },
			wantErr: "agent ID is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := NewAgentResult(GenerateRunID(), TaskChat, "chat")
			tt.mutate(result)
			err := result.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateTaskKind(t *testing.T) {
	for _, valid := range []string{"workflow", "dockerfile", "build", "predict", "review", "chat"} {
		kind, ok := ValidateTaskKind(valid)
		assert.True(t, ok, "expected %s to be valid", valid)
		assert.Equal(t, TaskKind(valid), kind)
	}

	_, ok := ValidateTaskKind("deploy")
	assert.False(t, ok)
}

func TestRunEventJSONRoundTrip(t *testing.T) {
	event := NewRunEvent(GenerateRunID(), EventStageFinished, "dockerfile")
	event.SetPayload(KeyArtifactPath, "Dockerfile")

	data, err := event.ToJSON()
	require.NoError(t, err)

	parsed, err := EventFromJSON(data)
	require.NoError(t, err)
	assert.Equal(t, event.ID, parsed.ID)
	assert.Equal(t, event.RunID, parsed.RunID)
	assert.Equal(t, EventStageFinished, parsed.Type)
	assert.Equal(t, "dockerfile", parsed.AgentID)
	assert.Equal(t, "Dockerfile", parsed.Payload[KeyArtifactPath])
}

func TestEventFromJSONInvalid(t *testing.T) {
	_, err := EventFromJSON([]byte("{not json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to unmarshal run event")
}
