package persistence

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devopsteam/pkg/proto"
)

func openTestDB(t *testing.T) *DatabaseOperations {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "devteam.db")
	db, err := InitializeDatabase(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return NewDatabaseOperations(db, "test-session")
}

func TestSchemaVersion(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "devteam.db")

	db, err := InitializeDatabase(dbPath)
	require.NoError(t, err)

	version, err := GetSchemaVersion(db)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, version)
	require.NoError(t, db.Close())

	// Re-opening an initialized database is a no-op.
	db, err = InitializeDatabase(dbPath)
	require.NoError(t, err)
	defer db.Close()

	version, err = GetSchemaVersion(db)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, version)
}

func TestRunLifecycle(t *testing.T) {
	ops := openTestDB(t)

	runID := proto.GenerateRunID()
	require.NoError(t, ops.CreateRun(runID, "/tmp/project"))

	run, err := ops.GetRun(runID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusRunning, run.Status)
	assert.Equal(t, "/tmp/project", run.ProjectDir)
	assert.Equal(t, "test-session", run.SessionID)
	assert.False(t, run.FinishedAt.Valid)

	require.NoError(t, ops.FinishRun(runID, RunStatusSuccess))

	run, err = ops.GetRun(runID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusSuccess, run.Status)
	assert.True(t, run.FinishedAt.Valid)
}

func TestFinishRunNotFound(t *testing.T) {
	ops := openTestDB(t)

	err := ops.FinishRun("no-such-run", RunStatusSuccess)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetRunNotFound(t *testing.T) {
	ops := openTestDB(t)

	_, err := ops.GetRun("no-such-run")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListRuns(t *testing.T) {
	ops := openTestDB(t)

	for i := 0; i < 3; i++ {
		require.NoError(t, ops.CreateRun(proto.GenerateRunID(), "/tmp/project"))
	}

	runs, err := ops.ListRuns(2)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestSaveAndGetStageResults(t *testing.T) {
	ops := openTestDB(t)

	runID := proto.GenerateRunID()
	require.NoError(t, ops.CreateRun(runID, "/tmp/project"))

	result := proto.NewAgentResult(runID, proto.TaskWorkflow, "pipeline")
	result.SetPayload(proto.KeyArtifactPath, ".github/workflows/ci.yml")
	result.Finish(proto.StatusSuccess, "workflow generated")
	require.NoError(t, ops.SaveStageResult(result))

	failed := proto.NewAgentResult(runID, proto.TaskBuild, "buildstatus")
	failed.Finish(proto.StatusError, "docker build failed")
	require.NoError(t, ops.SaveStageResult(failed))

	results, err := ops.GetStageResults(runID)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, string(proto.TaskWorkflow), results[0].Stage)
	assert.Equal(t, string(proto.StatusSuccess), results[0].Status)
	assert.Contains(t, results[0].Payload, ".github/workflows/ci.yml")

	assert.Equal(t, string(proto.TaskBuild), results[1].Stage)
	assert.Equal(t, string(proto.StatusError), results[1].Status)
}

func TestStageResultsCascadeOnRunDelete(t *testing.T) {
	ops := openTestDB(t)

	runID := proto.GenerateRunID()
	require.NoError(t, ops.CreateRun(runID, "/tmp/project"))

	result := proto.NewAgentResult(runID, proto.TaskDockerfile, "dockerfile")
	result.Finish(proto.StatusSuccess, "dockerfile written")
	require.NoError(t, ops.SaveStageResult(result))

	_, err := ops.db.Exec("DELETE FROM runs WHERE id = ?", runID)
	require.NoError(t, err)

	results, err := ops.GetStageResults(runID)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSaveAndGetReviews(t *testing.T) {
	ops := openTestDB(t)

	record := &ReviewRecord{
		Repo:            "acme/widgets",
		PRNumber:        7,
		FilePath:        "app/main.py",
		OverallQuality:  "good",
		IssueCount:      2,
		SuggestionCount: 1,
		CommentPosted:   true,
	}
	require.NoError(t, ops.SaveReviewFeedback(record))

	records, err := ops.GetReviewsForPR("acme/widgets", 7)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "app/main.py", records[0].FilePath)
	assert.Equal(t, 2, records[0].IssueCount)
	assert.True(t, records[0].CommentPosted)
	assert.WithinDuration(t, time.Now().UTC(), records[0].CreatedAt, time.Minute)

	// Other PRs are not returned.
	records, err = ops.GetReviewsForPR("acme/widgets", 8)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestSaveAndGetPredictions(t *testing.T) {
	ops := openTestDB(t)

	runID := proto.GenerateRunID()
	require.NoError(t, ops.CreateRun(runID, "/tmp/project"))
	require.NoError(t, ops.SavePrediction(runID, `{"dockerfile_exists":true}`, "Build likely to succeed"))

	// Predictions without a run are allowed.
	require.NoError(t, ops.SavePrediction("", `{"dockerfile_exists":false}`, "Build likely to fail"))

	records, err := ops.GetPredictions(10)
	require.NoError(t, err)
	require.Len(t, records, 2)
}

func TestSingletonInitializeAndReset(t *testing.T) {
	require.NoError(t, Reset())

	dbPath := filepath.Join(t.TempDir(), "devteam.db")
	require.NoError(t, Initialize(dbPath, "session-a"))
	defer func() { _ = Reset() }()

	assert.True(t, IsInitialized())
	assert.Equal(t, "session-a", GetSessionID())

	var db *sql.DB = GetDB()
	assert.NotNil(t, db)

	ops := Ops()
	runID := proto.GenerateRunID()
	require.NoError(t, ops.CreateRun(runID, "/tmp/project"))

	run, err := ops.GetRun(runID)
	require.NoError(t, err)
	assert.Equal(t, "session-a", run.SessionID)

	require.NoError(t, Reset())
	assert.False(t, IsInitialized())
}
