package persistence

import (
	"database/sql"
	"time"
)

// Run status values stored in the runs table.
const (
	RunStatusRunning = "running"
	RunStatusSuccess = "success"
	RunStatusError   = "error"
)

// Run represents one devteam invocation against a project directory.
//
//nolint:govet // struct alignment optimization not critical for this type
type Run struct {
	ID         string
	SessionID  string
	ProjectDir string
	Status     string
	StartedAt  time.Time
	FinishedAt sql.NullTime
}

// StageResult is a persisted agent result for one stage of a run.
//
//nolint:govet // struct alignment optimization not critical for this type
type StageResult struct {
	ID         int64
	RunID      string
	SessionID  string
	Stage      string
	AgentID    string
	Status     string
	Summary    string
	Payload    string // JSON blob of the result payload
	StartedAt  time.Time
	FinishedAt time.Time
}

// ReviewRecord captures the outcome of reviewing one file of a pull request.
//
//nolint:govet // struct alignment optimization not critical for this type
type ReviewRecord struct {
	ID              int64
	SessionID       string
	Repo            string
	PRNumber        int
	FilePath        string
	OverallQuality  string
	IssueCount      int
	SuggestionCount int
	CommentPosted   bool
	CreatedAt       time.Time
}

// PredictionRecord captures one build failure prediction.
//
//nolint:govet // struct alignment optimization not critical for this type
type PredictionRecord struct {
	ID         int64
	RunID      string
	SessionID  string
	BuildData  string // JSON blob of the build signals
	Prediction string
	CreatedAt  time.Time
}
