package persistence

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"devopsteam/pkg/proto"
)

// ErrNotFound is returned when a queried record does not exist.
var ErrNotFound = errors.New("record not found")

// DatabaseOperations provides methods for database operations.
// All reads and writes are scoped to the current session.
type DatabaseOperations struct {
	db        *sql.DB
	sessionID string
}

// NewDatabaseOperations creates a new DatabaseOperations instance.
func NewDatabaseOperations(db *sql.DB, sessionID string) *DatabaseOperations {
	return &DatabaseOperations{db: db, sessionID: sessionID}
}

// CreateRun records the start of a provisioning run.
func (ops *DatabaseOperations) CreateRun(runID, projectDir string) error {
	query := `
		INSERT INTO runs (id, session_id, project_dir, status, started_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := ops.db.Exec(query, runID, ops.sessionID, projectDir, RunStatusRunning, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to create run %s: %w", runID, err)
	}
	return nil
}

// FinishRun marks a run as finished with the given status.
func (ops *DatabaseOperations) FinishRun(runID, status string) error {
	query := `
		UPDATE runs SET status = ?, finished_at = ? WHERE id = ?
	`

	result, err := ops.db.Exec(query, status, time.Now().UTC(), runID)
	if err != nil {
		return fmt.Errorf("failed to finish run %s: %w", runID, err)
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (ops *DatabaseOperations) GetRun(runID string) (*Run, error) {
	query := `
		SELECT id, session_id, project_dir, status, started_at, finished_at
		FROM runs WHERE id = ?
	`

	var run Run
	err := ops.db.QueryRow(query, runID).Scan(
		&run.ID, &run.SessionID, &run.ProjectDir, &run.Status,
		&run.StartedAt, &run.FinishedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run %s: %w", runID, err)
	}
	return &run, nil
}

// ListRuns returns the most recent runs, newest first.
func (ops *DatabaseOperations) ListRuns(limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT id, session_id, project_dir, status, started_at, finished_at
		FROM runs ORDER BY started_at DESC LIMIT ?
	`

	rows, err := ops.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		var run Run
		if err := rows.Scan(&run.ID, &run.SessionID, &run.ProjectDir, &run.Status,
			&run.StartedAt, &run.FinishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, &run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return runs, nil
}

// SaveStageResult persists an agent result as a stage of its run.
func (ops *DatabaseOperations) SaveStageResult(result *proto.AgentResult) error {
	payload, err := json.Marshal(result.Payload)
	if err != nil {
		return fmt.Errorf("failed to encode stage payload: %w", err)
	}

	query := `
		INSERT INTO stage_results (
			run_id, session_id, stage, agent_id, status, summary, payload,
			started_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = ops.db.Exec(query,
		result.RunID, ops.sessionID, string(result.Task), result.AgentID,
		string(result.Status), result.Summary, string(payload),
		result.StartedAt, result.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save stage result for run %s: %w", result.RunID, err)
	}
	return nil
}

// GetStageResults returns all stage results for a run in execution order.
func (ops *DatabaseOperations) GetStageResults(runID string) ([]*StageResult, error) {
	query := `
		SELECT id, run_id, session_id, stage, agent_id, status, summary, payload,
			started_at, finished_at
		FROM stage_results WHERE run_id = ? ORDER BY id
	`

	rows, err := ops.db.Query(query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get stage results for run %s: %w", runID, err)
	}
	defer rows.Close()

	var results []*StageResult
	for rows.Next() {
		var sr StageResult
		if err := rows.Scan(&sr.ID, &sr.RunID, &sr.SessionID, &sr.Stage, &sr.AgentID,
			&sr.Status, &sr.Summary, &sr.Payload, &sr.StartedAt, &sr.FinishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan stage result: %w", err)
		}
		results = append(results, &sr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate stage results: %w", err)
	}
	return results, nil
}

// SaveReviewFeedback records the outcome of reviewing one PR file.
func (ops *DatabaseOperations) SaveReviewFeedback(record *ReviewRecord) error {
	query := `
		INSERT INTO reviews (
			session_id, repo, pr_number, file_path, overall_quality,
			issue_count, suggestion_count, comment_posted
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := ops.db.Exec(query,
		ops.sessionID, record.Repo, record.PRNumber, record.FilePath,
		record.OverallQuality, record.IssueCount, record.SuggestionCount,
		record.CommentPosted,
	)
	if err != nil {
		return fmt.Errorf("failed to save review for %s: %w", record.FilePath, err)
	}
	return nil
}

// GetReviewsForPR returns all review records for one pull request, newest first.
func (ops *DatabaseOperations) GetReviewsForPR(repo string, prNumber int) ([]*ReviewRecord, error) {
	query := `
		SELECT id, session_id, repo, pr_number, file_path, overall_quality,
			issue_count, suggestion_count, comment_posted, created_at
		FROM reviews WHERE repo = ? AND pr_number = ? ORDER BY created_at DESC
	`

	rows, err := ops.db.Query(query, repo, prNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to get reviews for %s#%d: %w", repo, prNumber, err)
	}
	defer rows.Close()

	var records []*ReviewRecord
	for rows.Next() {
		var r ReviewRecord
		if err := rows.Scan(&r.ID, &r.SessionID, &r.Repo, &r.PRNumber, &r.FilePath,
			&r.OverallQuality, &r.IssueCount, &r.SuggestionCount, &r.CommentPosted,
			&r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan review: %w", err)
		}
		records = append(records, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate reviews: %w", err)
	}
	return records, nil
}

// SavePrediction records one build failure prediction.
func (ops *DatabaseOperations) SavePrediction(runID, buildData, prediction string) error {
	query := `
		INSERT INTO predictions (run_id, session_id, build_data, prediction)
		VALUES (?, ?, ?, ?)
	`

	var runRef interface{}
	if runID != "" {
		runRef = runID
	}

	_, err := ops.db.Exec(query, runRef, ops.sessionID, buildData, prediction)
	if err != nil {
		return fmt.Errorf("failed to save prediction: %w", err)
	}
	return nil
}

// GetPredictions returns the most recent predictions, newest first.
func (ops *DatabaseOperations) GetPredictions(limit int) ([]*PredictionRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT id, COALESCE(run_id, ''), session_id, build_data, prediction, created_at
		FROM predictions ORDER BY created_at DESC LIMIT ?
	`

	rows, err := ops.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get predictions: %w", err)
	}
	defer rows.Close()

	var records []*PredictionRecord
	for rows.Next() {
		var p PredictionRecord
		if err := rows.Scan(&p.ID, &p.RunID, &p.SessionID, &p.BuildData,
			&p.Prediction, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan prediction: %w", err)
		}
		records = append(records, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate predictions: %w", err)
	}
	return records, nil
}
