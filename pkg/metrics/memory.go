package metrics

import (
	"sync"
	"time"
)

// MemoryRecorder implements the Recorder interface using in-memory aggregation.
// This is much simpler than Prometheus and doesn't require external services;
// the runner uses it for end-of-run summaries when no Prometheus URL is set.
type MemoryRecorder struct {
	runs map[string]*RunTotals // runID -> aggregated totals
	mu   sync.RWMutex
}

// RunTotals represents aggregated LLM usage for one run.
//
//nolint:govet
type RunTotals struct {
	PromptTokens     int64     `json:"prompt_tokens"`
	CompletionTokens int64     `json:"completion_tokens"`
	TotalTokens      int64     `json:"total_tokens"`
	RequestCount     int64     `json:"request_count"`
	FailureCount     int64     `json:"failure_count"`
	ThrottleCount    int64     `json:"throttle_count"`
	TotalCostUSD     float64   `json:"total_cost_usd"`
	RunID            string    `json:"run_id"`
	LastUpdated      time.Time `json:"last_updated"`
}

var (
	// Singleton instance and initialization synchronization.
	memoryInstance *MemoryRecorder //nolint:gochecknoglobals
	memoryOnce     sync.Once       //nolint:gochecknoglobals
)

// NewMemoryRecorder returns a singleton in-memory metrics recorder.
func NewMemoryRecorder() *MemoryRecorder {
	memoryOnce.Do(func() {
		memoryInstance = &MemoryRecorder{
			runs: make(map[string]*RunTotals),
		}
	})
	return memoryInstance
}

// ObserveRequest records metrics for a completed LLM request.
func (r *MemoryRecorder) ObserveRequest(
	_, runID, _, _ string,
	promptTokens, completionTokens int,
	cost float64,
	success bool,
	_ string,
	_ time.Duration,
) {
	if runID == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	run := r.getOrCreateLocked(runID)
	run.RequestCount++
	run.LastUpdated = time.Now()

	if !success {
		run.FailureCount++
		return
	}

	// Tokens and cost only accumulate for successful requests
	run.PromptTokens += int64(promptTokens)
	run.CompletionTokens += int64(completionTokens)
	run.TotalTokens = run.PromptTokens + run.CompletionTokens
	run.TotalCostUSD += cost
}

// IncThrottle counts rate limiting events. Without a run label the event is
// attributed to every active run, which for a single CLI run is exact.
func (r *MemoryRecorder) IncThrottle(_, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, run := range r.runs {
		run.ThrottleCount++
	}
}

// ObserveQueueWait does nothing in the in-memory recorder.
func (r *MemoryRecorder) ObserveQueueWait(_ string, _ time.Duration) {}

// GetRunTotals returns a copy of the aggregated totals for a run, or nil
// when the run recorded nothing.
func (r *MemoryRecorder) GetRunTotals(runID string) *RunTotals {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if run, exists := r.runs[runID]; exists {
		copied := *run
		return &copied
	}
	return nil
}

// ClearRun removes totals for a run (useful for testing).
func (r *MemoryRecorder) ClearRun(runID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.runs, runID)
}

func (r *MemoryRecorder) getOrCreateLocked(runID string) *RunTotals {
	run, exists := r.runs[runID]
	if !exists {
		run = &RunTotals{RunID: runID}
		r.runs[runID] = run
	}
	return run
}
