package model

import "time"

// RunStatus represents the current state of a pipeline execution.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusAborted  RunStatus = "aborted"
	RunStatusFailed   RunStatus = "failed"
)

// Run is one invocation of the pipeline as recorded in the run ledger.
// Several executions may share a CheckpointID when a run is resumed.
type Run struct {
	ID           string     `json:"id"`
	CheckpointID string     `json:"checkpoint_id"`
	InputPath    string     `json:"input_path"`
	OutputPath   string     `json:"output_path"`
	Status       RunStatus  `json:"status"`
	Summary      *RunResult `json:"summary,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// RunResult is the ledger copy of the manifest headline numbers.
type RunResult struct {
	RowsIn        int     `json:"rows_in"`
	RowsOut       int     `json:"rows_out"`
	DedupRemoved  int     `json:"dedup_removed"`
	FailedBatches int     `json:"failed_batches"`
	CostUSD       float64 `json:"cost_usd,omitempty"`
	Error         string  `json:"error,omitempty"`
}

// BatchOutcome is a terminal batch transition recorded in the run ledger.
type BatchOutcome struct {
	BatchID    int         `json:"batch_id"`
	Status     BatchStatus `json:"status"`
	Attempts   int         `json:"attempts"`
	Rows       int         `json:"rows"`
	LatencyMs  int64       `json:"latency_ms"`
	CostUSD    float64     `json:"cost_usd"`
	Error      string      `json:"error,omitempty"`
	FinishedAt time.Time   `json:"finished_at"`
}
