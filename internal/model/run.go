package model

import "time"

// RunStatus represents the current state of a consolidation run.
type RunStatus string

const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusRunning   RunStatus = "running"
	RunStatusComplete  RunStatus = "complete"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// RunSummary holds the aggregate counts a consolidation run reports.
type RunSummary struct {
	RawTotal       int `json:"raw_total"`
	FilteredIn     int `json:"filtered_in"`
	FilteredOut    int `json:"filtered_out"`
	Consolidated   int `json:"consolidated"`
	Priced         int `json:"priced"`
	SkippedOnError int `json:"skipped_on_error"`
}

// ConsolidationRun is the persisted record of one catalog rebuild.
type ConsolidationRun struct {
	ID          string      `json:"id"`
	Status      RunStatus   `json:"status"`
	Summary     *RunSummary `json:"summary,omitempty"`
	Error       string      `json:"error,omitempty"`
	StartedAt   time.Time   `json:"started_at"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
}
