package stores

import "time"

// RunStatus is the terminal status of a recorded plan run.
type RunStatus string

const (
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// RunRecord is one appended run-history row. Records are write-once: the
// history is an audit trail, never a work queue.
type RunRecord struct {
	ID              string    `json:"id"`
	PlanPath        string    `json:"plan_path"`
	PlanFingerprint string    `json:"plan_fingerprint"`
	Phases          string    `json:"phases"`
	DryRun          bool      `json:"dry_run"`
	Shadow          bool      `json:"shadow"`
	Status          RunStatus `json:"status"`
	Error           *string   `json:"error,omitempty"`
	OpsTotal        int       `json:"ops_total"`
	OpsApplied      int       `json:"ops_applied"`
	OpsNoop         int       `json:"ops_noop"`
	OpsSkipped      int       `json:"ops_skipped"`
	OpsFailed       int       `json:"ops_failed"`

	// Results is the per-op outcome list as a JSON blob.
	Results string `json:"results"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}
