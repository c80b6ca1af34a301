package scheduler

import (
	"time"
)

// Status represents the lifecycle state of one optimization run
type Status string

const (
	StatusPending    Status = "pending"
	StatusRunning    Status = "running"
	StatusPassed     Status = "passed"
	StatusFailed     Status = "failed"
	StatusRolledBack Status = "rolled_back"
)

// ParamChange represents how one parameter moved between the active
// version and the winning candidate
type ParamChange struct {
	Old       float64 `json:"old"`
	New       float64 `json:"new"`
	ChangePct float64 `json:"change_pct"`
}

// CandidateMetrics represents the winning candidate's aggregate
// validation metrics
type CandidateMetrics struct {
	MeanOOSSharpe    float64 `json:"mean_oos_sharpe"`
	MeanOOSReturn    float64 `json:"mean_oos_return"`
	MeanOOSDrawdown  float64 `json:"mean_oos_drawdown"`
	MeanOOSWinRate   float64 `json:"mean_oos_win_rate"`
	AvgSharpeDecay   float64 `json:"avg_sharpe_decay"`
	OverfittingScore float64 `json:"overfitting_score"`
}

// OptimizationResult represents the outcome of one scheduler run.
// Governance failures (bounds, improvement, validation) surface here as
// StatusFailed with a reason, never as errors.
type OptimizationResult struct {
	ID        string    `json:"id"`
	Strategy  string    `json:"strategy"`
	StartedAt time.Time `json:"started_at"`
	Frequency string    `json:"frequency"`
	Status    Status    `json:"status"`

	PreviousVersionID string `json:"previous_version_id,omitempty"`
	NewVersionID      string `json:"new_version_id,omitempty"`
	ValidationPassed  bool   `json:"validation_passed"`

	BestMetrics  *CandidateMetrics      `json:"best_metrics,omitempty"`
	ParamChanges map[string]ParamChange `json:"param_changes,omitempty"`

	Reason   string        `json:"reason,omitempty"`
	Duration time.Duration `json:"duration"`
}

// PendingConfirmation represents the probation marker set when a version
// is promoted. The expected Sharpe is pinned here at promotion time.
type PendingConfirmation struct {
	Strategy          string    `json:"strategy"`
	VersionID         string    `json:"version_id"`
	PreviousVersionID string    `json:"previous_version_id,omitempty"`
	ResultID          string    `json:"result_id"`
	PromotedAt        time.Time `json:"promoted_at"`
	Deadline          time.Time `json:"deadline"`
	ExpectedSharpe    float64   `json:"expected_sharpe"`
}
