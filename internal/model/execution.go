package model

import "time"

// ExecutionType identifies which automation action produced a log entry.
type ExecutionType string

const (
	ExecutionGoogleAdsOptimization ExecutionType = "google_ads_optimization"
	ExecutionLPContentOptimization ExecutionType = "lp_content_optimization"
	ExecutionPhaseGateEvaluation   ExecutionType = "phase_gate_evaluation"
	ExecutionPlaybookStep          ExecutionType = "playbook_step_execution"
	ExecutionPhaseTransition       ExecutionType = "playbook_phase_transition"
	ExecutionMetricsUpdate         ExecutionType = "session_metrics_update"
	ExecutionAlertCheck            ExecutionType = "alert_check"
	ExecutionCleanup               ExecutionType = "system_cleanup"
)

// Valid reports whether t is a known execution type.
func (t ExecutionType) Valid() bool {
	switch t {
	case ExecutionGoogleAdsOptimization, ExecutionLPContentOptimization,
		ExecutionPhaseGateEvaluation, ExecutionPlaybookStep,
		ExecutionPhaseTransition, ExecutionMetricsUpdate,
		ExecutionAlertCheck, ExecutionCleanup:
		return true
	}
	return false
}

// ExecutionStatus tracks an automation run from start to finalization.
type ExecutionStatus string

const (
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
)

// Finalized reports whether the execution record is immutable.
func (s ExecutionStatus) Finalized() bool {
	return s == ExecutionCompleted || s == ExecutionFailed
}

// MetricSnapshot captures CVR/CPA at a point in time, recorded before and
// after an automation action.
type MetricSnapshot struct {
	CVR float64 `json:"cvr"`
	CPA float64 `json:"cpa"`
}

// AutomationExecution is one record per automation run. It is created with
// status running before any work happens and finalized exactly once.
type AutomationExecution struct {
	ID            string          `json:"id"`
	ExecutionID   string          `json:"execution_id"`
	SessionID     string          `json:"session_id"`
	WorkspaceID   string          `json:"workspace_id,omitempty"`
	Type          ExecutionType   `json:"execution_type"`
	Status        ExecutionStatus `json:"status"`
	InputData     map[string]any  `json:"input_data,omitempty"`
	OutputData    map[string]any  `json:"output_data,omitempty"`
	MetricsBefore *MetricSnapshot `json:"metrics_before,omitempty"`
	MetricsAfter  *MetricSnapshot `json:"metrics_after,omitempty"`
	AIReasoning   string          `json:"ai_reasoning,omitempty"`
	Confidence    float64         `json:"confidence_score,omitempty"`
	ErrorMessage  string          `json:"error_message,omitempty"`
	StartedAt     time.Time       `json:"started_at"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
	DurationMS    int64           `json:"duration_ms,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// ExecutionResult finalizes a running execution.
type ExecutionResult struct {
	Status        ExecutionStatus `json:"status"`
	OutputData    map[string]any  `json:"output_data,omitempty"`
	MetricsBefore *MetricSnapshot `json:"metrics_before,omitempty"`
	MetricsAfter  *MetricSnapshot `json:"metrics_after,omitempty"`
	AIReasoning   string          `json:"ai_reasoning,omitempty"`
	Confidence    float64         `json:"confidence_score,omitempty"`
	ErrorMessage  string          `json:"error_message,omitempty"`
}
