package model

import "time"

// StepType is the closed set of playbook step kinds. Dispatch on StepType
// is an exhaustive switch; unknown values are an error, not a fallthrough.
type StepType string

const (
	StepValidation      StepType = "validation"
	StepOptimization    StepType = "optimization"
	StepContentCreation StepType = "content_creation"
	StepDeployment      StepType = "deployment"
	StepMeasurement     StepType = "measurement"
	StepPhaseGate       StepType = "phase_gate"
)

// Valid reports whether t is a known step type.
func (t StepType) Valid() bool {
	switch t {
	case StepValidation, StepOptimization, StepContentCreation,
		StepDeployment, StepMeasurement, StepPhaseGate:
		return true
	}
	return false
}

// StepStatus tracks a step execution instance.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// StepExecution is one playbook step run against a session.
type StepExecution struct {
	ID              string         `json:"id"`
	StepExecutionID string         `json:"step_execution_id"`
	ExecutionID     string         `json:"execution_id"`
	WorkspaceID     string         `json:"workspace_id,omitempty"`
	PhaseNumber     int            `json:"phase_number"`
	StepNumber      int            `json:"step_number"`
	StepName        string         `json:"step_name"`
	StepType        StepType       `json:"step_type"`
	Status          StepStatus     `json:"status"`
	InputParams     map[string]any `json:"input_parameters,omitempty"`
	SuccessCriteria map[string]any `json:"success_criteria,omitempty"`
	OutputResults   map[string]any `json:"output_results,omitempty"`
	SuccessAchieved bool           `json:"success_achieved"`
	AIAnalysis      string         `json:"ai_analysis,omitempty"`
	RetryCount      int            `json:"retry_count"`
	StartedAt       *time.Time     `json:"started_at,omitempty"`
	CompletedAt     *time.Time     `json:"completed_at,omitempty"`
	DurationMS      int64          `json:"duration_ms,omitempty"`
	ErrorMessage    string         `json:"error_message,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// StepResult finalizes a running step execution.
type StepResult struct {
	Status          StepStatus     `json:"status"`
	OutputResults   map[string]any `json:"output_results,omitempty"`
	SuccessAchieved bool           `json:"success_achieved"`
	AIAnalysis      string         `json:"ai_analysis,omitempty"`
	ErrorMessage    string         `json:"error_message,omitempty"`
}

// PlaybookExecutionStatus tracks a playbook run across phases.
type PlaybookExecutionStatus string

const (
	PlaybookInitialized      PlaybookExecutionStatus = "initialized"
	PlaybookInProgress       PlaybookExecutionStatus = "in_progress"
	PlaybookPhaseGatePending PlaybookExecutionStatus = "phase_gate_pending"
	PlaybookCompleted        PlaybookExecutionStatus = "completed"
	PlaybookFailed           PlaybookExecutionStatus = "failed"
	PlaybookCancelled        PlaybookExecutionStatus = "cancelled"
)

// PlaybookExecution is one run of a playbook against a session. CurrentPhase
// advances only through an explicit phase transition.
type PlaybookExecution struct {
	ID                  string                  `json:"id"`
	ExecutionID         string                  `json:"execution_id"`
	WorkspaceID         string                  `json:"workspace_id"`
	SessionID           string                  `json:"session_id"`
	PlaybookID          string                  `json:"playbook_id"`
	PlaybookName        string                  `json:"playbook_name"`
	PlaybookVersion     string                  `json:"playbook_version"`
	Status              PlaybookExecutionStatus `json:"status"`
	CurrentPhase        int                     `json:"current_phase"`
	TotalPhases         int                     `json:"total_phases"`
	PhaseCompletionPct  float64                 `json:"phase_completion_percentage"`
	NextActions         []string                `json:"next_actions,omitempty"`
	SuccessCriteriaMet  bool                    `json:"success_criteria_met"`
	StartedAt           time.Time               `json:"started_at"`
	EstimatedCompletion *time.Time              `json:"estimated_completion,omitempty"`
	CompletedAt         *time.Time              `json:"completed_at,omitempty"`
	CreatedAt           time.Time               `json:"created_at"`
	UpdatedAt           time.Time               `json:"updated_at"`
}

// PhaseUpdate moves a playbook execution to a new phase.
type PhaseUpdate struct {
	CurrentPhase        int                     `json:"current_phase"`
	Status              PlaybookExecutionStatus `json:"status"`
	PhaseCompletionPct  float64                 `json:"phase_completion_percentage"`
	NextActions         []string                `json:"next_actions"`
	EstimatedCompletion *time.Time              `json:"estimated_completion,omitempty"`
}
