package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/unson/lpops/internal/model"
)

// ErrNotFound is the sentinel for lookups against missing entities. Callers
// that record failures instead of propagating them check with errors.Is.
var ErrNotFound = eris.New("not found")

// SessionFilter specifies criteria for listing sessions.
type SessionFilter struct {
	Status         model.SessionStatus `json:"status,omitempty"`
	WorkspaceID    string              `json:"workspace_id,omitempty"`
	AutomationOnly bool                `json:"automation_only,omitempty"`
	Limit          int                 `json:"limit,omitempty"`
}

// ExecutionFilter specifies criteria for listing automation executions.
type ExecutionFilter struct {
	SessionID string                `json:"session_id,omitempty"`
	Type      model.ExecutionType   `json:"execution_type,omitempty"`
	Status    model.ExecutionStatus `json:"status,omitempty"`
	Limit     int                   `json:"limit,omitempty"`
}

// AlertFilter specifies criteria for listing system alerts.
type AlertFilter struct {
	SessionID string              `json:"session_id,omitempty"`
	Status    model.AlertStatus   `json:"status,omitempty"`
	Severity  model.AlertSeverity `json:"severity,omitempty"`
	Limit     int                 `json:"limit,omitempty"`
}

// CleanupResult reports what a retention pass removed.
type CleanupResult struct {
	ExecutionsDeleted     int `json:"executions_deleted"`
	AlertsDeleted         int `json:"alerts_deleted"`
	StepExecutionsDeleted int `json:"step_executions_deleted"`
}

// Total returns the number of rows removed across all tables.
func (r CleanupResult) Total() int {
	return r.ExecutionsDeleted + r.AlertsDeleted + r.StepExecutionsDeleted
}

// Store defines the persistence interface for the validation campaign
// lifecycle: sessions, the automation execution log, alerts, daily metric
// rows, generated reports, and playbook progress.
type Store interface {
	// Sessions
	CreateSession(ctx context.Context, s model.Session) (*model.Session, error)
	GetSession(ctx context.Context, id string) (*model.Session, error)
	ListSessions(ctx context.Context, filter SessionFilter) ([]model.Session, error)
	UpdateSessionMetrics(ctx context.Context, id string, m model.MetricsUpdate) error
	UpdateSessionStatus(ctx context.Context, id string, status model.SessionStatus) error
	AdvanceSessionPhase(ctx context.Context, id string, phase int) error

	// Automation execution log. BeginExecution writes a running record
	// before any work happens; FinalizeExecution flips it to a terminal
	// status exactly once. Finalized records are immutable.
	BeginExecution(ctx context.Context, exec model.AutomationExecution) (*model.AutomationExecution, error)
	FinalizeExecution(ctx context.Context, executionID string, result model.ExecutionResult) error
	GetExecution(ctx context.Context, executionID string) (*model.AutomationExecution, error)
	ListExecutions(ctx context.Context, filter ExecutionFilter) ([]model.AutomationExecution, error)

	// Alerts
	CreateAlert(ctx context.Context, alert model.SystemAlert) (*model.SystemAlert, error)
	ListAlerts(ctx context.Context, filter AlertFilter) ([]model.SystemAlert, error)
	AcknowledgeAlert(ctx context.Context, alertID string) error
	ResolveAlert(ctx context.Context, alertID, resolvedBy, notes string) error

	// Daily metric rows, one per session per date. These feed report
	// generation and are idempotent on (session_id, date).
	UpsertDailyMetrics(ctx context.Context, rows []model.SessionMetrics) (int64, error)
	ListDailyMetrics(ctx context.Context, start, end string, sessionIDs []string) ([]model.SessionMetrics, error)

	// Reports
	SaveReport(ctx context.Context, report model.MetricsReport) error
	GetReport(ctx context.Context, id string) (*model.MetricsReport, error)
	LatestReport(ctx context.Context, typ model.ReportType) (*model.MetricsReport, error)
	ListReports(ctx context.Context, limit int) ([]model.MetricsReport, error)

	// Playbook executions
	CreatePlaybookExecution(ctx context.Context, pe model.PlaybookExecution) (*model.PlaybookExecution, error)
	GetPlaybookExecution(ctx context.Context, executionID string) (*model.PlaybookExecution, error)
	ActivePlaybookExecution(ctx context.Context, sessionID string) (*model.PlaybookExecution, error)
	UpdatePlaybookPhase(ctx context.Context, executionID string, upd model.PhaseUpdate) error

	// Step executions
	CreateStepExecution(ctx context.Context, se model.StepExecution) (*model.StepExecution, error)
	GetStepExecution(ctx context.Context, stepExecutionID string) (*model.StepExecution, error)
	FinalizeStepExecution(ctx context.Context, stepExecutionID string, result model.StepResult) error

	// Maintenance
	Cleanup(ctx context.Context, olderThan time.Time) (*CleanupResult, error)
	Migrate(ctx context.Context) error
	Close() error
}
