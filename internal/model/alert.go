package model

import "time"

// AlertType classifies system alerts raised by automation actions.
type AlertType string

const (
	AlertBudgetExceeded      AlertType = "budget_exceeded"
	AlertPerformanceDecline  AlertType = "performance_decline"
	AlertTargetNotMet        AlertType = "target_not_met"
	AlertAPIError            AlertType = "api_error"
	AlertPhaseTransitionReady AlertType = "phase_transition_ready"
	AlertLowPerformance      AlertType = "low_performance"
	AlertHighCPA             AlertType = "high_cpa"
)

// AlertSeverity orders alerts by urgency.
type AlertSeverity string

const (
	SeverityCritical AlertSeverity = "critical"
	SeverityHigh     AlertSeverity = "high"
	SeverityMedium   AlertSeverity = "medium"
	SeverityLow      AlertSeverity = "low"
)

// AlertStatus tracks an alert from creation to resolution.
type AlertStatus string

const (
	AlertActive       AlertStatus = "active"
	AlertAcknowledged AlertStatus = "acknowledged"
	AlertResolved     AlertStatus = "resolved"
)

// SystemAlert is a derived fact about a session, created when an automation
// action crosses a threshold and resolved manually or by a later pass.
type SystemAlert struct {
	ID              string        `json:"id"`
	AlertID         string        `json:"alert_id"`
	WorkspaceID     string        `json:"workspace_id,omitempty"`
	SessionID       string        `json:"session_id,omitempty"`
	ExecutionID     string        `json:"execution_id,omitempty"`
	Type            AlertType     `json:"alert_type"`
	Severity        AlertSeverity `json:"severity"`
	Title           string        `json:"title"`
	Message         string        `json:"message"`
	Status          AlertStatus   `json:"status"`
	ResolvedBy      string        `json:"resolved_by,omitempty"`
	ResolvedAt      *time.Time    `json:"resolved_at,omitempty"`
	ResolutionNotes string        `json:"resolution_notes,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
}

// DefaultAlertTitle returns the standard title for an alert type, used when
// the caller does not supply one.
func DefaultAlertTitle(t AlertType) string {
	switch t {
	case AlertBudgetExceeded:
		return "Budget exceeded"
	case AlertPerformanceDecline:
		return "Performance decline"
	case AlertTargetNotMet:
		return "Target not met"
	case AlertAPIError:
		return "External API error"
	case AlertPhaseTransitionReady:
		return "Phase transition ready"
	case AlertLowPerformance:
		return "Low performance"
	case AlertHighCPA:
		return "High CPA"
	}
	return string(t)
}
