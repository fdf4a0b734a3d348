package model

import "time"

// SessionStatus represents the lifecycle state of a validation session.
type SessionStatus string

const (
	SessionStatusActive    SessionStatus = "active"
	SessionStatusPaused    SessionStatus = "paused"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusFailed    SessionStatus = "failed"
)

// Terminal reports whether the status is an end state. Sessions are never
// physically deleted; completed/failed is as far as they go.
func (s SessionStatus) Terminal() bool {
	return s == SessionStatusCompleted || s == SessionStatusFailed
}

// Session is one LP-validation campaign run for a candidate product.
// CurrentCVR/CurrentCPA always hold the latest snapshot; CurrentPhase only
// moves forward, and only through an explicit phase transition.
type Session struct {
	ID          string        `json:"id"`
	WorkspaceID string        `json:"workspace_id"`
	ProductID   string        `json:"product_id"`
	ProductName string        `json:"product_name"`
	LPURL       string        `json:"lp_url,omitempty"`
	Status      SessionStatus `json:"status"`

	TargetCVR   float64 `json:"target_cvr"`
	TargetCPA   float64 `json:"target_cpa"`
	MinSessions int     `json:"min_sessions"`
	BudgetLimit float64 `json:"budget_limit,omitempty"`

	CurrentCVR   float64 `json:"current_cvr"`
	CurrentCPA   float64 `json:"current_cpa"`
	CurrentPhase int     `json:"current_phase"`

	TotalSessions    int     `json:"total_sessions"`
	TotalConversions int     `json:"total_conversions"`
	TotalSpend       float64 `json:"total_spend"`

	StatisticalSignificance bool       `json:"statistical_significance"`
	ConfidenceInterval      []float64  `json:"confidence_interval,omitempty"`

	CampaignID        string `json:"campaign_id,omitempty"`
	AutomationEnabled bool   `json:"automation_enabled"`
	AutoOptimization  bool   `json:"auto_optimization"`
	AutoDeployment    bool   `json:"auto_deployment"`
	PlaybookID        string `json:"playbook_id,omitempty"`

	StartDate time.Time  `json:"start_date"`
	EndDate   *time.Time `json:"end_date,omitempty"`
	CreatedBy string     `json:"created_by,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// MetricsUpdate carries a fresh metrics snapshot to apply to a session.
type MetricsUpdate struct {
	CurrentCVR              float64   `json:"current_cvr"`
	CurrentCPA              float64   `json:"current_cpa"`
	TotalSessions           int       `json:"total_sessions"`
	TotalConversions        int       `json:"total_conversions"`
	TotalSpend              float64   `json:"total_spend"`
	StatisticalSignificance bool      `json:"statistical_significance"`
	ConfidenceInterval      []float64 `json:"confidence_interval,omitempty"`
}
