package automation

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/unson/lpops/internal/metrics"
	"github.com/unson/lpops/internal/model"
	"github.com/unson/lpops/internal/store"
)

// UpdateSessionMetrics pulls the campaign snapshot, recomputes the
// session's current CVR/CPA and running totals, and writes today's daily
// metrics row for reporting.
func (e *Engine) UpdateSessionMetrics(ctx context.Context, sessionID string) (*model.AutomationExecution, error) {
	return e.run(ctx, model.ExecutionMetricsUpdate, sessionID, false, func(ctx context.Context, s *model.Session) (*model.ExecutionResult, error) {
		before := snapshot(s)

		campaign, err := e.ads.Metrics(ctx, campaignID(s))
		if err != nil {
			return nil, err
		}

		// Campaign numbers are cumulative; clicks stand in for sessions.
		upd := model.MetricsUpdate{
			CurrentCVR:              metrics.CVR(campaign.Conversions, campaign.Clicks),
			CurrentCPA:              metrics.CPA(campaign.Cost, campaign.Conversions),
			TotalSessions:           campaign.Clicks,
			TotalConversions:        campaign.Conversions,
			TotalSpend:              campaign.Cost,
			StatisticalSignificance: s.StatisticalSignificance,
			ConfidenceInterval:      s.ConfidenceInterval,
		}
		if err := e.store.UpdateSessionMetrics(ctx, s.ID, upd); err != nil {
			return nil, err
		}

		today := e.now().UTC().Format("2006-01-02")
		deltaSessions := campaign.Clicks - s.TotalSessions
		deltaConversions := campaign.Conversions - s.TotalConversions
		if deltaSessions < 0 {
			deltaSessions = 0
		}
		if deltaConversions < 0 {
			deltaConversions = 0
		}
		if _, err := e.store.UpsertDailyMetrics(ctx, []model.SessionMetrics{{
			SessionID:   s.ID,
			SessionName: s.ProductName,
			Date:        today,
			CVR:         upd.CurrentCVR,
			CPA:         upd.CurrentCPA,
			Sessions:    deltaSessions,
			Conversions: deltaConversions,
			Revenue:     0,
			Clicks:      campaign.Clicks,
			Impressions: campaign.Impressions,
			CTR:         metrics.CTR(campaign.Clicks, campaign.Impressions),
		}}); err != nil {
			return nil, err
		}

		return &model.ExecutionResult{
			OutputData: map[string]any{
				"total_sessions":    upd.TotalSessions,
				"total_conversions": upd.TotalConversions,
				"total_spend":       upd.TotalSpend,
				"date":              today,
			},
			MetricsBefore: before,
			MetricsAfter:  &model.MetricSnapshot{CVR: upd.CurrentCVR, CPA: upd.CurrentCPA},
			AIReasoning:   fmt.Sprintf("metrics refreshed: CVR %.1f%% -> %.1f%%", before.CVR, upd.CurrentCVR),
			Confidence:    1,
		}, nil
	})
}

// CheckAlerts sweeps a session's thresholds and raises one alert per
// crossed line: CVR under target, CPA over target, spend over budget.
func (e *Engine) CheckAlerts(ctx context.Context, sessionID string) (*model.AutomationExecution, error) {
	return e.run(ctx, model.ExecutionAlertCheck, sessionID, false, func(ctx context.Context, s *model.Session) (*model.ExecutionResult, error) {
		type breach struct {
			typ      model.AlertType
			severity model.AlertSeverity
			message  string
		}
		var breaches []breach

		if s.TargetCVR > 0 && s.CurrentCVR < s.TargetCVR {
			breaches = append(breaches, breach{
				model.AlertLowPerformance, model.SeverityMedium,
				fmt.Sprintf("CVR %.1f%% below target %.1f%%", s.CurrentCVR, s.TargetCVR),
			})
		}
		if s.TargetCPA > 0 && s.CurrentCPA > s.TargetCPA {
			breaches = append(breaches, breach{
				model.AlertHighCPA, model.SeverityMedium,
				fmt.Sprintf("CPA %.0f above target %.0f", s.CurrentCPA, s.TargetCPA),
			})
		}
		if s.BudgetLimit > 0 && s.TotalSpend > s.BudgetLimit*e.budgetRatio() {
			breaches = append(breaches, breach{
				model.AlertBudgetExceeded, model.SeverityCritical,
				fmt.Sprintf("spend %.0f over budget limit %.0f", s.TotalSpend, s.BudgetLimit),
			})
		}

		raised := make([]string, 0, len(breaches))
		for _, b := range breaches {
			if _, err := e.store.CreateAlert(ctx, model.SystemAlert{
				SessionID: s.ID,
				Type:      b.typ,
				Severity:  b.severity,
				Message:   b.message,
			}); err != nil {
				return nil, err
			}
			raised = append(raised, string(b.typ))
		}

		return &model.ExecutionResult{
			OutputData: map[string]any{
				"alerts_raised": raised,
			},
			MetricsBefore: snapshot(s),
			MetricsAfter:  snapshot(s),
			AIReasoning:   fmt.Sprintf("%d thresholds crossed", len(raised)),
			Confidence:    1,
		}, nil
	})
}

func (e *Engine) budgetRatio() float64 {
	if e.cfg.BudgetAlertRatio > 0 {
		return e.cfg.BudgetAlertRatio
	}
	return 1
}

// Cleanup removes finalized executions, resolved alerts, and terminal step
// executions older than the retention window. It is system-wide, not
// session-scoped, so it bypasses the per-session protocol.
func (e *Engine) Cleanup(ctx context.Context) (*store.CleanupResult, error) {
	days := e.cfg.RetentionDays
	if days <= 0 {
		days = 90
	}
	cutoff := e.now().UTC().AddDate(0, 0, -days)

	result, err := e.store.Cleanup(ctx, cutoff)
	if err != nil {
		return nil, err
	}
	zap.L().Info("retention cleanup done",
		zap.Time("cutoff", cutoff),
		zap.Int("removed", result.Total()),
	)
	return result, nil
}
