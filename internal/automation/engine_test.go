package automation

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unson/lpops/internal/config"
	"github.com/unson/lpops/internal/model"
	"github.com/unson/lpops/internal/store"
	"github.com/unson/lpops/pkg/googleads"
	"github.com/unson/lpops/pkg/lpsource"
)

func testClock() time.Time {
	return time.Date(2026, 3, 18, 9, 0, 0, 0, time.UTC)
}

// failingAds simulates an ad platform outage.
type failingAds struct {
	message string
}

func (f *failingAds) Metrics(ctx context.Context, campaignID string) (*googleads.CampaignMetrics, error) {
	return nil, eris.New(f.message)
}

func newTestEngine(t *testing.T, ads googleads.Client) (*Engine, store.Store) {
	t.Helper()
	st, err := store.NewSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })

	if ads == nil {
		ads = googleads.NewStub(
			googleads.WithClock(testClock),
			googleads.WithRateLimit(1000),
		)
	}
	eng := NewEngine(st, ads, lpsource.NewStub("unson", "lp-pages"), config.AutomationConfig{
		RetentionDays:    90,
		BudgetAlertRatio: 1.0,
	})
	eng.now = testClock
	return eng, st
}

func seedSession(t *testing.T, st store.Store, mutate func(*model.Session)) *model.Session {
	t.Helper()
	s := model.Session{
		WorkspaceID:       "ws-1",
		ProductID:         "prod-1",
		ProductName:       "Fitness Coach",
		LPURL:             "https://lp.example.com/fitness-coach",
		Status:            model.SessionStatusActive,
		TargetCVR:         10,
		TargetCPA:         300,
		MinSessions:       1000,
		BudgetLimit:       100000,
		CurrentCVR:        8,
		CurrentCPA:        350,
		CurrentPhase:      1,
		TotalSessions:     500,
		TotalConversions:  40,
		TotalSpend:        14000,
		AutomationEnabled: true,
	}
	if mutate != nil {
		mutate(&s)
	}
	created, err := st.CreateSession(context.Background(), s)
	require.NoError(t, err)
	return created
}

func TestOptimizeGoogleAds(t *testing.T) {
	eng, st := newTestEngine(t, nil)
	s := seedSession(t, st, nil)

	exec, err := eng.OptimizeGoogleAds(context.Background(), s.ID)
	require.NoError(t, err)

	assert.Equal(t, model.ExecutionCompleted, exec.Status)
	assert.Equal(t, model.ExecutionGoogleAdsOptimization, exec.Type)
	require.NotNil(t, exec.MetricsBefore)
	assert.Equal(t, 8.0, exec.MetricsBefore.CVR)
	require.NotNil(t, exec.MetricsAfter)
	assert.NotEmpty(t, exec.AIReasoning)
	assert.Greater(t, exec.Confidence, 0.0)
	assert.LessOrEqual(t, exec.Confidence, 1.0)
	assert.NotEmpty(t, exec.OutputData["adjustments"])
}

func TestOptimizeGoogleAds_DoesNotTouchPhase(t *testing.T) {
	eng, st := newTestEngine(t, nil)
	s := seedSession(t, st, nil)

	// Re-running on unchanged metrics logs new executions, never a phase move.
	_, err := eng.OptimizeGoogleAds(context.Background(), s.ID)
	require.NoError(t, err)
	_, err = eng.OptimizeGoogleAds(context.Background(), s.ID)
	require.NoError(t, err)

	after, err := st.GetSession(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, after.CurrentPhase)

	execs, err := st.ListExecutions(context.Background(), store.ExecutionFilter{SessionID: s.ID})
	require.NoError(t, err)
	assert.Len(t, execs, 2)
}

func TestOptimizeGoogleAds_SessionNotFound(t *testing.T) {
	eng, st := newTestEngine(t, nil)

	_, err := eng.OptimizeGoogleAds(context.Background(), "no-such-session")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")

	// Only the failure record exists, never a completed one.
	execs, err := st.ListExecutions(context.Background(), store.ExecutionFilter{SessionID: "no-such-session"})
	require.NoError(t, err)
	require.Len(t, execs, 1)
	assert.Equal(t, model.ExecutionFailed, execs[0].Status)
	assert.Contains(t, execs[0].ErrorMessage, "not found")
}

func TestOptimizeGoogleAds_FailureEscalatesToAlert(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    model.AlertType
	}{
		{"api outage", "google ads API returned 503", model.AlertAPIError},
		{"other failure", "campaign data incomplete", model.AlertPerformanceDecline},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng, st := newTestEngine(t, &failingAds{message: tt.message})
			s := seedSession(t, st, nil)

			_, err := eng.OptimizeGoogleAds(context.Background(), s.ID)
			require.Error(t, err)

			alerts, err := st.ListAlerts(context.Background(), store.AlertFilter{SessionID: s.ID})
			require.NoError(t, err)
			require.Len(t, alerts, 1)
			assert.Equal(t, tt.want, alerts[0].Type)
			assert.Equal(t, model.SeverityHigh, alerts[0].Severity)
			assert.Contains(t, alerts[0].Message, tt.message)
		})
	}
}

func TestGenerateLPImprovements_BelowTargetOpensPR(t *testing.T) {
	eng, st := newTestEngine(t, nil)
	s := seedSession(t, st, nil)

	exec, err := eng.GenerateLPImprovements(context.Background(), s.ID)
	require.NoError(t, err)

	assert.Equal(t, model.ExecutionCompleted, exec.Status)
	assert.NotEmpty(t, exec.OutputData["suggestions"])
	prURL, ok := exec.OutputData["pr_url"].(string)
	require.True(t, ok)
	assert.Contains(t, prURL, "github.com/unson/lp-pages/pull/")
}

func TestGenerateLPImprovements_OnTargetSuggestsNothing(t *testing.T) {
	eng, st := newTestEngine(t, nil)
	s := seedSession(t, st, func(s *model.Session) {
		s.CurrentCVR = 12
	})

	exec, err := eng.GenerateLPImprovements(context.Background(), s.ID)
	require.NoError(t, err)

	assert.Equal(t, model.ExecutionCompleted, exec.Status)
	_, hasPR := exec.OutputData["pr_url"]
	assert.False(t, hasPR)
}

func TestGenerateLPImprovements_FailureDoesNotAlert(t *testing.T) {
	eng, st := newTestEngine(t, nil)
	s := seedSession(t, st, func(s *model.Session) {
		s.LPURL = ""
	})

	_, err := eng.GenerateLPImprovements(context.Background(), s.ID)
	require.Error(t, err)

	// Failed execution record, but no alert: escalation is ads-only.
	execs, err := st.ListExecutions(context.Background(), store.ExecutionFilter{SessionID: s.ID})
	require.NoError(t, err)
	require.Len(t, execs, 1)
	assert.Equal(t, model.ExecutionFailed, execs[0].Status)

	alerts, err := st.ListAlerts(context.Background(), store.AlertFilter{SessionID: s.ID})
	require.NoError(t, err)
	assert.Empty(t, alerts)
}

func TestUpdateSessionMetrics(t *testing.T) {
	eng, st := newTestEngine(t, nil)
	s := seedSession(t, st, nil)

	exec, err := eng.UpdateSessionMetrics(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ExecutionCompleted, exec.Status)

	after, err := st.GetSession(context.Background(), s.ID)
	require.NoError(t, err)

	rows, err := st.ListDailyMetrics(context.Background(), "2026-03-18", "2026-03-18", []string{s.ID})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Fitness Coach", rows[0].SessionName)

	// Session totals now mirror the campaign snapshot the row was cut from.
	assert.Equal(t, rows[0].Clicks, after.TotalSessions)
	assert.Equal(t, rows[0].CVR, after.CurrentCVR)
}

func TestCheckAlerts(t *testing.T) {
	eng, st := newTestEngine(t, nil)
	s := seedSession(t, st, func(s *model.Session) {
		s.TotalSpend = 150000 // over the 100000 budget
	})

	exec, err := eng.CheckAlerts(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ExecutionCompleted, exec.Status)

	alerts, err := st.ListAlerts(context.Background(), store.AlertFilter{SessionID: s.ID})
	require.NoError(t, err)
	require.Len(t, alerts, 3)

	byType := map[model.AlertType]model.SystemAlert{}
	for _, a := range alerts {
		byType[a.Type] = a
	}
	assert.Equal(t, model.SeverityMedium, byType[model.AlertLowPerformance].Severity)
	assert.Equal(t, model.SeverityMedium, byType[model.AlertHighCPA].Severity)
	assert.Equal(t, model.SeverityCritical, byType[model.AlertBudgetExceeded].Severity)
}

func TestCheckAlerts_HealthySessionIsQuiet(t *testing.T) {
	eng, st := newTestEngine(t, nil)
	s := seedSession(t, st, func(s *model.Session) {
		s.CurrentCVR = 12
		s.CurrentCPA = 250
		s.TotalSpend = 50000
	})

	_, err := eng.CheckAlerts(context.Background(), s.ID)
	require.NoError(t, err)

	alerts, err := st.ListAlerts(context.Background(), store.AlertFilter{SessionID: s.ID})
	require.NoError(t, err)
	assert.Empty(t, alerts)
}

func TestCleanup(t *testing.T) {
	eng, _ := newTestEngine(t, nil)

	result, err := eng.Cleanup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Total())
}
