package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unson/lpops/internal/automation"
	"github.com/unson/lpops/internal/config"
	"github.com/unson/lpops/internal/model"
	"github.com/unson/lpops/internal/report"
	"github.com/unson/lpops/internal/store"
	"github.com/unson/lpops/pkg/googleads"
	"github.com/unson/lpops/pkg/lpsource"
)

func newTestEnv(t *testing.T) *Env {
	t.Helper()
	st, err := store.NewSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })

	engine := automation.NewEngine(st,
		googleads.NewStub(googleads.WithRateLimit(1000)),
		lpsource.NewStub("unson", "lp-pages"),
		config.AutomationConfig{RetentionDays: 90, BudgetAlertRatio: 1.0},
	)
	return &Env{
		Store:   st,
		Engine:  engine,
		Reports: report.NewService(st, config.ReportConfig{}, nil),
	}
}

func TestRouter_Health(t *testing.T) {
	srv := httptest.NewServer(newRouter(newTestEnv(t)))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestRouter_SessionExecutionsAndEvaluate(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(newRouter(env))
	defer srv.Close()

	s, err := env.Store.CreateSession(context.Background(), model.Session{
		ProductID:   "prod-1",
		ProductName: "Fitness Coach",
		Status:      model.SessionStatusActive,
		TargetCVR:   10,
		TargetCPA:   300,
		MinSessions: 1000,
		CurrentCVR:  8,
		CurrentCPA:  350,
	})
	require.NoError(t, err)

	// Fire a phase-gate evaluation through the API.
	resp, err := http.Post(srv.URL+"/sessions/"+s.ID+"/evaluate", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var gate automation.GateResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&gate))
	assert.False(t, gate.Ready)
	assert.NotEmpty(t, gate.Recommendations)

	// The evaluation left an execution record behind.
	execResp, err := http.Get(srv.URL + "/sessions/" + s.ID + "/executions")
	require.NoError(t, err)
	defer execResp.Body.Close()
	require.Equal(t, http.StatusOK, execResp.StatusCode)

	var execs []model.AutomationExecution
	require.NoError(t, json.NewDecoder(execResp.Body).Decode(&execs))
	require.Len(t, execs, 1)
	assert.Equal(t, model.ExecutionPhaseGateEvaluation, execs[0].Type)
}

func TestRouter_LatestReportNotFound(t *testing.T) {
	srv := httptest.NewServer(newRouter(newTestEnv(t)))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/reports/latest?type=weekly")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRouter_ActiveAlerts(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(newRouter(env))
	defer srv.Close()

	_, err := env.Store.CreateAlert(context.Background(), model.SystemAlert{
		SessionID: "sess-1",
		Type:      model.AlertHighCPA,
		Severity:  model.SeverityMedium,
		Message:   "CPA 350 above target 300",
	})
	require.NoError(t, err)

	resp, err := http.Get(srv.URL + "/alerts/active")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var alerts []model.SystemAlert
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&alerts))
	require.Len(t, alerts, 1)
	assert.Equal(t, model.AlertHighCPA, alerts[0].Type)
}
