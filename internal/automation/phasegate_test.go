package automation

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unson/lpops/internal/model"
	"github.com/unson/lpops/internal/store"
)

func TestEvaluatePhaseGate_AllCombinations(t *testing.T) {
	// Readiness is the AND of four independent achievements; all 16 input
	// combinations, no partial credit.
	for mask := 0; mask < 16; mask++ {
		cvrOK := mask&1 != 0
		cpaOK := mask&2 != 0
		sigOK := mask&4 != 0
		sessOK := mask&8 != 0

		t.Run(fmt.Sprintf("cvr=%t_cpa=%t_sig=%t_sessions=%t", cvrOK, cpaOK, sigOK, sessOK), func(t *testing.T) {
			eng, st := newTestEngine(t, nil)
			s := seedSession(t, st, func(s *model.Session) {
				if cvrOK {
					s.CurrentCVR = 12
				} else {
					s.CurrentCVR = 8
				}
				if cpaOK {
					s.CurrentCPA = 250
				} else {
					s.CurrentCPA = 350
				}
				s.StatisticalSignificance = sigOK
				if sessOK {
					s.TotalSessions = 1200
				} else {
					s.TotalSessions = 500
				}
			})

			gate, err := eng.EvaluatePhaseGate(context.Background(), s.ID)
			require.NoError(t, err)

			assert.Equal(t, cvrOK, gate.CVRAchieved)
			assert.Equal(t, cpaOK, gate.CPAAchieved)
			assert.Equal(t, sigOK, gate.SignificanceAchieved)
			assert.Equal(t, sessOK, gate.MinSessionsAchieved)
			assert.Equal(t, cvrOK && cpaOK && sigOK && sessOK, gate.Ready)
		})
	}
}

func TestEvaluatePhaseGate_ReadyRaisesAlertWithoutTransition(t *testing.T) {
	eng, st := newTestEngine(t, nil)
	s := seedSession(t, st, func(s *model.Session) {
		s.CurrentCVR = 12
		s.CurrentCPA = 250
		s.StatisticalSignificance = true
		s.TotalSessions = 1200
	})

	gate, err := eng.EvaluatePhaseGate(context.Background(), s.ID)
	require.NoError(t, err)
	assert.True(t, gate.Ready)
	assert.Empty(t, gate.Recommendations)

	alerts, err := st.ListAlerts(context.Background(), store.AlertFilter{SessionID: s.ID})
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, model.AlertPhaseTransitionReady, alerts[0].Type)
	assert.Equal(t, model.SeverityMedium, alerts[0].Severity)

	// Detection never mutates: the phase moves only via ExecutePhaseTransition.
	after, err := st.GetSession(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, after.CurrentPhase)
}

func TestEvaluatePhaseGate_Recommendations(t *testing.T) {
	eng, st := newTestEngine(t, nil)
	// CVR 8 vs 10, CPA 350 vs 300, no significance, sessions met.
	s := seedSession(t, st, func(s *model.Session) {
		s.TotalSessions = 1200
	})

	gate, err := eng.EvaluatePhaseGate(context.Background(), s.ID)
	require.NoError(t, err)
	assert.False(t, gate.Ready)

	joined := strings.Join(gate.Recommendations, "\n")
	assert.Contains(t, joined, "improve CVR")
	assert.Contains(t, joined, "reduce CPA")

	// Largest relative gap first: significance (0.5) > CVR (0.2) > CPA (0.17).
	require.Len(t, gate.Recommendations, 3)
	assert.Contains(t, gate.Recommendations[0], "statistically significant")
	assert.Contains(t, gate.Recommendations[1], "improve CVR")
	assert.Contains(t, gate.Recommendations[2], "reduce CPA")
}

func TestExecutePhaseTransition(t *testing.T) {
	eng, st := newTestEngine(t, nil)
	s := seedSession(t, st, nil)

	pe, err := st.CreatePlaybookExecution(context.Background(), model.PlaybookExecution{
		SessionID:    s.ID,
		WorkspaceID:  s.WorkspaceID,
		PlaybookID:   "lp-validation-standard",
		PlaybookName: "LP Validation Standard",
		Status:       model.PlaybookInProgress,
		CurrentPhase: 1,
		TotalPhases:  5,
	})
	require.NoError(t, err)

	exec, err := eng.ExecutePhaseTransition(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ExecutionCompleted, exec.Status)

	after, err := st.GetSession(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, after.CurrentPhase)

	peAfter, err := st.GetPlaybookExecution(context.Background(), pe.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, 2, peAfter.CurrentPhase)
	assert.Equal(t, model.PlaybookInProgress, peAfter.Status)
	assert.InDelta(t, 40, peAfter.PhaseCompletionPct, 0.01)
}

func TestExecutePhaseTransition_CompletesPlaybookAtLastPhase(t *testing.T) {
	eng, st := newTestEngine(t, nil)
	s := seedSession(t, st, func(s *model.Session) {
		s.CurrentPhase = 4
	})

	pe, err := st.CreatePlaybookExecution(context.Background(), model.PlaybookExecution{
		SessionID:    s.ID,
		PlaybookID:   "lp-validation-standard",
		Status:       model.PlaybookInProgress,
		CurrentPhase: 4,
		TotalPhases:  5,
	})
	require.NoError(t, err)

	_, err = eng.ExecutePhaseTransition(context.Background(), s.ID)
	require.NoError(t, err)

	peAfter, err := st.GetPlaybookExecution(context.Background(), pe.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, model.PlaybookCompleted, peAfter.Status)
	assert.Equal(t, 100.0, peAfter.PhaseCompletionPct)
	assert.NotNil(t, peAfter.CompletedAt)
}

func TestExecutePhaseTransition_NoPlaybook(t *testing.T) {
	eng, st := newTestEngine(t, nil)
	s := seedSession(t, st, nil)

	_, err := eng.ExecutePhaseTransition(context.Background(), s.ID)
	require.NoError(t, err)

	after, err := st.GetSession(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, after.CurrentPhase)
}

func TestExecutePhaseTransition_TerminalSessionRefused(t *testing.T) {
	eng, st := newTestEngine(t, nil)
	s := seedSession(t, st, nil)
	require.NoError(t, st.UpdateSessionStatus(context.Background(), s.ID, model.SessionStatusCompleted))

	_, err := eng.ExecutePhaseTransition(context.Background(), s.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no further transitions")
}
