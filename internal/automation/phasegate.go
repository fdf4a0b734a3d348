package automation

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/rotisserie/eris"

	"github.com/unson/lpops/internal/model"
	"github.com/unson/lpops/internal/store"
)

// GateResult is the outcome of a phase-gate evaluation: four independent
// achievements, their AND, and what to work on if not ready.
type GateResult struct {
	CVRAchieved          bool     `json:"cvr_achieved"`
	CPAAchieved          bool     `json:"cpa_achieved"`
	SignificanceAchieved bool     `json:"significance_achieved"`
	MinSessionsAchieved  bool     `json:"min_sessions_achieved"`
	Ready                bool     `json:"phase_transition_ready"`
	Recommendations      []string `json:"recommendations,omitempty"`
}

// EvaluatePhaseGate checks whether a session has earned its next phase. All
// four achievements must hold; there is no partial credit. A ready gate
// raises a phase_transition_ready alert and nothing else: the actual phase
// increment is ExecutePhaseTransition, invoked separately, so detection and
// mutation stay decoupled.
func (e *Engine) EvaluatePhaseGate(ctx context.Context, sessionID string) (*GateResult, error) {
	var gate *GateResult
	_, err := e.run(ctx, model.ExecutionPhaseGateEvaluation, sessionID, false, func(ctx context.Context, s *model.Session) (*model.ExecutionResult, error) {
		gate = evaluateGate(s)

		if gate.Ready {
			if _, err := e.store.CreateAlert(ctx, model.SystemAlert{
				SessionID: s.ID,
				Type:      model.AlertPhaseTransitionReady,
				Severity:  model.SeverityMedium,
				Message: fmt.Sprintf("session %s cleared phase %d gate (CVR %.1f%%, CPA %.0f, %d sessions)",
					s.ID, s.CurrentPhase, s.CurrentCVR, s.CurrentCPA, s.TotalSessions),
			}); err != nil {
				return nil, err
			}
		}

		confidence := 0.6
		if gate.Ready {
			confidence = 0.9
		}
		return &model.ExecutionResult{
			OutputData: map[string]any{
				"cvr_achieved":           gate.CVRAchieved,
				"cpa_achieved":           gate.CPAAchieved,
				"significance_achieved":  gate.SignificanceAchieved,
				"min_sessions_achieved":  gate.MinSessionsAchieved,
				"phase_transition_ready": gate.Ready,
				"recommendations":        gate.Recommendations,
			},
			MetricsBefore: snapshot(s),
			MetricsAfter:  snapshot(s),
			AIReasoning:   gateReasoning(s, gate),
			Confidence:    confidence,
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return gate, nil
}

// evaluateGate computes the four achievements and, for each miss, a
// recommendation. Recommendations are ordered largest relative gap first.
func evaluateGate(s *model.Session) *GateResult {
	g := &GateResult{
		CVRAchieved:          s.CurrentCVR >= s.TargetCVR,
		CPAAchieved:          s.CurrentCPA <= s.TargetCPA,
		SignificanceAchieved: s.StatisticalSignificance,
		MinSessionsAchieved:  s.TotalSessions >= s.MinSessions,
	}
	g.Ready = g.CVRAchieved && g.CPAAchieved && g.SignificanceAchieved && g.MinSessionsAchieved
	if g.Ready {
		return g
	}

	type gap struct {
		relative float64
		text     string
	}
	var gaps []gap
	if !g.CVRAchieved {
		rel := 1.0
		if s.TargetCVR > 0 {
			rel = (s.TargetCVR - s.CurrentCVR) / s.TargetCVR
		}
		gaps = append(gaps, gap{rel, fmt.Sprintf("improve CVR: %.1f%% now, %.1f%% needed", s.CurrentCVR, s.TargetCVR)})
	}
	if !g.CPAAchieved {
		rel := 1.0
		if s.TargetCPA > 0 {
			rel = (s.CurrentCPA - s.TargetCPA) / s.TargetCPA
		}
		gaps = append(gaps, gap{rel, fmt.Sprintf("reduce CPA: %.0f now, %.0f needed", s.CurrentCPA, s.TargetCPA)})
	}
	if !g.SignificanceAchieved {
		gaps = append(gaps, gap{0.5, "keep collecting data until results are statistically significant"})
	}
	if !g.MinSessionsAchieved {
		rel := 1.0
		if s.MinSessions > 0 {
			rel = float64(s.MinSessions-s.TotalSessions) / float64(s.MinSessions)
		}
		gaps = append(gaps, gap{rel, fmt.Sprintf("increase traffic: %d more sessions needed", s.MinSessions-s.TotalSessions)})
	}

	sort.SliceStable(gaps, func(i, j int) bool { return gaps[i].relative > gaps[j].relative })
	g.Recommendations = make([]string, len(gaps))
	for i, gp := range gaps {
		g.Recommendations[i] = gp.text
	}
	return g
}

func gateReasoning(s *model.Session, g *GateResult) string {
	if g.Ready {
		return fmt.Sprintf("all four gate criteria met at phase %d", s.CurrentPhase)
	}
	return fmt.Sprintf("gate not cleared: cvr=%t cpa=%t significance=%t min_sessions=%t",
		g.CVRAchieved, g.CPAAchieved, g.SignificanceAchieved, g.MinSessionsAchieved)
}

// ExecutePhaseTransition is the only mutation path for a session's phase.
// It bumps the session one phase forward and, when a playbook run is
// active, advances that run in step. Phases never move backward.
func (e *Engine) ExecutePhaseTransition(ctx context.Context, sessionID string) (*model.AutomationExecution, error) {
	return e.run(ctx, model.ExecutionPhaseTransition, sessionID, false, func(ctx context.Context, s *model.Session) (*model.ExecutionResult, error) {
		if s.Status.Terminal() {
			return nil, eris.Errorf("automation: session %s is %s, no further transitions", s.ID, s.Status)
		}

		next := s.CurrentPhase + 1
		if err := e.store.AdvanceSessionPhase(ctx, s.ID, next); err != nil {
			return nil, err
		}

		output := map[string]any{
			"previous_phase": s.CurrentPhase,
			"new_phase":      next,
		}

		pe, err := e.store.ActivePlaybookExecution(ctx, s.ID)
		switch {
		case err == nil:
			upd := model.PhaseUpdate{
				CurrentPhase: pe.CurrentPhase + 1,
				Status:       model.PlaybookInProgress,
			}
			if pe.TotalPhases > 0 {
				upd.PhaseCompletionPct = float64(upd.CurrentPhase) / float64(pe.TotalPhases) * 100
				if upd.CurrentPhase >= pe.TotalPhases {
					upd.Status = model.PlaybookCompleted
					upd.PhaseCompletionPct = 100
				}
			}
			if err := e.store.UpdatePlaybookPhase(ctx, pe.ExecutionID, upd); err != nil {
				return nil, err
			}
			output["playbook_execution_id"] = pe.ExecutionID
			output["playbook_phase"] = upd.CurrentPhase
		case errors.Is(err, store.ErrNotFound):
			// No playbook attached; the session phase alone moves.
		default:
			return nil, err
		}

		return &model.ExecutionResult{
			OutputData:    output,
			MetricsBefore: snapshot(s),
			MetricsAfter:  snapshot(s),
			AIReasoning:   fmt.Sprintf("phase %d -> %d", s.CurrentPhase, next),
			Confidence:    1,
		}, nil
	})
}
