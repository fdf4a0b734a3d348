// Package automation implements the rule engine behind campaign automation.
// Every action follows the same protocol: write a running execution record
// before any work, do the work, then finalize that record exactly once as
// completed or failed. Failures surface through the execution log and the
// alert feed; this layer never retries.
package automation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/unson/lpops/internal/config"
	"github.com/unson/lpops/internal/model"
	"github.com/unson/lpops/internal/store"
	"github.com/unson/lpops/pkg/googleads"
	"github.com/unson/lpops/pkg/lpsource"
)

// Engine dispatches automation actions against sessions.
type Engine struct {
	store store.Store
	ads   googleads.Client
	lp    lpsource.Client
	cfg   config.AutomationConfig
	now   func() time.Time
	seq   atomic.Int64
}

// NewEngine wires an engine. Nil clients fall back to the stubs.
func NewEngine(st store.Store, ads googleads.Client, lp lpsource.Client, cfg config.AutomationConfig) *Engine {
	if ads == nil {
		ads = googleads.NewStub()
	}
	if lp == nil {
		lp = lpsource.NewStub("", "")
	}
	return &Engine{
		store: st,
		ads:   ads,
		lp:    lp,
		cfg:   cfg,
		now:   time.Now,
	}
}

// actionFunc does the analyze/decide/act/predict work of one action. It
// receives the session loaded under the execution record and returns the
// finalization payload.
type actionFunc func(ctx context.Context, s *model.Session) (*model.ExecutionResult, error)

// run is the Execute-Log-Alert protocol shared by every action: begin a
// running record, load the session, do the work, finalize. A session lookup
// miss is fatal and leaves only the failure record behind. escalate controls
// whether a failure additionally raises a severity-high alert.
func (e *Engine) run(ctx context.Context, typ model.ExecutionType, sessionID string, escalate bool, fn actionFunc) (*model.AutomationExecution, error) {
	exec, err := e.store.BeginExecution(ctx, model.AutomationExecution{
		ExecutionID: e.nextExecutionID(typ),
		SessionID:   sessionID,
		Type:        typ,
		Status:      model.ExecutionRunning,
	})
	if err != nil {
		return nil, eris.Wrapf(err, "automation: begin %s", typ)
	}

	session, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			err = eris.Wrapf(err, "automation: session %s not found", sessionID)
		}
		return nil, e.fail(ctx, exec, sessionID, escalate, err)
	}

	result, err := fn(ctx, session)
	if err != nil {
		return nil, e.fail(ctx, exec, sessionID, escalate, err)
	}

	result.Status = model.ExecutionCompleted
	if err := e.store.FinalizeExecution(ctx, exec.ExecutionID, *result); err != nil {
		return nil, eris.Wrapf(err, "automation: finalize %s", exec.ExecutionID)
	}

	zap.L().Info("automation action completed",
		zap.String("execution_id", exec.ExecutionID),
		zap.String("session_id", sessionID),
		zap.String("type", string(typ)),
	)
	final, err := e.store.GetExecution(ctx, exec.ExecutionID)
	if err != nil {
		return nil, eris.Wrapf(err, "automation: reload %s", exec.ExecutionID)
	}
	return final, nil
}

// fail finalizes the execution as failed, optionally escalates to an alert,
// and hands the original error back to the caller. Retry policy lives with
// the scheduler, not here.
func (e *Engine) fail(ctx context.Context, exec *model.AutomationExecution, sessionID string, escalate bool, cause error) error {
	if ferr := e.store.FinalizeExecution(ctx, exec.ExecutionID, model.ExecutionResult{
		Status:       model.ExecutionFailed,
		ErrorMessage: cause.Error(),
	}); ferr != nil {
		zap.L().Error("failed to record execution failure",
			zap.String("execution_id", exec.ExecutionID),
			zap.Error(ferr),
		)
	}

	if escalate {
		alertType := model.AlertPerformanceDecline
		if strings.Contains(strings.ToLower(cause.Error()), "api") {
			alertType = model.AlertAPIError
		}
		if _, aerr := e.store.CreateAlert(ctx, model.SystemAlert{
			SessionID:   sessionID,
			ExecutionID: exec.ExecutionID,
			Type:        alertType,
			Severity:    model.SeverityHigh,
			Message:     cause.Error(),
		}); aerr != nil {
			zap.L().Error("failed to raise failure alert",
				zap.String("execution_id", exec.ExecutionID),
				zap.Error(aerr),
			)
		}
	}

	zap.L().Warn("automation action failed",
		zap.String("execution_id", exec.ExecutionID),
		zap.String("session_id", sessionID),
		zap.Error(cause),
	)
	return cause
}

// nextExecutionID builds a timestamp-derived id. The sequence suffix keeps
// ids unique when actions start within the same millisecond.
func (e *Engine) nextExecutionID(typ model.ExecutionType) string {
	return fmt.Sprintf("exec-%s-%d-%d", typ, e.now().UnixMilli(), e.seq.Add(1))
}

// snapshot captures the session's current CVR/CPA.
func snapshot(s *model.Session) *model.MetricSnapshot {
	return &model.MetricSnapshot{CVR: s.CurrentCVR, CPA: s.CurrentCPA}
}

// campaignID resolves the ad campaign for a session.
func campaignID(s *model.Session) string {
	if s.CampaignID != "" {
		return s.CampaignID
	}
	return "campaign-" + s.ID
}
