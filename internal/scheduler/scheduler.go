// Package scheduler drives the automation engine on fixed cadences. Jobs
// are fire-and-forget: outcomes surface through the execution log and the
// alert feed, and failures never stop the loop.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/unson/lpops/internal/automation"
	"github.com/unson/lpops/internal/config"
	"github.com/unson/lpops/internal/model"
	"github.com/unson/lpops/internal/report"
	"github.com/unson/lpops/internal/store"
)

// sessionAction is one engine entry point applied to a single session.
type sessionAction func(ctx context.Context, sessionID string) (*model.AutomationExecution, error)

// Job is one cadenced unit of work.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context)
}

// Scheduler owns the job loops and the per-session serialization guard.
type Scheduler struct {
	engine  *automation.Engine
	reports *report.Service
	store   store.Store
	cfg     config.SchedulerConfig
	timeout time.Duration

	inFlight sync.Map // session id -> struct{}
}

// New wires a scheduler. actionTimeout bounds each per-session action; zero
// means two minutes. reports may be nil to skip the daily report job.
func New(eng *automation.Engine, reports *report.Service, st store.Store, cfg config.SchedulerConfig, actionTimeout time.Duration) *Scheduler {
	if actionTimeout <= 0 {
		actionTimeout = 2 * time.Minute
	}
	return &Scheduler{
		engine:  eng,
		reports: reports,
		store:   st,
		cfg:     cfg,
		timeout: actionTimeout,
	}
}

// Jobs returns the cadenced job set.
func (s *Scheduler) Jobs() []Job {
	jobs := []Job{
		{
			Name:     "ad_optimization",
			Interval: hours(s.cfg.AdOptimizationHours, 4),
			Run: func(ctx context.Context) {
				s.sweep(ctx, "ad_optimization", s.engine.OptimizeGoogleAds)
			},
		},
		{
			Name:     "lp_suggestions",
			Interval: hours(s.cfg.LPSuggestionHours, 24),
			Run: func(ctx context.Context) {
				s.sweep(ctx, "lp_suggestions", s.engine.GenerateLPImprovements)
			},
		},
		{
			Name:     "metrics_refresh",
			Interval: minutes(s.cfg.MetricsRefreshMins, 60),
			Run: func(ctx context.Context) {
				s.sweep(ctx, "metrics_refresh", s.engine.UpdateSessionMetrics)
			},
		},
		{
			Name:     "alert_check",
			Interval: minutes(s.cfg.AlertCheckMins, 30),
			Run: func(ctx context.Context) {
				s.sweep(ctx, "alert_check", s.engine.CheckAlerts)
			},
		},
		{
			Name:     "phase_gate",
			Interval: hours(s.cfg.PhaseGateHours, 24),
			Run: func(ctx context.Context) {
				s.sweep(ctx, "phase_gate", func(ctx context.Context, sessionID string) (*model.AutomationExecution, error) {
					_, err := s.engine.EvaluatePhaseGate(ctx, sessionID)
					return nil, err
				})
			},
		},
		{
			Name:     "cleanup",
			Interval: hours(s.cfg.CleanupHours, 168),
			Run: func(ctx context.Context) {
				ctx, cancel := context.WithTimeout(ctx, s.timeout)
				defer cancel()
				if _, err := s.engine.Cleanup(ctx); err != nil {
					zap.L().Error("cleanup job failed", zap.Error(err))
				}
			},
		},
	}

	if s.reports != nil {
		jobs = append(jobs, Job{
			Name:     "daily_report",
			Interval: hours(24, 24),
			Run: func(ctx context.Context) {
				ctx, cancel := context.WithTimeout(ctx, s.timeout)
				defer cancel()
				result := s.reports.ScheduledReport(ctx, model.ReportDaily)
				if !result.Success {
					zap.L().Error("daily report job failed", zap.String("error", result.Error))
				}
			},
		})
	}
	return jobs
}

// Run blocks, ticking every job at its interval, until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, job := range s.Jobs() {
		job := job
		g.Go(func() error {
			zap.L().Info("job scheduled",
				zap.String("job", job.Name),
				zap.Duration("interval", job.Interval),
			)
			ticker := time.NewTicker(job.Interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-ticker.C:
					job.Run(ctx)
				}
			}
		})
	}
	return g.Wait()
}

// sweep applies an action to every active automation-enabled session. Each
// session gets a bounded context, and a session already being worked on by
// another job is skipped: metrics read-then-write is not atomic, so at most
// one automation runs per session at a time.
func (s *Scheduler) sweep(ctx context.Context, jobName string, action sessionAction) {
	sessions, err := s.store.ListSessions(ctx, store.SessionFilter{
		Status:         model.SessionStatusActive,
		AutomationOnly: true,
	})
	if err != nil {
		zap.L().Error("sweep: list sessions failed",
			zap.String("job", jobName),
			zap.Error(err),
		)
		return
	}

	for _, session := range sessions {
		if !s.acquire(session.ID) {
			zap.L().Debug("sweep: session busy, skipping",
				zap.String("job", jobName),
				zap.String("session_id", session.ID),
			)
			continue
		}

		actionCtx, cancel := context.WithTimeout(ctx, s.timeout)
		_, err := action(actionCtx, session.ID)
		cancel()
		s.release(session.ID)

		if err != nil {
			// Already recorded in the execution log; the loop moves on.
			zap.L().Warn("sweep: action failed",
				zap.String("job", jobName),
				zap.String("session_id", session.ID),
				zap.Error(err),
			)
		}
	}
}

func (s *Scheduler) acquire(sessionID string) bool {
	_, loaded := s.inFlight.LoadOrStore(sessionID, struct{}{})
	return !loaded
}

func (s *Scheduler) release(sessionID string) {
	s.inFlight.Delete(sessionID)
}

func hours(n, fallback int) time.Duration {
	if n <= 0 {
		n = fallback
	}
	return time.Duration(n) * time.Hour
}

func minutes(n, fallback int) time.Duration {
	if n <= 0 {
		n = fallback
	}
	return time.Duration(n) * time.Minute
}
