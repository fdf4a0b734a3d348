package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unson/lpops/internal/automation"
	"github.com/unson/lpops/internal/config"
	"github.com/unson/lpops/internal/model"
	"github.com/unson/lpops/internal/store"
	"github.com/unson/lpops/pkg/googleads"
	"github.com/unson/lpops/pkg/lpsource"
)

func newTestScheduler(t *testing.T) (*Scheduler, store.Store) {
	t.Helper()
	st, err := store.NewSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })

	eng := automation.NewEngine(st,
		googleads.NewStub(googleads.WithRateLimit(1000)),
		lpsource.NewStub("unson", "lp-pages"),
		config.AutomationConfig{RetentionDays: 90, BudgetAlertRatio: 1.0},
	)
	return New(eng, nil, st, config.SchedulerConfig{}, time.Second), st
}

func seedAutomatedSession(t *testing.T, st store.Store, enabled bool) *model.Session {
	t.Helper()
	s, err := st.CreateSession(context.Background(), model.Session{
		WorkspaceID:       "ws-1",
		ProductID:         "prod-1",
		ProductName:       "Fitness Coach",
		LPURL:             "https://lp.example.com/fitness-coach",
		Status:            model.SessionStatusActive,
		TargetCVR:         10,
		TargetCPA:         300,
		MinSessions:       1000,
		CurrentCVR:        8,
		CurrentCPA:        350,
		AutomationEnabled: enabled,
	})
	require.NoError(t, err)
	return s
}

func TestJobs_CadenceDefaults(t *testing.T) {
	sched, _ := newTestScheduler(t)

	byName := map[string]time.Duration{}
	for _, job := range sched.Jobs() {
		byName[job.Name] = job.Interval
	}

	assert.Equal(t, 4*time.Hour, byName["ad_optimization"])
	assert.Equal(t, 24*time.Hour, byName["lp_suggestions"])
	assert.Equal(t, time.Hour, byName["metrics_refresh"])
	assert.Equal(t, 30*time.Minute, byName["alert_check"])
	assert.Equal(t, 24*time.Hour, byName["phase_gate"])
	assert.Equal(t, 168*time.Hour, byName["cleanup"])

	// No report service wired, no report job.
	_, ok := byName["daily_report"]
	assert.False(t, ok)
}

func TestSweep_RunsActionPerAutomatedSession(t *testing.T) {
	sched, st := newTestScheduler(t)
	enabled := seedAutomatedSession(t, st, true)
	disabled := seedAutomatedSession(t, st, false)

	var seen []string
	sched.sweep(context.Background(), "test", func(ctx context.Context, sessionID string) (*model.AutomationExecution, error) {
		seen = append(seen, sessionID)
		return nil, nil
	})

	assert.Equal(t, []string{enabled.ID}, seen)
	assert.NotContains(t, seen, disabled.ID)
}

func TestSweep_SkipsBusySessions(t *testing.T) {
	sched, st := newTestScheduler(t)
	s := seedAutomatedSession(t, st, true)

	require.True(t, sched.acquire(s.ID))

	var calls int
	sched.sweep(context.Background(), "test", func(ctx context.Context, sessionID string) (*model.AutomationExecution, error) {
		calls++
		return nil, nil
	})
	assert.Zero(t, calls)

	// Released sessions are swept again.
	sched.release(s.ID)
	sched.sweep(context.Background(), "test", func(ctx context.Context, sessionID string) (*model.AutomationExecution, error) {
		calls++
		return nil, nil
	})
	assert.Equal(t, 1, calls)
}

func TestSweep_ActionErrorDoesNotStopTheSweep(t *testing.T) {
	sched, st := newTestScheduler(t)
	seedAutomatedSession(t, st, true)
	seedAutomatedSession(t, st, true)

	var calls int
	sched.sweep(context.Background(), "test", func(ctx context.Context, sessionID string) (*model.AutomationExecution, error) {
		calls++
		return nil, context.DeadlineExceeded
	})
	assert.Equal(t, 2, calls)
}

func TestSweep_AppliesActionTimeout(t *testing.T) {
	sched, st := newTestScheduler(t)
	seedAutomatedSession(t, st, true)

	sched.timeout = 10 * time.Millisecond
	sched.sweep(context.Background(), "test", func(ctx context.Context, sessionID string) (*model.AutomationExecution, error) {
		deadline, ok := ctx.Deadline()
		require.True(t, ok)
		assert.WithinDuration(t, time.Now().Add(10*time.Millisecond), deadline, 50*time.Millisecond)
		return nil, nil
	})
}

func TestRun_StopsOnCancel(t *testing.T) {
	sched, _ := newTestScheduler(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sched.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
}
