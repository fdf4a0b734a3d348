package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unson/lpops/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_GetSession_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT data FROM sessions WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetSession(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateSession(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO sessions`).
		WithArgs(pgxmock.AnyArg(), "ws-1", "active", 1, true,
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	created, err := s.CreateSession(context.Background(), model.Session{
		WorkspaceID:       "ws-1",
		ProductName:       "AI Scheduler",
		AutomationEnabled: true,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, model.SessionStatusActive, created.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_BeginExecution(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO automation_executions`).
		WithArgs(pgxmock.AnyArg(), "exec-alert_check-1", "s-1", "alert_check", "running",
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	exec, err := s.BeginExecution(context.Background(), model.AutomationExecution{
		ExecutionID: "exec-alert_check-1",
		SessionID:   "s-1",
		Type:        model.ExecutionAlertCheck,
	})
	require.NoError(t, err)
	assert.Equal(t, model.ExecutionRunning, exec.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FinalizeExecution_AlreadyFinalized(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT data FROM automation_executions WHERE execution_id = \$1 FOR UPDATE`).
		WithArgs("exec-1").
		WillReturnRows(pgxmock.NewRows([]string{"data"}).
			AddRow(`{"execution_id":"exec-1","status":"completed","started_at":"2026-08-01T00:00:00Z"}`))
	mock.ExpectRollback()

	err := s.FinalizeExecution(context.Background(), "exec-1", model.ExecutionResult{Status: model.ExecutionFailed})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already finalized")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FinalizeExecution_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT data FROM automation_executions WHERE execution_id = \$1 FOR UPDATE`).
		WithArgs("exec-missing").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	err := s.FinalizeExecution(context.Background(), "exec-missing", model.ExecutionResult{Status: model.ExecutionFailed})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LatestReport_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT payload FROM reports WHERE report_type = \$1 ORDER BY generated_at DESC LIMIT 1`).
		WithArgs("daily").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.LatestReport(context.Background(), model.ReportDaily)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertDailyMetrics_Empty(t *testing.T) {
	s, _ := newMockPostgresStore(t)

	n, err := s.UpsertDailyMetrics(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestPostgresStore_Cleanup(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM automation_executions`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("DELETE", 12))
	mock.ExpectExec(`DELETE FROM system_alerts`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))
	mock.ExpectExec(`DELETE FROM step_executions`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("DELETE", 5))

	result, err := s.Cleanup(context.Background(), time.Now().UTC().AddDate(0, 0, -90))
	require.NoError(t, err)
	assert.Equal(t, 12, result.ExecutionsDeleted)
	assert.Equal(t, 3, result.AlertsDeleted)
	assert.Equal(t, 5, result.StepExecutionsDeleted)
	assert.Equal(t, 20, result.Total())
	assert.NoError(t, mock.ExpectationsWereMet())
}
