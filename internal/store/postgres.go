package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/unson/lpops/internal/db"
	"github.com/unson/lpops/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hottest store operations. The scheduler hits the
// session and execution tables on every tick.
var preparedStatements = map[string]string{
	"get_session":      `SELECT data FROM sessions WHERE id = $1`,
	"insert_execution": `INSERT INTO automation_executions (id, execution_id, session_id, execution_type, status, data, started_at, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
	"get_execution":    `SELECT data FROM automation_executions WHERE execution_id = $1`,
	"insert_alert":     `INSERT INTO system_alerts (id, alert_id, session_id, alert_type, severity, status, data, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool for subsystems that need direct
// query access.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS sessions (
	id                 TEXT PRIMARY KEY,
	workspace_id       TEXT NOT NULL DEFAULT '',
	status             TEXT NOT NULL DEFAULT 'active',
	current_phase      INTEGER NOT NULL DEFAULT 1,
	automation_enabled BOOLEAN NOT NULL DEFAULT false,
	data               JSONB NOT NULL,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS automation_executions (
	id             TEXT PRIMARY KEY,
	execution_id   TEXT NOT NULL UNIQUE,
	session_id     TEXT NOT NULL,
	execution_type TEXT NOT NULL,
	status         TEXT NOT NULL DEFAULT 'running',
	data           JSONB NOT NULL,
	started_at     TIMESTAMPTZ NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS system_alerts (
	id         TEXT PRIMARY KEY,
	alert_id   TEXT NOT NULL UNIQUE,
	session_id TEXT NOT NULL DEFAULT '',
	alert_type TEXT NOT NULL,
	severity   TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'active',
	data       JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS session_daily_metrics (
	session_id   TEXT NOT NULL,
	date         TEXT NOT NULL,
	session_name TEXT NOT NULL DEFAULT '',
	cvr          DOUBLE PRECISION NOT NULL DEFAULT 0,
	cpa          DOUBLE PRECISION NOT NULL DEFAULT 0,
	sessions     INTEGER NOT NULL DEFAULT 0,
	conversions  INTEGER NOT NULL DEFAULT 0,
	revenue      DOUBLE PRECISION NOT NULL DEFAULT 0,
	PRIMARY KEY (session_id, date)
);

CREATE TABLE IF NOT EXISTS reports (
	id           TEXT PRIMARY KEY,
	report_type  TEXT NOT NULL,
	period_start TEXT NOT NULL,
	period_end   TEXT NOT NULL,
	generated_at TEXT NOT NULL,
	payload      JSONB NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS playbook_executions (
	id           TEXT PRIMARY KEY,
	execution_id TEXT NOT NULL UNIQUE,
	session_id   TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'initialized',
	data         JSONB NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS step_executions (
	id                TEXT PRIMARY KEY,
	step_execution_id TEXT NOT NULL UNIQUE,
	execution_id      TEXT NOT NULL,
	status            TEXT NOT NULL DEFAULT 'pending',
	data              JSONB NOT NULL,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);
CREATE INDEX IF NOT EXISTS idx_sessions_workspace ON sessions(workspace_id);
CREATE INDEX IF NOT EXISTS idx_executions_session ON automation_executions(session_id);
CREATE INDEX IF NOT EXISTS idx_executions_type ON automation_executions(execution_type);
CREATE INDEX IF NOT EXISTS idx_executions_status ON automation_executions(status);
CREATE INDEX IF NOT EXISTS idx_alerts_session ON system_alerts(session_id);
CREATE INDEX IF NOT EXISTS idx_alerts_status ON system_alerts(status);
CREATE INDEX IF NOT EXISTS idx_reports_type ON reports(report_type);
CREATE INDEX IF NOT EXISTS idx_playbook_execs_session ON playbook_executions(session_id);
CREATE INDEX IF NOT EXISTS idx_step_execs_execution ON step_executions(execution_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// Sessions

func (s *PostgresStore) CreateSession(ctx context.Context, sess model.Session) (*model.Session, error) {
	now := time.Now().UTC()
	if sess.ID == "" {
		sess.ID = uuid.New().String()
	}
	if sess.Status == "" {
		sess.Status = model.SessionStatusActive
	}
	if sess.CurrentPhase == 0 {
		sess.CurrentPhase = 1
	}
	if sess.StartDate.IsZero() {
		sess.StartDate = now
	}
	sess.CreatedAt = now
	sess.UpdatedAt = now

	data, err := json.Marshal(sess)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal session")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO sessions (id, workspace_id, status, current_phase, automation_enabled, data, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		sess.ID, sess.WorkspaceID, string(sess.Status), sess.CurrentPhase,
		sess.AutomationEnabled, string(data), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert session")
	}
	return &sess, nil
}

func (s *PostgresStore) GetSession(ctx context.Context, id string) (*model.Session, error) {
	return pgDoc[model.Session](ctx, s.pool,
		`SELECT data FROM sessions WHERE id = $1`, "session", id)
}

func (s *PostgresStore) ListSessions(ctx context.Context, filter SessionFilter) ([]model.Session, error) {
	query := `SELECT data FROM sessions WHERE 1=1`
	var args []any

	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += ` AND status = ` + placeholder(len(args))
	}
	if filter.WorkspaceID != "" {
		args = append(args, filter.WorkspaceID)
		query += ` AND workspace_id = ` + placeholder(len(args))
	}
	if filter.AutomationOnly {
		query += ` AND automation_enabled = true`
	}
	args = append(args, defaultLimit(filter.Limit))
	query += ` ORDER BY created_at DESC LIMIT ` + placeholder(len(args))

	return pgDocs[model.Session](ctx, s.pool, query, args, "postgres: list sessions")
}

func (s *PostgresStore) UpdateSessionMetrics(ctx context.Context, id string, m model.MetricsUpdate) error {
	return s.mutateSession(ctx, id, func(sess *model.Session) error {
		sess.CurrentCVR = m.CurrentCVR
		sess.CurrentCPA = m.CurrentCPA
		sess.TotalSessions = m.TotalSessions
		sess.TotalConversions = m.TotalConversions
		sess.TotalSpend = m.TotalSpend
		sess.StatisticalSignificance = m.StatisticalSignificance
		if m.ConfidenceInterval != nil {
			sess.ConfidenceInterval = m.ConfidenceInterval
		}
		return nil
	})
}

func (s *PostgresStore) UpdateSessionStatus(ctx context.Context, id string, status model.SessionStatus) error {
	return s.mutateSession(ctx, id, func(sess *model.Session) error {
		if sess.Status.Terminal() && status != sess.Status {
			return eris.Errorf("session %s is %s and cannot change status", id, sess.Status)
		}
		sess.Status = status
		if status.Terminal() && sess.EndDate == nil {
			now := time.Now().UTC()
			sess.EndDate = &now
		}
		return nil
	})
}

func (s *PostgresStore) AdvanceSessionPhase(ctx context.Context, id string, phase int) error {
	return s.mutateSession(ctx, id, func(sess *model.Session) error {
		if phase <= sess.CurrentPhase {
			return eris.Errorf("session %s phase moves forward only: %d -> %d", id, sess.CurrentPhase, phase)
		}
		sess.CurrentPhase = phase
		return nil
	})
}

func (s *PostgresStore) mutateSession(ctx context.Context, id string, fn func(*model.Session) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin")
	}
	defer tx.Rollback(ctx)

	var data string
	err = tx.QueryRow(ctx, `SELECT data FROM sessions WHERE id = $1 FOR UPDATE`, id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return eris.Wrapf(ErrNotFound, "session %s", id)
	}
	if err != nil {
		return eris.Wrapf(err, "postgres: get session %s", id)
	}

	var sess model.Session
	if err := json.Unmarshal([]byte(data), &sess); err != nil {
		return eris.Wrap(err, "postgres: unmarshal session")
	}
	if err := fn(&sess); err != nil {
		return err
	}
	sess.UpdatedAt = time.Now().UTC()

	out, err := json.Marshal(sess)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal session")
	}
	_, err = tx.Exec(ctx,
		`UPDATE sessions SET data = $1, status = $2, current_phase = $3, automation_enabled = $4, updated_at = $5 WHERE id = $6`,
		string(out), string(sess.Status), sess.CurrentPhase, sess.AutomationEnabled, sess.UpdatedAt, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update session %s", id)
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit")
}

// Automation executions

func (s *PostgresStore) BeginExecution(ctx context.Context, exec model.AutomationExecution) (*model.AutomationExecution, error) {
	now := time.Now().UTC()
	if exec.ID == "" {
		exec.ID = uuid.New().String()
	}
	exec.Status = model.ExecutionRunning
	if exec.StartedAt.IsZero() {
		exec.StartedAt = now
	}
	exec.CreatedAt = now

	data, err := json.Marshal(exec)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal execution")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO automation_executions (id, execution_id, session_id, execution_type, status, data, started_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		exec.ID, exec.ExecutionID, exec.SessionID, string(exec.Type), string(exec.Status),
		string(data), exec.StartedAt, now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert execution %s", exec.ExecutionID)
	}
	return &exec, nil
}

func (s *PostgresStore) FinalizeExecution(ctx context.Context, executionID string, result model.ExecutionResult) error {
	if !result.Status.Finalized() {
		return eris.Errorf("execution %s: finalize requires a terminal status, got %s", executionID, result.Status)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin")
	}
	defer tx.Rollback(ctx)

	var data string
	err = tx.QueryRow(ctx,
		`SELECT data FROM automation_executions WHERE execution_id = $1 FOR UPDATE`, executionID,
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return eris.Wrapf(ErrNotFound, "execution %s", executionID)
	}
	if err != nil {
		return eris.Wrapf(err, "postgres: get execution %s", executionID)
	}

	var exec model.AutomationExecution
	if err := json.Unmarshal([]byte(data), &exec); err != nil {
		return eris.Wrap(err, "postgres: unmarshal execution")
	}
	if exec.Status.Finalized() {
		return eris.Errorf("execution %s already finalized as %s", executionID, exec.Status)
	}

	now := time.Now().UTC()
	exec.Status = result.Status
	exec.OutputData = result.OutputData
	exec.MetricsBefore = result.MetricsBefore
	exec.MetricsAfter = result.MetricsAfter
	exec.AIReasoning = result.AIReasoning
	exec.Confidence = result.Confidence
	exec.ErrorMessage = result.ErrorMessage
	exec.CompletedAt = &now
	exec.DurationMS = now.Sub(exec.StartedAt).Milliseconds()

	out, err := json.Marshal(exec)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal execution")
	}
	_, err = tx.Exec(ctx,
		`UPDATE automation_executions SET data = $1, status = $2 WHERE execution_id = $3`,
		string(out), string(exec.Status), executionID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finalize execution %s", executionID)
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit")
}

func (s *PostgresStore) GetExecution(ctx context.Context, executionID string) (*model.AutomationExecution, error) {
	return pgDoc[model.AutomationExecution](ctx, s.pool,
		`SELECT data FROM automation_executions WHERE execution_id = $1`, "execution", executionID)
}

func (s *PostgresStore) ListExecutions(ctx context.Context, filter ExecutionFilter) ([]model.AutomationExecution, error) {
	query := `SELECT data FROM automation_executions WHERE 1=1`
	var args []any

	if filter.SessionID != "" {
		args = append(args, filter.SessionID)
		query += ` AND session_id = ` + placeholder(len(args))
	}
	if filter.Type != "" {
		args = append(args, string(filter.Type))
		query += ` AND execution_type = ` + placeholder(len(args))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += ` AND status = ` + placeholder(len(args))
	}
	args = append(args, defaultLimit(filter.Limit))
	query += ` ORDER BY started_at DESC LIMIT ` + placeholder(len(args))

	return pgDocs[model.AutomationExecution](ctx, s.pool, query, args, "postgres: list executions")
}

// Alerts

func (s *PostgresStore) CreateAlert(ctx context.Context, alert model.SystemAlert) (*model.SystemAlert, error) {
	now := time.Now().UTC()
	if alert.ID == "" {
		alert.ID = uuid.New().String()
	}
	if alert.AlertID == "" {
		alert.AlertID = alert.ID
	}
	if alert.Status == "" {
		alert.Status = model.AlertActive
	}
	if alert.Title == "" {
		alert.Title = model.DefaultAlertTitle(alert.Type)
	}
	alert.CreatedAt = now

	data, err := json.Marshal(alert)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal alert")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO system_alerts (id, alert_id, session_id, alert_type, severity, status, data, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		alert.ID, alert.AlertID, alert.SessionID, string(alert.Type), string(alert.Severity),
		string(alert.Status), string(data), now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert alert")
	}
	return &alert, nil
}

func (s *PostgresStore) ListAlerts(ctx context.Context, filter AlertFilter) ([]model.SystemAlert, error) {
	query := `SELECT data FROM system_alerts WHERE 1=1`
	var args []any

	if filter.SessionID != "" {
		args = append(args, filter.SessionID)
		query += ` AND session_id = ` + placeholder(len(args))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += ` AND status = ` + placeholder(len(args))
	}
	if filter.Severity != "" {
		args = append(args, string(filter.Severity))
		query += ` AND severity = ` + placeholder(len(args))
	}
	args = append(args, defaultLimit(filter.Limit))
	query += ` ORDER BY created_at DESC LIMIT ` + placeholder(len(args))

	return pgDocs[model.SystemAlert](ctx, s.pool, query, args, "postgres: list alerts")
}

func (s *PostgresStore) AcknowledgeAlert(ctx context.Context, alertID string) error {
	return s.mutateAlert(ctx, alertID, func(a *model.SystemAlert) error {
		if a.Status == model.AlertResolved {
			return eris.Errorf("alert %s already resolved", alertID)
		}
		a.Status = model.AlertAcknowledged
		return nil
	})
}

func (s *PostgresStore) ResolveAlert(ctx context.Context, alertID, resolvedBy, notes string) error {
	return s.mutateAlert(ctx, alertID, func(a *model.SystemAlert) error {
		now := time.Now().UTC()
		a.Status = model.AlertResolved
		a.ResolvedBy = resolvedBy
		a.ResolvedAt = &now
		a.ResolutionNotes = notes
		return nil
	})
}

func (s *PostgresStore) mutateAlert(ctx context.Context, alertID string, fn func(*model.SystemAlert) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin")
	}
	defer tx.Rollback(ctx)

	var data string
	err = tx.QueryRow(ctx, `SELECT data FROM system_alerts WHERE alert_id = $1 FOR UPDATE`, alertID).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return eris.Wrapf(ErrNotFound, "alert %s", alertID)
	}
	if err != nil {
		return eris.Wrapf(err, "postgres: get alert %s", alertID)
	}

	var alert model.SystemAlert
	if err := json.Unmarshal([]byte(data), &alert); err != nil {
		return eris.Wrap(err, "postgres: unmarshal alert")
	}
	if err := fn(&alert); err != nil {
		return err
	}

	out, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal alert")
	}
	_, err = tx.Exec(ctx,
		`UPDATE system_alerts SET data = $1, status = $2 WHERE alert_id = $3`,
		string(out), string(alert.Status), alertID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update alert %s", alertID)
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit")
}

// Daily metrics

var dailyMetricsColumns = []string{
	"session_id", "date", "session_name", "cvr", "cpa", "sessions", "conversions", "revenue",
}

func (s *PostgresStore) UpsertDailyMetrics(ctx context.Context, rows []model.SessionMetrics) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	values := make([][]any, len(rows))
	for i, r := range rows {
		values[i] = []any{r.SessionID, r.Date, r.SessionName, r.CVR, r.CPA, r.Sessions, r.Conversions, r.Revenue}
	}

	return db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "session_daily_metrics",
		Columns:      dailyMetricsColumns,
		ConflictKeys: []string{"session_id", "date"},
	}, values)
}

func (s *PostgresStore) ListDailyMetrics(ctx context.Context, start, end string, sessionIDs []string) ([]model.SessionMetrics, error) {
	query := `SELECT session_id, date, session_name, cvr, cpa, sessions, conversions, revenue
		 FROM session_daily_metrics WHERE date >= $1 AND date <= $2`
	args := []any{start, end}

	if len(sessionIDs) > 0 {
		args = append(args, sessionIDs)
		query += ` AND session_id = ANY(` + placeholder(len(args)) + `)`
	}
	query += ` ORDER BY date ASC, session_id ASC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list daily metrics")
	}
	defer rows.Close()

	var out []model.SessionMetrics
	for rows.Next() {
		var m model.SessionMetrics
		if err := rows.Scan(&m.SessionID, &m.Date, &m.SessionName, &m.CVR, &m.CPA,
			&m.Sessions, &m.Conversions, &m.Revenue); err != nil {
			return nil, eris.Wrap(err, "postgres: scan daily metrics")
		}
		out = append(out, m)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list daily metrics iterate")
}

// Reports

func (s *PostgresStore) SaveReport(ctx context.Context, report model.MetricsReport) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal report")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO reports (id, report_type, period_start, period_end, generated_at, payload, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		report.ID, string(report.Type), report.Period.Start, report.Period.End,
		report.GeneratedAt, string(payload), time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: insert report %s", report.ID)
}

func (s *PostgresStore) GetReport(ctx context.Context, id string) (*model.MetricsReport, error) {
	return pgDoc[model.MetricsReport](ctx, s.pool,
		`SELECT payload FROM reports WHERE id = $1`, "report", id)
}

func (s *PostgresStore) LatestReport(ctx context.Context, typ model.ReportType) (*model.MetricsReport, error) {
	query := `SELECT payload FROM reports`
	var args []any
	if typ != "" {
		args = append(args, string(typ))
		query += ` WHERE report_type = $1`
	}
	query += ` ORDER BY generated_at DESC LIMIT 1`

	var data string
	err := s.pool.QueryRow(ctx, query, args...).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrap(ErrNotFound, "report latest")
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: latest report")
	}
	var report model.MetricsReport
	if err := json.Unmarshal([]byte(data), &report); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal report")
	}
	return &report, nil
}

func (s *PostgresStore) ListReports(ctx context.Context, limit int) ([]model.MetricsReport, error) {
	query := `SELECT payload FROM reports ORDER BY generated_at DESC LIMIT $1`
	return pgDocs[model.MetricsReport](ctx, s.pool, query, []any{defaultLimit(limit)}, "postgres: list reports")
}

// Playbook executions

func (s *PostgresStore) CreatePlaybookExecution(ctx context.Context, pe model.PlaybookExecution) (*model.PlaybookExecution, error) {
	now := time.Now().UTC()
	if pe.ID == "" {
		pe.ID = uuid.New().String()
	}
	if pe.Status == "" {
		pe.Status = model.PlaybookInitialized
	}
	if pe.CurrentPhase == 0 {
		pe.CurrentPhase = 1
	}
	if pe.StartedAt.IsZero() {
		pe.StartedAt = now
	}
	pe.CreatedAt = now
	pe.UpdatedAt = now

	data, err := json.Marshal(pe)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal playbook execution")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO playbook_executions (id, execution_id, session_id, status, data, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		pe.ID, pe.ExecutionID, pe.SessionID, string(pe.Status), string(data), now, now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert playbook execution %s", pe.ExecutionID)
	}
	return &pe, nil
}

func (s *PostgresStore) GetPlaybookExecution(ctx context.Context, executionID string) (*model.PlaybookExecution, error) {
	return pgDoc[model.PlaybookExecution](ctx, s.pool,
		`SELECT data FROM playbook_executions WHERE execution_id = $1`, "playbook execution", executionID)
}

func (s *PostgresStore) ActivePlaybookExecution(ctx context.Context, sessionID string) (*model.PlaybookExecution, error) {
	return pgDoc[model.PlaybookExecution](ctx, s.pool,
		`SELECT data FROM playbook_executions
		 WHERE session_id = $1 AND status IN ('initialized', 'in_progress', 'phase_gate_pending')
		 ORDER BY created_at DESC LIMIT 1`,
		"playbook execution for session", sessionID)
}

func (s *PostgresStore) UpdatePlaybookPhase(ctx context.Context, executionID string, upd model.PhaseUpdate) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin")
	}
	defer tx.Rollback(ctx)

	var data string
	err = tx.QueryRow(ctx,
		`SELECT data FROM playbook_executions WHERE execution_id = $1 FOR UPDATE`, executionID,
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return eris.Wrapf(ErrNotFound, "playbook execution %s", executionID)
	}
	if err != nil {
		return eris.Wrapf(err, "postgres: get playbook execution %s", executionID)
	}

	var pe model.PlaybookExecution
	if err := json.Unmarshal([]byte(data), &pe); err != nil {
		return eris.Wrap(err, "postgres: unmarshal playbook execution")
	}
	if upd.CurrentPhase < pe.CurrentPhase {
		return eris.Errorf("playbook execution %s phase moves forward only: %d -> %d",
			executionID, pe.CurrentPhase, upd.CurrentPhase)
	}

	now := time.Now().UTC()
	pe.CurrentPhase = upd.CurrentPhase
	pe.Status = upd.Status
	pe.PhaseCompletionPct = upd.PhaseCompletionPct
	pe.NextActions = upd.NextActions
	pe.EstimatedCompletion = upd.EstimatedCompletion
	if pe.Status == model.PlaybookCompleted && pe.CompletedAt == nil {
		pe.CompletedAt = &now
	}
	pe.UpdatedAt = now

	out, err := json.Marshal(pe)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal playbook execution")
	}
	_, err = tx.Exec(ctx,
		`UPDATE playbook_executions SET data = $1, status = $2, updated_at = $3 WHERE execution_id = $4`,
		string(out), string(pe.Status), now, executionID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update playbook execution %s", executionID)
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit")
}

// Step executions

func (s *PostgresStore) CreateStepExecution(ctx context.Context, se model.StepExecution) (*model.StepExecution, error) {
	now := time.Now().UTC()
	if se.ID == "" {
		se.ID = uuid.New().String()
	}
	if se.Status == "" {
		se.Status = model.StepRunning
	}
	if se.StartedAt == nil {
		se.StartedAt = &now
	}
	se.CreatedAt = now
	se.UpdatedAt = now

	data, err := json.Marshal(se)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal step execution")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO step_executions (id, step_execution_id, execution_id, status, data, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		se.ID, se.StepExecutionID, se.ExecutionID, string(se.Status), string(data), now, now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert step execution %s", se.StepExecutionID)
	}
	return &se, nil
}

func (s *PostgresStore) GetStepExecution(ctx context.Context, stepExecutionID string) (*model.StepExecution, error) {
	return pgDoc[model.StepExecution](ctx, s.pool,
		`SELECT data FROM step_executions WHERE step_execution_id = $1`, "step execution", stepExecutionID)
}

func (s *PostgresStore) FinalizeStepExecution(ctx context.Context, stepExecutionID string, result model.StepResult) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin")
	}
	defer tx.Rollback(ctx)

	var data string
	err = tx.QueryRow(ctx,
		`SELECT data FROM step_executions WHERE step_execution_id = $1 FOR UPDATE`, stepExecutionID,
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return eris.Wrapf(ErrNotFound, "step execution %s", stepExecutionID)
	}
	if err != nil {
		return eris.Wrapf(err, "postgres: get step execution %s", stepExecutionID)
	}

	var se model.StepExecution
	if err := json.Unmarshal([]byte(data), &se); err != nil {
		return eris.Wrap(err, "postgres: unmarshal step execution")
	}

	now := time.Now().UTC()
	se.Status = result.Status
	se.OutputResults = result.OutputResults
	se.SuccessAchieved = result.SuccessAchieved
	se.AIAnalysis = result.AIAnalysis
	se.ErrorMessage = result.ErrorMessage
	se.CompletedAt = &now
	if se.StartedAt != nil {
		se.DurationMS = now.Sub(*se.StartedAt).Milliseconds()
	}
	se.UpdatedAt = now

	out, err := json.Marshal(se)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal step execution")
	}
	_, err = tx.Exec(ctx,
		`UPDATE step_executions SET data = $1, status = $2, updated_at = $3 WHERE step_execution_id = $4`,
		string(out), string(se.Status), now, stepExecutionID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finalize step execution %s", stepExecutionID)
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit")
}

// Maintenance

func (s *PostgresStore) Cleanup(ctx context.Context, olderThan time.Time) (*CleanupResult, error) {
	var result CleanupResult

	tag, err := s.pool.Exec(ctx,
		`DELETE FROM automation_executions WHERE status IN ('completed', 'failed') AND created_at < $1`,
		olderThan,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: cleanup executions")
	}
	result.ExecutionsDeleted = int(tag.RowsAffected())

	tag, err = s.pool.Exec(ctx,
		`DELETE FROM system_alerts WHERE status = 'resolved' AND created_at < $1`,
		olderThan,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: cleanup alerts")
	}
	result.AlertsDeleted = int(tag.RowsAffected())

	tag, err = s.pool.Exec(ctx,
		`DELETE FROM step_executions WHERE status IN ('completed', 'failed', 'skipped') AND created_at < $1`,
		olderThan,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: cleanup step executions")
	}
	result.StepExecutionsDeleted = int(tag.RowsAffected())

	return &result, nil
}

// helpers

func placeholder(n int) string {
	return "$" + strconv.Itoa(n)
}

func pgDoc[T any](ctx context.Context, pool db.Pool, query, entity, id string) (*T, error) {
	var data string
	err := pool.QueryRow(ctx, query, id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get %s %s", entity, id)
	}
	var v T
	if err := json.Unmarshal([]byte(data), &v); err != nil {
		return nil, eris.Wrapf(err, "postgres: unmarshal %s", entity)
	}
	return &v, nil
}

func pgDocs[T any](ctx context.Context, pool db.Pool, query string, args []any, op string) ([]T, error) {
	rows, err := pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, op)
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, op)
		}
		var v T
		if err := json.Unmarshal([]byte(data), &v); err != nil {
			return nil, eris.Wrap(err, op)
		}
		out = append(out, v)
	}
	return out, eris.Wrap(rows.Err(), op)
}
