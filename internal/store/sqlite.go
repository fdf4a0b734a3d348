package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/unson/lpops/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
//
// Entities are stored as JSON documents with the columns used for filtering
// and ordering extracted alongside. Mutations rewrite the document inside a
// transaction so the extracted columns never drift from the document.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS sessions (
	id                 TEXT PRIMARY KEY,
	workspace_id       TEXT NOT NULL DEFAULT '',
	status             TEXT NOT NULL DEFAULT 'active',
	current_phase      INTEGER NOT NULL DEFAULT 1,
	automation_enabled INTEGER NOT NULL DEFAULT 0,
	data               TEXT NOT NULL,
	created_at         DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at         DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS automation_executions (
	id             TEXT PRIMARY KEY,
	execution_id   TEXT NOT NULL UNIQUE,
	session_id     TEXT NOT NULL,
	execution_type TEXT NOT NULL,
	status         TEXT NOT NULL DEFAULT 'running',
	data           TEXT NOT NULL,
	started_at     DATETIME NOT NULL,
	created_at     DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS system_alerts (
	id         TEXT PRIMARY KEY,
	alert_id   TEXT NOT NULL UNIQUE,
	session_id TEXT NOT NULL DEFAULT '',
	alert_type TEXT NOT NULL,
	severity   TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'active',
	data       TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS session_daily_metrics (
	session_id   TEXT NOT NULL,
	date         TEXT NOT NULL,
	session_name TEXT NOT NULL DEFAULT '',
	cvr          REAL NOT NULL DEFAULT 0,
	cpa          REAL NOT NULL DEFAULT 0,
	sessions     INTEGER NOT NULL DEFAULT 0,
	conversions  INTEGER NOT NULL DEFAULT 0,
	revenue      REAL NOT NULL DEFAULT 0,
	PRIMARY KEY (session_id, date)
);

CREATE TABLE IF NOT EXISTS reports (
	id           TEXT PRIMARY KEY,
	report_type  TEXT NOT NULL,
	period_start TEXT NOT NULL,
	period_end   TEXT NOT NULL,
	generated_at TEXT NOT NULL,
	payload      TEXT NOT NULL,
	created_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS playbook_executions (
	id           TEXT PRIMARY KEY,
	execution_id TEXT NOT NULL UNIQUE,
	session_id   TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'initialized',
	data         TEXT NOT NULL,
	created_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS step_executions (
	id                TEXT PRIMARY KEY,
	step_execution_id TEXT NOT NULL UNIQUE,
	execution_id      TEXT NOT NULL,
	status            TEXT NOT NULL DEFAULT 'pending',
	data              TEXT NOT NULL,
	created_at        DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at        DATETIME NOT NULL DEFAULT (datetime('now'))
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

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Sessions

func (s *SQLiteStore) CreateSession(ctx context.Context, sess model.Session) (*model.Session, error) {
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
		return nil, eris.Wrap(err, "sqlite: marshal session")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, workspace_id, status, current_phase, automation_enabled, data, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.WorkspaceID, string(sess.Status), sess.CurrentPhase,
		boolToInt(sess.AutomationEnabled), string(data), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert session")
	}
	return &sess, nil
}

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*model.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT data FROM sessions WHERE id = ?`, id)
	return scanDoc[model.Session](row, "session", id)
}

func (s *SQLiteStore) ListSessions(ctx context.Context, filter SessionFilter) ([]model.Session, error) {
	query := `SELECT data FROM sessions WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.WorkspaceID != "" {
		query += ` AND workspace_id = ?`
		args = append(args, filter.WorkspaceID)
	}
	if filter.AutomationOnly {
		query += ` AND automation_enabled = 1`
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, defaultLimit(filter.Limit))

	return listDocs[model.Session](ctx, s.db, query, args, "sqlite: list sessions")
}

func (s *SQLiteStore) UpdateSessionMetrics(ctx context.Context, id string, m model.MetricsUpdate) error {
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

func (s *SQLiteStore) UpdateSessionStatus(ctx context.Context, id string, status model.SessionStatus) error {
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

func (s *SQLiteStore) AdvanceSessionPhase(ctx context.Context, id string, phase int) error {
	return s.mutateSession(ctx, id, func(sess *model.Session) error {
		if phase <= sess.CurrentPhase {
			return eris.Errorf("session %s phase moves forward only: %d -> %d", id, sess.CurrentPhase, phase)
		}
		sess.CurrentPhase = phase
		return nil
	})
}

// mutateSession applies fn to the stored session document inside a
// transaction and rewrites both the document and the filter columns.
func (s *SQLiteStore) mutateSession(ctx context.Context, id string, fn func(*model.Session) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback()

	var data string
	err = tx.QueryRowContext(ctx, `SELECT data FROM sessions WHERE id = ?`, id).Scan(&data)
	if err == sql.ErrNoRows {
		return eris.Wrapf(ErrNotFound, "session %s", id)
	}
	if err != nil {
		return eris.Wrapf(err, "sqlite: get session %s", id)
	}

	var sess model.Session
	if err := json.Unmarshal([]byte(data), &sess); err != nil {
		return eris.Wrap(err, "sqlite: unmarshal session")
	}
	if err := fn(&sess); err != nil {
		return err
	}
	sess.UpdatedAt = time.Now().UTC()

	out, err := json.Marshal(sess)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal session")
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE sessions SET data = ?, status = ?, current_phase = ?, automation_enabled = ?, updated_at = ? WHERE id = ?`,
		string(out), string(sess.Status), sess.CurrentPhase, boolToInt(sess.AutomationEnabled), sess.UpdatedAt, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update session %s", id)
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit")
}

// Automation executions

func (s *SQLiteStore) BeginExecution(ctx context.Context, exec model.AutomationExecution) (*model.AutomationExecution, error) {
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
		return nil, eris.Wrap(err, "sqlite: marshal execution")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO automation_executions (id, execution_id, session_id, execution_type, status, data, started_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		exec.ID, exec.ExecutionID, exec.SessionID, string(exec.Type), string(exec.Status),
		string(data), exec.StartedAt, now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert execution %s", exec.ExecutionID)
	}
	return &exec, nil
}

func (s *SQLiteStore) FinalizeExecution(ctx context.Context, executionID string, result model.ExecutionResult) error {
	if !result.Status.Finalized() {
		return eris.Errorf("execution %s: finalize requires a terminal status, got %s", executionID, result.Status)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback()

	var data string
	err = tx.QueryRowContext(ctx,
		`SELECT data FROM automation_executions WHERE execution_id = ?`, executionID,
	).Scan(&data)
	if err == sql.ErrNoRows {
		return eris.Wrapf(ErrNotFound, "execution %s", executionID)
	}
	if err != nil {
		return eris.Wrapf(err, "sqlite: get execution %s", executionID)
	}

	var exec model.AutomationExecution
	if err := json.Unmarshal([]byte(data), &exec); err != nil {
		return eris.Wrap(err, "sqlite: unmarshal execution")
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
		return eris.Wrap(err, "sqlite: marshal execution")
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE automation_executions SET data = ?, status = ? WHERE execution_id = ?`,
		string(out), string(exec.Status), executionID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finalize execution %s", executionID)
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit")
}

func (s *SQLiteStore) GetExecution(ctx context.Context, executionID string) (*model.AutomationExecution, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT data FROM automation_executions WHERE execution_id = ?`, executionID)
	return scanDoc[model.AutomationExecution](row, "execution", executionID)
}

func (s *SQLiteStore) ListExecutions(ctx context.Context, filter ExecutionFilter) ([]model.AutomationExecution, error) {
	query := `SELECT data FROM automation_executions WHERE 1=1`
	var args []any

	if filter.SessionID != "" {
		query += ` AND session_id = ?`
		args = append(args, filter.SessionID)
	}
	if filter.Type != "" {
		query += ` AND execution_type = ?`
		args = append(args, string(filter.Type))
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, defaultLimit(filter.Limit))

	return listDocs[model.AutomationExecution](ctx, s.db, query, args, "sqlite: list executions")
}

// Alerts

func (s *SQLiteStore) CreateAlert(ctx context.Context, alert model.SystemAlert) (*model.SystemAlert, error) {
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
		return nil, eris.Wrap(err, "sqlite: marshal alert")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO system_alerts (id, alert_id, session_id, alert_type, severity, status, data, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		alert.ID, alert.AlertID, alert.SessionID, string(alert.Type), string(alert.Severity),
		string(alert.Status), string(data), now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert alert")
	}
	return &alert, nil
}

func (s *SQLiteStore) ListAlerts(ctx context.Context, filter AlertFilter) ([]model.SystemAlert, error) {
	query := `SELECT data FROM system_alerts WHERE 1=1`
	var args []any

	if filter.SessionID != "" {
		query += ` AND session_id = ?`
		args = append(args, filter.SessionID)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Severity != "" {
		query += ` AND severity = ?`
		args = append(args, string(filter.Severity))
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, defaultLimit(filter.Limit))

	return listDocs[model.SystemAlert](ctx, s.db, query, args, "sqlite: list alerts")
}

func (s *SQLiteStore) AcknowledgeAlert(ctx context.Context, alertID string) error {
	return s.mutateAlert(ctx, alertID, func(a *model.SystemAlert) error {
		if a.Status == model.AlertResolved {
			return eris.Errorf("alert %s already resolved", alertID)
		}
		a.Status = model.AlertAcknowledged
		return nil
	})
}

func (s *SQLiteStore) ResolveAlert(ctx context.Context, alertID, resolvedBy, notes string) error {
	return s.mutateAlert(ctx, alertID, func(a *model.SystemAlert) error {
		now := time.Now().UTC()
		a.Status = model.AlertResolved
		a.ResolvedBy = resolvedBy
		a.ResolvedAt = &now
		a.ResolutionNotes = notes
		return nil
	})
}

func (s *SQLiteStore) mutateAlert(ctx context.Context, alertID string, fn func(*model.SystemAlert) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback()

	var data string
	err = tx.QueryRowContext(ctx, `SELECT data FROM system_alerts WHERE alert_id = ?`, alertID).Scan(&data)
	if err == sql.ErrNoRows {
		return eris.Wrapf(ErrNotFound, "alert %s", alertID)
	}
	if err != nil {
		return eris.Wrapf(err, "sqlite: get alert %s", alertID)
	}

	var alert model.SystemAlert
	if err := json.Unmarshal([]byte(data), &alert); err != nil {
		return eris.Wrap(err, "sqlite: unmarshal alert")
	}
	if err := fn(&alert); err != nil {
		return err
	}

	out, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal alert")
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE system_alerts SET data = ?, status = ? WHERE alert_id = ?`,
		string(out), string(alert.Status), alertID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update alert %s", alertID)
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit")
}

// Daily metrics

func (s *SQLiteStore) UpsertDailyMetrics(ctx context.Context, rows []model.SessionMetrics) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback()

	var n int64
	for _, r := range rows {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO session_daily_metrics (session_id, date, session_name, cvr, cpa, sessions, conversions, revenue)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(session_id, date) DO UPDATE SET
			   session_name = excluded.session_name,
			   cvr = excluded.cvr,
			   cpa = excluded.cpa,
			   sessions = excluded.sessions,
			   conversions = excluded.conversions,
			   revenue = excluded.revenue`,
			r.SessionID, r.Date, r.SessionName, r.CVR, r.CPA, r.Sessions, r.Conversions, r.Revenue,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert metrics %s/%s", r.SessionID, r.Date)
		}
		n++
	}
	return n, eris.Wrap(tx.Commit(), "sqlite: commit")
}

func (s *SQLiteStore) ListDailyMetrics(ctx context.Context, start, end string, sessionIDs []string) ([]model.SessionMetrics, error) {
	query := `SELECT session_id, date, session_name, cvr, cpa, sessions, conversions, revenue
		 FROM session_daily_metrics WHERE date >= ? AND date <= ?`
	args := []any{start, end}

	if len(sessionIDs) > 0 {
		query += ` AND session_id IN (?` + strings.Repeat(",?", len(sessionIDs)-1) + `)`
		for _, id := range sessionIDs {
			args = append(args, id)
		}
	}
	query += ` ORDER BY date ASC, session_id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list daily metrics")
	}
	defer rows.Close()

	var out []model.SessionMetrics
	for rows.Next() {
		var m model.SessionMetrics
		if err := rows.Scan(&m.SessionID, &m.Date, &m.SessionName, &m.CVR, &m.CPA,
			&m.Sessions, &m.Conversions, &m.Revenue); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan daily metrics")
		}
		out = append(out, m)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list daily metrics iterate")
}

// Reports

func (s *SQLiteStore) SaveReport(ctx context.Context, report model.MetricsReport) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal report")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO reports (id, report_type, period_start, period_end, generated_at, payload, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		report.ID, string(report.Type), report.Period.Start, report.Period.End,
		report.GeneratedAt, string(payload), time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: insert report %s", report.ID)
}

func (s *SQLiteStore) GetReport(ctx context.Context, id string) (*model.MetricsReport, error) {
	row := s.db.QueryRowContext(ctx, `SELECT payload FROM reports WHERE id = ?`, id)
	return scanDoc[model.MetricsReport](row, "report", id)
}

func (s *SQLiteStore) LatestReport(ctx context.Context, typ model.ReportType) (*model.MetricsReport, error) {
	query := `SELECT payload FROM reports`
	var args []any
	if typ != "" {
		query += ` WHERE report_type = ?`
		args = append(args, string(typ))
	}
	query += ` ORDER BY generated_at DESC LIMIT 1`

	row := s.db.QueryRowContext(ctx, query, args...)
	return scanDoc[model.MetricsReport](row, "report", "latest")
}

func (s *SQLiteStore) ListReports(ctx context.Context, limit int) ([]model.MetricsReport, error) {
	query := `SELECT payload FROM reports ORDER BY generated_at DESC LIMIT ?`
	return listDocs[model.MetricsReport](ctx, s.db, query, []any{defaultLimit(limit)}, "sqlite: list reports")
}

// Playbook executions

func (s *SQLiteStore) CreatePlaybookExecution(ctx context.Context, pe model.PlaybookExecution) (*model.PlaybookExecution, error) {
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
		return nil, eris.Wrap(err, "sqlite: marshal playbook execution")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO playbook_executions (id, execution_id, session_id, status, data, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		pe.ID, pe.ExecutionID, pe.SessionID, string(pe.Status), string(data), now, now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert playbook execution %s", pe.ExecutionID)
	}
	return &pe, nil
}

func (s *SQLiteStore) GetPlaybookExecution(ctx context.Context, executionID string) (*model.PlaybookExecution, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT data FROM playbook_executions WHERE execution_id = ?`, executionID)
	return scanDoc[model.PlaybookExecution](row, "playbook execution", executionID)
}

func (s *SQLiteStore) ActivePlaybookExecution(ctx context.Context, sessionID string) (*model.PlaybookExecution, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT data FROM playbook_executions
		 WHERE session_id = ? AND status IN ('initialized', 'in_progress', 'phase_gate_pending')
		 ORDER BY created_at DESC LIMIT 1`,
		sessionID)
	return scanDoc[model.PlaybookExecution](row, "playbook execution for session", sessionID)
}

func (s *SQLiteStore) UpdatePlaybookPhase(ctx context.Context, executionID string, upd model.PhaseUpdate) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback()

	var data string
	err = tx.QueryRowContext(ctx,
		`SELECT data FROM playbook_executions WHERE execution_id = ?`, executionID,
	).Scan(&data)
	if err == sql.ErrNoRows {
		return eris.Wrapf(ErrNotFound, "playbook execution %s", executionID)
	}
	if err != nil {
		return eris.Wrapf(err, "sqlite: get playbook execution %s", executionID)
	}

	var pe model.PlaybookExecution
	if err := json.Unmarshal([]byte(data), &pe); err != nil {
		return eris.Wrap(err, "sqlite: unmarshal playbook execution")
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
		return eris.Wrap(err, "sqlite: marshal playbook execution")
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE playbook_executions SET data = ?, status = ?, updated_at = ? WHERE execution_id = ?`,
		string(out), string(pe.Status), now, executionID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update playbook execution %s", executionID)
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit")
}

// Step executions

func (s *SQLiteStore) CreateStepExecution(ctx context.Context, se model.StepExecution) (*model.StepExecution, error) {
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
		return nil, eris.Wrap(err, "sqlite: marshal step execution")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO step_executions (id, step_execution_id, execution_id, status, data, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		se.ID, se.StepExecutionID, se.ExecutionID, string(se.Status), string(data), now, now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert step execution %s", se.StepExecutionID)
	}
	return &se, nil
}

func (s *SQLiteStore) GetStepExecution(ctx context.Context, stepExecutionID string) (*model.StepExecution, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT data FROM step_executions WHERE step_execution_id = ?`, stepExecutionID)
	return scanDoc[model.StepExecution](row, "step execution", stepExecutionID)
}

func (s *SQLiteStore) FinalizeStepExecution(ctx context.Context, stepExecutionID string, result model.StepResult) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback()

	var data string
	err = tx.QueryRowContext(ctx,
		`SELECT data FROM step_executions WHERE step_execution_id = ?`, stepExecutionID,
	).Scan(&data)
	if err == sql.ErrNoRows {
		return eris.Wrapf(ErrNotFound, "step execution %s", stepExecutionID)
	}
	if err != nil {
		return eris.Wrapf(err, "sqlite: get step execution %s", stepExecutionID)
	}

	var se model.StepExecution
	if err := json.Unmarshal([]byte(data), &se); err != nil {
		return eris.Wrap(err, "sqlite: unmarshal step execution")
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
		return eris.Wrap(err, "sqlite: marshal step execution")
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE step_executions SET data = ?, status = ?, updated_at = ? WHERE step_execution_id = ?`,
		string(out), string(se.Status), now, stepExecutionID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finalize step execution %s", stepExecutionID)
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit")
}

// Maintenance

func (s *SQLiteStore) Cleanup(ctx context.Context, olderThan time.Time) (*CleanupResult, error) {
	var result CleanupResult

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM automation_executions WHERE status IN ('completed', 'failed') AND created_at < ?`,
		olderThan,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: cleanup executions")
	}
	n, _ := res.RowsAffected()
	result.ExecutionsDeleted = int(n)

	res, err = s.db.ExecContext(ctx,
		`DELETE FROM system_alerts WHERE status = 'resolved' AND created_at < ?`,
		olderThan,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: cleanup alerts")
	}
	n, _ = res.RowsAffected()
	result.AlertsDeleted = int(n)

	res, err = s.db.ExecContext(ctx,
		`DELETE FROM step_executions WHERE status IN ('completed', 'failed', 'skipped') AND created_at < ?`,
		olderThan,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: cleanup step executions")
	}
	n, _ = res.RowsAffected()
	result.StepExecutionsDeleted = int(n)

	return &result, nil
}

// helpers

type scannable interface {
	Scan(dest ...any) error
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func scanDoc[T any](row scannable, entity, id string) (*T, error) {
	var data string
	err := row.Scan(&data)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get %s %s", entity, id)
	}
	var v T
	if err := json.Unmarshal([]byte(data), &v); err != nil {
		return nil, eris.Wrapf(err, "sqlite: unmarshal %s", entity)
	}
	return &v, nil
}

func listDocs[T any](ctx context.Context, q queryer, query string, args []any, op string) ([]T, error) {
	rows, err := q.QueryContext(ctx, query, args...)
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

func defaultLimit(limit int) int {
	if limit <= 0 {
		return 100
	}
	return limit
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
