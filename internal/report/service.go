// Package report generates, formats, persists, and delivers metrics reports
// over the daily session metric rows.
package report

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/unson/lpops/internal/config"
	"github.com/unson/lpops/internal/metrics"
	"github.com/unson/lpops/internal/model"
	"github.com/unson/lpops/internal/store"
)

const dateLayout = "2006-01-02"

// Service generates and delivers metrics reports.
type Service struct {
	store  store.Store
	cfg    config.ReportConfig
	sender EmailSender
	now    func() time.Time
}

// NewService creates a report service. A nil sender falls back to the stub
// sender.
func NewService(st store.Store, cfg config.ReportConfig, sender EmailSender) *Service {
	if sender == nil {
		sender = &StubSender{}
	}
	return &Service{
		store:  st,
		cfg:    cfg,
		sender: sender,
		now:    time.Now,
	}
}

// GenerateReport builds a report for the configured window. Monthly reports
// aggregate the calendar month down to one row per session; all other types
// report raw per-date rows with clicks/impressions estimated when the
// source never recorded them.
func (s *Service) GenerateReport(ctx context.Context, rc model.ReportConfig) (*model.MetricsReport, error) {
	start, end, err := s.resolveWindow(rc)
	if err != nil {
		return nil, err
	}

	rows, err := s.store.ListDailyMetrics(ctx, start, end, rc.SessionIDs)
	if err != nil {
		return nil, eris.Wrap(err, "report: load metrics")
	}

	if rc.Type == model.ReportMonthly {
		rows = aggregateBySession(rows)
	}
	for i := range rows {
		deriveEstimates(&rows[i])
	}

	now := s.now().UTC()
	r := &model.MetricsReport{
		ID:             fmt.Sprintf("report-%d", now.UnixMilli()),
		Type:           rc.Type,
		Period:         model.ReportPeriod{Start: start, End: end},
		GeneratedAt:    now.Format(time.RFC3339),
		Summary:        metrics.Summarize(rows),
		SessionDetails: rows,
	}

	// Daily windows are too short to frame as a trend.
	if rc.Type != model.ReportDaily {
		r.Trends = analyzeTrends(rows)
	}
	if rc.IncludeCharts {
		r.Charts = buildCharts(rows)
	}

	zap.L().Info("report generated",
		zap.String("report_id", r.ID),
		zap.String("type", string(rc.Type)),
		zap.Int("rows", len(rows)),
	)
	return r, nil
}

// Anomalies flags report rows whose CVR is a 2-sigma outlier.
func (s *Service) Anomalies(rows []model.SessionMetrics) []model.Anomaly {
	return metrics.DetectAnomalies(rows)
}

// CompareSessions runs a significance test between two sessions' aggregated
// conversion rates over the report window.
func (s *Service) CompareSessions(ctx context.Context, start, end, sessionA, sessionB string) (*model.SignificanceTest, error) {
	rows, err := s.store.ListDailyMetrics(ctx, start, end, []string{sessionA, sessionB})
	if err != nil {
		return nil, eris.Wrap(err, "report: load metrics")
	}

	var a, b metrics.Proportion
	for _, r := range rows {
		switch r.SessionID {
		case sessionA:
			a.Conversions += r.Conversions
			a.Sessions += r.Sessions
		case sessionB:
			b.Conversions += r.Conversions
			b.Sessions += r.Sessions
		}
	}
	if a.Sessions == 0 || b.Sessions == 0 {
		return nil, eris.Errorf("report: both sessions need traffic to compare (%s=%d, %s=%d)",
			sessionA, a.Sessions, sessionB, b.Sessions)
	}

	result := metrics.Significance(a, b)
	return &result, nil
}

// SaveReport persists a generated report.
func (s *Service) SaveReport(ctx context.Context, r model.MetricsReport) error {
	return s.store.SaveReport(ctx, r)
}

// GetReport loads a report by ID.
func (s *Service) GetReport(ctx context.Context, id string) (*model.MetricsReport, error) {
	return s.store.GetReport(ctx, id)
}

// GetReportHistory lists recent reports, newest first.
func (s *Service) GetReportHistory(ctx context.Context, limit int) ([]model.MetricsReport, error) {
	if limit <= 0 {
		limit = s.cfg.HistoryLimit
	}
	return s.store.ListReports(ctx, limit)
}

// SendReportEmail delivers a formatted report to the given recipients.
func (s *Service) SendReportEmail(ctx context.Context, r *model.MetricsReport, recipients []string) error {
	body, err := FormatOutput(r, "text")
	if err != nil {
		return err
	}
	subject := fmt.Sprintf("Metrics report %s (%s to %s)", r.Type, r.Period.Start, r.Period.End)
	return s.sender.Send(ctx, recipients, subject, body)
}

// ScheduledResult is the outcome of a scheduled report run. Scheduled runs
// report failure in-band instead of propagating, so one bad window never
// kills the scheduler loop.
type ScheduledResult struct {
	Success  bool   `json:"success"`
	ReportID string `json:"report_id,omitempty"`
	Error    string `json:"error,omitempty"`
}

// ScheduledReport generates, saves, and emails a report for the window
// ending now.
func (s *Service) ScheduledReport(ctx context.Context, typ model.ReportType) ScheduledResult {
	r, err := s.GenerateReport(ctx, model.ReportConfig{
		Type:          typ,
		EndDate:       s.now().UTC(),
		IncludeCharts: s.cfg.IncludeCharts,
	})
	if err == nil {
		err = s.SaveReport(ctx, *r)
	}
	if err == nil && len(s.cfg.Recipients) > 0 {
		err = s.SendReportEmail(ctx, r, s.cfg.Recipients)
	}
	if err != nil {
		zap.L().Error("scheduled report failed", zap.String("type", string(typ)), zap.Error(err))
		return ScheduledResult{Success: false, Error: err.Error()}
	}
	return ScheduledResult{Success: true, ReportID: r.ID}
}

// resolveWindow derives the report date window from the config and type.
func (s *Service) resolveWindow(rc model.ReportConfig) (string, string, error) {
	end := rc.EndDate
	if end.IsZero() {
		end = s.now().UTC()
	}

	switch rc.Type {
	case model.ReportDaily:
		day := end.Format(dateLayout)
		return day, day, nil
	case model.ReportWeekly:
		return end.AddDate(0, 0, -6).Format(dateLayout), end.Format(dateLayout), nil
	case model.ReportMonthly:
		first := time.Date(end.Year(), end.Month(), 1, 0, 0, 0, 0, time.UTC)
		last := first.AddDate(0, 1, -1)
		return first.Format(dateLayout), last.Format(dateLayout), nil
	case model.ReportCustom:
		if rc.StartDate.IsZero() || rc.EndDate.IsZero() {
			return "", "", eris.New("report: custom reports need explicit start and end dates")
		}
		return rc.StartDate.Format(dateLayout), rc.EndDate.Format(dateLayout), nil
	default:
		return "", "", eris.Errorf("report: unknown report type %q", rc.Type)
	}
}

// aggregateBySession folds per-date rows into one row per session. Spend is
// reconstructed from each row's CPA and conversion count so the monthly CPA
// is conversion-weighted rather than a mean of daily CPAs.
func aggregateBySession(rows []model.SessionMetrics) []model.SessionMetrics {
	bySession := make(map[string]*model.SessionMetrics)
	spend := make(map[string]float64)
	var order []string
	for _, r := range rows {
		agg, ok := bySession[r.SessionID]
		if !ok {
			agg = &model.SessionMetrics{
				SessionID:   r.SessionID,
				SessionName: r.SessionName,
				Date:        r.Date,
			}
			bySession[r.SessionID] = agg
			order = append(order, r.SessionID)
		}
		agg.Sessions += r.Sessions
		agg.Conversions += r.Conversions
		agg.Revenue += r.Revenue
		agg.Clicks += r.Clicks
		agg.Impressions += r.Impressions
		spend[r.SessionID] += r.CPA * float64(r.Conversions)
		if r.Date > agg.Date {
			agg.Date = r.Date
		}
	}

	out := make([]model.SessionMetrics, 0, len(order))
	for _, id := range order {
		agg := bySession[id]
		agg.CVR = metrics.CVR(agg.Conversions, agg.Sessions)
		if agg.Conversions > 0 {
			agg.CPA = metrics.RoundTo(spend[id]/float64(agg.Conversions), metrics.CurrencyPlaces)
		}
		out = append(out, *agg)
	}
	return out
}

// deriveEstimates fills clicks/impressions from session counts when the
// source never recorded them. A fixed-ratio approximation, kept on purpose.
func deriveEstimates(m *model.SessionMetrics) {
	if m.Clicks == 0 {
		m.Clicks = metrics.EstimateClicks(m.Sessions)
	}
	if m.Impressions == 0 {
		m.Impressions = metrics.EstimateImpressions(m.Sessions)
	}
	if m.CTR == 0 {
		m.CTR = metrics.CTR(m.Clicks, m.Impressions)
	}
}

// analyzeTrends compares the first and last rows of the window.
func analyzeTrends(rows []model.SessionMetrics) *model.TrendAnalysis {
	cvrs := make([]float64, len(rows))
	cpas := make([]float64, len(rows))
	for i, r := range rows {
		cvrs[i] = r.CVR
		cpas[i] = r.CPA
	}

	t := &model.TrendAnalysis{
		CVRTrend: metrics.DetectTrend(cvrs),
		CPATrend: metrics.DetectTrend(cpas),
	}
	if len(rows) > 0 {
		t.CVRGrowthRate = metrics.GrowthRate(cvrs[len(cvrs)-1], cvrs[0])
		// Falling CPA is an improvement, so the sign flips.
		t.CPAImprovementRate = -metrics.GrowthRate(cpas[len(cpas)-1], cpas[0])
	}
	return t
}

// buildCharts renders the standard chart set: CVR over time and session
// volume per session.
func buildCharts(rows []model.SessionMetrics) []model.Chart {
	byDate := make(map[string][]float64)
	for _, r := range rows {
		byDate[r.Date] = append(byDate[r.Date], r.CVR)
	}
	dates := make([]string, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	cvrData := make([]float64, len(dates))
	for i, d := range dates {
		var sum float64
		for _, v := range byDate[d] {
			sum += v
		}
		cvrData[i] = metrics.RoundTo(sum/float64(len(byDate[d])), metrics.ChartValuePlaces)
	}

	sessionLabels := make([]string, 0, len(rows))
	sessionData := make([]float64, 0, len(rows))
	totals := make(map[string]int)
	var order []string
	for _, r := range rows {
		if _, ok := totals[r.SessionName]; !ok {
			order = append(order, r.SessionName)
		}
		totals[r.SessionName] += r.Sessions
	}
	for _, name := range order {
		sessionLabels = append(sessionLabels, name)
		sessionData = append(sessionData, float64(totals[name]))
	}

	return []model.Chart{
		{Type: "line", Title: "CVR over time", Labels: dates, Series: []model.ChartSeries{{Label: "CVR", Data: cvrData}}},
		{Type: "bar", Title: "Sessions by campaign", Labels: sessionLabels, Series: []model.ChartSeries{{Label: "Sessions", Data: sessionData}}},
	}
}
