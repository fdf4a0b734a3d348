package model

import "time"

// ReportType selects the aggregation window for a metrics report.
type ReportType string

const (
	ReportDaily   ReportType = "daily"
	ReportWeekly  ReportType = "weekly"
	ReportMonthly ReportType = "monthly"
	ReportCustom  ReportType = "custom"
)

// TrendDirection classifies first-vs-last movement of a metric series.
type TrendDirection string

const (
	TrendIncreasing TrendDirection = "increasing"
	TrendDecreasing TrendDirection = "decreasing"
	TrendStable     TrendDirection = "stable"
)

// SessionMetrics is one report row: a session's metrics for one date.
type SessionMetrics struct {
	SessionID   string  `json:"session_id"`
	SessionName string  `json:"session_name"`
	Date        string  `json:"date"`
	CVR         float64 `json:"cvr"`
	CPA         float64 `json:"cpa"`
	Sessions    int     `json:"sessions"`
	Conversions int     `json:"conversions"`
	Revenue     float64 `json:"revenue"`
	Clicks      int     `json:"clicks,omitempty"`
	Impressions int     `json:"impressions,omitempty"`
	CTR         float64 `json:"ctr,omitempty"`
	ROAS        float64 `json:"roas,omitempty"`
}

// ReportSummary aggregates a set of session metrics.
type ReportSummary struct {
	TotalSessions    int     `json:"total_sessions"`
	TotalConversions int     `json:"total_conversions"`
	TotalRevenue     float64 `json:"total_revenue"`
	AverageCVR       float64 `json:"average_cvr"`
	AverageCPA       float64 `json:"average_cpa"`
}

// TrendAnalysis compares the first and last metrics of a report window.
type TrendAnalysis struct {
	CVRTrend           TrendDirection `json:"cvr_trend"`
	CPATrend           TrendDirection `json:"cpa_trend"`
	CVRGrowthRate      float64        `json:"cvr_growth_rate"`
	CPAImprovementRate float64        `json:"cpa_improvement_rate"`
}

// Anomaly flags a data point deviating more than two standard deviations
// from the set mean.
type Anomaly struct {
	Metric    string  `json:"metric"`
	Value     float64 `json:"value"`
	Expected  float64 `json:"expected"`
	Deviation float64 `json:"deviation"`
	Reason    string  `json:"reason"`
}

// SignificanceTest is the result of a two-proportion z-test between two
// sessions' conversion rates.
type SignificanceTest struct {
	IsSignificant   bool    `json:"is_significant"`
	ConfidenceLevel float64 `json:"confidence_level"`
	PValue          float64 `json:"p_value"`
	TestType        string  `json:"test_type"`
}

// ChartSeries is one labelled data series for report charts.
type ChartSeries struct {
	Label string    `json:"label"`
	Data  []float64 `json:"data"`
}

// Chart is a renderable chart description included in a report on request.
type Chart struct {
	Type   string        `json:"type"`
	Title  string        `json:"title"`
	Labels []string      `json:"labels"`
	Series []ChartSeries `json:"series"`
}

// ReportPeriod bounds the report window.
type ReportPeriod struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// MetricsReport is the full output of report generation.
type MetricsReport struct {
	ID             string           `json:"id"`
	Type           ReportType       `json:"type"`
	Period         ReportPeriod     `json:"period"`
	GeneratedAt    string           `json:"generated_at"`
	Summary        ReportSummary    `json:"summary"`
	SessionDetails []SessionMetrics `json:"session_details"`
	Trends         *TrendAnalysis   `json:"trends,omitempty"`
	Charts         []Chart          `json:"charts,omitempty"`
}

// ReportConfig specifies what to generate.
type ReportConfig struct {
	Type          ReportType `json:"type"`
	StartDate     time.Time  `json:"start_date"`
	EndDate       time.Time  `json:"end_date"`
	SessionIDs    []string   `json:"session_ids,omitempty"`
	IncludeCharts bool       `json:"include_charts"`
	Format        string     `json:"format,omitempty"`
}
