package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/unson/lpops/internal/model"
)

// csvHeader is the fixed column order consumers of the CSV export parse by
// position. Do not reorder.
var csvHeader = []string{"Session ID", "Session Name", "CVR", "CPA", "Sessions", "Conversions", "Revenue"}

// FormatOutput renders a report as json, csv, or text. Any other format
// string falls back to JSON without an error.
func FormatOutput(r *model.MetricsReport, format string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "csv":
		return formatCSV(r)
	case "text":
		return formatText(r), nil
	default:
		return formatJSON(r)
	}
}

func formatJSON(r *model.MetricsReport) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", eris.Wrap(err, "report: marshal json")
	}
	return string(data), nil
}

func formatCSV(r *model.MetricsReport) (string, error) {
	var sb strings.Builder
	w := csv.NewWriter(&sb)
	if err := w.Write(csvHeader); err != nil {
		return "", eris.Wrap(err, "report: write csv header")
	}
	for _, row := range r.SessionDetails {
		record := []string{
			row.SessionID,
			row.SessionName,
			strconv.FormatFloat(row.CVR, 'f', -1, 64),
			strconv.FormatFloat(row.CPA, 'f', -1, 64),
			strconv.Itoa(row.Sessions),
			strconv.Itoa(row.Conversions),
			strconv.FormatFloat(row.Revenue, 'f', -1, 64),
		}
		if err := w.Write(record); err != nil {
			return "", eris.Wrap(err, "report: write csv row")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", eris.Wrap(err, "report: flush csv")
	}
	return sb.String(), nil
}

func formatText(r *model.MetricsReport) string {
	p := message.NewPrinter(language.English)
	var sb strings.Builder

	fmt.Fprintf(&sb, "Metrics Report (%s)\n", r.Type)
	fmt.Fprintf(&sb, "Period: %s to %s\n", r.Period.Start, r.Period.End)
	fmt.Fprintf(&sb, "Generated: %s\n\n", r.GeneratedAt)

	sb.WriteString("Summary\n")
	fmt.Fprintf(&sb, "  Sessions:    %s\n", p.Sprintf("%d", r.Summary.TotalSessions))
	fmt.Fprintf(&sb, "  Conversions: %s\n", p.Sprintf("%d", r.Summary.TotalConversions))
	fmt.Fprintf(&sb, "  Revenue:     %s\n", formatYen(p, r.Summary.TotalRevenue))
	fmt.Fprintf(&sb, "  Average CVR: %.1f%%\n", r.Summary.AverageCVR)
	fmt.Fprintf(&sb, "  Average CPA: %s\n", formatYen(p, r.Summary.AverageCPA))

	if r.Trends != nil {
		sb.WriteString("\nTrends\n")
		fmt.Fprintf(&sb, "  CVR: %s (%.1f%%)\n", r.Trends.CVRTrend, r.Trends.CVRGrowthRate)
		fmt.Fprintf(&sb, "  CPA: %s (%.1f%% improvement)\n", r.Trends.CPATrend, r.Trends.CPAImprovementRate)
	}

	if len(r.SessionDetails) > 0 {
		sb.WriteString("\nSessions\n")
		for _, row := range r.SessionDetails {
			fmt.Fprintf(&sb, "  %-24s %s  CVR %.1f%%  CPA %s  %d sessions / %d conversions\n",
				row.SessionName, row.Date, row.CVR, formatYen(p, row.CPA), row.Sessions, row.Conversions)
		}
	}
	return sb.String()
}

// formatYen renders a currency amount with the yen symbol and grouping.
func formatYen(p *message.Printer, v float64) string {
	return p.Sprint(currency.Symbol(currency.JPY.Amount(v)))
}
