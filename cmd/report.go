package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/unson/lpops/internal/model"
	"github.com/unson/lpops/internal/report"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Generate and browse metrics reports",
}

var (
	reportType   string
	reportFormat string
	reportCharts bool
	reportSave   bool
	reportStart  string
	reportEnd    string
	historyLimit int
)

var reportGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a report over the daily metrics",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		rc := model.ReportConfig{
			Type:          model.ReportType(reportType),
			IncludeCharts: reportCharts,
		}
		if reportStart != "" {
			start, err := time.Parse("2006-01-02", reportStart)
			if err != nil {
				return err
			}
			rc.StartDate = start
		}
		if reportEnd != "" {
			end, err := time.Parse("2006-01-02", reportEnd)
			if err != nil {
				return err
			}
			rc.EndDate = end
		}

		r, err := env.Reports.GenerateReport(cmd.Context(), rc)
		if err != nil {
			return err
		}
		if reportSave {
			if err := env.Reports.SaveReport(cmd.Context(), *r); err != nil {
				return err
			}
		}

		format := reportFormat
		if format == "" {
			format = cfg.Report.DefaultFormat
		}
		out, err := report.FormatOutput(r, format)
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	},
}

var reportHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "List saved reports, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		reports, err := env.Reports.GetReportHistory(cmd.Context(), historyLimit)
		if err != nil {
			return err
		}

		for _, r := range reports {
			fmt.Printf("%s  %-8s  %s to %s  (%d sessions)\n",
				r.ID, r.Type, r.Period.Start, r.Period.End, r.Summary.TotalSessions)
		}
		return nil
	},
}

func init() {
	reportGenerateCmd.Flags().StringVar(&reportType, "type", "weekly", "daily, weekly, monthly, or custom")
	reportGenerateCmd.Flags().StringVar(&reportFormat, "format", "", "json, csv, or text (default from config)")
	reportGenerateCmd.Flags().BoolVar(&reportCharts, "charts", false, "include chart data")
	reportGenerateCmd.Flags().BoolVar(&reportSave, "save", false, "persist the report")
	reportGenerateCmd.Flags().StringVar(&reportStart, "start", "", "custom window start (YYYY-MM-DD)")
	reportGenerateCmd.Flags().StringVar(&reportEnd, "end", "", "window end (YYYY-MM-DD)")

	reportHistoryCmd.Flags().IntVar(&historyLimit, "limit", 0, "max reports (default from config)")

	reportCmd.AddCommand(reportGenerateCmd, reportHistoryCmd)
	rootCmd.AddCommand(reportCmd)
}
