package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/unson/lpops/internal/model"
	"github.com/unson/lpops/internal/store"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage validation sessions",
}

var (
	sessionStartProduct  string
	sessionStartName     string
	sessionStartLPURL    string
	sessionStartCVR      float64
	sessionStartCPA      float64
	sessionStartMinSess  int
	sessionStartBudget   float64
	sessionStartAutomate bool
	sessionStartPlaybook string
)

var sessionStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a validation session for a product",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		s, err := env.Store.CreateSession(cmd.Context(), model.Session{
			ProductID:         sessionStartProduct,
			ProductName:       sessionStartName,
			LPURL:             sessionStartLPURL,
			Status:            model.SessionStatusActive,
			TargetCVR:         sessionStartCVR,
			TargetCPA:         sessionStartCPA,
			MinSessions:       sessionStartMinSess,
			BudgetLimit:       sessionStartBudget,
			AutomationEnabled: sessionStartAutomate,
			PlaybookID:        sessionStartPlaybook,
		})
		if err != nil {
			return err
		}

		if sessionStartPlaybook != "" {
			c, ok := env.Catalogs[sessionStartPlaybook]
			if !ok {
				return eris.Errorf("playbook catalog %q not found", sessionStartPlaybook)
			}
			pe, err := env.Store.CreatePlaybookExecution(cmd.Context(), model.PlaybookExecution{
				SessionID:       s.ID,
				WorkspaceID:     s.WorkspaceID,
				PlaybookID:      c.ID,
				PlaybookName:    c.Name,
				PlaybookVersion: c.Version,
				Status:          model.PlaybookInitialized,
				TotalPhases:     c.Phases(),
			})
			if err != nil {
				return err
			}
			fmt.Printf("playbook run %s attached (%s, %d phases)\n", pe.ExecutionID, c.Name, pe.TotalPhases)
		}

		fmt.Printf("session %s started for %s\n", s.ID, s.ProductName)
		return nil
	},
}

var sessionListStatus string

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		sessions, err := env.Store.ListSessions(cmd.Context(), store.SessionFilter{
			Status: model.SessionStatus(sessionListStatus),
		})
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tPRODUCT\tSTATUS\tPHASE\tCVR\tCPA\tSESSIONS")
		for _, s := range sessions {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%.1f%%\t%.0f\t%d\n",
				s.ID, s.ProductName, s.Status, s.CurrentPhase, s.CurrentCVR, s.CurrentCPA, s.TotalSessions)
		}
		return w.Flush()
	},
}

var sessionStatusCmd = &cobra.Command{
	Use:   "status <session-id>",
	Short: "Show one session in full",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		s, err := env.Store.GetSession(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		out, err := json.MarshalIndent(s, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

func init() {
	sessionStartCmd.Flags().StringVar(&sessionStartProduct, "product", "", "product id (required)")
	sessionStartCmd.Flags().StringVar(&sessionStartName, "name", "", "product name (required)")
	sessionStartCmd.Flags().StringVar(&sessionStartLPURL, "lp-url", "", "landing page URL")
	sessionStartCmd.Flags().Float64Var(&sessionStartCVR, "target-cvr", 10, "target CVR percent")
	sessionStartCmd.Flags().Float64Var(&sessionStartCPA, "target-cpa", 300, "target CPA")
	sessionStartCmd.Flags().IntVar(&sessionStartMinSess, "min-sessions", 1000, "minimum sample size")
	sessionStartCmd.Flags().Float64Var(&sessionStartBudget, "budget", 0, "budget limit (0 = none)")
	sessionStartCmd.Flags().BoolVar(&sessionStartAutomate, "automate", true, "enable scheduled automation")
	sessionStartCmd.Flags().StringVar(&sessionStartPlaybook, "playbook", "", "playbook catalog id")
	_ = sessionStartCmd.MarkFlagRequired("product")
	_ = sessionStartCmd.MarkFlagRequired("name")

	sessionListCmd.Flags().StringVar(&sessionListStatus, "status", "", "filter by status")

	sessionCmd.AddCommand(sessionStartCmd, sessionListCmd, sessionStatusCmd)
	rootCmd.AddCommand(sessionCmd)
}
