package main

import (
	"encoding/json"
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var automateSession string

var automateCmd = &cobra.Command{
	Use:   "automate <action>",
	Short: "Run one automation action against a session",
	Long: `Actions: optimize-ads, lp-improve, phase-gate, phase-transition,
metrics-update, alert-check, cleanup. All but cleanup need --session.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		ctx := cmd.Context()
		action := args[0]

		if action == "cleanup" {
			result, err := env.Engine.Cleanup(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("removed %d rows\n", result.Total())
			return nil
		}

		if automateSession == "" {
			return eris.Errorf("action %s needs --session", action)
		}

		var out any
		switch action {
		case "optimize-ads":
			out, err = env.Engine.OptimizeGoogleAds(ctx, automateSession)
		case "lp-improve":
			out, err = env.Engine.GenerateLPImprovements(ctx, automateSession)
		case "phase-gate":
			out, err = env.Engine.EvaluatePhaseGate(ctx, automateSession)
		case "phase-transition":
			out, err = env.Engine.ExecutePhaseTransition(ctx, automateSession)
		case "metrics-update":
			out, err = env.Engine.UpdateSessionMetrics(ctx, automateSession)
		case "alert-check":
			out, err = env.Engine.CheckAlerts(ctx, automateSession)
		default:
			return eris.Errorf("unknown action %q", action)
		}
		if err != nil {
			return err
		}

		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	},
}

func init() {
	automateCmd.Flags().StringVar(&automateSession, "session", "", "session id")
	rootCmd.AddCommand(automateCmd)
}
