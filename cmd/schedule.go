package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run the automation scheduler until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		zap.L().Info("scheduler starting")
		err = env.newScheduler().Run(ctx)
		if errors.Is(err, context.Canceled) {
			zap.L().Info("scheduler stopped")
			return nil
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(scheduleCmd)
}
