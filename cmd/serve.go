package main

import (
	"github.com/spf13/cobra"

	"github.com/jDay-whyT/converterBot-backend/internal/app"
)

var converterCmd = &cobra.Command{
	Use:   "converter",
	Short: "Serve the conversion HTTP API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signalContext(cmd.Context())
		defer stop()

		a, err := app.NewConverter(cfg, log)
		if err != nil {
			return err
		}
		return a.Run(ctx)
	},
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Process bot jobs from Pub/Sub push or the redis stream",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signalContext(cmd.Context())
		defer stop()

		a, err := app.NewWorker(ctx, cfg, log)
		if err != nil {
			return err
		}
		return a.Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(converterCmd, workerCmd)
}
