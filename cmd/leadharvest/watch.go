package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Fetch the configured leads on their cron schedules until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.StartScheduler(); err != nil {
			return err
		}
		for _, status := range a.SchedulerService.Statuses() {
			logger.Info().
				Str("watch", status.Name).
				Str("schedule", status.Schedule).
				Strs("lead_ids", status.LeadIDs).
				Msg("Watching leads")
		}

		logger.Info().Msg("Scheduler ready - Press Ctrl+C to stop")

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		logger.Info().Msg("Interrupt signal received, draining queued tasks")
		return nil
	},
}
