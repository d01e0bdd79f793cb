package commands

import (
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tibiamarket/tracker/internal/services"
)

var scheduleInterval *time.Duration

func init() {
	scheduleInterval = scheduleCmd.Flags().Duration("interval", 0, "Time between scans; overrides scan_interval from the config.")
	rootCmd.AddCommand(scheduleCmd)
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule [--interval 6h]",
	Short: "Runs full scans on a fixed interval until interrupted.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		orchestrator, cleanup, err := newOrchestrator(cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		interval := time.Duration(cfg.ScanInterval)
		if *scheduleInterval > 0 {
			interval = *scheduleInterval
		}
		worker := services.NewScanWorker(orchestrator, interval)

		ctx := cmd.Context()
		for {
			err := runRecovered(func() error { return worker.Start(ctx) })
			if err != nil {
				return err
			}

			select {
			case <-ctx.Done():
				return nil // Graceful shutdown
			case <-time.After(30 * time.Second):
				log.Info().Msg("Scan worker restarting after panic recovery...")
			}
		}
	},
}

// runRecovered runs fn and turns a panic into a logged restart
func runRecovered(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("PANIC in scan worker - restarting in 30 seconds")
			err = nil
		}
	}()
	return fn()
}
