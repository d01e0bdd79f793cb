package commands

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(scanCmd)
}

var scanCmd = &cobra.Command{
	Use:   "scan [--config <path/to/config.json>]",
	Short: "Runs one full market scan, resuming a partial one if present.",
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

		run, err := orchestrator.Run(cmd.Context())
		if err != nil {
			return err
		}

		log.Info().Str("scan_id", run.ID).Int("items", run.Items).Int("unreadable", run.Unreadable).
			Int("restarts", run.Restarts).Bool("resumed", run.Resumed).Msg("Scanner: scan completed")
		return nil
	},
}
