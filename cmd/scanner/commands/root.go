package commands

import (
	"context"
	"errors"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tibiamarket/tracker/internal/config"
	"github.com/tibiamarket/tracker/internal/models"
)

// Process exit codes
const (
	exitFailure     = 1
	exitSafetyAbort = 2
)

var configPath *string

var rootCmd = &cobra.Command{
	Use:           "scanner",
	Short:         "scanner drives the game client to collect market prices.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	configPath = rootCmd.PersistentFlags().String("config", "config.json", "Path to the JSON config file.")
}

func loadConfig() (config.Config, error) {
	return config.Load(*configPath)
}

// ExitCode maps a command error onto the process exit status
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, models.ErrSafetyAbort):
		return exitSafetyAbort
	default:
		return exitFailure
	}
}

func ExecuteContext(ctx context.Context) {
	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return
	}
	if errors.Is(err, models.ErrSafetyAbort) {
		log.Error().Err(err).Msg("Scanner: stopped by the fail-safe")
	} else {
		log.Error().Err(err).Msg("Scanner: failed")
	}
	os.Exit(ExitCode(err))
}
