package commands

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tibiamarket/tracker/internal/services"
)

var fetchOutput *string

func init() {
	fetchOutput = fetchItemsCmd.Flags().String("out", "", "File to write the item names to; defaults to tracked_items_file.")
	rootCmd.AddCommand(fetchItemsCmd)
}

var fetchItemsCmd = &cobra.Command{
	Use:   "fetch-items [--out <path/to/items.txt>]",
	Short: "Downloads the list of marketable items from the wiki.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		fetcher := services.NewWikiItemFetcher(cfg.WikiBaseURL)
		names, err := fetcher.FetchCategory(cmd.Context(), cfg.WikiCategory)
		if err != nil {
			return err
		}

		out := cfg.TrackedItemsFile
		if *fetchOutput != "" {
			out = *fetchOutput
		}
		if err := services.WriteTrackedItems(out, names); err != nil {
			return err
		}

		log.Info().Int("items", len(names)).Str("path", out).Msg("Scanner: tracked items updated")
		return nil
	},
}
