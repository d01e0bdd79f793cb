package database

import (
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// cleanupDuplicateQuotes removes repeated (scan_id, name) observations before
// the unique index is added. This runs BEFORE AutoMigrate to prevent
// constraint violations on databases written by older builds.
func cleanupDuplicateQuotes(db *gorm.DB) error {
	if !db.Migrator().HasTable("quote_records") {
		return nil
	}

	// Keep the most recent observation of each item per scan
	result := db.Exec(`
		DELETE FROM quote_records
		WHERE id NOT IN (
			SELECT MAX(id)
			FROM quote_records
			GROUP BY scan_id, LOWER(TRIM(name))
		)
	`)
	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected > 0 {
		log.Info().Int64("rows", result.RowsAffected).Msg("Cleaned up duplicate quote_records entries")
	}
	return nil
}

// RunMigrations runs any custom data migrations after schema changes
func RunMigrations(db *gorm.DB) error {
	return normalizeQuoteNames(db)
}

// normalizeQuoteNames lower-cases item names so history lookups match the
// file names in results/histories. Safe to run multiple times.
func normalizeQuoteNames(db *gorm.DB) error {
	result := db.Exec(`UPDATE quote_records SET name = LOWER(TRIM(name)) WHERE name != LOWER(TRIM(name))`)
	if result.Error != nil {
		log.Warn().Err(result.Error).Msg("Failed to normalize quote names")
		return nil
	}
	if result.RowsAffected > 0 {
		log.Info().Int64("rows", result.RowsAffected).Msg("Normalized quote names")
	}
	return nil
}
