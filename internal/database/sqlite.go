package database

import (
	"github.com/rs/zerolog/log"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tibiamarket/tracker/internal/models"
)

var DB *gorm.DB

// Initialize opens the database at dbPath, migrates it and stores the
// handle for GetDB
func Initialize(dbPath string) error {
	db, err := Open(dbPath)
	if err != nil {
		return err
	}
	DB = db
	return nil
}

// Open connects to dbPath and brings the schema up to date
func Open(dbPath string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("path", dbPath).Msg("Database connected successfully")

	if err := cleanupDuplicateQuotes(db); err != nil {
		return nil, err
	}

	// Auto-migrate the schema
	if err := db.AutoMigrate(&models.ScanRun{}, &models.QuoteRecord{}); err != nil {
		return nil, err
	}

	if err := RunMigrations(db); err != nil {
		return nil, err
	}

	log.Info().Msg("Database migration completed")
	return db, nil
}

func GetDB() *gorm.DB {
	return DB
}
