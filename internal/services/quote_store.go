package services

import (
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tibiamarket/tracker/internal/models"
)

// QuoteStore keeps every observation and scan run in SQLite so the API can
// serve item history without reading the CSV history files
type QuoteStore struct {
	db *gorm.DB
}

// NewQuoteStore creates a store on an opened database
func NewQuoteStore(db *gorm.DB) *QuoteStore {
	return &QuoteStore{db: db}
}

// StartRun inserts a new scan run
func (s *QuoteStore) StartRun(run *models.ScanRun) error {
	return s.db.Create(run).Error
}

// FinishRun stores the final state of a scan run
func (s *QuoteStore) FinishRun(run *models.ScanRun) error {
	return s.db.Save(run).Error
}

// RecordQuote stores one observation. Recording the same item twice in a
// scan keeps the later observation.
func (s *QuoteStore) RecordQuote(scanID string, quote models.MarketQuote) error {
	record := models.NewQuoteRecord(scanID, quote)
	record.Name = strings.ToLower(strings.TrimSpace(record.Name))
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "scan_id"}, {Name: "name"}},
		UpdateAll: true,
	}).Create(&record).Error
}

// FailInterruptedRuns marks runs left in "running" by a killed scanner as
// failed. Only the scanner calls this, before it starts a new run.
func (s *QuoteStore) FailInterruptedRuns() (int64, error) {
	now := time.Now()
	result := s.db.Model(&models.ScanRun{}).
		Where("status = ?", models.ScanRunning).
		Updates(map[string]interface{}{
			"status":      models.ScanFailed,
			"error":       "interrupted",
			"finished_at": now,
		})
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected > 0 {
		log.Warn().Int64("runs", result.RowsAffected).Msg("QuoteStore: marked interrupted scan runs as failed")
	}
	return result.RowsAffected, nil
}

// GetHistory retrieves observations of one item for a given period, oldest first
func (s *QuoteStore) GetHistory(name, period string) ([]models.QuoteRecord, error) {
	var records []models.QuoteRecord

	startDate := periodStart(period, time.Now())
	query := s.db.Where("name = ?", strings.ToLower(strings.TrimSpace(name))).Order("observed_at ASC")
	if !startDate.IsZero() {
		query = query.Where("observed_at >= ?", startDate)
	}

	if err := query.Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// NormalizePeriod maps unknown periods to the default "month"
func NormalizePeriod(period string) string {
	switch period {
	case "week", "month", "3month", "year", "all":
		return period
	default:
		return "month"
	}
}

func periodStart(period string, now time.Time) time.Time {
	switch NormalizePeriod(period) {
	case "week":
		return now.AddDate(0, 0, -7)
	case "3month":
		return now.AddDate(0, -3, 0)
	case "year":
		return now.AddDate(-1, 0, 0)
	case "all":
		return time.Time{} // No filter
	default:
		return now.AddDate(0, -1, 0)
	}
}

// ListRuns returns the most recent scan runs, newest first
func (s *QuoteStore) ListRuns(limit int) ([]models.ScanRun, error) {
	if limit <= 0 {
		limit = 20
	}
	var runs []models.ScanRun
	if err := s.db.Order("started_at DESC").Limit(limit).Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

// LastRun returns the most recent scan run, or nil when none exists
func (s *QuoteStore) LastRun() (*models.ScanRun, error) {
	var run models.ScanRun
	err := s.db.Order("started_at DESC").First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}
